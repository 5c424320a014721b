package nanto

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Deployer ships a verified package archive to an embedded device over
// ssh/scp. Nothing is retried automatically: the unpack mutates the
// device, so the operator decides when to run again.
type Deployer struct {
	runner  CommandRunner
	staging func(suffix string) string
}

func NewDeployer(runner CommandRunner) *Deployer {
	return &Deployer{
		runner: runner,
		staging: func(suffix string) string {
			return "/tmp/nanto-" + uuid.New().String() + suffix
		},
	}
}

// archiveSuffix returns the multi-part extension of the package file,
// e.g. ".tar.zst" for dist/app-1.0-aarch64.tar.zst. The staging path
// keeps it so the remote tar can pick its decompressor from the name.
func archiveSuffix(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, ".tar"); i != -1 {
		return base[i:]
	}
	return filepath.Ext(base)
}

// Deploy probes the device, copies the archive to a unique staging path
// and unpacks it into the configured device directory.
func (d *Deployer) Deploy(ctx context.Context, packagePath string, device DeviceSpec) error {
	if device.Target == "" {
		return &DeployError{Err: fmt.Errorf("no device target configured")}
	}
	if device.Dir == "" {
		return &DeployError{Target: device.Target, Err: fmt.Errorf("no device directory configured")}
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Probing device %s\n", device.Target)
	probe := fmt.Sprintf("ssh -o BatchMode=yes -o ConnectTimeout=%d %s true",
		device.Timeout, device.Target)
	code, err := d.runner.Run(ctx, "", probe, nil, io.Discard)
	if err != nil {
		return &DeployError{Target: device.Target, Unreachable: true, Err: err}
	}
	if code != 0 {
		return &DeployError{Target: device.Target, Unreachable: true,
			Err: fmt.Errorf("reachability probe exited %d", code)}
	}

	staged := d.staging(archiveSuffix(packagePath))
	colArrow.Print("-> ")
	colSuccess.Printf("Copying %s to %s:%s\n", filepath.Base(packagePath), device.Target, staged)
	copyCmd := fmt.Sprintf("scp -q %s %s:%s", packagePath, device.Target, staged)
	code, err = d.runner.Run(ctx, "", copyCmd, nil, os.Stderr)
	if err != nil {
		return &DeployError{Target: device.Target, Err: err}
	}
	if code != 0 {
		return &DeployError{Target: device.Target, Err: fmt.Errorf("transfer exited %d", code)}
	}

	// The remote unpack mutates the device; hold the interrupt guard
	// until it finishes.
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)

	colArrow.Print("-> ")
	colSuccess.Printf("Unpacking on %s into %s\n", device.Target, device.Dir)
	remote := fmt.Sprintf("mkdir -p %s && tar -C %s -xaf %s && rm -f %s",
		device.Dir, device.Dir, staged, staged)
	unpackCmd := fmt.Sprintf("ssh %s '%s'", device.Target, remote)
	code, err = d.runner.Run(ctx, "", unpackCmd, nil, os.Stderr)
	if err != nil {
		return &DeployError{Target: device.Target, Err: err}
	}
	if code != 0 {
		return &DeployError{Target: device.Target, Err: fmt.Errorf("remote unpack exited %d", code)}
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Deployed %s to %s:%s\n", filepath.Base(packagePath), device.Target, device.Dir)
	return nil
}
