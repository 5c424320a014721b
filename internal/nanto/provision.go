package nanto

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// needsRoot reports whether the manager mutates system state and therefore
// has to run elevated. Homebrew refuses to run as root.
func (pm PackageManager) needsRoot() bool {
	return pm == PMApt || pm == PMPacman
}

// Provisioner installs a missing cross toolchain through the host package
// manager. Every step queries current state before acting, so an interrupted
// provision can be re-run from the top without corrupting anything.
type Provisioner struct {
	runner   CommandRunner
	locator  *Locator
	lookPath func(string) (string, error)
}

func NewProvisioner(runner CommandRunner, locator *Locator) *Provisioner {
	return &Provisioner{
		runner:   runner,
		locator:  locator,
		lookPath: exec.LookPath,
	}
}

// Provision ensures the descriptor's toolchain is installed and locatable.
// Steps: register the manager's extension channel if missing, install the
// compiler package if missing, then re-locate to confirm. Either a usable
// Toolchain comes back or a *ProvisionError explains which step refused.
func (p *Provisioner) Provision(ctx context.Context, desc ToolchainDescriptor) (Toolchain, error) {
	pm, err := detectPackageManager(p.lookPath)
	if err != nil {
		return Toolchain{}, &ProvisionError{Reason: "package manager unavailable", Err: err}
	}

	// refine the recipe for the manager we actually found
	recipe, err := descriptorFor(desc.Arch, pm)
	if err != nil {
		return Toolchain{}, &ProvisionError{Reason: "no provisioning recipe", Err: err}
	}

	// package-manager mutations must not be interrupted halfway
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)

	if err := p.ensureTap(ctx, pm, recipe); err != nil {
		return Toolchain{}, err
	}
	if err := p.ensureInstalled(ctx, pm, recipe); err != nil {
		return Toolchain{}, err
	}

	tc, found := p.locator.Locate(recipe)
	if !found {
		return Toolchain{}, &ProvisionError{
			Reason: fmt.Sprintf("%sgcc still not on PATH after installing %s", recipe.Prefix, recipe.Package),
		}
	}
	return tc, nil
}

// ensureTap registers the extension channel carrying the cross toolchain.
// No-op for managers without taps or when the channel is already registered.
func (p *Provisioner) ensureTap(ctx context.Context, pm PackageManager, desc ToolchainDescriptor) error {
	if desc.Tap == "" {
		return nil
	}

	var taps strings.Builder
	code, err := p.runner.Run(ctx, "", "brew tap", nil, &taps)
	if err != nil || code != 0 {
		return &ProvisionError{Reason: "listing taps failed", Err: err}
	}
	for _, line := range strings.Split(taps.String(), "\n") {
		if strings.TrimSpace(line) == desc.Tap {
			debugf("tap %s already registered\n", desc.Tap)
			return nil
		}
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Registering tap %s\n", desc.Tap)
	code, err = p.runner.Run(ctx, "", fmt.Sprintf("brew tap %s", desc.Tap), nil, os.Stderr)
	if err != nil {
		return &ProvisionError{Reason: "tap registration failed", Err: err}
	}
	if code != 0 {
		return &ProvisionError{Reason: fmt.Sprintf("brew tap %s exited %d", desc.Tap, code)}
	}
	return nil
}

// ensureInstalled installs the compiler package unless the manager already
// reports it present.
func (p *Provisioner) ensureInstalled(ctx context.Context, pm PackageManager, desc ToolchainDescriptor) error {
	query := map[PackageManager]string{
		PMBrew:   fmt.Sprintf("brew list --versions %s", desc.Package),
		PMApt:    fmt.Sprintf("dpkg -s %s", desc.Package),
		PMPacman: fmt.Sprintf("pacman -Qi %s", desc.Package),
	}[pm]

	code, err := p.runner.Run(ctx, "", query, nil, nil)
	if err != nil {
		return &ProvisionError{Reason: "querying installed packages failed", Err: err}
	}
	if code == 0 {
		colArrow.Print("-> ")
		colSuccess.Printf("Package %s already installed\n", desc.Package)
		return nil
	}

	install := map[PackageManager]string{
		PMBrew:   fmt.Sprintf("brew install %s", desc.Package),
		PMApt:    fmt.Sprintf("apt-get install -y %s", desc.Package),
		PMPacman: fmt.Sprintf("pacman -S --noconfirm --needed %s", desc.Package),
	}[pm]
	if pm.needsRoot() && os.Geteuid() != 0 {
		install = "sudo -E " + install
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Installing %s via %s\n", desc.Package, pm)
	code, err = p.runner.Run(ctx, "", install, nil, os.Stderr)
	if err != nil {
		return &ProvisionError{Reason: "install failed to start", Err: err}
	}
	if code != 0 {
		return &ProvisionError{Reason: fmt.Sprintf("%s install of %s exited %d", pm, desc.Package, code)}
	}
	return nil
}
