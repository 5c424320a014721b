package nanto

import (
	"errors"
	"fmt"
)

// errToolchainAbsent is the recoverable "not found" outcome of a toolchain
// check. Full mode reacts by provisioning; build-only mode surfaces it.
var errToolchainAbsent = errors.New("cross toolchain not found")

// errAnotherRunActive is returned when the project lock is already held.
var errAnotherRunActive = errors.New("another nanto run is active for this project")

// ProvisionError means the package manager was unavailable or the toolchain
// is still absent after installation. Operator intervention required.
type ProvisionError struct {
	Reason string
	Err    error
}

func (e *ProvisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provisioning failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("provisioning failed: %s", e.Reason)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// StageError is a fatal stage outcome: either the nested command exited
// non-zero, or it exited zero without leaving its declared artifact behind.
type StageError struct {
	Stage           string
	ArtifactMissing bool
	Err             error
}

func (e *StageError) Error() string {
	if e.ArtifactMissing {
		return fmt.Sprintf("stage %s reported success but its artifact is missing: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// VerifyError reports an artifact whose observed ELF header does not match
// the target. Executable mismatches fail the run; shared-library mismatches
// are carried as warnings.
type VerifyError struct {
	Path     string
	Observed string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("artifact %s failed verification: %s", e.Path, e.Observed)
}

// DeployError wraps a deployment failure. Unreachable distinguishes a failed
// reachability probe from transfer or remote unpack failures.
type DeployError struct {
	Target      string
	Unreachable bool
	Err         error
}

func (e *DeployError) Error() string {
	if e.Unreachable {
		return fmt.Sprintf("deploy target %s unreachable: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("deployment to %s failed: %v", e.Target, e.Err)
}

func (e *DeployError) Unwrap() error { return e.Err }
