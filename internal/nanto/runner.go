package nanto

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
)

// CommandRunner abstracts shell command execution for testability. Build
// stages and package-manager steps go through it, so orchestration tests can
// substitute a recording mock. A non-zero exit is reported via exitCode with
// a nil error; err is reserved for failures to launch at all.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string, env []string, output io.Writer) (exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string, env []string, output io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = env
	}
	if output == nil {
		output = io.Discard
	}
	cmd.Stdout = output
	cmd.Stderr = output

	// isolate the process group so cancellation kills nested build tools too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return -1, fmt.Errorf("exec: %w", err)
		}
	}
	return exitCode, nil
}
