package nanto

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/term"
)

// needsProvisionPrivileges reports whether the command may install a
// toolchain package and therefore might need sudo.
func needsProvisionPrivileges(args []string) bool {
	if len(args) < 1 {
		// Bare nanto runs the full pipeline with auto-provisioning.
		return true
	}

	switch args[0] {
	case "install", "--install", "-i", "deploy":
		return true
	}
	return false
}

// authenticateOnce primes the sudo timestamp cache at program start so
// package-manager installs later in the run don't stall on a prompt.
func authenticateOnce() error {
	if os.Geteuid() == 0 {
		return nil
	}

	// A cached timestamp is enough; refresh it quietly.
	if err := exec.Command("sudo", "-nv").Run(); err == nil {
		startSudoKeepAlive()
		return nil
	}

	tty, err := os.Open("/dev/tty")
	if err != nil {
		// No terminal to ask on; fall back to sudo's own prompt.
		cmd := exec.Command("sudo", "-v")
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("sudo authentication failed: %w", err)
		}
		startSudoKeepAlive()
		return nil
	}
	defer tty.Close()

	fmt.Fprint(os.Stderr, "Enter sudo password: ")
	pass, err := term.ReadPassword(int(tty.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading sudo password: %w", err)
	}

	prime := exec.Command("sudo", "-S", "-v")
	prime.Stdin = strings.NewReader(string(pass) + "\n")
	prime.Stdout = os.Stdout
	prime.Stderr = os.Stderr
	if err := prime.Run(); err != nil {
		return fmt.Errorf("sudo validation failed: %w", err)
	}

	startSudoKeepAlive()
	colArrow.Print("-> ")
	colSuccess.Println("Authenticated via sudo")
	return nil
}

// startSudoKeepAlive refreshes the timestamp cache in the background so
// long toolchain installs don't outlive it.
func startSudoKeepAlive() {
	go func() {
		ticker := time.NewTicker(4 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			exec.Command("sudo", "-nv").Run()
		}
	}()
}
