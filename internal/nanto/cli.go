package nanto

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: nanto [command] [arguments]")
	colSuccess.Println("Bare 'nanto' runs the full pipeline: toolchain check, build, package, verify")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"install, -i", "[-m <manifest>]", "Locate the cross toolchain, provisioning it if absent"},
		{"build, -b", "[-f] [-m <manifest>]", "Build, package and verify without provisioning"},
		{"deploy", "[-t user@host] [-f] [-m <manifest>]", "Run the full pipeline, then deploy to the device"},
		{"verify", "[-m <manifest>]", "Re-check artifacts and package from the last build"},
		{"publish", "[-m <manifest>]", "Upload the package and checksum sidecar to the mirror"},
		{"log", "[stage]", "View retained stage logs from the most recent run"},
		{"clean", "[options]", "Remove cache markers, built archives or retained logs"},
		{"version, --version", "", "Version information"},
		{"help, --help, -h", "", "This help"},
	}

	// --- Dynamic Padding Logic ---
	// 1. Find the longest usage string to calculate the ideal width for the first column.
	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++ // Account for the space
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	// 2. Print the formatted list with calculated padding.
	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))

		color.Info.Println(c.Desc)
	}

	fmt.Println()
}

// mustLoadManifest resolves and loads the project manifest or exits.
func mustLoadManifest(flagPath string) *Manifest {
	path, err := findManifest(flagPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	m, err := LoadManifest(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	debugf("loaded manifest %s (project %s, target %s)\n", path, m.Project, m.Arch())
	return m
}

// runStandaloneVerify re-checks the artifacts and package left behind by
// a previous build.
func runStandaloneVerify(m *Manifest) int {
	v := NewVerifier()
	results := v.VerifyAll(m.Artifacts())
	warnings := 0
	for _, r := range results {
		if r.Fatal() {
			cPrintf(colError, "Verification failed: %v\n", r.Err)
			return 1
		}
		if !r.OK {
			warnings++
		}
	}

	pkgPath := m.Abs(m.Package.Output)
	if !fileExists(pkgPath) {
		cPrintf(colError, "Package %s does not exist, run a build first\n", pkgPath)
		return 1
	}
	if err := v.VerifyPackageListing(pkgPath, m.Package.Include); err != nil {
		cPrintf(colError, "Verification failed: %v\n", err)
		return 1
	}

	if warnings > 0 {
		return 2
	}
	return 0
}

// Main is the CLI entrypoint for cmd/nanto.
func Main() {
	// 1. CONTEXT AND SIGNAL SETUP
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. SIGNAL CHANNEL SETUP
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// 3. SIGNAL HANDLING GOROUTINE
	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					// --- CRITICAL PHASE: Block 1st signal, force exit on 2nd ---
					colArrow.Print("\n-> ")
					colError.Printf("Critical operation in progress (install or device unpack). Press Ctrl+C AGAIN to force exit NOW.\n")

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						colError.Printf("Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					// --- NON-CRITICAL PHASE: Graceful Cancellation ---
					colArrow.Print("\n-> ")
					color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
					cancel()

					// Give the command a moment to die and flush its buffers
					time.Sleep(100 * time.Millisecond)

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-time.After(2 * time.Second):
						colArrow.Print("\n-> ")
						color.Danger.Printf("Graceful shutdown timeout. Exiting.")
						os.Exit(0)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	if ctx.Err() != nil {
		return
	}

	// 4. CONFIGURATION
	configPath := ConfigFile
	if p := os.Getenv("NANTO_CONF"); p != "" {
		configPath = p
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: reading %s: %v\n", configPath, err)
	}
	if err := initConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := ensureStateDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 5. INITIALIZE EXECUTOR
	UserExec = &Executor{Context: ctx}

	// 6. SUDO PRIMING
	// Only when this invocation can install packages and the detected
	// package manager needs root.
	if needsProvisionPrivileges(os.Args[1:]) && os.Geteuid() != 0 {
		if pm, err := detectPackageManager(exec.LookPath); err == nil && pm.needsRoot() {
			if err := authenticateOnce(); err != nil {
				fmt.Fprintf(os.Stderr, "Authentication failed: %v\n", err)
				os.Exit(1)
			}
		}
	}

	// 7. MAIN LOGIC
	var exitCode int

	command := ""
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "":
		m := mustLoadManifest("")
		p := NewPipeline(m, ModeFull)
		exitCode = p.Run(ctx)

	case "install", "--install", "-i":
		installCmd := flag.NewFlagSet("install", flag.ExitOnError)
		manifestFlag := installCmd.String("m", "", "Path to the project manifest.")
		if err := installCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing install flags: %v\n", err)
			os.Exit(1)
		}
		m := mustLoadManifest(*manifestFlag)
		p := NewPipeline(m, ModeProvisionOnly)
		exitCode = p.Run(ctx)

	case "build", "--build", "-b":
		buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
		force := buildCmd.Bool("f", false, "Force dependency rebuild, ignoring the cache marker.")
		manifestFlag := buildCmd.String("m", "", "Path to the project manifest.")
		if err := buildCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing build flags: %v\n", err)
			os.Exit(1)
		}
		m := mustLoadManifest(*manifestFlag)
		p := NewPipeline(m, ModeBuildOnly)
		p.SetForce(*force)
		exitCode = p.Run(ctx)

	case "deploy":
		deployCmd := flag.NewFlagSet("deploy", flag.ExitOnError)
		target := deployCmd.String("t", "", "Deploy target as user@host, overriding the manifest.")
		force := deployCmd.Bool("f", false, "Force dependency rebuild, ignoring the cache marker.")
		manifestFlag := deployCmd.String("m", "", "Path to the project manifest.")
		if err := deployCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing deploy flags: %v\n", err)
			os.Exit(1)
		}
		m := mustLoadManifest(*manifestFlag)
		if *target != "" {
			m.Device.Target = *target
		}
		if m.Device.Target == "" {
			fmt.Fprintln(os.Stderr, "Error: no deploy target (set device.target in the manifest or pass -t)")
			os.Exit(1)
		}
		p := NewPipeline(m, ModeFull)
		p.SetForce(*force)
		p.SetDeploy(true)
		exitCode = p.Run(ctx)

	case "verify":
		verifyCmd := flag.NewFlagSet("verify", flag.ExitOnError)
		manifestFlag := verifyCmd.String("m", "", "Path to the project manifest.")
		if err := verifyCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing verify flags: %v\n", err)
			os.Exit(1)
		}
		m := mustLoadManifest(*manifestFlag)
		exitCode = runStandaloneVerify(m)

	case "publish":
		publishCmd := flag.NewFlagSet("publish", flag.ExitOnError)
		manifestFlag := publishCmd.String("m", "", "Path to the project manifest.")
		if err := publishCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing publish flags: %v\n", err)
			os.Exit(1)
		}
		m := mustLoadManifest(*manifestFlag)
		if err := handlePublishCommand(cfg, m); err != nil {
			fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
			os.Exit(1)
		}

	case "log":
		m := mustLoadManifest("")
		if len(os.Args) >= 3 {
			if err := showStageLog(m.Project, os.Args[2]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		} else {
			if err := browseRunLogs(m.Project); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

	case "clean":
		m := mustLoadManifest("")
		if err := handleCleanCommand(os.Args[2:], m); err != nil {
			fmt.Fprintf(os.Stderr, "Clean failed: %v\n", err)
			os.Exit(1)
		}

	case "version", "--version":
		colNote.Printf("nanto %s (%s) built %s\n", version, hostArch, buildDate)

	case "help", "--help", "-h":
		printHelp()

	default:
		printHelp()
		exitCode = 1
	}
	os.Exit(exitCode)
}
