package nanto

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RunMode selects how much of the pipeline a command drives.
type RunMode int

const (
	ModeFull RunMode = iota
	ModeProvisionOnly
	ModeBuildOnly
)

func (m RunMode) String() string {
	switch m {
	case ModeProvisionOnly:
		return "provision-only"
	case ModeBuildOnly:
		return "build-only"
	default:
		return "full"
	}
}

// runState enumerates the pipeline's states. Transitions only move
// through isAllowedTransition; anything else is a programming error
// surfaced as a failed run.
type runState int

const (
	stateInit runState = iota
	stateToolchainCheck
	stateToolchainProvision
	stateDependencyBuild
	stateProjectBuild
	statePackage
	stateVerify
	stateDeploy
	stateDone
	stateFailed
)

var runStateNames = map[runState]string{
	stateInit:               "Init",
	stateToolchainCheck:     "ToolchainCheck",
	stateToolchainProvision: "ToolchainProvision",
	stateDependencyBuild:    "DependencyBuild",
	stateProjectBuild:       "ProjectBuild",
	statePackage:            "Package",
	stateVerify:             "Verify",
	stateDeploy:             "Deploy",
	stateDone:               "Done",
	stateFailed:             "Failed",
}

func (s runState) String() string { return runStateNames[s] }

// isAllowedTransition encodes the legal moves. Failed is reachable from
// every non-terminal state; Done only from the states that legitimately
// end a run.
func isAllowedTransition(from, to runState) bool {
	if to == stateFailed {
		return from != stateDone && from != stateFailed
	}
	switch from {
	case stateInit:
		return to == stateToolchainCheck
	case stateToolchainCheck:
		return to == stateToolchainProvision || to == stateDependencyBuild || to == stateDone
	case stateToolchainProvision:
		return to == stateDependencyBuild || to == stateDone
	case stateDependencyBuild:
		return to == stateProjectBuild
	case stateProjectBuild:
		return to == statePackage
	case statePackage:
		return to == stateVerify
	case stateVerify:
		return to == stateDeploy || to == stateDone
	case stateDeploy:
		return to == stateDone
	default:
		return false
	}
}

// Seams the pipeline drives its components through. Tests swap these for
// recording fakes; production wiring lives in NewPipeline.
type toolchainLocator interface {
	Locate(desc ToolchainDescriptor) (Toolchain, bool)
}

type toolchainProvisioner interface {
	Provision(ctx context.Context, desc ToolchainDescriptor) (Toolchain, error)
}

type stageRunner interface {
	RunStage(ctx context.Context, st BuildStage) (StageResult, error)
}

type artifactVerifier interface {
	VerifyAll(arts []Artifact) []VerificationResult
	VerifyPackageListing(archivePath string, expected []string) error
}

type packageDeployer interface {
	Deploy(ctx context.Context, packagePath string, device DeviceSpec) error
}

// Pipeline is the single aggregation point of a run: it owns the state
// machine, threads the resolved toolchain into the builder, collects
// stage and verification outcomes and maps the first fatal one to an
// exit status.
type Pipeline struct {
	manifest *Manifest
	mode     RunMode
	deploy   bool
	force    bool

	locator     toolchainLocator
	provisioner toolchainProvisioner
	verifier    artifactVerifier
	deployer    packageDeployer
	newBuilder  func(tc Toolchain, runLogs string) stageRunner

	state         runState
	trace         []runState
	toolchain     Toolchain
	runLogs       string
	packagePath   string
	results       []StageResult
	verifyResults []VerificationResult
	failure       error
}

func NewPipeline(m *Manifest, mode RunMode) *Pipeline {
	runner := &ExecRunner{}
	locator := NewLocator()
	p := &Pipeline{
		manifest:    m,
		mode:        mode,
		locator:     locator,
		provisioner: NewProvisioner(runner, locator),
		verifier:    NewVerifier(),
		deployer:    NewDeployer(runner),
	}
	p.newBuilder = func(tc Toolchain, runLogs string) stageRunner {
		b := NewStagedBuilder(runner, tc, m.Project, runLogs)
		b.SetForce(p.force)
		return b
	}
	return p
}

// SetForce makes cacheable stages rebuild even with a valid marker.
func (p *Pipeline) SetForce(force bool) { p.force = force }

// SetDeploy extends a full run with the Deploy tail.
func (p *Pipeline) SetDeploy(deploy bool) { p.deploy = deploy }

func (p *Pipeline) transition(to runState) error {
	if !isAllowedTransition(p.state, to) {
		return fmt.Errorf("disallowed pipeline transition: %s -> %s", p.state, to)
	}
	debugf("pipeline: %s -> %s\n", p.state, to)
	p.state = to
	p.trace = append(p.trace, to)
	return nil
}

func (p *Pipeline) traceString() string {
	names := make([]string, 0, len(p.trace))
	for _, s := range p.trace {
		names = append(names, s.String())
	}
	return strings.Join(names, " -> ")
}

// Run drives the pipeline to a terminal state and returns the process
// exit code: 0 for a clean run, 2 when secondary artifacts failed
// verification, 1 for any failure.
func (p *Pipeline) Run(ctx context.Context) int {
	start := time.Now()
	p.state = stateInit
	p.trace = []runState{stateInit}

	release, err := acquireRunLock(p.manifest.Project)
	if err != nil {
		return p.fail(err)
	}
	defer release()

	m := p.manifest
	colArrow.Print("-> ")
	colSuccess.Printf("nanto %s: %s %s for %s (%s)\n",
		version, m.Project, m.Version, m.Arch(), p.mode)

	if err := p.transition(stateToolchainCheck); err != nil {
		return p.fail(err)
	}
	desc := locateDescriptor(m.Arch())
	tc, found := p.locator.Locate(desc)
	switch {
	case found:
		colArrow.Print("-> ")
		colSuccess.Printf("Toolchain %s found (%s)\n", tc.Tool("gcc"), tc.Version)
		p.toolchain = tc
	case p.mode == ModeBuildOnly:
		return p.fail(fmt.Errorf("%w for %s; run nanto install first", errToolchainAbsent, m.Arch()))
	default:
		if err := p.transition(stateToolchainProvision); err != nil {
			return p.fail(err)
		}
		cPrintln(colNote, "Cross toolchain not found, provisioning")
		tc, err := p.provisioner.Provision(ctx, desc)
		if err != nil {
			return p.fail(err)
		}
		p.toolchain = tc
	}

	if p.mode == ModeProvisionOnly {
		if err := p.transition(stateDone); err != nil {
			return p.fail(err)
		}
		return p.finish(start)
	}

	if err := p.transition(stateDependencyBuild); err != nil {
		return p.fail(err)
	}
	runLogs, err := newRunLogDir(m.Project)
	if err != nil {
		return p.fail(err)
	}
	p.runLogs = runLogs
	builder := p.newBuilder(p.toolchain, runLogs)

	if m.HasLibrary() {
		res, err := builder.RunStage(ctx, BuildStage{
			Name:      StageDependency,
			Dir:       m.Abs(m.Library.Dir),
			Command:   m.Library.Command,
			Artifact:  m.Abs(m.Library.Artifact),
			Cacheable: true,
		})
		if err != nil {
			return p.fail(err)
		}
		p.results = append(p.results, res)
	} else {
		debugf("no dependency stage declared\n")
	}

	if err := p.transition(stateProjectBuild); err != nil {
		return p.fail(err)
	}
	res, err := builder.RunStage(ctx, BuildStage{
		Name:     StageProject,
		Dir:      m.Abs(m.App.Dir),
		Command:  m.App.Command,
		Artifact: m.Abs(m.App.Artifact),
	})
	if err != nil {
		return p.fail(err)
	}
	p.results = append(p.results, res)

	if err := p.transition(statePackage); err != nil {
		return p.fail(err)
	}
	outPath := m.Abs(m.Package.Output)
	res, err = builder.RunStage(ctx, BuildStage{
		Name:     StagePackage,
		Artifact: outPath,
		Action: func(ctx context.Context) error {
			_, perr := createPackageArchive(m, UserExec)
			return perr
		},
	})
	if err != nil {
		return p.fail(err)
	}
	p.results = append(p.results, res)
	p.packagePath = outPath

	if err := p.transition(stateVerify); err != nil {
		return p.fail(err)
	}
	p.verifyResults = p.verifier.VerifyAll(m.Artifacts())
	for _, r := range p.verifyResults {
		if r.Fatal() {
			return p.fail(r.Err)
		}
	}
	if err := p.verifier.VerifyPackageListing(p.packagePath, m.Package.Include); err != nil {
		return p.fail(err)
	}

	if p.deploy {
		if err := p.transition(stateDeploy); err != nil {
			return p.fail(err)
		}
		if err := p.deployer.Deploy(ctx, p.packagePath, m.Device); err != nil {
			return p.fail(err)
		}
	}

	if err := p.transition(stateDone); err != nil {
		return p.fail(err)
	}
	return p.finish(start)
}

// fail records the first fatal outcome, moves to Failed and prints the
// stage-qualified terminal message. Logs stay uncompressed so the path
// printed by the failing stage remains readable.
func (p *Pipeline) fail(err error) int {
	failedIn := p.state
	p.failure = err
	if isAllowedTransition(p.state, stateFailed) {
		p.state = stateFailed
		p.trace = append(p.trace, stateFailed)
	}
	cPrintf(colError, "Failed in %s: %v\n", failedIn, err)
	debugf("state trace: %s\n", p.traceString())
	return 1
}

func (p *Pipeline) finish(start time.Time) int {
	if p.runLogs != "" {
		compressRunLogs(p.runLogs)
	}

	cached := 0
	for _, r := range p.results {
		if r.Cached {
			cached++
		}
	}
	warnings := 0
	for _, r := range p.verifyResults {
		if !r.OK {
			warnings++
		}
	}

	if len(p.verifyResults) > 0 {
		colArrow.Print("-> ")
		colSuccess.Printf("Verification: %d artifact(s) checked, %d warning(s)\n",
			len(p.verifyResults), warnings)
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Done: %d stage(s) run, %d cached, took %s\n",
		len(p.results)-cached, cached, time.Since(start).Round(time.Second))
	debugf("state trace: %s\n", p.traceString())

	if warnings > 0 {
		return 2
	}
	return 0
}
