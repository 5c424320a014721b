package nanto

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// Stage names, fixed pipeline order.
const (
	StageDependency = "dependency"
	StageProject    = "project"
	StagePackage    = "package"
)

// BuildStage is one step of the fixed pipeline. Command stages shell out to
// the project's build tooling; the package stage carries a native Action
// instead. Stages are constructed once from the manifest and never mutated.
type BuildStage struct {
	Name      string
	Dir       string
	Command   string
	Artifact  string
	Cacheable bool
	Action    func(ctx context.Context) error
}

// StageResult reports a completed (or cache-skipped) stage.
type StageResult struct {
	Stage    string
	Artifact string
	Cached   bool
	Elapsed  time.Duration
	LogPath  string
}

// StagedBuilder runs build stages with the resolved toolchain threaded into
// every command environment. One instance per run.
type StagedBuilder struct {
	runner   CommandRunner
	toolc    Toolchain
	jobs     int
	project  string
	runLogs  string // per-run log directory
	force    bool   // ignore the dependency cache marker
	lookPath func(string) (string, error)
}

func NewStagedBuilder(runner CommandRunner, tc Toolchain, project, runLogs string) *StagedBuilder {
	return &StagedBuilder{
		runner:   runner,
		toolc:    tc,
		jobs:     BuildJobs,
		project:  project,
		runLogs:  runLogs,
		lookPath: exec.LookPath,
	}
}

// SetForce disables the dependency cache for this run.
func (b *StagedBuilder) SetForce(force bool) { b.force = force }

// RunStage executes one stage. Cacheable stages are skipped when their
// completion marker still matches the artifact on disk. A stage fails when
// its command exits non-zero, or exits zero without leaving the declared
// artifact behind.
func (b *StagedBuilder) RunStage(ctx context.Context, st BuildStage) (StageResult, error) {
	res := StageResult{Stage: st.Name, Artifact: st.Artifact}

	if st.Cacheable && !b.force {
		if b.cacheValid(st) {
			colArrow.Print("-> ")
			colSuccess.Printf("Stage %s cached, skipping (%s)\n", st.Name, st.Artifact)
			res.Cached = true
			return res, nil
		}
	}

	start := time.Now()
	if st.Command != "" {
		logPath, err := b.runCommand(ctx, st)
		res.LogPath = logPath
		if err != nil {
			return res, err
		}
	} else if st.Action != nil {
		colArrow.Print("-> ")
		colSuccess.Printf("Running %s stage\n", st.Name)
		if err := st.Action(ctx); err != nil {
			return res, &StageError{Stage: st.Name, Err: err}
		}
	} else {
		return res, &StageError{Stage: st.Name, Err: fmt.Errorf("stage has neither command nor action")}
	}

	// The nested tool exiting zero is not proof enough: the declared
	// artifact must actually be on disk.
	if st.Artifact != "" && !fileExists(st.Artifact) {
		return res, &StageError{
			Stage:           st.Name,
			ArtifactMissing: true,
			Err:             fmt.Errorf("declared output %s not found", st.Artifact),
		}
	}

	if st.Cacheable {
		if err := b.writeCacheMarker(st); err != nil {
			// a failed marker write only costs a rebuild next run
			cPrintf(colWarn, "Warning: could not record cache marker: %v\n", err)
		}
	}

	res.Elapsed = time.Since(start).Truncate(time.Second)
	colArrow.Print("-> ")
	colSuccess.Printf("Stage %s complete", st.Name)
	if res.Elapsed > 0 {
		colNote.Printf(" (%s)", res.Elapsed)
	}
	fmt.Println()
	return res, nil
}

// runCommand shells out the stage command with the cross environment, tee-ing
// output to the per-stage log file. Returns the log path.
func (b *StagedBuilder) runCommand(ctx context.Context, st BuildStage) (string, error) {
	// No silent fallback to the host compiler, ever: an unresolved prefix or
	// a compiler that vanished from PATH since resolution kills the stage
	// before anything runs.
	if b.toolc.Prefix == "" {
		return "", &StageError{Stage: st.Name, Err: fmt.Errorf("cross toolchain prefix unresolved")}
	}
	gcc := b.toolc.Tool("gcc")
	if _, err := b.lookPath(gcc); err != nil {
		return "", &StageError{Stage: st.Name, Err: fmt.Errorf("%s disappeared from PATH: %w", gcc, err)}
	}

	env := crossEnv(b.toolc, b.jobs)

	if err := os.MkdirAll(b.runLogs, 0755); err != nil {
		return "", &StageError{Stage: st.Name, Err: fmt.Errorf("creating log dir: %w", err)}
	}
	logPath := filepath.Join(b.runLogs, st.Name+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", &StageError{Stage: st.Name, Err: fmt.Errorf("creating log file: %w", err)}
	}
	defer logFile.Close()

	var output io.Writer = logFile
	if Verbose || Debug {
		output = io.MultiWriter(os.Stdout, logFile)
	}

	debugf("stage %s: sh -c %q in %s (CC=%s)\n", st.Name, st.Command, st.Dir, envValue(env, "CC"))

	// elapsed ticker on the console while the log swallows the build output
	start := time.Now()
	doneCh := make(chan struct{})
	var tickWg sync.WaitGroup
	if !Verbose && !Debug {
		tickWg.Add(1)
		go func() {
			defer tickWg.Done()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					elapsed := time.Since(start).Truncate(time.Second)
					colArrow.Print("-> ")
					colSuccess.Printf("Building %s elapsed: %s\r", st.Name, elapsed)
				case <-doneCh:
					fmt.Print("\r")
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	exitCode, runErr := b.runner.Run(ctx, st.Dir, st.Command, env, output)
	close(doneCh)
	tickWg.Wait()

	if runErr != nil {
		return logPath, &StageError{Stage: st.Name, Err: runErr}
	}
	if exitCode != 0 {
		cPrintf(colError, "Stage %s failed (exit %d), full log: %s\n", st.Name, exitCode, logPath)
		return logPath, &StageError{Stage: st.Name, Err: fmt.Errorf("command exited %d", exitCode)}
	}
	return logPath, nil
}

// cacheMarkerPath is where a cacheable stage records its completion.
func (b *StagedBuilder) cacheMarkerPath(stage string) string {
	return filepath.Join(CacheDir, fmt.Sprintf("%s-%s.ok", b.project, stage))
}

// cacheValid trusts a previous build only when the marker exists, the
// artifact exists, and the artifact still hashes to the recorded digest.
// A partially written artifact from a killed run never passes.
func (b *StagedBuilder) cacheValid(st BuildStage) bool {
	marker := b.cacheMarkerPath(st.Name)
	recorded, err := readChecksumSidecar(marker)
	if err != nil {
		debugf("cache miss for %s: no marker (%v)\n", st.Name, err)
		return false
	}
	if !fileExists(st.Artifact) {
		debugf("cache miss for %s: artifact gone\n", st.Name)
		return false
	}
	current, err := hashFile(st.Artifact)
	if err != nil {
		debugf("cache miss for %s: %v\n", st.Name, err)
		return false
	}
	if current != recorded {
		debugf("cache miss for %s: artifact changed since marker\n", st.Name)
		return false
	}
	return true
}

// writeCacheMarker records the artifact digest after a successful stage.
func (b *StagedBuilder) writeCacheMarker(st BuildStage) error {
	digest, err := hashFile(st.Artifact)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(CacheDir, 0755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s  %s\n", digest, st.Artifact)
	return os.WriteFile(b.cacheMarkerPath(st.Name), []byte(line), 0644)
}

// InvalidateCache drops the dependency stage marker so the next run rebuilds.
func InvalidateCache(project, stage string) error {
	marker := filepath.Join(CacheDir, fmt.Sprintf("%s-%s.ok", project, stage))
	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
