package nanto

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
)

// newRunLogDir creates a fresh per-run log directory under
// LogDir/<project>/<runID> and returns its path.
func newRunLogDir(project string) (string, error) {
	runID := uuid.New().String()
	dir := filepath.Join(LogDir, project, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run log directory: %w", err)
	}
	debugf("Run logs at %s\n", dir)
	return dir, nil
}

// compressRunLogs xz-compresses every stage log in the run directory and
// removes the originals. Compression failures are not fatal; the plain
// log stays behind for inspection.
func compressRunLogs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		debugf("compressRunLogs: %v\n", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		src := filepath.Join(dir, e.Name())
		if err := compressLogFile(src); err != nil {
			debugf("Warning: failed to compress %s: %v\n", src, err)
			continue
		}
	}
}

func compressLogFile(srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(srcPath + ".xz")
	if err != nil {
		return err
	}

	xw, err := xz.NewWriter(dest)
	if err != nil {
		dest.Close()
		return err
	}
	if _, err := io.Copy(xw, src); err != nil {
		xw.Close()
		dest.Close()
		return err
	}
	if err := xw.Close(); err != nil {
		dest.Close()
		return err
	}
	if err := dest.Close(); err != nil {
		return err
	}
	return os.Remove(srcPath)
}

// latestRunDir returns the most recently modified run directory for the
// project, or an error when no runs have been logged yet.
func latestRunDir(project string) (string, error) {
	base := filepath.Join(LogDir, project)
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("no logs recorded for %s", project)
	}

	var newest string
	var newestMod int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = e.Name()
			newestMod = mod
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no logs recorded for %s", project)
	}
	return filepath.Join(base, newest), nil
}

// listStageLogs returns the stage names with a log present in the run
// directory, sorted for stable display.
func listStageLogs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var stages []string
	for _, e := range entries {
		name := e.Name()
		name = strings.TrimSuffix(name, ".xz")
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		stages = append(stages, strings.TrimSuffix(name, ".log"))
	}
	sort.Strings(stages)
	return stages, nil
}

// stageLogContent loads one stage's log from the run directory,
// transparently decompressing a retained .xz log.
func stageLogContent(dir, stage string) (string, error) {
	plain := filepath.Join(dir, stage+".log")
	if fileExists(plain) {
		data, err := os.ReadFile(plain)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	compressed := plain + ".xz"
	f, err := os.Open(compressed)
	if err != nil {
		return "", fmt.Errorf("no log recorded for stage %s", stage)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to create xz reader: %w", err)
	}
	data, err := io.ReadAll(xr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
