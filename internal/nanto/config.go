package nanto

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Config holds the host-level configuration from /etc/nanto.conf
// merged with NANTO_* environment overrides.
type Config struct {
	Values map[string]string
}

// Load /etc/nanto.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge NANTO_* env overrides
	mergeEnvOverrides(cfg)

	// Ensure TMPDIR has a default
	if tmp := cfg.Values["TMPDIR"]; tmp == "" {
		cfg.Values["TMPDIR"] = "/tmp"
	}

	return cfg, nil
}

// Merge NANTO_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "NANTO_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

func initConfig(cfg *Config) error {
	StateDir = cfg.Values["NANTO_STATE"]
	if StateDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("cannot determine state directory (set NANTO_STATE): %w", err)
		}
		StateDir = filepath.Join(base, "nanto")
	}

	CacheDir = filepath.Join(StateDir, "cache")
	LogDir = filepath.Join(StateDir, "logs")
	LockDir = filepath.Join(StateDir, "locks")

	BuildJobs = runtime.NumCPU()
	if j := cfg.Values["NANTO_JOBS"]; j != "" {
		n, err := strconv.Atoi(j)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid NANTO_JOBS value %q", j)
		}
		BuildJobs = n
	}

	Debug = cfg.Values["NANTO_DEBUG"] == "1"
	if cfg.Values["NANTO_VERBOSE"] == "1" {
		Verbose = true
	}

	TargetOverride = cfg.Values["NANTO_TARGET"]

	return nil
}

// ensureStateDirs creates the state tree; safe to call on every run.
func ensureStateDirs() error {
	for _, dir := range []string{StateDir, CacheDir, LogDir, LockDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory %s: %w", dir, err)
		}
	}
	return nil
}
