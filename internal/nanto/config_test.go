package nanto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_ParsesFileAndTrimsQuotes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanto.conf")
	content := `
# mirror credentials
R2_ACCOUNT_ID = "abc123"
R2_BUCKET_NAME='packages'
NANTO_JOBS=8

this line has no equals sign
=weird
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Values["R2_ACCOUNT_ID"] != "abc123" {
		t.Fatalf("R2_ACCOUNT_ID = %q", cfg.Values["R2_ACCOUNT_ID"])
	}
	if cfg.Values["R2_BUCKET_NAME"] != "packages" {
		t.Fatalf("R2_BUCKET_NAME = %q", cfg.Values["R2_BUCKET_NAME"])
	}
	if cfg.Values["NANTO_JOBS"] != "8" {
		t.Fatalf("NANTO_JOBS = %q", cfg.Values["NANTO_JOBS"])
	}
	if cfg.Values["TMPDIR"] != "/tmp" {
		t.Fatalf("TMPDIR default = %q", cfg.Values["TMPDIR"])
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanto.conf")
	if err := os.WriteFile(path, []byte("NANTO_JOBS=8\n"), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	t.Setenv("NANTO_JOBS", "3")
	t.Setenv("NANTO_DEBUG", "1")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Values["NANTO_JOBS"] != "3" {
		t.Fatalf("env override lost, NANTO_JOBS = %q", cfg.Values["NANTO_JOBS"])
	}
	if cfg.Values["NANTO_DEBUG"] != "1" {
		t.Fatalf("NANTO_DEBUG = %q", cfg.Values["NANTO_DEBUG"])
	}
}

func TestLoadConfig_MissingFileIsFine(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("missing config file must not be an error: %v", err)
	}
	if cfg.Values["TMPDIR"] != "/tmp" {
		t.Fatalf("TMPDIR default = %q", cfg.Values["TMPDIR"])
	}
}

func TestInitConfig_StateTreeAndJobs(t *testing.T) {
	origState, origCache, origLog, origLock := StateDir, CacheDir, LogDir, LockDir
	origJobs, origDebug, origVerbose := BuildJobs, Debug, Verbose
	origTarget := TargetOverride
	t.Cleanup(func() {
		StateDir, CacheDir, LogDir, LockDir = origState, origCache, origLog, origLock
		BuildJobs, Debug, Verbose = origJobs, origDebug, origVerbose
		TargetOverride = origTarget
	})

	base := t.TempDir()
	cfg := &Config{Values: map[string]string{
		"NANTO_STATE":  base,
		"NANTO_JOBS":   "6",
		"NANTO_DEBUG":  "0",
		"NANTO_TARGET": "riscv64",
	}}
	if err := initConfig(cfg); err != nil {
		t.Fatalf("initConfig: %v", err)
	}
	if StateDir != base {
		t.Fatalf("StateDir = %q", StateDir)
	}
	if CacheDir != filepath.Join(base, "cache") {
		t.Fatalf("CacheDir = %q", CacheDir)
	}
	if LogDir != filepath.Join(base, "logs") {
		t.Fatalf("LogDir = %q", LogDir)
	}
	if LockDir != filepath.Join(base, "locks") {
		t.Fatalf("LockDir = %q", LockDir)
	}
	if BuildJobs != 6 {
		t.Fatalf("BuildJobs = %d", BuildJobs)
	}
	if TargetOverride != "riscv64" {
		t.Fatalf("TargetOverride = %q", TargetOverride)
	}

	if err := ensureStateDirs(); err != nil {
		t.Fatalf("ensureStateDirs: %v", err)
	}
	for _, dir := range []string{CacheDir, LogDir, LockDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("state dir %s not created: %v", dir, err)
		}
	}
}

func TestInitConfig_RejectsInvalidJobs(t *testing.T) {
	origState, origCache, origLog, origLock := StateDir, CacheDir, LogDir, LockDir
	origJobs := BuildJobs
	t.Cleanup(func() {
		StateDir, CacheDir, LogDir, LockDir = origState, origCache, origLog, origLock
		BuildJobs = origJobs
	})

	for _, bad := range []string{"zero", "0", "-2"} {
		cfg := &Config{Values: map[string]string{
			"NANTO_STATE": t.TempDir(),
			"NANTO_JOBS":  bad,
		}}
		err := initConfig(cfg)
		if err == nil {
			t.Fatalf("NANTO_JOBS=%q: expected error", bad)
		}
		if !strings.Contains(err.Error(), "NANTO_JOBS") {
			t.Fatalf("error does not name the bad setting: %v", err)
		}
	}
}
