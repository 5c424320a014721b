package nanto

import (
	"fmt"
	"strings"
	"testing"
)

// fakeLookPath simulates PATH lookups against a fixed set of binaries.
func fakeLookPath(available ...string) func(string) (string, error) {
	set := make(map[string]bool, len(available))
	for _, name := range available {
		set[name] = true
	}
	return func(name string) (string, error) {
		if set[name] {
			return "/usr/bin/" + name, nil
		}
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
}

func TestDetectPackageManager_PrefersBrew(t *testing.T) {
	pm, err := detectPackageManager(fakeLookPath("brew", "apt-get"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pm != PMBrew {
		t.Fatalf("pm = %s, want brew", pm)
	}

	pm, err = detectPackageManager(fakeLookPath("pacman"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pm != PMPacman {
		t.Fatalf("pm = %s, want pacman", pm)
	}

	if _, err := detectPackageManager(fakeLookPath()); err == nil {
		t.Fatalf("expected error with no manager on PATH")
	}
}

func TestDescriptorFor_KnownRecipes(t *testing.T) {
	desc, err := descriptorFor(ArchAarch64, PMApt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Prefix != "aarch64-linux-gnu-" {
		t.Fatalf("prefix = %q", desc.Prefix)
	}
	if desc.Package != "gcc-aarch64-linux-gnu" {
		t.Fatalf("package = %q", desc.Package)
	}
	if desc.Tap != "" {
		t.Fatalf("apt recipe should not carry a tap, got %q", desc.Tap)
	}

	desc, err = descriptorFor(ArchArmv7l, PMBrew)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Tap == "" {
		t.Fatalf("brew recipe should carry a tap")
	}
	if !strings.HasSuffix(desc.Prefix, "gnueabihf-") {
		t.Fatalf("armv7l prefix = %q", desc.Prefix)
	}

	if _, err := descriptorFor(Architecture("mips"), PMApt); err == nil {
		t.Fatalf("expected error for unsupported architecture")
	}
}

func TestLocateDescriptor_UsesFirstAlternate(t *testing.T) {
	desc := locateDescriptor(ArchRiscv64)
	if desc.Arch != ArchRiscv64 {
		t.Fatalf("arch = %s", desc.Arch)
	}
	if desc.Prefix != alternatePrefixes[ArchRiscv64][0] {
		t.Fatalf("prefix = %q, want %q", desc.Prefix, alternatePrefixes[ArchRiscv64][0])
	}
}

func TestLocator_Locate_FindsAlternatePrefix(t *testing.T) {
	loc := &Locator{
		lookPath:     fakeLookPath("aarch64-unknown-linux-gnu-gcc"),
		versionProbe: func(string) string { return "gcc 13.2.0" },
	}

	tc, found := loc.Locate(locateDescriptor(ArchAarch64))
	if !found {
		t.Fatalf("expected toolchain to be found via alternate prefix")
	}
	if tc.Prefix != "aarch64-unknown-linux-gnu-" {
		t.Fatalf("prefix = %q", tc.Prefix)
	}
	if tc.GCCPath != "/usr/bin/aarch64-unknown-linux-gnu-gcc" {
		t.Fatalf("gcc path = %q", tc.GCCPath)
	}
	if tc.Version != "gcc 13.2.0" {
		t.Fatalf("version = %q", tc.Version)
	}
	if tc.Arch != ArchAarch64 {
		t.Fatalf("arch = %s", tc.Arch)
	}
}

func TestLocator_Locate_AbsenceIsNotAnError(t *testing.T) {
	loc := &Locator{
		lookPath:     fakeLookPath("gcc", "cc"),
		versionProbe: func(string) string { return "" },
	}
	if _, found := loc.Locate(locateDescriptor(ArchArmv7l)); found {
		t.Fatalf("host-only PATH should not yield a cross toolchain")
	}
}

func TestToolchain_Tool(t *testing.T) {
	tc := Toolchain{Prefix: "aarch64-linux-gnu-"}
	if got := tc.Tool("strip"); got != "aarch64-linux-gnu-strip" {
		t.Fatalf("Tool = %q", got)
	}
}

func TestCrossEnv_SetsToolchainAndFiltersHost(t *testing.T) {
	t.Setenv("CC", "host-cc")
	t.Setenv("CXX", "host-c++")
	t.Setenv("LDFLAGS", "-L/host/lib")
	t.Setenv("SOME_HOST_VAR", "kept")

	tc := Toolchain{Arch: ArchAarch64, Prefix: "aarch64-linux-gnu-"}
	env := crossEnv(tc, 4)

	want := map[string]string{
		"CC":            "aarch64-linux-gnu-gcc",
		"CXX":           "aarch64-linux-gnu-g++",
		"AR":            "aarch64-linux-gnu-ar",
		"RANLIB":        "aarch64-linux-gnu-ranlib",
		"STRIP":         "aarch64-linux-gnu-strip",
		"CROSS_COMPILE": "aarch64-linux-gnu-",
		"MAKEFLAGS":     "-j4",
		"NANTO_TARGET":  "aarch64",
		"SOME_HOST_VAR": "kept",
	}
	for key, val := range want {
		if got := envValue(env, key); got != val {
			t.Fatalf("%s = %q, want %q", key, got, val)
		}
	}

	// The host compiler selection must be gone, not merely shadowed.
	count := 0
	for _, e := range env {
		if strings.HasPrefix(e, "CC=") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one CC entry, got %d", count)
	}
	if envValue(env, "LDFLAGS") != "" {
		t.Fatalf("host LDFLAGS leaked into the stage environment")
	}
}

func TestEnvValue_LastAssignmentWins(t *testing.T) {
	env := []string{"CC=first", "OTHER=x", "CC=second"}
	if got := envValue(env, "CC"); got != "second" {
		t.Fatalf("envValue = %q", got)
	}
	if got := envValue(env, "MISSING"); got != "" {
		t.Fatalf("missing key should yield empty, got %q", got)
	}
}
