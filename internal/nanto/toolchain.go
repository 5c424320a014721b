package nanto

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// PackageManager identifies the host installer used for provisioning.
type PackageManager string

const (
	PMBrew   PackageManager = "brew"
	PMApt    PackageManager = "apt-get"
	PMPacman PackageManager = "pacman"
)

// ToolchainDescriptor is the static provisioning recipe for one target
// architecture on one package manager. The prefix uniquely determines every
// tool name by concatenation (<prefix>gcc, <prefix>g++, <prefix>strip).
type ToolchainDescriptor struct {
	Arch    Architecture
	Prefix  string
	Package string
	Tap     string // extension channel; empty for managers without taps
}

// descriptorTable maps (architecture, package manager) to the recipe that
// provisions its cross compiler.
var descriptorTable = map[Architecture]map[PackageManager]ToolchainDescriptor{
	ArchAarch64: {
		PMBrew:   {ArchAarch64, "aarch64-unknown-linux-gnu-", "aarch64-unknown-linux-gnu", "messense/macos-cross-toolchains"},
		PMApt:    {ArchAarch64, "aarch64-linux-gnu-", "gcc-aarch64-linux-gnu", ""},
		PMPacman: {ArchAarch64, "aarch64-linux-gnu-", "aarch64-linux-gnu-gcc", ""},
	},
	ArchArmv7l: {
		PMBrew:   {ArchArmv7l, "arm-unknown-linux-gnueabihf-", "arm-unknown-linux-gnueabihf", "messense/macos-cross-toolchains"},
		PMApt:    {ArchArmv7l, "arm-linux-gnueabihf-", "gcc-arm-linux-gnueabihf", ""},
		PMPacman: {ArchArmv7l, "arm-linux-gnueabihf-", "arm-linux-gnueabihf-gcc", ""},
	},
	ArchX86_64: {
		PMBrew:   {ArchX86_64, "x86_64-unknown-linux-gnu-", "x86_64-unknown-linux-gnu", "messense/macos-cross-toolchains"},
		PMApt:    {ArchX86_64, "x86_64-linux-gnu-", "gcc-x86-64-linux-gnu", ""},
		PMPacman: {ArchX86_64, "x86_64-linux-gnu-", "x86_64-linux-gnu-gcc", ""},
	},
	ArchRiscv64: {
		PMBrew:   {ArchRiscv64, "riscv64-unknown-linux-gnu-", "riscv64-unknown-linux-gnu", "messense/macos-cross-toolchains"},
		PMApt:    {ArchRiscv64, "riscv64-linux-gnu-", "gcc-riscv64-linux-gnu", ""},
		PMPacman: {ArchRiscv64, "riscv64-linux-gnu-", "riscv64-linux-gnu-gcc", ""},
	},
}

// alternatePrefixes lists the prefixes a target's compiler is commonly
// installed under, probed in order. The descriptor's own prefix is tried
// first by the locator.
var alternatePrefixes = map[Architecture][]string{
	ArchAarch64: {"aarch64-linux-gnu-", "aarch64-unknown-linux-gnu-", "aarch64-linux-musl-"},
	ArchArmv7l:  {"arm-linux-gnueabihf-", "arm-unknown-linux-gnueabihf-", "arm-linux-musleabihf-"},
	ArchX86_64:  {"x86_64-linux-gnu-", "x86_64-unknown-linux-gnu-", "x86_64-linux-musl-"},
	ArchRiscv64: {"riscv64-linux-gnu-", "riscv64-unknown-linux-gnu-", "riscv64-linux-musl-"},
}

// detectPackageManager returns the first supported installer on PATH.
func detectPackageManager(lookPath func(string) (string, error)) (PackageManager, error) {
	for _, pm := range []PackageManager{PMBrew, PMApt, PMPacman} {
		if _, err := lookPath(string(pm)); err == nil {
			return pm, nil
		}
	}
	return "", fmt.Errorf("no supported package manager on PATH (brew, apt-get, pacman)")
}

// locateDescriptor is enough to probe PATH before any package manager has
// been detected; the locator falls through the alternate prefixes itself.
func locateDescriptor(arch Architecture) ToolchainDescriptor {
	desc := ToolchainDescriptor{Arch: arch}
	if alts := alternatePrefixes[arch]; len(alts) > 0 {
		desc.Prefix = alts[0]
	}
	return desc
}

// descriptorFor picks the provisioning recipe for a target on the detected
// package manager.
func descriptorFor(arch Architecture, pm PackageManager) (ToolchainDescriptor, error) {
	byPM, ok := descriptorTable[arch]
	if !ok {
		return ToolchainDescriptor{}, fmt.Errorf("no toolchain recipe for architecture %s", arch)
	}
	desc, ok := byPM[pm]
	if !ok {
		return ToolchainDescriptor{}, fmt.Errorf("no toolchain recipe for %s via %s", arch, pm)
	}
	return desc, nil
}

// Toolchain is a resolved cross compiler: the prefix that was actually found
// on PATH plus the compiler's location and version banner. It is threaded
// explicitly through stage construction; nothing reads it from process env.
type Toolchain struct {
	Arch    Architecture
	Prefix  string
	GCCPath string
	Version string
}

// Tool returns the path-name of a prefixed tool (gcc, g++, ar, strip, ...).
func (t Toolchain) Tool(name string) string { return t.Prefix + name }

// Locator finds an installed cross compiler for a descriptor. lookPath and
// versionProbe are swappable for tests; zero value is not usable, use
// NewLocator.
type Locator struct {
	lookPath     func(string) (string, error)
	versionProbe func(gccPath string) string
}

func NewLocator() *Locator {
	return &Locator{
		lookPath:     exec.LookPath,
		versionProbe: probeGCCVersion,
	}
}

// Locate queries PATH for <prefix>gcc, trying the descriptor's prefix first
// and then the well-known alternates for the same target. Absence is a
// normal outcome, not an error; the probe never builds anything.
func (l *Locator) Locate(desc ToolchainDescriptor) (Toolchain, bool) {
	prefixes := []string{desc.Prefix}
	for _, alt := range alternatePrefixes[desc.Arch] {
		if alt != desc.Prefix {
			prefixes = append(prefixes, alt)
		}
	}

	for _, prefix := range prefixes {
		gcc := prefix + "gcc"
		path, err := l.lookPath(gcc)
		if err != nil {
			continue
		}
		tc := Toolchain{
			Arch:    desc.Arch,
			Prefix:  prefix,
			GCCPath: path,
			Version: l.versionProbe(path),
		}
		debugf("located %s at %s (%s)\n", gcc, path, tc.Version)
		return tc, true
	}
	return Toolchain{}, false
}

// probeGCCVersion runs the compiler once with --version and keeps the banner
// line. Best effort; an empty string just means the banner is unknown.
func probeGCCVersion(gccPath string) string {
	out, err := exec.Command(gccPath, "--version").Output()
	if err != nil {
		return ""
	}
	if i := strings.IndexByte(string(out), '\n'); i > 0 {
		return strings.TrimSpace(string(out[:i]))
	}
	return strings.TrimSpace(string(out))
}

// crossEnv builds the environment for dependency and project stages.
// Start with the process environment, but filter out the host compiler
// selection so our values take precedence, then append the toolchain
// variables in deterministic order. Every nested build tool resolves its
// compiler from these, never from the host defaults.
func crossEnv(tc Toolchain, jobs int) []string {
	env := []string{}
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "CC=") || strings.HasPrefix(e, "CXX=") ||
			strings.HasPrefix(e, "CFLAGS=") || strings.HasPrefix(e, "CXXFLAGS=") ||
			strings.HasPrefix(e, "LDFLAGS=") || strings.HasPrefix(e, "CROSS_COMPILE=") {
			continue
		}
		env = append(env, e)
	}

	defaults := map[string]string{
		"CROSS_COMPILE":              tc.Prefix,
		"CC":                         tc.Tool("gcc"),
		"CXX":                        tc.Tool("g++"),
		"AR":                         tc.Tool("ar"),
		"RANLIB":                     tc.Tool("ranlib"),
		"STRIP":                      tc.Tool("strip"),
		"PKG_CONFIG":                 tc.Tool("pkg-config"),
		"MAKEFLAGS":                  fmt.Sprintf("-j%d", jobs),
		"CMAKE_BUILD_PARALLEL_LEVEL": fmt.Sprintf("%d", jobs),
		"NANTO_TARGET":               string(tc.Arch),
	}

	// Sort keys for deterministic order
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, defaults[k]))
	}
	return env
}

// envValue extracts a variable from an env slice; last assignment wins.
func envValue(env []string, key string) string {
	val := ""
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			val = strings.TrimPrefix(e, prefix)
		}
	}
	return val
}
