package nanto

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeELF emits a minimal valid ELF header (no sections, no program
// headers), enough for debug/elf to report class, machine and type.
func writeELF(t *testing.T, path string, class elf.Class, machine elf.Machine, etype elf.Type) {
	t.Helper()

	var buf bytes.Buffer
	ident := make([]byte, 16)
	copy(ident, "\x7fELF")
	ident[4] = byte(class)
	ident[5] = byte(elf.ELFDATA2LSB)
	ident[6] = 1 // EV_CURRENT
	buf.Write(ident)

	le := binary.LittleEndian
	w16 := func(v uint16) { binary.Write(&buf, le, v) }
	w32 := func(v uint32) { binary.Write(&buf, le, v) }
	w64 := func(v uint64) { binary.Write(&buf, le, v) }

	w16(uint16(etype))
	w16(uint16(machine))
	w32(1) // file version
	if class == elf.ELFCLASS64 {
		w64(0)  // entry
		w64(0)  // phoff
		w64(0)  // shoff
		w32(0)  // flags
		w16(64) // ehsize
		w16(56) // phentsize
		w16(0)  // phnum
		w16(64) // shentsize
		w16(0)  // shnum
		w16(0)  // shstrndx
	} else {
		w32(0)
		w32(0)
		w32(0)
		w32(0)
		w16(52)
		w16(32)
		w16(0)
		w16(40)
		w16(0)
		w16(0)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestVerifyArtifact_MatchingExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello")
	writeELF(t, path, elf.ELFCLASS64, elf.EM_AARCH64, elf.ET_EXEC)

	v := NewVerifier()
	res := v.VerifyArtifact(Artifact{Path: path, Kind: KindExecutable, Arch: ArchAarch64})
	if !res.OK {
		t.Fatalf("expected OK, got err %v (observed %q)", res.Err, res.Observed)
	}
	if res.Fatal() {
		t.Fatalf("passing result reported fatal")
	}
	if !strings.Contains(res.Observed, "EM_AARCH64") {
		t.Fatalf("observed = %q", res.Observed)
	}
}

func TestVerifyArtifact_PIEExecutableAccepted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello")
	writeELF(t, path, elf.ELFCLASS64, elf.EM_AARCH64, elf.ET_DYN)

	v := NewVerifier()
	res := v.VerifyArtifact(Artifact{Path: path, Kind: KindExecutable, Arch: ArchAarch64})
	if !res.OK {
		t.Fatalf("ET_DYN executables are position independent and must pass, got %v", res.Err)
	}
}

func TestVerifyArtifact_WrongMachineIsFatalForExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello")
	writeELF(t, path, elf.ELFCLASS64, elf.EM_X86_64, elf.ET_EXEC)

	v := NewVerifier()
	res := v.VerifyArtifact(Artifact{Path: path, Kind: KindExecutable, Arch: ArchAarch64})
	if res.OK {
		t.Fatalf("host-arch binary must not verify for aarch64")
	}
	if !res.Fatal() {
		t.Fatalf("executable mismatch must be fatal")
	}
	var vErr *VerifyError
	if !errors.As(res.Err, &vErr) {
		t.Fatalf("expected *VerifyError, got %T", res.Err)
	}
	if !strings.Contains(vErr.Observed, "EM_X86_64") {
		t.Fatalf("observed = %q", vErr.Observed)
	}
}

func TestVerifyArtifact_AnnotatesHostArchitectureLeak(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello")
	writeELF(t, path, elf.ELFCLASS64, elf.EM_X86_64, elf.ET_EXEC)

	v := NewVerifier()
	v.host = ArchX86_64
	res := v.VerifyArtifact(Artifact{Path: path, Kind: KindExecutable, Arch: ArchAarch64})
	if res.OK {
		t.Fatalf("x86_64 binary must not verify for aarch64")
	}
	if !strings.Contains(res.Observed, "(host architecture)") {
		t.Fatalf("observed = %q, want the host annotation", res.Observed)
	}

	// A mismatch against some third architecture carries no annotation.
	other := filepath.Join(dir, "other")
	writeELF(t, other, elf.ELFCLASS64, elf.EM_RISCV, elf.ET_EXEC)
	res = v.VerifyArtifact(Artifact{Path: other, Kind: KindExecutable, Arch: ArchAarch64})
	if res.OK {
		t.Fatalf("riscv64 binary must not verify for aarch64")
	}
	if strings.Contains(res.Observed, "(host architecture)") {
		t.Fatalf("observed = %q, annotation should only name the host", res.Observed)
	}
}

func TestVerifyArtifact_WrongClass32Bit(t *testing.T) {
	dir := t.TempDir()

	// armv7l wants ELFCLASS32; a 64-bit object must fail.
	path64 := filepath.Join(dir, "app64")
	writeELF(t, path64, elf.ELFCLASS64, elf.EM_ARM, elf.ET_EXEC)
	v := NewVerifier()
	if res := v.VerifyArtifact(Artifact{Path: path64, Kind: KindExecutable, Arch: ArchArmv7l}); res.OK {
		t.Fatalf("64-bit object must not verify for armv7l")
	}

	// And the correct 32-bit object passes.
	path32 := filepath.Join(dir, "app32")
	writeELF(t, path32, elf.ELFCLASS32, elf.EM_ARM, elf.ET_EXEC)
	if res := v.VerifyArtifact(Artifact{Path: path32, Kind: KindExecutable, Arch: ArchArmv7l}); !res.OK {
		t.Fatalf("32-bit ARM object should verify for armv7l: %v", res.Err)
	}
}

func TestVerifyArtifact_SharedLibraryRules(t *testing.T) {
	dir := t.TempDir()

	lib := filepath.Join(dir, "libhello.so")
	writeELF(t, lib, elf.ELFCLASS64, elf.EM_AARCH64, elf.ET_DYN)
	v := NewVerifier()
	if res := v.VerifyArtifact(Artifact{Path: lib, Kind: KindSharedLibrary, Arch: ArchAarch64}); !res.OK {
		t.Fatalf("ET_DYN library should verify: %v", res.Err)
	}

	// A library with an executable object type fails, but only as a warning.
	odd := filepath.Join(dir, "libodd.so")
	writeELF(t, odd, elf.ELFCLASS64, elf.EM_AARCH64, elf.ET_EXEC)
	res := v.VerifyArtifact(Artifact{Path: odd, Kind: KindSharedLibrary, Arch: ArchAarch64})
	if res.OK {
		t.Fatalf("ET_EXEC library must not verify")
	}
	if res.Fatal() {
		t.Fatalf("shared library mismatch must stay a warning")
	}
}

func TestVerifyArtifact_MissingAndGarbage(t *testing.T) {
	dir := t.TempDir()
	v := NewVerifier()

	res := v.VerifyArtifact(Artifact{Path: filepath.Join(dir, "absent"), Kind: KindExecutable, Arch: ArchAarch64})
	if res.OK || res.Observed != "missing" {
		t.Fatalf("missing artifact: OK=%v observed=%q", res.OK, res.Observed)
	}

	garbage := filepath.Join(dir, "script.sh")
	if err := os.WriteFile(garbage, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	res = v.VerifyArtifact(Artifact{Path: garbage, Kind: KindExecutable, Arch: ArchAarch64})
	if res.OK {
		t.Fatalf("shell script must not verify as an ELF object")
	}
	if !strings.Contains(res.Observed, "not a recognized ELF object") {
		t.Fatalf("observed = %q", res.Observed)
	}
}

func TestVerifyAll_ChecksEverythingDespiteFailures(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "hello")
	lib := filepath.Join(dir, "libhello.so")
	writeELF(t, app, elf.ELFCLASS64, elf.EM_X86_64, elf.ET_EXEC) // wrong machine
	writeELF(t, lib, elf.ELFCLASS64, elf.EM_AARCH64, elf.ET_DYN)

	v := NewVerifier()
	results := v.VerifyAll([]Artifact{
		{Path: app, Kind: KindExecutable, Arch: ArchAarch64},
		{Path: lib, Kind: KindSharedLibrary, Arch: ArchAarch64},
	})
	if len(results) != 2 {
		t.Fatalf("expected both artifacts checked, got %d results", len(results))
	}
	if results[0].OK || !results[0].Fatal() {
		t.Fatalf("first result should be a fatal failure")
	}
	if !results[1].OK {
		t.Fatalf("second artifact should still have been verified: %v", results[1].Err)
	}
}

func TestVerifyPackageListing_RoundTrip(t *testing.T) {
	base := t.TempDir()
	m := &Manifest{
		Project: "hello",
		Version: "1.0.0",
		Target:  "aarch64",
		App:     AppSpec{StageSpec: StageSpec{Command: "make", Artifact: "build/hello"}},
		Package: PackageSpec{
			Format:  FormatTarZst,
			Output:  "dist/hello-1.0.0-aarch64.tar.zst",
			Include: []string{"build/hello", "build/libhello.so"},
		},
		baseDir: base,
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	touchFile(t, m.Abs("build/hello"), "app bytes")
	touchFile(t, m.Abs("build/libhello.so"), "lib bytes")
	if err := os.MkdirAll(m.Abs("dist"), 0o755); err != nil {
		t.Fatalf("mkdir dist: %v", err)
	}
	if err := nativeTarPackage(m, m.Abs(m.Package.Output)); err != nil {
		t.Fatalf("nativeTarPackage: %v", err)
	}

	v := NewVerifier()
	if err := v.VerifyPackageListing(m.Abs(m.Package.Output), m.Package.Include); err != nil {
		t.Fatalf("VerifyPackageListing: %v", err)
	}

	err := v.VerifyPackageListing(m.Abs(m.Package.Output), []string{"build/hello", "build/ghost.so"})
	if err == nil {
		t.Fatalf("expected missing-entry error")
	}
	if !strings.Contains(err.Error(), "ghost.so") {
		t.Fatalf("error does not name the missing entry: %v", err)
	}
}

func TestOpenArchiveReader_RejectsUnknownSuffix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.rar")
	if err := os.WriteFile(path, []byte("junk"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := openArchiveReader(path); err == nil {
		t.Fatalf("expected unsupported-format error")
	}
}
