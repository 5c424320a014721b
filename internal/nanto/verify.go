package nanto

import (
	"archive/tar"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// ArtifactKind distinguishes the primary executable from the shared
// objects that ride along in the package.
type ArtifactKind int

const (
	KindExecutable ArtifactKind = iota
	KindSharedLibrary
)

func (k ArtifactKind) String() string {
	if k == KindExecutable {
		return "executable"
	}
	return "shared library"
}

// Artifact is one build output the verifier inspects.
type Artifact struct {
	Path string
	Kind ArtifactKind
	Arch Architecture
}

// VerificationResult records what the verifier observed for one artifact.
// A failed result for the primary executable is fatal; failures on shared
// libraries are reported as warnings so a partially usable package still
// reaches the operator.
type VerificationResult struct {
	Artifact Artifact
	OK       bool
	Observed string
	Err      error
}

// Fatal reports whether this result alone should fail the run.
func (r VerificationResult) Fatal() bool {
	return !r.OK && r.Artifact.Kind == KindExecutable
}

// Verifier checks build outputs against the target architecture by
// parsing ELF headers directly instead of shelling out to file(1).
type Verifier struct {
	openELF func(path string) (*elf.File, error)
	host    Architecture
}

func NewVerifier() *Verifier {
	return &Verifier{openELF: elf.Open, host: hostArchitecture()}
}

// VerifyArtifact parses the artifact's ELF header and compares class,
// machine and object type against what the target architecture demands.
func (v *Verifier) VerifyArtifact(a Artifact) VerificationResult {
	res := VerificationResult{Artifact: a}

	if !fileExists(a.Path) {
		res.Observed = "missing"
		res.Err = fmt.Errorf("artifact %s: file does not exist", a.Path)
		return res
	}

	f, err := v.openELF(a.Path)
	if err != nil {
		res.Observed = "not a recognized ELF object"
		res.Err = fmt.Errorf("artifact %s: %w", a.Path, err)
		return res
	}
	defer f.Close()

	res.Observed = fmt.Sprintf("%s %s %s", f.Class, f.Machine, f.Type)

	wantClass := a.Arch.elfClass()
	wantMachine := a.Arch.elfMachine()

	if f.Class != wantClass || f.Machine != wantMachine {
		// A header matching the build host means the native compiler
		// leaked into the build.
		if f.Class == v.host.elfClass() && f.Machine == v.host.elfMachine() {
			res.Observed += " (host architecture)"
		}
		res.Err = &VerifyError{Path: a.Path, Observed: res.Observed}
		return res
	}
	switch a.Kind {
	case KindExecutable:
		// PIE executables carry ET_DYN, so both object types pass.
		if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
			res.Err = &VerifyError{Path: a.Path, Observed: res.Observed}
			return res
		}
	case KindSharedLibrary:
		if f.Type != elf.ET_DYN {
			res.Err = &VerifyError{Path: a.Path, Observed: res.Observed}
			return res
		}
	}

	res.OK = true
	return res
}

// VerifyAll inspects every artifact and narrates each outcome. All
// artifacts are checked even after a failure so the operator sees the
// complete picture in one pass.
func (v *Verifier) VerifyAll(arts []Artifact) []VerificationResult {
	results := make([]VerificationResult, 0, len(arts))
	for _, a := range arts {
		res := v.VerifyArtifact(a)
		if res.OK {
			colArrow.Print("-> ")
			colSuccess.Printf("Verified %s %s (%s)\n", res.Artifact.Kind, filepath.Base(a.Path), res.Observed)
		} else if res.Fatal() {
			cPrintf(colError, "Verification failed for %s %s: observed %s\n", res.Artifact.Kind, a.Path, res.Observed)
		} else {
			cPrintf(colWarn, "Warning: %s %s did not verify: observed %s\n", res.Artifact.Kind, a.Path, res.Observed)
		}
		results = append(results, res)
	}
	return results
}

// openArchiveReader wraps the package file in the decompressor matching
// its suffix and hands back a tar reader plus a cleanup func.
func openArchiveReader(path string) (*tar.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	var r io.Reader = f
	closers := []func(){func() { f.Close() }}

	switch {
	case strings.HasSuffix(path, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("zstd reader for %s: %w", path, err)
		}
		closers = append(closers, zr.Close)
		r = zr
	case strings.HasSuffix(path, ".tar.gz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("gzip reader for %s: %w", path, err)
		}
		closers = append(closers, func() { gz.Close() })
		r = gz
	case strings.HasSuffix(path, ".tar.xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("xz reader for %s: %w", path, err)
		}
		r = xr
	case strings.HasSuffix(path, ".tar"):
		// No compression.
	default:
		f.Close()
		return nil, nil, fmt.Errorf("unsupported archive format: %s", path)
	}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return tar.NewReader(r), cleanup, nil
}

// VerifyPackageListing walks the archive's tar entries and confirms
// every expected artifact name appears. Entry names are matched on the
// base name so both "./bin/app" and "bin/app" layouts pass.
func (v *Verifier) VerifyPackageListing(archivePath string, expected []string) error {
	tr, cleanup, err := openArchiveReader(archivePath)
	if err != nil {
		return err
	}
	defer cleanup()

	seen := make(map[string]bool)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive %s: %w", archivePath, err)
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeSymlink && hdr.Typeflag != tar.TypeDir {
			continue
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		seen[filepath.Base(name)] = true
	}

	var missing []string
	for _, want := range expected {
		if !seen[filepath.Base(want)] {
			missing = append(missing, filepath.Base(want))
		}
	}
	if len(missing) > 0 {
		return &VerifyError{
			Path:     archivePath,
			Observed: fmt.Sprintf("archive listing is missing %s", strings.Join(missing, ", ")),
		}
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Package listing verified (%d expected entries present)\n", len(expected))
	return nil
}
