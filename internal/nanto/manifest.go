package nanto

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultManifestName is looked up in the working directory when no -m flag
// is given.
const DefaultManifestName = "nanto.yaml"

// Supported package archive formats.
const (
	FormatTarZst = "tar.zst"
	FormatTarGz  = "tar.gz"
	FormatTarXz  = "tar.xz"
)

// Manifest describes one cross-compiled project: the two command stages, the
// package to assemble and the optional deploy target. Loaded once at process
// start and never mutated.
type Manifest struct {
	Project string `yaml:"project"`
	Version string `yaml:"version"`
	Target  string `yaml:"target"`

	Library StageSpec   `yaml:"library"`
	App     AppSpec     `yaml:"app"`
	Package PackageSpec `yaml:"package"`
	Device  DeviceSpec  `yaml:"device"`

	// resolved from Target by Validate
	arch Architecture

	// baseDir is the directory the manifest was loaded from; all relative
	// paths in the manifest resolve against it.
	baseDir string
}

// StageSpec declares a command stage: where to run, what to run, and the
// artifact the command must leave behind.
type StageSpec struct {
	Dir      string `yaml:"dir"`
	Command  string `yaml:"command"`
	Artifact string `yaml:"artifact"`
}

// AppSpec is the project stage plus its secondary shared-library artifacts.
type AppSpec struct {
	StageSpec `yaml:",inline"`
	Extra     []string `yaml:"extra"`
}

// PackageSpec declares the distributable archive.
type PackageSpec struct {
	Format  string   `yaml:"format"`
	Output  string   `yaml:"output"`
	Include []string `yaml:"include"`
}

// DeviceSpec names the remote deploy target.
type DeviceSpec struct {
	Target  string `yaml:"target"` // user@host
	Dir     string `yaml:"dir"`    // remote install root
	Timeout int    `yaml:"timeout"`
}

// LoadManifest reads and parses a project manifest from the given YAML path.
// A NANTO_TARGET override replaces the manifest's target before defaults are
// applied, so derived names (package output) pick it up too.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest YAML: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	m.baseDir = filepath.Dir(abs)

	if TargetOverride != "" {
		m.Target = TargetOverride
	}
	applyManifestDefaults(&m)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// applyManifestDefaults fills in the values most projects never set.
func applyManifestDefaults(m *Manifest) {
	if m.Target == "" {
		m.Target = string(ArchAarch64)
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	if m.Library.Dir == "" {
		m.Library.Dir = "."
	}
	if m.App.Dir == "" {
		m.App.Dir = "."
	}
	if m.Package.Format == "" {
		m.Package.Format = FormatTarZst
	}
	if m.Package.Output == "" && m.Project != "" {
		m.Package.Output = filepath.Join("dist",
			fmt.Sprintf("%s-%s-%s.%s", m.Project, m.Version, m.Target, m.Package.Format))
	}
	if len(m.Package.Include) == 0 {
		m.Package.Include = append(m.Package.Include, m.App.Artifact)
		if m.Library.Artifact != "" {
			m.Package.Include = append(m.Package.Include, m.Library.Artifact)
		}
		m.Package.Include = append(m.Package.Include, m.App.Extra...)
	}
	if m.Device.Timeout <= 0 {
		m.Device.Timeout = 10
	}
}

// Validate rejects manifests the pipeline cannot act on.
func (m *Manifest) Validate() error {
	if m.Project == "" {
		return fmt.Errorf("manifest: project name is required")
	}
	arch, err := ParseArchitecture(m.Target)
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	m.arch = arch

	if m.App.Command == "" {
		return fmt.Errorf("manifest: app.command is required")
	}
	if m.App.Artifact == "" {
		return fmt.Errorf("manifest: app.artifact is required")
	}
	if m.Library.Command != "" && m.Library.Artifact == "" {
		return fmt.Errorf("manifest: library.artifact is required when library.command is set")
	}
	switch m.Package.Format {
	case FormatTarZst, FormatTarGz, FormatTarXz:
	default:
		return fmt.Errorf("manifest: unsupported package format %q (tar.zst, tar.gz, tar.xz)", m.Package.Format)
	}
	if !strings.HasSuffix(m.Package.Output, "."+m.Package.Format) {
		return fmt.Errorf("manifest: package.output %q does not match format %q", m.Package.Output, m.Package.Format)
	}
	return nil
}

// Arch returns the parsed target architecture.
func (m *Manifest) Arch() Architecture { return m.arch }

// HasLibrary reports whether the manifest declares a dependency-library stage.
func (m *Manifest) HasLibrary() bool { return m.Library.Command != "" }

// Abs resolves a manifest-relative path against the manifest's directory.
func (m *Manifest) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(m.baseDir, rel)
}

// Artifacts lists everything the verifier must inspect: the primary
// executable first, then the library and extra shared objects.
func (m *Manifest) Artifacts() []Artifact {
	arts := []Artifact{{
		Path: m.Abs(m.App.Artifact),
		Kind: KindExecutable,
		Arch: m.arch,
	}}
	if m.HasLibrary() {
		arts = append(arts, Artifact{
			Path: m.Abs(m.Library.Artifact),
			Kind: KindSharedLibrary,
			Arch: m.arch,
		})
	}
	for _, extra := range m.App.Extra {
		arts = append(arts, Artifact{
			Path: m.Abs(extra),
			Kind: KindSharedLibrary,
			Arch: m.arch,
		})
	}
	return arts
}

// findManifest resolves the manifest path from a -m flag or the default name.
func findManifest(flagPath string) (string, error) {
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err != nil {
			return "", fmt.Errorf("manifest %s: %w", flagPath, err)
		}
		return flagPath, nil
	}
	if _, err := os.Stat(DefaultManifestName); err != nil {
		return "", fmt.Errorf("no %s in current directory (use -m to point at one)", DefaultManifestName)
	}
	return DefaultManifestName, nil
}
