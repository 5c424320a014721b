package nanto

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

// tarFormatFlag maps a package format to the system tar compression flag.
var tarFormatFlag = map[string]string{
	FormatTarZst: "--zstd",
	FormatTarGz:  "-z",
	FormatTarXz:  "-J",
}

// createPackageArchive bundles the manifest's include list into the
// configured output archive. It prefers system tar and falls back to a
// pure-Go tar pipeline when tar is unavailable or fails. The archive's
// blake3 sidecar is written next to it on success.
func createPackageArchive(m *Manifest, execCtx *Executor) (string, error) {
	outPath := m.Abs(m.Package.Output)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	// Fail loudly before any archive exists when an include is missing.
	// Includes may be files or whole directories.
	for _, inc := range m.Package.Include {
		if _, err := os.Lstat(m.Abs(inc)); err != nil {
			return "", fmt.Errorf("package include %s: path does not exist", inc)
		}
	}

	if _, err := exec.LookPath("tar"); err == nil {
		if err := systemTarPackage(m, outPath, execCtx); err == nil {
			if _, err := writeChecksumSidecar(outPath); err != nil {
				return "", fmt.Errorf("checksum sidecar: %w", err)
			}
			colArrow.Print("-> ")
			colSuccess.Printf("Package archive created: %s\n", outPath)
			return outPath, nil
		}
		debugf("system tar packaging failed, falling back to internal writer\n")
	}

	if err := nativeTarPackage(m, outPath); err != nil {
		return "", err
	}
	if _, err := writeChecksumSidecar(outPath); err != nil {
		return "", fmt.Errorf("checksum sidecar: %w", err)
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Package archive created: %s\n", outPath)
	return outPath, nil
}

func systemTarPackage(m *Manifest, outPath string, execCtx *Executor) error {
	args := []string{tarFormatFlag[m.Package.Format], "-cf", outPath,
		"--owner=0", "--group=0", "--numeric-owner", "-C", m.baseDir}
	args = append(args, m.Package.Include...)

	tarCmd := exec.Command("tar", args...)
	tarCmd.Stdout = io.Discard
	tarCmd.Stderr = io.Discard
	debugf("Creating package archive with system tar: %s\n", outPath)
	if execCtx != nil {
		return execCtx.Run(tarCmd)
	}
	return tarCmd.Run()
}

// packageWriter wraps the output file in the compressor matching the
// manifest format.
func packageWriter(format string, out io.Writer) (io.WriteCloser, error) {
	switch format {
	case FormatTarZst:
		return zstd.NewWriter(out)
	case FormatTarGz:
		return pgzip.NewWriter(out), nil
	case FormatTarXz:
		return xz.NewWriter(out)
	}
	return nil, fmt.Errorf("unsupported package format: %s", format)
}

func nativeTarPackage(m *Manifest, outPath string) error {
	debugf("Creating package archive internally: %s\n", outPath)

	var total int64
	for _, inc := range m.Package.Include {
		filepath.Walk(m.Abs(inc), func(_ string, info os.FileInfo, err error) error {
			if err == nil && info.Mode().IsRegular() {
				total += info.Size()
			}
			return nil
		})
	}
	var bar *progressbar.ProgressBar
	if stdoutIsTTY() {
		bar = progressbar.DefaultBytes(total, "packaging")
	} else {
		bar = progressbar.DefaultBytesSilent(total, "packaging")
	}
	defer bar.Finish()

	outFile, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer outFile.Close()

	cw, err := packageWriter(m.Package.Format, outFile)
	if err != nil {
		return err
	}
	defer cw.Close()

	tw := tar.NewWriter(cw)
	defer tw.Close()

	for _, inc := range m.Package.Include {
		if err := addTarEntry(tw, m.Abs(inc), inc, bar); err != nil {
			return fmt.Errorf("add %s to archive: %w", inc, err)
		}
	}
	return nil
}

// addTarEntry writes one include into the archive under its
// manifest-relative name, walking directory includes recursively.
func addTarEntry(tw *tar.Writer, path, name string, bar *progressbar.ProgressBar) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return writeTarEntry(tw, path, name, info, bar)
	}
	return filepath.Walk(path, func(sub string, subInfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, sub)
		if err != nil {
			return err
		}
		entryName := name
		if rel != "." {
			entryName = filepath.Join(name, rel)
		}
		return writeTarEntry(tw, sub, entryName, subInfo, bar)
	})
}

// writeTarEntry emits one header plus body. Entries are root-owned so
// the unpacked tree is portable across devices.
func writeTarEntry(tw *tar.Writer, path, name string, info os.FileInfo, bar *progressbar.ProgressBar) error {
	var linkTarget string
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", path, err)
		}
		linkTarget = target
	}

	hdr, err := tar.FileInfoHeader(info, linkTarget)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(name)
	if info.IsDir() {
		hdr.Name += "/"
	}
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "root", "root"

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(io.MultiWriter(tw, bar), f); err != nil {
			return err
		}
	}
	return nil
}
