package nanto

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"
)

// hashFile computes the BLAKE3 digest of a file (32-byte output, no key).
// Used for cache completion markers and package sidecars.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	buf := make([]byte, 1<<20)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// writeChecksumSidecar writes "<digest>  <name>" next to the archive,
// b3sum-compatible so devices can verify with the system tool.
func writeChecksumSidecar(archivePath string) (string, error) {
	digest, err := hashFile(archivePath)
	if err != nil {
		return "", err
	}
	sidecar := archivePath + ".b3sum"
	line := fmt.Sprintf("%s  %s\n", digest, filepath.Base(archivePath))
	if err := os.WriteFile(sidecar, []byte(line), 0644); err != nil {
		return "", fmt.Errorf("writing checksum sidecar: %w", err)
	}
	return digest, nil
}

// readChecksumSidecar returns the digest recorded in a .b3sum sidecar.
func readChecksumSidecar(sidecarPath string) (string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file %s", sidecarPath)
	}
	return fields[0], nil
}
