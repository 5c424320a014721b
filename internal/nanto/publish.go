package nanto

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// remoteIndexName is the JSON index object maintained on the mirror.
const remoteIndexName = "nanto-index.json"

// IndexEntry is one published package in the remote index.
type IndexEntry struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Arch     string `json:"arch"`
	File     string `json:"file"`
	B3Sum    string `json:"b3sum"`
	Size     int64  `json:"size"`
	Uploaded string `json:"uploaded"`
}

func parseRemoteIndex(data []byte) ([]IndexEntry, error) {
	var idx []IndexEntry
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// handlePublishCommand uploads the built package plus its blake3 sidecar
// to the configured R2 mirror and refreshes the remote index.
func handlePublishCommand(cfg *Config, m *Manifest) error {
	ctx := context.Background()

	r2, err := NewR2Client(cfg)
	if err != nil {
		return err
	}

	pkgPath := m.Abs(m.Package.Output)
	if !fileExists(pkgPath) {
		return fmt.Errorf("package %s does not exist, run a build first", pkgPath)
	}

	digest, err := readChecksumSidecar(pkgPath + ".b3sum")
	if err != nil {
		debugf("sidecar missing, rehashing %s\n", pkgPath)
		digest, err = writeChecksumSidecar(pkgPath)
		if err != nil {
			return fmt.Errorf("failed to hash package: %w", err)
		}
	}

	stat, err := os.Stat(pkgPath)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Println("Fetching remote index from R2")
	var remoteIndex []IndexEntry
	if data, err := r2.DownloadFile(ctx, remoteIndexName); err != nil {
		debugf("Remote index not found or error fetching: %v\n", err)
	} else if remoteIndex, err = parseRemoteIndex(data); err != nil {
		return fmt.Errorf("failed to parse remote index: %w", err)
	}

	entry := IndexEntry{
		Name:     m.Project,
		Version:  m.Version,
		Arch:     string(m.Arch()),
		File:     filepath.Base(pkgPath),
		B3Sum:    digest,
		Size:     stat.Size(),
		Uploaded: time.Now().UTC().Format(time.RFC3339),
	}

	key := entry.Name + "-" + entry.Arch
	indexMap := make(map[string]IndexEntry)
	for _, e := range remoteIndex {
		indexMap[e.Name+"-"+e.Arch] = e
	}

	if existing, ok := indexMap[key]; ok {
		if existing.B3Sum == entry.B3Sum {
			colArrow.Print("-> ")
			colSuccess.Println("Everything up to date.")
			return nil
		}
		if compareVersions(entry.Version, existing.Version) < 0 {
			cPrintf(colWarn, "Remote has %s %s, local is older (%s)\n",
				existing.Name, existing.Version, entry.Version)
		}
	}

	colArrow.Print("-> ")
	if !askForConfirmation(colWarn, "Publish %s %s (%s)? ", entry.Name, entry.Version, entry.Arch) {
		cPrintln(colNote, "Publish canceled by user.")
		return nil
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Uploading to R2: %s\n", entry.File)
	var bar *progressbar.ProgressBar
	if stdoutIsTTY() {
		bar = progressbar.DefaultBytes(stat.Size(), "uploading")
	} else {
		bar = progressbar.DefaultBytesSilent(stat.Size(), "uploading")
	}
	if err := r2.UploadLocalFile(ctx, entry.File, pkgPath, bar); err != nil {
		return fmt.Errorf("failed to upload %s: %w", entry.File, err)
	}
	bar.Finish()

	if err := r2.UploadLocalFile(ctx, entry.File+".b3sum", pkgPath+".b3sum", nil); err != nil {
		return fmt.Errorf("failed to upload checksum sidecar: %w", err)
	}

	indexMap[key] = entry
	finalized := make([]IndexEntry, 0, len(indexMap))
	for _, e := range indexMap {
		finalized = append(finalized, e)
	}
	sort.Slice(finalized, func(i, j int) bool {
		a, b := finalized[i], finalized[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Arch < b.Arch
	})

	colArrow.Print("-> ")
	colSuccess.Println("Updating remote index")
	indexBytes, err := json.MarshalIndent(finalized, "", "  ")
	if err != nil {
		return err
	}
	if err := r2.UploadFile(ctx, remoteIndexName, indexBytes); err != nil {
		return fmt.Errorf("failed to upload index: %w", err)
	}

	reportStorageUsage(ctx, r2)

	colArrow.Print("-> ")
	colSuccess.Printf("Published %s %s for %s\n", entry.Name, entry.Version, entry.Arch)
	return nil
}

// reportStorageUsage prints the bucket's total size against the free R2
// tier. Best effort; listing failures are only logged.
func reportStorageUsage(ctx context.Context, r2 *R2Client) {
	allObjects, err := r2.ListObjects(ctx, "")
	if err != nil {
		debugf("storage report skipped: %v\n", err)
		return
	}
	var totalSize int64
	for _, obj := range allObjects {
		totalSize += obj.Size
	}

	const tenGB = 10 * 1024 * 1024 * 1024
	percent := (float64(totalSize) / float64(tenGB)) * 100
	colArrow.Print("-> ")
	colSuccess.Printf("Storage used: ")
	colNote.Printf("%s / 10 GiB (%.1f%%)\n", humanReadableSize(totalSize), percent)

	if totalSize > (tenGB * 9 / 10) {
		colWarn.Println("Warning: You are using over 90% of your free R2 storage limit!")
	}
}

// compareVersions compares dotted version strings component-wise,
// numerically where both sides parse as integers.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		} else {
			av = "0"
		}
		if i < len(bs) {
			bv = bs[i]
		} else {
			bv = "0"
		}

		ai, aerr := strconv.Atoi(av)
		bi, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if ai < bi {
				return -1
			}
			if ai > bi {
				return 1
			}
			continue
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

func humanReadableSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
