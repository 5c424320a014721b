package nanto

import (
	"testing"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.2.0", "1.10.0", -1}, // numeric, not lexicographic
		{"2.0", "1.9.9", 1},
		{"1.0", "1.0.0", 0}, // missing components read as zero
		{"1.0.1", "1.0", 1},
		{"1.0.rc1", "1.0.rc2", -1}, // falls back to string compare
	}
	for _, tc := range cases {
		if got := compareVersions(tc.a, tc.b); got != tc.want {
			t.Fatalf("compareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestHumanReadableSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{10 * 1024 * 1024 * 1024, "10.0 GiB"},
	}
	for _, tc := range cases {
		if got := humanReadableSize(tc.in); got != tc.want {
			t.Fatalf("humanReadableSize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseRemoteIndex(t *testing.T) {
	data := []byte(`[
  {"name":"hello","version":"1.2.0","arch":"aarch64","file":"hello-1.2.0-aarch64.tar.zst","b3sum":"abc","size":1024,"uploaded":"2026-08-01T10:00:00Z"},
  {"name":"probe","version":"0.3.1","arch":"armv7l","file":"probe-0.3.1-armv7l.tar.gz","b3sum":"def","size":2048,"uploaded":"2026-07-15T09:30:00Z"}
]`)

	idx, err := parseRemoteIndex(data)
	if err != nil {
		t.Fatalf("parseRemoteIndex: %v", err)
	}
	if len(idx) != 2 {
		t.Fatalf("entries = %d", len(idx))
	}
	if idx[0].Name != "hello" || idx[0].Arch != "aarch64" || idx[0].Size != 1024 {
		t.Fatalf("first entry = %+v", idx[0])
	}
	if idx[1].B3Sum != "def" {
		t.Fatalf("second entry = %+v", idx[1])
	}

	if _, err := parseRemoteIndex([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed index")
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := []struct{ key, want string }{
		{"nanto-index.json", "application/json"},
		{"hello-1.0.0-aarch64.tar.zst", "application/zstd"},
		{"hello-1.0.0-aarch64.tar.gz", "application/gzip"},
		{"hello-1.0.0-aarch64.tar.xz", "application/x-xz"},
		{"hello-1.0.0-aarch64.tar.zst.b3sum", "text/plain"},
		{"mystery.bin", "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := contentTypeForKey(tc.key); got != tc.want {
			t.Fatalf("contentTypeForKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
