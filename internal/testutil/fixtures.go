package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// TimestampedLog is a two-sample key/value log for GPU 0: use 45 then 55.
const TimestampedLog = `ts=100
GPU[0] : GPU use (%) : 45
ts=200
GPU[0] : GPU use (%) : 55
`

// TableLog is a single-sample concise table for GPUs 0 and 1.
const TableLog = `ts=1700000000
=========== ROCm System Management Interface ===========
GPU  Temp   AvgPwr  SCLK     MCLK     Fan  Perf  PwrCap  VRAM%  GPU%
0    45.0c  120.0W  1500Mhz  1200Mhz  0%   auto  300.0W  10%    30%
1    50.0c  130.0W  1600Mhz  1200Mhz  0%   auto  300.0W  20%    40%
========================================================
`

// Lines joins lines with newlines and adds a trailing newline.
func Lines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// WriteLog writes content to dir/name. Names ending in .gz or .zst are
// compressed accordingly.
func WriteLog(t testing.TB, dir, name, content string) string {
	t.Helper()

	data := []byte(content)
	switch {
	case strings.HasSuffix(name, ".gz"):
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			t.Fatalf("gzip %s: %v", name, err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip %s: %v", name, err)
		}
		data = buf.Bytes()
	case strings.HasSuffix(name, ".zst"):
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
