package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpu-log-summary/backend/internal/parser"
	"github.com/gpu-log-summary/backend/internal/summary"
	"github.com/gpu-log-summary/backend/internal/testutil"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs([]string{"-concurrency", "3", "logs"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "logs", opts.logDir)
	assert.Equal(t, "", opts.output)
	assert.Equal(t, 3, opts.concurrency)

	opts, err = parseArgs([]string{"logs", "out.json"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "out.json", opts.output)

	_, err = parseArgs(nil, io.Discard)
	assert.Error(t, err)
	_, err = parseArgs([]string{"a", "b", "c"}, io.Discard)
	assert.Error(t, err)
}

func TestRun_Stdout(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLog(t, dir, "node-a.log", testutil.TimestampedLog)

	opts, err := parseArgs([]string{dir}, io.Discard)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out, quiet))

	text := out.String()
	assert.True(t, strings.HasSuffix(text, "}\n"))
	assert.Contains(t, text, "\n  \"log_dir\": ")
	// Keys are sorted at every level.
	assert.Less(t, strings.Index(text, `"end_ts"`), strings.Index(text, `"gpus"`))
	assert.Less(t, strings.Index(text, `"gpus"`), strings.Index(text, `"log_file"`))
	assert.Less(t, strings.Index(text, `"avg"`), strings.Index(text, `"max"`))
	assert.Less(t, strings.Index(text, `"max"`), strings.Index(text, `"p95"`))

	var doc struct {
		Nodes map[string]struct {
			StartTS int64 `json:"start_ts"`
			GPUs    map[string]map[string]map[string]float64
		} `json:"nodes"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, int64(100), doc.Nodes["node-a"].StartTS)
	assert.Equal(t, 54.5, doc.Nodes["node-a"].GPUs["0"]["gpu_util_pct"]["p95"])
	assert.NotNil(t, doc.Warnings)
}

func TestRun_OutputFileAndReadings(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLog(t, dir, "node-a.log", testutil.TimestampedLog)
	outDir := t.TempDir()
	outPath := filepath.Join(outDir, "summary.json")
	dbPath := filepath.Join(outDir, "readings.duckdb")

	opts, err := parseArgs([]string{"-readings", dbPath, dir, outPath}, io.Discard)
	require.NoError(t, err)
	require.NoError(t, run(context.Background(), opts, io.Discard, quiet))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"node-a"`)

	store, err := parser.OpenReadingStoreReadOnly(dbPath, parser.DefaultReadingStoreOptions())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 2, store.Len())
}

func TestRun_Rules(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLog(t, dir, "node-a.log", "GPU[0] : GPU Activity (%) : 33\n")
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(
		"labels:\n  - match: exact\n    label: \"GPU Activity (%)\"\n    metric: gpu_util_pct\n"), 0644))

	opts, err := parseArgs([]string{"-rules", rules, dir}, io.Discard)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out, quiet))
	assert.Contains(t, out.String(), `"gpu_util_pct"`)
	assert.NotContains(t, out.String(), "No parseable metrics")
}

func TestRun_MissingDir(t *testing.T) {
	opts, err := parseArgs([]string{filepath.Join(t.TempDir(), "missing")}, io.Discard)
	require.NoError(t, err)

	err = run(context.Background(), opts, io.Discard, quiet)
	assert.ErrorIs(t, err, summary.ErrLogDir)
}
