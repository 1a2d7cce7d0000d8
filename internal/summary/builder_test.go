package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpu-log-summary/backend/internal/models"
	"github.com/gpu-log-summary/backend/internal/observability"
	logs "github.com/gpu-log-summary/backend/internal/testutil"
)

type recordingSink struct {
	mu       sync.Mutex
	readings []models.Reading
	err      error
}

func (s *recordingSink) AddReadings(readings []models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.readings = append(s.readings, readings...)
	return nil
}

func TestSummarize_TimestampedKeyValueLog(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "node-a.log", logs.TimestampedLog)

	report, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.NoError(t, err)

	assert.Empty(t, report.Warnings)
	require.Contains(t, report.Nodes, "node-a")
	node := report.Nodes["node-a"]

	assert.Equal(t, 2, node.Samples)
	require.NotNil(t, node.StartTS)
	require.NotNil(t, node.EndTS)
	assert.Equal(t, int64(100), *node.StartTS)
	assert.Equal(t, int64(200), *node.EndTS)
	assert.Equal(t, filepath.Join(dir, "node-a.log"), node.LogFile)

	stat := node.GPUs["0"][models.MetricGPUUtil]
	assert.InDelta(t, 50.0, stat.Avg, 1e-9)
	assert.InDelta(t, 54.5, stat.P95, 1e-9)
	assert.InDelta(t, 55.0, stat.Max, 1e-9)
}

func TestSummarize_TableLog(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "node-t.log", logs.Lines(
		"GPU  GPU%  VRAM%  TEMP  AvgPwr  SCLK  MCLK",
		"0  80  60  70  150  1500  900",
	))

	report, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.NoError(t, err)

	node := report.Nodes["node-t"]
	require.NotNil(t, node)
	assert.Equal(t, 1, node.Samples)
	assert.Nil(t, node.StartTS)
	assert.Nil(t, node.EndTS)

	gpu := node.GPUs["0"]
	want := map[models.MetricKey]float64{
		models.MetricGPUUtil:  80,
		models.MetricVRAMUtil: 60,
		models.MetricTemp:     70,
		models.MetricPower:    150,
		models.MetricSCLK:     1500,
		models.MetricMCLK:     900,
	}
	require.Len(t, gpu, len(want))
	for key, v := range want {
		assert.Equal(t, models.Stat{Avg: v, P95: v, Max: v}, gpu[key], key)
	}
}

func TestSummarize_MixedLayouts(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "mixed.log", logs.TableLog+logs.Lines(
		"---",
		"ts=1700000005",
		"GPU[0] : Temperature (Sensor edge) (C): 47.0",
		"GPU[0] : Average Graphics Package Power (W): 140.0",
		"GPU[1] : sclk clock level: 1: (1.7GHz)",
		"GPU[1] : Unrecognized thing: 12",
	))

	report, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.NoError(t, err)

	node := report.Nodes["mixed"]
	require.NotNil(t, node)
	assert.Equal(t, 2, node.Samples)
	assert.Equal(t, int64(1700000000), *node.StartTS)
	assert.Equal(t, int64(1700000005), *node.EndTS)

	gpu0 := node.GPUs["0"]
	assert.InDelta(t, 130.0, gpu0[models.MetricPower].Avg, 1e-9)
	assert.InDelta(t, 47.0, gpu0[models.MetricTempEdge].Max, 1e-9)
	assert.InDelta(t, 45.0, gpu0[models.MetricTemp].Max, 1e-9)

	gpu1 := node.GPUs["1"]
	assert.InDelta(t, 1650.0, gpu1[models.MetricSCLK].Avg, 1e-9)
	assert.InDelta(t, 1700.0, gpu1[models.MetricSCLK].Max, 1e-9)
}

func TestSummarize_HugeValuesEncode(t *testing.T) {
	dir := t.TempDir()
	huge := "1" + strings.Repeat("0", 308)
	logs.WriteLog(t, dir, "big.log", logs.Lines(
		"ts=1",
		"GPU[0] : Current Socket Graphics Package Power (W): "+huge,
		"ts=2",
		"GPU[0] : Current Socket Graphics Package Power (W): "+huge,
	))

	report, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.NoError(t, err)

	stat := report.Nodes["big"].GPUs["0"][models.MetricPower]
	assert.Equal(t, 1e308, stat.Avg)
	assert.Equal(t, 1e308, stat.Max)

	_, err = json.Marshal(report)
	assert.NoError(t, err)
}

func TestSummarize_EmptyFileWarns(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "quiet.log", logs.Lines("nothing here", "just prose"))
	logs.WriteLog(t, dir, "node-a.log", logs.TimestampedLog)

	report, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"No parseable metrics in quiet.log"}, report.Warnings)
	require.Contains(t, report.Nodes, "quiet")
	assert.Empty(t, report.Nodes["quiet"].GPUs)
	assert.Equal(t, 1, report.Nodes["quiet"].Samples)
	assert.NotEmpty(t, report.Nodes["node-a"].GPUs)
}

func TestSummarize_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "node-a.log", logs.TimestampedLog)
	logs.WriteLog(t, dir, "README.txt", logs.TimestampedLog)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.log"), 0755))

	report, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, report.Nodes, 1)
	assert.Contains(t, report.Nodes, "node-a")
}

func TestSummarize_CompressedLogs(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "gz-node.log.gz", logs.TimestampedLog)
	logs.WriteLog(t, dir, "zst-node.log.zst", logs.TableLog)

	report, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.NoError(t, err)
	require.Empty(t, report.Warnings)

	assert.InDelta(t, 50.0, report.Nodes["gz-node"].GPUs["0"][models.MetricGPUUtil].Avg, 1e-9)
	assert.InDelta(t, 40.0, report.Nodes["zst-node"].GPUs["1"][models.MetricGPUUtil].Max, 1e-9)
}

func TestSummarize_DuplicateNode(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "node-a.log", logs.TimestampedLog)
	logs.WriteLog(t, dir, "node-a.log.gz", logs.TableLog)

	report, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"Duplicate node node-a: node-a.log.gz replaces node-a.log"}, report.Warnings)
	assert.Equal(t, filepath.Join(dir, "node-a.log.gz"), report.Nodes["node-a"].LogFile)
}

func TestSummarize_DirectoryErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := NewBuilder(Options{}).Summarize(context.Background(), filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLogDir))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("path is a file", func(t *testing.T) {
		path := logs.WriteLog(t, t.TempDir(), "node-a.log", logs.TimestampedLog)
		_, err := NewBuilder(Options{}).Summarize(context.Background(), path)
		assert.ErrorIs(t, err, ErrLogDir)
	})

	t.Run("empty directory", func(t *testing.T) {
		report, err := NewBuilder(Options{}).Summarize(context.Background(), t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, report.Nodes)
		assert.NotNil(t, report.Warnings)
	})
}

func TestSummarize_CorruptCompressedFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.log.gz"), []byte("not gzip"), 0644))

	_, err := NewBuilder(Options{}).Summarize(context.Background(), dir)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLogDir)
}

func TestSummarize_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "node-a.log", logs.TimestampedLog)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(Options{}).Summarize(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize_DeterministicAcrossConcurrency(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 12; i++ {
		content := logs.TableLog
		if i%3 == 0 {
			content = logs.TimestampedLog
		}
		if i%5 == 0 {
			content = "no metrics\n"
		}
		logs.WriteLog(t, dir, fmt.Sprintf("node-%02d.log", i), content)
	}

	serial, err := NewBuilder(Options{Concurrency: 1}).Summarize(context.Background(), dir)
	require.NoError(t, err)
	for _, n := range []int{2, 8, 32} {
		parallel, err := NewBuilder(Options{Concurrency: n}).Summarize(context.Background(), dir)
		require.NoError(t, err)
		assert.Equal(t, serial, parallel, "concurrency %d", n)
	}
	assert.Equal(t, []string{
		"No parseable metrics in node-00.log",
		"No parseable metrics in node-05.log",
		"No parseable metrics in node-10.log",
	}, serial.Warnings)
}

func TestSummarize_Sink(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "b.log", logs.TimestampedLog)
	logs.WriteLog(t, dir, "a.log", logs.TableLog)

	t.Run("receives readings in report order", func(t *testing.T) {
		sink := &recordingSink{}
		_, err := NewBuilder(Options{Sink: sink, Concurrency: 4}).Summarize(context.Background(), dir)
		require.NoError(t, err)

		// a.log: 2 GPUs x 6 table columns; b.log: 2 kv readings.
		require.Len(t, sink.readings, 14)
		assert.Equal(t, "a", sink.readings[0].Node)
		assert.Equal(t, models.SourceTable, sink.readings[0].Source)

		last := sink.readings[len(sink.readings)-1]
		assert.Equal(t, "b", last.Node)
		assert.Equal(t, models.SourceKeyValue, last.Source)
		assert.Equal(t, 1, last.Sample)
		require.NotNil(t, last.Timestamp)
		assert.Equal(t, int64(200), *last.Timestamp)
		assert.Equal(t, 55.0, last.Value)
	})

	t.Run("sink error aborts", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("disk full")}
		_, err := NewBuilder(Options{Sink: sink}).Summarize(context.Background(), dir)
		assert.ErrorContains(t, err, "disk full")
	})
}

func TestSummarize_Metrics(t *testing.T) {
	dir := t.TempDir()
	logs.WriteLog(t, dir, "node-a.log", logs.TimestampedLog)
	logs.WriteLog(t, dir, "quiet.log", "nothing\n")

	m := observability.NewMetrics()
	_, err := NewBuilder(Options{Metrics: m}).Summarize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesProcessed.WithLabelValues(observability.FileStatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesProcessed.WithLabelValues(observability.FileStatusEmpty)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReadingsExtracted.WithLabelValues(string(models.SourceKeyValue))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Warnings))
}

func TestSummarizeLogFile_InMemory(t *testing.T) {
	b := NewBuilder(Options{})
	res := b.SummarizeLogFile(&models.LogFile{
		Node:  "mem",
		Path:  "/logs/mem.log",
		Lines: []string{"ts=5", "GPU[3] : GPU use (%) : 12", "---", "GPU[3] : GPU use (%) : n/a"},
	})

	assert.Equal(t, "mem.log", res.Name)
	assert.True(t, res.HasMetrics)
	assert.Equal(t, 2, res.Summary.Samples)
	assert.Equal(t, int64(5), *res.Summary.StartTS)
	assert.Equal(t, models.Stat{Avg: 12, P95: 12, Max: 12}, res.Summary.GPUs["3"][models.MetricGPUUtil])
}
