// Package summary drives the parsing engine over a directory of monitor logs
// and assembles the per-node report.
package summary

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gpu-log-summary/backend/internal/models"
	"github.com/gpu-log-summary/backend/internal/observability"
	"github.com/gpu-log-summary/backend/internal/parser"
)

// ErrLogDir is returned when the log directory cannot be listed.
var ErrLogDir = errors.New("log directory unreadable")

// ReadingSink receives every extracted reading, file by file in report order.
type ReadingSink interface {
	AddReadings(readings []models.Reading) error
}

// Options configures a Builder. Zero values select defaults.
type Options struct {
	// Extensions lists recognized log file suffixes.
	Extensions []string
	// Concurrency bounds how many files are parsed at once.
	Concurrency int
	// Registry supplies the extractors; nil selects the built-ins.
	Registry *parser.Registry
	// Sink, when set, receives raw readings after each file is summarized.
	Sink    ReadingSink
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Builder produces Reports from log directories.
type Builder struct {
	extensions  []string
	concurrency int
	aggregator  *parser.Aggregator
	sink        ReadingSink
	metrics     *observability.Metrics
	log         *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	ext := opts.Extensions
	if len(ext) == 0 {
		ext = parser.DefaultLogExtensions
	}
	conc := opts.Concurrency
	if conc <= 0 {
		conc = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		extensions:  ext,
		concurrency: conc,
		aggregator:  parser.NewAggregator(opts.Registry, opts.Sink != nil),
		sink:        opts.Sink,
		metrics:     opts.Metrics,
		log:         log.With("component", "summary"),
	}
}

// FileResult is the outcome of summarizing one log file.
type FileResult struct {
	Name       string
	Node       string
	Summary    *models.NodeSummary
	HasMetrics bool
	Readings   []models.Reading
}

// Summarize builds a report for every recognized log file in logDir.
// Files are processed in parallel but assembled in file name order, so the
// report depends only on file contents and names. Only an unreadable
// directory or file is an error.
func (b *Builder) Summarize(ctx context.Context, logDir string) (*models.Report, error) {
	start := time.Now()

	absDir, err := filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLogDir, logDir, err)
	}

	names, err := b.listLogFiles(logDir)
	if err != nil {
		return nil, err
	}

	results := make([]*FileResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.SummarizeFile(filepath.Join(logDir, name))
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := models.NewReport(absDir)
	sources := make(map[string]string, len(results))
	for _, res := range results {
		if prev, ok := sources[res.Node]; ok {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Duplicate node %s: %s replaces %s", res.Node, res.Name, prev))
		}
		sources[res.Node] = res.Name

		if !res.HasMetrics {
			report.Warnings = append(report.Warnings, fmt.Sprintf("No parseable metrics in %s", res.Name))
		}
		report.Nodes[res.Node] = res.Summary

		if b.sink != nil && len(res.Readings) > 0 {
			if err := b.sink.AddReadings(res.Readings); err != nil {
				return nil, fmt.Errorf("storing readings for %s: %w", res.Name, err)
			}
		}
	}

	for _, w := range report.Warnings {
		b.log.Warn(w)
	}
	b.metrics.ObserveWarnings(len(report.Warnings))
	b.metrics.ObserveSummary(time.Since(start))

	b.log.Info("summary complete", "dir", absDir, "files", len(names), "nodes", len(report.Nodes),
		"warnings", len(report.Warnings), "elapsed", time.Since(start))
	return report, nil
}

// listLogFiles returns recognized log file names in lexicographic order.
func (b *Builder) listLogFiles(logDir string) ([]string, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLogDir, logDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if parser.MatchExtension(e.Name(), b.extensions) == "" {
			continue
		}
		if e.IsDir() {
			continue
		}
		if e.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(filepath.Join(logDir, e.Name()))
			if err != nil || info.IsDir() {
				continue
			}
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// SummarizeFile reads and reduces a single log file.
func (b *Builder) SummarizeFile(path string) (*FileResult, error) {
	name := filepath.Base(path)
	node := parser.NodeName(name, b.extensions)

	file, err := parser.LoadLogFile(path, node)
	if err != nil {
		b.metrics.ObserveFile(observability.FileStatusError, 0, nil)
		return nil, err
	}

	res := b.SummarizeLogFile(file)
	res.Name = name
	return res, nil
}

// SummarizeLogFile runs segmentation, extraction, aggregation and reduction
// over an in-memory file.
func (b *Builder) SummarizeLogFile(file *models.LogFile) *FileResult {
	seg := parser.Segment(file.Lines)
	acc := b.aggregator.Accumulate(file.Node, seg.Blocks)

	summary := models.NewNodeSummary(file.Path)
	summary.Samples = len(seg.Blocks)
	summary.StartTS, summary.EndTS = seg.Span()
	for device, dm := range acc.Devices {
		if stats := parser.SummarizeDevice(dm); len(stats) > 0 {
			summary.GPUs[device] = stats
		}
	}

	hasMetrics := len(summary.GPUs) > 0
	status := observability.FileStatusOK
	if !hasMetrics {
		status = observability.FileStatusEmpty
	}
	extracted := make(map[string]int, len(acc.Extracted))
	for source, n := range acc.Extracted {
		extracted[string(source)] = n
	}
	b.metrics.ObserveFile(status, len(seg.Blocks), extracted)

	b.log.Debug("file summarized", "node", file.Node, "samples", summary.Samples,
		"gpus", len(summary.GPUs), "readings", acc.Extracted)

	return &FileResult{
		Name:       filepath.Base(file.Path),
		Node:       file.Node,
		Summary:    summary,
		HasMetrics: hasMetrics,
		Readings:   acc.Readings,
	}
}
