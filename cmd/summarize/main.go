// Command summarize reduces a directory of rocm-smi monitor logs to a JSON
// report of per-node, per-GPU avg/p95/max statistics.
//
// Usage:
//
//	summarize [flags] <log_dir> [output]
//
// The report is written to output, or to stdout when output is omitted.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/gpu-log-summary/backend/internal/parser"
	"github.com/gpu-log-summary/backend/internal/summary"
)

type options struct {
	logDir      string
	output      string
	rulesFile   string
	extensions  string
	concurrency int
	readingsDB  string
	verbose     bool
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "summarize: %v\n", err)
		os.Exit(2)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "summarize: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: summarize [flags] <log_dir> [output]\n\nflags:\n")
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.rulesFile, "rules", "", "YAML file with extra column aliases and label rules")
	fs.StringVar(&opts.extensions, "ext", strings.Join(parser.DefaultLogExtensions, ","), "comma-separated log file suffixes")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "files parsed in parallel (0 = GOMAXPROCS)")
	fs.StringVar(&opts.readingsDB, "readings", "", "also write every raw reading to this DuckDB file")
	fs.BoolVar(&opts.verbose, "v", false, "log per-file progress to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch fs.NArg() {
	case 1:
		opts.logDir = fs.Arg(0)
	case 2:
		opts.logDir, opts.output = fs.Arg(0), fs.Arg(1)
	default:
		fs.Usage()
		return nil, fmt.Errorf("expected <log_dir> [output], got %d arguments", fs.NArg())
	}
	return opts, nil
}

func splitExtensions(raw string) []string {
	var out []string
	for _, ext := range strings.Split(raw, ",") {
		if ext = strings.TrimSpace(ext); ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func run(ctx context.Context, opts *options, stdout io.Writer, logger *slog.Logger) error {
	builderOpts := summary.Options{
		Extensions:  splitExtensions(opts.extensions),
		Concurrency: opts.concurrency,
		Logger:      logger,
	}

	if opts.rulesFile != "" {
		rules, err := parser.ParseExtractionRules(opts.rulesFile)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		registry, err := parser.BuildRegistry(rules)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		builderOpts.Registry = registry
	}

	var store *parser.ReadingStore
	if opts.readingsDB != "" {
		var err error
		store, err = parser.NewReadingStore(opts.readingsDB, parser.DefaultReadingStoreOptions())
		if err != nil {
			return err
		}
		builderOpts.Sink = store
	}

	report, err := summary.NewBuilder(builderOpts).Summarize(ctx, opts.logDir)
	if err == nil && store != nil {
		err = store.Finalize()
	}
	if store != nil {
		if err != nil {
			store.Remove()
		} else if cerr := store.Close(); cerr != nil {
			return cerr
		}
	}
	if err != nil {
		return err
	}

	payload, err := encodeReport(report)
	if err != nil {
		return err
	}

	if opts.output == "" {
		_, err = stdout.Write(payload)
		return err
	}
	return os.WriteFile(opts.output, payload, 0644)
}

// encodeReport renders v as two-space indented JSON with a trailing newline.
// Map keys are sorted by encoding/json and struct fields are declared in key
// order, so the whole document is key-sorted.
func encodeReport(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return buf.Bytes(), nil
}
