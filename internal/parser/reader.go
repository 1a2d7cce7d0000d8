package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/gpu-log-summary/backend/internal/models"
)

// DefaultLogExtensions lists the file suffixes recognized as monitor logs.
var DefaultLogExtensions = []string{".log", ".log.gz", ".log.zst"}

// maxLineSize bounds a single line; longer lines fail the file read.
const maxLineSize = 16 * 1024 * 1024

// MatchExtension returns the recognized suffix of name, or "" if none matches.
// The longest matching suffix wins so "a.log.gz" resolves to ".log.gz".
func MatchExtension(name string, extensions []string) string {
	lower := strings.ToLower(name)
	best := ""
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if strings.HasSuffix(lower, ext) && len(ext) > len(best) {
			best = ext
		}
	}
	return best
}

// NodeName derives the node identity from a log file name by stripping the
// recognized extension. Names without a recognized extension lose only their
// last extension.
func NodeName(name string, extensions []string) string {
	base := filepath.Base(name)
	if ext := MatchExtension(base, extensions); ext != "" {
		return base[:len(base)-len(ext)]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OpenLog opens a log file, transparently decompressing .gz and .zst files.
func OpenLog(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []func() error{zr.Close, f.Close}}, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []func() error{closeZstd(zr), f.Close}}, nil
	}
	return f, nil
}

func closeZstd(zr *zstd.Decoder) func() error {
	return func() error {
		zr.Close()
		return nil
	}
}

// stackedCloser closes decompressors before the underlying file.
type stackedCloser struct {
	io.Reader
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReadLines reads r fully into lines. Invalid UTF-8 is replaced with U+FFFD
// and a leading byte order mark is dropped; neither is an error.
func ReadLines(r io.Reader) ([]string, error) {
	decoded := transform.NewReader(r, unicode.UTF8BOM.NewDecoder())

	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lines := make([]string, 0, 1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// LoadLogFile reads a whole log file into memory.
func LoadLogFile(path, node string) (*models.LogFile, error) {
	rc, err := OpenLog(path)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}
	defer rc.Close()

	lines, err := ReadLines(rc)
	if err != nil {
		return nil, fmt.Errorf("reading log %s: %w", path, err)
	}

	return &models.LogFile{
		Node:  node,
		Path:  path,
		Lines: lines,
	}, nil
}
