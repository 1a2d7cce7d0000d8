package parser

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gpu-log-summary/backend/internal/models"
)

const (
	timestampPrefix = "ts="
	separatorLine   = "---"
)

// Segmentation is the result of splitting one file into sample blocks.
type Segmentation struct {
	Blocks     []models.SampleBlock
	Timestamps []int64 // sorted ascending, malformed markers excluded
}

// Span returns the earliest and latest timestamp, or nils when none were parsed.
func (s *Segmentation) Span() (start, end *int64) {
	if len(s.Timestamps) == 0 {
		return nil, nil
	}
	first := s.Timestamps[0]
	last := s.Timestamps[len(s.Timestamps)-1]
	return &first, &last
}

// isTimestampMarker reports whether line opens a new sample (ts=<value>).
func isTimestampMarker(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), timestampPrefix)
}

// isSeparator reports whether line is an explicit block separator.
func isSeparator(line string) bool {
	return strings.TrimSpace(line) == separatorLine
}

// parseTimestamp reads the integer after "ts=".
func parseTimestamp(line string) (int64, bool) {
	_, raw, ok := strings.Cut(line, "=")
	if !ok {
		return 0, false
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Segment splits lines into sample blocks.
// A ts= marker starts a new block and belongs to it; a "---" line ends the
// current block and is dropped. Malformed markers still split but carry no
// timestamp.
func Segment(lines []string) *Segmentation {
	seg := &Segmentation{
		Blocks:     make([]models.SampleBlock, 0),
		Timestamps: make([]int64, 0),
	}

	var current []string
	var currentTs *int64

	flush := func() {
		if len(current) == 0 {
			return
		}
		seg.Blocks = append(seg.Blocks, models.SampleBlock{
			Index:     len(seg.Blocks),
			Lines:     current,
			Timestamp: currentTs,
		})
		current = nil
		currentTs = nil
	}

	for _, line := range lines {
		switch {
		case isTimestampMarker(line):
			flush()
			if ts, ok := parseTimestamp(line); ok {
				seg.Timestamps = append(seg.Timestamps, ts)
				currentTs = &ts
			}
			current = append(current, line)
		case isSeparator(line):
			flush()
		default:
			current = append(current, line)
		}
	}
	flush()

	sort.Slice(seg.Timestamps, func(i, j int) bool {
		return seg.Timestamps[i] < seg.Timestamps[j]
	})

	return seg
}
