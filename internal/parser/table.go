package parser

import (
	"regexp"
	"strings"

	"github.com/gpu-log-summary/backend/internal/models"
)

// dataRowRegex matches table rows whose first column is a device id.
var dataRowRegex = regexp.MustCompile(`^\s*\d+\b`)

// DeviceColumn is the logical name of the device id column in rules files.
const DeviceColumn = "device"

// TableColumn is one logical column of the tabular layout.
// The first alias present in a header wins.
type TableColumn struct {
	Name      string
	Metric    models.MetricKey // empty for the device id column
	Aliases   []string
	Transform ValueTransform
}

// DefaultTableColumns returns the built-in column alias lists.
func DefaultTableColumns() []TableColumn {
	return []TableColumn{
		{Name: DeviceColumn, Aliases: []string{"gpu", "device"}},
		{Name: string(models.MetricGPUUtil), Metric: models.MetricGPUUtil, Aliases: []string{"gpu%", "gpuuse%", "gpuuse"}, Transform: ParseNumber},
		// mem% is read as VRAM allocation, same as the kv label "GPU Memory Allocated (VRAM%)".
		// rocm-smi releases that report memory activity under mem% will land in vram_util_pct
		// unless a rules file moves the alias to another column.
		{Name: string(models.MetricVRAMUtil), Metric: models.MetricVRAMUtil, Aliases: []string{"vram%", "mem%", "memuse%"}, Transform: ParseNumber},
		{Name: string(models.MetricTemp), Metric: models.MetricTemp, Aliases: []string{"temp", "temperature"}, Transform: ParseNumber},
		{Name: string(models.MetricPower), Metric: models.MetricPower, Aliases: []string{"avgpwr", "power", "pwr", "avgpower"}, Transform: ParseNumber},
		{Name: string(models.MetricSCLK), Metric: models.MetricSCLK, Aliases: []string{"sclk"}, Transform: NormalizeClock},
		{Name: string(models.MetricMCLK), Metric: models.MetricMCLK, Aliases: []string{"mclk"}, Transform: NormalizeClock},
	}
}

// normalizeHeader lowercases a header token and strips parentheses; '%' is kept.
func normalizeHeader(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.ReplaceAll(t, "(", "")
	return strings.ReplaceAll(t, ")", "")
}

// isHeaderLine reports whether line looks like a table header.
// Key/value lines also mention "GPU" and "%" and are excluded.
func isHeaderLine(line string) bool {
	return strings.Contains(line, "GPU") &&
		strings.Contains(line, "%") &&
		!isTimestampMarker(line) &&
		!kvLineRegex.MatchString(line)
}

// TableExtractor parses fixed-column tables introduced by a header row.
type TableExtractor struct {
	columns []TableColumn
}

// NewTableExtractor creates a table extractor over the given columns.
func NewTableExtractor(columns []TableColumn) *TableExtractor {
	return &TableExtractor{columns: columns}
}

func (e *TableExtractor) Name() string {
	return "table"
}

func (e *TableExtractor) Source() models.ReadingSource {
	return models.SourceTable
}

// Columns returns the logical columns in resolution order.
func (e *TableExtractor) Columns() []TableColumn {
	return e.columns
}

// Extract finds every table in the block and returns per-device values.
func (e *TableExtractor) Extract(lines []string) BlockMetrics {
	out := make(BlockMetrics)

	i := 0
	for i < len(lines) {
		if !isHeaderLine(lines[i]) {
			i++
			continue
		}

		header := strings.Fields(lines[i])
		for k := range header {
			header[k] = normalizeHeader(header[k])
		}

		rows := make([]string, 0)
		j := i + 1
		for ; j < len(lines); j++ {
			line := lines[j]
			if isSeparator(line) || isTimestampMarker(line) || isHeaderLine(line) {
				break
			}
			if dataRowRegex.MatchString(line) {
				rows = append(rows, line)
			}
		}

		if len(rows) > 0 {
			e.parseRows(header, rows, out)
		}
		i = j
	}

	return out
}

// resolvedColumn is a logical column bound to a header position.
type resolvedColumn struct {
	col   TableColumn
	index int
}

// resolve binds each logical column to its header index, or -1 when absent.
func (e *TableExtractor) resolve(header []string) (device int, metrics []resolvedColumn) {
	device = -1
	for _, col := range e.columns {
		idx := findColumn(header, col.Aliases)
		if col.Metric == "" {
			if device < 0 {
				device = idx
			}
			continue
		}
		if idx >= 0 {
			metrics = append(metrics, resolvedColumn{col: col, index: idx})
		}
	}
	return device, metrics
}

// findColumn returns the position of the first alias present in header.
func findColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, h := range header {
			if h == alias {
				return i
			}
		}
	}
	return -1
}

func (e *TableExtractor) parseRows(header []string, rows []string, out BlockMetrics) {
	device, metrics := e.resolve(header)
	if device < 0 {
		return
	}

	for _, row := range rows {
		tokens := strings.Fields(row)
		if device >= len(tokens) {
			continue
		}
		deviceID := tokens[device]

		for _, rc := range metrics {
			if rc.index >= len(tokens) {
				continue
			}
			transform := rc.col.Transform
			if transform == nil {
				transform = ParseNumber
			}
			if v, ok := transform(tokens[rc.index]); ok {
				out.Append(deviceID, rc.col.Metric, v)
			}
		}
	}
}
