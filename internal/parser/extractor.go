package parser

import "github.com/gpu-log-summary/backend/internal/models"

// BlockMetrics holds the values one extractor found in one sample block,
// keyed by device id.
type BlockMetrics map[string]models.DeviceMetrics

// Append adds a value for a device and metric.
func (bm BlockMetrics) Append(device string, key models.MetricKey, v float64) {
	dm, ok := bm[device]
	if !ok {
		dm = make(models.DeviceMetrics)
		bm[device] = dm
	}
	dm.Append(key, v)
}

// Extractor defines the interface for block-level metric extractors.
type Extractor interface {
	// Name returns the unique name of the extractor.
	Name() string
	// Source identifies the layout the extractor reads.
	Source() models.ReadingSource
	// Extract returns the values found in a block's lines. It never fails;
	// unparseable content is skipped.
	Extract(lines []string) BlockMetrics
}

// Registry holds the extractors run against every block, in merge order.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns the built-in extractors: table values merge before
// key/value values.
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			NewTableExtractor(DefaultTableColumns()),
			NewKeyValueExtractor(defaultClassifier),
		},
	}
}

// NewRegistryWith creates a registry over an explicit extractor list.
func NewRegistryWith(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// Extractors returns the extractors in merge order.
func (r *Registry) Extractors() []Extractor {
	return r.extractors
}
