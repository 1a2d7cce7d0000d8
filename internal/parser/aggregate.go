package parser

import (
	"sort"

	"github.com/gpu-log-summary/backend/internal/models"
)

// Accumulator collects per-device metric sequences across all blocks of one file.
type Accumulator struct {
	Node    string
	Devices map[string]models.DeviceMetrics
	// Readings is populated only when the aggregator keeps readings.
	Readings []models.Reading
	// Extracted counts values per extractor source.
	Extracted map[models.ReadingSource]int
}

// HasMetrics reports whether any device produced at least one value.
func (a *Accumulator) HasMetrics() bool {
	for _, dm := range a.Devices {
		if dm.Len() > 0 {
			return true
		}
	}
	return false
}

// Aggregator runs a registry's extractors over sample blocks and merges the results.
type Aggregator struct {
	registry     *Registry
	keepReadings bool
}

// NewAggregator creates an aggregator. When keepReadings is set every merged
// value is also recorded as a models.Reading.
func NewAggregator(registry *Registry, keepReadings bool) *Aggregator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Aggregator{registry: registry, keepReadings: keepReadings}
}

// NewAccumulator creates an empty accumulator for a node.
func NewAccumulator(node string) *Accumulator {
	return &Accumulator{
		Node:      node,
		Devices:   make(map[string]models.DeviceMetrics),
		Extracted: make(map[models.ReadingSource]int),
	}
}

// Accumulate extracts and merges every block of a file, in block order.
func (a *Aggregator) Accumulate(node string, blocks []models.SampleBlock) *Accumulator {
	acc := NewAccumulator(node)
	for i := range blocks {
		a.AddBlock(acc, &blocks[i])
	}
	return acc
}

// AddBlock runs each extractor over the block and concatenates its values
// into the accumulator, extractor by extractor.
func (a *Aggregator) AddBlock(acc *Accumulator, block *models.SampleBlock) {
	for _, ex := range a.registry.Extractors() {
		bm := ex.Extract(block.Lines)
		a.merge(acc, block, ex.Source(), bm)
	}
}

func (a *Aggregator) merge(acc *Accumulator, block *models.SampleBlock, source models.ReadingSource, bm BlockMetrics) {
	for _, device := range sortedDevices(bm) {
		dm := bm[device]
		target, ok := acc.Devices[device]
		if !ok {
			target = make(models.DeviceMetrics)
			acc.Devices[device] = target
		}

		for _, key := range SortedMetricKeys(dm) {
			values := dm[key]
			target.Append(key, values...)
			acc.Extracted[source] += len(values)

			if !a.keepReadings {
				continue
			}
			for _, v := range values {
				acc.Readings = append(acc.Readings, models.Reading{
					Node:      acc.Node,
					Device:    device,
					Metric:    key,
					Sample:    block.Index,
					Timestamp: block.Timestamp,
					Source:    source,
					Value:     v,
				})
			}
		}
	}
}

func sortedDevices(bm BlockMetrics) []string {
	ids := make([]string, 0, len(bm))
	for id := range bm {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedMetricKeys returns a device's metric keys in canonical string order.
func SortedMetricKeys(dm models.DeviceMetrics) []models.MetricKey {
	keys := make([]models.MetricKey, 0, len(dm))
	for k := range dm {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
