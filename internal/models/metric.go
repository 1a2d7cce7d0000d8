// Package models contains domain types for the GPU log summarizer.
package models

// MetricKey is the canonical name a raw column header or label is mapped to.
type MetricKey string

const (
	MetricGPUUtil      MetricKey = "gpu_util_pct"
	MetricVRAMUtil     MetricKey = "vram_util_pct"
	MetricMemActivity  MetricKey = "mem_activity_pct"
	MetricPower        MetricKey = "power_w"
	MetricSCLK         MetricKey = "sclk_mhz"
	MetricMCLK         MetricKey = "mclk_mhz"
	MetricFCLK         MetricKey = "fclk_mhz"
	MetricSOCCLK       MetricKey = "socclk_mhz"
	MetricTemp         MetricKey = "temp_c"
	MetricTempEdge     MetricKey = "temp_edge_c"
	MetricTempJunction MetricKey = "temp_junction_c"
	MetricTempMemory   MetricKey = "temp_memory_c"
	MetricTempHBM0     MetricKey = "temp_hbm0_c"
	MetricTempHBM1     MetricKey = "temp_hbm1_c"
	MetricTempHBM2     MetricKey = "temp_hbm2_c"
	MetricTempHBM3     MetricKey = "temp_hbm3_c"
)

// ReadingSource tells which extractor produced a reading.
type ReadingSource string

const (
	SourceTable    ReadingSource = "table"
	SourceKeyValue ReadingSource = "kv"
)

// DeviceMetrics maps a metric to its observed values in temporal order.
// Repeated readings of the same metric are all kept.
type DeviceMetrics map[MetricKey][]float64

// Append adds values for a metric, preserving order.
func (dm DeviceMetrics) Append(key MetricKey, values ...float64) {
	if len(values) == 0 {
		return
	}
	dm[key] = append(dm[key], values...)
}

// Len returns the total number of values across all metrics.
func (dm DeviceMetrics) Len() int {
	n := 0
	for _, vs := range dm {
		n += len(vs)
	}
	return n
}

// Reading is a single extracted value with its provenance.
type Reading struct {
	Node      string        `json:"node" msgpack:"node"`
	Device    string        `json:"gpu" msgpack:"gpu"`
	Metric    MetricKey     `json:"metric" msgpack:"metric"`
	Sample    int           `json:"sample" msgpack:"sample"`
	Timestamp *int64        `json:"ts" msgpack:"ts"`
	Source    ReadingSource `json:"source" msgpack:"source"`
	Value     float64       `json:"value" msgpack:"value"`
}
