package models

// Stat is the reduced form of one metric's value sequence.
// Fields are declared in key order so encoded output is sorted.
type Stat struct {
	Avg float64 `json:"avg" msgpack:"avg"`
	Max float64 `json:"max" msgpack:"max"`
	P95 float64 `json:"p95" msgpack:"p95"`
}

// NodeSummary holds the per-file rollup.
// GPUs only contains devices with at least one non-empty metric. Fields are
// in key order, as in Stat.
type NodeSummary struct {
	EndTS   *int64                        `json:"end_ts" msgpack:"end_ts"`
	GPUs    map[string]map[MetricKey]Stat `json:"gpus" msgpack:"gpus"`
	LogFile string                        `json:"log_file" msgpack:"log_file"`
	Samples int                           `json:"samples" msgpack:"samples"`
	StartTS *int64                        `json:"start_ts" msgpack:"start_ts"`
}

// NewNodeSummary creates an empty summary for a file.
func NewNodeSummary(path string) *NodeSummary {
	return &NodeSummary{
		LogFile: path,
		GPUs:    make(map[string]map[MetricKey]Stat),
	}
}

// Report is the top-level result of summarizing a log directory.
type Report struct {
	LogDir   string                  `json:"log_dir" msgpack:"log_dir"`
	Nodes    map[string]*NodeSummary `json:"nodes" msgpack:"nodes"`
	Warnings []string                `json:"warnings" msgpack:"warnings"`
}

// NewReport creates an empty report.
func NewReport(logDir string) *Report {
	return &Report{
		LogDir:   logDir,
		Nodes:    make(map[string]*NodeSummary),
		Warnings: make([]string, 0),
	}
}
