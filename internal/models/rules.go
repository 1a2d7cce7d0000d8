package models

// ExtractionRules extends the built-in column aliases and label rules.
// The YAML format is:
//
//	columns:
//	  gpu_util_pct: ["util%"]
//	labels:
//	  - match: exact
//	    label: "GPU Activity (%)"
//	    metric: gpu_util_pct
//	    transform: number
type ExtractionRules struct {
	Columns map[string][]string `json:"columns" yaml:"columns"`
	Labels  []LabelRuleSpec     `json:"labels" yaml:"labels"`
}

// LabelRuleSpec is the serialized form of a label classification rule.
type LabelRuleSpec struct {
	Match     string `json:"match" yaml:"match"` // "exact", "prefix", "contains"
	Label     string `json:"label" yaml:"label"`
	Metric    string `json:"metric" yaml:"metric"`
	Transform string `json:"transform,omitempty" yaml:"transform,omitempty"` // "number" (default) or "clock"
}
