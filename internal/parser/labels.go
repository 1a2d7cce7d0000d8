package parser

import (
	"fmt"
	"strings"

	"github.com/gpu-log-summary/backend/internal/models"
)

// MatchKind selects how a LabelRule compares against a label.
type MatchKind int

const (
	MatchExact MatchKind = iota
	MatchPrefix
	MatchContains
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	case MatchContains:
		return "contains"
	}
	return fmt.Sprintf("MatchKind(%d)", int(k))
}

// ParseMatchKind converts the rules-file spelling of a match kind.
func ParseMatchKind(s string) (MatchKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact", "":
		return MatchExact, nil
	case "prefix":
		return MatchPrefix, nil
	case "contains", "substring":
		return MatchContains, nil
	}
	return 0, fmt.Errorf("unknown match kind: %s", s)
}

// ValueTransform turns a raw value body into a number.
type ValueTransform func(raw string) (float64, bool)

// ParseTransform converts the rules-file spelling of a value transform.
func ParseTransform(s string) (ValueTransform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number", "":
		return ParseNumber, nil
	case "clock", "mhz":
		return NormalizeClock, nil
	}
	return nil, fmt.Errorf("unknown value transform: %s", s)
}

// LabelRule maps labels matching Pattern to Metric.
// Exact rules compare case-insensitively on the trimmed label; prefix and
// contains rules compare on the lowercased label.
type LabelRule struct {
	Kind      MatchKind
	Pattern   string
	Metric    models.MetricKey
	Transform ValueTransform
}

// Matches reports whether the rule applies to label.
func (r LabelRule) Matches(label string) bool {
	label = strings.TrimSpace(label)
	switch r.Kind {
	case MatchExact:
		return strings.EqualFold(label, r.Pattern)
	case MatchPrefix:
		return strings.HasPrefix(strings.ToLower(label), strings.ToLower(r.Pattern))
	case MatchContains:
		return strings.Contains(strings.ToLower(label), strings.ToLower(r.Pattern))
	}
	return false
}

// DefaultLabelRules returns the built-in dispatch table, evaluated top to bottom.
func DefaultLabelRules() []LabelRule {
	return []LabelRule{
		{MatchExact, "GPU use (%)", models.MetricGPUUtil, ParseNumber},
		{MatchExact, "GPU Memory Allocated (VRAM%)", models.MetricVRAMUtil, ParseNumber},
		{MatchExact, "GPU Memory Read/Write Activity (%)", models.MetricMemActivity, ParseNumber},
		{MatchExact, "Average Graphics Package Power (W)", models.MetricPower, ParseNumber},
		{MatchExact, "Current Socket Graphics Package Power (W)", models.MetricPower, ParseNumber},

		{MatchPrefix, "fclk clock level", models.MetricFCLK, NormalizeClock},
		{MatchPrefix, "mclk clock level", models.MetricMCLK, NormalizeClock},
		{MatchPrefix, "sclk clock level", models.MetricSCLK, NormalizeClock},
		{MatchPrefix, "socclk clock level", models.MetricSOCCLK, NormalizeClock},

		{MatchContains, "sensor edge", models.MetricTempEdge, ParseNumber},
		{MatchContains, "sensor junction", models.MetricTempJunction, ParseNumber},
		{MatchContains, "sensor memory", models.MetricTempMemory, ParseNumber},
		{MatchContains, "sensor hbm 0", models.MetricTempHBM0, ParseNumber},
		{MatchContains, "sensor hbm 1", models.MetricTempHBM1, ParseNumber},
		{MatchContains, "sensor hbm 2", models.MetricTempHBM2, ParseNumber},
		{MatchContains, "sensor hbm 3", models.MetricTempHBM3, ParseNumber},
		{MatchContains, "temperature", models.MetricTemp, ParseNumber},
	}
}

// LabelClassifier maps free-text labels to canonical metric keys.
type LabelClassifier struct {
	rules []LabelRule
}

// NewLabelClassifier creates a classifier over an ordered rule list.
func NewLabelClassifier(rules []LabelRule) *LabelClassifier {
	return &LabelClassifier{rules: rules}
}

// Classify returns the first rule matching label.
func (c *LabelClassifier) Classify(label string) (LabelRule, bool) {
	for _, r := range c.rules {
		if r.Matches(label) {
			return r, true
		}
	}
	return LabelRule{}, false
}

var defaultClassifier = NewLabelClassifier(DefaultLabelRules())
