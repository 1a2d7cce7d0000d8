package parser

import (
	"regexp"

	"github.com/gpu-log-summary/backend/internal/models"
)

// kvLineRegex matches "GPU[<id>]: <label>: <value>" lines.
// The label is the shortest run before the next colon, so values may
// themselves contain colons ("sclk clock level: 1: (800Mhz)").
var kvLineRegex = regexp.MustCompile(`^\s*GPU\[(\d+)\]\s*:\s*(.+?)\s*:\s*(.*?)\s*$`)

// KeyValueExtractor parses one reading per "GPU[id]: label: value" line.
type KeyValueExtractor struct {
	classifier *LabelClassifier
}

// NewKeyValueExtractor creates a key/value extractor using the given classifier.
func NewKeyValueExtractor(classifier *LabelClassifier) *KeyValueExtractor {
	return &KeyValueExtractor{classifier: classifier}
}

func (e *KeyValueExtractor) Name() string {
	return "keyvalue"
}

func (e *KeyValueExtractor) Source() models.ReadingSource {
	return models.SourceKeyValue
}

// Extract returns per-device values for every classified key/value line.
func (e *KeyValueExtractor) Extract(lines []string) BlockMetrics {
	out := make(BlockMetrics)
	for _, line := range lines {
		m := kvLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		deviceID, label, value := m[1], m[2], m[3]

		rule, ok := e.classifier.Classify(label)
		if !ok {
			continue
		}
		transform := rule.Transform
		if transform == nil {
			transform = ParseNumber
		}
		if v, ok := transform(value); ok {
			out.Append(deviceID, rule.Metric, v)
		}
	}
	return out
}
