package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpu-log-summary/backend/internal/models"
)

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		label string
		want  models.MetricKey
	}{
		{"GPU use (%)", models.MetricGPUUtil},
		{"gpu USE (%)", models.MetricGPUUtil},
		{"GPU Memory Allocated (VRAM%)", models.MetricVRAMUtil},
		{"GPU Memory Read/Write Activity (%)", models.MetricMemActivity},
		{"Average Graphics Package Power (W)", models.MetricPower},
		{"Current Socket Graphics Package Power (W)", models.MetricPower},
		{"sclk clock level", models.MetricSCLK},
		{"mclk clock level", models.MetricMCLK},
		{"fclk clock level", models.MetricFCLK},
		{"socclk clock level", models.MetricSOCCLK},
		{"Temperature Sensor Edge", models.MetricTempEdge},
		{"Temperature Sensor Junction", models.MetricTempJunction},
		{"Temperature (Sensor memory) (C)", models.MetricTempMemory},
		{"Temperature (Sensor HBM 2) (C)", models.MetricTempHBM2},
		{"Temperature", models.MetricTemp},
		{"Temperature (Sensor edge) (C)", models.MetricTempEdge},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			rule, ok := defaultClassifier.Classify(tt.label)
			require.True(t, ok)
			assert.Equal(t, tt.want, rule.Metric)
		})
	}
}

func TestDefaultClassifier_Unrecognized(t *testing.T) {
	for _, label := range []string{"Fan speed (%)", "GPU use", "Card series", ""} {
		_, ok := defaultClassifier.Classify(label)
		assert.False(t, ok, label)
	}
}

func TestLabelClassifier_FirstMatchWins(t *testing.T) {
	c := NewLabelClassifier([]LabelRule{
		{Kind: MatchContains, Pattern: "power", Metric: "first_w"},
		{Kind: MatchExact, Pattern: "Average Graphics Package Power (W)", Metric: models.MetricPower},
	})

	rule, ok := c.Classify("Average Graphics Package Power (W)")
	require.True(t, ok)
	assert.Equal(t, models.MetricKey("first_w"), rule.Metric)
}

func TestParseMatchKind(t *testing.T) {
	for in, want := range map[string]MatchKind{
		"exact": MatchExact, "": MatchExact, "Prefix": MatchPrefix,
		"contains": MatchContains, "substring": MatchContains,
	} {
		got, err := ParseMatchKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMatchKind("regex")
	assert.Error(t, err)
	assert.Equal(t, "contains", MatchContains.String())
}

func TestParseTransform(t *testing.T) {
	clock, err := ParseTransform("clock")
	require.NoError(t, err)
	v, ok := clock("1.5GHz")
	assert.True(t, ok)
	assert.Equal(t, 1500.0, v)

	num, err := ParseTransform("")
	require.NoError(t, err)
	v, ok = num("1.5GHz")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, err = ParseTransform("celsius")
	assert.Error(t, err)
}
