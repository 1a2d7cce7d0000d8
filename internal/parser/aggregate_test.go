package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpu-log-summary/backend/internal/models"
)

func block(index int, ts *int64, lines ...string) models.SampleBlock {
	return models.SampleBlock{Index: index, Lines: lines, Timestamp: ts}
}

func TestAggregator_ConcatenatesInBlockOrder(t *testing.T) {
	agg := NewAggregator(nil, false)
	ex := NewKeyValueExtractor(defaultClassifier)

	b1 := block(0, nil,
		"GPU[0] : GPU use (%) : 1",
		"GPU[0] : GPU use (%) : 2",
	)
	b2 := block(1, nil,
		"GPU[0] : GPU use (%) : 3",
	)

	acc := agg.Accumulate("node", []models.SampleBlock{b1, b2})

	first := ex.Extract(b1.Lines)["0"][models.MetricGPUUtil]
	second := ex.Extract(b2.Lines)["0"][models.MetricGPUUtil]
	got := acc.Devices["0"][models.MetricGPUUtil]

	assert.Len(t, got, len(first)+len(second))
	assert.Equal(t, append(append([]float64{}, first...), second...), got)
	assert.True(t, acc.HasMetrics())
	assert.Nil(t, acc.Readings)
}

func TestAggregator_TableBeforeKeyValue(t *testing.T) {
	agg := NewAggregator(nil, false)
	acc := agg.Accumulate("node", []models.SampleBlock{block(0, nil,
		"GPU[0] : Average Graphics Package Power (W): 200",
		"GPU  AvgPwr  GPU%",
		"0    100     5%",
	)})

	assert.Equal(t, []float64{100, 200}, acc.Devices["0"][models.MetricPower])
	assert.Equal(t, 2, acc.Extracted[models.SourceTable])
	assert.Equal(t, 1, acc.Extracted[models.SourceKeyValue])
}

func TestAggregator_KeepsReadings(t *testing.T) {
	ts := int64(100)
	agg := NewAggregator(NewRegistry(), true)
	acc := agg.Accumulate("node-a", []models.SampleBlock{
		block(0, &ts, "ts=100", "GPU[1] : GPU use (%) : 7", "GPU[0] : GPU use (%) : 9"),
		block(1, nil, "GPU[0] : sclk clock level: 0: (500Mhz)"),
	})

	require.Len(t, acc.Readings, 3)
	assert.Equal(t, models.Reading{
		Node: "node-a", Device: "0", Metric: models.MetricGPUUtil,
		Sample: 0, Timestamp: &ts, Source: models.SourceKeyValue, Value: 9,
	}, acc.Readings[0])
	assert.Equal(t, "1", acc.Readings[1].Device)
	assert.Equal(t, 1, acc.Readings[2].Sample)
	assert.Nil(t, acc.Readings[2].Timestamp)
	assert.Equal(t, 500.0, acc.Readings[2].Value)
}

func TestAccumulator_Empty(t *testing.T) {
	acc := NewAggregator(nil, false).Accumulate("n", []models.SampleBlock{block(0, nil, "hello")})
	assert.False(t, acc.HasMetrics())
	assert.Empty(t, acc.Devices)
}

func TestSortedMetricKeys(t *testing.T) {
	keys := SortedMetricKeys(models.DeviceMetrics{
		models.MetricTemp:    {1},
		models.MetricGPUUtil: {1},
		models.MetricPower:   {1},
	})
	assert.Equal(t, []models.MetricKey{models.MetricGPUUtil, models.MetricPower, models.MetricTemp}, keys)
}
