package parser

import (
	"math"
	"sort"

	"github.com/gpu-log-summary/backend/internal/models"
)

// P95 is the percentile reported for every metric.
const P95 = 95.0

// Mean returns the arithmetic mean using compensated summation. When the
// running sum overflows, terms are scaled by 1/n first so the mean of finite
// values stays finite.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	n := float64(len(values))
	if sum := compensatedSum(values, 1); !math.IsInf(sum, 0) && !math.IsNaN(sum) {
		return sum / n, true
	}
	return compensatedSum(values, n), true
}

// compensatedSum returns the Neumaier sum of v/scale over values.
func compensatedSum(values []float64, scale float64) float64 {
	var sum, comp float64
	for _, x := range values {
		v := x / scale
		t := sum + v
		if math.Abs(sum) >= math.Abs(v) {
			comp += (sum - t) + v
		} else {
			comp += (v - t) + sum
		}
		sum = t
	}
	return sum + comp
}

// Max returns the largest value.
func Max(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}

// Percentile returns the p-th percentile (0-100) by linear interpolation
// between closest ranks: k = (n-1)*p/100. The input is not modified.
func Percentile(values []float64, p float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0], true
	}

	k := float64(len(sorted)-1) * (p / 100.0)
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return sorted[int(k)], true
	}
	d0 := sorted[int(f)] * (c - k)
	d1 := sorted[int(c)] * (k - f)
	return d0 + d1, true
}

// Summarize reduces a value sequence to avg, p95 and max.
// Returns false for an empty sequence.
func Summarize(values []float64) (models.Stat, bool) {
	avg, ok := Mean(values)
	if !ok {
		return models.Stat{}, false
	}
	p95, _ := Percentile(values, P95)
	peak, _ := Max(values)
	return models.Stat{Avg: avg, P95: p95, Max: peak}, true
}

// SummarizeDevice reduces every metric of a device, omitting empty sequences.
func SummarizeDevice(dm models.DeviceMetrics) map[models.MetricKey]models.Stat {
	out := make(map[models.MetricKey]models.Stat, len(dm))
	for key, values := range dm {
		if stat, ok := Summarize(values); ok {
			out[key] = stat
		}
	}
	return out
}
