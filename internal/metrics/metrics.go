// Package metrics holds the pure scoring functions behind the battery. Nothing here
// keeps state or touches a clock; every function is a deterministic reduction of raw
// test data.
package metrics

import "math"

// MetricResult is a derived value plus whether there was enough data to compute it.
type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func toFloats(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
