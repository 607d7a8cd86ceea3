package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ReactionAverage returns the mean of the round samples in ms, rounded. An empty
// sample set averages to 0.
func ReactionAverage(samples []int) int {
	if len(samples) == 0 {
		return 0
	}
	return int(math.Round(stat.Mean(toFloats(samples), nil)))
}

// ReactionSummary describes a finished reaction test for display.
type ReactionSummary struct {
	AverageMs int          `json:"averageMs"`
	BestMs    int          `json:"bestMs"`
	SD        MetricResult `json:"sd"`
	Rounds    int          `json:"rounds"`
	Premature int          `json:"prematureClicks"`
}

// SummarizeReactions computes average, best and population standard deviation.
// The deviation is only calculated with at least two samples.
func SummarizeReactions(samples []int, premature int) ReactionSummary {
	summary := ReactionSummary{
		AverageMs: ReactionAverage(samples),
		Rounds:    len(samples),
		Premature: premature,
		SD:        MetricResult{SampleSize: len(samples)},
	}
	for i, s := range samples {
		if i == 0 || s < summary.BestMs {
			summary.BestMs = s
		}
	}
	if len(samples) > 1 {
		summary.SD.Value = stat.PopStdDev(toFloats(samples), nil)
		summary.SD.Calculated = true
	}
	return summary
}
