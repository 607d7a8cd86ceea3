package metrics

// PuzzleErrorRate is errors over attempts, capped at 1. With no recorded attempts the
// round count stands in as denominator.
func PuzzleErrorRate(errors, totalAttempts, rounds int) float64 {
	denom := totalAttempts
	if denom <= 0 {
		denom = rounds
	}
	if denom <= 0 || errors <= 0 {
		return 0
	}
	return clamp(float64(errors)/float64(denom), 0, 1)
}
