package metrics

import (
	"math"
	"strings"
	"time"
	"unicode"

	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultPauseMs is reported when no usable gap between words was observed.
	DefaultPauseMs = 500

	pauseFloorMs       = 100
	consistencyFloorMs = 50
	pauseCeilingMs     = 5000

	idealPauseMinMs = 300
	idealPauseMaxMs = 500

	targetWordsPerMinute = 120
	diversityTarget      = 0.7
	defaultConsistency   = 12
)

// DefaultSpeechWindow is the recording window the word rate is normalized against when
// no elapsed time is known.
const DefaultSpeechWindow = 60 * time.Second

// WordTiming records when a finalized word was observed, relative to the start of the
// recording.
type WordTiming struct {
	Word string        `json:"word"`
	At   time.Duration `json:"at"`
}

// SpeechSummary carries the two values the battery reports for speech plus the counts
// they were derived from.
type SpeechSummary struct {
	PauseMs        float64 `json:"speechPauseMs"`
	RepetitionRate float64 `json:"wordRepetitionRate"`
	Pauses         int     `json:"pauses"`
	Words          int     `json:"words"`
}

// NormalizeWord lower-cases w and strips everything that is not a letter, digit or underscore.
func NormalizeWord(w string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return -1
	}, w)
}

// gaps returns the deltas in ms between consecutive timings that fall strictly inside (lo, hi).
func gaps(timings []WordTiming, lo, hi float64) []float64 {
	var out []float64
	for i := 1; i < len(timings); i++ {
		d := float64(timings[i].At-timings[i-1].At) / float64(time.Millisecond)
		if d > lo && d < hi {
			out = append(out, d)
		}
	}
	return out
}

func lowered(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// SpeechMetrics derives the average inter-word pause and the word repetition rate.
//
// The pause is the mean of gaps strictly between 100 and 5000 ms, rounded to whole ms,
// or DefaultPauseMs when there is none. The repetition rate is the number of distinct
// words spoken more than once divided by the total word count, capped at 1.
func SpeechMetrics(words []string, timings []WordTiming) SpeechSummary {
	words = lowered(words)
	summary := SpeechSummary{PauseMs: DefaultPauseMs, Words: len(words)}
	if len(words) == 0 {
		return summary
	}

	if pauses := gaps(timings, pauseFloorMs, pauseCeilingMs); len(pauses) > 0 {
		summary.PauseMs = math.Round(stat.Mean(pauses, nil))
		summary.Pauses = len(pauses)
	}

	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	repeated := 0
	for _, n := range counts {
		if n > 1 {
			repeated++
		}
	}
	summary.RepetitionRate = math.Min(1, float64(repeated)/float64(len(words)))
	return summary
}

// SpeechCompositeScore grades a recording from 0 to 100 for display. It is never part of
// the submitted metrics.
func SpeechCompositeScore(words []string, timings []WordTiming, elapsed time.Duration) int {
	words = lowered(words)
	if len(words) == 0 {
		return 0
	}
	summary := SpeechMetrics(words, timings)

	score := wordRateScore(len(words), elapsed) +
		pauseScore(summary.PauseMs) +
		diversityScore(words) +
		consistencyScore(timings)
	return int(math.Round(clamp(score, 0, 100)))
}

// wordRateScore gives up to 30 points, reaching the maximum at 120 words per minute.
func wordRateScore(n int, elapsed time.Duration) float64 {
	window := elapsed
	if window <= 0 {
		window = DefaultSpeechWindow
	}
	if window < time.Second {
		window = time.Second
	}
	wpm := float64(n) / window.Minutes()
	return math.Min(30, wpm/targetWordsPerMinute*30)
}

// pauseScore gives 30 points inside the natural 300-500 ms band. Rushed speech loses a
// point per 10 ms down to 20, slow speech a point per 15 ms down to 15.
func pauseScore(pauseMs float64) float64 {
	switch {
	case pauseMs < idealPauseMinMs:
		return math.Max(20, 30-(idealPauseMinMs-pauseMs)/10)
	case pauseMs > idealPauseMaxMs:
		return math.Max(15, 30-(pauseMs-idealPauseMaxMs)/15)
	default:
		return 30
	}
}

func diversityScore(words []string) float64 {
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	ratio := float64(len(unique)) / float64(len(words))
	return math.Min(25, ratio/diversityTarget*25)
}

func consistencyScore(timings []WordTiming) float64 {
	pauses := gaps(timings, consistencyFloorMs, pauseCeilingMs)
	// One gap has no spread to measure.
	if len(pauses) < 2 {
		return defaultConsistency
	}
	return math.Max(10, 15-stat.PopVariance(pauses, nil)/50000)
}

// ScoreBand names the display band of a composite speech score.
func ScoreBand(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "needs improvement"
	}
}
