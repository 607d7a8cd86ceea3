package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryScore(t *testing.T) {
	t.Parallel()
	target := []string{"Apple", "River", "Mountain", "Book", "Sunshine"}

	tests := []struct {
		name     string
		recalled string
		want     int
	}{
		{"partial, out of order with noise", "book apple tree river", 60},
		{"case and repetition ignored", "APPLE apple River", 40},
		{"everything", "sunshine mountain book river apple", 100},
		{"nothing matches", "ocean desert", 0},
		{"blank", "   ", 0},
		{"substring is not a match", "apples rivers", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MemoryScore(target, tt.recalled))
		})
	}

	assert.Equal(t, 0, MemoryScore(nil, "apple"))
	assert.Equal(t, 3, CountRecalled(target, "book apple tree river"))
}

func TestReactionAverage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 170, ReactionAverage([]int{150, 200, 175, 225, 100}))
	assert.Equal(t, 200, ReactionAverage([]int{100, 200, 300}))
	assert.Equal(t, 0, ReactionAverage(nil))
	assert.Equal(t, 2, ReactionAverage([]int{1, 2}))
}

func TestSummarizeReactions(t *testing.T) {
	t.Parallel()
	s := SummarizeReactions([]int{200, 400}, 2)
	assert.Equal(t, 300, s.AverageMs)
	assert.Equal(t, 200, s.BestMs)
	assert.True(t, s.SD.Calculated)
	assert.InDelta(t, 100, s.SD.Value, 1e-9)
	assert.Equal(t, 2, s.Premature)

	single := SummarizeReactions([]int{250}, 0)
	assert.False(t, single.SD.Calculated)
	assert.Equal(t, 250, single.BestMs)
}

func TestPuzzleErrorRate(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.25, PuzzleErrorRate(1, 4, 3), 1e-9)
	assert.Equal(t, 0.0, PuzzleErrorRate(0, 3, 3))
	assert.Equal(t, 1.0, PuzzleErrorRate(9, 4, 3))
	assert.InDelta(t, 1.0/3, PuzzleErrorRate(1, 0, 3), 1e-9)
	assert.Equal(t, 0.0, PuzzleErrorRate(2, 0, 0))

	for _, attempts := range []int{0, 1, 3, 7} {
		prev := -1.0
		for errs := 0; errs <= attempts+4; errs++ {
			rate := PuzzleErrorRate(errs, attempts, 3)
			assert.GreaterOrEqual(t, rate, prev, "attempts=%d errors=%d", attempts, errs)
			assert.GreaterOrEqual(t, rate, 0.0)
			assert.LessOrEqual(t, rate, 1.0)
			prev = rate
		}
	}
}

func timings(words []string, gapsMs ...int) []WordTiming {
	out := make([]WordTiming, len(words))
	at := time.Duration(0)
	for i, w := range words {
		if i > 0 {
			at += time.Duration(gapsMs[i-1]) * time.Millisecond
		}
		out[i] = WordTiming{Word: w, At: at}
	}
	return out
}

func TestSpeechMetrics(t *testing.T) {
	t.Parallel()
	words := []string{"the", "cat", "the", "dog"}
	got := SpeechMetrics(words, timings(words, 400, 400, 400))
	assert.Equal(t, 400.0, got.PauseMs)
	assert.Equal(t, 0.25, got.RepetitionRate)
	assert.Equal(t, 3, got.Pauses)
	assert.Equal(t, 4, got.Words)
}

func TestSpeechMetricsFiltersUnrealisticGaps(t *testing.T) {
	t.Parallel()
	words := []string{"a", "b", "c", "d", "e"}
	got := SpeechMetrics(words, timings(words, 50, 300, 6000, 501))
	assert.Equal(t, 401.0, got.PauseMs)
	assert.Equal(t, 2, got.Pauses)

	none := SpeechMetrics(words, timings(words, 0, 0, 0, 0))
	assert.Equal(t, float64(DefaultPauseMs), none.PauseMs)
}

func TestSpeechMetricsEmpty(t *testing.T) {
	t.Parallel()
	got := SpeechMetrics(nil, nil)
	assert.Equal(t, float64(DefaultPauseMs), got.PauseMs)
	assert.Equal(t, 0.0, got.RepetitionRate)
}

func TestSpeechMetricsRepetitionIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	got := SpeechMetrics([]string{"Hello", "hello"}, nil)
	assert.Equal(t, 0.5, got.RepetitionRate)
}

func TestSpeechCompositeScore(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, SpeechCompositeScore(nil, nil, time.Minute))

	// 120 distinct words a minute with steady 400 ms gaps earns every point.
	words := make([]string, 120)
	gapsMs := make([]int, 119)
	for i := range words {
		words[i] = "w" + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	for i := range gapsMs {
		gapsMs[i] = 400
	}
	assert.Equal(t, 100, SpeechCompositeScore(words, timings(words, gapsMs...), time.Minute))

	// 4 words in a minute, one repeated, no usable gaps.
	few := []string{"go", "go", "now", "please"}
	// rate 1, pause 30, diversity 3/4/0.7*25 capped 25, consistency 12.
	assert.Equal(t, 68, SpeechCompositeScore(few, nil, time.Minute))
}

func TestConsistencyScore(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 12.0, consistencyScore(nil))
	two := []string{"hello", "there"}
	assert.Equal(t, 12.0, consistencyScore(timings(two, 400)))
	three := []string{"hello", "there", "friend"}
	assert.Equal(t, 15.0, consistencyScore(timings(three, 400, 400)))
	assert.Equal(t, 10.0, consistencyScore(timings(three, 100, 4900)))
}

func TestPauseScoreBands(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 30.0, pauseScore(300))
	assert.Equal(t, 30.0, pauseScore(500))
	assert.Equal(t, 25.0, pauseScore(250))
	assert.Equal(t, 20.0, pauseScore(0))
	assert.Equal(t, 20.0, pauseScore(650))
	assert.Equal(t, 15.0, pauseScore(5000))
}

func TestScoreBand(t *testing.T) {
	t.Parallel()
	require.Equal(t, "excellent", ScoreBand(80))
	require.Equal(t, "good", ScoreBand(79))
	require.Equal(t, "fair", ScoreBand(40))
	require.Equal(t, "needs improvement", ScoreBand(39))
}

func TestNormalizeWord(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello", NormalizeWord("Hello,"))
	assert.Equal(t, "dont", NormalizeWord("don't"))
	assert.Equal(t, "", NormalizeWord("..."))
}
