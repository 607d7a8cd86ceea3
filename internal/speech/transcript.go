package speech

import (
	"strings"
	"time"

	"cortexa-go/internal/metrics"
)

// Transcript accumulates finalized speech across recognition sessions.
//
// A session reports its whole result list on every event, so the finals of the running
// session are rebuilt each time and only folded into the committed words when the
// session ends. Word timings are taken the first time a result turns final.
type Transcript struct {
	maxAlternatives int

	committed []string
	current   []string
	interim   string
	timings   []metrics.WordTiming
	timed     map[int]bool
}

func NewTranscript(maxAlternatives int) *Transcript {
	return &Transcript{maxAlternatives: maxAlternatives, timed: make(map[int]bool)}
}

// Reset clears everything for a new recording.
func (t *Transcript) Reset() {
	t.committed = nil
	t.current = nil
	t.interim = ""
	t.timings = nil
	t.timed = make(map[int]bool)
}

// Apply folds a result event observed at the given offset into the transcript.
func (t *Transcript) Apply(ev ResultEvent, at time.Duration) {
	var finals []string
	interim := ""
	for i, r := range ev.Results {
		alt, ok := BestAlternative(r.Alternatives, t.maxAlternatives)
		if !ok {
			continue
		}
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		if !r.IsFinal {
			if i == len(ev.Results)-1 {
				interim = text
			}
			continue
		}

		words := strings.Fields(text)
		finals = append(finals, words...)
		if !t.timed[i] {
			t.timed[i] = true
			for _, w := range words {
				if n := metrics.NormalizeWord(w); n != "" {
					t.timings = append(t.timings, metrics.WordTiming{Word: n, At: at})
				}
			}
		}
	}
	if len(finals) > 0 {
		t.current = finals
	}
	t.interim = interim
}

// EndSession commits the running session's finals. Result indices restart with the
// next session.
func (t *Transcript) EndSession() {
	t.committed = append(t.committed, t.current...)
	t.current = nil
	t.interim = ""
	t.timed = make(map[int]bool)
}

// Words returns the finalized words with adjacent case-insensitive duplicates collapsed.
func (t *Transcript) Words() []string {
	all := make([]string, 0, len(t.committed)+len(t.current))
	all = append(all, t.committed...)
	all = append(all, t.current...)
	return dedupAdjacent(all)
}

// Text is the finalized transcript.
func (t *Transcript) Text() string {
	return strings.Join(t.Words(), " ")
}

// Display is the finalized transcript followed by the in-progress hypothesis.
func (t *Transcript) Display() string {
	text := t.Text()
	if t.interim == "" {
		return text
	}
	if text == "" {
		return t.interim
	}
	return text + " " + t.interim
}

func (t *Transcript) Timings() []metrics.WordTiming {
	return append([]metrics.WordTiming(nil), t.timings...)
}

func dedupAdjacent(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(out) > 0 && strings.EqualFold(out[len(out)-1], w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// BestAlternative picks the highest-confidence alternative among the first limit entries,
// breaking ties by the longer transcript. A limit of zero or less considers all of them.
func BestAlternative(alts []Alternative, limit int) (Alternative, bool) {
	if limit > 0 && len(alts) > limit {
		alts = alts[:limit]
	}
	var best Alternative
	found := false
	for _, a := range alts {
		if !found ||
			a.Confidence > best.Confidence ||
			(a.Confidence == best.Confidence && len(strings.TrimSpace(a.Transcript)) > len(strings.TrimSpace(best.Transcript))) {
			best = a
			found = true
		}
	}
	return best, found
}
