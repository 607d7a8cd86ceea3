package battery

import (
	"math/rand"
	"slices"

	"cortexa-go/internal/clock"
	"cortexa-go/internal/metrics"

	"go.uber.org/zap"
)

type PuzzlePhase string

const (
	PuzzleSelecting PuzzlePhase = "selecting"
	PuzzleSolved    PuzzlePhase = "solved"
	PuzzleComplete  PuzzlePhase = "complete"
)

type PuzzleView struct {
	Phase     PuzzlePhase `json:"phase"`
	Round     int         `json:"round"`
	Rounds    int         `json:"rounds"`
	Presented []int       `json:"presented"`
	Selection []int       `json:"selection"`
	Attempts  int         `json:"attempts"`
	Total     int         `json:"totalAttempts"`
	Errors    int         `json:"errors"`
	ErrorRate *float64    `json:"errorRate,omitempty"`
	Reported  bool        `json:"reported"`
}

// PuzzleTest asks for the elements of a shuffled sequence to be selected back in their
// original order, over a fixed number of rounds.
type PuzzleTest struct {
	scope      *clock.Scope
	cfg        PuzzleConfig
	rng        *rand.Rand
	log        *zap.Logger
	onComplete func(errorRate float64)

	started       bool
	phase         PuzzlePhase
	round         int
	target        []int
	presented     []int
	selection     []int
	attempts      int
	totalAttempts int
	errors        int
	emitted       bool
}

func NewPuzzleTest(c clock.Clock, cfg PuzzleConfig, rng *rand.Rand, log *zap.Logger, onComplete func(errorRate float64)) *PuzzleTest {
	if log == nil {
		log = zap.NewNop()
	}
	return &PuzzleTest{
		scope:      clock.NewScope(c),
		cfg:        cfg,
		rng:        rng,
		log:        log,
		onComplete: onComplete,
		phase:      PuzzleSelecting,
	}
}

func (t *PuzzleTest) Start() {
	if t.started || t.scope.Closed() {
		return
	}
	t.started = true
	t.startRound()
}

func (t *PuzzleTest) startRound() {
	seq := t.cfg.Sequences[t.rng.Intn(len(t.cfg.Sequences))]
	t.target = slices.Clone(seq)
	t.presented = slices.Clone(seq)
	t.rng.Shuffle(len(t.presented), func(i, j int) {
		t.presented[i], t.presented[j] = t.presented[j], t.presented[i]
	})
	t.selection = nil
	t.attempts = 0
	t.phase = PuzzleSelecting
}

// Toggle removes v from the selection if present, otherwise appends it.
func (t *PuzzleTest) Toggle(v int) error {
	if t.scope.Closed() {
		return ErrClosed
	}
	if t.phase != PuzzleSelecting {
		return ErrWrongPhase
	}
	if !slices.Contains(t.target, v) {
		return ErrUnknownElement
	}
	if i := slices.Index(t.selection, v); i >= 0 {
		t.selection = slices.Delete(t.selection, i, i+1)
		return nil
	}
	t.selection = append(t.selection, v)
	return nil
}

// ClearSelection empties the current selection.
func (t *PuzzleTest) ClearSelection() error {
	if t.scope.Closed() {
		return ErrClosed
	}
	if t.phase != PuzzleSelecting {
		return ErrWrongPhase
	}
	t.selection = nil
	return nil
}

// Check compares the selection with the round's sequence. An incomplete selection is
// rejected without counting as an attempt. A wrong order counts as an error and clears
// the selection; a correct one locks the round and advances after a short delay.
func (t *PuzzleTest) Check() (bool, error) {
	if t.scope.Closed() {
		return false, ErrClosed
	}
	if t.phase != PuzzleSelecting {
		return false, ErrWrongPhase
	}
	if len(t.selection) != len(t.target) {
		return false, ErrIncompleteSelection
	}

	t.attempts++
	t.totalAttempts++
	if !slices.Equal(t.selection, t.target) {
		t.errors++
		t.selection = nil
		t.log.Debug("Puzzle attempt incorrect", zap.Int("round", t.round+1), zap.Int("errors", t.errors))
		return false, nil
	}

	t.phase = PuzzleSolved
	t.scope.After(t.cfg.AdvanceDelay, t.advance)
	return true, nil
}

func (t *PuzzleTest) advance() {
	if t.round+1 >= t.cfg.Rounds {
		t.phase = PuzzleComplete
		t.log.Debug("Puzzle complete", zap.Int("errors", t.errors), zap.Int("attempts", t.totalAttempts))
		return
	}
	t.round++
	t.startRound()
}

// ErrorRate is errors over total attempts so far, capped at 1.
func (t *PuzzleTest) ErrorRate() float64 {
	return metrics.PuzzleErrorRate(t.errors, t.totalAttempts, t.cfg.Rounds)
}

// Continue reports the error rate once all rounds are solved.
func (t *PuzzleTest) Continue() error {
	if t.scope.Closed() {
		return ErrClosed
	}
	if t.phase != PuzzleComplete {
		return ErrNotComplete
	}
	if t.emitted {
		return ErrAlreadyEmitted
	}
	t.emitted = true
	if t.onComplete != nil {
		t.onComplete(t.ErrorRate())
	}
	return nil
}

func (t *PuzzleTest) Close() {
	t.scope.Close()
}

func (t *PuzzleTest) Phase() PuzzlePhase { return t.phase }

func (t *PuzzleTest) View() PuzzleView {
	v := PuzzleView{
		Phase:     t.phase,
		Round:     t.round + 1,
		Rounds:    t.cfg.Rounds,
		Presented: slices.Clone(t.presented),
		Selection: append([]int{}, t.selection...),
		Attempts:  t.attempts,
		Total:     t.totalAttempts,
		Errors:    t.errors,
		Reported:  t.emitted,
	}
	if t.phase == PuzzleComplete {
		rate := t.ErrorRate()
		v.ErrorRate = &rate
	}
	return v
}
