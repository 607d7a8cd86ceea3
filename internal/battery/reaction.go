package battery

import (
	"math/rand"
	"time"

	"cortexa-go/internal/clock"
	"cortexa-go/internal/metrics"

	"go.uber.org/zap"
)

type ReactionPhase string

const (
	ReactionWaiting ReactionPhase = "waiting"
	ReactionReady   ReactionPhase = "ready"
	ReactionClicked ReactionPhase = "clicked"
	ReactionDone    ReactionPhase = "done"
)

type ReactionView struct {
	Phase     ReactionPhase            `json:"phase"`
	Round     int                      `json:"round"`
	Rounds    int                      `json:"rounds"`
	LastMs    int                      `json:"lastMs,omitempty"`
	Samples   []int                    `json:"samples"`
	Premature int                      `json:"prematureClicks"`
	Summary   *metrics.ReactionSummary `json:"summary,omitempty"`
}

// ReactionTest measures simple visual reaction time over a fixed number of rounds.
// Each round waits a random delay, shows the stimulus and records the time to click.
type ReactionTest struct {
	scope      *clock.Scope
	cfg        ReactionConfig
	rng        *rand.Rand
	log        *zap.Logger
	onComplete func(averageMs int)

	started   bool
	phase     ReactionPhase
	round     int
	readyAt   time.Duration
	samples   []int
	last      int
	premature int
	average   int
}

func NewReactionTest(c clock.Clock, cfg ReactionConfig, rng *rand.Rand, log *zap.Logger, onComplete func(averageMs int)) *ReactionTest {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReactionTest{
		scope:      clock.NewScope(c),
		cfg:        cfg,
		rng:        rng,
		log:        log,
		onComplete: onComplete,
		phase:      ReactionWaiting,
	}
}

// Start arms the first round.
func (t *ReactionTest) Start() {
	if t.started || t.scope.Closed() {
		return
	}
	t.started = true
	t.startRound()
}

func (t *ReactionTest) startRound() {
	// At most one pending timer per round.
	t.scope.CancelAll()
	t.phase = ReactionWaiting
	t.scope.After(t.delay(), t.arm)
}

// delay is uniform in [MinDelay, MaxDelay).
func (t *ReactionTest) delay() time.Duration {
	span := t.cfg.MaxDelay - t.cfg.MinDelay
	if span <= 0 {
		return t.cfg.MinDelay
	}
	return t.cfg.MinDelay + time.Duration(t.rng.Int63n(int64(span)))
}

func (t *ReactionTest) arm() {
	t.phase = ReactionReady
	t.readyAt = t.scope.Now()
}

// Click registers a response. A click before the stimulus is counted and rejected with
// ErrPrematureClick without touching the round state.
func (t *ReactionTest) Click() (int, error) {
	if t.scope.Closed() {
		return 0, ErrClosed
	}
	switch t.phase {
	case ReactionWaiting:
		t.premature++
		t.log.Debug("Premature click", zap.Int("round", t.round+1), zap.Int("count", t.premature))
		return 0, ErrPrematureClick
	case ReactionReady:
		ms := int((t.scope.Now() - t.readyAt).Milliseconds())
		t.samples = append(t.samples, ms)
		t.last = ms
		t.phase = ReactionClicked
		t.scope.CancelAll()
		t.scope.After(t.cfg.Pause, t.next)
		return ms, nil
	default:
		return 0, ErrWrongPhase
	}
}

func (t *ReactionTest) next() {
	if len(t.samples) < t.cfg.Rounds {
		t.round++
		t.startRound()
		return
	}
	t.average = metrics.ReactionAverage(t.samples)
	t.phase = ReactionDone
	t.log.Debug("Reaction test complete", zap.Ints("samples", t.samples), zap.Int("average_ms", t.average))
	if t.onComplete != nil {
		t.onComplete(t.average)
	}
}

func (t *ReactionTest) Close() {
	t.scope.Close()
}

func (t *ReactionTest) Phase() ReactionPhase { return t.phase }

func (t *ReactionTest) View() ReactionView {
	v := ReactionView{
		Phase:     t.phase,
		Round:     t.round + 1,
		Rounds:    t.cfg.Rounds,
		LastMs:    t.last,
		Samples:   append([]int{}, t.samples...),
		Premature: t.premature,
	}
	if t.phase == ReactionDone {
		summary := metrics.SummarizeReactions(t.samples, t.premature)
		v.Summary = &summary
	}
	return v
}
