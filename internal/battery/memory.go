package battery

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"cortexa-go/internal/clock"
	"cortexa-go/internal/metrics"

	"go.uber.org/zap"
)

type MemoryPhase string

const (
	MemoryShowing  MemoryPhase = "showing"
	MemoryRecall   MemoryPhase = "recall"
	MemoryComplete MemoryPhase = "complete"
)

// MemoryView is what a client needs to render the test.
type MemoryView struct {
	Phase       MemoryPhase `json:"phase"`
	Words       []string    `json:"words,omitempty"`
	SecondsLeft int         `json:"secondsLeft"`
	Score       *int        `json:"score,omitempty"`
	Matched     int         `json:"matched"`
	Summary     string      `json:"summary,omitempty"`
	Reported    bool        `json:"reported"`
}

// MemoryTest shows a handful of words for a fixed study period and then scores free
// recall against them.
type MemoryTest struct {
	scope      *clock.Scope
	cfg        MemoryConfig
	rng        *rand.Rand
	log        *zap.Logger
	onComplete func(score int)

	started     bool
	phase       MemoryPhase
	words       []string
	secondsLeft int
	matched     int
	score       int
	emitted     bool
}

// NewMemoryTest prepares a test. Nothing is drawn or timed until Start.
func NewMemoryTest(c clock.Clock, cfg MemoryConfig, rng *rand.Rand, log *zap.Logger, onComplete func(score int)) *MemoryTest {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryTest{
		scope:      clock.NewScope(c),
		cfg:        cfg,
		rng:        rng,
		log:        log,
		onComplete: onComplete,
		phase:      MemoryShowing,
	}
}

// Start draws the study words without replacement and begins the countdown.
func (t *MemoryTest) Start() {
	if t.started || t.scope.Closed() {
		return
	}
	t.started = true

	n := t.cfg.WordCount
	if n > len(t.cfg.WordPool) {
		n = len(t.cfg.WordPool)
	}
	t.words = make([]string, 0, n)
	for _, i := range t.rng.Perm(len(t.cfg.WordPool))[:n] {
		t.words = append(t.words, t.cfg.WordPool[i])
	}

	t.secondsLeft = int(t.cfg.StudyDuration / time.Second)
	if t.secondsLeft <= 0 {
		t.phase = MemoryRecall
		return
	}
	t.scope.Tick(time.Second, t.tick)
	t.log.Debug("Memory test started", zap.Strings("words", t.words), zap.Int("study_seconds", t.secondsLeft))
}

func (t *MemoryTest) tick() bool {
	t.secondsLeft--
	if t.secondsLeft > 0 {
		return true
	}
	t.secondsLeft = 0
	t.phase = MemoryRecall
	return false
}

// SubmitRecall scores the recalled text. The score is frozen once computed.
func (t *MemoryTest) SubmitRecall(text string) error {
	if t.scope.Closed() {
		return ErrClosed
	}
	if t.phase != MemoryRecall {
		return ErrWrongPhase
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyRecall
	}

	t.matched = metrics.CountRecalled(t.words, text)
	t.score = metrics.MemoryScore(t.words, text)
	t.phase = MemoryComplete
	t.log.Debug("Memory recall scored", zap.Int("matched", t.matched), zap.Int("score", t.score))
	return nil
}

// Continue reports the frozen score exactly once.
func (t *MemoryTest) Continue() error {
	if t.scope.Closed() {
		return ErrClosed
	}
	if t.phase != MemoryComplete {
		return ErrNotComplete
	}
	if t.emitted {
		return ErrAlreadyEmitted
	}
	t.emitted = true
	if t.onComplete != nil {
		t.onComplete(t.score)
	}
	return nil
}

// Close cancels the countdown. Any late tick is ignored.
func (t *MemoryTest) Close() {
	t.scope.Close()
}

func (t *MemoryTest) Phase() MemoryPhase { return t.phase }

// Words returns the study words.
func (t *MemoryTest) Words() []string {
	return append([]string(nil), t.words...)
}

func (t *MemoryTest) View() MemoryView {
	v := MemoryView{
		Phase:       t.phase,
		SecondsLeft: t.secondsLeft,
		Reported:    t.emitted,
	}
	switch t.phase {
	case MemoryShowing:
		v.Words = t.Words()
	case MemoryComplete:
		score := t.score
		v.Score = &score
		v.Matched = t.matched
		v.Words = t.Words()
		v.Summary = fmt.Sprintf("You remembered %d out of %d words", t.matched, len(t.words))
	}
	return v
}
