// Package assessment sequences the battery: it mounts one test at a time, merges what
// each test reports into the run's metric record and submits the record once the last
// step completes.
package assessment

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"cortexa-go/internal/battery"
	"cortexa-go/internal/clock"
	"cortexa-go/internal/speech"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Step int

const (
	StepSpeech Step = iota + 1
	StepMemory
	StepReaction
	StepPuzzle
	StepLifestyle
)

const TotalSteps = int(StepLifestyle)

func (s Step) String() string {
	switch s {
	case StepSpeech:
		return "speech"
	case StepMemory:
		return "memory"
	case StepReaction:
		return "reaction"
	case StepPuzzle:
		return "puzzle"
	case StepLifestyle:
		return "lifestyle"
	}
	return "unknown"
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusIncomplete Status = "incomplete"
	StatusInvalid    Status = "invalid"
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	StatusFailed     Status = "failed"
)

var (
	ErrClosed        = errors.New("assessment run has been closed")
	ErrFirstStep     = errors.New("already at the first step")
	ErrSubmitted     = errors.New("assessment has already been submitted")
	ErrNotRetryable  = errors.New("nothing to retry")
	ErrStepNotActive = errors.New("that step is not active")
)

// Config wires an orchestrator to its collaborators.
type Config struct {
	Clock         clock.Clock
	Battery       battery.Config
	Speech        speech.CaptureOptions
	Recognizer    speech.Recognizer
	Levels        speech.LevelSource
	Submitter     Submitter
	SubmitTimeout time.Duration
	Rand          *rand.Rand
	Log           *zap.Logger
}

// Orchestrator runs one battery. It must only be used from the clock goroutine.
type Orchestrator struct {
	cfg    Config
	log    *zap.Logger
	userID *int64

	runID   string
	step    Step
	metrics Metrics
	status  Status
	err     error
	result  *Result
	pending *Vector
	gen     uint64
	closed  bool

	speech    *speech.Capture
	memory    *battery.MemoryTest
	reaction  *battery.ReactionTest
	puzzle    *battery.PuzzleTest
	lifestyle *battery.LifestyleForm
}

// New prepares a run for userID, which may be nil. Start mounts the first step.
func New(cfg Config, userID *int64) *Orchestrator {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	return &Orchestrator{
		cfg:    cfg,
		log:    cfg.Log,
		userID: userID,
		runID:  uuid.NewString(),
		step:   StepSpeech,
		status: StatusInProgress,
	}
}

// Start mounts the current step.
func (o *Orchestrator) Start() {
	if o.closed || o.mounted() {
		return
	}
	o.log.Info("Assessment run started", zap.String("run_id", o.runID))
	o.mount()
}

func (o *Orchestrator) mounted() bool {
	return o.speech != nil || o.memory != nil || o.reaction != nil || o.puzzle != nil || o.lifestyle != nil
}

func (o *Orchestrator) mount() {
	log := o.log.With(zap.String("run_id", o.runID), zap.Stringer("step", o.step))
	switch o.step {
	case StepSpeech:
		o.speech = speech.NewCapture(o.cfg.Clock, o.cfg.Speech, o.cfg.Recognizer, o.cfg.Levels, log, o.onSpeech)
	case StepMemory:
		o.memory = battery.NewMemoryTest(o.cfg.Clock, o.cfg.Battery.Memory, o.cfg.Rand, log, o.onMemory)
		o.memory.Start()
	case StepReaction:
		o.reaction = battery.NewReactionTest(o.cfg.Clock, o.cfg.Battery.Reaction, o.cfg.Rand, log, o.onReaction)
		o.reaction.Start()
	case StepPuzzle:
		o.puzzle = battery.NewPuzzleTest(o.cfg.Clock, o.cfg.Battery.Puzzle, o.cfg.Rand, log, o.onPuzzle)
		o.puzzle.Start()
	case StepLifestyle:
		o.lifestyle = battery.NewLifestyleForm(log, o.onLifestyle)
	}
}

// unmount tears down whichever test is mounted.
func (o *Orchestrator) unmount() {
	if o.speech != nil {
		o.speech.Close()
		o.speech = nil
	}
	if o.memory != nil {
		o.memory.Close()
		o.memory = nil
	}
	if o.reaction != nil {
		o.reaction.Close()
		o.reaction = nil
	}
	if o.puzzle != nil {
		o.puzzle.Close()
		o.puzzle = nil
	}
	if o.lifestyle != nil {
		o.lifestyle.Close()
		o.lifestyle = nil
	}
}

func (o *Orchestrator) onSpeech(pauseMs, repetitionRate float64) {
	o.metrics.Set(FieldSpeechPauseMs, pauseMs)
	o.metrics.Set(FieldWordRepetitionRate, repetitionRate)
	o.advance()
}

func (o *Orchestrator) onMemory(score int) {
	o.metrics.Set(FieldMemoryScore, float64(score))
	o.advance()
}

func (o *Orchestrator) onReaction(averageMs int) {
	o.metrics.Set(FieldReactionTimeMs, float64(averageMs))
	o.advance()
}

func (o *Orchestrator) onPuzzle(errorRate float64) {
	o.metrics.Set(FieldTaskErrorRate, errorRate)
	o.advance()
}

// onLifestyle refuses new answers once the vector has gone to the backend.
func (o *Orchestrator) onLifestyle(age int, sleepHours float64) error {
	if o.status == StatusSubmitting || o.status == StatusSubmitted {
		return ErrSubmitted
	}
	o.metrics.Set(FieldAge, float64(age))
	o.metrics.Set(FieldSleepHours, sleepHours)
	o.finish()
	return nil
}

func (o *Orchestrator) advance() {
	o.log.Debug("Step complete", zap.String("run_id", o.runID), zap.Stringer("step", o.step))
	if int(o.step) >= TotalSteps {
		return
	}
	o.unmount()
	o.step++
	o.mount()
}

// finish validates the record and hands it to the submitter.
func (o *Orchestrator) finish() {
	if o.status == StatusSubmitting || o.status == StatusSubmitted {
		return
	}
	vec, err := o.metrics.Complete()
	if err != nil {
		o.status = StatusIncomplete
		o.err = err
		o.log.Warn("Assessment incomplete, not submitting", zap.String("run_id", o.runID), zap.Error(err))
		return
	}
	if err := vec.Validate(); err != nil {
		o.status = StatusInvalid
		o.err = err
		o.log.Warn("Assessment failed validation, not submitting", zap.String("run_id", o.runID), zap.Error(err))
		return
	}
	o.submit(vec)
}

func (o *Orchestrator) submit(vec Vector) {
	o.status = StatusSubmitting
	o.err = nil
	o.pending = &vec
	gen := o.gen
	sub := Submission{RunID: o.runID, UserID: o.userID, Metrics: vec}
	submitter := o.cfg.Submitter
	timeout := o.cfg.SubmitTimeout
	if submitter == nil {
		o.submitted(gen, nil, errors.New("no scoring service configured"))
		return
	}
	o.log.Info("Submitting assessment", zap.String("run_id", o.runID))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := submitter.Submit(ctx, sub)
		o.cfg.Clock.Post(func() {
			o.submitted(gen, res, err)
		})
	}()
}

func (o *Orchestrator) submitted(gen uint64, res *Result, err error) {
	if o.closed || gen != o.gen {
		return
	}
	if err == nil && res == nil {
		err = errors.New("scoring service returned no result")
	}
	if err != nil {
		o.status = StatusFailed
		o.err = err
		o.log.Error("Assessment submission failed", zap.String("run_id", o.runID), zap.Error(err))
		return
	}
	o.status = StatusSubmitted
	o.result = res
	o.log.Info("Assessment submitted",
		zap.String("run_id", o.runID),
		zap.String("risk_level", res.RiskLevel))
}

// Back re-enters the previous step with a fresh test. Metrics from other steps are kept.
func (o *Orchestrator) Back() error {
	if o.closed {
		return ErrClosed
	}
	if o.status == StatusSubmitting || o.status == StatusSubmitted {
		return ErrSubmitted
	}
	if o.step <= StepSpeech {
		return ErrFirstStep
	}
	o.unmount()
	o.step--
	o.status = StatusInProgress
	o.err = nil
	o.pending = nil
	o.mount()
	return nil
}

// Retry resubmits the preserved record after a failed submission.
func (o *Orchestrator) Retry() error {
	if o.closed {
		return ErrClosed
	}
	if o.status != StatusFailed || o.pending == nil {
		return ErrNotRetryable
	}
	o.submit(*o.pending)
	return nil
}

// Reset discards the run and starts over with a new run id.
func (o *Orchestrator) Reset() {
	if o.closed {
		return
	}
	o.unmount()
	o.gen++
	o.runID = uuid.NewString()
	o.step = StepSpeech
	o.metrics = Metrics{}
	o.status = StatusInProgress
	o.err = nil
	o.result = nil
	o.pending = nil
	o.log.Info("Assessment run reset", zap.String("run_id", o.runID))
	o.mount()
}

// Close tears the run down. An in-flight submission result is dropped.
func (o *Orchestrator) Close() {
	if o.closed {
		return
	}
	o.unmount()
	o.gen++
	o.closed = true
}

func (o *Orchestrator) RunID() string    { return o.runID }
func (o *Orchestrator) Step() Step       { return o.step }
func (o *Orchestrator) Status() Status   { return o.status }
func (o *Orchestrator) Err() error       { return o.err }
func (o *Orchestrator) Result() *Result  { return o.result }
func (o *Orchestrator) Metrics() Metrics { return o.metrics }

func (o *Orchestrator) Speech() (*speech.Capture, error) {
	if o.closed {
		return nil, ErrClosed
	}
	if o.speech == nil {
		return nil, ErrStepNotActive
	}
	return o.speech, nil
}

func (o *Orchestrator) Memory() (*battery.MemoryTest, error) {
	if o.closed {
		return nil, ErrClosed
	}
	if o.memory == nil {
		return nil, ErrStepNotActive
	}
	return o.memory, nil
}

func (o *Orchestrator) Reaction() (*battery.ReactionTest, error) {
	if o.closed {
		return nil, ErrClosed
	}
	if o.reaction == nil {
		return nil, ErrStepNotActive
	}
	return o.reaction, nil
}

func (o *Orchestrator) Puzzle() (*battery.PuzzleTest, error) {
	if o.closed {
		return nil, ErrClosed
	}
	if o.puzzle == nil {
		return nil, ErrStepNotActive
	}
	return o.puzzle, nil
}

func (o *Orchestrator) Lifestyle() (*battery.LifestyleForm, error) {
	if o.closed {
		return nil, ErrClosed
	}
	if o.lifestyle == nil {
		return nil, ErrStepNotActive
	}
	return o.lifestyle, nil
}
