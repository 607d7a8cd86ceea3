package speech

import (
	"errors"
	"fmt"
	"time"

	"cortexa-go/internal/clock"
	"cortexa-go/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrClosed           = errors.New("speech capture has been closed")
	ErrAlreadyRecording = errors.New("recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrNotScored        = errors.New("recording has not been scored yet")
	ErrAlreadyEmitted   = errors.New("speech result has already been reported")
)

// CaptureError is a recognizer problem surfaced to the person taking the test.
// Transient errors leave the recording running.
type CaptureError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Transient bool      `json:"transient"`
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("speech %s: %s", e.Kind, e.Message)
}

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRecording Phase = "recording"
	PhaseStopping  Phase = "stopping"
	PhaseScoring   Phase = "scoring"
)

// CaptureOptions tunes a capture. Zero fields fall back to DefaultCaptureOptions.
type CaptureOptions struct {
	Window          time.Duration
	MaxRestarts     int
	RestartDelay    time.Duration
	Grace           time.Duration
	HealthInterval  time.Duration
	SilenceTimeout  time.Duration
	Language        string
	MaxAlternatives int
}

func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		Window:          60 * time.Second,
		MaxRestarts:     50,
		RestartDelay:    50 * time.Millisecond,
		Grace:           500 * time.Millisecond,
		HealthInterval:  2 * time.Second,
		SilenceTimeout:  5 * time.Second,
		Language:        "en-US",
		MaxAlternatives: 3,
	}
}

func (o CaptureOptions) withDefaults() CaptureOptions {
	d := DefaultCaptureOptions()
	if o.Window <= 0 {
		o.Window = d.Window
	}
	if o.MaxRestarts <= 0 {
		o.MaxRestarts = d.MaxRestarts
	}
	if o.RestartDelay <= 0 {
		o.RestartDelay = d.RestartDelay
	}
	if o.Grace <= 0 {
		o.Grace = d.Grace
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = d.HealthInterval
	}
	if o.SilenceTimeout <= 0 {
		o.SilenceTimeout = d.SilenceTimeout
	}
	if o.Language == "" {
		o.Language = d.Language
	}
	if o.MaxAlternatives <= 0 {
		o.MaxAlternatives = d.MaxAlternatives
	}
	return o
}

// View is the renderable state of a capture.
type View struct {
	Phase          Phase         `json:"phase"`
	ElapsedSeconds int           `json:"elapsedSeconds"`
	WindowSeconds  int           `json:"windowSeconds"`
	Transcript     string        `json:"transcript"`
	WordCount      int           `json:"wordCount"`
	Level          float64       `json:"level"`
	Restarts       int           `json:"restarts"`
	Score          *int          `json:"score,omitempty"`
	Band           string        `json:"band,omitempty"`
	Error          *CaptureError `json:"error,omitempty"`
	Reported       bool          `json:"reported"`
}

// Capture records up to one window of free speech and turns it into pause and repetition
// metrics.
//
// The recognizer can drop a session at any moment. Drops are detected from unrequested
// end events and from a periodic health check, and recognition is restarted with the
// words finalized so far preserved. Each recognition session carries its own sequence
// number so events from a replaced or stopped session are ignored.
type Capture struct {
	scope      *clock.Scope
	opts       CaptureOptions
	recognizer Recognizer
	levels     LevelSource
	log        *zap.Logger
	onComplete func(pauseMs, repetitionRate float64)

	phase       Phase
	transcript  *Transcript
	startedAt   time.Duration
	stoppedAt   time.Duration
	elapsed     int
	session     Session
	sessionSeq  uint64
	lastEventAt time.Duration
	restarts    int
	levelStream LevelStream
	level       float64
	score       int
	err         *CaptureError
	emitted     bool
}

// NewCapture prepares an idle capture. recognizer may be nil when the host has no
// speech support; levels may be nil when no level meter is available.
func NewCapture(c clock.Clock, opts CaptureOptions, recognizer Recognizer, levels LevelSource, log *zap.Logger, onComplete func(pauseMs, repetitionRate float64)) *Capture {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Capture{
		scope:      clock.NewScope(c),
		opts:       opts,
		recognizer: recognizer,
		levels:     levels,
		log:        log,
		onComplete: onComplete,
		phase:      PhaseIdle,
		transcript: NewTranscript(opts.MaxAlternatives),
	}
}

// Start begins a fresh recording. Anything captured by an earlier recording is discarded
// once the recognizer is running; a failed start leaves it in place.
func (c *Capture) Start() error {
	if c.scope.Closed() {
		return ErrClosed
	}
	if c.phase == PhaseRecording || c.phase == PhaseStopping {
		return ErrAlreadyRecording
	}
	if c.recognizer == nil {
		c.err = &CaptureError{Kind: KindUnsupported, Message: "speech recognition is not supported in this browser"}
		return c.err
	}

	// The previous recording survives until the recognizer is running.
	c.scope.Renew()
	if err := c.openRecognition(); err != nil {
		c.log.Warn("Failed to start speech recognition", zap.Error(err))
		c.err = &CaptureError{Kind: KindUnsupported, Message: "failed to start speech recognition, please try again"}
		c.scope.Renew()
		return c.err
	}

	c.transcript.Reset()
	c.elapsed = 0
	c.restarts = 0
	c.score = 0
	c.err = nil
	c.emitted = false
	c.level = 0
	c.startedAt = c.scope.Now()
	c.stoppedAt = 0
	c.lastEventAt = c.startedAt

	c.phase = PhaseRecording
	c.scope.Tick(time.Second, c.tick)
	c.scope.Tick(c.opts.HealthInterval, c.healthCheck)
	c.openLevels()
	c.log.Info("Speech recording started", zap.Duration("window", c.opts.Window))
	return nil
}

func (c *Capture) recognizerOptions() Options {
	return Options{
		Continuous:      true,
		InterimResults:  true,
		Language:        c.opts.Language,
		MaxAlternatives: c.opts.MaxAlternatives,
	}
}

func (c *Capture) openRecognition() error {
	c.sessionSeq++
	seq := c.sessionSeq
	sess, err := c.recognizer.Start(c.recognizerOptions(), clock.Bind(c.scope, func(ev Event) {
		c.handle(seq, ev)
	}))
	if err != nil {
		return err
	}
	c.session = sess
	c.lastEventAt = c.scope.Now()
	return nil
}

// retire stops the running session and makes its remaining events stale.
func (c *Capture) retire() {
	c.sessionSeq++
	if c.session != nil {
		c.session.Stop()
		c.session = nil
	}
	c.transcript.EndSession()
}

func (c *Capture) handle(seq uint64, ev Event) {
	if seq != c.sessionSeq {
		return
	}
	c.lastEventAt = c.scope.Now()

	switch e := ev.(type) {
	case ResultEvent:
		if c.phase != PhaseRecording && c.phase != PhaseStopping {
			return
		}
		c.restarts = 0
		if c.err != nil && c.err.Transient {
			c.err = nil
		}
		c.transcript.Apply(e, c.scope.Now()-c.startedAt)
	case ErrorEvent:
		c.handleError(e)
	case EndEvent:
		c.handleEnd()
	}
}

func (c *Capture) handleError(e ErrorEvent) {
	switch e.Kind {
	case KindNoSpeech:
		// The end event that follows drives the restart.
		c.log.Debug("No speech detected, recognition will restart", zap.Int("elapsed_s", c.elapsed))
	case KindAborted:
		c.log.Debug("Speech recognition aborted")
	case KindPermissionDenied:
		c.fail(&CaptureError{Kind: e.Kind, Message: "microphone permission denied, please allow microphone access and try again"})
	case KindServiceUnavailable:
		c.fail(&CaptureError{Kind: e.Kind, Message: "speech recognition service is not available"})
	case KindNetwork:
		c.log.Warn("Speech recognition network error, will restart", zap.String("message", e.Message))
	default:
		c.log.Warn("Speech recognition error", zap.String("kind", string(e.Kind)), zap.String("message", e.Message))
	}
}

// fail tears the recording down and surfaces err.
func (c *Capture) fail(err *CaptureError) {
	if c.phase != PhaseRecording {
		return
	}
	c.log.Warn("Speech recording failed", zap.String("kind", string(err.Kind)), zap.String("message", err.Message))
	c.scope.Renew()
	c.retire()
	c.closeLevels()
	c.err = err
	c.phase = PhaseIdle
}

func (c *Capture) handleEnd() {
	switch c.phase {
	case PhaseStopping:
		// The stopped session has delivered everything it had.
		c.finish()
	case PhaseRecording:
		c.log.Debug("Speech recognition ended unexpectedly", zap.Int("elapsed_s", c.elapsed), zap.Int("restarts", c.restarts))
		c.session = nil
		c.sessionSeq++
		c.transcript.EndSession()
		c.scheduleRestart()
	}
}

func (c *Capture) scheduleRestart() {
	if c.elapsed >= c.windowSeconds() {
		return
	}
	if c.restarts >= c.opts.MaxRestarts {
		if c.err == nil {
			c.err = &CaptureError{
				Kind:      KindConnectivity,
				Message:   "having trouble maintaining the microphone connection, please keep speaking or stop and try again",
				Transient: true,
			}
			c.log.Warn("Speech recognition restart budget exhausted", zap.Int("restarts", c.restarts))
		}
		return
	}
	c.restarts++
	c.scope.After(c.opts.RestartDelay, c.restart)
}

func (c *Capture) restart() {
	if c.phase != PhaseRecording || c.session != nil {
		return
	}
	if err := c.openRecognition(); err != nil {
		c.log.Warn("Failed to restart speech recognition", zap.Int("attempt", c.restarts), zap.Error(err))
		c.scheduleRestart()
		return
	}
	c.log.Debug("Speech recognition restarted", zap.Int("attempt", c.restarts))
}

// healthCheck recycles a session that has gone quiet without ending.
func (c *Capture) healthCheck() bool {
	if c.phase != PhaseRecording {
		return false
	}
	if c.session == nil || c.scope.Now()-c.lastEventAt < c.opts.SilenceTimeout {
		return true
	}
	c.log.Debug("No recognition events for a while, restarting", zap.Duration("silence", c.scope.Now()-c.lastEventAt))
	c.retire()
	c.lastEventAt = c.scope.Now()
	c.scheduleRestart()
	return true
}

func (c *Capture) windowSeconds() int {
	return int(c.opts.Window / time.Second)
}

func (c *Capture) tick() bool {
	if c.phase != PhaseRecording {
		return false
	}
	c.elapsed++
	if c.elapsed >= c.windowSeconds() {
		c.elapsed = c.windowSeconds()
		c.beginStop()
		return false
	}
	return true
}

// Stop ends the recording. The score is computed once the recognizer has delivered its
// last results or the grace period runs out, whichever is first.
func (c *Capture) Stop() error {
	if c.scope.Closed() {
		return ErrClosed
	}
	if c.phase != PhaseRecording {
		return ErrNotRecording
	}
	c.beginStop()
	return nil
}

func (c *Capture) beginStop() {
	c.scope.CancelAll()
	c.stoppedAt = c.scope.Now()
	c.closeLevels()
	if c.session == nil {
		c.finish()
		return
	}
	c.phase = PhaseStopping
	c.session.Stop()
	c.scope.After(c.opts.Grace, c.finish)
}

func (c *Capture) finish() {
	if c.phase != PhaseRecording && c.phase != PhaseStopping {
		return
	}
	c.scope.CancelAll()
	c.sessionSeq++
	c.session = nil
	c.transcript.EndSession()

	words := c.transcript.Words()
	c.score = metrics.SpeechCompositeScore(words, c.transcript.Timings(), c.stoppedAt-c.startedAt)
	c.phase = PhaseScoring
	c.log.Info("Speech recording scored",
		zap.Int("words", len(words)),
		zap.Int("score", c.score),
		zap.Int("restarts", c.restarts))
}

// Continue reports pause and repetition for the recording, recomputed from the final
// transcript. An empty recording reports the defaults.
func (c *Capture) Continue() error {
	if c.scope.Closed() {
		return ErrClosed
	}
	if c.phase != PhaseScoring {
		return ErrNotScored
	}
	if c.emitted {
		return ErrAlreadyEmitted
	}
	c.emitted = true
	summary := c.Metrics()
	if c.onComplete != nil {
		c.onComplete(summary.PauseMs, summary.RepetitionRate)
	}
	return nil
}

// Metrics derives pause and repetition from what has been finalized so far.
func (c *Capture) Metrics() metrics.SpeechSummary {
	return metrics.SpeechMetrics(c.transcript.Words(), c.transcript.Timings())
}

// Close releases the recognizer, the level monitor and every pending timer. Late events
// from either are ignored.
func (c *Capture) Close() {
	if c.scope.Closed() {
		return
	}
	c.scope.Close()
	if c.session != nil {
		c.sessionSeq++
		c.session.Stop()
		c.session = nil
	}
	c.closeLevels()
}

func (c *Capture) openLevels() {
	if c.levels == nil {
		return
	}
	onFrame := clock.Bind(c.scope, func(f Frame) {
		if c.phase == PhaseRecording {
			c.level = Level(f)
		}
	})
	onError := clock.Bind(c.scope, func(err error) {
		c.log.Info("Audio level monitor stopped", zap.Error(err))
		c.closeLevels()
	})
	stream, err := c.levels.Open(onFrame, onError)
	if err != nil {
		c.log.Info("Audio level monitor unavailable", zap.Error(err))
		return
	}
	c.levelStream = stream
}

func (c *Capture) closeLevels() {
	if c.levelStream != nil {
		c.levelStream.Close()
		c.levelStream = nil
	}
	c.level = 0
}

func (c *Capture) Phase() Phase { return c.phase }

// Err returns the last surfaced capture error, if any.
func (c *Capture) Err() *CaptureError { return c.err }

func (c *Capture) View() View {
	v := View{
		Phase:          c.phase,
		ElapsedSeconds: c.elapsed,
		WindowSeconds:  c.windowSeconds(),
		Transcript:     c.transcript.Display(),
		WordCount:      len(c.transcript.Words()),
		Level:          c.level,
		Restarts:       c.restarts,
		Error:          c.err,
		Reported:       c.emitted,
	}
	if c.phase == PhaseScoring {
		score := c.score
		v.Score = &score
		v.Band = metrics.ScoreBand(score)
	}
	return v
}
