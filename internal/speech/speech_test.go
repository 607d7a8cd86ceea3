package speech

import (
	"errors"
	"testing"
	"time"

	"cortexa-go/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	opts    Options
	handle  func(Event)
	stopped bool
}

func (s *fakeSession) Stop() { s.stopped = true }

func (s *fakeSession) final(index int, texts ...string) {
	results := make([]Result, len(texts))
	for i, text := range texts {
		results[i] = Result{IsFinal: true, Alternatives: []Alternative{{Transcript: text, Confidence: 0.9}}}
	}
	s.handle(ResultEvent{ResultIndex: index, Results: results})
}

type fakeRecognizer struct {
	sessions []*fakeSession
	fail     error
}

func (r *fakeRecognizer) Start(opts Options, handle func(Event)) (Session, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	s := &fakeSession{opts: opts, handle: handle}
	r.sessions = append(r.sessions, s)
	return s, nil
}

func (r *fakeRecognizer) last() *fakeSession {
	return r.sessions[len(r.sessions)-1]
}

type fakeStream struct{ closed bool }

func (s *fakeStream) Close() { s.closed = true }

type fakeLevels struct {
	onFrame func(Frame)
	onError func(error)
	stream  *fakeStream
	fail    error
}

func (l *fakeLevels) Open(onFrame func(Frame), onError func(error)) (LevelStream, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.onFrame, l.onError = onFrame, onError
	l.stream = &fakeStream{}
	return l.stream, nil
}

type reported struct {
	pause, repetition float64
	calls             int
}

func newCapture(opts CaptureOptions, rec Recognizer, levels LevelSource) (*Capture, *clock.Manual, *reported) {
	clk := clock.NewManual()
	got := &reported{}
	c := NewCapture(clk, opts, rec, levels, nil, func(pause, repetition float64) {
		got.pause, got.repetition = pause, repetition
		got.calls++
	})
	return c, clk, got
}

// quiet keeps the health check from recycling sessions in tests that do not exercise it.
func quiet() CaptureOptions {
	opts := DefaultCaptureOptions()
	opts.SilenceTimeout = 10 * time.Minute
	return opts
}

func TestCaptureSurvivesDrops(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	c, clk, got := newCapture(quiet(), rec, nil)
	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrAlreadyRecording)

	first := rec.last()
	assert.True(t, first.opts.Continuous)
	assert.True(t, first.opts.InterimResults)
	assert.Equal(t, 3, first.opts.MaxAlternatives)

	clk.Advance(time.Second)
	first.final(0, "hello world")
	first.handle(EndEvent{})
	assert.Equal(t, PhaseRecording, c.Phase())

	clk.Advance(50 * time.Millisecond)
	require.Len(t, rec.sessions, 2)
	second := rec.last()

	first.final(0, "stale words")
	clk.Advance(400 * time.Millisecond)
	second.final(0, "world how are you")
	assert.Equal(t, "hello world how are you", c.View().Transcript)

	require.NoError(t, c.Stop())
	assert.Equal(t, PhaseStopping, c.Phase())
	assert.True(t, second.stopped)
	second.handle(EndEvent{})
	assert.Equal(t, PhaseScoring, c.Phase())

	require.NoError(t, c.Continue())
	assert.Equal(t, 1, got.calls)
	assert.Equal(t, 450.0, got.pause)
	assert.Equal(t, 0.0, got.repetition)
	assert.ErrorIs(t, c.Continue(), ErrAlreadyEmitted)
}

func TestCaptureKeepsResultsArrivingAfterStop(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	c, clk, _ := newCapture(quiet(), rec, nil)
	require.NoError(t, c.Start())
	s := rec.last()

	clk.Advance(2 * time.Second)
	require.NoError(t, c.Stop())
	clk.Advance(100 * time.Millisecond)
	s.final(0, "late final words")
	assert.Equal(t, PhaseStopping, c.Phase())

	clk.Advance(400 * time.Millisecond)
	assert.Equal(t, PhaseScoring, c.Phase(), "grace period ends the drain")
	assert.Equal(t, "late final words", c.View().Transcript)

	s.final(0, "late final words", "too late")
	s.handle(EndEvent{})
	assert.Equal(t, "late final words", c.View().Transcript)
	assert.Equal(t, 0, clk.Pending())
}

func TestCaptureStopsAtWindow(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	c, clk, _ := newCapture(quiet(), rec, nil)
	require.NoError(t, c.Start())

	clk.Advance(59 * time.Second)
	assert.Equal(t, PhaseRecording, c.Phase())
	assert.Equal(t, 59, c.View().ElapsedSeconds)

	clk.Advance(time.Second)
	assert.Equal(t, PhaseStopping, c.Phase())
	assert.Equal(t, 60, c.View().ElapsedSeconds)
	assert.True(t, rec.last().stopped)

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, PhaseScoring, c.Phase())
	require.NotNil(t, c.View().Score)
	assert.Equal(t, 0, *c.View().Score)
	assert.Equal(t, "needs improvement", c.View().Band)
}

func TestCaptureEmptyRecordingReportsDefaults(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	c, clk, got := newCapture(quiet(), rec, nil)
	assert.ErrorIs(t, c.Continue(), ErrNotScored)
	assert.ErrorIs(t, c.Stop(), ErrNotRecording)

	require.NoError(t, c.Start())
	clk.Advance(3 * time.Second)
	require.NoError(t, c.Stop())
	rec.last().handle(EndEvent{})

	require.NoError(t, c.Continue())
	assert.Equal(t, 500.0, got.pause)
	assert.Equal(t, 0.0, got.repetition)
}

func TestCaptureRecordAgainDiscardsPreviousRecording(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	c, _, _ := newCapture(quiet(), rec, nil)
	require.NoError(t, c.Start())
	rec.last().final(0, "first take")
	require.NoError(t, c.Stop())
	rec.last().handle(EndEvent{})
	require.Equal(t, PhaseScoring, c.Phase())

	require.NoError(t, c.Start())
	assert.Equal(t, "", c.View().Transcript)
	assert.Nil(t, c.View().Score)
}

func TestCapturePermissionDeniedIsFatal(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	levels := &fakeLevels{}
	c, clk, _ := newCapture(quiet(), rec, levels)
	require.NoError(t, c.Start())
	s := rec.last()
	s.final(0, "some words")

	s.handle(ErrorEvent{Kind: KindPermissionDenied})
	assert.Equal(t, PhaseIdle, c.Phase())
	require.NotNil(t, c.Err())
	assert.Equal(t, KindPermissionDenied, c.Err().Kind)
	assert.False(t, c.Err().Transient)
	assert.True(t, s.stopped)
	assert.True(t, levels.stream.closed)
	assert.Equal(t, 0, clk.Pending())

	s.handle(EndEvent{})
	clk.Advance(time.Minute)
	assert.Len(t, rec.sessions, 1, "no restart after a fatal error")
}

func TestCaptureNoSpeechRestartsViaEnd(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	c, clk, _ := newCapture(quiet(), rec, nil)
	require.NoError(t, c.Start())

	rec.last().handle(ErrorEvent{Kind: KindNoSpeech})
	assert.Nil(t, c.Err())
	rec.last().handle(EndEvent{})
	clk.Advance(50 * time.Millisecond)
	assert.Len(t, rec.sessions, 2)
	assert.Equal(t, PhaseRecording, c.Phase())
}

func TestCaptureRestartBudget(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	opts := quiet()
	opts.MaxRestarts = 3
	c, clk, _ := newCapture(opts, rec, nil)
	require.NoError(t, c.Start())

	for i := 0; i < 3; i++ {
		rec.last().handle(EndEvent{})
		clk.Advance(50 * time.Millisecond)
	}
	require.Len(t, rec.sessions, 4)
	assert.Nil(t, c.Err())

	rec.last().handle(EndEvent{})
	clk.Advance(time.Second)
	assert.Len(t, rec.sessions, 4)
	require.NotNil(t, c.Err())
	assert.True(t, c.Err().Transient)
	assert.Equal(t, KindConnectivity, c.Err().Kind)
	assert.Equal(t, PhaseRecording, c.Phase(), "the recording keeps what it has")
}

func TestCaptureResultsResetRestartBudget(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	opts := quiet()
	opts.MaxRestarts = 1
	c, clk, _ := newCapture(opts, rec, nil)
	require.NoError(t, c.Start())

	for i := 0; i < 5; i++ {
		rec.last().final(0, "word")
		rec.last().handle(EndEvent{})
		clk.Advance(50 * time.Millisecond)
	}
	assert.Len(t, rec.sessions, 6)
	assert.Nil(t, c.Err())
}

func TestCaptureHealthCheckRecyclesSilentSession(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	c, clk, _ := newCapture(DefaultCaptureOptions(), rec, nil)
	require.NoError(t, c.Start())
	first := rec.last()

	clk.Advance(4 * time.Second)
	assert.Len(t, rec.sessions, 1)

	clk.Advance(2*time.Second + 50*time.Millisecond)
	assert.True(t, first.stopped)
	require.Len(t, rec.sessions, 2)

	first.final(0, "ghost")
	assert.Equal(t, "", c.View().Transcript)
	assert.Equal(t, PhaseRecording, c.Phase())
}

func TestCaptureUnsupported(t *testing.T) {
	t.Parallel()
	c, _, _ := newCapture(quiet(), nil, nil)
	err := c.Start()
	var ce *CaptureError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindUnsupported, ce.Kind)
	assert.Equal(t, PhaseIdle, c.Phase())

	failing := &fakeRecognizer{fail: errors.New("no device")}
	c, clk, _ := newCapture(quiet(), failing, nil)
	require.ErrorAs(t, c.Start(), &ce)
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, 0, clk.Pending())
}

func TestCaptureFailedRecordAgainKeepsRecording(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	c, clk, got := newCapture(quiet(), rec, nil)
	require.NoError(t, c.Start())
	clk.Advance(time.Second)
	rec.last().final(0, "the cat sat")
	clk.Advance(1200 * time.Millisecond)
	rec.last().final(1, "on the mat")
	clk.Advance(time.Second)
	require.NoError(t, c.Stop())
	rec.last().handle(EndEvent{})
	require.Equal(t, PhaseScoring, c.Phase())

	before := c.View()
	summary := c.Metrics()
	require.Equal(t, 6, before.WordCount)
	require.NotNil(t, before.Score)

	rec.fail = errors.New("browser gone")
	var ce *CaptureError
	require.ErrorAs(t, c.Start(), &ce)
	assert.Equal(t, KindUnsupported, ce.Kind)

	after := c.View()
	assert.Equal(t, PhaseScoring, after.Phase)
	assert.Equal(t, 6, after.WordCount)
	require.NotNil(t, after.Score)
	assert.Equal(t, *before.Score, *after.Score)
	assert.Equal(t, 0, clk.Pending())

	require.NoError(t, c.Continue())
	assert.Equal(t, 1, got.calls)
	assert.Equal(t, summary.PauseMs, got.pause)
	assert.Equal(t, summary.RepetitionRate, got.repetition)
}

func TestCaptureLevelMonitorIsBestEffort(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	levels := &fakeLevels{}
	c, _, _ := newCapture(quiet(), rec, levels)
	require.NoError(t, c.Start())

	loud := Frame{TimeDomain: []byte{0, 255, 0, 255}, SampleRate: 48000}
	levels.onFrame(loud)
	assert.Equal(t, 100.0, c.View().Level)

	levels.onError(errors.New("device unplugged"))
	assert.True(t, levels.stream.closed)
	assert.Equal(t, 0.0, c.View().Level)
	assert.Equal(t, PhaseRecording, c.Phase())

	broken := &fakeLevels{fail: errors.New("denied")}
	c2, _, _ := newCapture(quiet(), &fakeRecognizer{}, broken)
	require.NoError(t, c2.Start())
	assert.Equal(t, PhaseRecording, c2.Phase())
}

func TestCaptureCloseIgnoresLateEvents(t *testing.T) {
	t.Parallel()
	rec := &fakeRecognizer{}
	levels := &fakeLevels{}
	c, clk, got := newCapture(DefaultCaptureOptions(), rec, levels)
	require.NoError(t, c.Start())
	s := rec.last()
	s.final(0, "before close")
	s.handle(EndEvent{})

	c.Close()
	assert.True(t, levels.stream.closed)
	assert.Equal(t, 0, clk.Pending())

	clk.FireAll()
	s.final(0, "after close")
	s.handle(EndEvent{})
	levels.onFrame(Frame{TimeDomain: []byte{0, 255}})
	clk.Advance(2 * time.Minute)

	assert.Len(t, rec.sessions, 1)
	assert.Equal(t, "before close", c.View().Transcript)
	assert.Equal(t, 0.0, c.View().Level)
	assert.Equal(t, 0, got.calls)
	assert.ErrorIs(t, c.Start(), ErrClosed)
}

func TestTranscriptTimingsOncePerFinalResult(t *testing.T) {
	t.Parallel()
	tr := NewTranscript(3)
	tr.Apply(ResultEvent{Results: []Result{
		{IsFinal: true, Alternatives: []Alternative{{Transcript: "Hello there,"}}},
		{Alternatives: []Alternative{{Transcript: "how"}}},
	}}, time.Second)
	assert.Equal(t, "Hello there, how", tr.Display())

	tr.Apply(ResultEvent{ResultIndex: 1, Results: []Result{
		{IsFinal: true, Alternatives: []Alternative{{Transcript: "Hello there,"}}},
		{IsFinal: true, Alternatives: []Alternative{{Transcript: "how are you"}}},
	}}, 2*time.Second)

	timings := tr.Timings()
	require.Len(t, timings, 5)
	assert.Equal(t, "hello", timings[0].Word)
	assert.Equal(t, "there", timings[1].Word)
	assert.Equal(t, time.Second, timings[1].At)
	assert.Equal(t, 2*time.Second, timings[2].At)
	assert.Equal(t, "Hello there, how are you", tr.Text())
}

func TestTranscriptDedupAcrossSessions(t *testing.T) {
	t.Parallel()
	tr := NewTranscript(0)
	tr.Apply(ResultEvent{Results: []Result{{IsFinal: true, Alternatives: []Alternative{{Transcript: "the quick fox"}}}}}, 0)
	tr.EndSession()
	tr.Apply(ResultEvent{Results: []Result{{IsFinal: true, Alternatives: []Alternative{{Transcript: "Fox jumps"}}}}}, time.Second)
	assert.Equal(t, []string{"the", "quick", "fox", "jumps"}, tr.Words())
}

func TestBestAlternative(t *testing.T) {
	t.Parallel()
	alts := []Alternative{
		{Transcript: "short", Confidence: 0.5},
		{Transcript: "much longer", Confidence: 0.5},
		{Transcript: "best", Confidence: 0.9},
	}
	best, ok := BestAlternative(alts, 0)
	require.True(t, ok)
	assert.Equal(t, "best", best.Transcript)

	best, _ = BestAlternative(alts, 2)
	assert.Equal(t, "much longer", best.Transcript)

	_, ok = BestAlternative(nil, 3)
	assert.False(t, ok)
}

func TestLevel(t *testing.T) {
	t.Parallel()
	silence := Frame{TimeDomain: []byte{128, 128, 128}, Frequency: make([]byte, 1024), SampleRate: 48000}
	assert.Equal(t, 0.0, Level(silence))

	freq := make([]byte, 1024)
	for i := range freq {
		freq[i] = 255
	}
	voiced := Frame{TimeDomain: []byte{128, 128}, Frequency: freq, SampleRate: 48000}
	assert.Equal(t, 100.0, Level(voiced))

	quietFreq := make([]byte, 1024)
	for i := range quietFreq {
		quietFreq[i] = 51
	}
	assert.InDelta(t, 40.0, Level(Frame{TimeDomain: []byte{128}, Frequency: quietFreq}), 1e-9)
}
