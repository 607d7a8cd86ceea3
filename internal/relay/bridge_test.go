package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cortexa-go/internal/clock"
	"cortexa-go/internal/speech"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	bridge *Bridge
	loop   *clock.Loop
	client *websocket.Conn
	events chan speech.Event
	frames chan speech.Frame
	errs   chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	loop := clock.NewLoop(nil)
	t.Cleanup(loop.Close)
	h := &harness{
		bridge: NewBridge(loop, nil),
		loop:   loop,
		events: make(chan speech.Event, 8),
		frames: make(chan speech.Frame, 8),
		errs:   make(chan error, 8),
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.bridge.Serve(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	h.client = client
	require.Eventually(t, h.bridge.Connected, time.Second, 5*time.Millisecond)
	return h
}

func (h *harness) read(t *testing.T) command {
	t.Helper()
	var cmd command
	require.NoError(t, h.client.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, h.client.ReadJSON(&cmd))
	return cmd
}

func (h *harness) write(t *testing.T, msg map[string]any) {
	t.Helper()
	require.NoError(t, h.client.WriteJSON(msg))
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}

func TestBridgeRecognitionSession(t *testing.T) {
	h := newHarness(t)

	sess, err := h.bridge.Start(speech.Options{Continuous: true, Language: "en-US", MaxAlternatives: 3}, func(ev speech.Event) {
		h.events <- ev
	})
	require.NoError(t, err)

	cmd := h.read(t)
	assert.Equal(t, CmdStart, cmd.Type)
	require.NotNil(t, cmd.Options)
	assert.Equal(t, "en-US", cmd.Options.Language)

	h.write(t, map[string]any{
		"type":        MsgResult,
		"session":     cmd.Session,
		"resultIndex": 0,
		"results": []map[string]any{{
			"isFinal":      true,
			"alternatives": []map[string]any{{"transcript": "hello there", "confidence": 0.9}},
		}},
	})
	ev := receive(t, h.events)
	res, ok := ev.(speech.ResultEvent)
	require.True(t, ok)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "hello there", res.Results[0].Alternatives[0].Transcript)

	h.write(t, map[string]any{"type": MsgError, "session": cmd.Session, "error": "no-speech"})
	assert.Equal(t, speech.ErrorEvent{Kind: speech.KindNoSpeech}, receive(t, h.events))

	sess.Stop()
	sess.Stop()
	stop := h.read(t)
	assert.Equal(t, CmdStop, stop.Type)
	assert.Equal(t, cmd.Session, stop.Session)

	h.write(t, map[string]any{"type": MsgEnd, "session": cmd.Session})
	assert.Equal(t, speech.EndEvent{}, receive(t, h.events))

	// Events for a finished session are dropped.
	h.write(t, map[string]any{"type": MsgEnd, "session": cmd.Session})
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridgeLevelStream(t *testing.T) {
	h := newHarness(t)

	stream, err := h.bridge.Open(func(f speech.Frame) { h.frames <- f }, func(err error) { h.errs <- err })
	require.NoError(t, err)
	cmd := h.read(t)
	assert.Equal(t, CmdLevelStart, cmd.Type)

	h.write(t, map[string]any{
		"type":       MsgLevel,
		"session":    cmd.Session,
		"timeDomain": []int{128, 300, -4},
		"frequency":  []int{10, 20},
		"sampleRate": 48000,
	})
	f := receive(t, h.frames)
	assert.Equal(t, []byte{128, 255, 0}, f.TimeDomain)
	assert.Equal(t, []byte{10, 20}, f.Frequency)
	assert.Equal(t, 48000.0, f.SampleRate)

	stream.Close()
	assert.Equal(t, CmdLevelStop, h.read(t).Type)
}

func TestBridgeLevelError(t *testing.T) {
	h := newHarness(t)

	_, err := h.bridge.Open(func(speech.Frame) {}, func(err error) { h.errs <- err })
	require.NoError(t, err)
	cmd := h.read(t)

	h.write(t, map[string]any{"type": MsgLevelError, "session": cmd.Session, "message": "NotAllowedError"})
	assert.Contains(t, receive(t, h.errs).Error(), "NotAllowedError")
}

func TestBridgeDisconnectEndsSessions(t *testing.T) {
	h := newHarness(t)

	_, err := h.bridge.Start(speech.Options{}, func(ev speech.Event) { h.events <- ev })
	require.NoError(t, err)
	_, err = h.bridge.Open(func(speech.Frame) {}, func(err error) { h.errs <- err })
	require.NoError(t, err)
	h.read(t)
	h.read(t)

	require.NoError(t, h.client.Close())
	assert.Equal(t, speech.EndEvent{}, receive(t, h.events))
	assert.ErrorIs(t, receive(t, h.errs), ErrDisconnected)
	assert.False(t, h.bridge.Connected())

	_, err = h.bridge.Start(speech.Options{}, func(speech.Event) {})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBridgeWithoutBrowser(t *testing.T) {
	loop := clock.NewLoop(nil)
	defer loop.Close()
	b := NewBridge(loop, nil)

	_, err := b.Start(speech.Options{}, func(speech.Event) {})
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = b.Open(func(speech.Frame) {}, func(error) {})
	assert.ErrorIs(t, err, ErrNotConnected)
	b.Close()
}
