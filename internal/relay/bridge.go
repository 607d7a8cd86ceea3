// Package relay exposes the browser's speech recognizer and microphone analyser to a run
// over a WebSocket. The browser executes commands and streams events back; the bridge
// delivers those events on the run's clock.
package relay

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"cortexa-go/internal/clock"
	"cortexa-go/internal/speech"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("no browser connected")
	ErrDisconnected = errors.New("browser disconnected")
)

var connections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cortexa_relay_connections",
	Help: "Open browser capability connections.",
})

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 64 << 10
)

// Command types sent to the browser.
const (
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdLevelStart = "level_start"
	CmdLevelStop  = "level_stop"
)

// Message types received from the browser.
const (
	MsgResult     = "result"
	MsgError      = "error"
	MsgEnd        = "end"
	MsgLevel      = "level"
	MsgLevelError = "level_error"
)

type command struct {
	Type    string          `json:"type"`
	Session string          `json:"session"`
	Options *speech.Options `json:"options,omitempty"`
}

// message is the union of everything the browser sends. Byte arrays arrive as JSON
// number arrays.
type message struct {
	Type        string           `json:"type"`
	Session     string           `json:"session"`
	ResultIndex int              `json:"resultIndex"`
	Results     []speech.Result  `json:"results"`
	Error       speech.ErrorKind `json:"error"`
	Message     string           `json:"message"`
	TimeDomain  []int            `json:"timeDomain"`
	Frequency   []int            `json:"frequency"`
	SampleRate  float64          `json:"sampleRate"`
}

type levelSink struct {
	onFrame func(speech.Frame)
	onError func(error)
}

// Bridge implements speech.Recognizer and speech.LevelSource for one run.
type Bridge struct {
	clock clock.Clock
	log   *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	next     uint64
	sessions map[string]func(speech.Event)
	sinks    map[string]levelSink

	writeMu sync.Mutex
}

func NewBridge(c clock.Clock, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		clock:    c,
		log:      log,
		sessions: make(map[string]func(speech.Event)),
		sinks:    make(map[string]levelSink),
	}
}

// Connected reports whether a browser is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Serve attaches conn and reads from it until it fails. A newer connection replaces an
// older one.
func (b *Bridge) Serve(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)

	b.mu.Lock()
	old := b.conn
	b.mu.Unlock()
	if old != nil {
		// Sessions running in the old page cannot be reached any more.
		b.log.Info("Replacing browser connection")
		b.detach(old)
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	connections.Inc()
	defer connections.Dec()
	b.log.Info("Browser connected", zap.String("remote", conn.RemoteAddr().String()))

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Warn("Browser connection lost", zap.Error(err))
			}
			break
		}
		b.dispatch(msg)
	}
	b.detach(conn)
}

// detach drops conn and ends everything that was running over it.
func (b *Bridge) detach(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	sessions := b.sessions
	sinks := b.sinks
	b.sessions = make(map[string]func(speech.Event))
	b.sinks = make(map[string]levelSink)
	b.mu.Unlock()

	conn.Close()
	for _, handle := range sessions {
		b.clock.Post(func() { handle(speech.EndEvent{}) })
	}
	for _, sink := range sinks {
		b.clock.Post(func() { sink.onError(ErrDisconnected) })
	}
	b.log.Info("Browser disconnected", zap.Int("sessions", len(sessions)), zap.Int("level_streams", len(sinks)))
}

func (b *Bridge) dispatch(msg message) {
	switch msg.Type {
	case MsgResult, MsgError, MsgEnd:
		b.mu.Lock()
		handle, ok := b.sessions[msg.Session]
		if ok && msg.Type == MsgEnd {
			delete(b.sessions, msg.Session)
		}
		b.mu.Unlock()
		if !ok {
			return
		}
		ev := sessionEvent(msg)
		b.clock.Post(func() { handle(ev) })

	case MsgLevel, MsgLevelError:
		b.mu.Lock()
		sink, ok := b.sinks[msg.Session]
		if ok && msg.Type == MsgLevelError {
			delete(b.sinks, msg.Session)
		}
		b.mu.Unlock()
		if !ok {
			return
		}
		if msg.Type == MsgLevelError {
			err := fmt.Errorf("level monitor: %s", msg.Message)
			b.clock.Post(func() { sink.onError(err) })
			return
		}
		frame := speech.Frame{
			TimeDomain: toBytes(msg.TimeDomain),
			Frequency:  toBytes(msg.Frequency),
			SampleRate: msg.SampleRate,
		}
		b.clock.Post(func() { sink.onFrame(frame) })

	default:
		b.log.Debug("Ignoring unknown browser message", zap.String("type", msg.Type))
	}
}

func sessionEvent(msg message) speech.Event {
	switch msg.Type {
	case MsgResult:
		return speech.ResultEvent{ResultIndex: msg.ResultIndex, Results: msg.Results}
	case MsgError:
		return speech.ErrorEvent{Kind: msg.Error, Message: msg.Message}
	}
	return speech.EndEvent{}
}

func toBytes(v []int) []byte {
	out := make([]byte, len(v))
	for i, n := range v {
		switch {
		case n < 0:
			n = 0
		case n > 255:
			n = 255
		}
		out[i] = byte(n)
	}
	return out
}

func (b *Bridge) send(cmd command) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("failed to send %s command: %w", cmd.Type, err)
	}
	return nil
}

func (b *Bridge) id() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	return strconv.FormatUint(b.next, 10)
}

// Start asks the browser to begin a recognition session.
func (b *Bridge) Start(opts speech.Options, handle func(speech.Event)) (speech.Session, error) {
	id := b.id()
	b.mu.Lock()
	b.sessions[id] = handle
	b.mu.Unlock()

	if err := b.send(command{Type: CmdStart, Session: id, Options: &opts}); err != nil {
		b.mu.Lock()
		delete(b.sessions, id)
		b.mu.Unlock()
		return nil, err
	}
	return &session{bridge: b, id: id}, nil
}

// Open asks the browser to stream analyser frames.
func (b *Bridge) Open(onFrame func(speech.Frame), onError func(error)) (speech.LevelStream, error) {
	id := b.id()
	b.mu.Lock()
	b.sinks[id] = levelSink{onFrame: onFrame, onError: onError}
	b.mu.Unlock()

	if err := b.send(command{Type: CmdLevelStart, Session: id}); err != nil {
		b.mu.Lock()
		delete(b.sinks, id)
		b.mu.Unlock()
		return nil, err
	}
	return &stream{bridge: b, id: id}, nil
}

// Close drops the browser connection.
func (b *Bridge) Close() {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		b.detach(conn)
	}
}

type session struct {
	bridge *Bridge
	id     string
	once   sync.Once
}

// Stop keeps the handler registered so final results and the end event still arrive.
func (s *session) Stop() {
	s.once.Do(func() {
		if err := s.bridge.send(command{Type: CmdStop, Session: s.id}); err != nil {
			s.bridge.log.Debug("Stop command not delivered", zap.String("session", s.id), zap.Error(err))
		}
	})
}

type stream struct {
	bridge *Bridge
	id     string
	once   sync.Once
}

func (s *stream) Close() {
	s.once.Do(func() {
		s.bridge.mu.Lock()
		delete(s.bridge.sinks, s.id)
		s.bridge.mu.Unlock()
		_ = s.bridge.send(command{Type: CmdLevelStop, Session: s.id})
	})
}
