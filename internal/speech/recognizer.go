// Package speech runs the free-speech capture step of the battery on top of a host
// speech recognizer and an optional microphone level source.
package speech

// Options configures a recognition session.
type Options struct {
	Continuous      bool   `json:"continuous"`
	InterimResults  bool   `json:"interimResults"`
	Language        string `json:"lang"`
	MaxAlternatives int    `json:"maxAlternatives"`
}

// Alternative is one candidate transcription of a result.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result groups the alternatives for one utterance.
type Result struct {
	Alternatives []Alternative `json:"alternatives"`
	IsFinal      bool          `json:"isFinal"`
}

// Event is delivered by a running recognition session. It is one of ResultEvent,
// ErrorEvent or EndEvent.
type Event interface {
	isEvent()
}

// ResultEvent carries the full result list of the session. ResultIndex is the first
// entry that changed since the previous event.
type ResultEvent struct {
	ResultIndex int      `json:"resultIndex"`
	Results     []Result `json:"results"`
}

// ErrorEvent reports a recognizer failure. An EndEvent usually follows.
type ErrorEvent struct {
	Kind    ErrorKind `json:"error"`
	Message string    `json:"message,omitempty"`
}

// EndEvent reports that the session has stopped, whether asked to or not.
type EndEvent struct{}

func (ResultEvent) isEvent() {}
func (ErrorEvent) isEvent()  {}
func (EndEvent) isEvent()    {}

// ErrorKind classifies recognizer failures.
type ErrorKind string

const (
	KindNoSpeech           ErrorKind = "no-speech"
	KindPermissionDenied   ErrorKind = "not-allowed"
	KindNetwork            ErrorKind = "network"
	KindServiceUnavailable ErrorKind = "service-not-allowed"
	KindAborted            ErrorKind = "aborted"
	KindUnsupported        ErrorKind = "unsupported"
	KindConnectivity       ErrorKind = "connectivity"
	KindOther              ErrorKind = "other"
)

// Fatal reports whether the kind ends the recording.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindPermissionDenied, KindServiceUnavailable, KindUnsupported:
		return true
	}
	return false
}

// Recognizer is the host speech-to-text capability.
type Recognizer interface {
	// Start begins a session. Events must be handed to handle on the clock goroutine of
	// the caller.
	Start(opts Options, handle func(Event)) (Session, error)
}

// Session is a running recognition session.
type Session interface {
	// Stop asks the session to finish. Pending final results and an EndEvent may still
	// be delivered afterwards.
	Stop()
}

// Frame is one snapshot of the microphone analyser: 8-bit time-domain samples centred
// on 128 and 8-bit frequency magnitudes spread evenly up to half the sample rate.
type Frame struct {
	TimeDomain []byte
	Frequency  []byte
	SampleRate float64
}

// LevelSource is the optional microphone level capability. Its absence or failure never
// affects recognition.
type LevelSource interface {
	Open(onFrame func(Frame), onError func(error)) (LevelStream, error)
}

// LevelStream is an open level feed.
type LevelStream interface {
	Close()
}
