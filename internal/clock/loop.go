package clock

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop is the production Clock. It owns one goroutine that executes posted work and
// expired timers in order.
type Loop struct {
	log   *zap.Logger
	start time.Time

	mu      sync.Mutex
	closed  bool
	next    Token
	timers  map[Token]*time.Timer
	pending []func()

	wake chan struct{}
	done chan struct{}
}

// NewLoop starts a loop goroutine. Close must be called to release it.
func NewLoop(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Loop{
		log:    log,
		start:  time.Now(),
		timers: make(map[Token]*time.Timer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			for {
				fn := l.pop()
				if fn == nil {
					break
				}
				l.invoke(fn)
			}
		}
	}
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.pending) == 0 {
		return nil
	}
	fn := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	return fn
}

// invoke keeps a panicking callback from taking the whole battery down with it.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Loop callback panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Now returns the monotonic time since the loop started.
func (l *Loop) Now() time.Duration {
	return time.Since(l.start)
}

// Post queues fn behind any work already waiting. Work posted after Close is dropped.
func (l *Loop) Post(fn func()) {
	l.post(fn)
}

func (l *Loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop goroutine and waits for it to return.
// It must not be called from the loop goroutine itself.
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// After arms a timer whose callback is delivered through the loop queue.
func (l *Loop) After(d time.Duration, fn func()) Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0
	}
	l.next++
	tok := l.next
	l.timers[tok] = time.AfterFunc(d, func() {
		l.post(func() {
			l.mu.Lock()
			_, live := l.timers[tok]
			delete(l.timers, tok)
			l.mu.Unlock()
			if live {
				fn()
			}
		})
	})
	return tok
}

// Cancel stops the timer. The liveness check in After makes sure a callback that was
// already queued when Cancel ran is dropped as well.
func (l *Loop) Cancel(tok Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[tok]; ok {
		t.Stop()
		delete(l.timers, tok)
	}
}

// Pending reports how many timers are armed.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Close stops every timer, drops queued work and ends the loop goroutine.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	for tok, t := range l.timers {
		t.Stop()
		delete(l.timers, tok)
	}
	l.pending = nil
	l.mu.Unlock()
	close(l.done)
}
