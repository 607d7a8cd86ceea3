package clock

import "time"

// Scope owns the timers and asynchronous callbacks of one test instance.
//
// Every callback handed out by a Scope is stamped with the scope's current generation.
// Renew and Close move the generation on, so callbacks from an earlier recording or an
// unmounted test become no-ops even if the underlying host delivers them late.
//
// A Scope is not safe for concurrent use; it must only be touched from the clock goroutine.
type Scope struct {
	clock  Clock
	gen    uint64
	closed bool
	owned  map[Token]struct{}
}

// NewScope returns a live scope on c.
func NewScope(c Clock) *Scope {
	return &Scope{clock: c, gen: 1, owned: make(map[Token]struct{})}
}

// Now returns the current clock time.
func (s *Scope) Now() time.Duration {
	return s.clock.Now()
}

// Generation returns the current session token.
func (s *Scope) Generation() uint64 {
	return s.gen
}

// Valid reports whether gen is still the live session token.
func (s *Scope) Valid(gen uint64) bool {
	return !s.closed && gen == s.gen
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	return s.closed
}

// After schedules fn for the current generation.
func (s *Scope) After(d time.Duration, fn func()) Token {
	if s.closed {
		return 0
	}
	gen := s.gen
	var tok Token
	tok = s.clock.After(d, func() {
		delete(s.owned, tok)
		if s.Valid(gen) {
			fn()
		}
	})
	s.owned[tok] = struct{}{}
	return tok
}

// Tick runs fn every d until fn returns false or the scope moves on.
func (s *Scope) Tick(d time.Duration, fn func() bool) {
	var step func()
	step = func() {
		if fn() {
			s.After(d, step)
		}
	}
	s.After(d, step)
}

// Post runs fn on the clock goroutine if the generation is still live by then.
func (s *Scope) Post(fn func()) {
	if s.closed {
		return
	}
	s.clock.Post(s.Guard(fn))
}

// Guard wraps fn so it only runs while the current generation is live.
func (s *Scope) Guard(fn func()) func() {
	gen := s.gen
	return func() {
		if s.Valid(gen) {
			fn()
		}
	}
}

// Bind is Guard for callbacks that take an argument.
func Bind[T any](s *Scope, fn func(T)) func(T) {
	gen := s.gen
	return func(v T) {
		if s.Valid(gen) {
			fn(v)
		}
	}
}

// Cancel stops one timer owned by the scope.
func (s *Scope) Cancel(tok Token) {
	if _, ok := s.owned[tok]; !ok {
		return
	}
	delete(s.owned, tok)
	s.clock.Cancel(tok)
}

// CancelAll stops every timer owned by the scope. Guarded callbacks stay valid.
func (s *Scope) CancelAll() {
	for tok := range s.owned {
		s.clock.Cancel(tok)
		delete(s.owned, tok)
	}
}

// Pending reports how many timers the scope still owns.
func (s *Scope) Pending() int {
	return len(s.owned)
}

// Renew cancels all timers and starts a new generation.
func (s *Scope) Renew() uint64 {
	s.CancelAll()
	s.gen++
	return s.gen
}

// Close cancels all timers and invalidates every callback handed out so far.
func (s *Scope) Close() {
	s.CancelAll()
	s.gen++
	s.closed = true
}
