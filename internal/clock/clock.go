// Package clock provides the timer service shared by every test in the battery.
//
// All callbacks scheduled through a Clock run on a single goroutine, so test state
// machines never need their own locking. A Scope groups the timers and asynchronous
// callbacks owned by one test instance and invalidates them together on teardown.
package clock

import (
	"errors"
	"time"
)

// Token identifies a scheduled callback. The zero Token is never issued.
type Token uint64

// ErrClosed is returned when work is handed to a clock that has been shut down.
var ErrClosed = errors.New("clock: closed")

// Clock schedules callbacks onto one goroutine.
type Clock interface {
	// Now returns the time elapsed since the clock was created. It never goes backwards.
	Now() time.Duration
	// After runs fn on the clock goroutine once d has elapsed.
	After(d time.Duration, fn func()) Token
	// Cancel prevents a scheduled callback from running. Unknown or fired tokens are ignored.
	Cancel(t Token)
	// Post queues fn to run on the clock goroutine as soon as possible.
	Post(fn func())
}
