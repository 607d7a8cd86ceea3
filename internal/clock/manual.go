package clock

import (
	"sort"
	"sync"
	"time"
)

type manualTimer struct {
	token     Token
	at        time.Duration
	fn        func()
	fired     bool
	cancelled bool
}

// Manual is a Clock driven by the caller. Time only moves on Advance and posted work only
// runs on RunPending or Advance, which makes timer-heavy state machines deterministic.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	next    Token
	timers  []*manualTimer
	history []*manualTimer
	posted  []func()
}

// NewManual returns a manual clock at time zero.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration, fn func()) Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.next++
	t := &manualTimer{token: m.next, at: m.now + d, fn: fn}
	m.timers = append(m.timers, t)
	m.history = append(m.history, t)
	return t.token
}

func (m *Manual) Cancel(tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.timers {
		if t.token == tok {
			t.cancelled = true
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, fn)
}

// RunPending drains posted work, including work posted while draining.
func (m *Manual) RunPending() {
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.posted[0]
		m.posted = m.posted[1:]
		m.mu.Unlock()
		fn()
	}
}

// Advance moves time forward by d, firing due timers in deadline order. Timers armed by
// callbacks during the advance fire too if they fall due before the new time.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.RunPending()
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
	m.RunPending()
}

func (m *Manual) popDue(target time.Duration) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at == m.timers[j].at {
			return m.timers[i].token < m.timers[j].token
		}
		return m.timers[i].at < m.timers[j].at
	})
	if len(m.timers) == 0 || m.timers[0].at > target {
		return nil
	}
	t := m.timers[0]
	m.timers = m.timers[1:]
	t.fired = true
	m.now = t.at
	return t
}

// Pending reports how many timers are armed.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// FireAll invokes every callback ever scheduled on the clock, fired, cancelled or still
// pending, and then drains posted work. It simulates the worst case of late deliveries
// racing a teardown.
func (m *Manual) FireAll() {
	m.mu.Lock()
	all := make([]*manualTimer, len(m.history))
	copy(all, m.history)
	m.timers = nil
	m.mu.Unlock()

	for _, t := range all {
		t.fn()
	}
	m.RunPending()
}
