// Package timer provides fixed-delay callbacks that can be cancelled
// deterministically. A cancelled callback never runs, even if its deadline has
// already passed and it is waiting to be dispatched.
package timer

import (
	"sync"
	"time"
)

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) *Token
}

// Token identifies one scheduled callback.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	fired     bool
	stop      func() bool
}

// Cancel prevents the callback from running. It reports whether the callback
// was still pending. Safe to call on a nil token and more than once.
func (t *Token) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	if t.stop != nil {
		t.stop()
	}
	return true
}

// Pending reports whether the callback has neither run nor been cancelled.
func (t *Token) Pending() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled && !t.fired
}

// claim marks the token fired and reports whether the callback may run.
func (t *Token) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.fired = true
	return true
}

// Real schedules on the runtime timer.
type Real struct{}

// AfterFunc implements Scheduler.
func (Real) AfterFunc(d time.Duration, f func()) *Token {
	tok := &Token{}
	tok.mu.Lock()
	t := time.AfterFunc(d, func() {
		if tok.claim() {
			f()
		}
	})
	tok.stop = t.Stop
	tok.mu.Unlock()
	return tok
}

// Manual is a Scheduler driven by Advance. Callbacks run on the goroutine
// that calls Advance, in deadline order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	pending []manualEntry
	seq     int
}

type manualEntry struct {
	at  time.Duration
	seq int
	tok *Token
	f   func()
}

// NewManual returns a Manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, f func()) *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok := &Token{}
	m.seq++
	m.pending = append(m.pending, manualEntry{at: m.now + d, seq: m.seq, tok: tok, f: f})
	return tok
}

// Advance moves the clock forward by d, running every callback that comes due,
// including ones scheduled by callbacks within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		idx := -1
		for i, e := range m.pending {
			if e.at > target {
				continue
			}
			if idx < 0 || e.at < m.pending[idx].at || (e.at == m.pending[idx].at && e.seq < m.pending[idx].seq) {
				idx = i
			}
		}
		if idx < 0 {
			m.now = target
			m.mu.Unlock()
			return
		}
		e := m.pending[idx]
		m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
		m.now = e.at
		m.mu.Unlock()

		if e.tok.claim() {
			e.f()
		}
	}
}

// Pending returns the number of callbacks that are scheduled and not cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.pending {
		if e.tok.Pending() {
			n++
		}
	}
	return n
}
