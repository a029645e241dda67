// Package breaker implements a sliding-window circuit breaker. The pipeline
// records the outcome of each store interaction; when the failure ratio over
// the window crosses the threshold, the breaker opens and the intake pauses
// so queued events redeliver instead of burning their receive budget against
// a struggling Redis.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes a Breaker.
type Config struct {
	// FailureRatio opens the breaker when failures/(successes+failures)
	// within Window reaches it.
	FailureRatio float64
	// Window is the sliding observation window.
	Window time.Duration
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// MinSamples is the minimum number of observations in the window before
	// the ratio is evaluated.
	MinSamples int
	// HalfOpenProbes is how many consecutive successes close a half-open
	// breaker. Zero means 1.
	HalfOpenProbes int
	// OnStateChange, if set, is called after every transition. It runs
	// outside the breaker's lock.
	OnStateChange func(from, to State)
}

// bucket accumulates one second of observations.
type bucket struct {
	sec       int64
	successes int
	failures  int
}

// Breaker is a sliding-window circuit breaker. The window is a ring of
// one-second buckets so old observations age out without tracking every
// individual sample.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	state      State
	buckets    []bucket
	openedAt   time.Time
	halfOpenOK int
}

// New creates a Breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	seconds := int(cfg.Window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return &Breaker{
		cfg:     cfg,
		now:     time.Now,
		state:   StateClosed,
		buckets: make([]bucket, seconds),
	}
}

// Allow reports whether a unit of work may proceed. An open breaker whose
// cooldown has elapsed transitions to half-open and allows the probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		b.mu.Unlock()
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			notify := b.transition(StateHalfOpen)
			b.mu.Unlock()
			notify()
			return true
		}
		b.mu.Unlock()
		return false
	default:
		b.mu.Unlock()
		return false
	}
}

// Success records a successful observation.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.bucketNow().successes++

	notify := func() {}
	if b.state == StateHalfOpen {
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenProbes {
			b.resetWindow()
			notify = b.transition(StateClosed)
		}
	}
	b.mu.Unlock()
	notify()
}

// Failure records a failed observation. In the closed state it may open the
// breaker; in half-open it reopens immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	b.bucketNow().failures++

	notify := func() {}
	switch b.state {
	case StateHalfOpen:
		b.openedAt = b.now()
		notify = b.transition(StateOpen)
	case StateClosed:
		succ, fail := b.windowCounts()
		total := succ + fail
		if total >= b.cfg.MinSamples && float64(fail)/float64(total) >= b.cfg.FailureRatio {
			b.openedAt = b.now()
			notify = b.transition(StateOpen)
		}
	}
	b.mu.Unlock()
	notify()
}

// State returns the current state, transitioning open to half-open if the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	s := b.state
	if s == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		notify := b.transition(StateHalfOpen)
		s = b.state
		b.mu.Unlock()
		notify()
		return s
	}
	b.mu.Unlock()
	return s
}

// Counts returns the successes and failures currently inside the window.
func (b *Breaker) Counts() (successes, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.windowCounts()
}

// transition changes state and returns the callback to invoke after the lock
// is released. Callers must hold b.mu.
func (b *Breaker) transition(to State) func() {
	from := b.state
	if from == to {
		return func() {}
	}
	b.state = to
	if to != StateHalfOpen {
		b.halfOpenOK = 0
	}
	if cb := b.cfg.OnStateChange; cb != nil {
		return func() { cb(from, to) }
	}
	return func() {}
}

// bucketNow returns the ring bucket for the current second, resetting it if
// it still holds a previous rotation. Callers must hold b.mu.
func (b *Breaker) bucketNow() *bucket {
	sec := b.now().Unix()
	bk := &b.buckets[sec%int64(len(b.buckets))]
	if bk.sec != sec {
		*bk = bucket{sec: sec}
	}
	return bk
}

// windowCounts sums observations that are still inside the window.
// Callers must hold b.mu.
func (b *Breaker) windowCounts() (successes, failures int) {
	oldest := b.now().Unix() - int64(len(b.buckets)) + 1
	for i := range b.buckets {
		if b.buckets[i].sec >= oldest {
			successes += b.buckets[i].successes
			failures += b.buckets[i].failures
		}
	}
	return successes, failures
}

// resetWindow clears all buckets. Callers must hold b.mu.
func (b *Breaker) resetWindow() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
}
