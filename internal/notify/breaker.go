package notify

import (
	"sync"
	"time"
)

// Circuit breaker defaults: a target URL is disabled for ResetTimeout after
// MaxFailures consecutive failures.
const (
	MaxFailures  = 5
	ResetTimeout = 300 * time.Second
)

type circuitState struct {
	failures      int
	disabledUntil time.Time
}

// Breaker tracks consecutive delivery failures per target URL and
// temporarily disables targets that keep failing. It is shared by all
// concurrent dispatch attempts, so every transition happens under one lock.
type Breaker struct {
	mu     sync.Mutex
	states map[string]*circuitState
	now    func() time.Time
}

// NewBreaker creates a circuit breaker.
func NewBreaker() *Breaker {
	return &Breaker{
		states: make(map[string]*circuitState),
		now:    time.Now,
	}
}

// Allow reports whether a delivery attempt to url may proceed. An expired
// disabled window resets the state as part of the check.
func (b *Breaker) Allow(url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[url]
	if !ok {
		return true
	}
	if state.disabledUntil.IsZero() {
		return true
	}
	if b.now().Before(state.disabledUntil) {
		return false
	}
	// Window elapsed: close the circuit again.
	delete(b.states, url)
	return true
}

// RecordFailure counts one failed delivery. Reaching MaxFailures opens the
// circuit for ResetTimeout and resets the counter.
func (b *Breaker) RecordFailure(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[url]
	if !ok {
		state = &circuitState{}
		b.states[url] = state
	}
	state.failures++
	if state.failures >= MaxFailures {
		state.disabledUntil = b.now().Add(ResetTimeout)
		state.failures = 0
	}
}

// RecordSuccess fully resets the state for url (not a decrement).
func (b *Breaker) RecordSuccess(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, url)
}
