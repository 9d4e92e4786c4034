package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned while a breaker is rejecting calls.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// Breaker stops calling a failing service for a cool-down period after
// Threshold consecutive failures. After the cool-down one probe call is
// let through; its outcome closes or re-opens the breaker.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
	open      bool
	probing   bool
	now       func() time.Time
}

// NewBreaker creates a closed breaker. Non-positive arguments fall back to
// 5 failures and 30s.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen
// while the breaker is open and a probe is not yet due or already running.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.probing || b.now().Sub(b.openedAt) < b.cooldown {
		return ErrCircuitOpen
	}
	b.probing = true
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		b.failures = 0
		b.open = false
		return
	}
	b.failures++
	if b.open || b.failures >= b.threshold {
		b.open = true
		b.openedAt = b.now()
	}
}

// Release ends an allowed call without counting its outcome, for calls
// abandoned by the caller.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
