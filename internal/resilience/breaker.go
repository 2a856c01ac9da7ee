package resilience

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the wrapped operation while a
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a per-dependency circuit breaker. After Threshold consecutive
// failures it opens for Cooldown; the first call after the cooldown runs as a
// half-open trial, and while that trial is in flight other calls are rejected.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	now      func() time.Time // overridable for tests
}

func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Execute runs op under the breaker. When composed with Retry, op should be
// the whole retried call so the breaker sees one observation per logical
// attempt.
func (b *Breaker) Execute(op func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = stateHalfOpen
			log.Printf("[breaker] %s: cooldown elapsed, allowing trial call", b.name)
			return nil
		}
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	case stateHalfOpen:
		// A trial call is already in flight.
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state != stateClosed {
			log.Printf("[breaker] %s: trial succeeded, closing", b.name)
		}
		b.state = stateClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		if b.state != stateOpen {
			log.Printf("[breaker] %s: opened after %d consecutive failures", b.name, b.failures)
		}
		b.state = stateOpen
		b.openedAt = b.now()
	}
}
