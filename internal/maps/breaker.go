package maps

import (
	"context"
	"errors"
	"sync"
	"time"

	"posyandu-logistics/internal/common"
)

type circuitState int

const (
	stateClosed   circuitState = iota // normal operation
	stateOpen                         // rejecting calls
	stateHalfOpen                     // allowing one probe call
)

// Breaker wraps a TravelTimeProvider and stops calling it after `threshold`
// consecutive failures until `cooldown` has elapsed.
type Breaker struct {
	next TravelTimeProvider

	mu              sync.Mutex
	state           circuitState
	failures        int
	threshold       int
	cooldown        time.Duration
	lastFailureTime time.Time
	now             func() time.Time
}

func NewBreaker(next TravelTimeProvider, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		next:      next,
		state:     stateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (b *Breaker) TravelTime(ctx context.Context, from, to common.Location) (time.Duration, error) {
	if !b.allow() {
		return 0, ErrCircuitOpen
	}

	d, err := b.next.TravelTime(ctx, from, to)
	if err != nil {
		// An unroutable pair or a caller that gave up says nothing about
		// the provider's health.
		if errors.Is(err, ErrNoRoute) || ctx.Err() != nil {
			b.recordNeutral()
		} else {
			b.recordFailure()
		}
		return 0, err
	}
	b.recordSuccess()
	return d, nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.lastFailureTime) > b.cooldown {
			b.state = stateHalfOpen
			return true
		}
		return false
	case stateHalfOpen:
		return false // only one probe at a time
	}
	return true
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = stateClosed
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = b.now()
	if b.failures >= b.threshold || b.state == stateHalfOpen {
		b.state = stateOpen
	}
}

// recordNeutral leaves the failure count alone. A half-open circuit goes back
// to open with its old failure time so the next call may probe again.
func (b *Breaker) recordNeutral() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateOpen
	}
}
