// Package circuitbreaker keeps a per-key failure breaker so a notification
// channel whose provider is down gets skipped during a cooldown window
// instead of tying up dispatch workers.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker for a key is open.
var ErrOpen = errors.New("circuit breaker open")

type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

type keyState struct {
	state    breakerState
	failures int
	openedAt time.Time
}

// Breaker tracks consecutive failures per key (a notification channel).
// After threshold consecutive failures the key opens for the cooldown
// duration, then admits a single probe (half-open); a success closes it
// again, a failure re-opens it.
type Breaker struct {
	mu        sync.Mutex
	keys      map[string]*keyState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New creates a Breaker. A threshold of 0 or less disables it: Allow always
// succeeds.
func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		keys:      make(map[string]*keyState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call for key may proceed. It returns ErrOpen when
// the key is open or a probe is already in flight.
func (b *Breaker) Allow(key string) error {
	if b.threshold <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.keys[key]
	if !ok {
		return nil
	}

	switch s.state {
	case open:
		if b.now().Sub(s.openedAt) >= b.cooldown {
			s.state = halfOpen
			return nil
		}
		return ErrOpen
	case halfOpen:
		return ErrOpen
	default:
		return nil
	}
}

// Success records a successful call and closes the key.
func (b *Breaker) Success(key string) {
	if b.threshold <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.keys[key]; ok {
		s.state = closed
		s.failures = 0
	}
}

// Failure records a failed call; at threshold consecutive failures the key
// opens.
func (b *Breaker) Failure(key string) {
	if b.threshold <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.keys[key]
	if !ok {
		s = &keyState{}
		b.keys[key] = s
	}

	s.failures++
	if s.failures >= b.threshold {
		s.state = open
		s.openedAt = b.now()
	}
}
