// Package resilience provides a circuit breaker for optional downstream
// dependencies. The allocation path never blocks on notifications, so when
// the task backend degrades the breaker sheds enqueue attempts instead of
// paying a timeout on every commit.
package resilience

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrOpen is returned by Do when the breaker refuses a call.
var ErrOpen = errors.New("resilience: circuit open")

// State is the breaker state machine position.
type State int

const (
	// Closed passes calls through and counts consecutive failures.
	Closed State = iota
	// Open rejects calls until the cool-off period expires.
	Open
	// HalfOpen lets one probe call through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker opens after a run of consecutive failures and probes the dependency
// again once the cool-off expires.
type Breaker struct {
	Target    string
	Threshold int
	OpenFor   time.Duration
	Log       zerolog.Logger
	Now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// NewBreaker constructs a breaker with sane defaults: 5 consecutive failures
// open it for 30 seconds.
func NewBreaker(target string, threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{Target: target, Threshold: threshold, OpenFor: openFor, Log: zerolog.Nop()}
}

// Do runs fn unless the breaker is open, and records the outcome. The error
// from fn passes through unchanged; a refused call returns ErrOpen.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.report(err == nil)
	return err
}

// CurrentState returns the state the breaker is in right now.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.OpenFor {
			return false
		}
		b.transitionLocked(HalfOpen)
	}
	return true
}

func (b *Breaker) report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		if success {
			b.transitionLocked(Closed)
		} else {
			b.transitionLocked(Open)
		}
	case Closed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.Threshold {
			b.transitionLocked(Open)
		}
	}
}

func (b *Breaker) transitionLocked(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.failures = 0
	if next == Open {
		b.openedAt = b.now()
	}
	label := b.targetLabel()
	BreakerState.WithLabelValues(label).Set(float64(next))
	BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	b.Log.Warn().
		Str("target", label).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("circuit breaker transition")
}

func (b *Breaker) targetLabel() string {
	if t := strings.TrimSpace(b.Target); t != "" {
		return t
	}
	return "default"
}

func (b *Breaker) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
