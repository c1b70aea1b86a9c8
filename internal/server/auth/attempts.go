package auth

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AttemptGuard counts failed code attempts per client key. Every max
// consecutive failures lock the key for the next step of the schedule; the
// last step repeats. Success forgets the key.
type AttemptGuard struct {
	max   int
	steps []time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*attemptEntry
}

type attemptEntry struct {
	fails       int
	lockedUntil time.Time
	level       int
}

// Failure is the outcome of one recorded failure.
type Failure struct {
	Locked     bool
	RetryAfter int
	Remaining  int
}

func NewAttemptGuard(max int, steps []time.Duration, clock clockwork.Clock) *AttemptGuard {
	return &AttemptGuard{max: max, steps: steps, clock: clock, entries: map[string]*attemptEntry{}}
}

// Locked returns the whole seconds left on key's lock, 0 when unlocked.
func (g *AttemptGuard) Locked(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[key]
	if !ok {
		return 0
	}
	return g.remaining(e)
}

func (g *AttemptGuard) remaining(e *attemptEntry) int {
	left := e.lockedUntil.Sub(g.clock.Now())
	if left <= 0 {
		e.lockedUntil = time.Time{}
		return 0
	}
	return max(1, int(math.Floor(left.Seconds())))
}

// Fail records a failure for key.
func (g *AttemptGuard) Fail(key string) Failure {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		e = &attemptEntry{}
		g.entries[key] = e
	}
	if secs := g.remaining(e); secs > 0 {
		return Failure{Locked: true, RetryAfter: secs}
	}

	e.fails++
	if e.fails < g.max {
		return Failure{Remaining: g.max - e.fails}
	}

	step := g.steps[min(e.level, len(g.steps)-1)]
	e.fails = 0
	e.lockedUntil = g.clock.Now().Add(step)
	e.level++
	return Failure{Locked: true, RetryAfter: max(1, int(step.Seconds()))}
}

// Reset forgets key.
func (g *AttemptGuard) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
}
