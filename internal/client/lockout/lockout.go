// Package lockout pauses credential attempts after the server reports too
// many failures and renders the remaining wait once per second.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/podesk/internal/client/ui"
	"github.com/dmitrijs2005/podesk/internal/timex"
	"github.com/jonboulle/clockwork"
)

var ErrLocked = errors.New("attempts temporarily locked")

// LockedError is returned by Check while a lock is active.
type LockedError struct {
	Subject   string
	Remaining int
}

func (e *LockedError) Error() string {
	return lockMessage(e.Subject, e.Remaining)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// State is a snapshot of the lock.
type State struct {
	RetryAfterSeconds int
	LockedUntil       time.Time
	Subject           string
}

// Controller holds at most one active lock. Locked-ness is derived from the
// clock, so an expired lock clears itself even if the countdown goroutine
// never ran.
type Controller struct {
	clock clockwork.Clock
	sink  ui.StatusSink

	mu          sync.Mutex
	state       State
	cancel      context.CancelFunc
	ticker      clockwork.Ticker
	generation  uint64
	countdownWG sync.WaitGroup
}

func New(clock clockwork.Clock, sink ui.StatusSink) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = ui.Discard{}
	}
	return &Controller{clock: clock, sink: sink}
}

// ApplyRetryAfter locks for seconds and starts the countdown, replacing any
// countdown already running. subject names what was attempted
// ("setup code", "access code"). Non-positive values are ignored.
func (c *Controller) ApplyRetryAfter(seconds int, subject string) bool {
	if seconds <= 0 {
		return false
	}

	c.mu.Lock()
	c.stopLocked()
	c.generation++
	gen := c.generation
	until := c.clock.Now().Add(time.Duration(seconds) * time.Second)
	c.state = State{RetryAfterSeconds: seconds, LockedUntil: until, Subject: subject}
	ctx, cancel := context.WithCancel(context.Background())
	ticker := c.clock.NewTicker(time.Second)
	c.cancel = cancel
	c.ticker = ticker
	c.countdownWG.Add(1)
	c.mu.Unlock()

	c.sink.SetStatus(lockMessage(subject, seconds), ui.ToneWarn)

	go func() {
		defer c.countdownWG.Done()
		c.countdown(ctx, ticker, gen, until, subject)
	}()
	return true
}

// stopLocked cancels the running countdown. Callers hold c.mu.
func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

// ApplyError engages the lock when err carries a retry-after value.
func (c *Controller) ApplyError(err error, subject string) bool {
	return c.ApplyRetryAfter(RetryAfterFromError(err), subject)
}

func (c *Controller) countdown(ctx context.Context, ticker clockwork.Ticker, gen uint64, until time.Time, subject string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			left := timex.CeilSeconds(until.Sub(c.clock.Now()))
			if !c.current(gen) {
				return
			}
			if left > 0 {
				c.sink.SetStatus(lockMessage(subject, left), ui.ToneWarn)
				continue
			}
			c.expire(gen)
			c.sink.SetStatus(expiredMessage(subject), ui.ToneGood)
			return
		}
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.state = State{}
		c.stopLocked()
	}
}

// IsLocked reports whether attempts are currently refused.
func (c *Controller) IsLocked() bool {
	return c.Remaining() > 0
}

// Remaining is the time left on the lock, 0 when unlocked.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.LockedUntil.IsZero() {
		return 0
	}
	d := c.state.LockedUntil.Sub(c.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Check returns a *LockedError while locked, nil otherwise.
func (c *Controller) Check() error {
	left := timex.CeilSeconds(c.Remaining())
	if left <= 0 {
		return nil
	}
	return &LockedError{Subject: c.State().Subject, Remaining: left}
}

// Stop cancels the countdown and releases the lock.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.generation++
	c.state = State{}
}

// Wait blocks until no countdown goroutine is running.
func (c *Controller) Wait() {
	c.countdownWG.Wait()
}

func lockMessage(subject string, seconds int) string {
	if subject == "" {
		subject = "sign-in"
	}
	return fmt.Sprintf("Too many incorrect %s attempts. Try again in %ds.", subject, seconds)
}

func expiredMessage(subject string) string {
	if subject == "" {
		subject = "sign-in"
	}
	return strings.ToUpper(subject[:1]) + subject[1:] + " lock expired. You can try again."
}
