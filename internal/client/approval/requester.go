// Package approval implements the cross-device login-approval workflow: a
// requester waits for an administrator decision on its sign-in, and an
// approver with the capability polls for such requests and decides them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/dmitrijs2005/podesk/internal/timex"
	"github.com/jonboulle/clockwork"
)

var (
	ErrExpired          = errors.New("login approval timed out")
	ErrNoPendingRequest = errors.New("no pending login request was found")
	ErrBusy             = errors.New("already waiting for approval")
)

// RejectedError is returned when the administrator rejects the request.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return "login request was rejected"
	}
	return e.Reason
}

// State of the requester.
type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting_approval"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateExpired  State = "expired"
	StateError    State = "error"
)

// RequesterConfig tunes the pending poll.
type RequesterConfig struct {
	// Cadence is the target period of one poll cycle.
	Cadence time.Duration
	// MinWait is the minimum pause between polls.
	MinWait time.Duration
	// DefaultTimeout applies when the server gives no expiry.
	DefaultTimeout time.Duration
	// MinTimeout is the floor of the overall wait.
	MinTimeout time.Duration
	// DriftThreshold is how far the displayed countdown may drift from the
	// server's before it is resynced.
	DriftThreshold time.Duration
}

func DefaultRequesterConfig() RequesterConfig {
	return RequesterConfig{
		Cadence:        time.Second,
		MinWait:        180 * time.Millisecond,
		DefaultTimeout: 120 * time.Second,
		MinTimeout:     10 * time.Second,
		DriftThreshold: 3 * time.Second,
	}
}

// Requester polls the pending endpoint until the request this session
// created is decided or expires.
type Requester struct {
	api    client.Client
	clock  clockwork.Clock
	sink   ui.StatusSink
	cfg    RequesterConfig
	logger logging.Logger

	mu      sync.Mutex
	state   State
	waiting bool
}

func NewRequester(api client.Client, clock clockwork.Clock, sink ui.StatusSink, cfg RequesterConfig, logger logging.Logger) *Requester {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = ui.Discard{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Requester{
		api:    api,
		clock:  clock,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With("component", "approval-requester"),
		state:  StateIdle,
	}
}

func (r *Requester) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Requester) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

// Timeout is the overall wait for a request the server says expires in
// expiresIn seconds.
func (r *Requester) Timeout(expiresIn int) time.Duration {
	d := r.cfg.DefaultTimeout
	if expiresIn > 0 {
		d = time.Duration(expiresIn) * time.Second
	}
	if d < r.cfg.MinTimeout {
		d = r.cfg.MinTimeout
	}
	return d
}

// Wait blocks until the request is approved, rejected, gone or expired.
// On approval the pending result carries the session claims.
func (r *Requester) Wait(ctx context.Context, expiresIn int) (*models.PendingResult, error) {
	r.mu.Lock()
	if r.waiting {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.waiting = true
	r.state = StateAwaiting
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.waiting = false
		r.mu.Unlock()
	}()

	timeout := r.Timeout(expiresIn)
	cd := newCountdown(r.clock, r.sink, r.clock.Now().Add(timeout), timex.CeilSeconds(timeout))
	cd.render()

	ticker := r.clock.NewTicker(time.Second)
	countdownCtx, stopCountdown := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-countdownCtx.Done():
				return
			case <-ticker.Chan():
				cd.tick()
			}
		}
	}()

	res, state, err := r.poll(ctx, cd)
	stopCountdown()
	wg.Wait()
	if state == StateExpired {
		cd.render()
	}
	r.setState(state)
	return res, err
}

func (r *Requester) poll(ctx context.Context, cd *countdown) (*models.PendingResult, State, error) {
	for r.clock.Now().Before(cd.deadline) {
		started := r.clock.Now()

		res, err := r.api.PendingLogin(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, StateIdle, ctxErr
			}
			if !client.IsTransient(err) {
				return nil, StateError, fmt.Errorf("approval status: %w", err)
			}
			r.logger.Debug(ctx, "pending poll failed, retrying", "error", err)
		} else {
			switch res.Status {
			case models.PendingStateApproved:
				if res.Authenticated {
					return res, StateApproved, nil
				}
			case models.PendingStateRejected:
				return nil, StateRejected, &RejectedError{Reason: res.Error}
			case models.PendingStateExpired:
				return nil, StateExpired, ErrExpired
			case models.PendingStateNone:
				return nil, StateError, ErrNoPendingRequest
			}
			if res.ExpiresIn != nil && *res.ExpiresIn > 0 {
				cd.resync(*res.ExpiresIn, timex.CeilSeconds(r.cfg.DriftThreshold))
			}
			cd.render()
		}

		wait := r.cfg.Cadence - r.clock.Since(started)
		if wait < r.cfg.MinWait {
			wait = r.cfg.MinWait
		}
		select {
		case <-ctx.Done():
			return nil, StateIdle, ctx.Err()
		case <-r.clock.After(wait):
		}
	}
	return nil, StateExpired, ErrExpired
}

// countdown is the 1 Hz "Waiting for admin approval... Ns" display. The
// shown value never exceeds the real time left, so poll responses can only
// pull it down to the deadline, not push it past.
type countdown struct {
	clock    clockwork.Clock
	sink     ui.StatusSink
	deadline time.Time

	mu      sync.Mutex
	display int
}

func newCountdown(clock clockwork.Clock, sink ui.StatusSink, deadline time.Time, display int) *countdown {
	return &countdown{clock: clock, sink: sink, deadline: deadline, display: display}
}

func (c *countdown) tick() {
	c.mu.Lock()
	if c.display > 0 {
		c.display--
	}
	c.mu.Unlock()
	c.render()
}

// resync adopts the server's remaining seconds when they differ from the
// display by at least threshold.
func (c *countdown) resync(serverRemaining, threshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	diff := serverRemaining - c.display
	if diff < 0 {
		diff = -diff
	}
	if diff >= threshold {
		c.display = serverRemaining
	}
}

func (c *countdown) remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	left := min(c.display, timex.CeilSeconds(c.deadline.Sub(c.clock.Now())))
	return max(0, left)
}

func (c *countdown) render() {
	if left := c.remaining(); left > 0 {
		c.sink.SetStatus(fmt.Sprintf("Waiting for admin approval... %ds", left), ui.ToneWarn)
		return
	}
	c.sink.SetStatus("Waiting for admin approval...", ui.ToneWarn)
}
