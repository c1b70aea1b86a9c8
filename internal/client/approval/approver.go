package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/session"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/jonboulle/clockwork"
)

var ErrNotAllowed = errors.New("this device is not allowed to approve sign-in requests")

// Prompter shows one decision prompt at a time. Present replaces whatever
// is shown; Dismiss closes the prompt for id if it is the one shown.
// Implementations must not call back into the Approver synchronously.
type Prompter interface {
	Present(req models.LoginApprovalRequest)
	Dismiss(id string)
}

// ApproverConfig tunes the approver poll.
type ApproverConfig struct {
	PollInterval time.Duration
	SnoozeWindow time.Duration
}

func DefaultApproverConfig() ApproverConfig {
	return ApproverConfig{PollInterval: 4 * time.Second, SnoozeWindow: 120 * time.Second}
}

// Approver polls pending sign-in requests while the session may approve
// them, keeps a local cache mirroring the server list and drives the
// decision prompt.
type Approver struct {
	api       client.Client
	store     *session.Store
	clock     clockwork.Clock
	prompter  Prompter
	indicator ui.Indicator
	sink      ui.StatusSink
	cfg       ApproverConfig
	logger    logging.Logger

	busy atomic.Bool

	mu      sync.Mutex
	cache   []models.LoginApprovalRequest
	snoozed map[string]time.Time
	openID  string
	runGen  uint64
	// decided maps a request id to the decision epoch it was settled in.
	// A list fetched before that epoch may still carry the id.
	decided map[string]uint64
	epoch   uint64
	cancel  context.CancelFunc
	ticker  clockwork.Ticker
	wg      sync.WaitGroup
}

func NewApprover(api client.Client, store *session.Store, clock clockwork.Clock, prompter Prompter,
	indicator ui.Indicator, sink ui.StatusSink, cfg ApproverConfig, logger logging.Logger) *Approver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = ui.Discard{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Approver{
		api:       api,
		store:     store,
		clock:     clock,
		prompter:  prompter,
		indicator: indicator,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.With("component", "approval-approver"),
		snoozed:   map[string]time.Time{},
		decided:   map[string]uint64{},
	}
}

// Start begins polling: one fetch right away, then every PollInterval. It
// does nothing unless the session holds the approval capability. A running
// poll is replaced.
func (a *Approver) Start(ctx context.Context) bool {
	if !a.store.CanApprove() {
		a.Stop()
		return false
	}

	a.mu.Lock()
	a.stopLocked()
	a.runGen++
	gen := a.runGen
	runCtx, cancel := context.WithCancel(ctx)
	ticker := a.clock.NewTicker(a.cfg.PollInterval)
	a.cancel = cancel
	a.ticker = ticker
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		a.tick(runCtx, gen)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.Chan():
				a.tick(runCtx, gen)
			}
		}
	}()
	return true
}

// Stop cancels polling. It does not wait for an in-flight fetch; its result
// is discarded.
func (a *Approver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	a.runGen++
}

func (a *Approver) stopLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
}

// Wait blocks until the poll goroutine has exited.
func (a *Approver) Wait() {
	a.wg.Wait()
}

// Running reports whether polling is active.
func (a *Approver) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Reset drops the cache, the snoozes and the open prompt.
func (a *Approver) Reset() {
	a.mu.Lock()
	openID := a.openID
	a.cache = nil
	a.snoozed = map[string]time.Time{}
	a.decided = map[string]uint64{}
	a.openID = ""
	a.mu.Unlock()

	if openID != "" && a.prompter != nil {
		a.prompter.Dismiss(openID)
	}
	a.setIndicator(0)
}

func (a *Approver) tick(ctx context.Context, gen uint64) {
	if !a.busy.CompareAndSwap(false, true) {
		return
	}
	defer a.busy.Store(false)

	if !a.store.CanApprove() {
		a.Stop()
		return
	}
	if err := a.refresh(ctx, gen); err != nil {
		a.logger.Debug(ctx, "login request poll failed", "error", err)
	}
}

// Refresh fetches the pending list once and updates the cache and prompt.
func (a *Approver) Refresh(ctx context.Context) error {
	return a.refresh(ctx, 0)
}

// refresh fetches and applies the list. A non-zero gen ties the result to
// a poll run; it is discarded if that run was stopped meanwhile. Requests
// decided while the fetch was in flight are dropped from its result.
func (a *Approver) refresh(ctx context.Context, gen uint64) error {
	a.mu.Lock()
	since := a.epoch
	a.mu.Unlock()

	list, err := a.api.ListLoginRequests(ctx)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrForbidden):
			a.revoke(ctx)
			return ErrNotAllowed
		case errors.Is(err, client.ErrUnauthorized):
			a.Stop()
		}
		return err
	}

	list = models.NormalizeRequests(list)
	now := a.clock.Now()

	a.mu.Lock()
	if gen != 0 && gen != a.runGen {
		a.mu.Unlock()
		return nil
	}
	list = a.dropDecidedLocked(list, since)
	a.cache = list
	present := make(map[string]bool, len(list))
	for _, r := range list {
		present[r.ID] = true
	}
	for id, until := range a.snoozed {
		if !present[id] || !now.Before(until) {
			delete(a.snoozed, id)
		}
	}
	var dismiss string
	if a.openID != "" && !present[a.openID] {
		dismiss = a.openID
		a.openID = ""
	}
	next, ok := a.nextLocked(now)
	if ok && a.openID == "" {
		a.openID = next.ID
	} else {
		ok = false
	}
	count := len(a.cache)
	a.mu.Unlock()

	if dismiss != "" && a.prompter != nil {
		a.prompter.Dismiss(dismiss)
	}
	a.setIndicator(count)
	if ok && a.prompter != nil {
		a.prompter.Present(next)
	}
	return nil
}

// dropDecidedLocked removes requests settled after a fetch that began at
// epoch since. Older decisions are forgotten: that fetch saw them applied.
func (a *Approver) dropDecidedLocked(list []models.LoginApprovalRequest, since uint64) []models.LoginApprovalRequest {
	out := list[:0]
	for _, r := range list {
		if epoch, ok := a.decided[r.ID]; ok && epoch > since {
			continue
		}
		out = append(out, r)
	}
	for id, epoch := range a.decided {
		if epoch <= since {
			delete(a.decided, id)
		}
	}
	return out
}

// nextLocked returns the newest request that is not snoozed.
func (a *Approver) nextLocked(now time.Time) (models.LoginApprovalRequest, bool) {
	for _, r := range a.cache {
		if until, ok := a.snoozed[r.ID]; ok && now.Before(until) {
			continue
		}
		return r, true
	}
	return models.LoginApprovalRequest{}, false
}

func (a *Approver) revoke(ctx context.Context) {
	a.logger.Info(ctx, "approval capability revoked by server")
	a.store.SetCanApprove(false)
	a.Stop()
	a.Reset()
}

// OpenPending is the manual "show requests" action. It refreshes and opens
// the newest request even if it was snoozed.
func (a *Approver) OpenPending(ctx context.Context) error {
	if !a.store.CanApprove() {
		a.sink.SetStatus("This device is not allowed to approve sign-in requests.", ui.ToneWarn)
		return ErrNotAllowed
	}
	if err := a.Refresh(ctx); err != nil {
		if errors.Is(err, ErrNotAllowed) {
			a.sink.SetStatus("This device is not allowed to approve sign-in requests.", ui.ToneWarn)
		}
		return err
	}

	a.mu.Lock()
	if len(a.cache) == 0 {
		a.mu.Unlock()
		a.sink.SetStatus("No pending sign-in requests", ui.ToneInfo)
		return nil
	}
	req := a.cache[0]
	if a.openID != "" {
		for _, r := range a.cache {
			if r.ID == a.openID {
				req = r
				break
			}
		}
	}
	delete(a.snoozed, req.ID)
	a.openID = req.ID
	a.mu.Unlock()

	if a.prompter != nil {
		a.prompter.Present(req)
	}
	return nil
}

// Later snoozes id for SnoozeWindow and presents the next eligible request.
func (a *Approver) Later(id string) {
	now := a.clock.Now()

	a.mu.Lock()
	a.snoozed[id] = now.Add(a.cfg.SnoozeWindow)
	wasOpen := a.openID == id
	if wasOpen {
		a.openID = ""
	}
	next, ok := a.presentNextLocked(now)
	a.mu.Unlock()

	if wasOpen && a.prompter != nil {
		a.prompter.Dismiss(id)
	}
	if ok && a.prompter != nil {
		a.prompter.Present(next)
	}
}

func (a *Approver) presentNextLocked(now time.Time) (models.LoginApprovalRequest, bool) {
	if a.openID != "" {
		return models.LoginApprovalRequest{}, false
	}
	next, ok := a.nextLocked(now)
	if ok {
		a.openID = next.ID
	}
	return next, ok
}

// Decide submits an approve or reject verdict. The request leaves the local
// cache whatever the outcome; an already resolved request (404, 409) is not
// an error.
func (a *Approver) Decide(ctx context.Context, id string, decision models.Decision, reason string) error {
	if decision == models.DecisionReject && strings.TrimSpace(reason) == "" {
		reason = models.DefaultRejectReason
	}

	err := a.api.DecideLoginRequest(ctx, id, decision, reason)

	now := a.clock.Now()
	a.mu.Lock()
	a.epoch++
	a.decided[id] = a.epoch
	a.removeLocked(id)
	wasOpen := a.openID == id
	if wasOpen {
		a.openID = ""
	}
	next, ok := a.presentNextLocked(now)
	count := len(a.cache)
	a.mu.Unlock()

	if wasOpen && a.prompter != nil {
		a.prompter.Dismiss(id)
	}
	a.setIndicator(count)

	switch {
	case err == nil, errors.Is(err, client.ErrNotFound), errors.Is(err, client.ErrConflict):
		if decision == models.DecisionApprove {
			a.sink.SetStatus("Login request approved", ui.ToneGood)
		} else {
			a.sink.SetStatus("Login request rejected", ui.ToneWarn)
		}
		err = nil
	case errors.Is(err, client.ErrForbidden):
		a.revoke(ctx)
		ok = false
		err = ErrNotAllowed
	default:
		err = fmt.Errorf("%s login request: %w", decision, err)
	}

	if ok && a.prompter != nil {
		a.prompter.Present(next)
	}
	return err
}

func (a *Approver) removeLocked(id string) {
	out := a.cache[:0]
	for _, r := range a.cache {
		if r.ID != id {
			out = append(out, r)
		}
	}
	a.cache = out
	delete(a.snoozed, id)
}

// Pending returns a copy of the cached requests, newest first.
func (a *Approver) Pending() []models.LoginApprovalRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.LoginApprovalRequest(nil), a.cache...)
}

// Current returns the id of the request shown in the prompt.
func (a *Approver) Current() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openID, a.openID != ""
}

// Lookup returns the cached request with id.
func (a *Approver) Lookup(id string) (models.LoginApprovalRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.cache {
		if r.ID == id {
			return r, true
		}
	}
	return models.LoginApprovalRequest{}, false
}

func (a *Approver) setIndicator(n int) {
	if a.indicator != nil {
		a.indicator.SetPendingCount(n)
	}
}

// FormatExpires renders the remaining lifetime of a request for the prompt.
func FormatExpires(seconds int) string {
	if seconds <= 0 {
		return "Expired"
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	m, s := seconds/60, seconds%60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
