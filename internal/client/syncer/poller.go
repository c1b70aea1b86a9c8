package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/session"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// View is the editor state the poller reads and updates. The conditional
// methods re-check the open record themselves and report whether they
// applied.
type View interface {
	Lists() ([]models.POSummary, []models.TrashEntry)
	SetLists(saved []models.POSummary, trash []models.TrashEntry)
	OpenRecord() models.OpenRecord
	// ResetToDraft closes record id if it is still open and clean.
	ResetToDraft(id int64) bool
	// ReloadDocument replaces the open record with doc if it is still the
	// open record and clean.
	ReloadDocument(doc *models.Document) bool
	// MarkSynced records the remote modification time of record id.
	MarkSynced(id int64, updatedAt string)
}

// Poller converges the local view with the server while a session exists.
type Poller struct {
	api      client.Client
	store    *session.Store
	view     View
	sink     ui.StatusSink
	clock    clockwork.Clock
	interval time.Duration
	logger   logging.Logger

	busy atomic.Bool

	mu       sync.Mutex
	snapshot *models.SyncSnapshot
	cancel   context.CancelFunc
	ticker   clockwork.Ticker
	wg       sync.WaitGroup
}

func NewPoller(api client.Client, store *session.Store, view View, sink ui.StatusSink, clock clockwork.Clock,
	interval time.Duration, logger logging.Logger) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = ui.Discard{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Poller{
		api:      api,
		store:    store,
		view:     view,
		sink:     sink,
		clock:    clock,
		interval: interval,
		logger:   logger.With("component", "syncer"),
	}
}

// Start seeds the snapshot from the current lists, runs one check right
// away and then one every interval. It does nothing without a session.
func (p *Poller) Start(ctx context.Context) bool {
	if !p.store.IsAuthenticated() {
		p.Stop()
		return false
	}

	saved, trash := p.view.Lists()
	snap := SnapshotFromLists(saved, trash)

	p.mu.Lock()
	p.stopLocked()
	p.snapshot = &snap
	runCtx, cancel := context.WithCancel(ctx)
	ticker := p.clock.NewTicker(p.interval)
	p.cancel = cancel
	p.ticker = ticker
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.runTick(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.Chan():
				p.runTick(runCtx)
			}
		}
	}()
	return true
}

// Stop cancels polling and forgets the snapshot.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.snapshot = nil
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
	}
}

// Wait blocks until the poll goroutine has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) runTick(ctx context.Context) {
	if err := p.Tick(ctx); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			p.logger.Info(ctx, "sync stopped, session expired")
			return
		}
		p.logger.Debug(ctx, "sync check failed", "error", err)
	}
}

// Tick runs one check. Overlapping calls return immediately. Errors are
// left to the caller; the next tick retries.
func (p *Poller) Tick(ctx context.Context) error {
	if !p.store.IsAuthenticated() {
		return nil
	}
	if !p.busy.CompareAndSwap(false, true) {
		return nil
	}
	defer p.busy.Store(false)

	gen := p.store.Generation()

	remote, err := p.api.SyncStatus(ctx)
	if err != nil {
		return fmt.Errorf("sync status: %w", err)
	}

	local := p.currentSnapshot()
	if remote.Equal(local) {
		return nil
	}

	saved, _ := p.view.Lists()
	open := p.view.OpenRecord()
	previous := knownUpdatedAt(open, saved)

	if err := p.refresh(ctx, gen); err != nil {
		return err
	}
	if p.store.Generation() != gen {
		return nil
	}

	saved, _ = p.view.Lists()
	now := p.view.OpenRecord()
	if now.ID != open.ID {
		return nil
	}
	return p.apply(ctx, gen, Reconcile(now, previous, saved))
}

func (p *Poller) currentSnapshot() models.SyncSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot != nil {
		return *p.snapshot
	}
	saved, trash := p.view.Lists()
	snap := SnapshotFromLists(saved, trash)
	p.snapshot = &snap
	return snap
}

func (p *Poller) apply(ctx context.Context, gen uint64, plan Plan) error {
	switch plan.Action {
	case ActionNone:
		if plan.UpdatedAt != "" {
			p.view.MarkSynced(plan.ID, plan.UpdatedAt)
		}
		return nil
	case ActionResetDraft:
		if !p.view.ResetToDraft(plan.ID) {
			// Edited meanwhile: keep it, only warn.
			p.logger.Debug(ctx, "open record became dirty, not resetting", "id", plan.ID)
		}
	case ActionWarnChanged:
		p.view.MarkSynced(plan.ID, plan.UpdatedAt)
	case ActionReload:
		doc, err := p.api.GetPO(ctx, plan.ID)
		if err != nil {
			return fmt.Errorf("reload po %d: %w", plan.ID, err)
		}
		if p.store.Generation() != gen {
			return nil
		}
		if !p.view.ReloadDocument(doc) {
			p.view.MarkSynced(plan.ID, plan.UpdatedAt)
			plan.Action = ActionWarnChanged
		}
	}

	if msg, tone, ok := plan.Notice(); ok {
		p.sink.SetStatus(msg, tone)
	}
	return nil
}

// RefreshLists fetches the saved and trash lists concurrently, replaces
// them in the view and re-derives the snapshot.
func (p *Poller) RefreshLists(ctx context.Context) error {
	return p.refresh(ctx, p.store.Generation())
}

func (p *Poller) refresh(ctx context.Context, gen uint64) error {
	var (
		saved []models.POSummary
		trash []models.TrashEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := p.api.ListSaved(gctx)
		if err != nil {
			return fmt.Errorf("list saved: %w", err)
		}
		saved = rows
		return nil
	})
	g.Go(func() error {
		rows, err := p.api.ListTrash(gctx)
		if err != nil {
			return fmt.Errorf("list trash: %w", err)
		}
		trash = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if p.store.Generation() != gen {
		return nil
	}

	p.view.SetLists(saved, trash)
	snap := SnapshotFromLists(saved, trash)
	p.mu.Lock()
	p.snapshot = &snap
	p.mu.Unlock()
	return nil
}
