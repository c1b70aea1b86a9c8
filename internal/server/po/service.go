package po

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/jonboulle/clockwork"
)

type Service struct {
	repo   Repository
	clock  clockwork.Clock
	logger logging.Logger

	// writes check form numbers and then store, so they are serialized
	writeMu sync.Mutex
}

func NewService(repo Repository, clock clockwork.Clock, logger logging.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{repo: repo, clock: clock, logger: logger.With("module", "po")}
}

// List returns saved orders, most recently updated first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	orders, err := s.repo.Orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].UpdatedAt.Equal(orders[j].UpdatedAt) {
			return orders[i].UpdatedAt.After(orders[j].UpdatedAt)
		}
		return orders[i].ID > orders[j].ID
	})

	out := make([]Summary, 0, len(orders))
	for _, o := range orders {
		out = append(out, Summary{
			ID:          o.ID,
			FormNo:      o.field("formNo"),
			PODate:      o.field("date"),
			ToName:      o.field("to"),
			CompanyName: o.field("companyName"),
			ItemsCount:  len(o.Payload.Items),
			UpdatedAt:   formatTime(o.UpdatedAt),
		})
	}
	return out, nil
}

// Trash returns deleted orders, most recently deleted first.
func (s *Service) Trash(ctx context.Context) ([]TrashSummary, error) {
	entries, err := s.repo.Trash(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].DeletedAt.Equal(entries[j].DeletedAt) {
			return entries[i].DeletedAt.After(entries[j].DeletedAt)
		}
		return entries[i].ID > entries[j].ID
	})

	out := make([]TrashSummary, 0, len(entries))
	for _, e := range entries {
		f := e.Payload.Fields
		out = append(out, TrashSummary{
			ID:           e.ID,
			OriginalPOID: e.OriginalID,
			FormNo:       f["formNo"],
			PODate:       f["date"],
			ToName:       f["to"],
			CompanyName:  f["companyName"],
			ItemsCount:   len(e.Payload.Items),
			DeletedAt:    formatTime(e.DeletedAt),
		})
	}
	return out, nil
}

// SyncStatus summarizes both lists for cheap change detection.
func (s *Service) SyncStatus(ctx context.Context) (*Snapshot, error) {
	orders, err := s.repo.Orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync status: %w", err)
	}
	entries, err := s.repo.Trash(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync status: %w", err)
	}

	var latestSaved, latestTrash time.Time
	for _, o := range orders {
		if o.UpdatedAt.After(latestSaved) {
			latestSaved = o.UpdatedAt
		}
	}
	for _, e := range entries {
		if e.DeletedAt.After(latestTrash) {
			latestTrash = e.DeletedAt
		}
	}
	return &Snapshot{
		SavedCount:    len(orders),
		TrashCount:    len(entries),
		LatestSavedAt: formatTime(latestSaved),
		LatestTrashAt: formatTime(latestTrash),
	}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	o, err := s.repo.Order(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Document{ID: o.ID, UpdatedAt: formatTime(o.UpdatedAt), Payload: o.Payload}, nil
}

// Save creates an order when id is zero and replaces it otherwise. Form
// numbers are unique among saved orders.
func (s *Service) Save(ctx context.Context, id int64, p Payload) (*SaveResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if p.Fields == nil {
		p.Fields = map[string]string{}
	}
	for k, v := range p.Fields {
		p.Fields[k] = strings.TrimSpace(v)
	}
	if err := s.checkFormNo(ctx, p.Fields["formNo"], id); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	o := Order{ID: id, Payload: p, CreatedAt: now, UpdatedAt: now}
	if id != 0 {
		prev, err := s.repo.Order(ctx, id)
		if err != nil {
			return nil, err
		}
		o.CreatedAt = prev.CreatedAt
	}

	saved, err := s.repo.PutOrder(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	s.logger.Info(ctx, "po saved", "id", saved.ID, "form_no", p.Fields["formNo"])
	return &SaveResult{OK: true, ID: saved.ID, UpdatedAt: formatTime(saved.UpdatedAt)}, nil
}

// Delete moves an order to the trash and returns the trash id.
func (s *Service) Delete(ctx context.Context, id int64) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	o, err := s.repo.RemoveOrder(ctx, id)
	if err != nil {
		return 0, err
	}
	e, err := s.repo.PutTrash(ctx, TrashEntry{OriginalID: o.ID, Payload: o.Payload, DeletedAt: s.clock.Now()})
	if err != nil {
		return 0, fmt.Errorf("trash order: %w", err)
	}
	s.logger.Info(ctx, "po deleted", "id", id, "trash_id", e.ID)
	return e.ID, nil
}

// Restore moves a trash entry back to the saved list, under its original id
// when that is still free.
func (s *Service) Restore(ctx context.Context, trashID int64) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	e, err := s.repo.TrashEntry(ctx, trashID)
	if err != nil {
		return 0, err
	}
	if err := s.checkFormNo(ctx, e.Payload.Fields["formNo"], 0); err != nil {
		return 0, err
	}

	id := e.OriginalID
	if _, err := s.repo.Order(ctx, id); err == nil {
		id = 0
	}
	now := s.clock.Now()
	o, err := s.repo.PutOrder(ctx, Order{ID: id, Payload: e.Payload, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		return 0, fmt.Errorf("restore order: %w", err)
	}
	if err := s.repo.RemoveTrash(ctx, trashID); err != nil {
		return 0, fmt.Errorf("restore order: %w", err)
	}
	return o.ID, nil
}

// Purge drops a trash entry. Unknown ids are ignored.
func (s *Service) Purge(ctx context.Context, trashID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.repo.RemoveTrash(ctx, trashID)
}

func (s *Service) checkFormNo(ctx context.Context, formNo string, selfID int64) error {
	if formNo == "" {
		return nil
	}
	orders, err := s.repo.Orders(ctx)
	if err != nil {
		return fmt.Errorf("check form number: %w", err)
	}
	for _, o := range orders {
		if o.ID != selfID && o.field("formNo") == formNo {
			return &FormNoConflictError{ExistingID: o.ID}
		}
	}
	return nil
}
