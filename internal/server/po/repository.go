package po

import (
	"context"
	"sync"
)

// Repository persists orders and trash entries. IDs are assigned on insert
// when zero.
type Repository interface {
	Orders(ctx context.Context) ([]Order, error)
	Order(ctx context.Context, id int64) (*Order, error)
	PutOrder(ctx context.Context, o Order) (*Order, error)
	RemoveOrder(ctx context.Context, id int64) (*Order, error)

	Trash(ctx context.Context) ([]TrashEntry, error)
	TrashEntry(ctx context.Context, id int64) (*TrashEntry, error)
	PutTrash(ctx context.Context, e TrashEntry) (*TrashEntry, error)
	RemoveTrash(ctx context.Context, id int64) error
}

// MemoryRepository keeps everything in maps.
type MemoryRepository struct {
	mu        sync.RWMutex
	orders    map[int64]Order
	trash     map[int64]TrashEntry
	nextOrder int64
	nextTrash int64
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: map[int64]Order{}, trash: map[int64]TrashEntry{}}
}

func (r *MemoryRepository) Orders(ctx context.Context) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out, nil
}

func (r *MemoryRepository) Order(ctx context.Context, id int64) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *MemoryRepository) PutOrder(ctx context.Context, o Order) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == 0 {
		r.nextOrder++
		o.ID = r.nextOrder
	} else if o.ID > r.nextOrder {
		r.nextOrder = o.ID
	}
	r.orders[o.ID] = o
	return &o, nil
}

func (r *MemoryRepository) RemoveOrder(ctx context.Context, id int64) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.orders, id)
	return &o, nil
}

func (r *MemoryRepository) Trash(ctx context.Context) ([]TrashEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TrashEntry, 0, len(r.trash))
	for _, e := range r.trash {
		out = append(out, e)
	}
	return out, nil
}

func (r *MemoryRepository) TrashEntry(ctx context.Context, id int64) (*TrashEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.trash[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) PutTrash(ctx context.Context, e TrashEntry) (*TrashEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == 0 {
		r.nextTrash++
		e.ID = r.nextTrash
	}
	r.trash[e.ID] = e
	return &e, nil
}

func (r *MemoryRepository) RemoveTrash(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trash, id)
	return nil
}
