package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/man-1982/commerce-shop/internal/domain/cart"
)

// CartRepository keeps entries in process memory. Every mutation happens under
// the write lock, so each call is one atomic transaction; Update additionally
// checks the entry version so concurrent writers serialize instead of
// overwriting each other.
type CartRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.Entry
	active  map[activeKey]string // (uid, pid) -> cid, active entries only
}

type activeKey struct {
	uid string
	pid string
}

func NewCartRepository() *CartRepository {
	return &CartRepository{
		entries: make(map[string]*domain.Entry),
		active:  make(map[activeKey]string),
	}
}

func (r *CartRepository) Insert(ctx context.Context, e *domain.Entry) error {
	_ = ctx
	if e == nil || e.CID == "" {
		return fmt.Errorf("cart repository: cid is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.CID]; exists {
		return domain.ErrConflict
	}
	key := activeKey{uid: e.UID, pid: e.PID}
	if e.Active() {
		if _, exists := r.active[key]; exists {
			return domain.ErrConflict
		}
	}

	r.entries[e.CID] = e.Clone()
	if e.Active() {
		r.active[key] = e.CID
	}
	return nil
}

func (r *CartRepository) FindByID(ctx context.Context, cid string) (*domain.Entry, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[cid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

func (r *CartRepository) FindActive(ctx context.Context, uid, pid string) (*domain.Entry, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	cid, ok := r.active[activeKey{uid: uid, pid: pid}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e, ok := r.entries[cid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

func (r *CartRepository) Update(ctx context.Context, e *domain.Entry) error {
	_ = ctx
	if e == nil || e.CID == "" {
		return fmt.Errorf("cart repository: cid is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.entries[e.CID]
	if !exists {
		return domain.ErrNotFound
	}
	if stored.Version != e.Version {
		return domain.ErrVersionConflict
	}

	e.Version++
	r.entries[e.CID] = e.Clone()

	// A close frees the (uid, pid) key for a new active entry.
	key := activeKey{uid: e.UID, pid: e.PID}
	if e.Active() {
		r.active[key] = e.CID
	} else if r.active[key] == e.CID {
		delete(r.active, key)
	}
	return nil
}

// Delete removes the entry under the write lock and hands back the removed
// state, so the released quantity always matches the last committed write.
func (r *CartRepository) Delete(ctx context.Context, cid string) (*domain.Entry, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[cid]
	if !exists {
		return nil, domain.ErrNotFound
	}

	delete(r.entries, cid)
	key := activeKey{uid: e.UID, pid: e.PID}
	if r.active[key] == cid {
		delete(r.active, key)
	}
	return e.Clone(), nil
}
