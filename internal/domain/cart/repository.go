package cart

import "context"

type Repository interface {
	// Insert persists a new active entry. It fails with ErrConflict when an
	// active entry for the same (uid, pid) pair already exists; the uniqueness
	// check and the write are one atomic step.
	Insert(ctx context.Context, e *Entry) error
	FindByID(ctx context.Context, cid string) (*Entry, error)
	// FindActive resolves the at-most-one active entry for a (uid, pid) pair.
	FindActive(ctx context.Context, uid, pid string) (*Entry, error)
	// Update is a conditional write on the entry version; a concurrent writer
	// that committed first makes this fail with ErrVersionConflict. Closing an
	// entry through Update frees its (uid, pid) key for a new active entry.
	Update(ctx context.Context, e *Entry) error
	// Delete removes the entry and returns the exact state that was removed,
	// in one atomic step. Deletion releases the entry's full quantity, so the
	// released delta must come from the removed row, not from an earlier read
	// that a concurrent write may have outdated.
	Delete(ctx context.Context, cid string) (*Entry, error)
}
