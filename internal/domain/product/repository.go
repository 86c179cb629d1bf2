package product

import "context"

type Repository interface {
	Insert(ctx context.Context, p *Product) error
	FindByID(ctx context.Context, pid string) (*Product, error)
	// Update is a conditional write: it succeeds only when the stored row still
	// carries the version the caller read, so concurrent mutations serialize
	// instead of overwriting each other. Returns ErrVersionConflict on a lost race.
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, pid string) error
}
