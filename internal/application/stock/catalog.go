package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	domproduct "github.com/man-1982/commerce-shop/internal/domain/product"

	"github.com/shopspring/decimal"
)

// Catalog exposes the plain product CRUD surface. These are simple I/O
// wrappers over the product store with no consistency hazard of their own;
// stock mutation stays with the adjuster.
type Catalog struct {
	products      domproduct.Repository
	ids           IDGenerator
	retryDeadline time.Duration
}

type IDGenerator interface {
	NewID() string
}

func NewCatalog(products domproduct.Repository, ids IDGenerator, retryDeadline time.Duration) *Catalog {
	if retryDeadline <= 0 {
		retryDeadline = defaultRetryIn
	}
	return &Catalog{products: products, ids: ids, retryDeadline: retryDeadline}
}

type CreateProductInput struct {
	Title string
	SKU   string
	Price decimal.Decimal
	Stock int64
}

func (c *Catalog) CreateProduct(ctx context.Context, in CreateProductInput) (*domproduct.Product, error) {
	p, err := domproduct.New(c.ids.NewID(), in.Title, in.SKU, in.Price, in.Stock)
	if err != nil {
		return nil, err
	}
	if err := c.products.Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("catalog: insert: %w", err)
	}
	return p, nil
}

func (c *Catalog) GetProduct(ctx context.Context, pid string) (*domproduct.Product, error) {
	return c.products.FindByID(ctx, pid)
}

// UpdateProductInput is a patch: nil fields are left untouched.
type UpdateProductInput struct {
	Title  *string
	SKU    *string
	Price  *decimal.Decimal
	Status *domproduct.Status
}

func (c *Catalog) UpdateProduct(ctx context.Context, pid string, in UpdateProductInput) (*domproduct.Product, error) {
	deadline := time.Now().Add(c.retryDeadline)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := c.products.FindByID(ctx, pid)
		if err != nil {
			return nil, err
		}
		if in.Title != nil {
			p.Title = *in.Title
		}
		if in.SKU != nil {
			p.SKU = *in.SKU
		}
		if in.Price != nil {
			if err := p.Reprice(*in.Price); err != nil {
				return nil, err
			}
		}
		if in.Status != nil {
			p.Status = *in.Status
		}

		err = c.products.Update(ctx, p)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, domproduct.ErrVersionConflict) {
			if time.Now().After(deadline) {
				return nil, ErrTimeout
			}
			continue
		}
		return nil, fmt.Errorf("catalog: update: %w", err)
	}
}

func (c *Catalog) DeleteProduct(ctx context.Context, pid string) error {
	return c.products.Delete(ctx, pid)
}
