package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/man-1982/commerce-shop/internal/domain/product"
)

type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[string]*domain.Product),
	}
}

func (r *ProductRepository) Insert(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.PID == "" {
		return fmt.Errorf("product repository: pid is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[p.PID]; exists {
		return fmt.Errorf("product repository: pid %q already exists", p.PID)
	}

	r.products[p.PID] = p.Clone()
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, pid string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[pid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.PID == "" {
		return fmt.Errorf("product repository: pid is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.products[p.PID]
	if !exists {
		return domain.ErrNotFound
	}
	if stored.Version != p.Version {
		return domain.ErrVersionConflict
	}

	p.Version++
	r.products[p.PID] = p.Clone()
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, pid string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[pid]; !exists {
		return domain.ErrNotFound
	}
	delete(r.products, pid)
	return nil
}
