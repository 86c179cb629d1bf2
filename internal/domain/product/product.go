package product

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("product: not found")
	ErrInvalidPrice      = errors.New("product: price must be zero or greater")
	ErrInvalidStock      = errors.New("product: stock must be zero or greater")
	ErrInsufficientStock = errors.New("product: insufficient stock")
	ErrVersionConflict   = errors.New("product: version conflict")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Product is a catalog row. Stock counts the units not yet reserved by an
// active cart entry; it never drops below zero at a committed state.
type Product struct {
	PID       string
	Title     string
	SKU       string
	Price     decimal.Decimal
	Stock     int64
	Status    Status
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(pid, title, sku string, price decimal.Decimal, stock int64) (*Product, error) {
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}

	now := time.Now().UTC()
	return &Product{
		PID:       pid,
		Title:     title,
		SKU:       sku,
		Price:     price,
		Stock:     stock,
		Status:    StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApplyReservationDelta adjusts stock for a cart quantity delta. A positive
// delta reserves units (stock decreases), a negative delta releases them.
func (p *Product) ApplyReservationDelta(delta int64) error {
	newStock := p.Stock - delta
	if newStock < 0 {
		return ErrInsufficientStock
	}
	p.Stock = newStock
	p.touch()
	return nil
}

func (p *Product) Reprice(price decimal.Decimal) error {
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	p.Price = price
	p.touch()
	return nil
}

func (p *Product) Deactivate() {
	p.Status = StatusInactive
	p.touch()
}

func (p *Product) Clone() *Product {
	clone := *p
	return &clone
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}
