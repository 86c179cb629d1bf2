package cart

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("cart: entry not found")
	ErrConflict         = errors.New("cart: active entry already exists")
	ErrClosed           = errors.New("cart: entry is closed")
	ErrInvalidQuantity  = errors.New("cart: quantity must be greater than zero")
	ErrNegativeQuantity = errors.New("cart: quantity would drop below zero")
	ErrVersionConflict  = errors.New("cart: version conflict")
)

type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Entry is a single (user, product) reservation line. Price is a snapshot
// taken at the last write and Amount is always round(price * quantity, 2).
type Entry struct {
	CID       string
	UID       string
	PID       string
	Quantity  int64
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Status    Status
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewEntry(cid, uid, pid string, quantity int64, price decimal.Decimal) (*Entry, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	now := time.Now().UTC()
	return &Entry{
		CID:       cid,
		UID:       uid,
		PID:       pid,
		Quantity:  quantity,
		Price:     price,
		Amount:    AmountOf(price, quantity),
		Status:    StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AmountOf recomputes the derived amount from a price snapshot and a quantity,
// rounded half-away-from-zero to two decimal places.
func AmountOf(price decimal.Decimal, quantity int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity)).Round(2)
}

func (e *Entry) Active() bool { return e.Status == StatusActive }

// AddQuantity grows the reservation and resnapshots the price; the product
// price may have changed since the entry was created.
func (e *Entry) AddQuantity(quantity int64, price decimal.Decimal) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !e.Active() {
		return ErrClosed
	}
	e.Quantity += quantity
	e.reprice(price)
	return nil
}

// RemoveQuantity shrinks the reservation. Reaching exactly zero is legal and
// leaves the entry active; going below zero is rejected, never clamped.
func (e *Entry) RemoveQuantity(quantity int64, price decimal.Decimal) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > e.Quantity {
		return ErrNegativeQuantity
	}
	e.Quantity -= quantity
	e.reprice(price)
	return nil
}

// Close deactivates the entry, freezing quantity, price, and amount. It does
// not release reserved stock; only deletion does.
func (e *Entry) Close() error {
	if !e.Active() {
		return ErrClosed
	}
	e.Status = StatusClosed
	e.touch()
	return nil
}

func (e *Entry) Clone() *Entry {
	clone := *e
	return &clone
}

func (e *Entry) reprice(price decimal.Decimal) {
	e.Price = price
	e.Amount = AmountOf(price, e.Quantity)
	e.touch()
}

func (e *Entry) touch() {
	e.UpdatedAt = time.Now().UTC()
}
