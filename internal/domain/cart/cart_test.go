package cart

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNewEntry_ComputesAmount(t *testing.T) {
	e, err := NewEntry("c1", "u1", "p1", 3, price("19.99"))
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	if got := e.Amount.String(); got != "59.97" {
		t.Fatalf("expected amount 59.97, got %s", got)
	}
	if !e.Active() {
		t.Fatalf("new entry must be active")
	}
}

func TestNewEntry_RejectsNonPositiveQuantity(t *testing.T) {
	for _, q := range []int64{0, -1} {
		if _, err := NewEntry("c1", "u1", "p1", q, price("1.00")); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("quantity %d: expected ErrInvalidQuantity, got %v", q, err)
		}
	}
}

func TestAmountOf_RoundsToTwoDecimals(t *testing.T) {
	cases := []struct {
		price    string
		quantity int64
		want     string
	}{
		{"0.333", 3, "1"},
		{"19.99", 5, "99.95"},
		{"2.005", 1, "2.01"},
		{"10", 0, "0"},
	}
	for _, tc := range cases {
		got := AmountOf(price(tc.price), tc.quantity)
		if !got.Equal(price(tc.want)) {
			t.Fatalf("AmountOf(%s, %d) = %s, want %s", tc.price, tc.quantity, got, tc.want)
		}
	}
}

func TestAddQuantity_ResnapshotsPrice(t *testing.T) {
	e, err := NewEntry("c1", "u1", "p1", 1, price("10.00"))
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	if err := e.AddQuantity(1, price("12.50")); err != nil {
		t.Fatalf("AddQuantity failed: %v", err)
	}
	if e.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", e.Quantity)
	}
	if got := e.Price.String(); got != "12.5" {
		t.Fatalf("expected price snapshot 12.5, got %s", got)
	}
	if got := e.Amount.String(); got != "25" {
		t.Fatalf("expected amount 25, got %s", got)
	}
}

func TestRemoveQuantity_ToZeroKeepsEntryActive(t *testing.T) {
	e, err := NewEntry("c1", "u1", "p1", 2, price("5.00"))
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	if err := e.RemoveQuantity(2, price("5.00")); err != nil {
		t.Fatalf("RemoveQuantity failed: %v", err)
	}
	if e.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", e.Quantity)
	}
	if !e.Active() {
		t.Fatalf("emptied entry must stay active")
	}
	if !e.Amount.IsZero() {
		t.Fatalf("expected amount 0, got %s", e.Amount)
	}
}

func TestRemoveQuantity_BelowZeroFails(t *testing.T) {
	e, err := NewEntry("c1", "u1", "p1", 2, price("5.00"))
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	if err := e.RemoveQuantity(3, price("5.00")); !errors.Is(err, ErrNegativeQuantity) {
		t.Fatalf("expected ErrNegativeQuantity, got %v", err)
	}
	if e.Quantity != 2 {
		t.Fatalf("failed removal must not change quantity, got %d", e.Quantity)
	}
}

func TestClose_FreezesEntry(t *testing.T) {
	e, err := NewEntry("c1", "u1", "p1", 2, price("5.00"))
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if e.Active() {
		t.Fatalf("closed entry must not be active")
	}
	if err := e.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second close: expected ErrClosed, got %v", err)
	}
	if err := e.AddQuantity(1, price("5.00")); !errors.Is(err, ErrClosed) {
		t.Fatalf("add on closed entry: expected ErrClosed, got %v", err)
	}
	if e.Quantity != 2 || e.Amount.String() != "10" {
		t.Fatalf("closed entry must keep quantity/amount frozen, got %d/%s", e.Quantity, e.Amount)
	}
}

func TestEntryDeletedEvent_ReleasesFullQuantity(t *testing.T) {
	e, err := NewEntry("c1", "u1", "p1", 4, price("1.00"))
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	evt := NewEntryDeletedEvent(e)
	if evt.QuantityDelta != -4 {
		t.Fatalf("expected delta -4, got %d", evt.QuantityDelta)
	}
}
