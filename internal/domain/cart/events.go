package cart

import "time"

// Domain events are transient: they exist only on the bus for the duration of
// dispatch. QuantityDelta is signed — positive means additional units were
// reserved from stock, negative means units were released back.

type EntryCreatedEvent struct {
	CID        string
	UID        string
	PID        string
	Quantity   int64
	OccurredAt time.Time
}

func (EntryCreatedEvent) EventName() string { return "cart.created" }

func NewEntryCreatedEvent(e *Entry) EntryCreatedEvent {
	return EntryCreatedEvent{
		CID:        e.CID,
		UID:        e.UID,
		PID:        e.PID,
		Quantity:   e.Quantity,
		OccurredAt: time.Now().UTC(),
	}
}

// ItemsUpdatedEvent carries the net quantity delta of a committed cart
// mutation so the stock side can apply the inverse adjustment.
type ItemsUpdatedEvent struct {
	CID           string
	PID           string
	QuantityDelta int64
	OccurredAt    time.Time
}

func (ItemsUpdatedEvent) EventName() string { return "cart.items_updated" }

func NewItemsUpdatedEvent(cid, pid string, quantityDelta int64) ItemsUpdatedEvent {
	return ItemsUpdatedEvent{
		CID:           cid,
		PID:           pid,
		QuantityDelta: quantityDelta,
		OccurredAt:    time.Now().UTC(),
	}
}

// EntryClosedEvent carries no delta: closing freezes the entry without
// releasing its reserved stock.
type EntryClosedEvent struct {
	CID        string
	PID        string
	OccurredAt time.Time
}

func (EntryClosedEvent) EventName() string { return "cart.closed" }

func NewEntryClosedEvent(e *Entry) EntryClosedEvent {
	return EntryClosedEvent{
		CID:        e.CID,
		PID:        e.PID,
		OccurredAt: time.Now().UTC(),
	}
}

// EntryDeletedEvent releases the full reserved quantity back to stock.
type EntryDeletedEvent struct {
	CID           string
	PID           string
	QuantityDelta int64
	OccurredAt    time.Time
}

func (EntryDeletedEvent) EventName() string { return "cart.deleted" }

func NewEntryDeletedEvent(e *Entry) EntryDeletedEvent {
	return EntryDeletedEvent{
		CID:           e.CID,
		PID:           e.PID,
		QuantityDelta: -e.Quantity,
		OccurredAt:    time.Now().UTC(),
	}
}
