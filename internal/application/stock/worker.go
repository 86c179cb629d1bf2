package stock

import (
	"context"
	"fmt"

	domcart "github.com/man-1982/commerce-shop/internal/domain/cart"
	domevent "github.com/man-1982/commerce-shop/internal/domain/eventbus"
	"github.com/man-1982/commerce-shop/internal/observability"
)

const workerService = "stock_worker"

// Worker subscribes the adjuster to the cart events that carry a quantity
// delta. By the time a handler runs the cart-side transaction has committed;
// an adjustment failure here is an inconsistency that must be surfaced, not a
// condition the caller can still act on.
type Worker struct {
	subscriber domevent.Subscriber
	adjuster   *Adjuster

	log          observability.Logger
	driftCounter observability.Counter
}

func NewWorker(subscriber domevent.Subscriber, adjuster *Adjuster, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber:   subscriber,
		adjuster:     adjuster,
		log:          tel.Logger().With(observability.F("service", workerService)),
		driftCounter: tel.Metrics().Counter(observability.MStockAdjustFailed),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.adjuster == nil {
		return
	}
	w.subscriber.Subscribe(domcart.ItemsUpdatedEvent{}.EventName(), w.handleItemsUpdated)
	w.subscriber.Subscribe(domcart.EntryDeletedEvent{}.EventName(), w.handleEntryDeleted)
}

func (w *Worker) handleItemsUpdated(ctx context.Context, e domevent.Event) error {
	evt, ok := e.(domcart.ItemsUpdatedEvent)
	if !ok {
		return nil
	}
	return w.apply(ctx, AdjustCommand{
		PID:           evt.PID,
		CID:           evt.CID,
		QuantityDelta: evt.QuantityDelta,
	})
}

func (w *Worker) handleEntryDeleted(ctx context.Context, e domevent.Event) error {
	evt, ok := e.(domcart.EntryDeletedEvent)
	if !ok {
		return nil
	}
	return w.apply(ctx, AdjustCommand{
		PID:           evt.PID,
		CID:           evt.CID,
		QuantityDelta: evt.QuantityDelta,
	})
}

func (w *Worker) apply(ctx context.Context, cmd AdjustCommand) error {
	if err := w.adjuster.Apply(ctx, cmd); err != nil {
		w.driftCounter.Add(1)
		w.log.Error("stock_adjustment_failed",
			observability.F("pid", cmd.PID),
			observability.F("cid", cmd.CID),
			observability.F("quantity_delta", cmd.QuantityDelta),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("worker: stock adjustment: %w", err)
	}
	return nil
}
