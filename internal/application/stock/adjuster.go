package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	domproduct "github.com/man-1982/commerce-shop/internal/domain/product"
	"github.com/man-1982/commerce-shop/internal/observability"
	"github.com/man-1982/commerce-shop/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	stockService   = "stock-adjuster"
	spanPrefix     = "UC."
	useCaseAdjust  = "stock.adjust"
	defaultRetryIn = 500 * time.Millisecond
)

var (
	ErrNotFound          = domproduct.ErrNotFound
	ErrInsufficientStock = domproduct.ErrInsufficientStock
	ErrTimeout           = errors.New("stock: write retry deadline exceeded")
)

// AdjustCommand carries the signed quantity delta of a committed cart
// mutation. Positive reserves units (stock decreases), negative releases them.
type AdjustCommand struct {
	PID           string
	CID           string
	QuantityDelta int64
}

// Adjuster applies cart quantity deltas to product stock in its own
// transaction. It runs after the cart-side commit, so a failure here cannot be
// surfaced to the original caller; it is reported through logs and the drift
// counter instead and must never crash the dispatch loop.
type Adjuster struct {
	products      domproduct.Repository
	retryDeadline time.Duration

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewAdjuster(products domproduct.Repository, retryDeadline time.Duration, tel observability.Observability) *Adjuster {
	if tel == nil {
		tel = observability.Nop()
	}
	if retryDeadline <= 0 {
		retryDeadline = defaultRetryIn
	}
	metrics := tel.Metrics()
	return &Adjuster{
		products:      products,
		retryDeadline: retryDeadline,
		log:           tel.Logger().With(observability.F("service", stockService)),
		tracer:        tel.Tracer(),
		reqCounter:    metrics.Counter(observability.MUsecaseRequests),
		durHistogram:  metrics.Histogram(observability.MUsecaseDuration),
	}
}

// Apply executes newStock = stock - quantityDelta as a conditional write with
// bounded retry. A delta that would drive stock negative fails with
// ErrInsufficientStock; the committed product state never violates stock >= 0.
func (a *Adjuster) Apply(ctx context.Context, cmd AdjustCommand) (err error) {
	logger := logctx.FromOr(ctx, a.log).With(
		observability.F("use_case", useCaseAdjust),
		observability.F("pid", cmd.PID),
		observability.F("cid", cmd.CID),
		observability.F("quantity_delta", cmd.QuantityDelta),
	)

	ctx, span := a.tracer.Start(ctx, spanPrefix+"AdjustStock",
		attribute.String("use_case", useCaseAdjust),
		attribute.String("product.pid", cmd.PID),
		attribute.String("cart.cid", cmd.CID),
		attribute.Int64("stock.quantity_delta", cmd.QuantityDelta),
	)
	start := time.Now()

	defer func() {
		lat := time.Since(start).Seconds()
		outcome, statusText := "success", "OK"
		if err != nil {
			outcome, statusText = "error", adjustStatusOf(err)
		}

		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, statusText)
			} else {
				span.SetStatus(codes.Ok, statusText)
			}
			span.End()
		}

		a.reqCounter.Add(1,
			observability.L("use_case", useCaseAdjust),
			observability.L("outcome", outcome),
		)
		a.durHistogram.Observe(lat,
			observability.L("use_case", useCaseAdjust),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if cmd.QuantityDelta == 0 {
		return nil
	}

	deadline := time.Now().Add(a.retryDeadline)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := a.products.FindByID(ctx, cmd.PID)
		if err != nil {
			return fmt.Errorf("stock: load product: %w", err)
		}
		if err := p.ApplyReservationDelta(cmd.QuantityDelta); err != nil {
			return err
		}

		err = a.products.Update(ctx, p)
		if err == nil {
			return nil
		}
		if errors.Is(err, domproduct.ErrVersionConflict) {
			if time.Now().After(deadline) {
				return ErrTimeout
			}
			continue
		}
		return fmt.Errorf("stock: persist product: %w", err)
	}
}

func adjustStatusOf(err error) string {
	switch {
	case errors.Is(err, domproduct.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, domproduct.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrTimeout):
		return "WRITE_TIMEOUT"
	default:
		return "REPO_FAILURE"
	}
}
