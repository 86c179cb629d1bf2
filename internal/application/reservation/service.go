package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	domcart "github.com/man-1982/commerce-shop/internal/domain/cart"
	domevent "github.com/man-1982/commerce-shop/internal/domain/eventbus"
	domproduct "github.com/man-1982/commerce-shop/internal/domain/product"
	"github.com/man-1982/commerce-shop/internal/observability"
	"github.com/man-1982/commerce-shop/internal/observability/logctx"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	reservationService = "reservation-service"
	spanPrefix         = "UC."

	useCaseCreate = "cart.create"
	useCaseAdd    = "cart.add"
	useCaseRemove = "cart.remove"
	useCaseClose  = "cart.close"
	useCaseDelete = "cart.delete"

	publishTimeout = 300 * time.Millisecond
)

var (
	ErrNotFound       = domcart.ErrNotFound
	ErrConflict       = domcart.ErrConflict
	ErrInvalidProduct = errors.New("reservation: product does not exist")
	ErrInvalidRequest = errors.New("reservation: invalid request")
	ErrTimeout        = errors.New("reservation: write retry deadline exceeded")
	ErrRepository     = errors.New("reservation: repository failure")
)

type IDGenerator interface {
	NewID() string
}

// Service performs each cart mutation as one atomic unit against the cart
// store, snapshots the current product price on every write, and emits the
// describing domain events only after the write has committed. Conditional
// write losers retry until the configured deadline, then fail with ErrTimeout.
type Service struct {
	carts         domcart.Repository
	products      domproduct.Repository
	ids           IDGenerator
	publisher     domevent.Publisher
	retryDeadline time.Duration

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	pubFailures  observability.Counter
}

func NewService(
	carts domcart.Repository,
	products domproduct.Repository,
	ids IDGenerator,
	publisher domevent.Publisher,
	retryDeadline time.Duration,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	if retryDeadline <= 0 {
		retryDeadline = 500 * time.Millisecond
	}
	metrics := tel.Metrics()
	return &Service{
		carts:         carts,
		products:      products,
		ids:           ids,
		publisher:     publisher,
		retryDeadline: retryDeadline,
		log:           tel.Logger().With(observability.F("service", reservationService)),
		tracer:        tel.Tracer(),
		reqCounter:    metrics.Counter(observability.MUsecaseRequests),
		durHistogram:  metrics.Histogram(observability.MUsecaseDuration),
		pubFailures:   metrics.Counter(observability.MEventPublishFailed),
	}
}

// EntryView is the API-facing projection of a persisted cart entry.
type EntryView struct {
	CID       string          `json:"cid"`
	UID       string          `json:"uid"`
	PID       string          `json:"pid"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Status    domcart.Status  `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func viewOf(e *domcart.Entry) *EntryView {
	return &EntryView{
		CID:       e.CID,
		UID:       e.UID,
		PID:       e.PID,
		Quantity:  e.Quantity,
		Price:     e.Price,
		Amount:    e.Amount,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

type CreateEntryInput struct {
	UID      string
	PID      string
	Quantity int64
}

// CreateEntry opens a new active entry for (uid, pid). The uniqueness check
// and the insert are one atomic step in the store; the loser of a concurrent
// create observes ErrConflict.
func (s *Service) CreateEntry(ctx context.Context, in CreateEntryInput) (*EntryView, error) {
	return s.instrument(ctx, useCaseCreate, "CreateEntry",
		[]attribute.KeyValue{
			attribute.String("cart.uid", in.UID),
			attribute.String("cart.pid", in.PID),
			attribute.Int64("cart.quantity", in.Quantity),
		},
		func(ctx context.Context) (*EntryView, error) {
			if in.UID == "" || in.PID == "" {
				return nil, fmt.Errorf("%w: uid and pid are required", ErrInvalidRequest)
			}
			if in.Quantity <= 0 {
				return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidRequest)
			}

			p, err := s.products.FindByID(ctx, in.PID)
			if errors.Is(err, domproduct.ErrNotFound) {
				return nil, ErrInvalidProduct
			} else if err != nil {
				return nil, wrapRepositoryError(err)
			}

			entry, err := domcart.NewEntry(s.ids.NewID(), in.UID, in.PID, in.Quantity, p.Price)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
			}
			if err := s.carts.Insert(ctx, entry); err != nil {
				return nil, wrapRepositoryError(err)
			}

			s.publish(ctx, domcart.NewEntryCreatedEvent(entry))
			s.publish(ctx, domcart.NewItemsUpdatedEvent(entry.CID, entry.PID, in.Quantity))
			return viewOf(entry), nil
		})
}

type AddQuantityInput struct {
	UID      string
	PID      string
	Quantity int64
}

// AddQuantity grows the active entry for (uid, pid), re-reading the current
// product price — it may have changed since the entry was created.
func (s *Service) AddQuantity(ctx context.Context, in AddQuantityInput) (*EntryView, error) {
	return s.instrument(ctx, useCaseAdd, "AddQuantity",
		[]attribute.KeyValue{
			attribute.String("cart.uid", in.UID),
			attribute.String("cart.pid", in.PID),
			attribute.Int64("cart.quantity_delta", in.Quantity),
		},
		func(ctx context.Context) (*EntryView, error) {
			if in.Quantity <= 0 {
				return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidRequest)
			}

			entry, err := s.withRetry(ctx, func(ctx context.Context) (*domcart.Entry, error) {
				e, err := s.carts.FindActive(ctx, in.UID, in.PID)
				if err != nil {
					return nil, wrapRepositoryError(err)
				}
				p, err := s.products.FindByID(ctx, in.PID)
				if errors.Is(err, domproduct.ErrNotFound) {
					return nil, ErrInvalidProduct
				} else if err != nil {
					return nil, wrapRepositoryError(err)
				}
				if err := e.AddQuantity(in.Quantity, p.Price); err != nil {
					return nil, mapDomainError(err)
				}
				return e, nil
			})
			if err != nil {
				return nil, err
			}

			s.publish(ctx, domcart.NewItemsUpdatedEvent(entry.CID, entry.PID, in.Quantity))
			return viewOf(entry), nil
		})
}

type RemoveQuantityInput struct {
	CID      string
	PID      string
	Quantity int64
}

// RemoveQuantity shrinks the entry identified by (cid, pid), recomputing the
// amount from the current product price. Quantity may legally reach exactly
// zero while the entry stays active; whether such entries should auto-close is
// an open product question, the observed behavior is preserved.
func (s *Service) RemoveQuantity(ctx context.Context, in RemoveQuantityInput) (*EntryView, error) {
	return s.instrument(ctx, useCaseRemove, "RemoveQuantity",
		[]attribute.KeyValue{
			attribute.String("cart.cid", in.CID),
			attribute.String("cart.pid", in.PID),
			attribute.Int64("cart.quantity_delta", -in.Quantity),
		},
		func(ctx context.Context) (*EntryView, error) {
			if in.Quantity <= 0 {
				return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidRequest)
			}

			entry, err := s.withRetry(ctx, func(ctx context.Context) (*domcart.Entry, error) {
				e, err := s.carts.FindByID(ctx, in.CID)
				if err != nil {
					return nil, wrapRepositoryError(err)
				}
				if e.PID != in.PID {
					return nil, ErrNotFound
				}
				p, err := s.products.FindByID(ctx, in.PID)
				if errors.Is(err, domproduct.ErrNotFound) {
					return nil, ErrInvalidProduct
				} else if err != nil {
					return nil, wrapRepositoryError(err)
				}
				if err := e.RemoveQuantity(in.Quantity, p.Price); err != nil {
					return nil, mapDomainError(err)
				}
				return e, nil
			})
			if err != nil {
				return nil, err
			}

			s.publish(ctx, domcart.NewItemsUpdatedEvent(entry.CID, entry.PID, -in.Quantity))
			return viewOf(entry), nil
		})
}

// CloseEntry flips the entry from active to closed, freezing quantity, price,
// and amount. No stock delta is emitted: closing does not release stock.
func (s *Service) CloseEntry(ctx context.Context, cid string) (*EntryView, error) {
	return s.instrument(ctx, useCaseClose, "CloseEntry",
		[]attribute.KeyValue{attribute.String("cart.cid", cid)},
		func(ctx context.Context) (*EntryView, error) {
			entry, err := s.withRetry(ctx, func(ctx context.Context) (*domcart.Entry, error) {
				e, err := s.carts.FindByID(ctx, cid)
				if err != nil {
					return nil, wrapRepositoryError(err)
				}
				// Closed entries are not active, so a second close is a miss.
				if !e.Active() {
					return nil, ErrNotFound
				}
				if err := e.Close(); err != nil {
					return nil, mapDomainError(err)
				}
				return e, nil
			})
			if err != nil {
				return nil, err
			}

			s.publish(ctx, domcart.NewEntryClosedEvent(entry))
			return viewOf(entry), nil
		})
}

// DeleteEntry removes the entry and releases its full reserved quantity back
// to the product via the deleted event. The event is built from the row the
// store atomically removed: a quantity change that commits concurrently with
// the delete is still reflected in the released delta.
func (s *Service) DeleteEntry(ctx context.Context, cid string) (*EntryView, error) {
	return s.instrument(ctx, useCaseDelete, "DeleteEntry",
		[]attribute.KeyValue{attribute.String("cart.cid", cid)},
		func(ctx context.Context) (*EntryView, error) {
			e, err := s.carts.Delete(ctx, cid)
			if err != nil {
				return nil, wrapRepositoryError(err)
			}

			s.publish(ctx, domcart.NewEntryDeletedEvent(e))
			return viewOf(e), nil
		})
}

// GetEntry projects the persisted entity to its API-facing shape.
func (s *Service) GetEntry(ctx context.Context, cid string) (*EntryView, error) {
	e, err := s.carts.FindByID(ctx, cid)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return viewOf(e), nil
}

// withRetry re-reads and re-applies the mutation until the conditional write
// succeeds or the deadline passes. This is the bounded row-lock wait: the
// loser of a version race retries against fresh state instead of overwriting.
func (s *Service) withRetry(ctx context.Context, attempt func(ctx context.Context) (*domcart.Entry, error)) (*domcart.Entry, error) {
	deadline := time.Now().Add(s.retryDeadline)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := attempt(ctx)
		if err != nil {
			return nil, err
		}
		err = s.carts.Update(ctx, e)
		if err == nil {
			return e, nil
		}
		if errors.Is(err, domcart.ErrVersionConflict) {
			if time.Now().After(deadline) {
				return nil, ErrTimeout
			}
			continue
		}
		return nil, wrapRepositoryError(err)
	}
}

// publish hands the event to the bus after the mutation committed. A failed
// enqueue cannot roll the write back anymore, so it is logged and counted
// rather than returned.
func (s *Service) publish(ctx context.Context, e domevent.Event) {
	if s.publisher == nil || e == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		s.pubFailures.Add(1, observability.L("event", e.EventName()))
		logctx.FromOr(ctx, s.log).Error("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Service) instrument(
	ctx context.Context,
	useCase, spanName string,
	attrs []attribute.KeyValue,
	fn func(ctx context.Context) (*EntryView, error),
) (_ *EntryView, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCase))

	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := s.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	start := time.Now()

	defer func() {
		lat := time.Since(start).Seconds()
		outcome, statusText := "success", "OK"
		if err != nil {
			outcome, statusText = "error", statusOf(err)
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

		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat,
			observability.L("use_case", useCase),
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

	return fn(ctx)
}

func mapDomainError(err error) error {
	switch {
	case errors.Is(err, domcart.ErrInvalidQuantity),
		errors.Is(err, domcart.ErrNegativeQuantity),
		errors.Is(err, domcart.ErrClosed):
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	default:
		return err
	}
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domcart.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domcart.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidProduct):
		return "PRODUCT_INVALID"
	case errors.Is(err, ErrInvalidRequest):
		return "REQUEST_INVALID"
	case errors.Is(err, ErrTimeout):
		return "WRITE_TIMEOUT"
	default:
		return "REPO_FAILURE"
	}
}
