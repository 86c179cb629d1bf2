package eventbus

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	domevent "github.com/man-1982/commerce-shop/internal/domain/eventbus"
	"github.com/man-1982/commerce-shop/internal/observability"
	"github.com/man-1982/commerce-shop/internal/observability/logctx"
)

const componentEventBus = "event_bus"

// Bus is an in-memory publish/subscribe dispatcher. A single dispatch
// goroutine drains the queue and fans each event out to its handlers, waiting
// for all of them before taking the next event — so per subscriber, events of
// the same kind arrive in publish order. Handlers run detached from the
// publisher: a slow or panicking subscriber never propagates back to the
// publishing transaction.
//
// Delivery is in-process at-least-once; events are not persisted. An event
// accepted after commit but lost to a crash is an operational hazard a durable
// outbox would close — out of scope here, surfaced via logs/metrics instead.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]domevent.Handler
	queue       chan domevent.Event
	startOnce   sync.Once
	stopOnce    sync.Once
	cancel      context.CancelFunc
	done        chan struct{}
	concurrency int
	handlerWait time.Duration
	log         observability.Logger
}

type Config struct {
	QueueSize      int
	FanoutLimit    int           // per-event handler fanout cap
	HandlerTimeout time.Duration // per-handler deadline
}

func NewBus(cfg Config, logger observability.Logger) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.FanoutLimit <= 0 {
		cfg.FanoutLimit = 8
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Bus{
		subs:        make(map[string][]domevent.Handler),
		queue:       make(chan domevent.Event, cfg.QueueSize),
		concurrency: cfg.FanoutLimit,
		handlerWait: cfg.HandlerTimeout,
		log:         logger.With(observability.F("component", componentEventBus)),
	}
}

func (b *Bus) Subscribe(eventName string, h domevent.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		b.done = make(chan struct{})
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		close(b.queue)
		if b.done != nil {
			select {
			case <-b.done:
			case <-ctx.Done():
			}
		}
		if b.cancel != nil {
			b.cancel()
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
}

// Publish enqueues the event and returns; it never fails because of
// subscriber errors. Callers must publish only after their own write has
// committed, so subscribers never act on data that could roll back.
func (b *Bus) Publish(ctx context.Context, e domevent.Event) error {
	if e == nil {
		return nil
	}
	select {
	case b.queue <- e:
		logctx.FromOr(ctx, b.log).Debug("event_enqueued",
			observability.F("event", e.EventName()),
		)
		return nil
	case <-ctx.Done():
		logctx.FromOr(ctx, b.log).Warn("event_enqueue_aborted",
			observability.F("event", e.EventName()),
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for e := range b.queue {
		b.fanout(ctx, e)
	}
}

func (b *Bus) fanout(ctx context.Context, e domevent.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domevent.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("event_dropped_no_subscriber",
			observability.F("event", name),
		)
		return
	}

	// Handlers must outlive the publisher's request context.
	ctx = context.WithoutCancel(ctx)
	ctx = logctx.With(ctx, b.log)

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event_handler_panic",
						observability.F("event", name),
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.handlerWait)
			hctx = logctx.With(hctx, b.log.With(observability.F("event", name)))
			err := h(hctx, e)
			cancel()
			if err != nil {
				b.log.Warn("event_handler_error",
					observability.F("event", name),
					observability.F("error", err),
				)
			}
		}()
	}

	// Waiting here keeps dispatch order stable per subscriber.
	wg.Wait()

	b.log.Debug("event_fanned_out",
		observability.F("event", name),
		observability.F("handlers", len(handlers)),
	)
}
