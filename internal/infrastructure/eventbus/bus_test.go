package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domevent "github.com/man-1982/commerce-shop/internal/domain/eventbus"
	"github.com/man-1982/commerce-shop/internal/observability"
)

type testEvent struct {
	name string
	seq  int
}

func (e testEvent) EventName() string { return e.name }

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(Config{QueueSize: 128, FanoutLimit: 4, HandlerTimeout: 5 * time.Second}, observability.NopLogger())
	bus.Start(context.Background())
	t.Cleanup(func() { bus.Stop(context.Background()) })
	return bus
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestBus_DeliversToSubscriber(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var got []domevent.Event
	bus.Subscribe("thing.happened", func(_ context.Context, e domevent.Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	})

	if err := bus.Publish(context.Background(), testEvent{name: "thing.happened", seq: 1}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
}

func TestBus_FIFOPerEventKind(t *testing.T) {
	bus := newTestBus(t)

	const n = 100
	var mu sync.Mutex
	var seqs []int
	bus.Subscribe("counter.ticked", func(_ context.Context, e domevent.Event) error {
		evt := e.(testEvent)
		mu.Lock()
		seqs = append(seqs, evt.seq)
		mu.Unlock()
		return nil
	})

	for i := 0; i < n; i++ {
		if err := bus.Publish(context.Background(), testEvent{name: "counter.ticked", seq: i}); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs) == n
	})

	mu.Lock()
	defer mu.Unlock()
	for i, seq := range seqs {
		if seq != i {
			t.Fatalf("events delivered out of publish order at %d: got seq %d", i, seq)
		}
	}
}

func TestBus_SubscriberErrorDoesNotFailPublish(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	delivered := 0
	bus.Subscribe("thing.happened", func(context.Context, domevent.Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return errors.New("subscriber exploded")
	})

	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), testEvent{name: "thing.happened", seq: i}); err != nil {
			t.Fatalf("publish must not surface subscriber errors, got %v", err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 3
	})
}

func TestBus_SubscriberPanicIsContained(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	delivered := 0
	bus.Subscribe("thing.happened", func(_ context.Context, e domevent.Event) error {
		evt := e.(testEvent)
		if evt.seq == 0 {
			panic(fmt.Sprintf("handler panic on %d", evt.seq))
		}
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	if err := bus.Publish(context.Background(), testEvent{name: "thing.happened", seq: 0}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := bus.Publish(context.Background(), testEvent{name: "thing.happened", seq: 1}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Dispatch survives the panic and keeps delivering.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 1
	})
}

func TestBus_NoSubscriberIsDropped(t *testing.T) {
	bus := newTestBus(t)
	if err := bus.Publish(context.Background(), testEvent{name: "nobody.cares"}); err != nil {
		t.Fatalf("publish without subscriber must succeed, got %v", err)
	}
}

func TestBus_NilEventIgnored(t *testing.T) {
	bus := newTestBus(t)
	if err := bus.Publish(context.Background(), nil); err != nil {
		t.Fatalf("nil event must be ignored, got %v", err)
	}
}
