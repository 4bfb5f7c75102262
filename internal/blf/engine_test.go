package blf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sebas/softphone/internal/events"
)

type fakeSubscriber struct {
	mu        sync.Mutex
	failNext  map[string]bool
	subscribed []string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{failNext: make(map[string]bool)}
}

func (f *fakeSubscriber) SubscribeBLF(ctx context.Context, extension, buddy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext[extension] {
		delete(f.failNext, extension)
		return context.DeadlineExceeded
	}
	f.subscribed = append(f.subscribed, extension)
	return nil
}

func (f *fakeSubscriber) UnsubscribeBLF(ctx context.Context, extension string) error {
	return nil
}

func waitForCond(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSubscribeIsIdempotent(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := newFakeSubscriber()
	e := NewEngine(bus, sub)
	defer e.Close()

	ctx := context.Background()
	if err := e.Subscribe(ctx, "101", ""); err != nil {
		t.Fatal(err)
	}
	if err := e.Subscribe(ctx, "101", ""); err != nil {
		t.Fatal(err)
	}
	sub.mu.Lock()
	count := len(sub.subscribed)
	sub.mu.Unlock()
	if count != 1 {
		t.Fatalf("subscribed %d times, want 1", count)
	}
}

func TestBatchSubscribePacesAcrossBatches(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := newFakeSubscriber()
	e := NewEngine(bus, sub)
	defer e.Close()

	if err := e.BatchSubscribe(context.Background(), []string{"101", "102", "103"}, 1); err != nil {
		t.Fatal(err)
	}
	if len(e.All()) != 3 {
		t.Fatalf("tracked %d subscriptions, want 3", len(e.All()))
	}
}

func TestBlfStateChangedUpdatesBookkeeping(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := newFakeSubscriber()
	e := NewEngine(bus, sub)
	defer e.Close()

	_ = e.Subscribe(context.Background(), "101", "")
	bus.Publish(events.NewBlfStateChanged("101", string(StateBusy), "sip:101@example.com"))

	waitForCond(t, func() bool {
		s, ok := e.Get("101")
		return ok && s.State == StateBusy && s.RemoteTarget == "sip:101@example.com"
	})
}

func TestUnregisteredClearsAllSubscriptions(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := newFakeSubscriber()
	e := NewEngine(bus, sub)
	defer e.Close()

	_ = e.Subscribe(context.Background(), "101", "")
	bus.Publish(events.NewUnregistered())

	waitForCond(t, func() bool { return len(e.All()) == 0 })
}
