package events

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeDeliversOnlyMatchingKind(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []Type
	unsub := bus.Subscribe(SessionCreated, func(ev Event) {
		mu.Lock()
		got = append(got, ev.Kind())
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(NewSessionCreated(SessionView{SessionID: "s1"}))
	bus.Publish(NewSessionAnswered("s1"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != SessionCreated {
		t.Fatalf("got %v, want exactly one SessionCreated", got)
	}
}

func TestFIFOOrderPerSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var order []Type
	unsub := bus.SubscribeAll(func(ev Event) {
		mu.Lock()
		order = append(order, ev.Kind())
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(NewSessionCreated(SessionView{SessionID: "s1"}))
	bus.Publish(NewSessionStateChanged("s1", SessionCalling))
	bus.Publish(NewSessionStateChanged("s1", SessionEstablished))
	bus.Publish(NewSessionAnswered("s1"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	})

	mu.Lock()
	defer mu.Unlock()
	want := []Type{SessionCreated, SessionStateChanged, SessionStateChanged, SessionAnswered}
	for i, k := range want {
		if order[i] != k {
			t.Fatalf("order[%d] = %v, want %v (full: %v)", i, order[i], k, order)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	unsub := bus.Subscribe(DtmfSent, func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewDtmfSent("s1", '5'))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	unsub()
	bus.Publish(NewDtmfSent("s1", '6'))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("count = %d after unsubscribe, want 1", count)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
