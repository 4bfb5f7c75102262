package session

import (
	"testing"
	"time"

	"github.com/sebas/softphone/internal/events"
)

func TestDtmfEventForRune(t *testing.T) {
	cases := []struct {
		r       rune
		want    uint8
		wantOK  bool
	}{
		{'0', 0, true},
		{'9', 9, true},
		{'*', 10, true},
		{'#', 11, true},
		{'A', 12, true},
		{'D', 15, true},
		{'x', 0, false},
	}
	for _, c := range cases {
		got, ok := dtmfEventForRune(c.r)
		if ok != c.wantOK || (ok && got != c.want) {
			t.Errorf("dtmfEventForRune(%q) = (%d, %v), want (%d, %v)", c.r, got, ok, c.want, c.wantOK)
		}
	}
}

func newTestCoreWithEstablishedSession(t *testing.T) (*Core, *Session) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	c := NewCore(bus)

	s := newSession("sess-est", 1, events.DirectionOutgoing)
	if !s.TransitionTo(StateCalling) || !s.TransitionTo(StateEstablished) {
		t.Fatal("failed to drive session to established")
	}
	c.mu.Lock()
	c.sessions[s.ID] = s
	c.lines[0] = s
	c.mu.Unlock()
	return c, s
}

func TestSendDTMFRejectsInvalidTone(t *testing.T) {
	c, s := newTestCoreWithEstablishedSession(t)
	if err := c.SendDTMF(s.ID, 'z'); err == nil {
		t.Fatal("expected an error for an invalid DTMF tone")
	}
}

func TestSendDTMFPublishesOnSuccess(t *testing.T) {
	c, s := newTestCoreWithEstablishedSession(t)
	received := make(chan events.DtmfSentEvent, 1)
	unsub := c.bus.Subscribe(events.DtmfSent, func(ev events.Event) {
		if de, ok := ev.(events.DtmfSentEvent); ok {
			received <- de
		}
	})
	defer unsub()

	if err := c.SendDTMF(s.ID, '5'); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case ev := <-received:
		if ev.Tone != '5' {
			t.Fatalf("expected tone '5', got %q", ev.Tone)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a dtmfSent event to have been published")
	}
}

func TestSendDTMFSequenceValidatesUpFront(t *testing.T) {
	c, s := newTestCoreWithEstablishedSession(t)
	if err := c.SendDTMFSequence(s.ID, "123z456", 1, 0); err == nil {
		t.Fatal("expected up-front validation to reject the sequence containing 'z'")
	}
}

func TestSendDTMFOnMissingSessionFails(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	c := NewCore(bus)
	if err := c.SendDTMF("does-not-exist", '1'); err == nil {
		t.Fatal("expected an error for an unknown session id")
	}
}
