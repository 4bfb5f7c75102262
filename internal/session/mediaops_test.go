package session

import (
	"testing"

	"github.com/sebas/softphone/internal/events"
)

func TestHoldCallIsIdempotent(t *testing.T) {
	c, s := newTestCoreWithEstablishedSession(t)
	if err := c.HoldCall(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateHold {
		t.Fatalf("expected session to be on hold, got %s", s.State())
	}
	if err := c.HoldCall(s.ID); err != nil {
		t.Fatalf("expected HoldCall on an already-held session to be a no-op, got error: %v", err)
	}
	if s.State() != StateHold {
		t.Fatalf("expected session to remain on hold, got %s", s.State())
	}
}

func TestHoldThenUnholdReturnsToEstablished(t *testing.T) {
	c, s := newTestCoreWithEstablishedSession(t)
	if err := c.HoldCall(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.UnholdCall(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateEstablished {
		t.Fatalf("expected session to be re-established, got %s", s.State())
	}
}

func TestUnholdOnNonHeldSessionIsNoop(t *testing.T) {
	c, s := newTestCoreWithEstablishedSession(t)
	if err := c.UnholdCall(s.ID); err != nil {
		t.Fatalf("expected unhold on a non-held session to be a no-op, got error: %v", err)
	}
	if s.State() != StateEstablished {
		t.Fatalf("expected session to remain established, got %s", s.State())
	}
}

func TestToggleHoldFlipsState(t *testing.T) {
	c, s := newTestCoreWithEstablishedSession(t)
	if err := c.ToggleHold(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateHold {
		t.Fatalf("expected ToggleHold to place the session on hold, got %s", s.State())
	}
	if err := c.ToggleHold(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateEstablished {
		t.Fatalf("expected ToggleHold to re-establish the session, got %s", s.State())
	}
}

func TestMuteUnmuteToggle(t *testing.T) {
	c, s := newTestCoreWithEstablishedSession(t)
	if err := c.MuteCall(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Muted {
		t.Fatal("expected session to be muted")
	}
	if err := c.ToggleMute(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Muted {
		t.Fatal("expected ToggleMute to unmute")
	}
}

func TestMuteOnNonEstablishedLikeSessionFails(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	c := NewCore(bus)
	s := newSession("sess-ringing", 1, events.DirectionOutgoing)
	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()

	if err := c.MuteCall(s.ID); err == nil {
		t.Fatal("expected MuteCall to fail on an initiating session")
	}
}
