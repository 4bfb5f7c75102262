package line

import (
	"testing"
	"time"

	"github.com/sebas/softphone/internal/events"
)

func waitFor(t *testing.T, cond func() bool) {
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

func TestOutgoingSessionAutoSelectsLine(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(bus)
	defer m.Close()

	sv := events.SessionView{SessionID: "s1", Line: 1, Direction: events.DirectionOutgoing, RemoteNumber: "555"}
	bus.Publish(events.NewSessionCreated(sv))

	waitFor(t, func() bool { return m.Selected() == 1 })
	lines := m.Lines()
	if lines[0].State != StateCalling {
		t.Fatalf("line 1 state = %q, want calling", lines[0].State)
	}
}

func TestIncomingCallDoesNotAutoSelect(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(bus)
	defer m.Close()

	sv := events.SessionView{SessionID: "s1", Line: 2, Direction: events.DirectionIncoming, RemoteNumber: "555"}
	bus.Publish(events.NewIncomingCall(sv))

	waitFor(t, func() bool { return m.Lines()[1].State == StateRinging })
	if m.Selected() != 0 {
		t.Fatalf("selected = %d, want 0 (no auto-select on incoming)", m.Selected())
	}
}

func TestClickingSelectedLineIsNoOp(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(bus)
	defer m.Close()

	m.SelectLine(1)
	waitFor(t, func() bool { return m.Selected() == 1 })
	m.SelectLine(1) // no-op
	if m.Selected() != 1 {
		t.Fatalf("selected = %d, want 1", m.Selected())
	}
}

func TestSessionTerminatedClearsSelectionAndIdlesLine(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(bus)
	defer m.Close()

	sv := events.SessionView{SessionID: "s1", Line: 1, Direction: events.DirectionOutgoing}
	bus.Publish(events.NewSessionCreated(sv))
	waitFor(t, func() bool { return m.Selected() == 1 })

	bus.Publish(events.NewSessionTerminated("s1", "User requested", events.CallHistoryRecord{}))
	waitFor(t, func() bool { return m.Selected() == 0 })
	if m.Lines()[0].State != StateIdle {
		t.Fatalf("line 1 state = %q, want idle", m.Lines()[0].State)
	}
}

func TestEstablishedStartsActiveState(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(bus)
	defer m.Close()

	sv := events.SessionView{SessionID: "s1", Line: 1, Direction: events.DirectionOutgoing}
	bus.Publish(events.NewSessionCreated(sv))
	bus.Publish(events.NewSessionStateChanged("s1", events.SessionEstablished))

	waitFor(t, func() bool { return m.Lines()[0].State == StateActive })
}

func TestIncomingCallWhileOtherLineActivePublishesLineRingingWhileBusy(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(bus)
	defer m.Close()

	active := events.SessionView{SessionID: "s1", Line: 1, Direction: events.DirectionOutgoing}
	bus.Publish(events.NewSessionCreated(active))
	bus.Publish(events.NewSessionStateChanged("s1", events.SessionEstablished))
	waitFor(t, func() bool { return m.Lines()[0].State == StateActive })

	received := make(chan events.LineRingingWhileBusyEvent, 1)
	unsub := bus.Subscribe(events.LineRingingWhileBusy, func(ev events.Event) {
		if lr, ok := ev.(events.LineRingingWhileBusyEvent); ok {
			received <- lr
		}
	})
	defer unsub()

	incoming := events.SessionView{SessionID: "s2", Line: 2, Direction: events.DirectionIncoming}
	bus.Publish(events.NewIncomingCall(incoming))

	select {
	case lr := <-received:
		if lr.Line != 2 {
			t.Fatalf("lineRingingWhileBusy.Line = %d, want 2", lr.Line)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a lineRingingWhileBusy event")
	}
}

func TestIncomingCallWithNoOtherLineActiveDoesNotPublishLineRingingWhileBusy(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(bus)
	defer m.Close()

	received := make(chan events.LineRingingWhileBusyEvent, 1)
	unsub := bus.Subscribe(events.LineRingingWhileBusy, func(ev events.Event) {
		if lr, ok := ev.(events.LineRingingWhileBusyEvent); ok {
			received <- lr
		}
	})
	defer unsub()

	incoming := events.SessionView{SessionID: "s1", Line: 1, Direction: events.DirectionIncoming}
	bus.Publish(events.NewIncomingCall(incoming))
	waitFor(t, func() bool { return m.Lines()[0].State == StateRinging })

	select {
	case <-received:
		t.Fatal("did not expect lineRingingWhileBusy with no other line active")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHoldPausesState(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	m := NewManager(bus)
	defer m.Close()

	sv := events.SessionView{SessionID: "s1", Line: 1, Direction: events.DirectionOutgoing}
	bus.Publish(events.NewSessionCreated(sv))
	bus.Publish(events.NewSessionStateChanged("s1", events.SessionEstablished))
	waitFor(t, func() bool { return m.Lines()[0].State == StateActive })

	bus.Publish(events.NewSessionModified("s1", "hold"))
	waitFor(t, func() bool { return m.Lines()[0].State == StateHold && m.Lines()[0].OnHold })
}
