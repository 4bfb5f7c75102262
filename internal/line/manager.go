// Package line implements the Line Manager (spec.md §4.2): a three-fixed-line
// UI-facing state machine driven purely by bus events. It never reads
// session.Core's internals directly — only what sessionCreated/incomingCall/
// sessionStateChanged/sessionTerminated/sessionAnswered/sessionModified/
// sessionMuted publish — mirroring the teacher's
// discipline of breaking manager<->dialog cyclic references by having the
// manager observe events instead of holding a direct reference
// (SPEC_FULL.md §4, spec.md §9 "the Line Manager a pure subscriber").
package line

import (
	"sync"
	"time"

	"github.com/sebas/softphone/internal/events"
)

// State is a line's UI-facing phase, distinct from the session's own state
// (spec.md §3 "LineState").
type State string

const (
	StateIdle    State = "idle"
	StateRinging State = "ringing"
	StateCalling State = "calling"
	StateActive  State = "active"
	StateHold    State = "hold"
)

// CallerInfo is the subset of a session the Line Manager displays.
type CallerInfo struct {
	Number  string
	Display string
}

// LineState is one of the three always-existing lines (spec.md §3).
type LineState struct {
	LineNumber int
	SessionID  string
	State      State
	CallerInfo CallerInfo
	Duration   int
	OnHold     bool
	Muted      bool
	Direction  events.Direction
}

// Manager owns the three LineState instances and the selected-line pointer.
// Selection is independent of session state so the UI can show idle even
// when other sessions exist (spec.md §4.2).
type Manager struct {
	bus *events.Bus

	mu       sync.Mutex
	lines    [3]LineState
	selected int // 0 = none, else 1-3

	tickers [3]*time.Ticker
	tickDone [3]chan struct{}

	unsubscribe []func()
}

// NewManager wires itself to bus and initializes three idle lines.
func NewManager(bus *events.Bus) *Manager {
	m := &Manager{bus: bus}
	for i := 0; i < 3; i++ {
		m.lines[i] = LineState{LineNumber: i + 1, State: StateIdle}
	}
	m.unsubscribe = []func(){
		bus.Subscribe(events.SessionCreated, m.onSessionCreated),
		bus.Subscribe(events.IncomingCall, m.onIncomingCall),
		bus.Subscribe(events.SessionStateChanged, m.onSessionStateChanged),
		bus.Subscribe(events.SessionAnswered, m.onSessionAnswered),
		bus.Subscribe(events.SessionModified, m.onSessionModified),
		bus.Subscribe(events.SessionMuted, m.onSessionMuted),
		bus.Subscribe(events.SessionTerminated, m.onSessionTerminated),
	}
	return m
}

// Close stops every duration ticker and unsubscribes from the bus.
func (m *Manager) Close() {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < 3; i++ {
		m.stopTickerLocked(i)
	}
}

// Lines returns a snapshot of the three lines.
func (m *Manager) Lines() [3]LineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines
}

// Selected returns the selected line number, or 0 if none.
func (m *Manager) Selected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// SelectLine implements the click semantics of spec.md §4.2: clicking the
// already-selected line is a no-op refresh; clicking a different line
// publishes sessionModified{hold} for the previously selected line if it was
// active and not already on hold, and never toggles a line that is already
// held. That event moves the previous line to hold in this manager's own
// table only: the Line Manager holds no reference to session.Core, so the
// underlying session is not put on hold by this call.
func (m *Manager) SelectLine(lineNumber int) {
	if lineNumber < 1 || lineNumber > 3 {
		return
	}
	m.mu.Lock()
	if m.selected == lineNumber {
		m.mu.Unlock()
		return
	}
	prev := m.selected
	m.selected = lineNumber
	m.mu.Unlock()

	if prev >= 1 && prev <= 3 {
		m.mu.Lock()
		prevLine := m.lines[prev-1]
		m.mu.Unlock()
		if prevLine.State == StateActive && !prevLine.OnHold {
			m.bus.Publish(events.NewSessionModified(prevLine.SessionID, "hold"))
		}
	}
	m.bus.Publish(events.NewLineSelected(lineNumber))
}

func (m *Manager) onSessionCreated(ev events.Event) {
	created, ok := ev.(events.SessionCreatedEvent)
	if !ok {
		return
	}
	s := created.Session
	if s.Direction != events.DirectionOutgoing {
		return
	}
	m.setLine(s.Line, func(l *LineState) {
		l.SessionID = s.SessionID
		l.State = StateCalling
		l.CallerInfo = CallerInfo{Number: s.RemoteNumber, Display: s.RemoteDisplay}
		l.Direction = s.Direction
	})
	m.mu.Lock()
	m.selected = s.Line
	m.mu.Unlock()
	m.bus.Publish(events.NewLineSelected(s.Line))
}

// onIncomingCall marks the line ringing without auto-selecting it
// (spec.md §4.2). If any other line is active or on hold, it publishes
// lineRingingWhileBusy, which the Audio Service consumes to play the
// call-waiting beep (two 200ms 440Hz beeps with a 400ms gap) once per event.
func (m *Manager) onIncomingCall(ev events.Event) {
	incoming, ok := ev.(events.IncomingCallEvent)
	if !ok {
		return
	}
	s := incoming.Session
	m.setLine(s.Line, func(l *LineState) {
		l.SessionID = s.SessionID
		l.State = StateRinging
		l.CallerInfo = CallerInfo{Number: s.RemoteNumber, Display: s.RemoteDisplay}
		l.Direction = s.Direction
	})
	if m.AnyOtherActiveOrHold(s.Line) {
		m.bus.Publish(events.NewLineRingingWhileBusy(s.Line))
	}
}

// AnyOtherActiveOrHold reports whether any line other than except is active
// or on hold, the call-waiting trigger condition from spec.md §4.2.
func (m *Manager) AnyOtherActiveOrHold(except int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < 3; i++ {
		if i+1 == except {
			continue
		}
		if m.lines[i].State == StateActive || m.lines[i].State == StateHold {
			return true
		}
	}
	return false
}

func (m *Manager) onSessionStateChanged(ev events.Event) {
	changed, ok := ev.(events.SessionStateChangedEvent)
	if !ok {
		return
	}
	line := m.lineForSession(changed.SessionID)
	if line == 0 {
		return
	}
	switch changed.State {
	case events.SessionEstablished:
		m.setLine(line, func(l *LineState) { l.State = StateActive; l.OnHold = false })
		m.startTicker(line)
	case events.SessionHold:
		m.setLine(line, func(l *LineState) { l.State = StateHold; l.OnHold = true })
		m.stopTicker(line)
	}
}

func (m *Manager) onSessionAnswered(ev events.Event) {
	answered, ok := ev.(events.SessionAnsweredEvent)
	if !ok {
		return
	}
	line := m.lineForSession(answered.SessionID)
	if line == 0 {
		return
	}
	m.setLine(line, func(l *LineState) { l.State = StateActive })
	m.startTicker(line)
}

func (m *Manager) onSessionModified(ev events.Event) {
	modified, ok := ev.(events.SessionModifiedEvent)
	if !ok {
		return
	}
	line := m.lineForSession(modified.SessionID)
	if line == 0 {
		return
	}
	switch modified.Action {
	case "hold":
		m.setLine(line, func(l *LineState) { l.State = StateHold; l.OnHold = true })
		m.stopTicker(line)
	case "unhold":
		m.setLine(line, func(l *LineState) { l.State = StateActive; l.OnHold = false })
		m.startTicker(line)
	}
}

func (m *Manager) onSessionMuted(ev events.Event) {
	muted, ok := ev.(events.SessionMutedEvent)
	if !ok {
		return
	}
	line := m.lineForSession(muted.SessionID)
	if line == 0 {
		return
	}
	m.setLine(line, func(l *LineState) { l.Muted = muted.Muted })
}

// onSessionTerminated marks the line idle, stops its ticker, and clears
// selection if the terminated line was selected (spec.md §4.2).
func (m *Manager) onSessionTerminated(ev events.Event) {
	terminated, ok := ev.(events.SessionTerminatedEvent)
	if !ok {
		return
	}
	line := m.lineForSession(terminated.SessionID)
	if line == 0 {
		return
	}
	m.setLine(line, func(l *LineState) {
		*l = LineState{LineNumber: l.LineNumber, State: StateIdle}
	})
	m.stopTicker(line)

	m.mu.Lock()
	if m.selected == line {
		m.selected = 0
	}
	m.mu.Unlock()
}

func (m *Manager) lineForSession(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < 3; i++ {
		if m.lines[i].SessionID == sessionID {
			return i + 1
		}
	}
	return 0
}

func (m *Manager) setLine(lineNumber int, mutate func(*LineState)) {
	if lineNumber < 1 || lineNumber > 3 {
		return
	}
	m.mu.Lock()
	mutate(&m.lines[lineNumber-1])
	m.mu.Unlock()
}

// startTicker begins the per-line 1Hz duration increment while state=active
// (spec.md §4.2 "Duration ticker"); paused by hold via stopTicker.
func (m *Manager) startTicker(lineNumber int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTickerLocked(lineNumber - 1)
	done := make(chan struct{})
	ticker := time.NewTicker(time.Second)
	m.tickers[lineNumber-1] = ticker
	m.tickDone[lineNumber-1] = done
	go func(idx int, t *time.Ticker, d chan struct{}) {
		for {
			select {
			case <-t.C:
				m.mu.Lock()
				m.lines[idx].Duration++
				sessionID := m.lines[idx].SessionID
				duration := m.lines[idx].Duration
				m.mu.Unlock()
				if sessionID != "" {
					m.bus.Publish(events.NewSessionDurationChanged(sessionID, duration))
				}
			case <-d:
				return
			}
		}
	}(lineNumber-1, ticker, done)
}

func (m *Manager) stopTicker(lineNumber int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTickerLocked(lineNumber - 1)
}

func (m *Manager) stopTickerLocked(idx int) {
	if m.tickers[idx] != nil {
		m.tickers[idx].Stop()
		close(m.tickDone[idx])
		m.tickers[idx] = nil
		m.tickDone[idx] = nil
	}
}
