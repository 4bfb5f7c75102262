// Package session implements the SIP Session Core (spec.md §4.1): the user
// agent, its single registration, and every call/subscription dialog,
// grounded on the teacher's internal/signaling/dialog package (dialog.go,
// state.go, manager.go) generalized from a two-leg B2BUA dialog to a
// one-leg-per-call UAC/UAS session, and on the alephcom BLF client for
// register/subscribe/digest-retry shape.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/rtp"

	"github.com/sebas/softphone/internal/events"
)

// State aliases events.SessionState so the session package and the bus speak
// the same vocabulary without an import cycle (events never imports session).
type State = events.SessionState

const (
	StateInitiating  = events.SessionInitiating
	StateRinging     = events.SessionRinging
	StateCalling     = events.SessionCalling
	StateConnecting  = events.SessionConnecting
	StateEstablished = events.SessionEstablished
	StateHold        = events.SessionHold
	StateTerminating = events.SessionTerminating
	StateTerminated  = events.SessionStateTerminated
	StateFailed      = events.SessionFailed
)

// validTransitions encodes the per-session state diagram from spec.md §4.1:
//
//	initiating --180/183--> ringing/calling --200--> established --BYE--> terminated
//	initiating --CANCEL|reject|5xx/6xx--> failed/terminated
//	ringing(incoming) --accept--> established --BYE--> terminated
//	established --re-INVITE(local mute tracks)--> hold --re-INVITE--> established
//
// adapted from dialog.CallState's validTransitions map, generalized with the
// extra ringing/calling/hold/failed states this spec names explicitly.
var validTransitions = map[State][]State{
	StateInitiating:  {StateRinging, StateCalling, StateFailed, StateTerminated},
	StateRinging:     {StateEstablished, StateFailed, StateTerminated},
	StateCalling:     {StateRinging, StateEstablished, StateFailed, StateTerminated},
	StateConnecting:  {StateEstablished, StateFailed, StateTerminated},
	StateEstablished: {StateHold, StateTerminating, StateTerminated},
	StateHold:        {StateEstablished, StateTerminating, StateTerminated},
	StateTerminating: {StateTerminated},
	StateTerminated:  {},
	StateFailed:      {},
}

// CanTransitionTo reports whether s may move directly to next.
func CanTransitionTo(s, next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is terminated or failed: invariant "a session
// never transitions out of terminated/failed" (spec.md §3).
func IsTerminal(s State) bool {
	return s == StateTerminated || s == StateFailed
}

// IsEstablishedLike reports whether hold and mute/unmute are permitted
// (requireEstablishedLike). Hold counts so that holdCall, toggleHold and
// mute still address a held session; DTMF and transfer go through
// requireEstablished and accept StateEstablished only.
func IsEstablishedLike(s State) bool {
	return s == StateEstablished || s == StateHold
}

// Session is the core's private record of one call dialog from INVITE/
// invitation to BYE (spec.md §3 "Session"), generalized from dialog.Dialog.
type Session struct {
	mu sync.Mutex

	ID              string
	Line            int
	Direction       events.Direction
	RemoteNumber    string
	RemoteDisplay   string
	state           State
	StartTime       time.Time
	AnswerTime      *time.Time
	OnHold          bool
	Muted           bool
	CallType        string
	LocallyAnswered bool

	// Dialog identifiers, grounded on dialog.Dialog's CallID/LocalTag/RemoteTag.
	CallID    string
	LocalTag  string
	RemoteTag string

	InviteRequest  *sip.Request
	InviteResponse *sip.Response

	RemoteContactURI string

	clientTx sip.ClientTransaction
	serverTx sip.ServerTransaction

	localCSeq uint32

	// transferOf, when set, names the original session this one is an
	// attended-transfer leg of (spec.md §4.1 attendedTransfer family).
	transferOf string

	lastDTMFPacket *rtp.Packet

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(id string, line int, direction events.Direction) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        id,
		Line:      line,
		Direction: direction,
		state:     StateInitiating,
		StartTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// State returns the session's current state under lock.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TransitionTo validates and applies a state transition, mirroring
// dialog.Dialog.TransitionTo.
func (s *Session) TransitionTo(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransitionTo(s.state, next) {
		return false
	}
	s.state = next
	if next == StateTerminated || next == StateFailed {
		s.cancel()
	}
	return true
}

// NextCSeq returns the next local CSeq number, grounded on
// dialog.Dialog.localCSeq (atomic.Uint32 there; plain field here since all
// session mutation already runs under s.mu).
func (s *Session) NextCSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localCSeq++
	return s.localCSeq
}

// DurationSeconds reports elapsed talk time since AnswerTime, or 0 before answer.
func (s *Session) DurationSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AnswerTime == nil {
		return 0
	}
	return int(time.Since(*s.AnswerTime).Seconds())
}

// View projects the session into the event-bus-facing SessionView.
func (s *Session) View() events.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	duration := 0
	if s.AnswerTime != nil {
		duration = int(time.Since(*s.AnswerTime).Seconds())
	}
	return events.SessionView{
		SessionID:       s.ID,
		Line:            s.Line,
		Direction:       s.Direction,
		RemoteNumber:    s.RemoteNumber,
		RemoteDisplay:   s.RemoteDisplay,
		State:           s.state,
		StartTime:       s.StartTime,
		AnswerTime:      s.AnswerTime,
		DurationSeconds: duration,
		OnHold:          s.OnHold,
		Muted:           s.Muted,
		CallType:        s.CallType,
		LocallyAnswered: s.LocallyAnswered,
	}
}

// Context is cancelled when the session reaches a terminal state.
func (s *Session) Context() context.Context {
	return s.ctx
}
