package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/softphone/internal/corekit/errkind"
	"github.com/sebas/softphone/internal/events"
)

// installHandlers wires the sipgo server callbacks the way arzzra-soft_phone's
// UACUAS and the alephcom BLF client register OnNotify; extended here with
// OnInvite/OnBye/OnCancel for the inbound half of call handling.
func (c *Core) installHandlers() {
	c.mu.Lock()
	server := c.server
	c.mu.Unlock()
	if server == nil {
		return
	}
	server.OnInvite(c.handleIncomingInvite)
	server.OnBye(c.handleIncomingBye)
	server.OnCancel(c.handleIncomingCancel)
	server.OnNotify(c.handleNotify)
	server.OnAck(c.handleIncomingAck)
}

// CallOptions carries the optional knobs makeCall accepts (spec.md §4.1).
type CallOptions struct {
	ExtraHeaders map[string]string
	CallType     string // internal/external, when derivable by the caller
}

// MakeCall requires registered, allocates the lowest idle line, builds
// sip:{target}@{domain}, and sends the INVITE (spec.md §4.1 "makeCall").
func (c *Core) MakeCall(ctx context.Context, target string, opts CallOptions) (*Session, error) {
	if c.RegistrationState() != RegistrationRegistered {
		err := errkind.Wrap(errkind.NotRegistered, "makeCall requires an active registration")
		c.publishOperationFailed("makeCall", errkind.NotRegistered, err.Error())
		return nil, err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		err := errkind.Wrap(errkind.InvalidTarget, "empty target")
		c.publishOperationFailed("makeCall", errkind.InvalidTarget, err.Error())
		return nil, err
	}

	cfg := c.Config()
	recipient := sip.Uri{}
	uriStr := fmt.Sprintf("sip:%s@%s", target, cfg.Domain)
	if err := sip.ParseUri(uriStr, &recipient); err != nil {
		werr := errkind.Wrap(errkind.InvalidTarget, "cannot build uri for "+target)
		c.publishOperationFailed("makeCall", errkind.InvalidTarget, werr.Error())
		return nil, werr
	}

	s := newSession(c.nextSessionID(), 0, events.DirectionOutgoing)
	s.RemoteNumber = target
	s.CallType = opts.CallType
	s.CallID = newCallID()
	s.LocalTag = newTag()

	if line := c.allocateLine(s); line == 0 {
		err := errkind.Wrap(errkind.AllLinesBusy, "no idle line available")
		c.publishOperationFailed("makeCall", errkind.AllLinesBusy, err.Error())
		return nil, err
	}

	c.mu.Lock()
	c.stats.TotalCalls++
	c.stats.OutgoingCalls++
	c.mu.Unlock()

	c.bus.Publish(events.NewSessionCreated(s.View()))
	s.TransitionTo(StateInitiating)
	c.bus.Publish(events.NewSessionStateChanged(s.ID, StateInitiating))
	s.TransitionTo(StateCalling)
	c.bus.Publish(events.NewSessionStateChanged(s.ID, StateCalling))

	req := sip.NewRequest(sip.INVITE, recipient)
	req.AppendHeader(sip.NewHeader("Contact", c.contactHeader()))
	req.AppendHeader(sip.NewHeader("Call-ID", s.CallID))
	for k, v := range opts.ExtraHeaders {
		req.AppendHeader(sip.NewHeader(k, v))
	}
	body, contentType := c.buildOfferSDP(s)
	req.AppendHeader(sip.NewHeader("Content-Type", contentType))
	req.SetBody(body)
	s.InviteRequest = req

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		werr := errkind.Wrap(errkind.TransportStartFailed, "no active transport")
		c.failSession(s, werr.Error())
		return nil, werr
	}

	tx, err := client.TransactionRequest(ctx, req)
	if err != nil {
		werr := errkind.Wrap(errkind.TransportStartFailed, err.Error())
		c.failSession(s, werr.Error())
		return nil, werr
	}
	s.clientTx = tx

	go c.watchOutgoingInvite(s, tx, cfg.NoAnswerTimeout)

	return s, nil
}

func (c *Core) watchOutgoingInvite(s *Session, tx sip.ClientTransaction, noAnswerTimeout time.Duration) {
	timeout := time.NewTimer(noAnswerTimeout)
	defer timeout.Stop()
	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return
			}
			switch {
			case res.StatusCode == 180 || res.StatusCode == 183:
				s.TransitionTo(StateRinging)
				c.bus.Publish(events.NewSessionStateChanged(s.ID, StateRinging))
			case res.StatusCode >= 200 && res.StatusCode < 300:
				s.RemoteTag = remoteTagFrom(res)
				now := time.Now()
				s.mu.Lock()
				s.AnswerTime = &now
				s.mu.Unlock()
				s.TransitionTo(StateEstablished)
				ackReq := sip.NewAckRequest(s.InviteRequest, res, nil)
				c.mu.Lock()
				client := c.client
				c.mu.Unlock()
				if client != nil {
					_ = client.WriteRequest(ackReq)
				}
				c.bus.Publish(events.NewSessionStateChanged(s.ID, StateEstablished))
				c.bus.Publish(events.NewSessionAnswered(s.ID))
				return
			case res.StatusCode >= 300:
				if res.StatusCode == 486 || res.StatusCode == 600 {
					c.failSession(s, "busy")
				} else {
					c.failSession(s, fmt.Sprintf("rejected: %d", res.StatusCode))
				}
				return
			}
		case <-tx.Done():
			c.failSession(s, "transaction terminated")
			return
		case <-timeout.C:
			c.failSession(s, "no answer timeout")
			return
		case <-s.Context().Done():
			return
		}
	}
}

func remoteTagFrom(res *sip.Response) string {
	if h := res.GetHeader("To"); h != nil {
		v := h.Value()
		if idx := strings.Index(v, "tag="); idx >= 0 {
			return v[idx+4:]
		}
	}
	return ""
}

// handleIncomingInvite allocates a line or rejects with 486, builds the
// session, and auto-answers after 1.5s when configured and idle
// (spec.md §4.1).
func (c *Core) handleIncomingInvite(req *sip.Request, tx sip.ServerTransaction) {
	cfg := c.Config()
	s := newSession(c.nextSessionID(), 0, events.DirectionIncoming)
	s.CallID = callIDFrom(req)
	s.RemoteTag = remoteTagFrom(sip.NewResponseFromRequest(req, 100, "Trying", nil))
	s.RemoteNumber = fromUserOf(req)
	s.RemoteDisplay = fromDisplayOf(req)
	s.InviteRequest = req
	s.serverTx = tx
	s.LocalTag = newTag()

	if line := c.allocateLine(s); line == 0 {
		_ = tx.Respond(sip.NewResponseFromRequest(req, 486, "Busy Here", nil))
		return
	}

	c.mu.Lock()
	c.stats.TotalCalls++
	c.stats.IncomingCalls++
	c.mu.Unlock()

	_ = tx.Respond(sip.NewResponseFromRequest(req, 180, "Ringing", nil))
	s.TransitionTo(StateRinging)

	c.bus.Publish(events.NewSessionCreated(s.View()))
	c.bus.Publish(events.NewIncomingCall(s.View()))

	anyActive := c.anySessionEstablished()
	if cfg.AutoAnswer && !anyActive {
		go func() {
			select {
			case <-time.After(1500 * time.Millisecond):
			case <-s.Context().Done():
				return
			}
			_ = c.AnswerCall(s.ID)
		}()
	}
}

func (c *Core) anySessionEstablished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if s.State() == StateEstablished {
			return true
		}
	}
	return false
}

// AnswerCall defaults to the incoming session in ringing; accepts
// audio-only (spec.md §4.1 "answerCall").
func (c *Core) AnswerCall(sessionID string) error {
	s, err := c.resolveSession(sessionID, StateRinging)
	if err != nil {
		return err
	}
	if s.serverTx == nil {
		return errkind.Wrap(errkind.SessionNotEstablished, "not an incoming session")
	}

	body, contentType := c.buildAnswerSDP(s)
	res := sip.NewResponseFromRequest(s.InviteRequest, 200, "OK", body)
	res.AppendHeader(sip.NewHeader("Contact", c.contactHeader()))
	res.AppendHeader(sip.NewHeader("Content-Type", contentType))

	if err := s.serverTx.Respond(res); err != nil {
		return errkind.Wrap(errkind.SessionNotEstablished, err.Error())
	}

	now := time.Now()
	s.mu.Lock()
	s.AnswerTime = &now
	s.LocallyAnswered = true
	s.mu.Unlock()
	s.TransitionTo(StateEstablished)

	c.bus.Publish(events.NewSessionStateChanged(s.ID, StateEstablished))
	c.bus.Publish(events.NewSessionAnswered(s.ID))
	return nil
}

// HangupCall dispatches CANCEL, reject, or BYE depending on the session's
// current phase (spec.md §4.1 "hangupCall").
func (c *Core) HangupCall(sessionID string) error {
	s, ok := c.resolveAny(sessionID)
	if !ok {
		return errkind.Wrap(errkind.SessionNotFound, sessionID)
	}

	reason := "User requested"
	switch s.State() {
	case StateInitiating, StateCalling:
		if s.clientTx != nil {
			s.clientTx.Cancel()
		}
		return c.terminateSession(s, reason)
	case StateRinging:
		if s.Direction == events.DirectionIncoming && s.serverTx != nil {
			_ = s.serverTx.Respond(sip.NewResponseFromRequest(s.InviteRequest, 486, "Busy Here", nil))
		} else if s.clientTx != nil {
			s.clientTx.Cancel()
		}
		return c.terminateSession(s, reason)
	case StateEstablished, StateHold:
		c.sendBye(s)
		return c.terminateSession(s, reason)
	default:
		return errkind.Wrap(errkind.SessionNotFound, "session already terminal")
	}
}

func (c *Core) sendBye(s *Session) {
	cfg := c.Config()
	recipient := sip.Uri{}
	uriStr := fmt.Sprintf("sip:%s@%s", s.RemoteNumber, cfg.Domain)
	if err := sip.ParseUri(uriStr, &recipient); err != nil {
		return
	}
	req := sip.NewRequest(sip.BYE, recipient)
	req.AppendHeader(sip.NewHeader("Call-ID", s.CallID))
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return
	}
	tx, err := client.TransactionRequest(context.Background(), req)
	if err != nil {
		return
	}
	defer tx.Terminate()
	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-time.After(4 * time.Second):
	}
}

func (c *Core) handleIncomingBye(req *sip.Request, tx sip.ServerTransaction) {
	_ = tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil))
	callID := callIDFrom(req)
	s, ok := c.sessionByCallID(callID)
	if !ok {
		return
	}
	_ = c.terminateSession(s, "Remote BYE")
}

func (c *Core) handleIncomingCancel(req *sip.Request, tx sip.ServerTransaction) {
	_ = tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil))
	callID := callIDFrom(req)
	s, ok := c.sessionByCallID(callID)
	if !ok {
		return
	}
	_ = c.terminateSession(s, "Cancelled")
}

func (c *Core) handleIncomingAck(req *sip.Request, tx sip.ServerTransaction) {
	// ACK carries no response of its own; nothing to acknowledge back.
}

// terminateSession moves s to terminated, releases its line, and emits
// sessionTerminated with a CallHistoryRecord (spec.md §3 "CallHistoryRecord").
func (c *Core) terminateSession(s *Session, reason string) error {
	wasEstablished := s.State() == StateEstablished || s.State() == StateHold
	locallyAnswered := s.LocallyAnswered
	duration := s.DurationSeconds()

	if !s.TransitionTo(StateTerminated) {
		// Already terminal; still ensure bookkeeping is consistent.
	}
	c.releaseLine(s)

	status := "completed"
	switch {
	case duration == 0 && !locallyAnswered && s.Direction == events.DirectionIncoming:
		status = "missed"
		c.mu.Lock()
		c.stats.MissedCalls++
		c.mu.Unlock()
	case !wasEstablished && reason != "User requested":
		status = "cancelled"
	}

	rec := events.CallHistoryRecord{
		ID:        s.ID,
		Number:    s.RemoteNumber,
		Name:      s.RemoteDisplay,
		Direction: s.Direction,
		Duration:  duration,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	c.bus.Publish(events.NewSessionTerminated(s.ID, reason, rec))
	c.bus.Publish(events.NewLineReleased(s.Line))
	return nil
}

func (c *Core) failSession(s *Session, detail string) {
	s.TransitionTo(StateFailed)
	c.releaseLine(s)
	rec := events.CallHistoryRecord{
		ID:        s.ID,
		Number:    s.RemoteNumber,
		Name:      s.RemoteDisplay,
		Direction: s.Direction,
		Duration:  0,
		Status:    "missed",
		Timestamp: time.Now().UTC(),
	}
	c.bus.Publish(events.NewSessionTerminated(s.ID, detail, rec))
	c.bus.Publish(events.NewLineReleased(s.Line))
}

// resolveSession fetches a live session and requires it be in `want` state
// (or, when sessionID is empty, the first session matching `want`).
func (c *Core) resolveSession(sessionID string, want State) (*Session, error) {
	if sessionID == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i := 0; i < 3; i++ {
			if c.lines[i] != nil && c.lines[i].State() == want {
				return c.lines[i], nil
			}
		}
		return nil, errkind.Wrap(errkind.SessionNotFound, "no session in state "+string(want))
	}
	s, ok := c.GetSession(sessionID)
	if !ok || IsTerminal(s.State()) {
		return nil, errkind.Wrap(errkind.SessionNotFound, sessionID)
	}
	if s.State() != want {
		return nil, errkind.Wrap(errkind.SessionNotEstablished, sessionID)
	}
	return s, nil
}

// resolveAny fetches a session in any live state by id, or firstActiveSession
// when sessionID is empty. A session that has reached terminated/failed is
// reported as not found.
func (c *Core) resolveAny(sessionID string) (*Session, bool) {
	if sessionID == "" {
		return c.firstActiveSession()
	}
	s, ok := c.GetSession(sessionID)
	if ok && IsTerminal(s.State()) {
		return nil, false
	}
	return s, ok
}

func (c *Core) sessionByCallID(callID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if s.CallID == callID {
			return s, true
		}
	}
	return nil, false
}

func (c *Core) contactHeader() string {
	cfg := c.Config()
	return fmt.Sprintf("<sip:%s@%s>", cfg.EffectiveContactName(), cfg.Domain)
}

func callIDFrom(req *sip.Request) string {
	if h := req.GetHeader("Call-ID"); h != nil {
		return h.Value()
	}
	return ""
}

func fromUserOf(req *sip.Request) string {
	if h := req.GetHeader("From"); h != nil {
		v := h.Value()
		if at := strings.Index(v, "@"); at >= 0 {
			start := strings.LastIndex(v[:at], ":")
			if start >= 0 {
				return v[start+1 : at]
			}
		}
	}
	return ""
}

func fromDisplayOf(req *sip.Request) string {
	if h := req.GetHeader("From"); h != nil {
		v := h.Value()
		if idx := strings.Index(v, "<"); idx > 0 {
			return strings.Trim(v[:idx], " \"")
		}
	}
	return ""
}
