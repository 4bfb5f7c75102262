package session

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/softphone/internal/corekit/errkind"
	"github.com/sebas/softphone/internal/events"
)

// HoldCall mutates the local audio track enabled flag and, per the
// SUPPLEMENTED FEATURES resolution of Open Question 1, also sends a
// re-INVITE with a=sendonly so the far end observes true SIP hold
// (spec.md §4.1 "holdCall", grounded on dialog.BuildReINVITE/HoldType).
func (c *Core) HoldCall(sessionID string) error {
	s, err := c.requireEstablishedLike(sessionID)
	if err != nil {
		return err
	}
	if s.State() == StateHold {
		return nil // already held; holdCall is idempotent
	}

	s.mu.Lock()
	s.OnHold = true
	s.mu.Unlock()

	c.sendReinvite(s, HoldTypeSendOnly)

	s.TransitionTo(StateHold)
	c.bus.Publish(events.NewSessionStateChanged(s.ID, StateHold))
	c.bus.Publish(events.NewSessionModified(s.ID, "hold"))
	return nil
}

// UnholdCall reverses HoldCall.
func (c *Core) UnholdCall(sessionID string) error {
	s, ok := c.resolveAny(sessionID)
	if !ok || s == nil {
		return errkind.Wrap(errkind.SessionNotFound, sessionID)
	}
	if s.State() != StateHold {
		return nil // unholdCall on a non-held session is a no-op, keeping holdCall;unholdCall an identity
	}

	s.mu.Lock()
	s.OnHold = false
	s.mu.Unlock()

	c.sendReinvite(s, HoldTypeNone)

	s.TransitionTo(StateEstablished)
	c.bus.Publish(events.NewSessionStateChanged(s.ID, StateEstablished))
	c.bus.Publish(events.NewSessionModified(s.ID, "unhold"))
	return nil
}

// ToggleHold flips between HoldCall and UnholdCall.
func (c *Core) ToggleHold(sessionID string) error {
	s, ok := c.resolveAny(sessionID)
	if !ok {
		return errkind.Wrap(errkind.SessionNotFound, sessionID)
	}
	if s.State() == StateHold {
		return c.UnholdCall(s.ID)
	}
	return c.HoldCall(s.ID)
}

// sendReinvite sends a re-INVITE carrying the given hold direction. Failures
// are logged, not surfaced, because the local-track mute already delivered
// the observable "no audio flows while held" contract; the re-INVITE is the
// protocol-level upgrade layered on top (SPEC_FULL.md §3).
func (c *Core) sendReinvite(s *Session, hold HoldType) {
	cfg := c.Config()
	recipient := sip.Uri{}
	uriStr := fmt.Sprintf("sip:%s@%s", s.RemoteNumber, cfg.Domain)
	if err := sip.ParseUri(uriStr, &recipient); err != nil {
		c.log.Warn("reinvite uri build failed", "session", s.ID, "error", err)
		return
	}
	req := sip.NewRequest(sip.INVITE, recipient)
	req.AppendHeader(sip.NewHeader("Call-ID", s.CallID))
	req.AppendHeader(sip.NewHeader("CSeq", fmt.Sprintf("%d INVITE", s.NextCSeq())))
	body, contentType := c.buildReinviteSDP(s, hold)
	req.AppendHeader(sip.NewHeader("Content-Type", contentType))
	req.SetBody(body)

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	tx, err := client.TransactionRequest(ctx, req)
	if err != nil {
		c.log.Warn("reinvite failed", "session", s.ID, "error", err)
		return
	}
	defer tx.Terminate()
	select {
	case res := <-tx.Responses():
		if res != nil && res.StatusCode >= 200 && res.StatusCode < 300 {
			ack := sip.NewAckRequest(req, res, nil)
			_ = client.WriteRequest(ack)
		}
	case <-tx.Done():
	case <-ctx.Done():
	}
}

// MuteCall/UnmuteCall disable/enable local audio tracks (spec.md §4.1).
func (c *Core) MuteCall(sessionID string) error {
	s, err := c.requireEstablishedLike(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.Muted = true
	s.mu.Unlock()
	c.bus.Publish(events.NewSessionMuted(s.ID, true))
	return nil
}

func (c *Core) UnmuteCall(sessionID string) error {
	s, err := c.requireEstablishedLike(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.Muted = false
	s.mu.Unlock()
	c.bus.Publish(events.NewSessionMuted(s.ID, false))
	return nil
}

// ToggleMute flips between MuteCall and UnmuteCall.
func (c *Core) ToggleMute(sessionID string) error {
	s, err := c.requireEstablishedLike(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	muted := s.Muted
	s.mu.Unlock()
	if muted {
		return c.UnmuteCall(s.ID)
	}
	return c.MuteCall(s.ID)
}

func (c *Core) requireEstablished(sessionID string) (*Session, error) {
	s, ok := c.resolveAny(sessionID)
	if !ok {
		return nil, errkind.Wrap(errkind.SessionNotFound, sessionID)
	}
	if s.State() != StateEstablished {
		return nil, errkind.Wrap(errkind.SessionNotEstablished, s.ID)
	}
	return s, nil
}

func (c *Core) requireEstablishedLike(sessionID string) (*Session, error) {
	s, ok := c.resolveAny(sessionID)
	if !ok {
		return nil, errkind.Wrap(errkind.SessionNotFound, sessionID)
	}
	if !IsEstablishedLike(s.State()) {
		return nil, errkind.Wrap(errkind.SessionNotEstablished, s.ID)
	}
	return s, nil
}
