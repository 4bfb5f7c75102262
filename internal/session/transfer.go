// Blind and attended transfer, grounded on dialog.Dialog's BuildBYE/
// BuildReINVITE direction-aware header construction pattern, adapted to
// build REFER requests instead. The attended-transfer Replaces header is
// built from the transfer session's own CallID/LocalTag/RemoteTag
// (SPEC_FULL.md §3, resolving Open Question 4), not from a remote identity
// string.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/softphone/internal/corekit/errkind"
	"github.com/sebas/softphone/internal/events"
)

// BlindTransfer sends REFER to sip:{target}@{domain}; on 2xx it schedules a
// BYE of the original after a short delay, on reject it emits
// transferCompleted{success:false} (spec.md §4.1 "blindTransfer").
func (c *Core) BlindTransfer(sessionID, target string) error {
	s, err := c.requireEstablished(sessionID)
	if err != nil {
		return err
	}
	cfg := c.Config()
	referTo := fmt.Sprintf("sip:%s@%s", target, cfg.Domain)

	recipient := sip.Uri{}
	uriStr := fmt.Sprintf("sip:%s@%s", s.RemoteNumber, cfg.Domain)
	if parseErr := sip.ParseUri(uriStr, &recipient); parseErr != nil {
		return errkind.Wrap(errkind.InvalidTarget, parseErr.Error())
	}

	req := sip.NewRequest(sip.REFER, recipient)
	req.AppendHeader(sip.NewHeader("Call-ID", s.CallID))
	req.AppendHeader(sip.NewHeader("Refer-To", "<"+referTo+">"))

	c.bus.Publish(events.NewTransferInitiated(s.ID, target))

	accepted, reason := c.sendReferAndWait(req)
	c.bus.Publish(events.NewTransferCompleted(s.ID, accepted, reason))
	if accepted {
		go func() {
			time.Sleep(200 * time.Millisecond)
			_ = c.HangupCall(s.ID)
		}()
	} else {
		return errkind.Wrap(errkind.TransferRejected, reason)
	}
	return nil
}

func (c *Core) sendReferAndWait(req *sip.Request) (accepted bool, reason string) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return false, "no active transport"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	tx, err := client.TransactionRequest(ctx, req)
	if err != nil {
		return false, err.Error()
	}
	defer tx.Terminate()
	select {
	case res := <-tx.Responses():
		if res == nil {
			return false, "no response"
		}
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return true, "accepted"
		}
		return false, fmt.Sprintf("rejected: %d", res.StatusCode)
	case <-tx.Done():
		return false, "transaction died"
	case <-ctx.Done():
		return false, "timeout"
	}
}

// AttendedTransfer creates a second outgoing INVITE tagged as a transfer leg
// of originalSessionID, emitting trying/ringing/answered/rejected/terminated
// progress. It does NOT automatically complete the transfer
// (spec.md §4.1 "attendedTransfer").
func (c *Core) AttendedTransfer(originalSessionID, target string) (*Session, error) {
	original, err := c.requireEstablished(originalSessionID)
	if err != nil {
		return nil, err
	}

	transfer, err := c.MakeCall(context.Background(), target, CallOptions{})
	if err != nil {
		return nil, err
	}
	transfer.mu.Lock()
	transfer.transferOf = original.ID
	transfer.mu.Unlock()

	c.bus.Publish(events.NewAttendedTransferInitiated(original.ID, transfer.ID, target))
	c.bus.Publish(events.NewAttendedTransferProgress(transfer.ID, "trying"))

	go c.watchAttendedTransfer(transfer)

	return transfer, nil
}

func (c *Core) watchAttendedTransfer(transfer *Session) {
	lastState := transfer.State()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-transfer.Context().Done():
			if transfer.State() == StateFailed {
				c.bus.Publish(events.NewAttendedTransferRejected(transfer.ID, "failed"))
			} else {
				c.bus.Publish(events.NewAttendedTransferTerminated(transfer.ID))
			}
			return
		case <-ticker.C:
			state := transfer.State()
			if state == lastState {
				continue
			}
			lastState = state
			switch state {
			case StateRinging, StateCalling:
				c.bus.Publish(events.NewAttendedTransferProgress(transfer.ID, "ringing"))
			case StateEstablished:
				c.bus.Publish(events.NewAttendedTransferAnswered(transfer.ID))
				return
			}
		}
	}
}

// CompleteAttendedTransfer issues REFER with a Replaces header built from the
// transfer session's own dialog identifiers (spec.md §4.1
// "completeAttendedTransfer"; SPEC_FULL.md §3 resolving Open Question 4).
func (c *Core) CompleteAttendedTransfer(originalSessionID, transferSessionID string) error {
	original, err := c.requireEstablished(originalSessionID)
	if err != nil {
		return err
	}
	transfer, ok := c.GetSession(transferSessionID)
	if !ok || IsTerminal(transfer.State()) {
		return errkind.Wrap(errkind.SessionNotFound, transferSessionID)
	}

	cfg := c.Config()
	recipient := sip.Uri{}
	uriStr := fmt.Sprintf("sip:%s@%s", original.RemoteNumber, cfg.Domain)
	if parseErr := sip.ParseUri(uriStr, &recipient); parseErr != nil {
		return errkind.Wrap(errkind.InvalidTarget, parseErr.Error())
	}

	replaces := fmt.Sprintf("%s;to-tag=%s;from-tag=%s", transfer.CallID, transfer.RemoteTag, transfer.LocalTag)
	referTo := fmt.Sprintf("<sip:%s@%s?Replaces=%s>", transfer.RemoteNumber, cfg.Domain, replaces)

	req := sip.NewRequest(sip.REFER, recipient)
	req.AppendHeader(sip.NewHeader("Call-ID", original.CallID))
	req.AppendHeader(sip.NewHeader("Refer-To", referTo))

	accepted, reason := c.sendReferAndWait(req)
	c.bus.Publish(events.NewAttendedTransferCompleted(original.ID, accepted, reason))
	if !accepted {
		return errkind.Wrap(errkind.TransferRejected, reason)
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = c.HangupCall(original.ID)
		_ = c.HangupCall(transfer.ID)
	}()
	return nil
}

// CancelAttendedTransfer terminates the transfer session, leaves the
// original intact (spec.md §4.1 "cancelAttendedTransfer").
func (c *Core) CancelAttendedTransfer(originalSessionID string) error {
	c.mu.Lock()
	var transfer *Session
	for _, s := range c.sessions {
		if s.transferOf == originalSessionID {
			transfer = s
			break
		}
	}
	c.mu.Unlock()
	if transfer == nil {
		return errkind.Wrap(errkind.SessionNotFound, "no transfer session for "+originalSessionID)
	}
	if err := c.HangupCall(transfer.ID); err != nil {
		return err
	}
	c.bus.Publish(events.NewAttendedTransferCancelled(originalSessionID))
	return nil
}
