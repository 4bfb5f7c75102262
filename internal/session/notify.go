// NOTIFY handling and the wire-level half of BLF subscription (spec.md
// §4.1 NOTIFY handling), grounded on alephcom's handleNOTIFY/subscribeOne.
// The dialog-info+xml parsing itself lives in internal/blf so the batching/
// backoff engine and the wire parser share one implementation; Core only
// orchestrates the transaction and forwards the parsed result to the bus.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/softphone/internal/blf"
	"github.com/sebas/softphone/internal/corekit/errkind"
	"github.com/sebas/softphone/internal/events"
)

// SubscribeBLF sends SUBSCRIBE Event:dialog for extension, retrying once on
// 401 with digest credentials (spec.md §4.1 "subscribeBLF"). It satisfies
// blf.Subscriber.
func (c *Core) SubscribeBLF(ctx context.Context, extension, buddy string) error {
	if c.RegistrationState() != RegistrationRegistered {
		return errkind.Wrap(errkind.NotRegistered, "subscribeBLF requires registration")
	}
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return errkind.Wrap(errkind.SubscribeFailed, "no active transport")
	}

	cfg := c.Config()
	recipient := sip.Uri{}
	uriStr := fmt.Sprintf("sip:%s@%s", extension, cfg.Domain)
	if err := sip.ParseUri(uriStr, &recipient); err != nil {
		return errkind.Wrap(errkind.SubscribeFailed, err.Error())
	}

	req := sip.NewRequest(sip.SUBSCRIBE, recipient)
	req.AppendHeader(sip.NewHeader("Event", "dialog"))
	req.AppendHeader(sip.NewHeader("Expires", "3600"))
	req.AppendHeader(sip.NewHeader("Accept", "application/dialog-info+xml"))

	res, err := c.transactAuthenticated(ctx, client, req, recipient, cfg)
	if err != nil {
		return errkind.Wrap(errkind.SubscribeFailed, err.Error())
	}
	if res.StatusCode != 200 && res.StatusCode != 202 {
		return errkind.Wrap(errkind.SubscribeFailed, fmt.Sprintf("subscribe %s: %d", extension, res.StatusCode))
	}
	c.bus.Publish(events.NewBlfSubscribed(extension))
	return nil
}

// UnsubscribeBLF sends SUBSCRIBE Expires:0 for extension. Satisfies
// blf.Subscriber.
func (c *Core) UnsubscribeBLF(ctx context.Context, extension string) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		c.bus.Publish(events.NewBlfUnsubscribed(extension))
		return nil
	}

	cfg := c.Config()
	recipient := sip.Uri{}
	uriStr := fmt.Sprintf("sip:%s@%s", extension, cfg.Domain)
	if err := sip.ParseUri(uriStr, &recipient); err != nil {
		return errkind.Wrap(errkind.SubscribeFailed, err.Error())
	}
	req := sip.NewRequest(sip.SUBSCRIBE, recipient)
	req.AppendHeader(sip.NewHeader("Event", "dialog"))
	req.AppendHeader(sip.NewHeader("Expires", "0"))

	_, _ = c.transactAuthenticated(ctx, client, req, recipient, cfg)
	c.bus.Publish(events.NewBlfUnsubscribed(extension))
	return nil
}

// handleNotify dispatches dialog-info, message-summary, and unknown NOTIFY
// bodies (spec.md §4.1 "NOTIFY handling"). Responds 200 immediately per
// RFC 3265, the way alephcom's handleNOTIFY does.
func (c *Core) handleNotify(req *sip.Request, tx sip.ServerTransaction) {
	_ = tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil))

	eventHeader := ""
	if h := req.GetHeader("Event"); h != nil {
		eventHeader = h.Value()
	}
	contentType := ""
	if h := req.GetHeader("Content-Type"); h != nil {
		contentType = h.Value()
	}
	body := req.Body()

	switch {
	case strings.Contains(contentType, "dialog-info"):
		extension, state, remoteTarget := blf.ParseDialogInfo(body)
		if extension == "" {
			toValue := ""
			if h := req.GetHeader("To"); h != nil {
				toValue = h.Value()
			}
			extension = blf.ExtensionFromTo(toValue)
		}
		if extension != "" {
			c.bus.Publish(events.NewBlfStateChanged(extension, string(state), remoteTarget))
		}
	case strings.Contains(eventHeader, "message-summary"):
		waiting, newCount, oldCount := blf.ParseMessageSummary(body)
		c.bus.Publish(events.NewMessageReceived(waiting, newCount, oldCount))
		c.bus.Publish(events.NewNotifyReceived(eventHeader, contentType, string(body)))
	default:
		c.bus.Publish(events.NewNotifyReceived(eventHeader, contentType, string(body)))
	}
}
