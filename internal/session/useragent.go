// Registration with digest-auth retry, grounded directly on alephcom's
// Client.Register (401 challenge/response round trip the original browser
// SIP.js stack hides inside the library; our from-scratch UAC must do it
// explicitly, per SPEC_FULL.md §3).
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"

	"github.com/sebas/softphone/internal/config"
	"github.com/sebas/softphone/internal/corekit/errkind"
	"github.com/sebas/softphone/internal/events"
)

// Register is idempotent against registering/registered
// (spec.md §4.1 "register()"). Register TTL defaults to 300s via
// cfg.RegisterExpires.
func (c *Core) Register(ctx context.Context) error {
	if c.RegistrationState() == RegistrationRegistering || c.RegistrationState() == RegistrationRegistered {
		return nil
	}
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		err := errkind.Wrap(errkind.TransportStartFailed, "no active transport")
		c.publishRegistrationFailed(err)
		return err
	}

	c.setRegistrationState(RegistrationRegistering)

	cfg := c.Config()
	recipient := sip.Uri{}
	uriStr := fmt.Sprintf("sip:%s@%s", cfg.Username, cfg.Domain)
	if err := sip.ParseUri(uriStr, &recipient); err != nil {
		werr := errkind.Wrap(errkind.UriBuildFailed, err.Error())
		c.publishRegistrationFailed(werr)
		return werr
	}

	req := sip.NewRequest(sip.REGISTER, recipient)
	req.AppendHeader(sip.NewHeader("Contact", c.contactHeader()))
	req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", int(cfg.RegisterExpires.Seconds()))))

	res, err := c.transactAuthenticated(ctx, client, req, recipient, cfg)
	if err != nil {
		werr := errkind.Wrap(errkind.TransportStartFailed, err.Error())
		c.publishRegistrationFailed(werr)
		return werr
	}
	if res.StatusCode != 200 && res.StatusCode != 202 {
		werr := errkind.Wrap(errkind.NotRegistered, fmt.Sprintf("register failed: %d", res.StatusCode))
		c.publishRegistrationFailed(werr)
		return werr
	}

	c.setRegistrationState(RegistrationRegistered)
	c.bus.Publish(events.NewRegistered(int(cfg.RegisterExpires.Seconds())))
	return nil
}

// Unregister terminates all sessions, sends Expires: 0, then publishes
// unregistered (spec.md §4.1 "unregister()"). BLF subscriptions are dropped
// by the BLF engine when it observes that event, so they are torn down after
// the REGISTER, not before it.
func (c *Core) Unregister(ctx context.Context) error {
	if c.RegistrationState() == RegistrationUnregistered {
		return nil
	}

	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	client := c.client
	c.mu.Unlock()
	for _, s := range sessions {
		_ = c.terminateSession(s, "Unregistering")
	}

	if client != nil {
		cfg := c.Config()
		recipient := sip.Uri{}
		uriStr := fmt.Sprintf("sip:%s@%s", cfg.Username, cfg.Domain)
		if err := sip.ParseUri(uriStr, &recipient); err == nil {
			req := sip.NewRequest(sip.REGISTER, recipient)
			req.AppendHeader(sip.NewHeader("Contact", c.contactHeader()))
			req.AppendHeader(sip.NewHeader("Expires", "0"))
			_, _ = c.transactAuthenticated(ctx, client, req, recipient, cfg)
		}
	}

	c.setRegistrationState(RegistrationUnregistered)
	c.bus.Publish(events.NewUnregistered())
	return nil
}

func (c *Core) publishRegistrationFailed(err error) {
	c.setRegistrationState(RegistrationUnregistered)
	kind := errkind.InvalidConfig
	if k := errors.Unwrap(err); k != nil {
		kind = k
	}
	c.bus.Publish(events.NewRegistrationFailed(kind.Error(), err.Error()))
}

// transactAuthenticated sends req and, on a 401 challenge, retries once with
// digest credentials, mirroring alephcom's Register/subscribeOne exactly.
func (c *Core) transactAuthenticated(ctx context.Context, client *sipgo.Client, req *sip.Request, recipient sip.Uri, cfg config.SipConfig) (*sip.Response, error) {
	tx, err := client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer tx.Terminate()

	res, err := waitResponse(tx)
	if err != nil {
		return nil, err
	}

	if res.StatusCode == 401 {
		wwwAuth := res.GetHeader("WWW-Authenticate")
		if wwwAuth == nil {
			return nil, fmt.Errorf("401 without WWW-Authenticate")
		}
		chal, err := digest.ParseChallenge(wwwAuth.Value())
		if err != nil {
			return nil, err
		}
		cred, err := digest.Digest(chal, digest.Options{
			Method:   req.Method.String(),
			URI:      recipient.Host,
			Username: cfg.Username,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, err
		}
		newReq := req.Clone()
		newReq.RemoveHeader("Via")
		newReq.AppendHeader(sip.NewHeader("Authorization", cred.String()))
		tx2, err := client.TransactionRequest(ctx, newReq)
		if err != nil {
			return nil, err
		}
		defer tx2.Terminate()
		res, err = waitResponse(tx2)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func waitResponse(tx sip.ClientTransaction) (*sip.Response, error) {
	select {
	case <-tx.Done():
		return nil, fmt.Errorf("transaction died")
	case res := <-tx.Responses():
		return res, nil
	}
}
