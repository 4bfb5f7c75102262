package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/google/uuid"

	"github.com/sebas/softphone/internal/config"
	"github.com/sebas/softphone/internal/corekit/errkind"
	"github.com/sebas/softphone/internal/corekit/ttlcache"
	"github.com/sebas/softphone/internal/events"
)

// Retention window for terminated sessions, grounded on
// dialog.Manager's TerminatedDialogTTL (32s there; kept identical here since
// the same "give late events a little runway" rationale applies).
const terminatedSessionTTL = 32 * time.Second
const terminatedCleanupInterval = 10 * time.Second

// TransportState/RegistrationState are the two monotonically-published state
// machines owned exclusively by the core (spec.md §3 invariants).
type TransportState string

const (
	TransportDisconnected TransportState = "disconnected"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
)

type RegistrationState string

const (
	RegistrationUnregistered RegistrationState = "unregistered"
	RegistrationRegistering  RegistrationState = "registering"
	RegistrationRegistered   RegistrationState = "registered"
)

// Stats mirrors the counters S1 checks: totalCalls, outgoingCalls, missedCalls.
type Stats struct {
	TotalCalls    int
	OutgoingCalls int
	IncomingCalls int
	MissedCalls   int
}

// Core owns the single user agent, the single registration, and every call
// and subscription dialog (spec.md §4.1). It is the sole writer of Session
// state and of the three-line occupancy table; the Line Manager only reads
// through events, never Core's internals (spec.md §9 "cyclic reference...
// broken by making the Line Manager a pure subscriber").
type Core struct {
	bus *events.Bus
	log *slog.Logger

	cfgMu sync.RWMutex
	cfg   config.SipConfig

	stateMu           sync.RWMutex
	transportState    TransportState
	registrationState RegistrationState

	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	mu       sync.Mutex
	lines    [3]*Session
	sessions map[string]*Session
	stats    Stats
	seq      uint64

	recent *ttlcache.Store[string, *Session]

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCore constructs a Core with no transport yet running. Every component
// receives the bus at construction (spec.md §9 "explicit construction and
// dependency injection"); there is no global lookup.
func NewCore(bus *events.Bus) *Core {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Core{
		bus:      bus,
		log:      slog.Default().With("component", "session"),
		cfg:      config.Defaults(),
		sessions: make(map[string]*Session),
		recent:   ttlcache.New[string, *Session](terminatedCleanupInterval),
		ctx:      ctx,
		cancel:   cancel,
	}
	return c
}

// Configure merges partial into the current config without restarting
// anything (spec.md §4.1 "configure(partial)").
func (c *Core) Configure(partial config.SipConfig) error {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.cfg = c.cfg.Merge(partial)
	return nil
}

// Config returns a copy of the current config.
func (c *Core) Config() config.SipConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// transportURL builds "wss://host:8089/ws" when cfg.ServerURL is a bare host,
// or returns the literal URL otherwise, per spec.md §4.1 createUserAgent.
func transportURL(raw string) (network, addr string, err error) {
	if raw == "" {
		return "", "", errkind.Wrap(errkind.UriBuildFailed, "empty server URL")
	}
	if !strings.Contains(raw, "://") {
		return "wss", fmt.Sprintf("%s:8089", raw), nil
	}
	u, parseErr := url.Parse(raw)
	if parseErr != nil {
		return "", "", errkind.Wrap(errkind.UriBuildFailed, "parse server url: "+parseErr.Error())
	}
	switch u.Scheme {
	case "ws", "wss":
		host := u.Host
		if host == "" {
			return "", "", errkind.Wrap(errkind.UriBuildFailed, "server url missing host")
		}
		return u.Scheme, host, nil
	default:
		return "", "", errkind.Wrap(errkind.UriBuildFailed, "unsupported scheme: "+u.Scheme)
	}
}

// CreateUserAgent validates the config, then constructs the transport and
// starts it. ICE servers come from the config, whose defaults hold the public
// STUN server. The user agent is named after cfg.EffectiveContactName();
// cfg.EffectiveDisplayName() is not called, so no "{username}-365Connect"
// display name is applied. On transport open it schedules an auto-register
// after a short delay.
func (c *Core) CreateUserAgent(ctx context.Context) error {
	cfg := c.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	network, addr, err := transportURL(cfg.ServerURL)
	if err != nil {
		c.publishOperationFailed("createUserAgent", errkind.UriBuildFailed, err.Error())
		return err
	}

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(cfg.EffectiveContactName()),
		sipgo.WithUserAgentHostname(cfg.Domain),
	)
	if err != nil {
		c.publishOperationFailed("createUserAgent", errkind.TransportStartFailed, err.Error())
		return errkind.Wrap(errkind.TransportStartFailed, err.Error())
	}

	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		c.publishOperationFailed("createUserAgent", errkind.TransportStartFailed, err.Error())
		return errkind.Wrap(errkind.TransportStartFailed, err.Error())
	}

	server, err := sipgo.NewServer(ua)
	if err != nil {
		client.Close()
		ua.Close()
		c.publishOperationFailed("createUserAgent", errkind.TransportStartFailed, err.Error())
		return errkind.Wrap(errkind.TransportStartFailed, err.Error())
	}

	c.mu.Lock()
	c.ua, c.client, c.server = ua, client, server
	c.mu.Unlock()

	c.installHandlers()
	c.setTransportState(TransportConnecting)

	go func() {
		serveErr := server.ListenAndServe(c.ctx, network, addr)
		if serveErr != nil && c.ctx.Err() == nil {
			c.log.Error("transport serve ended", "error", serveErr)
			c.setTransportState(TransportDisconnected)
			c.setRegistrationState(RegistrationUnregistered)
			c.bus.Publish(events.NewTransportError(serveErr))
			c.bus.Publish(events.NewTransportDisconnected(serveErr.Error()))
		}
	}()

	// The transport does not hand back an explicit "open" callback in this
	// stack, so CreateUserAgent treats a clean ListenAndServe launch as open
	// and schedules auto-register after a short settle delay, the way the
	// source's transport-open handler does.
	c.setTransportState(TransportConnected)
	c.bus.Publish(events.NewTransportConnected())

	go func() {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-c.ctx.Done():
			return
		}
		if err := c.Register(c.ctx); err != nil {
			c.log.Warn("auto-register failed", "error", err)
		}
	}()

	return nil
}

func (c *Core) setTransportState(s TransportState) {
	c.stateMu.Lock()
	c.transportState = s
	c.stateMu.Unlock()
	c.bus.Publish(events.NewTransportStateChanged(string(s)))
}

// TransportState returns the current transport state.
func (c *Core) TransportState() TransportState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.transportState
}

func (c *Core) setRegistrationState(s RegistrationState) {
	c.stateMu.Lock()
	c.registrationState = s
	c.stateMu.Unlock()
	c.bus.Publish(events.NewRegistrationStateChanged(string(s)))
}

// RegistrationState returns the current registration state.
func (c *Core) RegistrationState() RegistrationState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.registrationState
}

// Stop tears down every session, every BLF subscription (via
// transportDisconnected, observed by the BLF engine), and the transport
// itself. This is one third of the Recovery Controller's narrow control
// surface (spec.md §2 "stop, createUserAgent, register").
func (c *Core) Stop() error {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		_ = c.terminateSession(s, "Transport stopped")
	}

	c.setRegistrationState(RegistrationUnregistered)
	c.bus.Publish(events.NewUnregistered())

	c.mu.Lock()
	server, client, ua := c.server, c.client, c.ua
	c.server, c.client, c.ua = nil, nil, nil
	c.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if ua != nil {
		ua.Close()
	}
	_ = server

	c.setTransportState(TransportDisconnected)
	c.bus.Publish(events.NewTransportDisconnected("stopped"))
	return nil
}

func (c *Core) publishOperationFailed(op string, kind error, detail string) {
	c.bus.Publish(events.NewOperationFailed(op, kind.Error(), detail))
}

// allocateLine returns the lowest-numbered idle line (1-3) and reserves it
// for session, or 0 if none is free.
func (c *Core) allocateLine(s *Session) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < 3; i++ {
		if c.lines[i] == nil {
			c.lines[i] = s
			s.Line = i + 1
			c.sessions[s.ID] = s
			return i + 1
		}
	}
	return 0
}

func (c *Core) releaseLine(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Line >= 1 && s.Line <= 3 && c.lines[s.Line-1] == s {
		c.lines[s.Line-1] = nil
	}
	delete(c.sessions, s.ID)
	c.recent.Set(s.ID, s, terminatedSessionTTL)
}

// nextSessionID produces a stable id: a monotonic counter plus wallclock,
// per spec.md §3 "Session" ("stable session id (monotonic counter + wallclock)").
func (c *Core) nextSessionID() string {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

// GetSession looks up a live session by id, falling back to the recently
// terminated-session cache for callers (CallHistory lookups, a late transfer
// status poll) that still need a just-ended session's final view.
func (c *Core) GetSession(id string) (*Session, bool) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	c.mu.Unlock()
	if ok {
		return s, true
	}
	return c.recent.Get(id)
}

// firstActiveSession returns the session on the lowest-numbered occupied
// line, whatever its state, used by hangupCall/holdCall et al. when no
// sessionId is supplied.
func (c *Core) firstActiveSession() (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < 3; i++ {
		if c.lines[i] != nil {
			return c.lines[i], true
		}
	}
	return nil, false
}

func newCallID() string {
	return uuid.New().String()
}

func newTag() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// Stats returns a copy of the running call counters.
func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
