// Package recovery implements the Recovery Controller (spec.md §4.3): a
// debounced reconnect scheduler with jittered exponential backoff that
// drives session.Core's transport lifecycle through a narrow control
// surface (`stop`, `createUserAgent`, `register`) rather than reaching into
// its internals, the same narrow-surface discipline SPEC_FULL.md's
// component map calls out to keep recovery decoupled from session internals.
package recovery

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sebas/softphone/internal/connectivity"
	"github.com/sebas/softphone/internal/events"
	"github.com/sebas/softphone/internal/session"
)

const (
	initialDelay = 250 * time.Millisecond
	maxDelay     = 30 * time.Second
	jitterLow    = 0.8
	jitterHigh   = 1.2
)

// SessionController is the narrow surface the Recovery Controller drives
// (spec.md §2 "stop, createUserAgent, register"). session.Core satisfies it.
type SessionController interface {
	Stop() error
	CreateUserAgent(ctx context.Context) error
	Register(ctx context.Context) error
	TransportState() session.TransportState
	RegistrationState() session.RegistrationState
}

// Controller owns the auto-reconnect toggle and the pending reconnect timer.
type Controller struct {
	bus     *events.Bus
	log     *slog.Logger
	session SessionController

	mu                 sync.Mutex
	autoReconnect      bool
	attempt            int
	reconnectInFlight  bool
	pendingTimer       *time.Timer
	lastSnapshot       connectivity.Snapshot
	unsubscribe        []func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController enables auto-reconnect by default and wires itself to the
// bus (spec.md §9 "explicit construction and dependency injection").
func NewController(bus *events.Bus, session SessionController) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		bus:           bus,
		log:           slog.Default().With("component", "recovery"),
		session:       session,
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
	}
	c.unsubscribe = []func(){
		bus.Subscribe(events.ConnectivitySnapshotChanged, c.onConnectivityChanged),
		bus.Subscribe(events.TransportStateChanged, c.onTransportOrRegistrationChanged),
		bus.Subscribe(events.RegistrationStateChanged, c.onTransportOrRegistrationChanged),
	}
	return c
}

// Close cancels any pending timer and unsubscribes.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
	}
	c.mu.Unlock()
	for _, unsub := range c.unsubscribe {
		unsub()
	}
}

// Disconnect disables auto-reconnect and cancels any pending timer
// (spec.md §4.3 "A manual disconnect() disables auto-reconnect and cancels
// any pending timer").
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoReconnect = false
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
		c.pendingTimer = nil
	}
}

// Enable re-enables auto-reconnect (the counterpart the UI needs to undo a
// manual Disconnect).
func (c *Controller) Enable() {
	c.mu.Lock()
	c.autoReconnect = true
	c.mu.Unlock()
}

func (c *Controller) onConnectivityChanged(ev events.Event) {
	snap, ok := ev.(events.ConnectivitySnapshotChangedEvent)
	if !ok {
		return
	}
	c.mu.Lock()
	c.lastSnapshot = connectivity.Snapshot{
		BrowserOnline:  snap.BrowserOnline,
		InternetStatus: connectivity.InternetStatus(snap.InternetStatus),
		SIPReachable:   snap.SIPReachable,
	}
	c.mu.Unlock()
	c.maybeSchedule()
}

func (c *Controller) onTransportOrRegistrationChanged(events.Event) {
	c.maybeSchedule()
}

// eligible implements spec.md §4.3's eligibility predicate: autoReconnectEnabled
// && browserOnline && internetStatus=up && sipReachable=true && not already
// connected+registered && no reconnect in flight.
func (c *Controller) eligible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.autoReconnect || c.reconnectInFlight {
		return false
	}
	if !c.lastSnapshot.BrowserOnline {
		return false
	}
	if c.lastSnapshot.InternetStatus != connectivity.InternetUp {
		return false
	}
	if c.lastSnapshot.SIPReachable == nil || !*c.lastSnapshot.SIPReachable {
		return false
	}
	if c.session.TransportState() == session.TransportConnected && c.session.RegistrationState() == session.RegistrationRegistered {
		return false
	}
	return true
}

func (c *Controller) maybeSchedule() {
	if !c.eligible() {
		return
	}
	c.mu.Lock()
	if c.pendingTimer != nil {
		c.mu.Unlock()
		return
	}
	attempt := c.attempt + 1
	c.attempt = attempt
	delay := c.delayFor(attempt)
	timer := time.AfterFunc(delay, c.attemptReconnect)
	c.pendingTimer = timer
	c.mu.Unlock()

	c.bus.Publish(events.NewReconnectScheduled(attempt, delay.Milliseconds()))
}

// delayFor implements min(30s, 1s*2^(attempt-1)) * jitter[0.8,1.2], with the
// first attempt fixed at 250ms (spec.md §4.3 "Scheduling").
func (c *Controller) delayFor(attempt int) time.Duration {
	if attempt <= 1 {
		return initialDelay
	}
	base := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	if base > maxDelay {
		base = maxDelay
	}
	factor := jitterLow + rand.Float64()*(jitterHigh-jitterLow)
	return time.Duration(float64(base) * factor)
}

func (c *Controller) attemptReconnect() {
	c.mu.Lock()
	c.pendingTimer = nil
	c.reconnectInFlight = true
	attempt := c.attempt
	c.mu.Unlock()

	if err := c.session.Stop(); err != nil {
		c.log.Warn("stop before reconnect failed", "attempt", attempt, "error", err)
	}

	err := c.session.CreateUserAgent(c.ctx)
	success := err == nil
	if success {
		if regErr := c.session.Register(c.ctx); regErr != nil {
			c.log.Warn("register after reconnect failed", "attempt", attempt, "error", regErr)
			success = false
			err = regErr
		}
	}

	c.mu.Lock()
	c.reconnectInFlight = false
	if success {
		c.attempt = 0
	}
	c.mu.Unlock()

	c.bus.Publish(events.NewReconnectAttempt(attempt, success))

	if !success {
		c.log.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		c.maybeSchedule()
	}
}
