// Batch subscribe/backoff bookkeeping (spec.md §3 "BlfSubscription", §4.1
// "batchSubscribeBLF"), grounded on alephcom's Client.Subscribe loop (batch
// over extensions, tolerate individual 404s) generalized into a bus-reactive
// engine that never touches session.Core directly beyond the narrow
// Subscriber interface, avoiding the events<->session<->blf import cycle
// noted in SPEC_FULL.md §4 (the Line Manager's "pure subscriber" discipline
// applied here too).
package blf

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sebas/softphone/internal/events"
)

// defaultRetryInterval mirrors spec.md §3's "default 30s retry timer" for
// BLF subscriptions stuck in a failure state.
const defaultRetryInterval = 30 * time.Second

// batchInterPacketDelay is the "small delay between batches" spec.md §4.1
// requires to avoid server-side SUBSCRIBE bursts.
const batchInterPacketDelay = 150 * time.Millisecond

// Subscriber is the narrow wire surface the engine depends on; session.Core
// satisfies it.
type Subscriber interface {
	SubscribeBLF(ctx context.Context, extension, buddy string) error
	UnsubscribeBLF(ctx context.Context, extension string) error
}

// Subscription is the engine's bookkeeping record per extension
// (spec.md §3 "BlfSubscription").
type Subscription struct {
	Extension         string
	Buddy             string
	State             State
	RemoteTarget      string
	LastSuccess       time.Time
	ConsecutiveFailures int
}

// Engine owns every BlfSubscription; it is idempotent by extension and tears
// everything down on unregister/transportDisconnected (spec.md §3
// "lifetime tied to registration").
type Engine struct {
	sub Subscriber
	bus *events.Bus
	log *slog.Logger

	limiter *rate.Limiter

	mu   sync.Mutex
	subs map[string]*Subscription

	retryInterval time.Duration

	unsubscribeAll []func()
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewEngine wires itself to the bus immediately (spec.md §9 "explicit
// construction and dependency injection").
func NewEngine(bus *events.Bus, sub Subscriber) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		sub:           sub,
		bus:           bus,
		log:           slog.Default().With("component", "blf"),
		limiter:       rate.NewLimiter(rate.Every(batchInterPacketDelay), 1),
		subs:          make(map[string]*Subscription),
		retryInterval: defaultRetryInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
	e.unsubscribeAll = []func(){
		bus.Subscribe(events.BlfStateChanged, e.onBlfStateChanged),
		bus.Subscribe(events.BlfSubscriptionFailed, e.onBlfSubscriptionFailed),
		bus.Subscribe(events.Unregistered, e.onTornDown),
		bus.Subscribe(events.TransportDisconnected, e.onTornDown),
	}
	go e.retryLoop()
	return e
}

// Close stops the retry loop and bus subscriptions.
func (e *Engine) Close() {
	e.cancel()
	for _, unsub := range e.unsubscribeAll {
		unsub()
	}
}

// Subscribe is idempotent by extension (spec.md §4.1 "subscribeBLF").
func (e *Engine) Subscribe(ctx context.Context, extension, buddy string) error {
	e.mu.Lock()
	if _, exists := e.subs[extension]; exists {
		e.mu.Unlock()
		return nil
	}
	e.subs[extension] = &Subscription{Extension: extension, Buddy: buddy, State: StateUnknown}
	e.mu.Unlock()

	if err := e.sub.SubscribeBLF(ctx, extension, buddy); err != nil {
		e.recordFailure(extension, err.Error())
		return err
	}
	return nil
}

// Unsubscribe removes bookkeeping and sends Expires:0 (spec.md §4.1
// "unsubscribeBLF").
func (e *Engine) Unsubscribe(ctx context.Context, extension string) error {
	e.mu.Lock()
	delete(e.subs, extension)
	e.mu.Unlock()
	return e.sub.UnsubscribeBLF(ctx, extension)
}

// BatchSubscribe subscribes batchSize extensions at a time with a small
// inter-batch delay, the way alephcom's Subscribe loop iterates extensions
// but paced to avoid a SUBSCRIBE burst (spec.md §4.1 "batchSubscribeBLF").
func (e *Engine) BatchSubscribe(ctx context.Context, extensions []string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 5
	}
	var firstErr error
	for i := 0; i < len(extensions); i += batchSize {
		end := i + batchSize
		if end > len(extensions) {
			end = len(extensions)
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		for _, ext := range extensions[i:end] {
			if err := e.Subscribe(ctx, ext, ""); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Get returns a copy of the current bookkeeping for extension.
func (e *Engine) Get(extension string) (Subscription, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.subs[extension]
	if !ok {
		return Subscription{}, false
	}
	return *s, true
}

// All returns a snapshot of every tracked subscription.
func (e *Engine) All() []Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Subscription, 0, len(e.subs))
	for _, s := range e.subs {
		out = append(out, *s)
	}
	return out
}

func (e *Engine) onBlfStateChanged(ev events.Event) {
	changed, ok := ev.(events.BlfStateChangedEvent)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, tracked := e.subs[changed.Extension]
	if !tracked {
		return
	}
	s.State = State(changed.State)
	s.RemoteTarget = changed.RemoteTarget
	s.LastSuccess = time.Now()
	s.ConsecutiveFailures = 0
}

func (e *Engine) onBlfSubscriptionFailed(ev events.Event) {
	failed, ok := ev.(events.BlfSubscriptionFailedEvent)
	if !ok {
		return
	}
	e.mu.Lock()
	if s, tracked := e.subs[failed.Extension]; tracked {
		s.ConsecutiveFailures++
	}
	e.mu.Unlock()
}

// recordFailure logs and publishes blfSubscriptionFailed; the count itself is
// kept by onBlfSubscriptionFailed, so each failure is counted once.
func (e *Engine) recordFailure(extension, detail string) {
	e.log.Warn("blf subscribe failed", "extension", extension, "detail", detail)
	e.bus.Publish(events.NewBlfSubscriptionFailed(extension, detail))
}

// onTornDown clears every tracked subscription (spec.md §3 "lifetime tied
// to registration; all are torn down on unregister or transport disconnect").
func (e *Engine) onTornDown(events.Event) {
	e.mu.Lock()
	extensions := make([]string, 0, len(e.subs))
	for ext := range e.subs {
		extensions = append(extensions, ext)
	}
	e.subs = make(map[string]*Subscription)
	e.mu.Unlock()
	for _, ext := range extensions {
		e.bus.Publish(events.NewBlfUnsubscribed(ext))
	}
}

// retryLoop re-attempts subscriptions stuck with ConsecutiveFailures > 0
// every retryInterval (spec.md §3 "default 30s retry timer").
func (e *Engine) retryLoop() {
	ticker := time.NewTicker(e.retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.retryFailed()
		}
	}
}

// retryFailed re-attempts every failed subscription through the same
// rate.Limiter BatchSubscribe uses, waiting on it before each SUBSCRIBE, so a
// retry round is paced one SUBSCRIBE per limiter interval rather than firing
// every SUBSCRIBE at once.
func (e *Engine) retryFailed() {
	e.mu.Lock()
	var retry []Subscription
	for _, s := range e.subs {
		if s.ConsecutiveFailures > 0 {
			retry = append(retry, *s)
		}
	}
	e.mu.Unlock()
	for _, s := range retry {
		if err := e.limiter.Wait(e.ctx); err != nil {
			return
		}
		if err := e.sub.SubscribeBLF(e.ctx, s.Extension, s.Buddy); err != nil {
			e.recordFailure(s.Extension, err.Error())
		}
	}
}
