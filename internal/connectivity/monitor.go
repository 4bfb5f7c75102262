// Package connectivity implements the Connectivity Monitor (spec.md §4.3):
// a probe-driven classifier of browser/internet/SIP-server reachability.
// The SIP reachability probe is grounded directly on
// hervehildenbrand-bgp-radar's rislive client (pkg/rislive/client.go):
// gorilla/websocket.Dialer.Dial with a bounded handshake timeout, torn down
// immediately on success — generalized here to the "sip" subprotocol probe
// spec.md §4.3 describes instead of that client's BGP stream. The internet
// probe fan-out uses golang.org/x/sync/errgroup the way a parallel-fetch
// probe set wants, since no example repo does HTTP probing directly.
package connectivity

import (
	"context"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sebas/softphone/internal/corekit/errkind"
	"github.com/sebas/softphone/internal/events"
)

// InternetStatus mirrors ConnectivitySnapshot.internetStatus (spec.md §3).
type InternetStatus string

const (
	InternetUnknown InternetStatus = "unknown"
	InternetUp      InternetStatus = "up"
	InternetDown    InternetStatus = "down"
)

const (
	fastInterval = 4 * time.Second
	slowInterval = 15 * time.Second
	jitterFrac   = 0.2

	probeTimeout     = 4 * time.Second
	sipProbeTimeout  = 4500 * time.Millisecond

	defaultRequiredConsecutive = 2
)

// Snapshot is the monitor's current reachability picture (spec.md §3
// "ConnectivitySnapshot").
type Snapshot struct {
	BrowserOnline        bool
	InternetStatus       InternetStatus
	SIPReachable         *bool
	NetworkPathSignature string

	LastInternetTransition time.Time
	LastSIPTransition       time.Time
}

// ProbeEndpoint is one well-known static resource the internet probe fetches
// with cache-busting, mirroring spec.md §4.3's "<img> + fetch" probe set
// generalized to plain HTTP HEAD/GET probes for a headless core.
type ProbeEndpoint struct {
	Name string
	URL  string
}

// Monitor owns the snapshot and its probe timers. It starts once the SIP
// server URL is known (spec.md §4.3 "starts when the SIP server URL is
// known").
type Monitor struct {
	bus *events.Bus
	log *slog.Logger

	sipServerHost string
	endpoints     []ProbeEndpoint
	httpClient    *http.Client

	requiredConsecutiveSuccesses int
	requiredConsecutiveFailures  int

	mu               sync.Mutex
	snapshot         Snapshot
	consecutiveUp    int
	consecutiveDown  int
	immediateCh      chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor constructs a Monitor for sipServerHost (host:port form, used for
// the raw "sip" subprotocol probe). Call Start to begin probing.
func NewMonitor(bus *events.Bus, sipServerHost string, endpoints []ProbeEndpoint) *Monitor {
	if len(endpoints) == 0 {
		endpoints = defaultEndpoints()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		bus:                          bus,
		log:                          slog.Default().With("component", "connectivity"),
		sipServerHost:                sipServerHost,
		endpoints:                    endpoints,
		httpClient:                   &http.Client{Timeout: probeTimeout},
		requiredConsecutiveSuccesses: defaultRequiredConsecutive,
		requiredConsecutiveFailures:  defaultRequiredConsecutive,
		snapshot:                     Snapshot{BrowserOnline: true, InternetStatus: InternetUnknown},
		immediateCh:                  make(chan string, 8),
		ctx:                          ctx,
		cancel:                       cancel,
	}
}

func defaultEndpoints() []ProbeEndpoint {
	return []ProbeEndpoint{
		{Name: "google-gen204", URL: "https://www.google.com/generate_204"},
		{Name: "cloudflare-cdn-cgi-trace", URL: "https://www.cloudflare.com/cdn-cgi/trace"},
		{Name: "msftconnecttest", URL: "http://www.msftconnecttest.com/connecttest.txt"},
	}
}

// Start launches the jittered probe timer loop in the background.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop halts probing.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Snapshot returns a copy of the current snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// RequestImmediateCheck triggers an out-of-band probe cycle
// (spec.md §4.3 "requestImmediateCheck(reason)").
func (m *Monitor) RequestImmediateCheck(reason string) {
	select {
	case m.immediateCh <- reason:
	default:
	}
}

// NotifyBrowserOnline updates BrowserOnline and short-circuits to down when
// offline (spec.md §4.3 "offline short-circuits to internetStatus=down,
// sipReachable=false").
func (m *Monitor) NotifyBrowserOnline(online bool) {
	m.mu.Lock()
	m.snapshot.BrowserOnline = online
	m.mu.Unlock()
	if !online {
		falseVal := false
		m.applyResult(InternetDown, &falseVal)
		return
	}
	m.RequestImmediateCheck("browser online")
}

// NotifyNetworkPathChanged refreshes the path fingerprint and re-checks
// (spec.md §4.3 "NetworkInformation change").
func (m *Monitor) NotifyNetworkPathChanged(signature string) {
	m.mu.Lock()
	m.snapshot.NetworkPathSignature = signature
	m.mu.Unlock()
	m.RequestImmediateCheck("network path changed")
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	m.runProbeCycle("initial")
	for {
		interval := m.nextInterval()
		timer := time.NewTimer(jitter(interval))
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case reason := <-m.immediateCh:
			timer.Stop()
			m.runProbeCycle(reason)
		case <-timer.C:
			m.runProbeCycle("timer")
		}
	}
}

func (m *Monitor) nextInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot.InternetStatus == InternetUp {
		return slowInterval
	}
	return fastInterval
}

func jitter(base time.Duration) time.Duration {
	delta := float64(base) * jitterFrac
	offset := (rand.Float64()*2 - 1) * delta
	return base + time.Duration(offset)
}

// runProbeCycle fans the internet probe set out in parallel, classifies the
// result, then probes SIP reachability only if internet is up
// (spec.md §4.3 "SIP probe: ... Only run when internet is up").
func (m *Monitor) runProbeCycle(reason string) {
	m.mu.Lock()
	browserOnline := m.snapshot.BrowserOnline
	m.mu.Unlock()
	if !browserOnline {
		return
	}

	successes := m.probeInternet()
	required := maxInt(2, ceilHalf(len(m.endpoints)))
	internetUpThisCycle := successes >= required

	var sipReachable *bool
	if internetUpThisCycle {
		reachable := m.probeSIP()
		sipReachable = &reachable
	}

	status := m.classify(internetUpThisCycle)
	m.applyResult(status, sipReachable)
	m.log.Debug("probe cycle complete", "reason", reason, "successes", successes, "status", status)
}

// classify applies the hysteresis rule: requiredConsecutiveSuccesses to flip
// down->up, requiredConsecutiveFailures to flip up->down (spec.md §4.3).
func (m *Monitor) classify(upThisCycle bool) InternetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if upThisCycle {
		m.consecutiveUp++
		m.consecutiveDown = 0
	} else {
		m.consecutiveDown++
		m.consecutiveUp = 0
	}

	switch m.snapshot.InternetStatus {
	case InternetUp:
		if m.consecutiveDown >= m.requiredConsecutiveFailures {
			return InternetDown
		}
		return InternetUp
	default:
		if m.consecutiveUp >= m.requiredConsecutiveSuccesses {
			return InternetUp
		}
		if upThisCycle {
			return m.snapshot.InternetStatus
		}
		return InternetDown
	}
}

func (m *Monitor) applyResult(status InternetStatus, sipReachable *bool) {
	m.mu.Lock()
	changed := m.snapshot.InternetStatus != status
	sipChanged := sipReachable != nil && (m.snapshot.SIPReachable == nil || *m.snapshot.SIPReachable != *sipReachable)
	if sipChanged {
		changed = true
	}
	now := time.Now()
	if m.snapshot.InternetStatus != status {
		m.snapshot.LastInternetTransition = now
	}
	if sipChanged {
		m.snapshot.LastSIPTransition = now
	}
	m.snapshot.InternetStatus = status
	m.snapshot.SIPReachable = sipReachable
	snap := m.snapshot
	m.mu.Unlock()

	if changed {
		m.bus.Publish(events.NewConnectivitySnapshotChanged(snap.BrowserOnline, string(snap.InternetStatus), snap.SIPReachable, snap.NetworkPathSignature))
	}
}

// probeInternet fires every endpoint in parallel with a bounded timeout and
// counts successes (spec.md §4.3 "Probe procedure for internet").
func (m *Monitor) probeInternet() int {
	g, ctx := errgroup.WithContext(context.Background())
	var mu sync.Mutex
	successes := 0
	for _, ep := range m.endpoints {
		ep := ep
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			ok := m.fetchOK(reqCtx, ep.URL)
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return successes
}

func (m *Monitor) fetchOK(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			m.publishProbeTimeout("internet", url)
		}
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// publishProbeTimeout surfaces errkind.ProbeTimeout when a probe's own
// bounded context expires, rather than on every ordinary connection refusal
// (spec.md §7 "probes distinguish a timeout from a clean failure").
func (m *Monitor) publishProbeTimeout(probe, target string) {
	m.bus.Publish(events.NewOperationFailed(probe+"Probe", errkind.ProbeTimeout.Error(), target))
}

// probeSIP opens a WebSocket to the SIP server with the "sip" subprotocol,
// mirroring rislive.Client's dial pattern but torn down on success rather
// than kept open (spec.md §4.3 "close(1000) immediately on success").
func (m *Monitor) probeSIP() bool {
	if m.sipServerHost == "" {
		return false
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: sipProbeTimeout,
		Subprotocols:     []string{"sip"},
	}
	url := "wss://" + m.sipServerHost + "/ws"
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			m.publishProbeTimeout("sip", url)
		}
		return false
	}
	defer conn.Close()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func ceilHalf(n int) int {
	return (n + 1) / 2
}
