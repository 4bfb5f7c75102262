// Command softphone is the process entrypoint: it loads configuration,
// builds the event bus and every component, wires the Recovery Controller's
// narrow control surface to the session core, starts the connectivity
// monitor, and blocks on signal (spec.md §4 Component Map).
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebas/softphone/internal/adapters"
	"github.com/sebas/softphone/internal/audio"
	"github.com/sebas/softphone/internal/blf"
	"github.com/sebas/softphone/internal/config"
	"github.com/sebas/softphone/internal/connectivity"
	"github.com/sebas/softphone/internal/events"
	"github.com/sebas/softphone/internal/line"
	"github.com/sebas/softphone/internal/logger"
	"github.com/sebas/softphone/internal/recovery"
	"github.com/sebas/softphone/internal/session"
	"github.com/sebas/softphone/internal/tone"
)

func main() {
	cfg := config.Load()

	logger.Init(os.Stdout)
	log := logger.WithComponent(slog.Default(), "main")

	bus := events.NewBus()
	defer bus.Close()

	core := session.NewCore(bus)
	if err := core.Configure(cfg); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	lineMgr := line.NewManager(bus)
	defer lineMgr.Close()

	blfEngine := blf.NewEngine(bus, core)
	defer blfEngine.Close()

	monitor := connectivity.NewMonitor(bus, sipHost(cfg.ServerURL), nil)
	if cfg.ServerURL != "" {
		monitor.Start()
	}
	defer monitor.Stop()

	recoveryCtrl := recovery.NewController(bus, core)
	defer recoveryCtrl.Close()

	prefs := adapters.NewMemoryPreferences()

	tonePlayer := tone.NewPlayer()
	unsubTone := wireTonePlayer(bus, core, tonePlayer, prefs.Get("AppLanguage", "en-US"))
	defer unsubTone()

	ringtone := prefs.Get("BusylightRingSound", "classic.wav")
	audioSvc := audio.NewService(bus, noopAudioSink{}, ringtone, "")
	audioSvc.SetOtherSessionActiveFunc(lineMgr.AnyOtherActiveOrHold)
	defer audioSvc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ServerURL != "" {
		if err := core.CreateUserAgent(ctx); err != nil {
			log.Error("failed to start user agent", "error", err)
			os.Exit(1)
		}
		if err := core.Register(ctx); err != nil {
			log.Warn("initial registration failed, recovery controller will retry", "error", err)
		}
	} else {
		log.Warn("no sip-server configured, running idle")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig)

	if err := core.Stop(); err != nil {
		log.Error("error stopping session core", "error", err)
	}
}

// sipHost extracts the bare host from a ws(s):// SIP server URL for the
// connectivity monitor's SIP-reachability probe; an unparsable or empty
// value falls back to the raw string so the monitor still has something to
// dial.
func sipHost(serverURL string) string {
	if serverURL == "" {
		return ""
	}
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return serverURL
	}
	return u.Host
}

// noopAudioSink is wired when no browser audio element is available; a
// browser adapter replaces this with one backed by an HTML audio element.
type noopAudioSink struct{}

func (noopAudioSink) Play(ringtone string, loop bool) error                { return nil }
func (noopAudioSink) Stop() error                                          { return nil }
func (noopAudioSink) SetSinkID(deviceID string) error                      { return nil }
func (noopAudioSink) PlayTone(frequencyHz float64, duration time.Duration) error { return nil }

// wireTonePlayer subscribes the Call-Progress Tone Engine to session-state
// transitions: ringback while an outgoing call is calling, busy on a
// terminated-with-busy session, cleared on every other resolution
// (spec.md §4.4 describes the tones; the bus is what drives them here since
// the tone engine itself has no session-lifecycle awareness of its own).
func wireTonePlayer(bus *events.Bus, core *session.Core, player *tone.Player, locale string) func() {
	unsubState := bus.Subscribe(events.SessionStateChanged, func(ev events.Event) {
		sc, ok := ev.(events.SessionStateChangedEvent)
		if !ok {
			return
		}
		switch sc.State {
		case session.StateCalling:
			if send, err := core.RTPSender(sc.SessionID); err == nil {
				player.PlayRingback(sc.SessionID, locale, send)
			}
		case session.StateEstablished:
			player.Stop(sc.SessionID)
		}
	})
	unsubTerminated := bus.Subscribe(events.SessionTerminated, func(ev events.Event) {
		st, ok := ev.(events.SessionTerminatedEvent)
		if !ok {
			return
		}
		if st.Reason == "busy" {
			if send, err := core.RTPSender(st.SessionID); err == nil {
				player.PlayBusy(st.SessionID, locale, send, 0)
				return
			}
		}
		player.Stop(st.SessionID)
	})
	return func() {
		unsubState()
		unsubTerminated()
	}
}
