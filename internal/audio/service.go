// Package audio implements the Ringtone/Audio Service (spec.md §4.5): it
// decides which cadence to play on incoming calls and drives a Sink the way
// the browser core drives an HTML audio element, generalized here to a
// pluggable Sink so the core stays headless (spec.md's adapter boundary:
// "Out of scope... these are straightforward adapters over the core").
package audio

import (
	"sync"
	"time"

	"github.com/sebas/softphone/internal/events"
)

// alertReplayInterval re-plays the alert clip even if the sink's own "ended"
// signal fires late (spec.md §4.5 "additionally start a 3s interval that
// re-plays the clip to enforce the cadence").
var alertReplayInterval = 3 * time.Second

// Sink is the output device abstraction the core drives; a UI adapter wires
// this to an HTML audio element, an adapter test wires it to a recorder.
type Sink interface {
	Play(ringtone string, loop bool) error
	Stop() error
	// SetSinkID routes output to a specific device when supported
	// (spec.md §4.5 "setSinkId when supported for ringer device").
	SetSinkID(deviceID string) error
	// PlayTone sounds a short synthesized beep at frequencyHz for duration,
	// the way a browser adapter would drive a WebAudio oscillator
	// (spec.md §4.2 call-waiting beep).
	PlayTone(frequencyHz float64, duration time.Duration) error
}

const (
	callWaitingBeepFreq = 440.0
	callWaitingBeepDur  = 200 * time.Millisecond
	callWaitingGap      = 400 * time.Millisecond
)

// Service owns the ringtone/alert-tone cadence for incoming calls.
type Service struct {
	bus  *events.Bus
	sink Sink

	mu              sync.Mutex
	ringtoneName    string
	ringerDeviceID  string
	playing         bool
	replayStop      chan struct{}
	replayDone      chan struct{}

	// otherSessionActive reports whether useAlertTone should apply for a
	// given line (spec.md §4.5 "useAlertTone=true (any other session is
	// active)"); cmd/softphone wires this to the Line Manager's
	// AnyOtherActiveOrHold. Defaults to "never" so a bare Service always
	// loops the ringtone.
	otherSessionActive func(line int) bool

	unsubscribe []func()
}

// NewService wires itself to the bus; ringtoneName/ringerDeviceID come from
// the Preferences adapter (spec.md §6 "selected ringtone filename").
func NewService(bus *events.Bus, sink Sink, ringtoneName, ringerDeviceID string) *Service {
	s := &Service{
		bus:                bus,
		sink:               sink,
		ringtoneName:       ringtoneName,
		ringerDeviceID:     ringerDeviceID,
		otherSessionActive: func(int) bool { return false },
	}
	if ringerDeviceID != "" {
		_ = sink.SetSinkID(ringerDeviceID)
	}
	s.unsubscribe = []func(){
		bus.Subscribe(events.IncomingCall, s.onIncomingCall),
		bus.Subscribe(events.SessionAnswered, s.onSessionResolved),
		bus.Subscribe(events.SessionTerminated, s.onSessionResolved),
		bus.Subscribe(events.LineRingingWhileBusy, s.onLineRingingWhileBusy),
	}
	return s
}

// Close stops playback and unsubscribes from the bus.
func (s *Service) Close() {
	s.Stop()
	for _, unsub := range s.unsubscribe {
		unsub()
	}
}

// SetRingtone overrides the looping ringtone name.
func (s *Service) SetRingtone(name string) {
	s.mu.Lock()
	s.ringtoneName = name
	s.mu.Unlock()
}

// SetOtherSessionActiveFunc wires the Line Manager's AnyOtherActiveOrHold (or
// an equivalent) so useAlertTone can be decided per spec.md §4.5.
func (s *Service) SetOtherSessionActiveFunc(fn func(line int) bool) {
	s.mu.Lock()
	s.otherSessionActive = fn
	s.mu.Unlock()
}

func (s *Service) onIncomingCall(ev events.Event) {
	incoming, ok := ev.(events.IncomingCallEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	fn := s.otherSessionActive
	s.mu.Unlock()
	s.Start(fn(incoming.Session.Line))
}

// Start begins playback: useAlertTone=true plays a short non-looping clip
// with a 3s re-play enforcement interval; false loops the ringtone
// (spec.md §4.5).
func (s *Service) Start(useAlertTone bool) {
	s.Stop()

	s.mu.Lock()
	name := s.ringtoneName
	s.playing = true
	s.mu.Unlock()

	if !useAlertTone {
		_ = s.sink.Play(name, true)
		return
	}

	_ = s.sink.Play(name, false)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.replayStop = stop
	s.replayDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(alertReplayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = s.sink.Play(name, false)
			}
		}
	}()
}

// Stop clears both the sink and the re-play interval
// (spec.md §4.5 "Stop clears both the element and the interval").
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = false
	stop := s.replayStop
	done := s.replayDone
	s.replayStop, s.replayDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	_ = s.sink.Stop()
}

func (s *Service) onSessionResolved(events.Event) {
	s.Stop()
}

// onLineRingingWhileBusy plays the call-waiting beep (spec.md §4.2: two
// 200ms 440Hz beeps separated by a 400ms gap) without touching the ringtone
// cadence Start/Stop already manage.
func (s *Service) onLineRingingWhileBusy(ev events.Event) {
	if _, ok := ev.(events.LineRingingWhileBusyEvent); !ok {
		return
	}
	go func() {
		_ = s.sink.PlayTone(callWaitingBeepFreq, callWaitingBeepDur)
		time.Sleep(callWaitingBeepDur + callWaitingGap)
		_ = s.sink.PlayTone(callWaitingBeepFreq, callWaitingBeepDur)
	}()
}
