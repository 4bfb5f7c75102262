package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/sebas/softphone/internal/events"
)

type recordingSink struct {
	mu        sync.Mutex
	plays     int
	lastLoop  bool
	stops     int
	sinkID    string
	tonePlays int
	lastFreq  float64
}

func (r *recordingSink) Play(ringtone string, loop bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays++
	r.lastLoop = loop
	return nil
}

func (r *recordingSink) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *recordingSink) SetSinkID(deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinkID = deviceID
	return nil
}

func (r *recordingSink) PlayTone(frequencyHz float64, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tonePlays++
	r.lastFreq = frequencyHz
	return nil
}

func (r *recordingSink) snapshot() (plays int, lastLoop bool, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plays, r.lastLoop, r.stops
}

func (r *recordingSink) toneSnapshot() (tonePlays int, lastFreq float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tonePlays, r.lastFreq
}

// alertReplayIntervalForTest overrides the replay cadence for the duration
// of a test and returns a restore func.
func alertReplayIntervalForTest(d time.Duration) func() {
	prev := alertReplayInterval
	alertReplayInterval = d
	return func() { alertReplayInterval = prev }
}

func TestStartLoopsRingtoneWhenNoAlert(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sink := &recordingSink{}
	s := NewService(bus, sink, "classic.wav", "")
	defer s.Close()

	s.Start(false)
	plays, lastLoop, _ := sink.snapshot()
	if plays != 1 || !lastLoop {
		t.Fatalf("expected a single looping play, got plays=%d loop=%v", plays, lastLoop)
	}
}

func TestStartAlertToneReplaysOnInterval(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sink := &recordingSink{}
	s := NewService(bus, sink, "alert.wav", "")
	defer s.Close()

	orig := alertReplayIntervalForTest(20 * time.Millisecond)
	defer orig()

	s.Start(true)
	time.Sleep(70 * time.Millisecond)
	plays, lastLoop, _ := sink.snapshot()
	if plays < 2 {
		t.Fatalf("expected multiple non-looping replays, got %d", plays)
	}
	if lastLoop {
		t.Fatal("alert tone plays must not loop")
	}
}

func TestStopClearsElementAndInterval(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sink := &recordingSink{}
	s := NewService(bus, sink, "alert.wav", "")
	defer s.Close()

	orig := alertReplayIntervalForTest(15 * time.Millisecond)
	defer orig()

	s.Start(true)
	time.Sleep(40 * time.Millisecond)
	s.Stop()
	_, _, stopsAfterStop := sink.snapshot()
	if stopsAfterStop == 0 {
		t.Fatal("expected sink.Stop to have been called")
	}

	playsAtStop, _, _ := sink.snapshot()
	time.Sleep(60 * time.Millisecond)
	playsAfterWait, _, _ := sink.snapshot()
	if playsAfterWait != playsAtStop {
		t.Fatalf("replay interval kept firing after Stop: at-stop=%d after=%d", playsAtStop, playsAfterWait)
	}
}

func TestLineRingingWhileBusyPlaysTwoBeeps(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sink := &recordingSink{}
	s := NewService(bus, sink, "classic.wav", "")
	defer s.Close()

	bus.Publish(events.NewLineRingingWhileBusy(2))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if plays, _ := sink.toneSnapshot(); plays >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	plays, freq := sink.toneSnapshot()
	if plays != 2 {
		t.Fatalf("expected exactly 2 call-waiting beeps, got %d", plays)
	}
	if freq != 440.0 {
		t.Fatalf("expected 440Hz beep, got %v", freq)
	}
}

func TestSetSinkIDAppliedOnConstruction(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sink := &recordingSink{}
	s := NewService(bus, sink, "classic.wav", "device-42")
	defer s.Close()

	if sink.sinkID != "device-42" {
		t.Fatalf("expected SetSinkID to be called with device-42, got %q", sink.sinkID)
	}
}
