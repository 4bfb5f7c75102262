package tone

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
)

func TestProfileForLocaleExactRegion(t *testing.T) {
	p := ProfileForLocale("en-GB")
	if p.Ringback.Frequencies[0] != 400 {
		t.Fatalf("unexpected UK ringback frequency: %v", p.Ringback.Frequencies)
	}
}

func TestProfileForLocaleFallsBackToLanguagePrefix(t *testing.T) {
	p := ProfileForLocale("fr-CA")
	fr := ProfileForLocale("fr")
	if p.Ringback.Frequencies[0] != fr.Ringback.Frequencies[0] {
		t.Fatalf("fr-CA should fall back to the fr profile")
	}
}

func TestProfileForLocaleFallsBackToUS(t *testing.T) {
	p := ProfileForLocale("xx-ZZ")
	us := ProfileForLocale("en-US")
	if p.Ringback.Frequencies[0] != us.Ringback.Frequencies[0] {
		t.Fatalf("unknown locale should fall back to US")
	}
}

func TestOscillatorMixerSilentWhenGainZero(t *testing.T) {
	m := newOscillatorMixer(Definition{Frequencies: []float64{440}, Volume: 0.5})
	pcm := make([]int16, 10)
	m.renderFrame(pcm, 0)
	for _, s := range pcm {
		if s != 0 {
			t.Fatalf("expected silence, got %d", s)
		}
	}
}

func TestOscillatorMixerProducesNonzeroSignal(t *testing.T) {
	m := newOscillatorMixer(Definition{Frequencies: []float64{440}, Volume: 0.8})
	pcm := make([]int16, 160)
	m.renderFrame(pcm, 0.8)
	nonzero := false
	for _, s := range pcm {
		if s != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Fatal("expected a nonzero sinusoid")
	}
}

func TestPlayerPlayBusyAutoStops(t *testing.T) {
	p := NewPlayer()
	var mu sync.Mutex
	count := 0
	send := func(pkt *rtp.Packet) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}
	p.PlayBusy("session-1", "en-US", send, 40*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	got := count
	mu.Unlock()
	if got == 0 {
		t.Fatal("expected some RTP packets to have been sent")
	}

	before := got
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	after := count
	mu.Unlock()
	if after != before {
		t.Fatalf("packets still being sent after auto-stop: before=%d after=%d", before, after)
	}
}

func TestPlayerStopIsIdempotent(t *testing.T) {
	p := NewPlayer()
	send := func(pkt *rtp.Packet) error { return nil }
	p.PlayRingback("s1", "en-US", send)
	p.Stop("s1")
	p.Stop("s1") // no panic, no block
}
