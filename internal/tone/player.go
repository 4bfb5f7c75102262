// Cadence playback, ticker-paced RTP injection, and auto-stop timers
// (spec.md §4.4 "Playback"), grounded on rtp_writer.go's ticker-paced Write
// loop and codec.go's Codec.SamplesPerFrame/TimestampIncrement, encoding
// frames with github.com/zaf/g711 instead of relaying a decoded file.
package tone

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/zaf/g711"
)

const (
	payloadPCMU = 0

	// DefaultAutoStopDuration is the caller-supplied default for busy/error
	// tones (spec.md §4.4 "Auto-stop on busy/error tones after a
	// caller-supplied duration (default 3s)").
	DefaultAutoStopDuration = 3 * time.Second
)

// Sender is the outbound RTP packetization point a call-progress tone
// writes into; session.Core's own rtpSend plays the same role for DTMF.
type Sender func(pkt *rtp.Packet) error

type playback struct {
	stop   chan struct{}
	done   chan struct{}
}

// Player drives one cadenced oscillator mixer per active key (typically a
// session id) and tears it down on Stop or auto-stop expiry.
type Player struct {
	mu             sync.Mutex
	active         map[string]*playback
	localeOverride string
}

// NewPlayer constructs an idle Player.
func NewPlayer() *Player {
	return &Player{active: make(map[string]*playback)}
}

// SetLocale overrides locale detection (spec.md §4.4 "Expose setLocale(locale)
// override").
func (p *Player) SetLocale(tag string) {
	p.mu.Lock()
	p.localeOverride = tag
	p.mu.Unlock()
}

func (p *Player) profile(localeHint string) Profile {
	p.mu.Lock()
	override := p.localeOverride
	p.mu.Unlock()
	if override != "" {
		return ProfileForLocale(override)
	}
	return ProfileForLocale(localeHint)
}

// PlayRingback plays localeHint's ringback tone under key until Stop is
// called; it does not auto-stop (spec.md §4.4 describes auto-stop only for
// busy/error).
func (p *Player) PlayRingback(key, localeHint string, send Sender) {
	p.play(key, p.profile(localeHint).Ringback, send, 0)
}

// PlayBusy plays the busy tone, auto-stopping after duration
// (DefaultAutoStopDuration if duration <= 0).
func (p *Player) PlayBusy(key, localeHint string, send Sender, duration time.Duration) {
	p.play(key, p.profile(localeHint).Busy, send, orDefault(duration))
}

// PlayError plays the reorder/error tone, auto-stopping after duration.
func (p *Player) PlayError(key, localeHint string, send Sender, duration time.Duration) {
	p.play(key, p.profile(localeHint).Error, send, orDefault(duration))
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultAutoStopDuration
	}
	return d
}

// Stop disconnects the oscillators and clears the cadence timer for key
// (spec.md §4.4 "Stopping disconnects all oscillators and clears the timer").
func (p *Player) Stop(key string) {
	p.mu.Lock()
	pb, ok := p.active[key]
	delete(p.active, key)
	p.mu.Unlock()
	if !ok {
		return
	}
	close(pb.stop)
	<-pb.done
}

func (p *Player) play(key string, def Definition, send Sender, autoStop time.Duration) {
	p.Stop(key)

	pb := &playback{stop: make(chan struct{}), done: make(chan struct{})}
	p.mu.Lock()
	p.active[key] = pb
	p.mu.Unlock()

	go p.run(key, def, send, autoStop, pb)
}

func (p *Player) run(key string, def Definition, send Sender, autoStop time.Duration, pb *playback) {
	defer close(pb.done)

	mixer := newOscillatorMixer(def)
	steps := def.Cadence.steps()
	if len(steps) == 0 {
		steps = []int{1000, 0}
	}

	ssrc := randomUint32()
	seq := uint16(randomUint32())
	ts := randomUint32()
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	var stopTimer <-chan time.Time
	if autoStop > 0 {
		t := time.NewTimer(autoStop)
		defer t.Stop()
		stopTimer = t.C
	}

	stepIdx := 0
	elapsedInStep := time.Duration(0)
	pcm := make([]int16, samplesPerFrame)

	for {
		select {
		case <-pb.stop:
			return
		case <-stopTimer:
			p.mu.Lock()
			if p.active[key] == pb {
				delete(p.active, key)
			}
			p.mu.Unlock()
			return
		case <-ticker.C:
			on := stepIdx%2 == 0
			gain := 0.0
			if on {
				gain = def.Volume
			}
			mixer.renderFrame(pcm, gain)
			payload := g711.EncodeUlaw(int16ToBytes(pcm))

			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    payloadPCMU,
					SequenceNumber: seq,
					Timestamp:      ts,
					SSRC:           ssrc,
				},
				Payload: payload,
			}
			_ = send(pkt)
			seq++
			ts += uint32(samplesPerFrame)

			elapsedInStep += frameDuration
			if elapsedInStep >= time.Duration(steps[stepIdx])*time.Millisecond {
				elapsedInStep = 0
				stepIdx = (stepIdx + 1) % len(steps)
			}
		}
	}
}

func int16ToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}
