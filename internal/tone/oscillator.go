// Package tone implements the Call-Progress Tone Engine (spec.md §4.4): a
// locale-driven cadenced tone generator for ringback/busy/reorder since the
// PBX does not reliably return in-band progress. The sample synthesis and
// clock pacing are grounded on the teacher's
// internal/rtpmanager/media/rtp_writer.go (ticker-paced RTP writer) and
// media/codec.go (Codec.SamplesPerFrame/TimestampIncrement), generalized
// from relaying a decoded media file to generating sinusoid samples per
// frame and encoding them with github.com/zaf/g711.
package tone

import (
	"math"
	"time"
)

const sampleRate = 8000

// Cadence is the on/off gating applied to a tone's oscillators: either a
// simple [onMs, offMs] pair or a multi-phase pattern array
// (spec.md §3 "ToneDefinition").
type Cadence struct {
	OnMs  int
	OffMs int
	// Pattern, when non-empty, overrides OnMs/OffMs with alternating
	// on/off/on/off... durations in milliseconds.
	Pattern []int
}

// Definition is one tone: one to three summed sinusoids, a cadence, and a
// volume (spec.md §3 "ToneDefinition").
type Definition struct {
	Frequencies []float64
	Cadence     Cadence
	Volume      float64 // 0..1
}

// steps returns the cadence as a flat on/off/on/off... duration sequence.
func (c Cadence) steps() []int {
	if len(c.Pattern) > 0 {
		return c.Pattern
	}
	return []int{c.OnMs, c.OffMs}
}

// oscillatorMixer sums one sine wave per frequency, scaled so that the
// combined peak amplitude stays at volume regardless of how many
// frequencies are mixed (spec.md §4.4 "volume/Nfreqs mixing").
type oscillatorMixer struct {
	frequencies []float64
	volume      float64
	phase       []float64
}

func newOscillatorMixer(d Definition) *oscillatorMixer {
	return &oscillatorMixer{
		frequencies: d.Frequencies,
		volume:      d.Volume,
		phase:       make([]float64, len(d.Frequencies)),
	}
}

// renderFrame fills pcm (signed 16-bit samples, one per slot) with the
// mixed sinusoids at gain (0 for the cadence's "off" phases, the tone's
// volume for "on" phases); each of the N frequencies contributes gain/N.
func (m *oscillatorMixer) renderFrame(pcm []int16, gain float64) {
	if gain == 0 || len(m.frequencies) == 0 {
		for i := range pcm {
			pcm[i] = 0
		}
		// Still advance phase so resuming mid-cadence doesn't click.
		for i, f := range m.frequencies {
			m.phase[i] += 2 * math.Pi * f * float64(len(pcm)) / sampleRate
		}
		return
	}
	perFreq := gain / float64(len(m.frequencies))
	for i := range pcm {
		sum := 0.0
		for fi, f := range m.frequencies {
			sum += math.Sin(m.phase[fi]) * perFreq
			m.phase[fi] += 2 * math.Pi * f / sampleRate
		}
		pcm[i] = int16(sum * math.MaxInt16)
	}
}

const frameDuration = 20 * time.Millisecond
const samplesPerFrame = 160 // sampleRate(8000) * frameDuration(20ms)
