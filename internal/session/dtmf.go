// RFC 4733 (telephone-event) DTMF sending, grounded on the teacher's
// rtpmanager/media/dtmf.go (event/duration encoding) and
// rtpmanager/media/dtmf_writer.go (intermediate + redundant end-of-event
// packet cadence), retargeted from the B2BUA's bridged RTP session onto a
// session's own outbound RTP stream.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"strings"
	"time"

	"github.com/pion/rtp"

	"github.com/sebas/softphone/internal/corekit/errkind"
	"github.com/sebas/softphone/internal/events"
)

const (
	validDTMFTones      = "0123456789*#ABCD"
	defaultDTMFVolume   = 10
	defaultDTMFDuration = 1600 // 8kHz samples for ~200ms
	dtmfPacketInterval  = 20 * time.Millisecond
	dtmfSampleRate      = 8000
)

func dtmfEventForRune(r rune) (uint8, bool) {
	switch {
	case r >= '0' && r <= '9':
		return uint8(r - '0'), true
	case r == '*':
		return 10, true
	case r == '#':
		return 11, true
	case r >= 'A' && r <= 'D':
		return uint8(12 + (r - 'A')), true
	}
	return 0, false
}

// dtmfPacket is the 4-byte RFC 4733 telephone-event payload: event, a flags
// byte combining end-of-event/reserved/volume, then a 16-bit duration.
func dtmfPacket(event uint8, end bool, volume uint8, duration uint16) []byte {
	b := make([]byte, 4)
	b[0] = event
	if end {
		b[1] = 0x80 | (volume & 0x3f)
	} else {
		b[1] = volume & 0x3f
	}
	binary.BigEndian.PutUint16(b[2:], duration)
	return b
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// sendTelephoneEvent emits the intermediate packets of increasing duration,
// then three redundant end-of-event packets, the way DTMFWriter.SendDigit
// does over a live RTP session.
func sendTelephoneEvent(send func(pkt *rtp.Packet) error, event uint8) error {
	ssrc := randomUint32()
	seq := uint16(randomUint32())
	ts := randomUint32()

	steps := defaultDTMFDuration / (int(dtmfPacketInterval.Seconds() * dtmfSampleRate))
	if steps < 1 {
		steps = 1
	}
	duration := 0
	samplesPerPacket := int(dtmfPacketInterval.Seconds() * dtmfSampleRate)

	for i := 0; i < steps; i++ {
		duration += samplesPerPacket
		payload := dtmfPacket(event, false, defaultDTMFVolume, uint16(duration))
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    payloadTelephoneEvent,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           ssrc,
				Marker:         i == 0,
			},
			Payload: payload,
		}
		if err := send(pkt); err != nil {
			return err
		}
		seq++
	}

	endPayload := dtmfPacket(event, true, defaultDTMFVolume, uint16(duration))
	for i := 0; i < 3; i++ {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    payloadTelephoneEvent,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           ssrc,
			},
			Payload: endPayload,
		}
		if err := send(pkt); err != nil {
			return err
		}
		seq++
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// SendDTMF validates tone against [0-9*#ABCD] and requires established
// (spec.md §4.1 "sendDTMF").
func (c *Core) SendDTMF(sessionID string, tone rune) error {
	s, err := c.requireEstablished(sessionID)
	if err != nil {
		return err
	}
	event, ok := dtmfEventForRune(tone)
	if !ok {
		return errkind.Wrap(errkind.InvalidTone, string(tone))
	}

	if err := sendTelephoneEvent(s.rtpSend, event); err != nil {
		return errkind.Wrap(errkind.DtmfUnsupported, err.Error())
	}

	c.bus.Publish(events.NewDtmfSent(s.ID, tone))
	return nil
}

// SendDTMFSequence validates every character up front, then sends
// sequentially with pauses and returns after the last tone is sent
// (spec.md §4.1 "sendDTMFSequence"). It returns the first error met: an
// invalid character, a session that is not established, or a failed send.
func (c *Core) SendDTMFSequence(sessionID, seq string, pauseMs, initialDelayMs int) error {
	for _, r := range seq {
		if !strings.ContainsRune(validDTMFTones, r) {
			return errkind.Wrap(errkind.InvalidTone, string(r))
		}
	}
	if pauseMs <= 0 {
		pauseMs = 200
	}
	if initialDelayMs < 0 {
		initialDelayMs = 500
	}

	s, err := c.requireEstablished(sessionID)
	if err != nil {
		return err
	}

	time.Sleep(time.Duration(initialDelayMs) * time.Millisecond)
	for i, r := range seq {
		if i > 0 {
			time.Sleep(time.Duration(pauseMs) * time.Millisecond)
		}
		if s.State() != StateEstablished {
			return errkind.Wrap(errkind.SessionNotEstablished, s.ID)
		}
		if err := c.SendDTMF(s.ID, r); err != nil {
			return err
		}
	}
	return nil
}

// rtpSend is the session's outbound RTP packetization point. The core has no
// live network RTP socket of its own (media is the browser's WebRTC stack in
// the original system); this records the packet the way a loopback/test sink
// would, leaving a real transport swap to whatever RTP session the media
// layer binds per call.
func (s *Session) rtpSend(pkt *rtp.Packet) error {
	s.mu.Lock()
	s.lastDTMFPacket = pkt
	s.mu.Unlock()
	return nil
}

// RTPSender exposes a session's outbound RTP packetization point to other
// components that inject audio into the same stream DTMF uses, namely the
// Call-Progress Tone Engine's ringback/busy/reorder playback.
func (c *Core) RTPSender(sessionID string) (func(pkt *rtp.Packet) error, error) {
	s, ok := c.GetSession(sessionID)
	if !ok {
		return nil, errkind.Wrap(errkind.SessionNotFound, sessionID)
	}
	return s.rtpSend, nil
}
