// SDP offer/answer construction, grounded on the teacher's
// rtpmanager/media/codec.go codec table and on pion/sdp/v3 as the wire
// encoder (spec.md §6 "Media: SDP offers default to audio-only with
// bundlePolicy=balanced, rtcpMuxPolicy=require").
package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
)

// Codec payload types, grounded on media.CodecPCMU/CodecPCMA/CodecTelephoneEvent.
const (
	payloadPCMU            = 0
	payloadPCMA            = 8
	payloadTelephoneEvent  = 101
	audioSampleRate         = 8000
)

// HoldType mirrors dialog.HoldType, generalized to the SDP directions a
// re-INVITE can carry for hold/unhold (spec.md §3 SUPPLEMENTED FEATURES).
type HoldType int

const (
	HoldTypeNone HoldType = iota
	HoldTypeSendOnly
	HoldTypeRecvOnly
	HoldTypeInactive
)

func (h HoldType) attribute() string {
	switch h {
	case HoldTypeSendOnly:
		return "sendonly"
	case HoldTypeRecvOnly:
		return "recvonly"
	case HoldTypeInactive:
		return "inactive"
	default:
		return "sendrecv"
	}
}

// buildOfferSDP constructs the initial audio-only offer for makeCall.
func (c *Core) buildOfferSDP(s *Session) ([]byte, string) {
	return buildAudioSDP(s.ID, c.localMediaIP(), HoldTypeNone), "application/sdp"
}

// buildAnswerSDP constructs the 200 OK answer for answerCall/incoming INVITE.
func (c *Core) buildAnswerSDP(s *Session) ([]byte, string) {
	return buildAudioSDP(s.ID, c.localMediaIP(), HoldTypeNone), "application/sdp"
}

// buildReinviteSDP constructs a re-INVITE body carrying the given hold
// direction, grounded on dialog.BuildReINVITE/ReINVITEOptions.
func (c *Core) buildReinviteSDP(s *Session, hold HoldType) ([]byte, string) {
	return buildAudioSDP(s.ID, c.localMediaIP(), hold), "application/sdp"
}

func (c *Core) localMediaIP() string {
	// The core has no real media stack bound to a local interface; SDP
	// advertises the loopback address when nothing more specific is known,
	// matching how a browser-resident UA advertises whatever getUserMedia
	// plumbing resolves to without this package owning network discovery.
	return "127.0.0.1"
}

func buildAudioSDP(sessionID, ip string, hold HoldType) []byte {
	now := time.Now().Unix()
	sessDesc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(now),
			SessionVersion: uint64(now),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: ip,
		},
		SessionName: sdp.SessionName("softphone-" + sessionID),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: ip},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: 0},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{strconv.Itoa(payloadPCMU), strconv.Itoa(payloadPCMA), strconv.Itoa(payloadTelephoneEvent)},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: fmt.Sprintf("%d PCMU/%d", payloadPCMU, audioSampleRate)},
					{Key: "rtpmap", Value: fmt.Sprintf("%d PCMA/%d", payloadPCMA, audioSampleRate)},
					{Key: "rtpmap", Value: fmt.Sprintf("%d telephone-event/%d", payloadTelephoneEvent, audioSampleRate)},
					{Key: "fmtp", Value: fmt.Sprintf("%d 0-15", payloadTelephoneEvent)},
					{Key: hold.attribute()},
					{Key: "rtcp-mux"},
				},
			},
		},
	}
	out, err := sessDesc.Marshal()
	if err != nil {
		return nil
	}
	return out
}
