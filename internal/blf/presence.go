// Package blf implements the BLF Subscription Engine (spec.md §4.1, §4.3):
// the dialog-info+xml presence parser and the per-extension batch-subscribe/
// backoff bookkeeping. Grounded directly on the alephcom BLF client
// (other_examples/6c2e3608_alephcom-teams-sip-blf): that file imports a
// sibling `internal/blf` package offering ExtensionFromDialogInfo/
// ParseDialogInfo/ParsePresenceBody/State — this package is that contract,
// reimplemented for this core's NOTIFY pipeline.
package blf

import (
	"encoding/xml"
	"strings"
)

// State is the presence lattice a BLF subscription settles into
// (spec.md §3 "BlfSubscription").
type State string

const (
	StateAvailable  State = "available"
	StateRinging    State = "ringing"
	StateBusy       State = "busy"
	StateOnHold     State = "onhold"
	StateUnavailable State = "unavailable"
	StateUnknown    State = "unknown"
)

// dialogInfoXML mirrors the RFC 4235 dialog-info document shape closely
// enough to extract state, direction, and the remote target URI.
type dialogInfoXML struct {
	XMLName xml.Name    `xml:"dialog-info"`
	Dialogs []dialogXML `xml:"dialog"`
}

type dialogXML struct {
	ID        string    `xml:"id,attr"`
	Direction string    `xml:"direction,attr"`
	State     stateXML  `xml:"state"`
	Local     partyXML  `xml:"local"`
	Remote    partyXML  `xml:"remote"`
}

type stateXML struct {
	Event string `xml:"event,attr"`
	Value string `xml:",chardata"`
}

type partyXML struct {
	Target targetXML `xml:"target"`
}

type targetXML struct {
	URI string `xml:"uri,attr"`
}

// ParseDialogInfo parses an application/dialog-info+xml NOTIFY body into
// (extension, presence state, remote target URI), per spec.md §4.1's
// mapping: {early,confirmed}->busy, early+incoming->ringing,
// terminated->available, missing/unknown->unknown.
func ParseDialogInfo(body []byte) (extension string, state State, remoteTarget string) {
	var doc dialogInfoXML
	if err := xml.Unmarshal(body, &doc); err != nil || len(doc.Dialogs) == 0 {
		return "", StateUnknown, ""
	}
	d := doc.Dialogs[0]
	extension = ExtensionFromURI(d.Local.Target.URI)
	remoteTarget = d.Remote.Target.URI

	rawState := strings.ToLower(strings.TrimSpace(d.State.Value))
	switch rawState {
	case "early":
		if strings.EqualFold(d.Direction, "recipient") {
			state = StateRinging
		} else {
			state = StateBusy
		}
	case "confirmed":
		state = StateBusy
	case "terminated":
		state = StateAvailable
	default:
		state = StateUnknown
	}
	return extension, state, remoteTarget
}

// ExtensionFromURI extracts the user part of a sip: URI ("sip:101@pbx" -> "101").
func ExtensionFromURI(uri string) string {
	uri = strings.TrimPrefix(uri, "sip:")
	uri = strings.TrimPrefix(uri, "sips:")
	if at := strings.Index(uri, "@"); at >= 0 {
		uri = uri[:at]
	}
	return uri
}

// ExtensionFromTo is the fallback used when a PBX sends a dialog-info body
// with no local target URI: some PBXs key the monitored resource off the
// NOTIFY's To header instead (mirrors alephcom's handleNOTIFY fallback).
func ExtensionFromTo(toHeader string) string {
	if idx := strings.Index(toHeader, "<"); idx >= 0 {
		toHeader = toHeader[idx+1:]
		if end := strings.Index(toHeader, ">"); end >= 0 {
			toHeader = toHeader[:end]
		}
	}
	return ExtensionFromURI(strings.TrimSpace(toHeader))
}

// ParseMessageSummary parses an Event: message-summary NOTIFY body
// ("Messages-Waiting: yes" / "Voice-Message: 2/5") per spec.md §4.1.
func ParseMessageSummary(body []byte) (waiting bool, newCount, oldCount int) {
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch strings.ToLower(key) {
		case "messages-waiting":
			waiting = strings.EqualFold(val, "yes")
		case "voice-message":
			newCount, oldCount = parseCounts(val)
		}
	}
	return waiting, newCount, oldCount
}

func parseCounts(val string) (newCount, oldCount int) {
	fields := strings.Fields(val)
	if len(fields) == 0 {
		return 0, 0
	}
	parts := strings.SplitN(fields[0], "/", 2)
	newCount = atoiSafe(parts[0])
	if len(parts) == 2 {
		oldCount = atoiSafe(parts[1])
	}
	return newCount, oldCount
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
