// Package errkind defines the named error kinds used across the softphone
// core, per the error handling design: operations fail with one of these
// sentinels (checked with errors.Is) and the same component also publishes a
// scoped *Failed event carrying the kind.
package errkind

import "errors"

var (
	// InvalidConfig is returned when configure/createUserAgent is missing a
	// required field, or a loaded SipConfig fails validation.
	InvalidConfig = errors.New("invalid config")

	// UriBuildFailed is returned when a SIP URI cannot be constructed from
	// the supplied target or config.
	UriBuildFailed = errors.New("uri build failed")

	// TransportStartFailed is returned when the WebSocket/SIP transport
	// fails to start listening or dial out.
	TransportStartFailed = errors.New("transport start failed")

	// NotRegistered is returned by operations that require an active
	// registration (makeCall, subscribeBLF) when none exists.
	NotRegistered = errors.New("not registered")

	// AllLinesBusy is returned by makeCall when no idle line is available.
	AllLinesBusy = errors.New("all lines busy")

	// InvalidTarget is returned when makeCall/blindTransfer/attendedTransfer
	// receive an empty or unparsable target.
	InvalidTarget = errors.New("invalid target")

	// SessionNotFound is returned by any operation addressing a session id
	// that is absent, or has already reached terminated/failed.
	SessionNotFound = errors.New("session not found")

	// SessionNotEstablished is returned by DTMF/hold/mute/transfer
	// operations against a session that is not in the established state.
	SessionNotEstablished = errors.New("session not established")

	// InvalidTone is returned by sendDTMF/sendDTMFSequence for a character
	// outside [0-9*#ABCD].
	InvalidTone = errors.New("invalid tone")

	// DtmfUnsupported is returned when the session has no description
	// handler capable of carrying RFC 4733 telephone-events.
	DtmfUnsupported = errors.New("dtmf unsupported")

	// TransferRejected is returned when a REFER is rejected by the far end.
	TransferRejected = errors.New("transfer rejected")

	// SubscribeFailed is returned by subscribeBLF/batchSubscribeBLF when
	// the SUBSCRIBE transaction fails or is rejected.
	SubscribeFailed = errors.New("subscribe failed")

	// ProbeTimeout is the kind the connectivity monitor puts in the
	// operationFailed event it publishes when a single internet or SIP
	// reachability probe does not complete within its bound.
	ProbeTimeout = errors.New("probe timeout")
)

// Wrap annotates err with a message while preserving errors.Is(err, kind),
// mirroring how the teacher wraps sipgo errors with fmt.Errorf("...: %w").
func Wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg + ": " + e.kind.Error() }
func (e *kindError) Unwrap() error { return e.kind }
