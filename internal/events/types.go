package events

import "time"

// Type identifies one of the documented stable events exported by the core
// (spec.md §6). These are the only event kinds ever published.
type Type string

const (
	TransportStateChanged Type = "transportStateChanged"
	TransportConnected    Type = "transportConnected"
	TransportDisconnected Type = "transportDisconnected"
	TransportError        Type = "transportError"

	RegistrationStateChanged Type = "registrationStateChanged"
	Registered               Type = "registered"
	Unregistered             Type = "unregistered"
	RegistrationFailed       Type = "registrationFailed"

	SessionCreated         Type = "sessionCreated"
	IncomingCall           Type = "incomingCall"
	SessionStateChanged    Type = "sessionStateChanged"
	SessionAnswered        Type = "sessionAnswered"
	SessionTerminated      Type = "sessionTerminated"
	SessionModified        Type = "sessionModified"
	SessionMuted           Type = "sessionMuted"
	SessionDurationChanged Type = "sessionDurationChanged"

	DtmfSent Type = "dtmfSent"

	LineSelected         Type = "lineSelected"
	LineReleased         Type = "lineReleased"
	LineRingingWhileBusy Type = "lineRingingWhileBusy"

	BlfSubscribed         Type = "blfSubscribed"
	BlfUnsubscribed       Type = "blfUnsubscribed"
	BlfStateChanged       Type = "blfStateChanged"
	BlfSubscriptionFailed Type = "blfSubscriptionFailed"

	MessageReceived Type = "messageReceived"
	NotifyReceived  Type = "notifyReceived"

	TransferInitiated Type = "transferInitiated"
	TransferCompleted Type = "transferCompleted"

	AttendedTransferInitiated Type = "attendedTransferInitiated"
	AttendedTransferProgress  Type = "attendedTransferProgress"
	AttendedTransferAnswered  Type = "attendedTransferAnswered"
	AttendedTransferRejected  Type = "attendedTransferRejected"
	AttendedTransferTerminated Type = "attendedTransferTerminated"
	AttendedTransferCompleted Type = "attendedTransferCompleted"
	AttendedTransferCancelled Type = "attendedTransferCancelled"

	// OperationFailed carries the propagation-policy's "scoped *Failed
	// event" for any operation not already covered by a dedicated *Failed
	// kind above (registrationFailed, blfSubscriptionFailed); see §7.
	OperationFailed Type = "operationFailed"

	// ConnectivitySnapshotChanged publishes the monitor's updated snapshot
	// (browserOnline/internetStatus/sipReachable/networkPathSignature).
	ConnectivitySnapshotChanged Type = "connectivitySnapshotChanged"

	// ReconnectScheduled/ReconnectAttempt let the UI surface recovery
	// progress without reaching into the recovery controller's state.
	ReconnectScheduled Type = "reconnectScheduled"
	ReconnectAttempt   Type = "reconnectAttempt"
)

// Direction mirrors Session.direction.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// SessionState mirrors Session.state (spec.md §3).
type SessionState string

const (
	SessionInitiating  SessionState = "initiating"
	SessionRinging     SessionState = "ringing"
	SessionCalling     SessionState = "calling"
	SessionConnecting  SessionState = "connecting"
	SessionEstablished SessionState = "established"
	SessionHold        SessionState = "hold"
	SessionTerminating    SessionState = "terminating"
	SessionStateTerminated SessionState = "terminated"
	SessionFailed         SessionState = "failed"
)

// SessionView is the event-bus-facing projection of a session; kept separate
// from internal/session's own Session type so that this package never
// imports internal/session (avoiding an events<->session import cycle).
type SessionView struct {
	SessionID        string
	Line             int
	Direction        Direction
	RemoteNumber     string
	RemoteDisplay    string
	State            SessionState
	StartTime        time.Time
	AnswerTime       *time.Time
	DurationSeconds  int
	OnHold           bool
	Muted            bool
	CallType         string
	LocallyAnswered  bool
}

type baseEvent struct {
	kind Type
	Time time.Time
}

func (b baseEvent) Kind() Type { return b.kind }

func newBase(kind Type) baseEvent {
	return baseEvent{kind: kind, Time: time.Now().UTC()}
}

// TransportStateChangedEvent reports the WebSocket transport's new state.
type TransportStateChangedEvent struct {
	baseEvent
	State string
}

func NewTransportStateChanged(state string) TransportStateChangedEvent {
	return TransportStateChangedEvent{baseEvent: newBase(TransportStateChanged), State: state}
}

// TransportConnectedEvent/TransportDisconnectedEvent/TransportErrorEvent are
// thin, dedicated signals alongside the generic state-changed event, the way
// spec.md §6 lists both.
type TransportConnectedEvent struct{ baseEvent }

func NewTransportConnected() TransportConnectedEvent {
	return TransportConnectedEvent{newBase(TransportConnected)}
}

type TransportDisconnectedEvent struct {
	baseEvent
	Reason string
}

func NewTransportDisconnected(reason string) TransportDisconnectedEvent {
	return TransportDisconnectedEvent{baseEvent: newBase(TransportDisconnected), Reason: reason}
}

type TransportErrorEvent struct {
	baseEvent
	Err error
}

func NewTransportError(err error) TransportErrorEvent {
	return TransportErrorEvent{baseEvent: newBase(TransportError), Err: err}
}

// RegistrationStateChangedEvent publishes registering/registered/unregistered
// transitions, which §5 requires to be observed in monotonic order.
type RegistrationStateChangedEvent struct {
	baseEvent
	State string
}

func NewRegistrationStateChanged(state string) RegistrationStateChangedEvent {
	return RegistrationStateChangedEvent{baseEvent: newBase(RegistrationStateChanged), State: state}
}

type RegisteredEvent struct {
	baseEvent
	ExpiresSeconds int
}

func NewRegistered(expires int) RegisteredEvent {
	return RegisteredEvent{baseEvent: newBase(Registered), ExpiresSeconds: expires}
}

type UnregisteredEvent struct{ baseEvent }

func NewUnregistered() UnregisteredEvent { return UnregisteredEvent{newBase(Unregistered)} }

type RegistrationFailedEvent struct {
	baseEvent
	Kind   string
	Detail string
}

func NewRegistrationFailed(kind, detail string) RegistrationFailedEvent {
	return RegistrationFailedEvent{baseEvent: newBase(RegistrationFailed), Kind: kind, Detail: detail}
}

// SessionCreatedEvent/IncomingCallEvent.
type SessionCreatedEvent struct {
	baseEvent
	Session SessionView
}

func NewSessionCreated(s SessionView) SessionCreatedEvent {
	return SessionCreatedEvent{baseEvent: newBase(SessionCreated), Session: s}
}

type IncomingCallEvent struct {
	baseEvent
	Session SessionView
}

func NewIncomingCall(s SessionView) IncomingCallEvent {
	return IncomingCallEvent{baseEvent: newBase(IncomingCall), Session: s}
}

type SessionStateChangedEvent struct {
	baseEvent
	SessionID string
	State     SessionState
}

func NewSessionStateChanged(id string, state SessionState) SessionStateChangedEvent {
	return SessionStateChangedEvent{baseEvent: newBase(SessionStateChanged), SessionID: id, State: state}
}

type SessionAnsweredEvent struct {
	baseEvent
	SessionID string
}

func NewSessionAnswered(id string) SessionAnsweredEvent {
	return SessionAnsweredEvent{baseEvent: newBase(SessionAnswered), SessionID: id}
}

type SessionTerminatedEvent struct {
	baseEvent
	SessionID string
	Reason    string
	Record    CallHistoryRecord
}

func NewSessionTerminated(id, reason string, rec CallHistoryRecord) SessionTerminatedEvent {
	return SessionTerminatedEvent{baseEvent: newBase(SessionTerminated), SessionID: id, Reason: reason, Record: rec}
}

type SessionModifiedEvent struct {
	baseEvent
	SessionID string
	Action    string // "hold" | "unhold"
}

func NewSessionModified(id, action string) SessionModifiedEvent {
	return SessionModifiedEvent{baseEvent: newBase(SessionModified), SessionID: id, Action: action}
}

type SessionMutedEvent struct {
	baseEvent
	SessionID string
	Muted     bool
}

func NewSessionMuted(id string, muted bool) SessionMutedEvent {
	return SessionMutedEvent{baseEvent: newBase(SessionMuted), SessionID: id, Muted: muted}
}

type SessionDurationChangedEvent struct {
	baseEvent
	SessionID       string
	DurationSeconds int
}

func NewSessionDurationChanged(id string, seconds int) SessionDurationChangedEvent {
	return SessionDurationChangedEvent{baseEvent: newBase(SessionDurationChanged), SessionID: id, DurationSeconds: seconds}
}

// CallHistoryRecord (spec.md §3): produced, not stored, by the core.
type CallHistoryRecord struct {
	ID        string
	Number    string
	Name      string
	Direction Direction
	Duration  int
	Status    string // completed | missed | cancelled
	Timestamp time.Time
}

// DtmfSentEvent.
type DtmfSentEvent struct {
	baseEvent
	SessionID string
	Tone      rune
}

func NewDtmfSent(id string, tone rune) DtmfSentEvent {
	return DtmfSentEvent{baseEvent: newBase(DtmfSent), SessionID: id, Tone: tone}
}

// LineSelectedEvent/LineReleasedEvent.
type LineSelectedEvent struct {
	baseEvent
	Line int
}

func NewLineSelected(line int) LineSelectedEvent {
	return LineSelectedEvent{baseEvent: newBase(LineSelected), Line: line}
}

type LineReleasedEvent struct {
	baseEvent
	Line int
}

func NewLineReleased(line int) LineReleasedEvent {
	return LineReleasedEvent{baseEvent: newBase(LineReleased), Line: line}
}

// LineRingingWhileBusyEvent fires when an incoming call rings on a line while
// another line is active or on hold, the call-waiting tone trigger
// (spec.md §4.2 "two 200ms 440Hz beeps with a 400ms gap").
type LineRingingWhileBusyEvent struct {
	baseEvent
	Line int
}

func NewLineRingingWhileBusy(line int) LineRingingWhileBusyEvent {
	return LineRingingWhileBusyEvent{baseEvent: newBase(LineRingingWhileBusy), Line: line}
}

// BLF events.
type BlfSubscribedEvent struct {
	baseEvent
	Extension string
}

func NewBlfSubscribed(ext string) BlfSubscribedEvent {
	return BlfSubscribedEvent{baseEvent: newBase(BlfSubscribed), Extension: ext}
}

type BlfUnsubscribedEvent struct {
	baseEvent
	Extension string
}

func NewBlfUnsubscribed(ext string) BlfUnsubscribedEvent {
	return BlfUnsubscribedEvent{baseEvent: newBase(BlfUnsubscribed), Extension: ext}
}

type BlfStateChangedEvent struct {
	baseEvent
	Extension    string
	State        string
	RemoteTarget string
}

func NewBlfStateChanged(ext, state, remoteTarget string) BlfStateChangedEvent {
	return BlfStateChangedEvent{baseEvent: newBase(BlfStateChanged), Extension: ext, State: state, RemoteTarget: remoteTarget}
}

type BlfSubscriptionFailedEvent struct {
	baseEvent
	Extension string
	Detail    string
}

func NewBlfSubscriptionFailed(ext, detail string) BlfSubscriptionFailedEvent {
	return BlfSubscriptionFailedEvent{baseEvent: newBase(BlfSubscriptionFailed), Extension: ext, Detail: detail}
}

// MessageReceivedEvent carries parsed MWI (message-summary) data.
type MessageReceivedEvent struct {
	baseEvent
	MessagesWaiting bool
	New             int
	Old             int
}

func NewMessageReceived(waiting bool, new, old int) MessageReceivedEvent {
	return MessageReceivedEvent{baseEvent: newBase(MessageReceived), MessagesWaiting: waiting, New: new, Old: old}
}

// NotifyReceivedEvent forwards any NOTIFY the core does not specially parse.
type NotifyReceivedEvent struct {
	baseEvent
	Event       string
	ContentType string
	Body        string
}

func NewNotifyReceived(event, contentType, body string) NotifyReceivedEvent {
	return NotifyReceivedEvent{baseEvent: newBase(NotifyReceived), Event: event, ContentType: contentType, Body: body}
}

// Transfer events.
type TransferInitiatedEvent struct {
	baseEvent
	SessionID string
	Target    string
}

func NewTransferInitiated(id, target string) TransferInitiatedEvent {
	return TransferInitiatedEvent{baseEvent: newBase(TransferInitiated), SessionID: id, Target: target}
}

type TransferCompletedEvent struct {
	baseEvent
	SessionID string
	Success   bool
	Reason    string
}

func NewTransferCompleted(id string, success bool, reason string) TransferCompletedEvent {
	return TransferCompletedEvent{baseEvent: newBase(TransferCompleted), SessionID: id, Success: success, Reason: reason}
}

// Attended-transfer progress events.
type AttendedTransferInitiatedEvent struct {
	baseEvent
	OriginalSessionID string
	TransferSessionID string
	Target            string
}

func NewAttendedTransferInitiated(origID, transferID, target string) AttendedTransferInitiatedEvent {
	return AttendedTransferInitiatedEvent{baseEvent: newBase(AttendedTransferInitiated), OriginalSessionID: origID, TransferSessionID: transferID, Target: target}
}

type AttendedTransferProgressEvent struct {
	baseEvent
	TransferSessionID string
	Status            string
}

func NewAttendedTransferProgress(transferID, status string) AttendedTransferProgressEvent {
	return AttendedTransferProgressEvent{baseEvent: newBase(AttendedTransferProgress), TransferSessionID: transferID, Status: status}
}

type AttendedTransferAnsweredEvent struct {
	baseEvent
	TransferSessionID string
}

func NewAttendedTransferAnswered(transferID string) AttendedTransferAnsweredEvent {
	return AttendedTransferAnsweredEvent{baseEvent: newBase(AttendedTransferAnswered), TransferSessionID: transferID}
}

type AttendedTransferRejectedEvent struct {
	baseEvent
	TransferSessionID string
	Reason            string
}

func NewAttendedTransferRejected(transferID, reason string) AttendedTransferRejectedEvent {
	return AttendedTransferRejectedEvent{baseEvent: newBase(AttendedTransferRejected), TransferSessionID: transferID, Reason: reason}
}

type AttendedTransferTerminatedEvent struct {
	baseEvent
	TransferSessionID string
}

func NewAttendedTransferTerminated(transferID string) AttendedTransferTerminatedEvent {
	return AttendedTransferTerminatedEvent{baseEvent: newBase(AttendedTransferTerminated), TransferSessionID: transferID}
}

type AttendedTransferCompletedEvent struct {
	baseEvent
	OriginalSessionID string
	Success           bool
	Reason            string
}

func NewAttendedTransferCompleted(origID string, success bool, reason string) AttendedTransferCompletedEvent {
	return AttendedTransferCompletedEvent{baseEvent: newBase(AttendedTransferCompleted), OriginalSessionID: origID, Success: success, Reason: reason}
}

type AttendedTransferCancelledEvent struct {
	baseEvent
	OriginalSessionID string
}

func NewAttendedTransferCancelled(origID string) AttendedTransferCancelledEvent {
	return AttendedTransferCancelledEvent{baseEvent: newBase(AttendedTransferCancelled), OriginalSessionID: origID}
}

// OperationFailedEvent is the generic "*Failed" companion event required by
// §7's propagation policy for every operation-scoped error kind that has no
// dedicated event type of its own (registrationFailed and
// blfSubscriptionFailed are dedicated above; everything else funnels here).
type OperationFailedEvent struct {
	baseEvent
	Operation string
	Kind      string
	Detail    string
}

func NewOperationFailed(operation, kind, detail string) OperationFailedEvent {
	return OperationFailedEvent{baseEvent: newBase(OperationFailed), Operation: operation, Kind: kind, Detail: detail}
}

// ConnectivitySnapshotChangedEvent publishes the monitor's updated snapshot.
type ConnectivitySnapshotChangedEvent struct {
	baseEvent
	BrowserOnline        bool
	InternetStatus       string
	SIPReachable         *bool
	NetworkPathSignature string
}

func NewConnectivitySnapshotChanged(online bool, internet string, sipReachable *bool, sig string) ConnectivitySnapshotChangedEvent {
	return ConnectivitySnapshotChangedEvent{
		baseEvent:            newBase(ConnectivitySnapshotChanged),
		BrowserOnline:        online,
		InternetStatus:       internet,
		SIPReachable:         sipReachable,
		NetworkPathSignature: sig,
	}
}

type ReconnectScheduledEvent struct {
	baseEvent
	Attempt int
	DelayMs int64
}

func NewReconnectScheduled(attempt int, delayMs int64) ReconnectScheduledEvent {
	return ReconnectScheduledEvent{baseEvent: newBase(ReconnectScheduled), Attempt: attempt, DelayMs: delayMs}
}

type ReconnectAttemptEvent struct {
	baseEvent
	Attempt int
	Success bool
}

func NewReconnectAttempt(attempt int, success bool) ReconnectAttemptEvent {
	return ReconnectAttemptEvent{baseEvent: newBase(ReconnectAttempt), Attempt: attempt, Success: success}
}
