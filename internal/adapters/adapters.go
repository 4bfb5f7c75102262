// Package adapters defines the external collaborator interfaces the core
// consumes (spec.md §6 "External adapters the core consumes") plus trivial
// in-memory/noop implementations for tests and cmd/softphone. Real
// deployments wire these to browser storage, a CRM, PhantomAPI, and the page
// chrome; this module never depends on any concrete one.
package adapters

// Preferences is the external KV store the core reads device selections and
// enabling flags from (spec.md §6). Keys of interest include
// BusylightEnabled, BusylightRingSound, BusylightRingVolume, activeVmNotify,
// SipUsername, AppLanguage, the selected microphone/speaker/ringer device
// ids, and the selected ringtone filename. All values are strings; booleans
// are encoded as "0"/"1".
type Preferences interface {
	Get(key, fallback string) string
	Set(key, value string)
}

// AgentData is PhantomAPI's view of an agent's current status.
type AgentData struct {
	Username   string
	State      string
	LoggedIn   bool
	QueueNames []string
}

// Contact is what Contacts.LookupByNumber resolves a dialed/ringing number
// to.
type Contact struct {
	DisplayName string
}

// Contacts resolves a raw or E.164 number to a display name (spec.md §6).
type Contacts interface {
	LookupByNumber(number string) (Contact, bool)
}

// PhantomAPI queries and changes an agent's login state. No component in
// this module calls it: neither the SIP protocol code nor the Recovery
// Controller uses it.
type PhantomAPI interface {
	QueryAgentStatus(username string) (AgentData, bool)
	AgentLogon(username string) error
	AgentLogoff(username string) error
}

// NotificationHandle identifies a shown notification so it can later be
// closed.
type NotificationHandle string

// Notifications surfaces a desktop/browser notification for an incoming
// call (spec.md §6).
type Notifications interface {
	ShowIncoming(name, number string, onAnswer, onDismiss func()) NotificationHandle
	Close(handle NotificationHandle)
}

// TabAlert flashes the browser tab/favicon while a line is ringing
// (spec.md §6).
type TabAlert interface {
	SetAlert(tab string, severity string)
	ClearAlert(tab string)
}
