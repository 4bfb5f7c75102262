package adapters

import "testing"

func TestMemoryPreferencesGetFallback(t *testing.T) {
	p := NewMemoryPreferences()
	if got := p.Get("AppLanguage", "en-US"); got != "en-US" {
		t.Fatalf("expected fallback, got %q", got)
	}
	p.Set("AppLanguage", "fr-FR")
	if got := p.Get("AppLanguage", "en-US"); got != "fr-FR" {
		t.Fatalf("expected stored value, got %q", got)
	}
}

func TestMemoryContactsLookup(t *testing.T) {
	c := NewMemoryContacts(map[string]Contact{"1001": {DisplayName: "Front Desk"}})
	got, ok := c.LookupByNumber("1001")
	if !ok || got.DisplayName != "Front Desk" {
		t.Fatalf("expected Front Desk, got %+v ok=%v", got, ok)
	}
	if _, ok := c.LookupByNumber("9999"); ok {
		t.Fatal("expected no match for unknown number")
	}
	c.Put("9999", Contact{DisplayName: "New Contact"})
	if got, ok := c.LookupByNumber("9999"); !ok || got.DisplayName != "New Contact" {
		t.Fatalf("expected Put to be visible to LookupByNumber, got %+v ok=%v", got, ok)
	}
}

func TestNoopPhantomAPI(t *testing.T) {
	var api PhantomAPI = NoopPhantomAPI{}
	if _, ok := api.QueryAgentStatus("agent1"); ok {
		t.Fatal("expected noop to report unknown agent status")
	}
	if err := api.AgentLogon("agent1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := api.AgentLogoff("agent1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecordingNotificationsShowAndClose(t *testing.T) {
	n := NewRecordingNotifications()
	var answered bool
	h := n.ShowIncoming("Jane Doe", "5551234", func() { answered = true }, func() {})
	if _, ok := n.Shown[h]; !ok {
		t.Fatal("expected handle to be recorded as shown")
	}
	n.Close(h)
	if _, ok := n.Shown[h]; ok {
		t.Fatal("expected handle to be removed after Close")
	}
	if len(n.Closed) != 1 || n.Closed[0] != h {
		t.Fatalf("expected Closed to record the handle, got %v", n.Closed)
	}
	_ = answered
}
