package config

import "testing"

func TestDefaultsRegisterExpires(t *testing.T) {
	cfg := Defaults()
	if cfg.RegisterExpires != DefaultRegisterExpires {
		t.Fatalf("RegisterExpires = %v, want %v", cfg.RegisterExpires, DefaultRegisterExpires)
	}
	if cfg.BundlePolicy != "balanced" {
		t.Fatalf("BundlePolicy = %q, want balanced", cfg.BundlePolicy)
	}
	if cfg.RTCPMuxPolicy != "require" {
		t.Fatalf("RTCPMuxPolicy = %q, want require", cfg.RTCPMuxPolicy)
	}
}

func TestValidateMissingFields(t *testing.T) {
	cfg := Defaults()
	cfg.ICEServers = []string{DefaultSTUNServer}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected InvalidConfig for missing ServerURL/Username/Domain")
	}

	cfg.ServerURL = "wss://pbx.example.com/ws"
	cfg.Username = "1001"
	cfg.Domain = "example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMergeOnlyOverwritesNonZero(t *testing.T) {
	base := Defaults()
	base.ServerURL = "wss://a.example.com/ws"
	base.Username = "1001"

	merged := base.Merge(SipConfig{Domain: "example.com"})
	if merged.ServerURL != base.ServerURL {
		t.Fatalf("ServerURL was overwritten by zero value")
	}
	if merged.Domain != "example.com" {
		t.Fatalf("Domain not merged in")
	}
}

func TestEffectiveDisplayNameFallback(t *testing.T) {
	cfg := Defaults()
	cfg.Username = "1001"
	if got := cfg.EffectiveDisplayName(); got != "1001-365Connect" {
		t.Fatalf("EffectiveDisplayName() = %q, want 1001-365Connect", got)
	}
	cfg.DisplayName = "Front Desk"
	if got := cfg.EffectiveDisplayName(); got != "Front Desk" {
		t.Fatalf("EffectiveDisplayName() = %q, want Front Desk", got)
	}
}
