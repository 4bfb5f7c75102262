// Package config holds SipConfig, the immutable-once-applied settings record
// for the softphone core, adapted from the teacher's flag+environment
// Load() pattern (internal/signaling/config) and retargeted from PBX listener
// settings to a browser-style SIP UA configuration (spec.md §3).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sebas/softphone/internal/corekit/errkind"
)

// Defaults mirror spec.md §3/§4.1 exactly.
const (
	DefaultRegisterExpires      = 300 * time.Second
	DefaultBundlePolicy         = "balanced"
	DefaultRTCPMuxPolicy        = "require"
	DefaultICEGatheringTimeout  = 5 * time.Second
	DefaultKeepAliveInterval    = 30 * time.Second
	DefaultKeepAliveMaxFailures = 3
	DefaultNoAnswerTimeout      = 60 * time.Second
	DefaultAutoAnswerDelay      = 1500 * time.Millisecond
	DefaultSTUNServer           = "stun:stun.l.google.com:19302"
)

// SipConfig is the full configuration surface for createUserAgent. It is
// immutable once a user agent is running: a reconfigure requires stop+recreate
// (see session.Core.Configure / session.Core.CreateUserAgent).
type SipConfig struct {
	ServerURL   string // ws(s)://host[:port]/ws, or bare host
	Username    string
	Password    string
	Domain      string
	DisplayName string
	ContactName string

	RegisterExpires time.Duration

	ICEServers          []string
	BundlePolicy        string
	RTCPMuxPolicy       string
	ICEGatheringTimeout time.Duration

	KeepAliveInterval    time.Duration
	KeepAliveMaxFailures int
	NoAnswerTimeout      time.Duration

	Trace      bool
	EnableBLF  bool
	AutoAnswer bool
}

// Defaults returns a SipConfig populated with every documented default,
// the way the teacher's Load() pre-seeds GRPC timeouts before flag parsing.
func Defaults() SipConfig {
	return SipConfig{
		RegisterExpires:      DefaultRegisterExpires,
		BundlePolicy:         DefaultBundlePolicy,
		RTCPMuxPolicy:        DefaultRTCPMuxPolicy,
		ICEGatheringTimeout:  DefaultICEGatheringTimeout,
		KeepAliveInterval:    DefaultKeepAliveInterval,
		KeepAliveMaxFailures: DefaultKeepAliveMaxFailures,
		NoAnswerTimeout:      DefaultNoAnswerTimeout,
		ICEServers:           []string{DefaultSTUNServer},
	}
}

// Load builds a SipConfig from command-line flags and environment variable
// overrides, following the teacher's Load() precedence (flags first, then
// env vars win if set). Intended for cmd/softphone's entrypoint; library
// callers normally construct SipConfig directly and call Merge/Validate.
func Load() SipConfig {
	cfg := Defaults()

	flag.StringVar(&cfg.ServerURL, "sip-server", "", "SIP WebSocket server URL or host")
	flag.StringVar(&cfg.Username, "sip-username", "", "SIP account username")
	flag.StringVar(&cfg.Password, "sip-password", "", "SIP account password")
	flag.StringVar(&cfg.Domain, "sip-domain", "", "SIP realm/domain")
	flag.StringVar(&cfg.DisplayName, "sip-display-name", "", "SIP display name")
	flag.StringVar(&cfg.ContactName, "sip-contact-name", "", "SIP contact user part")
	flag.BoolVar(&cfg.Trace, "sip-trace", false, "log raw SIP messages")
	flag.BoolVar(&cfg.EnableBLF, "sip-enable-blf", true, "enable BLF dialog-info subscriptions")
	flag.BoolVar(&cfg.AutoAnswer, "sip-auto-answer", false, "auto-answer incoming calls when idle")

	var iceServers string
	flag.StringVar(&iceServers, "sip-ice-servers", "", "comma-separated ICE/STUN server URIs")

	if flag.Parsed() {
		// cmd/softphone's tests may have already parsed flags once.
	} else {
		flag.Parse()
	}

	if v := strings.TrimSpace(iceServers); v != "" {
		cfg.ICEServers = splitList(v)
	}

	applyEnvOverrides(&cfg)

	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = []string{DefaultSTUNServer}
	}
	return cfg
}

func applyEnvOverrides(cfg *SipConfig) {
	if v := os.Getenv("SIP_SERVER"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("SIP_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("SIP_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("SIP_DOMAIN"); v != "" {
		cfg.Domain = v
	}
	if v := os.Getenv("SIP_DISPLAY_NAME"); v != "" {
		cfg.DisplayName = v
	}
	if v := os.Getenv("SIP_REGISTER_EXPIRES"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.RegisterExpires = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SIP_ICE_SERVERS"); v != "" {
		cfg.ICEServers = splitList(v)
	}
	if v := os.Getenv("SIP_TRACE"); v != "" {
		cfg.Trace = v == "1" || strings.EqualFold(v, "true")
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Merge returns a copy of cfg with every non-zero field of partial applied on
// top, matching configure(partial)'s "merges into config, never mutates a
// config already handed to a running user agent" contract.
func (cfg SipConfig) Merge(partial SipConfig) SipConfig {
	out := cfg
	if partial.ServerURL != "" {
		out.ServerURL = partial.ServerURL
	}
	if partial.Username != "" {
		out.Username = partial.Username
	}
	if partial.Password != "" {
		out.Password = partial.Password
	}
	if partial.Domain != "" {
		out.Domain = partial.Domain
	}
	if partial.DisplayName != "" {
		out.DisplayName = partial.DisplayName
	}
	if partial.ContactName != "" {
		out.ContactName = partial.ContactName
	}
	if partial.RegisterExpires != 0 {
		out.RegisterExpires = partial.RegisterExpires
	}
	if len(partial.ICEServers) > 0 {
		out.ICEServers = partial.ICEServers
	}
	if partial.BundlePolicy != "" {
		out.BundlePolicy = partial.BundlePolicy
	}
	if partial.RTCPMuxPolicy != "" {
		out.RTCPMuxPolicy = partial.RTCPMuxPolicy
	}
	if partial.ICEGatheringTimeout != 0 {
		out.ICEGatheringTimeout = partial.ICEGatheringTimeout
	}
	if partial.KeepAliveInterval != 0 {
		out.KeepAliveInterval = partial.KeepAliveInterval
	}
	if partial.KeepAliveMaxFailures != 0 {
		out.KeepAliveMaxFailures = partial.KeepAliveMaxFailures
	}
	if partial.NoAnswerTimeout != 0 {
		out.NoAnswerTimeout = partial.NoAnswerTimeout
	}
	// Trace/EnableBLF/AutoAnswer are booleans with meaningful false values;
	// callers that want to flip them off pass a full replacement config.
	out.Trace = out.Trace || partial.Trace
	out.EnableBLF = out.EnableBLF || partial.EnableBLF
	out.AutoAnswer = out.AutoAnswer || partial.AutoAnswer
	return out
}

// Validate reports errkind.InvalidConfig when a field required to actually
// start a user agent is missing. configure(partial) itself never validates;
// createUserAgent does, per spec.md §4.1.
func (cfg SipConfig) Validate() error {
	var missing []string
	if cfg.ServerURL == "" {
		missing = append(missing, "ServerURL")
	}
	if cfg.Username == "" {
		missing = append(missing, "Username")
	}
	if cfg.Domain == "" {
		missing = append(missing, "Domain")
	}
	if len(missing) > 0 {
		return errkind.Wrap(errkind.InvalidConfig, fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")))
	}
	if len(cfg.ICEServers) == 0 {
		return errkind.Wrap(errkind.InvalidConfig, "no ICE servers configured")
	}
	return nil
}

// EffectiveDisplayName returns cfg.DisplayName, falling back to
// "{username}-365Connect" when none is set.
func (cfg SipConfig) EffectiveDisplayName() string {
	if cfg.DisplayName != "" {
		return cfg.DisplayName
	}
	return cfg.Username + "-365Connect"
}

// EffectiveContactName returns cfg.ContactName, falling back to the username.
func (cfg SipConfig) EffectiveContactName() string {
	if cfg.ContactName != "" {
		return cfg.ContactName
	}
	return cfg.Username
}
