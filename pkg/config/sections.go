package config

import (
	"fmt"
	"strings"
	"time"
)

// DiscoveryConfig selects the mDNS backend and the service namespace.
// Example YAML:
// discovery:
//
//	backend: zeroconf        # or hashicorp
//	service_type: _ferry._tcp
//	domain: local.
//	poll_interval_ms: 200
//	browse_interval_ms: 2000
type DiscoveryConfig struct {
	Backend          string `mapstructure:"backend"`
	ServiceType      string `mapstructure:"service_type"`
	Domain           string `mapstructure:"domain"`
	PollIntervalMS   int    `mapstructure:"poll_interval_ms"`
	BrowseIntervalMS int    `mapstructure:"browse_interval_ms"`
}

func DefaultDiscovery() DiscoveryConfig {
	return DiscoveryConfig{
		Backend:          "zeroconf",
		ServiceType:      "_ferry._tcp",
		Domain:           "local.",
		PollIntervalMS:   200,
		BrowseIntervalMS: 2000,
	}
}

func (d DiscoveryConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMS) * time.Millisecond
}

func (d DiscoveryConfig) BrowseInterval() time.Duration {
	return time.Duration(d.BrowseIntervalMS) * time.Millisecond
}

func (d *DiscoveryConfig) validate() error {
	d.Backend = strings.ToLower(strings.TrimSpace(d.Backend))
	switch d.Backend {
	case "":
		d.Backend = "zeroconf"
	case "zeroconf", "hashicorp":
	default:
		return fmt.Errorf("invalid discovery.backend: %q", d.Backend)
	}
	if !strings.HasPrefix(d.ServiceType, "_") {
		return fmt.Errorf("invalid discovery.service_type: %q", d.ServiceType)
	}
	if d.Domain == "" {
		d.Domain = "local."
	}
	if d.PollIntervalMS <= 0 {
		d.PollIntervalMS = 200
	}
	if d.BrowseIntervalMS < 0 {
		return fmt.Errorf("invalid discovery.browse_interval_ms: %d", d.BrowseIntervalMS)
	}
	return nil
}

// TransportConfig describes the connection substrate and its trust policy.
// Example YAML:
// transport:
//
//	kind: quic               # quic | tls | tcp | winpipe
//	verify: fingerprint      # insecure | fingerprint
//	max_message_bytes: 16777216
type TransportConfig struct {
	Kind string `mapstructure:"kind"`
	// Verify is the peer identity policy on the client side.
	Verify string `mapstructure:"verify"`
	// Fingerprint pins the expected server certificate (hex SHA-256) when
	// the target is given as a literal address.
	Fingerprint        string `mapstructure:"fingerprint"`
	MaxMessageBytes    int    `mapstructure:"max_message_bytes"`
	HandshakeTimeoutMS int    `mapstructure:"handshake_timeout_ms"`
	IdleTimeoutMS      int    `mapstructure:"idle_timeout_ms"`
	// LingerMS bounds how long Close waits for the peer to read the last
	// message before tearing the connection down.
	LingerMS int `mapstructure:"linger_ms"`
}

func DefaultTransport() TransportConfig {
	return TransportConfig{
		Kind:               "quic",
		Verify:             "insecure",
		MaxMessageBytes:    16 << 20,
		HandshakeTimeoutMS: 5000,
		IdleTimeoutMS:      30000,
		LingerMS:           1000,
	}
}

func (t TransportConfig) HandshakeTimeout() time.Duration {
	return time.Duration(t.HandshakeTimeoutMS) * time.Millisecond
}

func (t TransportConfig) IdleTimeout() time.Duration {
	return time.Duration(t.IdleTimeoutMS) * time.Millisecond
}

func (t TransportConfig) Linger() time.Duration {
	return time.Duration(t.LingerMS) * time.Millisecond
}

func (t *TransportConfig) validate() error {
	t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
	switch t.Kind {
	case "":
		t.Kind = "quic"
	case "quic", "tls", "tcp", "winpipe":
	default:
		return fmt.Errorf("invalid transport.kind: %q", t.Kind)
	}
	t.Verify = strings.ToLower(strings.TrimSpace(t.Verify))
	switch t.Verify {
	case "":
		t.Verify = "insecure"
	case "insecure", "fingerprint":
	default:
		return fmt.Errorf("invalid transport.verify: %q", t.Verify)
	}
	t.Fingerprint = strings.ToLower(strings.TrimSpace(t.Fingerprint))
	if t.MaxMessageBytes <= 0 {
		t.MaxMessageBytes = 16 << 20
	}
	if t.HandshakeTimeoutMS <= 0 {
		t.HandshakeTimeoutMS = 5000
	}
	if t.IdleTimeoutMS <= 0 {
		t.IdleTimeoutMS = 30000
	}
	if t.LingerMS < 0 {
		t.LingerMS = 0
	}
	return nil
}

// ServeConfig holds the serve entry point options.
type ServeConfig struct {
	// Host is the bind address (default 127.0.0.1).
	Host string `mapstructure:"host"`
	// Port is the bind port (default 3625 = DOCK on T9).
	Port int `mapstructure:"port"`
	// Name is the advertised instance name; empty means a generated one.
	Name string `mapstructure:"name"`
	// Dir is the session root directory.
	Dir string `mapstructure:"dir"`
	// Once stops serving after the first session.
	Once bool `mapstructure:"once"`
}

func DefaultServe() ServeConfig {
	return ServeConfig{Host: "127.0.0.1", Port: 3625, Dir: "."}
}

func (s *ServeConfig) validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid serve.port: %d", s.Port)
	}
	if strings.TrimSpace(s.Host) == "" {
		s.Host = "127.0.0.1"
	}
	if s.Dir == "" {
		s.Dir = "."
	}
	s.Name = strings.TrimSpace(s.Name)
	return nil
}

// SessionConfig controls the greeting exchanged on a new connection.
type SessionConfig struct {
	// Codec: cbor, json or proto
	Codec string `mapstructure:"codec"`
}

// MetricsConfig controls Prometheus exposition.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Listen    string `mapstructure:"listen"`
	Namespace string `mapstructure:"namespace"`
}
