package identity

import (
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
)

// VerifyMode selects how a client checks the server certificate.
type VerifyMode int

const (
	// VerifyInsecure accepts any certificate.
	VerifyInsecure VerifyMode = iota
	// VerifyFingerprint requires the leaf SHA-256 to match a pinned value.
	VerifyFingerprint
)

func (m VerifyMode) String() string {
	switch m {
	case VerifyFingerprint:
		return "fingerprint"
	default:
		return "insecure"
	}
}

// ParseVerifyMode accepts "insecure" (or empty) and "fingerprint".
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "insecure":
		return VerifyInsecure, nil
	case "fingerprint":
		return VerifyFingerprint, nil
	}
	return VerifyInsecure, fmt.Errorf("unknown verify mode %q", s)
}

var (
	ErrFingerprintMismatch = errors.New("server certificate fingerprint mismatch")
	ErrNoCertificate       = errors.New("server presented no certificate")
	ErrNoFingerprint       = errors.New("fingerprint verification requires an expected fingerprint")
)

// Policy is the client-side verification policy.
type Policy struct {
	Mode        VerifyMode
	Fingerprint string
}

// Insecure reports whether the peer is accepted unverified.
func (p Policy) Insecure() bool { return p.Mode == VerifyInsecure }

// Pin returns a copy of p that pins fp when fp is non-empty.
func (p Policy) Pin(fp string) Policy {
	if fp != "" {
		p.Mode = VerifyFingerprint
		p.Fingerprint = fp
	}
	return p
}

// ClientTLS builds a TLS 1.3 client configuration. Chain validation is always
// off (certificates are self-signed); in fingerprint mode the leaf is pinned.
func (p Policy) ClientTLS(serverName string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
	}
	if p.Mode != VerifyFingerprint {
		return cfg, nil
	}
	want := NormalizeFingerprint(p.Fingerprint)
	if want == "" {
		return nil, ErrNoFingerprint
	}
	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrNoCertificate
		}
		got := Fingerprint(rawCerts[0])
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			return fmt.Errorf("%w: got %s", ErrFingerprintMismatch, got)
		}
		return nil
	}
	return cfg, nil
}

// ServerName picks a TLS server name for a dial target: the host part when it
// is a name, "localhost" for IP literals.
func ServerName(target string) string {
	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	}
	if host == "" || parseIP(host) != nil {
		return "localhost"
	}
	return strings.TrimSuffix(host, ".")
}

func parseIP(s string) net.IP {
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	return net.ParseIP(s)
}
