// Package identity holds the per-process TLS identity of a ferry endpoint and
// the policy used to verify a peer's identity.
//
// There is no persistent or CA-issued identity: every process start produces
// a fresh self-signed certificate. Peers either skip verification (insecure)
// or pin the SHA-256 fingerprint they learned out of band, usually from the
// "fp" discovery attribute.
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ALPN is the application protocol negotiated on every encrypted substrate.
const ALPN = "ferry/1"

const validity = 7 * 24 * time.Hour

// Identity is a self-signed certificate and its key.
type Identity struct {
	Cert        tls.Certificate
	Leaf        *x509.Certificate
	fingerprint string
}

// Generate creates an ECDSA P-256 self-signed certificate valid for names
// (DNS names or IP literals). "localhost" is always included.
func Generate(names ...string) (*Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "ferry"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	for _, n := range names {
		addName(tmpl, n)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Cert:        tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf},
		Leaf:        leaf,
		fingerprint: Fingerprint(der),
	}, nil
}

func addName(tmpl *x509.Certificate, n string) {
	n = strings.TrimSpace(n)
	if n == "" {
		return
	}
	if ip := parseIP(n); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		return
	}
	for _, existing := range tmpl.DNSNames {
		if strings.EqualFold(existing, n) {
			return
		}
	}
	tmpl.DNSNames = append(tmpl.DNSNames, n)
}

// Fingerprint returns the lowercase hex SHA-256 of the leaf certificate.
func (id *Identity) Fingerprint() string { return id.fingerprint }

// ServerTLS returns a TLS 1.3 server configuration presenting this identity.
func (id *Identity) ServerTLS() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.Cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}
}

// Fingerprint hashes a DER certificate.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// NormalizeFingerprint lowercases and strips ':' and whitespace separators.
func NormalizeFingerprint(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', ' ', '\t', '-':
			return -1
		}
		if r >= 'A' && r <= 'F' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// LogInsecure warns that a client will not verify its peer.
func LogInsecure(logger *zap.Logger, kind string) {
	if logger == nil {
		logger = zap.L()
	}
	logger.Warn("peer identity is NOT verified; set transport.verify=fingerprint to pin the server certificate",
		zap.String("transport", kind))
}
