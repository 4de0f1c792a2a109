package transport

import (
	"time"

	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/config"
)

// Options are the tunables shared by every substrate.
type Options struct {
	// HandshakeTimeout bounds dial plus handshake.
	HandshakeTimeout time.Duration
	// IdleTimeout closes connections without traffic (where supported).
	IdleTimeout time.Duration
	// Linger is how long Close waits for the peer to read a message sent
	// after our last receive.
	Linger time.Duration
	// MaxMessageBytes bounds Receive.
	MaxMessageBytes int64
	Logger          *zap.Logger
}

// OptionsFrom maps the transport configuration section.
func OptionsFrom(c config.TransportConfig) Options {
	return Options{
		HandshakeTimeout: c.HandshakeTimeout(),
		IdleTimeout:      c.IdleTimeout(),
		Linger:           c.Linger(),
		MaxMessageBytes:  int64(c.MaxMessageBytes),
	}
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Second
	}
	if o.Linger <= 0 {
		o.Linger = time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	return o
}
