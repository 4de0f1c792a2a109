// Package errs defines the error taxonomy shared by discovery and transport.
//
// Every error that leaves a public operation is an *Error carrying a Kind and
// the name of the operation that failed, so callers can branch on the class of
// failure without string matching:
//
//	if errs.Is(err, errs.KindPrecondition) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindDiscovery means the discovery subsystem failed to start, browse or register.
	KindDiscovery
	// KindConfig means a malformed service record or invalid configuration.
	KindConfig
	// KindConnect means dialing or the connection handshake failed.
	KindConnect
	// KindStream means send, receive or close failed; the connection is unusable.
	KindStream
	// KindPrecondition means the API was used out of order (programmer error).
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindDiscovery:
		return "discovery"
	case KindConfig:
		return "config"
	case KindConnect:
		return "connect"
	case KindStream:
		return "stream"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind
	// Op names the failed operation, e.g. "quic.connect" or "discovery.announce".
	Op string
	// Err is the underlying cause.
	Err error
}

// E builds an *Error. If err is already an *Error of the same kind it is
// returned unchanged so the innermost operation name survives.
func E(kind Kind, op string, err error) error {
	if err == nil {
		err = errors.New(kind.String() + " error")
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is E with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return E(kind, op, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
