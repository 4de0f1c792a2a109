// Package codec holds the payload encodings a ferry frame may carry.
package codec

import (
	"fmt"
	"sync"
)

// Codec marshals typed messages. Implementations are deterministic so the
// same value always yields the same bytes.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Codec
}

// NewRegistry returns a registry preloaded with JSON, CBOR and Protobuf.
func NewRegistry() (*Registry, error) {
	r := &Registry{byType: make(map[string]Codec)}
	cb, err := CBOR()
	if err != nil {
		return nil, fmt.Errorf("cbor codec: %w", err)
	}
	r.Register(JSON())
	r.Register(cb)
	r.Register(Proto())
	return r, nil
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	r.byType[c.ContentType()] = c
	r.mu.Unlock()
}

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[contentType]
}
