package protocol

import (
	"fmt"
	"strings"

	"github.com/AriBhuiya/ferry/pkg/protocol/codec"
)

// Format is the on-wire indicator of payload encoding, carried in the
// frame header.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatCBOR
	FormatProto
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return ContentJSON
	case FormatCBOR:
		return ContentCBOR
	case FormatProto:
		return ContentProto
	default:
		return ContentUnknown
	}
}

// ParseFormat maps a configuration name (json, cbor, proto) to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, nil
	case "", "cbor":
		return FormatCBOR, nil
	case "proto", "protobuf":
		return FormatProto, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown format: %q", name)
	}
}

// CodecFor returns the registered codec for f.
func CodecFor(r *codec.Registry, f Format) (codec.Codec, error) {
	if f == FormatUnknown || f > FormatProto {
		return nil, fmt.Errorf("unknown format: %d", f)
	}
	c := r.Get(f.String())
	if c == nil {
		return nil, fmt.Errorf("no codec registered for %s", f)
	}
	return c, nil
}

// EncodeBody serializes v with the codec for f.
func EncodeBody(r *codec.Registry, f Format, v any) ([]byte, error) {
	c, err := CodecFor(r, f)
	if err != nil {
		return nil, err
	}
	return c.Marshal(v)
}

// DecodeBody decodes a payload written by EncodeBody with the same format.
func DecodeBody(r *codec.Registry, f Format, payload []byte, v any) error {
	c, err := CodecFor(r, f)
	if err != nil {
		return err
	}
	return c.Unmarshal(payload, v)
}
