package protocol

import (
	"fmt"

	"github.com/AriBhuiya/ferry/pkg/protocol/codec"
)

// Frame is one typed message: a header and its encoded payload. A ferry
// transport carries exactly one frame per direction.
type Frame struct {
	Header  Header
	Payload []byte
}

// NewFrame encodes v with format f into a frame of type typ.
func NewFrame(typ uint8, f Format, v any, reg *codec.Registry) (Frame, error) {
	b, err := EncodeBody(reg, f, v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Header:  Header{Version: Version, Type: typ, Format: f, PayloadLen: uint32(len(b))},
		Payload: b,
	}, nil
}

// Decode unmarshals the payload into v using the header's format.
func (fr *Frame) Decode(v any, reg *codec.Registry) error {
	return DecodeBody(reg, fr.Header.Format, fr.Payload, v)
}

// MarshalBinary returns header + payload.
func (fr *Frame) MarshalBinary() ([]byte, error) {
	fr.Header.PayloadLen = uint32(len(fr.Payload))
	hb, err := fr.Header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(hb, fr.Payload...), nil
}

// UnmarshalBinary parses a whole message. The payload length must match
// the bytes after the header exactly.
func (fr *Frame) UnmarshalBinary(buf []byte) error {
	if err := fr.Header.UnmarshalBinary(buf); err != nil {
		return err
	}
	rest := buf[HeaderSize:]
	if uint64(len(rest)) != uint64(fr.Header.PayloadLen) {
		return fmt.Errorf("payload length %d, header says %d", len(rest), fr.Header.PayloadLen)
	}
	fr.Payload = append([]byte(nil), rest...)
	return nil
}
