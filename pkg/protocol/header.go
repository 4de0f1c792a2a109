package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Fixed header layout (12 bytes). Integers are little-endian.
//
//	0  ..1   Magic   'F''Y' (0x5946)
//	2        Version u8
//	3        Type    u8
//	4        Format  u8
//	5  ..7   Reserved
//	8  ..11  PayloadLen u32
const (
	HeaderSize = 12
	magicWord  = uint16(0x5946)
)

var (
	ErrShortHeader = errors.New("short header")
	ErrBadMagic    = errors.New("bad magic")
)

// Header describes a frame payload.
type Header struct {
	Version    uint8
	Type       uint8
	Format     Format
	PayloadLen uint32
}

// MarshalBinary encodes the header into a HeaderSize buffer.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], magicWord)
	buf[2] = h.Version
	buf[3] = h.Type
	buf[4] = byte(h.Format)
	binary.LittleEndian.PutUint32(buf[8:12], h.PayloadLen)
	return buf, nil
}

// UnmarshalBinary decodes the header from the first HeaderSize bytes of buf.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrShortHeader
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != magicWord {
		return ErrBadMagic
	}
	h.Version = buf[2]
	if h.Version == 0 || h.Version > Version {
		return fmt.Errorf("unsupported frame version %d", h.Version)
	}
	h.Type = buf[3]
	h.Format = Format(buf[4])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[8:12])
	return nil
}
