package protocol

// Message types carried in the frame header.
const (
	MsgUnknown uint8 = iota
	MsgHello         // client greeting
	MsgWelcome       // server reply to hello
	MsgReject        // server refused the session
)

// Content types of the payload codecs.
const (
	ContentUnknown = "application/octet-stream"
	ContentCBOR    = "application/cbor"
	ContentJSON    = "application/json"
	ContentProto   = "application/x-protobuf"
)

// Version is the frame layout version this package writes.
const Version uint8 = 1
