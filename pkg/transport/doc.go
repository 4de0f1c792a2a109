// Package transport defines the ferry transport interfaces and the helpers
// shared by every substrate.
//
// Key concepts:
//   - Transport: one live connection plus one bidirectional stream. Each side
//     sends exactly one whole message (write then half-close) and receives the
//     peer's whole message (read until the peer half-closes).
//   - Client: opens a new Transport per Connect, reusing its local endpoint
//     where the substrate has one (quic).
//   - Server: Listen binds once (idempotent); Accept yields one Transport per
//     inbound connection after its handshake.
//
// Substrates live in subpackages: quic (encrypted, multiplexed, UDP),
// stream (tcp and tls over net.Conn), winpipe (Windows named pipes) and mem
// (in-process).
package transport
