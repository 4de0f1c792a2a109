// Package discovery advertises and finds ferry endpoints on the local network.
//
// Key pieces:
//   - Announcer registers the local endpoint under the fixed DNS-SD namespace
//     and returns an Announcement that withdraws it on Close.
//   - Browser runs one browse session on a Source for a time budget and feeds
//     every resolved/removed event into a Store.
//   - Store merges repeated observations of the same service (case-insensitive
//     fullname) with union/overwrite semantics.
//   - Score ranks addresses by how likely a peer can reach them; lower is better.
//
// Concrete mDNS backends live in the zeroconf and hashimdns subpackages.
package discovery
