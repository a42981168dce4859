// Package transport implements the PBSM cluster's C1 component: a
// reliable, FIFO-per-ordered-pair byte channel between every pair of
// nodes, built over TCP.
//
// The protocol requires a connection-oriented, ordered substrate (see
// wire.HeaderSize and the package-level docs in internal/wire); it
// explicitly rules out unreliable datagrams because SendPair's
// header-then-payload contract depends on in-order delivery. The reference
// implementation this package is modeled on used one UDP socket per
// direction per peer; this package keeps that same per-direction split but
// realizes it with TCP, which gives FIFO delivery and loss detection for
// free.
//
// Each node opens exactly one outbound connection per peer (dialing
// BASE+peerID on the peer's configured address) and accepts exactly N-1
// inbound connections on its own listener (bound to BASE+selfID). Because a
// bare TCP accept does not identify the caller, every outbound connection
// writes a 4-byte little-endian node id as its first bytes; the listener
// reads that handshake to route the accepted socket to the right peer
// slot. This handshake is local wiring only, not part of the wire.Header
// format that flows over the connection afterward.
//
// A transport error on any connection is fatal to the process: Client code
// is expected to log and exit rather than attempt reconnection, matching
// the "no reconnection, no backoff" failure semantics of the coherence
// protocol this package carries.
package transport
