// Package barrier implements the PBSM cluster's C4 component: global
// rendezvous keyed by a 32-bit site identifier, serialized through node 0.
//
// Non-coordinator nodes send BARRIER_ENTER to node 0 and block until they
// observe BARRIER_RELEASE for the same site. Node 0 tracks a per-site
// counter initialized to the cluster size on first observation (whether
// that observation is its own local Enter call or a remote
// BARRIER_ENTER); when the counter reaches zero it broadcasts
// BARRIER_RELEASE and discards the counter.
//
// Every node, including the coordinator, also keeps a per-site "pending"
// entry purely to let its own Enter call block until the rendezvous
// completes; the coordinator's pending entry is signaled locally the
// instant its own counter reaches zero, without a network round-trip to
// itself. A node that calls Enter again for the same site after the prior
// round's pending entry has been cleared always gets a fresh entry for the
// new round, which is what keeps back-to-back rendezvous at the same site
// id from conflating rounds, without needing any round number on the wire.
package barrier
