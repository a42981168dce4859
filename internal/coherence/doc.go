// Package coherence implements the cluster's ownership and caching
// protocol: a per-variable, MSI-like state machine that keeps exactly one
// node authoritative for each shared variable at any instant, while letting
// every other node hold a read-only cached copy.
//
// # Overview
//
// Every node that knows about a variable keeps a Record (internal/registry)
// describing its own view of that variable: its state, who it currently
// believes the owner is, and its last-known payload bytes. Engine is the
// state machine that keeps those per-node views consistent by exchanging a
// small fixed set of protocol messages over Transport. There is no global
// lock and no leader election beyond the one already implied by "node 0 is
// where every variable starts out owned" - ownership itself migrates freely
// between nodes as writes occur.
//
// # State machine
//
//	        local read (stale)          local write (cached/stale)
//	              │                              │
//	              ▼                              ▼
//	   ┌─────────────────┐            ┌──────────────────┐
//	   │  REMOTE_STALE    │           │  (send REQ_OWN,   │
//	   │  (no valid copy) │           │   wait for grant) │
//	   └─────────────────┘           └──────────────────┘
//	              │ SET_VALUE                    │ GRANT_OWN
//	              ▼                              ▼
//	   ┌─────────────────┐  INVALIDATE  ┌──────────────────┐
//	   │ REMOTE_CACHED    │◀────────────│ OWNER_EXCLUSIVE  │
//	   │ (valid, read-only)│  INVAL_ACK  │ (sole copy)      │
//	   └─────────────────┘────────────▶└──────────────────┘
//	                                             │ remote ASK_VALUE
//	                                             ▼
//	                                    ┌──────────────────┐
//	                                    │  OWNER_SHARED     │
//	                                    │ (owner + readers) │
//	                                    └──────────────────┘
//
// Only OwnerExclusive is locally writable without any message exchange.
// OwnerShared first broadcasts INVALIDATE and waits for every INVAL_ACK,
// and the two remote states need a REQ_OWN/GRANT_OWN exchange, before a
// local write can proceed.
//
// # Local events
//
// BeforeRead blocks only when the record is RemoteStale: it sends ASK_VALUE
// to the last-known owner and waits on the record's ValueReady condition
// until a SET_VALUE resolves it. RemoteCached and either owner state return
// immediately.
//
// BeforeWrite blocks unless the record is already OwnerExclusive. From
// OwnerShared it broadcasts INVALIDATE to every other node, waits for all
// INVAL_ACKs to drain pending_invalidations to zero, then promotes itself.
// From RemoteCached or RemoteStale it broadcasts REQ_OWN and waits on the
// OwnershipGranted condition, possibly chasing a SET_OWNER redirect first.
//
// # Remote events
//
// Dispatch routes one inbound message per call, driven by the per-peer
// receiver goroutine in internal/runtime. Every handler holds the record's
// lock for its entire critical section, so a message's effect and the
// state change it causes are never split across an interleaved local
// access:
//
//	REQ_OWN     owner state  -> GRANT_OWN, self demotes to RemoteStale
//	REQ_OWN     remote state -> SET_OWNER (redirect to the believed owner)
//	GRANT_OWN   -> promote to OwnerExclusive, wake OwnershipGranted
//	SET_OWNER   -> advisory only; re-issue REQ_OWN at the hinted owner
//	ASK_VALUE   owner state  -> SET_VALUE reply, self demotes to OwnerShared
//	ASK_VALUE   remote state -> SET_OWNER (redirect)
//	SET_VALUE   -> store payload, RemoteStale -> RemoteCached, wake ValueReady
//	INVALIDATE  -> ack, demote to RemoteStale
//	INVAL_ACK   -> decrement pending_invalidations, wake drain waiters at zero
//
// SET_OWNER is purely advisory: it never itself grants ownership, only
// redirects a pending requester's re-issued REQ_OWN toward a better-informed
// peer, and a stale one arriving after the requester's ownership has
// already resolved is silently dropped - not logged as a violation. A
// GRANT_OWN received with no request outstanding, or an INVAL_ACK received
// after pending_invalidations has already reached zero, are both genuine
// protocol violations: logged and dropped, never fatal.
//
// # Concurrency
//
// One Engine per node, shared by every accessor goroutine and the receiver
// goroutines for every peer. All synchronization is per-record
// (record.Mu plus its three sync.Cond fields); there is no engine-wide
// lock, so unrelated variables never contend with each other.
//
// # Failure handling
//
// A Send failure while replying to a remote event is logged and the
// handler returns; where the reply is what completes a transition
// (GRANT_OWN, SET_VALUE, INVAL_ACK) the record's state is left unchanged.
// A failed send is not retried, and the remote waiter has no timeout.
// BeforeRead returns a failed ASK_VALUE send to its caller as an error;
// BeforeWrite does not check the results of its INVALIDATE or REQ_OWN
// broadcast. Any error
// from Transport itself (a broken connection) is the receiver loop's
// concern, not this package's; Engine only ever sees bytes that arrived
// intact.
package coherence
