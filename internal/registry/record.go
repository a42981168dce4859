package registry

import (
	"sync"

	"golang.org/x/time/rate"
)

// State is one of the four coherence states a record for a variable can be
// in on a given node.
type State int

const (
	// OwnerExclusive: this node holds the only writable copy and no other
	// node has a cached copy.
	OwnerExclusive State = iota + 1
	// OwnerShared: this node is the owner but one or more peers may hold a
	// cached copy that must be invalidated before the next local write.
	OwnerShared
	// RemoteCached: this node holds a read-only copy believed current.
	RemoteCached
	// RemoteStale: this node's copy, if any, must be refreshed from the
	// owner before the next local read.
	RemoteStale
)

func (s State) String() string {
	switch s {
	case OwnerExclusive:
		return "OWNER_EXCLUSIVE"
	case OwnerShared:
		return "OWNER_SHARED"
	case RemoteCached:
		return "REMOTE_CACHED"
	case RemoteStale:
		return "REMOTE_STALE"
	default:
		return "UNKNOWN_STATE"
	}
}

// Record is the per-variable coherence record held in every node's
// registry for every variable that node has declared. Its lock guards
// State, Owner, the payload buffer, PendingInvalidations, and the three
// wait conditions. The coherence engine holds it while sending the
// message that goes with a state transition, so the two stay consistent.
type Record struct {
	VarID uint32

	Mu    sync.Mutex
	state State
	owner int // meaningful only when State is RemoteCached or RemoteStale

	payload []byte

	ValueReady            *sync.Cond
	OwnershipGranted      *sync.Cond
	InvalidationsDrained  *sync.Cond

	PendingInvalidations int32 // guarded by Mu; not accessed outside it

	// Limiter paces re-issuance of REQ_OWN on a SET_OWNER cascade, so a
	// contended variable does not flood the network with ownership
	// requests. It does not change which state the record ends up in.
	Limiter *rate.Limiter

	// AwaitingOwnership is true between broadcasting REQ_OWN (or
	// re-issuing it after a SET_OWNER redirect) and receiving the
	// matching GRANT_OWN. A GRANT_OWN that arrives while this is false is
	// a protocol violation. Guarded by Mu.
	AwaitingOwnership bool
}

// NewRecord allocates a record in the given initial state with a copy of
// initialPayload as its starting bytes.
func NewRecord(varID uint32, state State, owner int, initialPayload []byte) *Record {
	r := &Record{
		VarID:   varID,
		state:   state,
		owner:   owner,
		payload: append([]byte(nil), initialPayload...),
		Limiter: rate.NewLimiter(rate.Limit(50), 10),
	}
	r.ValueReady = sync.NewCond(&r.Mu)
	r.OwnershipGranted = sync.NewCond(&r.Mu)
	r.InvalidationsDrained = sync.NewCond(&r.Mu)
	return r
}

// State returns the record's current state. Callers that need a
// consistent read across State and Owner should hold r.Mu instead.
func (r *Record) State() State {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.state
}

// StateLocked is State without acquiring r.Mu. Caller must already hold
// it; used by code that mutates the record across several fields inside a
// single critical section, such as the coherence engine's transition
// handlers.
func (r *Record) StateLocked() State {
	return r.state
}

// SetState sets the record's state. Caller must hold r.Mu.
func (r *Record) SetState(s State) {
	r.state = s
}

// Owner returns the record's current remote owner hint. Caller must hold
// r.Mu for a value consistent with a concurrently read State.
func (r *Record) Owner() int {
	return r.owner
}

// SetOwner sets the record's remote owner hint. Caller must hold r.Mu.
func (r *Record) SetOwner(id int) {
	r.owner = id
}

// Payload returns a copy of the record's current payload bytes, following
// the copy-out convention used throughout this codebase to prevent a
// caller from mutating state it does not own.
func (r *Record) Payload() []byte {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.PayloadLocked()
}

// PayloadLocked is Payload without acquiring r.Mu. Caller must already
// hold it.
func (r *Record) PayloadLocked() []byte {
	out := make([]byte, len(r.payload))
	copy(out, r.payload)
	return out
}

// SetPayload overwrites the record's payload with a copy of b. Caller must
// hold r.Mu.
func (r *Record) SetPayload(b []byte) {
	if cap(r.payload) >= len(b) {
		r.payload = r.payload[:len(b)]
	} else {
		r.payload = make([]byte, len(b))
	}
	copy(r.payload, b)
}
