package registry

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// ErrAlreadyExists is returned by OnCreate when a record for the given
// variable id already exists on this node.
var ErrAlreadyExists = errors.New("registry: variable already exists")

// ErrUnknownVariable is returned by OnDestroy, and by callers of Lookup
// that choose to treat a miss as an error instead of a silent drop.
var ErrUnknownVariable = errors.New("registry: unknown variable")

// Registry maps variable ids to their coherence records for one node. Its
// id→record map is safe for concurrent insert, lookup, and remove without
// an external lock; per-record synchronization is the record's own
// responsibility (see Record).
type Registry struct {
	selfID  int
	records cmap.ConcurrentMap[string, *Record]
}

// New constructs an empty Registry for a node whose own index is selfID.
// selfID determines the initial state OnCreate assigns: OwnerShared on
// the coordinator (selfID == 0), RemoteStale everywhere else, so a
// non-coordinator's first read always fetches rather than risking a read
// of whatever bytes happened to initialize the local copy.
func New(selfID int) *Registry {
	return &Registry{
		selfID:  selfID,
		records: cmap.New[*Record](),
	}
}

func key(varID uint32) string {
	return strconv.FormatUint(uint64(varID), 10)
}

// OnCreate inserts a new record for varID with the given initial payload.
// A second call for the same id returns ErrAlreadyExists without modifying
// the existing record.
func (r *Registry) OnCreate(varID uint32, initialPayload []byte) error {
	k := key(varID)
	if _, exists := r.records.Get(k); exists {
		return fmt.Errorf("%w: %d", ErrAlreadyExists, varID)
	}

	var rec *Record
	if r.selfID == 0 {
		rec = NewRecord(varID, OwnerShared, r.selfID, initialPayload)
	} else {
		rec = NewRecord(varID, RemoteStale, 0, initialPayload)
	}

	// SetIfAbsent closes the narrow race between the Get above and this
	// insert without ever holding the map's shard lock across a record
	// lock or blocking call.
	if !r.records.SetIfAbsent(k, rec) {
		return fmt.Errorf("%w: %d", ErrAlreadyExists, varID)
	}
	return nil
}

// OnDestroy removes the record for varID and returns it so the caller can
// broadcast its final payload. It is the caller's responsibility to
// perform that broadcast outside of any registry or record lock.
func (r *Registry) OnDestroy(varID uint32) (*Record, error) {
	k := key(varID)
	rec, ok := r.records.Get(k)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariable, varID)
	}
	r.records.Remove(k)
	return rec, nil
}

// Lookup returns the record for varID, or ok=false if no such record
// exists on this node. A miss is expected and routine on receive paths
// (a late message for an already-destroyed variable); callers there should
// log and drop rather than treat it as an error.
func (r *Registry) Lookup(varID uint32) (*Record, bool) {
	return r.records.Get(key(varID))
}

// Count returns the number of live records, used only for diagnostics and
// tests.
func (r *Registry) Count() int {
	return r.records.Count()
}

// VarIDs returns a sorted snapshot of every variable id currently live on
// this node, for diagnostics and tests that need a stable iteration order
// over a map that otherwise gives none.
func (r *Registry) VarIDs() []uint32 {
	keys := r.records.Keys()
	ids := make([]uint32, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(id))
	}
	slices.Sort(ids)
	return ids
}
