// Package registry implements the PBSM cluster's C2 component: the
// mapping from variable id to per-variable coherence record, and the
// lifecycle hooks (OnCreate, OnDestroy, Lookup) the runtime layer calls
// into.
//
// The id-to-record map is backed by a sharded concurrent map
// (github.com/orcaman/concurrent-map/v2) rather than a single
// sync.RWMutex-guarded map. Insert, lookup, and remove are each atomic
// with respect to the map itself; the registry never holds the map's
// internal shard lock while blocking on a record's condition variables or
// while performing network I/O, which preserves the lock-ordering
// discipline the coherence engine depends on: registry access first, then
// at most one record lock, never the reverse.
package registry
