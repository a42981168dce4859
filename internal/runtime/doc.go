// Package runtime wires transport, registry, coherence, and barrier into
// the single owned, explicitly-constructed process-wide context every
// PBSM node runs, and exposes the five-callback access façade contract
// external code integrates against: BeforeRead, BeforeWrite, AfterWrite,
// OnCreate/OnDestroy, and Barrier.
//
// There is no singleton and no double-checked locking anywhere in this
// package: cmd/pbsm-node constructs exactly one *Context and passes it by
// reference to everything that needs it, the same shape torua's Node and
// server types use in their own cmd/ entry points.
//
// Context.Start spawns exactly N-1 receiver goroutines, one per peer, each
// looping on a blocking header receive, an optional payload receive, and a
// dispatch to either the coherence engine or the barrier coordinator based
// on message kind. A receive error on any of them is treated as a fatal
// transport failure and terminates the process, unless Stop has already
// been called, in which case the goroutine exits quietly; there is no
// reconnection logic anywhere in this package.
package runtime
