package coherence

import (
	"context"
	"fmt"
	"log"

	"github.com/northgate-labs/pbsm/internal/registry"
	"github.com/northgate-labs/pbsm/internal/wire"
)

// Transport is the subset of internal/transport.Transport the coherence
// engine needs: point-to-point and broadcast sends. Declared here, rather
// than imported from internal/transport, so the engine can be tested
// against a fake without opening real sockets.
type Transport interface {
	Send(dst int, b []byte) error
	SendPair(dst int, header, payload []byte) error
	Broadcast(b []byte) []error
	BroadcastPair(header, payload []byte) []error
}

// Engine runs the coherence protocol for one node: it backs the access
// façade's BeforeRead/BeforeWrite/OnCreate/OnDestroy calls and dispatches
// inbound protocol messages from every peer's receiver goroutine.
type Engine struct {
	selfID   int
	numNodes int
	reg      *registry.Registry
	tr       Transport
	logger   *log.Logger
}

// New constructs an Engine for a node whose own index is selfID, in a
// cluster of numNodes nodes, backed by reg for record storage and tr for
// message delivery.
func New(selfID, numNodes int, reg *registry.Registry, tr Transport, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{selfID: selfID, numNodes: numNodes, reg: reg, tr: tr, logger: logger}
}

func (e *Engine) violation(format string, args ...any) {
	e.logger.Printf("protocol violation: "+format, args...)
}

func (e *Engine) lookupOrDrop(varID uint32, context string) (*registry.Record, bool) {
	rec, ok := e.reg.Lookup(varID)
	if !ok {
		e.logger.Printf("%s: unknown variable %d, dropping", context, varID)
		return nil, false
	}
	return rec, true
}

// --- Local accessor events -------------------------------------------------

// BeforeRead blocks the calling goroutine until varID's record is in
// RemoteCached or an owner state, fetching the current value from the
// owner first if the record is RemoteStale.
func (e *Engine) BeforeRead(ctx context.Context, varID uint32) error {
	rec, ok := e.reg.Lookup(varID)
	if !ok {
		return fmt.Errorf("coherence: %w: %d", ErrUnknownVariable, varID)
	}

	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if rec.StateLocked() != registry.RemoteStale {
		return nil
	}

	owner := rec.Owner()
	header := wire.Marshal(wire.Header{Kind: wire.AskValue, ID: varID, Aux: uint64(e.selfID)})
	if err := e.tr.Send(owner, header); err != nil {
		return fmt.Errorf("coherence: send ASK_VALUE: %w", err)
	}

	for rec.StateLocked() == registry.RemoteStale {
		rec.ValueReady.Wait()
	}
	return nil
}

// BeforeWrite blocks the calling goroutine until varID's record is
// OwnerExclusive, acquiring ownership (and draining peer invalidations, or
// requesting the current owner grant it) first if necessary.
func (e *Engine) BeforeWrite(ctx context.Context, varID uint32) error {
	rec, ok := e.reg.Lookup(varID)
	if !ok {
		return fmt.Errorf("coherence: %w: %d", ErrUnknownVariable, varID)
	}

	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	switch rec.StateLocked() {
	case registry.OwnerExclusive:
		return nil

	case registry.OwnerShared:
		rec.PendingInvalidations = int32(e.numNodes - 1)
		header := wire.Marshal(wire.Header{Kind: wire.Invalidate, ID: varID, Aux: uint64(e.selfID)})
		e.tr.Broadcast(header)
		for rec.PendingInvalidations > 0 {
			rec.InvalidationsDrained.Wait()
		}
		rec.SetState(registry.OwnerExclusive)
		return nil

	case registry.RemoteCached, registry.RemoteStale:
		rec.AwaitingOwnership = true
		header := wire.Marshal(wire.Header{Kind: wire.ReqOwn, ID: varID, Aux: uint64(e.selfID)})
		e.tr.Broadcast(header)
		for rec.StateLocked() != registry.OwnerExclusive {
			rec.OwnershipGranted.Wait()
		}
		return nil

	default:
		return fmt.Errorf("coherence: record %d in invalid state %v", varID, rec.StateLocked())
	}
}

// OnCreate registers a new variable with the registry. See
// registry.Registry.OnCreate for the initial-state rule. A second create
// of the same id is a usage error: it is logged and returned.
func (e *Engine) OnCreate(varID uint32, initialPayload []byte) error {
	if err := e.reg.OnCreate(varID, initialPayload); err != nil {
		e.logger.Printf("usage error: OnCreate: %v", err)
		return err
	}
	return nil
}

// OnDestroy broadcasts payload as the variable's final value, then removes
// its record. A send failure during the broadcast is logged but does not
// prevent removal, matching the "failure to send is logged; removal still
// occurs" rule. Broadcasting before removal (rather than after) keeps the
// record visible to any receiver goroutine handling a stale in-flight
// message for this variable until the final value is actually on the wire.
func (e *Engine) OnDestroy(varID uint32, payload []byte) error {
	if _, ok := e.reg.Lookup(varID); !ok {
		e.logger.Printf("usage error: OnDestroy: unknown variable %d", varID)
		return fmt.Errorf("coherence: %w: %d", ErrUnknownVariable, varID)
	}

	header := wire.Marshal(wire.Header{Kind: wire.SetValue, ID: varID, Aux: uint64(len(payload))})
	if errs := e.tr.BroadcastPair(header, payload); len(errs) > 0 {
		e.logger.Printf("OnDestroy: broadcast SET_VALUE for %d: %v", varID, errs)
	}

	if _, err := e.reg.OnDestroy(varID); err != nil {
		e.logger.Printf("usage error: OnDestroy: %v", err)
		return err
	}
	return nil
}
