package coherence

import (
	"github.com/northgate-labs/pbsm/internal/registry"
	"github.com/northgate-labs/pbsm/internal/wire"
)

// Dispatch routes one inbound protocol message to its transition handler.
// fromPeer is the node that sent the message, established by the
// transport connection it arrived on (not simply h.Aux, since SET_OWNER's
// Aux field carries a hinted owner id rather than the sender's own id).
// payload is non-nil only for SET_VALUE, whose bytes the receiver
// goroutine has already read in full.
//
// Dispatch never returns an error for a routine "no such variable" miss or
// a protocol violation: both are logged and dropped, per the failure
// semantics that only transport errors are fatal.
func (e *Engine) Dispatch(fromPeer int, h wire.Header, payload []byte) {
	switch h.Kind {
	case wire.ReqOwn:
		e.onReqOwn(fromPeer, h.ID)
	case wire.GrantOwn:
		e.onGrantOwn(h.ID)
	case wire.SetOwner:
		e.onSetOwner(h.ID, int(h.Aux))
	case wire.AskValue:
		e.onAskValue(fromPeer, h.ID)
	case wire.SetValue:
		e.onSetValue(h.ID, payload)
	case wire.Invalidate:
		e.onInvalidate(fromPeer, h.ID)
	case wire.InvalAck:
		e.onInvalAck(h.ID)
	default:
		e.violation("unexpected kind %v for variable %d from peer %d", h.Kind, h.ID, fromPeer)
	}
}

func (e *Engine) onReqOwn(fromPeer int, varID uint32) {
	rec, ok := e.lookupOrDrop(varID, "REQ_OWN")
	if !ok {
		return
	}
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	switch rec.StateLocked() {
	case registry.OwnerExclusive, registry.OwnerShared:
		header := wire.Marshal(wire.Header{Kind: wire.GrantOwn, ID: varID, Aux: uint64(e.selfID)})
		if err := e.tr.Send(fromPeer, header); err != nil {
			e.logger.Printf("REQ_OWN: send GRANT_OWN to %d: %v", fromPeer, err)
			return
		}
		rec.SetState(registry.RemoteStale)
		rec.SetOwner(fromPeer)

	case registry.RemoteCached, registry.RemoteStale:
		header := wire.Marshal(wire.Header{Kind: wire.SetOwner, ID: varID, Aux: uint64(rec.Owner())})
		if err := e.tr.Send(fromPeer, header); err != nil {
			e.logger.Printf("REQ_OWN: send SET_OWNER to %d: %v", fromPeer, err)
		}
	}
}

func (e *Engine) onGrantOwn(varID uint32) {
	rec, ok := e.lookupOrDrop(varID, "GRANT_OWN")
	if !ok {
		return
	}
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if !rec.AwaitingOwnership {
		e.violation("GRANT_OWN for variable %d with no pending request", varID)
		return
	}
	rec.AwaitingOwnership = false
	rec.SetState(registry.OwnerExclusive)
	rec.OwnershipGranted.Broadcast()
}

func (e *Engine) onSetOwner(varID uint32, hintedOwner int) {
	rec, ok := e.lookupOrDrop(varID, "SET_OWNER")
	if !ok {
		return
	}
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if !rec.AwaitingOwnership {
		// Stale hint: this node's request was already satisfied by a
		// GRANT_OWN (or it never requested ownership at all). Unlike
		// GRANT_OWN, an unexpected SET_OWNER is not itself a protocol
		// violation - it is a routine race between a redirect and the
		// grant that made it moot.
		return
	}

	if hintedOwner == e.selfID {
		// A stale hint pointing back at ourselves: some peer's cached
		// owner pointer hasn't caught up with our own loss of ownership
		// yet. Our original broadcast REQ_OWN is still outstanding with
		// the real current owner, so there is nothing to act on here.
		return
	}

	// Advisory only: update the owner hint and re-issue REQ_OWN directly
	// to the hinted node. Do not clear AwaitingOwnership or transition to
	// OwnerExclusive - the requester is still waiting for GRANT_OWN.
	rec.SetOwner(hintedOwner)
	rec.SetState(registry.RemoteStale)

	if !rec.Limiter.Allow() {
		// Accepted tradeoff: if a SET_OWNER cascade outruns the limiter,
		// AwaitingOwnership stays true with nothing left to re-trigger it.
		// No live-lock mitigation is attempted here; the broadcast REQ_OWN
		// that got us here is still outstanding with the real owner.
		return
	}
	header := wire.Marshal(wire.Header{Kind: wire.ReqOwn, ID: varID, Aux: uint64(e.selfID)})
	if err := e.tr.Send(hintedOwner, header); err != nil {
		e.logger.Printf("SET_OWNER: re-issue REQ_OWN to %d: %v", hintedOwner, err)
	}
}

func (e *Engine) onAskValue(fromPeer int, varID uint32) {
	rec, ok := e.lookupOrDrop(varID, "ASK_VALUE")
	if !ok {
		return
	}
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	switch rec.StateLocked() {
	case registry.OwnerExclusive, registry.OwnerShared:
		payload := rec.PayloadLocked()
		header := wire.Marshal(wire.Header{Kind: wire.SetValue, ID: varID, Aux: uint64(len(payload))})
		if err := e.tr.SendPair(fromPeer, header, payload); err != nil {
			e.logger.Printf("ASK_VALUE: send SET_VALUE to %d: %v", fromPeer, err)
			return
		}
		rec.SetState(registry.OwnerShared)

	case registry.RemoteCached, registry.RemoteStale:
		header := wire.Marshal(wire.Header{Kind: wire.SetOwner, ID: varID, Aux: uint64(rec.Owner())})
		if err := e.tr.Send(fromPeer, header); err != nil {
			e.logger.Printf("ASK_VALUE: send SET_OWNER to %d: %v", fromPeer, err)
		}
	}
}

func (e *Engine) onSetValue(varID uint32, payload []byte) {
	rec, ok := e.lookupOrDrop(varID, "SET_VALUE")
	if !ok {
		return
	}
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	rec.SetPayload(payload)
	if rec.StateLocked() == registry.RemoteStale {
		rec.SetState(registry.RemoteCached)
	}
	rec.ValueReady.Broadcast()
}

func (e *Engine) onInvalidate(fromPeer int, varID uint32) {
	rec, ok := e.lookupOrDrop(varID, "INVALIDATE")
	if !ok {
		return
	}
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	header := wire.Marshal(wire.Header{Kind: wire.InvalAck, ID: varID, Aux: uint64(e.selfID)})
	if err := e.tr.Send(fromPeer, header); err != nil {
		e.logger.Printf("INVALIDATE: send INVAL_ACK to %d: %v", fromPeer, err)
		return
	}
	rec.SetState(registry.RemoteStale)
	rec.SetOwner(fromPeer)
}

func (e *Engine) onInvalAck(varID uint32) {
	rec, ok := e.lookupOrDrop(varID, "INVAL_ACK")
	if !ok {
		return
	}
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if rec.PendingInvalidations <= 0 {
		e.violation("INVAL_ACK for variable %d past zero", varID)
		return
	}
	rec.PendingInvalidations--
	if rec.PendingInvalidations == 0 {
		rec.InvalidationsDrained.Broadcast()
	}
}
