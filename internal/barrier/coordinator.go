package barrier

import (
	"log"
	"sync"

	"github.com/northgate-labs/pbsm/internal/wire"
)

// Transport is the subset of internal/transport.Transport the barrier
// coordinator needs.
type Transport interface {
	Send(dst int, b []byte) error
	Broadcast(b []byte) []error
}

type pendingEntry struct {
	cond     *sync.Cond
	released bool
}

// Coordinator runs the barrier protocol for one node. Every node in the
// cluster runs one; only the instance on node 0 maintains the per-site
// rendezvous counters, but every instance's Enter blocks its caller until
// the rendezvous completes.
type Coordinator struct {
	selfID   int
	numNodes int
	tr       Transport
	logger   *log.Logger

	mu       sync.Mutex
	counters map[uint32]int           // coordinator-only: remaining arrivals per site
	pending  map[uint32]*pendingEntry // every node: the in-flight round this node is waiting on
}

// New constructs a Coordinator for a node whose own index is selfID, in a
// cluster of numNodes nodes.
func New(selfID, numNodes int, tr Transport, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		selfID:   selfID,
		numNodes: numNodes,
		tr:       tr,
		logger:   logger,
		counters: make(map[uint32]int),
		pending:  make(map[uint32]*pendingEntry),
	}
}

// Enter blocks the calling goroutine until every node in the cluster has
// called Enter for the same site id in the current round.
func (c *Coordinator) Enter(site uint32) {
	c.mu.Lock()
	pe := c.getOrCreatePendingLocked(site)
	c.mu.Unlock()

	if c.selfID == 0 {
		c.arrive(site)
	} else {
		header := wire.Marshal(wire.Header{Kind: wire.BarrierEnter, ID: site, Aux: uint64(c.selfID)})
		if err := c.tr.Send(0, header); err != nil {
			c.logger.Printf("barrier: send BARRIER_ENTER for site %d: %v", site, err)
		}
	}

	c.mu.Lock()
	for !pe.released {
		pe.cond.Wait()
	}
	c.mu.Unlock()
}

// Dispatch routes one inbound barrier message. fromPeer is unused for
// BARRIER_RELEASE (its Aux field is always the coordinator's own id, not
// meaningful to the recipient) but kept for symmetry with the coherence
// engine's Dispatch signature.
func (c *Coordinator) Dispatch(fromPeer int, h wire.Header) {
	switch h.Kind {
	case wire.BarrierEnter:
		if c.selfID != 0 {
			c.logger.Printf("barrier: BARRIER_ENTER received on non-coordinator node, dropping")
			return
		}
		c.arrive(h.ID)
	case wire.BarrierRelease:
		c.release(h.ID)
	default:
		c.logger.Printf("barrier: unexpected kind %v, dropping", h.Kind)
	}
}

// arrive records one arrival at site (self or remote) and, once every node
// has arrived, broadcasts BARRIER_RELEASE and releases this node's own
// pending entry for the site.
func (c *Coordinator) arrive(site uint32) {
	c.mu.Lock()
	count, ok := c.counters[site]
	if !ok {
		count = c.numNodes
	}
	count--

	if count > 0 {
		c.counters[site] = count
		c.mu.Unlock()
		return
	}

	delete(c.counters, site)
	pe := c.pending[site]
	if pe != nil {
		pe.released = true
		delete(c.pending, site)
	}
	c.mu.Unlock()

	if pe != nil {
		pe.cond.Broadcast()
	}
	if errs := c.tr.Broadcast(wire.Marshal(wire.Header{Kind: wire.BarrierRelease, ID: site, Aux: 0})); len(errs) > 0 {
		c.logger.Printf("barrier: broadcast BARRIER_RELEASE for site %d: %v", site, errs)
	}
}

// release marks the pending rendezvous for site as complete on a
// non-coordinator node, waking its blocked Enter call.
func (c *Coordinator) release(site uint32) {
	c.mu.Lock()
	pe := c.pending[site]
	if pe == nil {
		c.mu.Unlock()
		return
	}
	pe.released = true
	delete(c.pending, site)
	c.mu.Unlock()
	pe.cond.Broadcast()
}

func (c *Coordinator) getOrCreatePendingLocked(site uint32) *pendingEntry {
	pe, ok := c.pending[site]
	if !ok {
		pe = &pendingEntry{cond: sync.NewCond(&c.mu)}
		c.pending[site] = pe
	}
	return pe
}
