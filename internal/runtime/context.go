package runtime

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/northgate-labs/pbsm/internal/barrier"
	"github.com/northgate-labs/pbsm/internal/coherence"
	"github.com/northgate-labs/pbsm/internal/registry"
	"github.com/northgate-labs/pbsm/internal/transport"
	"github.com/northgate-labs/pbsm/internal/wire"
)

// Context is the single owned, process-wide handle a PBSM node runs. It
// wires C1-C4 together and is the only object cmd/pbsm-node needs to
// construct.
type Context struct {
	SelfID   int
	NumNodes int

	transport *transport.Transport
	registry  *registry.Registry
	engine    *coherence.Engine
	barrier   *barrier.Coordinator
	logger    *log.Logger

	stopping atomic.Bool
	wg       sync.WaitGroup
}

// New constructs a Context for selfID in a cluster whose peer addresses
// are hosts. It does not open any connections; call Start for that.
func New(selfID int, hosts []string, logger *log.Logger) *Context {
	return NewWithBasePort(selfID, hosts, transport.BasePort, logger)
}

// NewWithBasePort is New with an overridable port offset, used by tests
// that need several clusters running concurrently on loopback.
func NewWithBasePort(selfID int, hosts []string, basePort int, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.Default()
	}
	numNodes := len(hosts)
	tr := transport.NewWithBasePort(selfID, hosts, basePort)
	reg := registry.New(selfID)
	engine := coherence.New(selfID, numNodes, reg, tr, logger)
	bar := barrier.New(selfID, numNodes, tr, logger)

	return &Context{
		SelfID:    selfID,
		NumNodes:  numNodes,
		transport: tr,
		registry:  reg,
		engine:    engine,
		barrier:   bar,
		logger:    logger,
	}
}

// Start connects to every peer and spawns the per-peer receiver
// goroutines. It blocks until every connection in the mesh is
// established, matching the reference implementation's rule that a
// connection failure at bootstrap is unconditionally fatal.
func (c *Context) Start() error {
	if err := c.transport.Connect(); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	for i := 0; i < c.NumNodes; i++ {
		if i == c.SelfID {
			continue
		}
		c.wg.Add(1)
		go c.receiveLoop(i)
	}
	return nil
}

// Stop tears down every connection. Receiver goroutines exit as soon as
// their next blocking receive fails.
//
// stopping is set before the transport is closed so receiveLoop can tell
// an intentional shutdown apart from a genuine peer failure: Close causes
// every blocked RecvExact to return almost immediately with a "closed
// connection" error, which would otherwise look identical to a real
// transport fault.
func (c *Context) Stop() {
	c.stopping.Store(true)
	c.transport.Close()
	c.wg.Wait()
}

// receiveLoop is the per-peer receiver: it never returns except on a
// fatal transport error or a Stop-initiated shutdown. There is no worker
// pool; dispatch runs inline on this goroutine.
func (c *Context) receiveLoop(peer int) {
	defer c.wg.Done()
	for {
		headerBytes, err := c.transport.RecvExact(peer, wire.HeaderSize)
		if err != nil {
			c.fatalOnLiveError("runtime: fatal transport error receiving from peer %d: %v", peer, err)
			return
		}
		h, err := wire.Decode(headerBytes)
		if err != nil {
			c.fatalOnLiveError("runtime: fatal decode error from peer %d: %v", peer, err)
			return
		}

		var payload []byte
		if h.Kind.HasPayload() {
			payload, err = c.transport.RecvExact(peer, int(h.Aux))
			if err != nil {
				c.fatalOnLiveError("runtime: fatal transport error receiving payload from peer %d: %v", peer, err)
				return
			}
		}

		switch h.Kind {
		case wire.BarrierEnter, wire.BarrierRelease:
			c.barrier.Dispatch(peer, h)
		default:
			c.engine.Dispatch(peer, h, payload)
		}
	}
}

// fatalOnLiveError terminates the process on a receive error, unless Stop
// has already been called - in which case the error is simply the
// transport closing underneath the receiver and the goroutine should exit
// quietly instead.
func (c *Context) fatalOnLiveError(format string, peer int, err error) {
	if c.stopping.Load() {
		return
	}
	c.logger.Fatalf(format, peer, err)
}

// --- Access façade ----------------------------------------------------------

// BeforeRead blocks the caller until varID's local record is coherent for
// reading.
func (c *Context) BeforeRead(ctx context.Context, varID uint32) error {
	return c.engine.BeforeRead(ctx, varID)
}

// BeforeWrite blocks the caller until varID's local record holds
// exclusive ownership.
func (c *Context) BeforeWrite(ctx context.Context, varID uint32) error {
	return c.engine.BeforeWrite(ctx, varID)
}

// AfterWrite is a no-op in the baseline policy, reserved for write-through
// variants.
func (c *Context) AfterWrite(varID uint32) {}

// OnCreate declares a new shared variable at varID with the given initial
// payload.
func (c *Context) OnCreate(varID uint32, initialPayload []byte) error {
	return c.engine.OnCreate(varID, initialPayload)
}

// OnDestroy tears down varID, broadcasting payload as its final value.
func (c *Context) OnDestroy(varID uint32, payload []byte) error {
	return c.engine.OnDestroy(varID, payload)
}

// Barrier blocks the caller until every node in the cluster has reached
// the same site id.
func (c *Context) Barrier(siteID uint32) {
	c.barrier.Enter(siteID)
}

// RecordFor returns the local coherence record backing varID, for callers
// that need direct payload access after BeforeRead/BeforeWrite has already
// established coherence (Variable is the typed wrapper most callers should
// use instead).
func (c *Context) RecordFor(varID uint32) (*registry.Record, bool) {
	return c.registry.Lookup(varID)
}
