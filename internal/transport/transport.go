package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// BasePort is the port offset from which each node's receiver listens, per
// the cluster's external interface: node i listens on BasePort+i.
const BasePort = 2000

// Transport connects a single node to every other node in the cluster over
// TCP. It satisfies the Transport interface's contract from the
// coherence engine's point of view: Send/SendPair are atomic with respect
// to other sends to the same destination, and RecvExact blocks until
// exactly the requested number of bytes arrive from the given source.
type Transport struct {
	selfID int
	hosts  []string // hosts[i] is peer i's IP address

	sendConns []net.Conn   // sendConns[i]: outbound connection to peer i
	sendMu    []sync.Mutex // serializes writes to sendConns[i]

	recvConns []net.Conn // recvConns[i]: inbound connection from peer i

	listener net.Listener
	basePort int
}

// New constructs a Transport for selfID within a cluster whose peer
// addresses are given by hosts (hosts[i] is peer i's IP; hosts[selfID] is
// this node's own address and is never dialed). Connect must be called
// before the transport is used.
func New(selfID int, hosts []string) *Transport {
	return NewWithBasePort(selfID, hosts, BasePort)
}

// NewWithBasePort is New with an overridable port offset, used by tests
// that need to run several clusters concurrently on loopback without
// colliding on BasePort.
func NewWithBasePort(selfID int, hosts []string, basePort int) *Transport {
	n := len(hosts)
	return &Transport{
		selfID:    selfID,
		hosts:     hosts,
		sendConns: make([]net.Conn, n),
		sendMu:    make([]sync.Mutex, n),
		recvConns: make([]net.Conn, n),
		basePort:  basePort,
	}
}

// Connect opens the listener for inbound connections, dials every peer,
// and blocks until every directed edge of the cluster is established. A
// failure at this stage is always fatal: the cluster cannot proceed
// without a complete mesh.
func (t *Transport) Connect() error {
	n := len(t.hosts)

	addr := fmt.Sprintf(":%d", t.basePort+t.selfID)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	t.listener = ln

	accepted := make(chan error, 1)
	go t.acceptLoop(accepted, n-1)

	for i := 0; i < n; i++ {
		if i == t.selfID {
			continue
		}
		if err := t.dialPeer(i); err != nil {
			return fmt.Errorf("transport: dial peer %d: %w", i, err)
		}
	}

	if n > 1 {
		if err := <-accepted; err != nil {
			return fmt.Errorf("transport: accept: %w", err)
		}
	}

	log.Printf("transport: connected to all %d peers", n-1)
	return nil
}

// dialPeer opens the outbound connection to peer i, retrying briefly since
// the peer's listener may not be up yet (every node starts its listener
// and dials its peers concurrently at cluster bootstrap).
func (t *Transport) dialPeer(i int) error {
	addr := fmt.Sprintf("%s:%d", t.hosts[i], t.basePort+i)

	var conn net.Conn
	var err error
	for attempt := 0; attempt < 50; attempt++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		return err
	}

	handshake := make([]byte, 4)
	binary.LittleEndian.PutUint32(handshake, uint32(t.selfID))
	if _, err := conn.Write(handshake); err != nil {
		conn.Close()
		return fmt.Errorf("handshake write: %w", err)
	}

	t.sendConns[i] = conn
	return nil
}

// acceptLoop accepts exactly want inbound connections, reads each one's
// handshake to learn which peer it belongs to, and stores it in
// recvConns. It reports completion (or the first fatal error) on done.
func (t *Transport) acceptLoop(done chan<- error, want int) {
	for got := 0; got < want; got++ {
		conn, err := t.listener.Accept()
		if err != nil {
			done <- err
			return
		}

		handshake := make([]byte, 4)
		if _, err := io.ReadFull(conn, handshake); err != nil {
			done <- fmt.Errorf("handshake read: %w", err)
			return
		}
		peer := int(binary.LittleEndian.Uint32(handshake))
		if peer < 0 || peer >= len(t.recvConns) {
			done <- fmt.Errorf("handshake: out-of-range peer id %d", peer)
			return
		}
		t.recvConns[peer] = conn
	}
	done <- nil
}

// Send atomically writes b to dst. It never interleaves with other Send or
// SendPair calls to the same destination.
func (t *Transport) Send(dst int, b []byte) error {
	t.sendMu[dst].Lock()
	defer t.sendMu[dst].Unlock()
	return t.writeLocked(dst, b)
}

// SendPair atomically writes header followed by payload to dst, guaranteed
// to land contiguously and in order at the receiver.
func (t *Transport) SendPair(dst int, header, payload []byte) error {
	t.sendMu[dst].Lock()
	defer t.sendMu[dst].Unlock()
	if err := t.writeLocked(dst, header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return t.writeLocked(dst, payload)
}

func (t *Transport) writeLocked(dst int, b []byte) error {
	conn := t.sendConns[dst]
	if conn == nil {
		return fmt.Errorf("transport: no connection to peer %d", dst)
	}
	_, err := conn.Write(b)
	if err != nil {
		return fmt.Errorf("transport: send to peer %d: %w", dst, err)
	}
	return nil
}

// Broadcast sends b to every peer other than self, returning one error per
// failed destination (nil entries for successes are omitted).
func (t *Transport) Broadcast(b []byte) []error {
	var errs []error
	for i := range t.hosts {
		if i == t.selfID {
			continue
		}
		if err := t.Send(i, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// BroadcastPair sends header+payload as an atomic pair to every peer other
// than self.
func (t *Transport) BroadcastPair(header, payload []byte) []error {
	var errs []error
	for i := range t.hosts {
		if i == t.selfID {
			continue
		}
		if err := t.SendPair(i, header, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// RecvExact blocks until exactly n bytes have arrived from src.
func (t *Transport) RecvExact(src int, n int) ([]byte, error) {
	conn := t.recvConns[src]
	if conn == nil {
		return nil, fmt.Errorf("transport: no connection from peer %d", src)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("transport: recv from peer %d: %w", src, err)
	}
	return buf, nil
}

// NumPeers returns the number of peers other than self in the cluster.
func (t *Transport) NumPeers() int {
	return len(t.hosts) - 1
}

// SelfID returns this node's own index in the cluster.
func (t *Transport) SelfID() int {
	return t.selfID
}

// Close tears down every connection and the listener. It is best-effort;
// the process is expected to be exiting when this is called.
func (t *Transport) Close() {
	if t.listener != nil {
		t.listener.Close()
	}
	for _, c := range t.sendConns {
		if c != nil {
			c.Close()
		}
	}
	for _, c := range t.recvConns {
		if c != nil {
			c.Close()
		}
	}
}
