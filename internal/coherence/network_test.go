package coherence

import (
	"sync"

	"github.com/northgate-labs/pbsm/internal/wire"
)

// memoryLink is a Transport that delivers messages to sibling engines in a
// fakeNetwork on their own goroutine, mirroring the real per-peer receiver
// goroutine rather than calling Dispatch inline - inline delivery would
// reenter a record's lock on the same goroutine that is still holding it
// while broadcasting, which real concurrent receiver goroutines never do.
type memoryLink struct {
	selfID int
	net    *fakeNetwork
}

func (l *memoryLink) deliver(dst int, header []byte, payload []byte) error {
	h, err := wire.Decode(header)
	if err != nil {
		return err
	}
	target := l.net.engines[dst]
	l.net.wg.Add(1)
	go func() {
		defer l.net.wg.Done()
		target.Dispatch(l.selfID, h, payload)
	}()
	return nil
}

func (l *memoryLink) Send(dst int, b []byte) error {
	return l.deliver(dst, b, nil)
}

func (l *memoryLink) SendPair(dst int, header, payload []byte) error {
	return l.deliver(dst, header, append([]byte(nil), payload...))
}

func (l *memoryLink) Broadcast(b []byte) []error {
	for i := range l.net.engines {
		if i == l.selfID {
			continue
		}
		l.deliver(i, b, nil)
	}
	return nil
}

func (l *memoryLink) BroadcastPair(header, payload []byte) []error {
	for i := range l.net.engines {
		if i == l.selfID {
			continue
		}
		l.deliver(i, header, payload)
	}
	return nil
}

// fakeNetwork wires n Engines together for in-process testing.
type fakeNetwork struct {
	engines []*Engine
	wg      sync.WaitGroup
}

// Wait blocks until every in-flight delivery has been dispatched. It does
// not wait for deliveries triggered by those dispatches; callers loop
// Wait() + a short settle check when a scenario needs multiple hops.
func (n *fakeNetwork) Wait() {
	n.wg.Wait()
}
