package coherence

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northgate-labs/pbsm/internal/registry"
)

func newCluster(t *testing.T, n int) ([]*Engine, []*registry.Registry, *bytes.Buffer) {
	t.Helper()
	net := &fakeNetwork{engines: make([]*Engine, n)}
	regs := make([]*registry.Registry, n)
	var logBuf bytes.Buffer
	logger := log.New(&logBuf, "", 0)

	for i := 0; i < n; i++ {
		regs[i] = registry.New(i)
		link := &memoryLink{selfID: i, net: net}
		net.engines[i] = New(i, n, regs[i], link, logger)
	}
	return net.engines, regs, &logBuf
}

func createOnAll(t *testing.T, engines []*Engine, varID uint32, initial []byte) {
	t.Helper()
	for _, e := range engines {
		require.NoError(t, e.OnCreate(varID, initial))
	}
}

func waitOrTimeout(t *testing.T, fn func(), timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for operation")
	}
}

func TestReadOnOwnerDoesNotBlock(t *testing.T) {
	engines, _, _ := newCluster(t, 2)
	createOnAll(t, engines, 1, []byte{0})

	waitOrTimeout(t, func() {
		require.NoError(t, engines[0].BeforeRead(context.Background(), 1))
	}, time.Second)
}

func TestReadOnRemoteStaleFetchesValue(t *testing.T) {
	engines, regs, _ := newCluster(t, 2)
	createOnAll(t, engines, 1, []byte{7})

	waitOrTimeout(t, func() {
		require.NoError(t, engines[1].BeforeRead(context.Background(), 1))
	}, time.Second)

	rec, ok := regs[1].Lookup(1)
	require.True(t, ok)
	assert.Equal(t, registry.RemoteCached, rec.State())
	assert.Equal(t, []byte{7}, rec.Payload())
}

func TestWriteFromRemoteCachedAcquiresOwnership(t *testing.T) {
	engines, regs, _ := newCluster(t, 2)
	createOnAll(t, engines, 1, []byte{0})

	// Node 1 first reads to populate RC.
	waitOrTimeout(t, func() {
		require.NoError(t, engines[1].BeforeRead(context.Background(), 1))
	}, time.Second)

	waitOrTimeout(t, func() {
		require.NoError(t, engines[1].BeforeWrite(context.Background(), 1))
	}, time.Second)

	rec, _ := regs[1].Lookup(1)
	assert.Equal(t, registry.OwnerExclusive, rec.State())

	ownerRec, _ := regs[0].Lookup(1)
	assert.Equal(t, registry.RemoteStale, ownerRec.State())
	assert.Equal(t, 1, ownerRec.Owner())
}

func TestWriteFromOwnerSharedInvalidatesPeers(t *testing.T) {
	engines, regs, _ := newCluster(t, 3)
	createOnAll(t, engines, 1, []byte{0})

	// Nodes 1 and 2 read to populate RC and put the coordinator in OS.
	waitOrTimeout(t, func() {
		require.NoError(t, engines[1].BeforeRead(context.Background(), 1))
	}, time.Second)
	waitOrTimeout(t, func() {
		require.NoError(t, engines[2].BeforeRead(context.Background(), 1))
	}, time.Second)

	ownerRec, _ := regs[0].Lookup(1)
	require.Equal(t, registry.OwnerShared, ownerRec.State())

	waitOrTimeout(t, func() {
		require.NoError(t, engines[0].BeforeWrite(context.Background(), 1))
	}, time.Second)

	assert.Equal(t, registry.OwnerExclusive, ownerRec.State())
	assert.Equal(t, int32(0), ownerRec.PendingInvalidations)

	for _, i := range []int{1, 2} {
		rec, _ := regs[i].Lookup(1)
		assert.Equal(t, registry.RemoteStale, rec.State())
		assert.Equal(t, 0, rec.Owner())
	}
}

func TestOwnershipHandoffWithStaleHint(t *testing.T) {
	// S4: coordinator writes, node 1 writes (acquires), node 2 writes.
	// Node 2's REQ_OWN reaches the coordinator, which replies
	// SET_OWNER(1); node 2 re-issues REQ_OWN to node 1 and ends up OE.
	engines, regs, _ := newCluster(t, 3)
	createOnAll(t, engines, 1, []byte{0})

	waitOrTimeout(t, func() {
		require.NoError(t, engines[0].BeforeWrite(context.Background(), 1))
	}, time.Second)

	waitOrTimeout(t, func() {
		require.NoError(t, engines[1].BeforeWrite(context.Background(), 1))
	}, time.Second)

	waitOrTimeout(t, func() {
		require.NoError(t, engines[2].BeforeWrite(context.Background(), 1))
	}, 2*time.Second)

	rec2, _ := regs[2].Lookup(1)
	assert.Equal(t, registry.OwnerExclusive, rec2.State())

	for _, i := range []int{0, 1} {
		rec, _ := regs[i].Lookup(1)
		assert.Equal(t, registry.RemoteStale, rec.State())
	}
}

func TestSetValueIdempotentOnOwner(t *testing.T) {
	engines, regs, _ := newCluster(t, 1)
	createOnAll(t, engines, 1, []byte{1})

	rec, _ := regs[0].Lookup(1)
	engines[0].onSetValue(1, []byte{9})

	assert.Equal(t, registry.OwnerShared, rec.State())
	assert.Equal(t, []byte{9}, rec.Payload())
}

func TestGrantOwnWithoutPendingRequestIsViolation(t *testing.T) {
	engines, regs, logBuf := newCluster(t, 2)
	createOnAll(t, engines, 1, []byte{0})

	rec, _ := regs[0].Lookup(1)
	require.False(t, rec.AwaitingOwnership)

	engines[0].onGrantOwn(1)

	assert.Contains(t, logBuf.String(), "protocol violation")
	assert.Equal(t, registry.OwnerShared, rec.State())
}

func TestInvalAckPastZeroIsViolation(t *testing.T) {
	engines, regs, logBuf := newCluster(t, 2)
	createOnAll(t, engines, 1, []byte{0})

	rec, _ := regs[0].Lookup(1)
	require.Equal(t, int32(0), rec.PendingInvalidations)

	engines[0].onInvalAck(1)

	assert.Contains(t, logBuf.String(), "protocol violation")
}

func TestBeforeReadUnknownVariable(t *testing.T) {
	engines, _, _ := newCluster(t, 1)
	err := engines[0].BeforeRead(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestOnDestroyUnknownVariable(t *testing.T) {
	engines, _, _ := newCluster(t, 1)
	err := engines[0].OnDestroy(99, []byte{0})
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestOnDestroyBroadcastsFinalValueThenRemoves(t *testing.T) {
	engines, regs, _ := newCluster(t, 2)
	createOnAll(t, engines, 1, []byte{0})

	require.NoError(t, engines[0].OnDestroy(1, []byte{42}))

	_, ok := regs[0].Lookup(1)
	assert.False(t, ok)

	// Give the async broadcast a moment to land on node 1.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec, ok := regs[1].Lookup(1)
		if ok && bytes.Equal(rec.Payload(), []byte{42}) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("node 1 never observed the destroy-time SET_VALUE")
}

func TestAlternatingWriterTwoNodes(t *testing.T) {
	// S1: two nodes alternately increment a shared counter to 10.
	engines, regs, _ := newCluster(t, 2)
	createOnAll(t, engines, 1, []byte{0})

	var wg sync.WaitGroup
	run := func(nodeID int, turnParity int) {
		defer wg.Done()
		for {
			rec, _ := regs[nodeID].Lookup(1)
			require.NoError(t, engines[nodeID].BeforeRead(context.Background(), 1))
			val := int(rec.Payload()[0])
			if val >= 10 {
				return
			}
			if val%2 != turnParity {
				continue
			}
			require.NoError(t, engines[nodeID].BeforeWrite(context.Background(), 1))
			rec.Mu.Lock()
			v := rec.PayloadLocked()[0]
			rec.SetPayload([]byte{v + 1})
			rec.Mu.Unlock()
		}
	}

	wg.Add(2)
	go run(0, 0)
	go run(1, 1)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("alternating writer scenario did not converge")
	}
}
