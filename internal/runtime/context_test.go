package runtime

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startCluster brings up n real Contexts over loopback TCP and returns
// them once every connection in the mesh is established.
func startCluster(t *testing.T, n int, basePort int) []*Context {
	t.Helper()
	hosts := make([]string, n)
	for i := range hosts {
		hosts[i] = "127.0.0.1"
	}

	ctxs := make([]*Context, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewWithBasePort(i, hosts, basePort, log.Default())
			errs[i] = c.Start()
			ctxs[i] = c
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "node %d start", i)
	}
	t.Cleanup(func() {
		for _, c := range ctxs {
			c.Stop()
		}
	})
	return ctxs
}

func TestReadAfterWriteAcrossBarrier(t *testing.T) {
	// S2-shaped: coordinator writes, barrier, non-coordinators read.
	nodes := startCluster(t, 3, 22000)
	const site = 1

	for _, n := range nodes {
		require.NoError(t, n.OnCreate(site, []byte{0}))
	}

	require.NoError(t, nodes[0].BeforeWrite(context.Background(), site))
	rec, _ := nodes[0].registry.Lookup(site)
	rec.Mu.Lock()
	rec.SetPayload([]byte{7})
	rec.Mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); nodes[0].Barrier(99) }()
	go func() { defer wg.Done(); nodes[1].Barrier(99) }()
	go func() { defer wg.Done(); nodes[2].Barrier(99) }()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("barrier never completed")
	}

	for _, i := range []int{1, 2} {
		require.NoError(t, nodes[i].BeforeRead(context.Background(), site))
		rec, ok := nodes[i].registry.Lookup(site)
		require.True(t, ok)
		require.Equal(t, byte(7), rec.Payload()[0])
	}
}

func TestVariableDeclareReadWrite(t *testing.T) {
	nodes := startCluster(t, 2, 22100)

	v0, err := DeclareVariable[int64](nodes[0], "example.go", 10, 0)
	require.NoError(t, err)
	v1, err := DeclareVariable[int64](nodes[1], "example.go", 10, 0)
	require.NoError(t, err)
	require.Equal(t, v0.VarID(), v1.VarID())

	require.NoError(t, v0.Write(context.Background(), 42))

	got, err := v1.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), got)
}
