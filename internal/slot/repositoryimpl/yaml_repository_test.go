package repositoryimpl

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kazz187/devguild/internal/slot"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/storage"
)

func newRepo(t testing.TB, servers ...*slot.Server) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(s)
	for _, srv := range servers {
		require.NoError(t, repo.UpsertServer(context.Background(), srv))
	}
	return repo
}

func server(id string, capacity int) *slot.Server {
	return &slot.Server{ID: id, Host: id + ".internal", Port: 22, User: "dev", Capacity: capacity, Status: slot.ServerActive}
}

type helperT interface {
	require.TestingT
	Helper()
}

func usedCounts(t helperT, repo *YAMLRepository) map[string]int {
	t.Helper()
	servers, err := repo.ListServers(context.Background())
	require.NoError(t, err)
	out := map[string]int{}
	for _, s := range servers {
		out[s.ID] = s.UsedCount
	}
	return out
}

func TestReserveFirstAvailable_StableOrder(t *testing.T) {
	ctx := context.Background()
	down := server("ws-00", 5)
	down.Status = slot.ServerMaintenance
	repo := newRepo(t, server("ws-02", 1), server("ws-01", 1), down)

	r1, err := repo.ReserveFirstAvailable(ctx, "dev-1", "T1")
	require.NoError(t, err)
	assert.Equal(t, "ws-01", r1.ServerID)
	assert.Equal(t, "ws-01.internal", r1.ServerHost)

	r2, err := repo.ReserveFirstAvailable(ctx, "dev-2", "T2")
	require.NoError(t, err)
	assert.Equal(t, "ws-02", r2.ServerID)

	_, err = repo.ReserveFirstAvailable(ctx, "dev-3", "T3")
	assert.True(t, cerr.IsReason(err, cerr.ReasonNoCapacity))
}

func TestReserveFirstAvailable_Concurrent(t *testing.T) {
	ctx := context.Background()
	pre := server("ws-01", 5)
	repo := newRepo(t, pre, server("ws-02", 3))
	// two slots already taken on ws-01
	for i := range 2 {
		_, err := repo.ReserveFirstAvailable(ctx, fmt.Sprintf("pre-%d", i), "T0")
		require.NoError(t, err)
	}

	const n = 20
	var ok, noCap atomic.Int32
	var wg conc.WaitGroup
	for i := range n {
		wg.Go(func() {
			_, err := repo.ReserveFirstAvailable(ctx, fmt.Sprintf("dev-%d", i), fmt.Sprintf("T%d", i))
			switch {
			case err == nil:
				ok.Add(1)
			case cerr.IsReason(err, cerr.ReasonNoCapacity):
				noCap.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(6), ok.Load())
	assert.Equal(t, int32(n-6), noCap.Load())
	assert.Equal(t, map[string]int{"ws-01": 5, "ws-02": 3}, usedCounts(t, repo))
}

func TestRelease_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, server("ws-01", 1))

	r, err := repo.ReserveFirstAvailable(ctx, "dev-1", "T1")
	require.NoError(t, err)

	released, err := repo.Release(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = repo.Release(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, released)

	released, err = repo.Release(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, released)

	assert.Equal(t, map[string]int{"ws-01": 0}, usedCounts(t, repo))

	// the freed slot can be taken again
	_, err = repo.ReserveFirstAvailable(ctx, "dev-2", "T1")
	require.NoError(t, err)
}

func TestUpsertServer_KeepsUsedCount(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, server("ws-01", 2))
	_, err := repo.ReserveFirstAvailable(ctx, "dev-1", "T1")
	require.NoError(t, err)

	resized := server("ws-01", 4)
	resized.UsedCount = 0
	resized.Host = "new-host"
	require.NoError(t, repo.UpsertServer(ctx, resized))

	servers, err := repo.ListServers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, 1, servers[0].UsedCount)
	assert.Equal(t, 4, servers[0].Capacity)
	assert.Equal(t, "new-host", servers[0].Host)
}

func TestUpsertServer_ShrinkBelowUsage(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, server("ws-01", 3))
	var held []*slot.Reservation
	for i := 0; i < 3; i++ {
		r, err := repo.ReserveFirstAvailable(ctx, fmt.Sprintf("dev-%d", i), fmt.Sprintf("T%d", i))
		require.NoError(t, err)
		held = append(held, r)
	}

	require.NoError(t, repo.UpsertServer(ctx, server("ws-01", 1)))
	servers, err := repo.ListServers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, 3, servers[0].UsedCount)
	assert.LessOrEqual(t, servers[0].UsedCount, servers[0].Capacity)

	_, err = repo.ReserveFirstAvailable(ctx, "dev-9", "T9")
	assert.True(t, cerr.IsReason(err, cerr.ReasonNoCapacity))

	// once usage drains, the next sync applies the smaller capacity
	for _, r := range held {
		_, err := repo.Release(ctx, r.ID)
		require.NoError(t, err)
	}
	require.NoError(t, repo.UpsertServer(ctx, server("ws-01", 1)))
	servers, err = repo.ListServers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, servers[0].Capacity)
	assert.Equal(t, 0, servers[0].UsedCount)
}

func TestAllocator_ReleaseUnknownIsNoop(t *testing.T) {
	a := slot.NewAllocator(newRepo(t, server("ws-01", 1)))
	assert.NoError(t, a.Release(context.Background(), ""))
	assert.NoError(t, a.Release(context.Background(), "missing"))
}

func TestSlotAccounting(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		capA := rapid.IntRange(0, 3).Draw(rt, "capA")
		capB := rapid.IntRange(0, 3).Draw(rt, "capB")
		repo := newRepo(t, server("a", capA), server("b", capB))

		var held []string
		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := range steps {
			if len(held) > 0 && rapid.Bool().Draw(rt, fmt.Sprintf("release-%d", i)) {
				idx := rapid.IntRange(0, len(held)-1).Draw(rt, fmt.Sprintf("idx-%d", i))
				_, err := repo.Release(ctx, held[idx])
				require.NoError(rt, err)
				held = append(held[:idx], held[idx+1:]...)
				continue
			}
			r, err := repo.ReserveFirstAvailable(ctx, "dev", "T")
			if len(held) < capA+capB {
				require.NoError(rt, err)
				held = append(held, r.ID)
			} else {
				require.True(rt, cerr.IsReason(err, cerr.ReasonNoCapacity))
			}

			used := usedCounts(rt, repo)
			if used["a"] < 0 || used["a"] > capA || used["b"] < 0 || used["b"] > capB {
				rt.Fatalf("counter out of bounds: %v", used)
			}
			if used["a"]+used["b"] != len(held) {
				rt.Fatalf("used %v does not match %d held reservations", used, len(held))
			}
		}
	})
}
