package browser

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
)

type stubSession struct {
	id     int
	closed atomic.Bool
}

func (s *stubSession) Context() context.Context { return context.Background() }
func (s *stubSession) Close() error {
	s.closed.Store(true)
	return nil
}

// stubFactory counts created sessions and remembers them for inspection.
type stubFactory struct {
	created atomic.Int32
	last    atomic.Pointer[stubSession]
}

func (f *stubFactory) new(common.BrowserConfig) (Session, error) {
	s := &stubSession{id: int(f.created.Add(1))}
	f.last.Store(s)
	return s, nil
}

func testPool(t *testing.T, size, threshold int) (*Pool, *stubFactory) {
	t.Helper()

	factory := &stubFactory{}
	cfg := common.BrowserConfig{
		PoolSize:            size,
		RecycleThreshold:    threshold,
		AcquirePollInterval: "1ms",
		AcquireMaxRetries:   2,
	}
	pool := NewPool(cfg, factory.new, common.GetLogger())
	require.NoError(t, pool.Start())
	t.Cleanup(pool.Shutdown)
	return pool, factory
}

func TestPool_StartCreatesConfiguredSessions(t *testing.T) {
	_, factory := testPool(t, 3, 50)
	assert.Equal(t, int32(3), factory.created.Load())
}

func TestPool_AcquireIsExclusive(t *testing.T) {
	pool, _ := testPool(t, 1, 50)
	ctx := context.Background()

	h1, err := pool.Acquire(ctx, "maricopa")
	require.NoError(t, err)
	assert.False(t, h1.Temporary())

	// The only slot is held; a second acquisition must not hand out the
	// same session, it falls through to an overflow instance.
	h2, err := pool.Acquire(ctx, "maricopa")
	require.NoError(t, err)
	assert.True(t, h2.Temporary())
	assert.NotSame(t, h1.inst, h2.inst)

	pool.Release(h2)
	pool.Release(h1)
}

func TestPool_ReleaseMakesSlotReacquirable(t *testing.T) {
	pool, factory := testPool(t, 1, 50)
	ctx := context.Background()

	h1, err := pool.Acquire(ctx, "")
	require.NoError(t, err)
	pool.Release(h1)

	h2, err := pool.Acquire(ctx, "")
	require.NoError(t, err)
	assert.False(t, h2.Temporary())
	assert.Same(t, h1.inst, h2.inst)
	assert.Equal(t, int32(1), factory.created.Load(), "no new session needed")
	pool.Release(h2)
}

func TestPool_AffinityPreferred(t *testing.T) {
	pool, _ := testPool(t, 2, 50)
	ctx := context.Background()

	// Bind one slot to each county, then release both.
	hA, err := pool.Acquire(ctx, "maricopa")
	require.NoError(t, err)
	hB, err := pool.Acquire(ctx, "pima")
	require.NoError(t, err)
	pool.Release(hA)
	pool.Release(hB)

	// Reacquiring for pima must pick the pima-bound slot even though the
	// maricopa slot is also idle.
	h, err := pool.Acquire(ctx, "pima")
	require.NoError(t, err)
	assert.Same(t, hB.inst, h.inst)
	pool.Release(h)
}

func TestPool_RecycleAfterThreshold(t *testing.T) {
	pool, factory := testPool(t, 1, 2)
	ctx := context.Background()

	var sessions []Session
	for i := 0; i < 2; i++ {
		h, err := pool.Acquire(ctx, "maricopa")
		require.NoError(t, err)
		sessions = append(sessions, h.inst.session)
		pool.Release(h)
	}
	assert.Same(t, sessions[0], sessions[1], "below threshold, session survives")
	assert.Equal(t, int32(1), factory.created.Load())

	// Third acquisition pushes requestCount past the threshold of 2 and
	// triggers a synchronous recycle: fresh session, count reset, affinity
	// preserved.
	h, err := pool.Acquire(ctx, "maricopa")
	require.NoError(t, err)
	assert.NotSame(t, sessions[0], h.inst.session)
	assert.Equal(t, int32(2), factory.created.Load())
	assert.Equal(t, 1, h.RequestCount())
	assert.Equal(t, "maricopa", h.inst.affinity)
	assert.True(t, sessions[0].(*stubSession).closed.Load(), "old session torn down")
	pool.Release(h)
}

func TestPool_MarkFailedForcesRecycle(t *testing.T) {
	pool, factory := testPool(t, 1, 50)
	ctx := context.Background()

	h1, err := pool.Acquire(ctx, "")
	require.NoError(t, err)
	old := h1.inst.session
	h1.MarkFailed()
	pool.Release(h1)

	h2, err := pool.Acquire(ctx, "")
	require.NoError(t, err)
	assert.NotSame(t, old, h2.inst.session, "failed session replaced on next acquire")
	assert.Equal(t, int32(2), factory.created.Load())
	assert.Equal(t, 1, h2.RequestCount())
	pool.Release(h2)
}

func TestPool_ExhaustionReturnsUsableTemporary(t *testing.T) {
	pool, factory := testPool(t, 1, 50)
	ctx := context.Background()

	h1, err := pool.Acquire(ctx, "")
	require.NoError(t, err)

	h2, err := pool.Acquire(ctx, "")
	require.NoError(t, err)
	assert.True(t, h2.Temporary())
	assert.NotNil(t, h2.Context())

	// Temporary sessions are destroyed on release, never pooled.
	temp := factory.last.Load()
	pool.Release(h2)
	assert.True(t, temp.closed.Load())

	pool.Release(h1)
}

func TestPool_ShutdownClosesEverything(t *testing.T) {
	factory := &stubFactory{}
	cfg := common.BrowserConfig{
		PoolSize:            2,
		RecycleThreshold:    50,
		AcquirePollInterval: "1ms",
		AcquireMaxRetries:   1,
	}
	pool := NewPool(cfg, factory.new, common.GetLogger())
	require.NoError(t, pool.Start())

	pool.Shutdown()
	stats := pool.Stats()
	assert.Equal(t, 0, stats["pool_size"])
	assert.Equal(t, false, stats["started"])

	// Double shutdown is a no-op.
	pool.Shutdown()
}

func TestPool_AcquireBeforeStartFails(t *testing.T) {
	factory := &stubFactory{}
	pool := NewPool(common.BrowserConfig{PoolSize: 1}, factory.new, common.GetLogger())

	_, err := pool.Acquire(context.Background(), "")
	assert.Error(t, err)
}
