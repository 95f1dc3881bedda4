package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/driver/drivertest"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, min, max int) (*Pool, *drivertest.Driver) {
	t.Helper()
	drv := drivertest.New()
	p := New(drv, driver.Settings{URL: "test://db", MinPoolSize: min, MaxPoolSize: max})
	t.Cleanup(func() { _ = p.PurgeAll(context.Background()) })
	return p, drv
}

func TestNewPerformsNoIO(t *testing.T) {
	p, drv := newPool(t, 1, 4)

	assert.Equal(t, StateUninitialized, p.State())
	assert.Equal(t, 0, drv.Stats().Opens)
	assert.Equal(t, Stats{State: StateUninitialized, Min: 1, Max: 4}, p.Stats())
}

func TestNewClampsSizes(t *testing.T) {
	p := New(drivertest.New(), driver.Settings{MinPoolSize: 5, MaxPoolSize: 0})
	s := p.Stats()
	assert.Equal(t, 1, s.Max)
	assert.Equal(t, 1, s.Min)
}

func TestReserveInitializesLazily(t *testing.T) {
	p, drv := newPool(t, 2, 4)
	ctx := context.Background()

	h, err := p.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.NotEmpty(t, h.ID())

	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, 1, drv.Stats().Opens)
	assert.Equal(t, 2, drv.Stats().Connects, "min connections are created up front")

	s := p.Stats()
	assert.Equal(t, 2, s.Open)
	assert.Equal(t, 1, s.Idle)
	assert.Equal(t, 1, s.InUse)
	assert.Equal(t, "test://db", drv.Settings().URL)
}

func TestConcurrentInitIsSingleFlight(t *testing.T) {
	const n = 16
	p, drv := newPool(t, 1, n)

	var wg sync.WaitGroup
	handles := make([]*Handle, n)
	failures := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], failures[i] = p.Reserve(context.Background())
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, failures[i])
		assert.False(t, seen[handles[i].ID()], "handle reserved twice")
		seen[handles[i].ID()] = true
	}
	assert.Equal(t, 1, drv.Stats().Opens)
}

func TestReserveBlocksAtCapacity(t *testing.T) {
	p, _ := newPool(t, 1, 2)
	ctx := context.Background()

	h1, err := p.Reserve(ctx)
	require.NoError(t, err)
	h2, err := p.Reserve(ctx)
	require.NoError(t, err)

	got := make(chan *Handle, 1)
	go func() {
		h, err := p.Reserve(ctx)
		if err == nil {
			got <- h
		}
	}()

	select {
	case <-got:
		t.Fatal("reserve should block while the pool is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Release(h1))

	select {
	case h3 := <-got:
		assert.Equal(t, h1.ID(), h3.ID(), "released connection is reused")
		assert.NotEqual(t, h2.ID(), h3.ID())
	case <-time.After(time.Second):
		t.Fatal("reserve did not unblock after release")
	}
}

func TestReserveHonorsContext(t *testing.T) {
	p, _ := newPool(t, 1, 1)

	_, err := p.Reserve(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Reserve(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.Equal(t, 0, p.Stats().Waiting)
}

func TestInitFailureIsConnectionError(t *testing.T) {
	p, drv := newPool(t, 1, 2)
	cause := errors.New("connection refused")
	drv.FailOn(drivertest.StageOpen, cause)

	_, err := p.Reserve(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StateUninitialized, p.State())

	drv.FailOn(drivertest.StageOpen, nil)
	h, err := p.Reserve(context.Background())
	require.NoError(t, err, "a later reserve retries initialization")
	assert.NotNil(t, h)
}

func TestInitFailureClosesPartialConnections(t *testing.T) {
	p, drv := newPool(t, 3, 3)
	drv.FailOn(drivertest.StageConnect, errors.New("too many clients"))

	err := p.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))

	s := drv.Stats()
	assert.Equal(t, 1, s.ConnectorClosed)
	assert.Equal(t, s.Connects, s.ConnsClosed)
}

func TestReserveConnectFailureFreesSlot(t *testing.T) {
	p, drv := newPool(t, 0, 1)
	require.NoError(t, p.Initialize(context.Background()))

	drv.FailOn(drivertest.StageConnect, errors.New("refused"))
	_, err := p.Reserve(context.Background())
	assert.True(t, errs.IsConnection(err))

	drv.FailOn(drivertest.StageConnect, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = p.Reserve(ctx)
	assert.NoError(t, err)
}

func TestReleaseIsIdempotent(t *testing.T) {
	p, _ := newPool(t, 1, 1)
	ctx := context.Background()

	h, err := p.Reserve(ctx)
	require.NoError(t, err)

	assert.NoError(t, p.Release(h))
	assert.NoError(t, p.Release(h))
	assert.NoError(t, p.Release(nil))

	s := p.Stats()
	assert.Equal(t, 1, s.Idle)
	assert.Equal(t, 0, s.InUse)

	// A double release must not have freed a second slot.
	h1, err := p.Reserve(ctx)
	require.NoError(t, err)
	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Reserve(ctx2)
	assert.True(t, errs.IsTimeout(err))
	require.NoError(t, p.Release(h1))
}

func TestPurgeUninitializedIsNoop(t *testing.T) {
	p, drv := newPool(t, 1, 1)
	ran := 0
	p.BeforePurge(func() { ran++ })

	require.NoError(t, p.PurgeAll(context.Background()))
	require.NoError(t, p.PurgeAll(context.Background()))

	assert.Equal(t, 2, ran)
	assert.Equal(t, 0, drv.Stats().Opens)
	assert.Equal(t, StateUninitialized, p.State())
}

func TestPurgeClosesEverything(t *testing.T) {
	p, drv := newPool(t, 2, 4)
	ctx := context.Background()

	held, err := p.Reserve(ctx)
	require.NoError(t, err)
	_, err = p.Reserve(ctx)
	require.NoError(t, err)
	_, err = p.Reserve(ctx)
	require.NoError(t, err)

	require.NoError(t, p.PurgeAll(ctx))

	s := drv.Stats()
	assert.Equal(t, 3, s.Connects)
	assert.Equal(t, 3, s.ConnsClosed)
	assert.Equal(t, 1, s.ConnectorClosed)
	assert.Equal(t, 0, s.DoubleCloses)
	assert.Equal(t, StateClosed, p.State())
	assert.False(t, p.Live(held))

	assert.NoError(t, p.Release(held), "releasing a purged handle is a no-op")
	assert.NoError(t, p.PurgeAll(ctx), "second purge is a no-op")
	assert.Equal(t, 1, drv.Stats().ConnectorClosed)

	_, err = p.Reserve(ctx)
	require.NoError(t, err, "pool re-initializes after purge")
	assert.Equal(t, 2, drv.Stats().Opens)
}

func TestPurgeWakesWaiters(t *testing.T) {
	p, _ := newPool(t, 1, 1)
	ctx := context.Background()

	_, err := p.Reserve(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Reserve(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.PurgeAll(ctx))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errs.IsConnection(err))
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by purge")
	}
}

func TestPurgeReportsCloseFailures(t *testing.T) {
	p, drv := newPool(t, 1, 1)
	require.NoError(t, p.Initialize(context.Background()))

	drv.FailOn(drivertest.StageConnClose, errors.New("reset by peer"))
	err := p.PurgeAll(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))
	assert.Equal(t, 1, drv.Stats().ConnectorClosed, "connector is closed even when a connection fails to close")
}

func TestClaim(t *testing.T) {
	p, _ := newPool(t, 1, 1)
	ctx := context.Background()

	h, err := p.Reserve(ctx)
	require.NoError(t, err)
	assert.False(t, p.Claim(h), "reserved handles cannot be claimed")
	require.NoError(t, p.Release(h))

	require.True(t, p.Claim(h))
	assert.False(t, p.Claim(h), "claim is exclusive")

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Reserve(short)
	assert.True(t, errs.IsTimeout(err), "a claimed handle occupies capacity")

	require.NoError(t, p.Release(h))
	h2, err := p.Reserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.ID(), h2.ID())
}

func TestDiscardReplenishesMinimum(t *testing.T) {
	p, drv := newPool(t, 1, 2)
	ctx := context.Background()

	h, err := p.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Discard(h))
	assert.False(t, p.Live(h))
	assert.NoError(t, p.Discard(h), "second discard is a no-op")

	assert.Eventually(t, func() bool { return p.Stats().Open == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, drv.Stats().Connects)
	assert.Equal(t, 1, drv.Stats().ConnsClosed)

	h2, err := p.Reserve(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, h.ID(), h2.ID())
}

func TestDiscardReportsCloseFailure(t *testing.T) {
	p, drv := newPool(t, 0, 1)
	h, err := p.Reserve(context.Background())
	require.NoError(t, err)

	drv.FailOn(drivertest.StageConnClose, errors.New("broken pipe"))
	err = p.Discard(h)
	assert.True(t, errs.IsConnection(err))
	drv.FailOn(drivertest.StageConnClose, nil)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
}
