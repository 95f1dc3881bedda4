package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/sqlsession/internal/binder"
	"github.com/koustreak/sqlsession/internal/config"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/driver/drivertest"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/koustreak/sqlsession/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Driver:      config.DriverPostgres,
		URL:         "postgres://localhost:5432/app",
		MinPoolSize: config.Int(1),
		MaxPoolSize: 2,
	}
}

func newSession(t *testing.T, cfg config.Config) (*Session, *drivertest.Driver) {
	t.Helper()
	drv := drivertest.New()
	s, err := New(cfg, WithDriver(drv))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.CloseAll(context.Background()) })
	return s, drv
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"missing url", config.Config{Driver: config.DriverMySQL}},
		{"unknown driver", config.Config{Driver: "oracle", URL: "x"}},
		{"min above max", config.Config{URL: "x", MinPoolSize: config.Int(5), MaxPoolSize: 2}},
		{"bad keepalive", config.Config{URL: "x", Keepalive: config.KeepaliveConfig{Enabled: true, Interval: -time.Second}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err))
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New(config.Config{URL: "postgres://localhost/app"})
	require.NoError(t, err)

	cfg := s.Config()
	assert.Equal(t, config.DriverPostgres, cfg.Driver)
	assert.Equal(t, 1, cfg.MinPool())
	assert.Equal(t, 100, cfg.MaxPoolSize)
	assert.Equal(t, "./drivers/", cfg.DriverPath)
	assert.Equal(t, "postgres", s.Stats().Driver)
}

func TestNewPerformsNoIO(t *testing.T) {
	s, drv := newSession(t, testConfig())

	assert.False(t, s.Initialized())
	assert.Zero(t, drv.Stats().Opens)
}

func TestResolve(t *testing.T) {
	for _, name := range []string{config.DriverPostgres, config.DriverPQ, config.DriverMySQL, config.DriverSQLite} {
		d, err := Resolve(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}

	_, err := Resolve("db2")
	assert.True(t, errs.IsConfiguration(err))
}

func TestReadPreparedNamed(t *testing.T) {
	s, drv := newSession(t, testConfig())
	drv.Respond(func(sql string, args []any) (drivertest.Result, error) {
		return drivertest.Result{Rows: []driver.Row{{"id": int64(42), "status": "active"}}}, nil
	})

	rows, err := s.ReadPrepared(context.Background(),
		"SELECT * FROM users WHERE id = :id AND status = :status",
		[]binder.Parameter{
			MakeParameter("status", binder.String, "active"),
			MakeParameter("id", binder.Int, 42),
		})
	require.NoError(t, err)
	assert.Equal(t, []driver.Row{{"id": int64(42), "status": "active"}}, rows)
	assert.True(t, s.Initialized())

	q := drv.Stats().Queries
	require.Len(t, q, 1)
	assert.Equal(t, "SELECT * FROM users WHERE id = ? AND status = ?", q[0].SQL)
	assert.Equal(t, []any{int32(42), "active"}, q[0].Args)
}

func TestDriverDialectSelectsPlaceholders(t *testing.T) {
	drv := drivertest.New().WithDialect(driver.DialectDollar)
	s, err := New(testConfig(), WithDriver(drv))
	require.NoError(t, err)
	defer s.CloseAll(context.Background())

	_, err = s.WritePrepared(context.Background(), "UPDATE t SET a = :a WHERE b = :b",
		[]binder.Parameter{MakeParameter("b", binder.Int, 1), MakeParameter("a", binder.Int, 2)})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", drv.Stats().Queries[0].SQL)
	assert.Equal(t, []any{int32(2), int32(1)}, drv.Stats().Queries[0].Args)
}

func TestBindingErrorBeforeConnecting(t *testing.T) {
	s, drv := newSession(t, testConfig())

	_, err := s.ReadPrepared(context.Background(), "SELECT * FROM t WHERE id = :id",
		[]binder.Parameter{MakeParameter("name", binder.String, "x")})
	assert.True(t, errs.IsMissingParameter(err))
	assert.False(t, s.Initialized())
	assert.Zero(t, drv.Stats().Opens)
}

func TestInvalidIndexBeforeConnecting(t *testing.T) {
	s, drv := newSession(t, testConfig())

	_, err := s.WritePrepared(context.Background(), "UPDATE t SET a = ?",
		[]binder.Parameter{MakeParameter(0, binder.Int, 1)})
	assert.True(t, errs.IsInvalidParameterIndex(err))

	_, err = s.ReadPrepared(context.Background(), "SELECT ?",
		[]binder.Parameter{MakeParameter("", binder.Int, 1)})
	assert.True(t, errs.IsInvalidParameterIndex(err))

	assert.False(t, s.Initialized())
	assert.Zero(t, drv.Stats().Opens)
}

func TestConnectionFailure(t *testing.T) {
	s, drv := newSession(t, testConfig())
	drv.FailOn(drivertest.StageOpen, errors.New("connection refused"))

	_, err := s.Read(context.Background(), "SELECT 1")
	assert.True(t, errs.IsConnection(err))
	assert.False(t, s.Initialized())
}

func TestCloseAll(t *testing.T) {
	ctx := context.Background()

	t.Run("never initialized", func(t *testing.T) {
		s, drv := newSession(t, testConfig())
		require.NoError(t, s.CloseAll(ctx))
		require.NoError(t, s.CloseAll(ctx))
		assert.Zero(t, drv.Stats().Opens)
	})

	t.Run("after use", func(t *testing.T) {
		s, drv := newSession(t, testConfig())
		_, err := s.Write(ctx, "UPDATE t SET a = 1")
		require.NoError(t, err)

		require.NoError(t, s.CloseAll(ctx))
		require.NoError(t, s.CloseAll(ctx))
		assert.False(t, s.Initialized())

		st := drv.Stats()
		assert.Equal(t, st.Connects, st.ConnsClosed)
		assert.Equal(t, 1, st.ConnectorClosed)

		_, err = s.Write(ctx, "UPDATE t SET a = 2")
		require.NoError(t, err, "session reconnects lazily")
		assert.Equal(t, 2, drv.Stats().Opens)
	})
}

func TestReserveRunsOnOneConnection(t *testing.T) {
	s, drv := newSession(t, testConfig())
	ctx := context.Background()

	h, err := s.Reserve(ctx)
	require.NoError(t, err)

	_, err = s.WriteOn(ctx, h, "BEGIN")
	require.NoError(t, err)
	_, err = s.WritePreparedOn(ctx, h, "UPDATE t SET a = ?", []binder.Parameter{MakeParameter(1, binder.Int, 5)})
	require.NoError(t, err)
	_, err = s.ReadOn(ctx, h, "SELECT a FROM t")
	require.NoError(t, err)
	_, err = s.ReadPreparedOn(ctx, h, "SELECT a FROM t WHERE a = :a", []binder.Parameter{MakeParameter("a", binder.Int, 5)})
	require.NoError(t, err)

	queries := drv.Stats().Queries
	require.Len(t, queries, 4)
	for _, q := range queries {
		assert.Equal(t, queries[0].ConnID, q.ConnID)
	}
	assert.Equal(t, 1, s.Stats().Pool.InUse)

	require.NoError(t, s.Release(h))
	require.NoError(t, s.Release(h))
	assert.Zero(t, s.Stats().Pool.InUse)
}

func TestConcurrentReads(t *testing.T) {
	s, drv := newSession(t, testConfig())

	var wg sync.WaitGroup
	failures := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Read(context.Background(), "SELECT 1"); err != nil {
				failures <- err
			}
		}()
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Errorf("read failed: %v", err)
	}
	st := drv.Stats()
	assert.Len(t, st.Queries, 20)
	assert.LessOrEqual(t, st.Connects, 2)
	assert.Equal(t, 1, st.Opens)
}

func TestKeepalive(t *testing.T) {
	cfg := testConfig()
	cfg.Keepalive = config.KeepaliveConfig{Enabled: true, Interval: 10 * time.Millisecond, Query: "SELECT 'ping'"}
	s, drv := newSession(t, cfg)
	ctx := context.Background()

	_, err := s.Read(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Stats().Keepalive)

	probed := func() int {
		n := 0
		for _, q := range drv.Stats().Queries {
			if q.SQL == "SELECT 'ping'" {
				n++
			}
		}
		return n
	}
	assert.Eventually(t, func() bool { return probed() >= 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.CloseAll(ctx))
	assert.Zero(t, s.Stats().Keepalive)

	after := probed()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, probed(), "no probes after CloseAll")
}

func TestKeepaliveProbeFailureIsSwallowed(t *testing.T) {
	cfg := testConfig()
	cfg.Keepalive = config.KeepaliveConfig{Enabled: true, Interval: 10 * time.Millisecond, Query: "SELECT 1"}
	s, drv := newSession(t, cfg)
	ctx := context.Background()

	h, err := s.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Release(h))

	drv.FailOn(drivertest.StageExecute, errors.New("relation does not exist"))
	time.Sleep(50 * time.Millisecond)
	drv.FailOn(drivertest.StageExecute, nil)

	assert.Equal(t, 1, s.Stats().Keepalive, "timer kept after failed probes")
	_, err = s.Read(ctx, "SELECT 1")
	assert.NoError(t, err)
}

func TestKeepalivePing(t *testing.T) {
	cfg := testConfig()
	cfg.Keepalive = config.KeepaliveConfig{Enabled: true, Interval: 10 * time.Millisecond, Ping: true}
	s, drv := newSession(t, cfg)
	ctx := context.Background()

	_, err := s.Read(ctx, "SELECT 1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return drv.Stats().Pings >= 2 }, time.Second, 10*time.Millisecond)
	assert.Len(t, drv.Stats().Queries, 1, "ping keepalive runs no statements")

	drv.FailOn(drivertest.StagePing, errs.Wrap(errs.ErrKindConnection, "ping failed", errors.New("EOF")))
	assert.Eventually(t, func() bool { return s.Stats().Keepalive == 0 }, time.Second, 10*time.Millisecond,
		"a dead connection stops being probed")
}

func TestKeepaliveDisabled(t *testing.T) {
	s, _ := newSession(t, testConfig())

	_, err := s.Read(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Zero(t, s.Stats().Keepalive)
}

func TestMakeParameter(t *testing.T) {
	p := MakeParameter(2, binder.Long, int64(9))
	assert.False(t, p.Index.IsNamed())
	assert.Equal(t, 2, p.Index.Position())
	assert.Equal(t, binder.Long, p.Type)
	assert.Equal(t, int64(9), p.Value)

	n := MakeParameter("id", binder.Int, 1)
	assert.True(t, n.Index.IsNamed())
	assert.Equal(t, "id", n.Index.Name())
}

func TestStats(t *testing.T) {
	s, _ := newSession(t, testConfig())
	assert.Equal(t, pool.StateUninitialized, s.Stats().Pool.State)
	assert.Equal(t, "drivertest", s.Stats().Driver)

	_, err := s.Read(context.Background(), "SELECT 1")
	require.NoError(t, err)
	st := s.Stats().Pool
	assert.Equal(t, pool.StateReady, st.State)
	assert.Equal(t, 2, st.Max)
}
