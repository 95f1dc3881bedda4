// Package session is the public face of sqlsession: one Session owns one
// connection pool, binds parameters, runs statements and keeps idle
// connections alive.
//
// A Session is created without any I/O. The pool connects on first use and
// CloseAll tears everything down again; a later call reconnects.
//
// Usage:
//
//	s, err := session.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer s.CloseAll(ctx)
//
//	rows, err := s.ReadPrepared(ctx, "SELECT * FROM users WHERE id = :id",
//	    []binder.Parameter{session.MakeParameter("id", binder.Int, 42)})
package session

import (
	"context"

	"github.com/koustreak/sqlsession/internal/binder"
	"github.com/koustreak/sqlsession/internal/config"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/executor"
	"github.com/koustreak/sqlsession/internal/keepalive"
	"github.com/koustreak/sqlsession/internal/logger"
	"github.com/koustreak/sqlsession/internal/pool"
)

// Session is safe for concurrent use.
type Session struct {
	cfg       config.Config
	driver    driver.Driver
	log       *logger.Logger
	pool      *pool.Pool
	exec      *executor.Executor
	keepalive *keepalive.Scheduler // nil when disabled
}

// Handle is a connection reserved with Reserve.
type Handle = pool.Handle

// Stats is a snapshot of a session.
type Stats struct {
	Driver    string     `json:"driver"`
	Pool      pool.Stats `json:"pool"`
	Keepalive int        `json:"keepalive"` // handles with an active probe timer
}

type options struct {
	driver driver.Driver
	log    *logger.Logger
}

// Option configures a Session.
type Option func(*options)

// WithDriver uses d instead of the driver named in the configuration.
func WithDriver(d driver.Driver) Option {
	return func(o *options) { o.driver = d }
}

// WithLogger uses l instead of a logger built from the configuration.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New validates cfg and assembles a session. It performs no I/O.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	drv := o.driver
	if drv == nil {
		var err error
		if drv, err = Resolve(cfg.Driver); err != nil {
			return nil, err
		}
	}

	log := o.log
	if log == nil {
		log = logger.New(&logger.Config{
			Level:  cfg.Logger.Level,
			Format: cfg.Logger.Format,
		})
	}

	s := &Session{cfg: cfg, driver: drv, log: log.Component("session")}

	s.pool = pool.New(drv, driver.Settings{
		URL:         cfg.URL,
		Username:    cfg.Username,
		Password:    cfg.Password,
		AssetPath:   cfg.DriverPath,
		MinPoolSize: cfg.MinPool(),
		MaxPoolSize: cfg.MaxPoolSize,
	}, pool.WithLogger(log))

	execOpts := []executor.Option{
		executor.WithDialect(drv.Dialect()),
		executor.WithLogger(log),
	}

	if cfg.Keepalive.Enabled {
		query := cfg.Keepalive.Query
		probe := func(ctx context.Context, h *pool.Handle) error {
			_, err := s.exec.Read(ctx, h, query)
			return err
		}
		if cfg.Keepalive.Ping {
			probe = func(ctx context.Context, h *pool.Handle) error {
				return h.Conn().Ping(ctx)
			}
		}
		s.keepalive = keepalive.New(s.pool, probe, cfg.Keepalive.Interval, keepalive.WithLogger(log))

		execOpts = append(execOpts, executor.WithTracker(s.keepalive))
		s.pool.BeforePurge(s.keepalive.CancelAll)
	}

	s.exec = executor.New(s.pool, execOpts...)
	return s, nil
}

// Config returns the effective configuration, defaults applied.
func (s *Session) Config() config.Config { return s.cfg }

// Read runs sql on a connection reserved for the call.
func (s *Session) Read(ctx context.Context, sql string) ([]driver.Row, error) {
	return s.exec.Read(ctx, nil, sql)
}

// Write runs an update on a connection reserved for the call.
func (s *Session) Write(ctx context.Context, sql string) (int64, error) {
	return s.exec.Write(ctx, nil, sql)
}

// ReadPrepared binds params into sql and runs it as a prepared query.
func (s *Session) ReadPrepared(ctx context.Context, sql string, params []binder.Parameter) ([]driver.Row, error) {
	return s.exec.ReadPrepared(ctx, nil, sql, params)
}

// WritePrepared binds params into sql and runs it as a prepared update.
func (s *Session) WritePrepared(ctx context.Context, sql string, params []binder.Parameter) (int64, error) {
	return s.exec.WritePrepared(ctx, nil, sql, params)
}

// ReadOn is Read on a handle the caller reserved. The handle stays reserved.
func (s *Session) ReadOn(ctx context.Context, h *pool.Handle, sql string) ([]driver.Row, error) {
	return s.exec.Read(ctx, h, sql)
}

// WriteOn is Write on a handle the caller reserved.
func (s *Session) WriteOn(ctx context.Context, h *pool.Handle, sql string) (int64, error) {
	return s.exec.Write(ctx, h, sql)
}

// ReadPreparedOn is ReadPrepared on a handle the caller reserved.
func (s *Session) ReadPreparedOn(ctx context.Context, h *pool.Handle, sql string, params []binder.Parameter) ([]driver.Row, error) {
	return s.exec.ReadPrepared(ctx, h, sql, params)
}

// WritePreparedOn is WritePrepared on a handle the caller reserved.
func (s *Session) WritePreparedOn(ctx context.Context, h *pool.Handle, sql string, params []binder.Parameter) (int64, error) {
	return s.exec.WritePrepared(ctx, h, sql, params)
}

// Reserve borrows a connection until Release. Use it to run several
// statements on the same connection.
//
// Keepalive only probes idle connections, so a held handle is not kept
// alive while reserved. Its timer resumes probing once it is released.
func (s *Session) Reserve(ctx context.Context) (*pool.Handle, error) {
	h, err := s.pool.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	if s.keepalive != nil {
		s.keepalive.Attach(h)
	}
	return h, nil
}

// Release gives a reserved connection back. Releasing twice is a no-op.
func (s *Session) Release(h *pool.Handle) error {
	return s.pool.Release(h)
}

// CloseAll cancels every keepalive timer, then closes every pooled
// connection. It is a no-op on a session that never connected and may be
// called more than once.
func (s *Session) CloseAll(ctx context.Context) error {
	if err := s.pool.PurgeAll(ctx); err != nil {
		s.log.ErrorWith("Unable to close session", err, nil)
		return err
	}
	return nil
}

// Initialized reports whether the pool currently holds live connections.
func (s *Session) Initialized() bool {
	return s.pool.State() == pool.StateReady
}

// Stats returns a snapshot of the pool and keepalive state.
func (s *Session) Stats() Stats {
	st := Stats{Driver: s.driver.Name(), Pool: s.pool.Stats()}
	if s.keepalive != nil {
		st.Keepalive = s.keepalive.Tracked()
	}
	return st
}

// MakeParameter builds a parameter addressed by position (int) or by
// name (string).
func MakeParameter[I int | string](index I, typ binder.Type, value any) binder.Parameter {
	switch i := any(index).(type) {
	case int:
		return binder.Positional(i, typ, value)
	case string:
		return binder.Named(i, typ, value)
	}
	panic("unreachable")
}
