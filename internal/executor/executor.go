// Package executor runs SQL against pooled connections.
//
// Every call follows the same shape: bind parameters, obtain a connection
// (reserving one when the caller did not supply a handle), run one statement,
// then close the result set, the statement and finally give the connection
// back. Each close is attempted even when an earlier step failed, and the
// first failure is the one reported.
package executor

import (
	"context"
	"errors"
	"io"

	"github.com/koustreak/sqlsession/internal/binder"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/koustreak/sqlsession/internal/logger"
	"github.com/koustreak/sqlsession/internal/pool"
	"go.uber.org/multierr"
)

// Pool is the part of *pool.Pool the executor needs.
type Pool interface {
	Reserve(ctx context.Context) (*pool.Handle, error)
	Release(h *pool.Handle) error
	Discard(h *pool.Handle) error
}

// Tracker is told about every handle a statement runs on.
type Tracker interface {
	Attach(h *pool.Handle) bool
}

// Executor is safe for concurrent use.
type Executor struct {
	pool    Pool
	binder  *binder.Binder
	tracker Tracker
	log     *logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithDialect selects the placeholder style of bound SQL.
func WithDialect(d driver.Dialect) Option {
	return func(e *Executor) { e.binder = binder.New(Placeholder(d)) }
}

// WithTracker registers handles with t as they are used.
func WithTracker(t Tracker) Option {
	return func(e *Executor) { e.tracker = t }
}

// WithLogger sets the logger failures are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = l.Component("executor") }
}

// New returns an Executor over p.
func New(p Pool, opts ...Option) *Executor {
	e := &Executor{
		pool:   p,
		binder: binder.New(binder.QuestionMark),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Placeholder returns the binder placeholder style for a driver dialect.
func Placeholder(d driver.Dialect) binder.Placeholder {
	if d == driver.DialectDollar {
		return binder.Dollar
	}
	return binder.QuestionMark
}

// Read runs a query without parameters. A nil h reserves a connection for
// the duration of the call.
func (e *Executor) Read(ctx context.Context, h *pool.Handle, sql string) ([]driver.Row, error) {
	var rows []driver.Row
	err := e.withConn(ctx, h, func(conn driver.Conn) (err error) {
		stmt, err := conn.CreateStatement(ctx)
		if err != nil {
			return classify(err, "unable to create statement")
		}
		defer multierr.AppendInvoke(&err, closing(stmt, "unable to close statement"))

		rs, err := stmt.ExecuteQuery(ctx, sql)
		if err != nil {
			return classify(err, "query failed")
		}
		defer multierr.AppendInvoke(&err, closing(rs, "unable to close result set"))

		rows, err = rs.Rows()
		return classify(err, "unable to read rows")
	})
	if err != nil {
		e.log.QueryError("Unable to execute query", sql, err)
		return nil, err
	}
	return rows, nil
}

// Write runs an update without parameters and returns the affected row count.
func (e *Executor) Write(ctx context.Context, h *pool.Handle, sql string) (int64, error) {
	var n int64
	err := e.withConn(ctx, h, func(conn driver.Conn) (err error) {
		stmt, err := conn.CreateStatement(ctx)
		if err != nil {
			return classify(err, "unable to create statement")
		}
		defer multierr.AppendInvoke(&err, closing(stmt, "unable to close statement"))

		n, err = stmt.ExecuteUpdate(ctx, sql)
		return classify(err, "update failed")
	})
	if err != nil {
		e.log.QueryError("Unable to execute update", sql, err)
		return 0, err
	}
	return n, nil
}

// ReadPrepared binds params into sql and runs it as a prepared query.
// Binding and type errors are reported before any connection is touched.
func (e *Executor) ReadPrepared(ctx context.Context, h *pool.Handle, sql string, params []binder.Parameter) ([]driver.Row, error) {
	bound, bindings, err := e.bind(sql, params)
	if err != nil {
		e.log.QueryError("Unable to bind parameters", sql, err)
		return nil, err
	}

	var rows []driver.Row
	err = e.withConn(ctx, h, func(conn driver.Conn) (err error) {
		stmt, err := conn.PrepareStatement(ctx, bound.SQL)
		if err != nil {
			return classify(err, "prepare failed")
		}
		defer multierr.AppendInvoke(&err, closing(stmt, "unable to close statement"))

		if err := apply(stmt, bindings); err != nil {
			return classify(err, "unable to bind parameter")
		}

		rs, err := stmt.ExecuteQuery(ctx)
		if err != nil {
			return classify(err, "query failed")
		}
		defer multierr.AppendInvoke(&err, closing(rs, "unable to close result set"))

		rows, err = rs.Rows()
		return classify(err, "unable to read rows")
	})
	if err != nil {
		e.log.QueryError("Unable to execute query", bound.SQL, err)
		return nil, err
	}
	return rows, nil
}

// WritePrepared binds params into sql and runs it as a prepared update.
func (e *Executor) WritePrepared(ctx context.Context, h *pool.Handle, sql string, params []binder.Parameter) (int64, error) {
	bound, bindings, err := e.bind(sql, params)
	if err != nil {
		e.log.QueryError("Unable to bind parameters", sql, err)
		return 0, err
	}

	var n int64
	err = e.withConn(ctx, h, func(conn driver.Conn) (err error) {
		stmt, err := conn.PrepareStatement(ctx, bound.SQL)
		if err != nil {
			return classify(err, "prepare failed")
		}
		defer multierr.AppendInvoke(&err, closing(stmt, "unable to close statement"))

		if err := apply(stmt, bindings); err != nil {
			return classify(err, "unable to bind parameter")
		}

		n, err = stmt.ExecuteUpdate(ctx)
		return classify(err, "update failed")
	})
	if err != nil {
		e.log.QueryError("Unable to execute update", bound.SQL, err)
		return 0, err
	}
	return n, nil
}

func (e *Executor) bind(sql string, params []binder.Parameter) (binder.Bound, []binding, error) {
	bound, err := e.binder.Parse(sql, params)
	if err != nil {
		return binder.Bound{}, nil, err
	}
	bindings, err := resolve(bound.Params)
	if err != nil {
		return binder.Bound{}, nil, err
	}
	return bound, bindings, nil
}

// withConn runs fn on h, or on a freshly reserved handle when h is nil.
// Reserved handles are released after fn returns; a connection-level failure
// discards the handle instead.
func (e *Executor) withConn(ctx context.Context, h *pool.Handle, fn func(driver.Conn) error) (err error) {
	if h == nil {
		h, err = e.pool.Reserve(ctx)
		if err != nil {
			return err
		}
		defer multierr.AppendInvoke(&err, multierr.Invoke(func() error {
			if errs.IsConnection(err) {
				return e.pool.Discard(h)
			}
			return e.pool.Release(h)
		}))
	}

	if e.tracker != nil {
		e.tracker.Attach(h)
	}

	return fn(h.Conn())
}

// closing closes c, classifying a failure like any other driver error.
func closing(c io.Closer, msg string) multierr.Invoker {
	return multierr.Invoke(func() error {
		return classify(c.Close(), msg)
	})
}

// classify keeps errors a driver already classified and wraps the rest as
// query execution failures.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryExecution, msg, err)
}
