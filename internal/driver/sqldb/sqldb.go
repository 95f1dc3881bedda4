// Package sqldb adapts a database/sql handle to the driver interfaces.
//
// The mysql, pq and sqlite drivers only differ in how they open the *sql.DB
// and how they classify native errors; everything else lives here.
package sqldb

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"

	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
)

// MapFunc translates a native driver error into an *errs.Error.
type MapFunc func(err error, msg string) error

// Connector hands out dedicated *sql.Conn values from one *sql.DB.
type Connector struct {
	db     *sql.DB
	mapErr MapFunc
}

// Open sizes db for the session pool and verifies it with a ping.
// db is closed when the ping fails.
func Open(ctx context.Context, db *sql.DB, s driver.Settings, mapErr MapFunc) (*Connector, error) {
	if mapErr == nil {
		mapErr = MapError
	}

	db.SetMaxOpenConns(s.MaxPoolSize)
	db.SetMaxIdleConns(s.MaxPoolSize)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, mapErr(err, "ping failed")
	}

	return &Connector{db: db, mapErr: mapErr}, nil
}

func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, c.mapErr(err, "unable to open connection")
	}
	return &Conn{conn: conn, mapErr: c.mapErr}, nil
}

func (c *Connector) Close() error {
	if err := c.db.Close(); err != nil {
		return c.mapErr(err, "unable to close database")
	}
	return nil
}

// DB exposes the underlying handle.
func (c *Connector) DB() *sql.DB { return c.db }

// Conn is one dedicated database/sql connection.
type Conn struct {
	conn   *sql.Conn
	mapErr MapFunc
}

func (c *Conn) CreateStatement(context.Context) (driver.Statement, error) {
	return &statement{conn: c}, nil
}

func (c *Conn) PrepareStatement(ctx context.Context, query string) (driver.PreparedStatement, error) {
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, c.mapErr(err, "prepare failed")
	}
	return &preparedStatement{stmt: stmt, mapErr: c.mapErr}, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return c.mapErr(err, "ping failed")
	}
	return nil
}

// Close terminates the physical connection instead of parking it in the
// database/sql idle list.
func (c *Conn) Close() error {
	_ = c.conn.Raw(func(any) error { return sqldriver.ErrBadConn })
	err := c.conn.Close()
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return c.mapErr(err, "close failed")
	}
	return nil
}

// statement runs ad-hoc SQL directly on the connection. database/sql has no
// separate statement object for unprepared text, so Close has nothing to free.
type statement struct {
	conn *Conn
}

func (s *statement) ExecuteQuery(ctx context.Context, query string) (driver.ResultSet, error) {
	rows, err := s.conn.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, s.conn.mapErr(err, "query failed")
	}
	return &resultSet{rows: rows, mapErr: s.conn.mapErr}, nil
}

func (s *statement) ExecuteUpdate(ctx context.Context, query string) (int64, error) {
	res, err := s.conn.conn.ExecContext(ctx, query)
	if err != nil {
		return 0, s.conn.mapErr(err, "update failed")
	}
	return affected(res, s.conn.mapErr)
}

func (s *statement) Close() error { return nil }

type preparedStatement struct {
	driver.Args
	stmt   *sql.Stmt
	mapErr MapFunc
}

func (p *preparedStatement) ExecuteQuery(ctx context.Context) (driver.ResultSet, error) {
	rows, err := p.stmt.QueryContext(ctx, p.Values()...)
	if err != nil {
		return nil, p.mapErr(err, "query failed")
	}
	return &resultSet{rows: rows, mapErr: p.mapErr}, nil
}

func (p *preparedStatement) ExecuteUpdate(ctx context.Context) (int64, error) {
	res, err := p.stmt.ExecContext(ctx, p.Values()...)
	if err != nil {
		return 0, p.mapErr(err, "update failed")
	}
	return affected(res, p.mapErr)
}

func (p *preparedStatement) Close() error {
	if err := p.stmt.Close(); err != nil {
		return p.mapErr(err, "unable to close statement")
	}
	return nil
}

type resultSet struct {
	rows   *sql.Rows
	mapErr MapFunc
}

func (r *resultSet) Rows() ([]driver.Row, error) {
	columns, err := r.rows.Columns()
	if err != nil {
		return nil, r.mapErr(err, "failed to read columns")
	}
	rows, err := driver.ScanRows(r.rows, columns)
	if err != nil {
		return nil, r.mapErr(err, "failed to read rows")
	}
	return rows, nil
}

func (r *resultSet) Close() error {
	if err := r.rows.Close(); err != nil {
		return r.mapErr(err, "unable to close result set")
	}
	return nil
}

func affected(res sql.Result, mapErr MapFunc) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(err, "rows affected unavailable")
	}
	return n, nil
}

// MapError is the fallback classification shared by database/sql drivers.
func MapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	case errors.Is(err, sqldriver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return errs.Wrap(errs.ErrKindConnection, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryExecution, msg, err)
}
