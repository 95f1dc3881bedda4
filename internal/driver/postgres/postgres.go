// Package postgres is the PostgreSQL driver backed by pgx/v5.
//
// pgxpool provides the transport; the session pool keeps each acquired
// connection for as long as its handle lives and hijacks it on close, so the
// two pools never disagree about who owns a connection.
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
)

const closeTimeout = 5 * time.Second

// Driver opens PostgreSQL connections through pgxpool.
type Driver struct{}

// New returns the pgx driver.
func New() Driver { return Driver{} }

func (Driver) Name() string { return "postgres" }

func (Driver) Dialect() driver.Dialect { return driver.DialectDollar }

// Open parses the URL, applies credentials and pool bounds, and pings the
// server before returning.
func (Driver) Open(ctx context.Context, s driver.Settings) (driver.Connector, error) {
	poolCfg, err := pgxpool.ParseConfig(s.URL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "invalid DSN", err)
	}

	if s.Username != "" {
		poolCfg.ConnConfig.User = s.Username
	}
	if s.Password != "" {
		poolCfg.ConnConfig.Password = s.Password
	}
	poolCfg.MaxConns = int32(s.MaxPoolSize)
	poolCfg.MinConns = int32(s.MinPoolSize)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool", errs.ErrKindConnection)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, mapError(err, "ping failed", errs.ErrKindConnection)
	}

	return &connector{pool: pool}, nil
}

type connector struct {
	pool *pgxpool.Pool
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "unable to open connection", errs.ErrKindConnection)
	}
	return &Conn{conn: conn}, nil
}

func (c *connector) Close() error {
	c.pool.Close()
	return nil
}

// Conn is one pgx connection acquired from the transport pool.
type Conn struct {
	conn   *pgxpool.Conn
	closed bool
}

func (c *Conn) CreateStatement(context.Context) (driver.Statement, error) {
	return &statement{conn: c.conn}, nil
}

// PrepareStatement prepares sql under a unique server-side name that is
// deallocated when the statement closes.
func (c *Conn) PrepareStatement(ctx context.Context, sql string) (driver.PreparedStatement, error) {
	name := "sqlsession_" + uuid.NewString()
	if _, err := c.conn.Conn().Prepare(ctx, name, sql); err != nil {
		return nil, mapError(err, "prepare failed", errs.ErrKindQueryExecution)
	}
	return &preparedStatement{conn: c.conn, name: name}, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed", errs.ErrKindConnection)
	}
	return nil
}

// Close takes the connection out of the transport pool and closes it.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := c.conn.Hijack().Close(ctx); err != nil {
		return mapError(err, "close failed", errs.ErrKindConnection)
	}
	return nil
}

type statement struct {
	conn *pgxpool.Conn
}

func (s *statement) ExecuteQuery(ctx context.Context, sql string) (driver.ResultSet, error) {
	return query(ctx, s.conn, sql)
}

func (s *statement) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	return exec(ctx, s.conn, sql)
}

func (s *statement) Close() error { return nil }

type preparedStatement struct {
	driver.Args
	conn *pgxpool.Conn
	name string
}

func (p *preparedStatement) ExecuteQuery(ctx context.Context) (driver.ResultSet, error) {
	return query(ctx, p.conn, p.name, p.Values()...)
}

func (p *preparedStatement) ExecuteUpdate(ctx context.Context) (int64, error) {
	return exec(ctx, p.conn, p.name, p.Values()...)
}

func (p *preparedStatement) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := p.conn.Conn().Deallocate(ctx, p.name); err != nil {
		return mapError(err, "unable to close statement", errs.ErrKindQueryExecution)
	}
	return nil
}

func query(ctx context.Context, conn *pgxpool.Conn, sql string, args ...any) (driver.ResultSet, error) {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed", errs.ErrKindQueryExecution)
	}
	return &resultSet{rows: rows}, nil
}

func exec(ctx context.Context, conn *pgxpool.Conn, sql string, args ...any) (int64, error) {
	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "update failed", errs.ErrKindQueryExecution)
	}
	return tag.RowsAffected(), nil
}

type resultSet struct {
	rows pgx.Rows
}

func (r *resultSet) Rows() ([]driver.Row, error) {
	descs := r.rows.FieldDescriptions()
	columns := make([]string, len(descs))
	for i, d := range descs {
		columns[i] = d.Name
	}

	rows, err := driver.ScanRows(r.rows, columns)
	if err != nil {
		return nil, mapError(err, "failed to read rows", errs.ErrKindQueryExecution)
	}
	return rows, nil
}

// Close releases the cursor. pgx reports deferred errors through Err.
func (r *resultSet) Close() error {
	r.rows.Close()
	if err := r.rows.Err(); err != nil {
		return mapError(err, "unable to close result set", errs.ErrKindQueryExecution)
	}
	return nil
}
