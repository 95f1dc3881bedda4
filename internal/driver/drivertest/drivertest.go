// Package drivertest provides an in-memory driver.Driver for tests.
//
// It records every connection, statement and result set it hands out so
// tests can assert that each one was closed exactly once, and it can be told
// to fail at any stage of the statement protocol.
package drivertest

import (
	"context"
	"sync"

	"github.com/koustreak/sqlsession/internal/driver"
)

// Stage names a point in the driver protocol where a failure can be injected.
type Stage string

const (
	StageOpen            Stage = "open"
	StageConnect         Stage = "connect"
	StagePing            Stage = "ping"
	StageCreateStatement Stage = "create_statement"
	StagePrepare         Stage = "prepare"
	StageExecute         Stage = "execute"
	StageRows            Stage = "rows"
	StageResultClose     Stage = "result_close"
	StageStatementClose  Stage = "statement_close"
	StageConnClose       Stage = "conn_close"
	StageConnectorClose  Stage = "connector_close"
)

// Result is what a Handler answers for one executed statement.
type Result struct {
	Rows     []driver.Row
	Affected int64
}

// Handler answers an executed statement. args is nil for plain statements.
type Handler func(sql string, args []any) (Result, error)

// Query records one executed statement.
type Query struct {
	SQL      string
	Args     []any
	ConnID   int
	Prepared bool
}

// Stats is a snapshot of everything the driver handed out.
type Stats struct {
	Opens            int
	ConnectorClosed  int
	Connects         int
	ConnsClosed      int
	StatementsOpened int
	StatementsClosed int
	ResultsOpened    int
	ResultsClosed    int

	// DoubleCloses counts Close calls on an already closed resource.
	DoubleCloses int
	Pings        int

	Queries []Query
}

// Driver is a thread-safe fake driver.Driver.
type Driver struct {
	mu       sync.Mutex
	dialect  driver.Dialect
	failures map[Stage]error
	handler  Handler
	settings driver.Settings
	stats    Stats
	nextConn int
}

// New returns a driver answering every query with no rows and 1 affected row.
func New() *Driver {
	return &Driver{
		failures: make(map[Stage]error),
		handler: func(string, []any) (Result, error) {
			return Result{Rows: []driver.Row{}, Affected: 1}, nil
		},
	}
}

// WithDialect sets the placeholder dialect reported by the driver.
func (d *Driver) WithDialect(dl driver.Dialect) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialect = dl
	return d
}

// Respond replaces the query handler.
func (d *Driver) Respond(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// FailOn makes every subsequent call at stage return err. A nil err clears it.
func (d *Driver) FailOn(stage Stage, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, stage)
		return
	}
	d.failures[stage] = err
}

// Stats returns a snapshot of the recorded activity.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Queries = append([]Query(nil), d.stats.Queries...)
	return s
}

// Settings returns the settings passed to the last Open.
func (d *Driver) Settings() driver.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

func (d *Driver) fail(stage Stage) error {
	return d.failures[stage]
}

func (d *Driver) Name() string { return "drivertest" }

func (d *Driver) Dialect() driver.Dialect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialect
}

func (d *Driver) Open(_ context.Context, s driver.Settings) (driver.Connector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = s
	if err := d.fail(StageOpen); err != nil {
		return nil, err
	}
	d.stats.Opens++
	return &connector{d: d}, nil
}

type connector struct {
	d *Driver
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if err := c.d.fail(StageConnect); err != nil {
		return nil, err
	}
	c.d.stats.Connects++
	c.d.nextConn++
	return &Conn{d: c.d, ID: c.d.nextConn}, nil
}

func (c *connector) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.stats.ConnectorClosed++
	return c.d.fail(StageConnectorClose)
}

// Conn is a fake physical connection.
type Conn struct {
	d      *Driver
	ID     int
	closed bool
}

func (c *Conn) CreateStatement(_ context.Context) (driver.Statement, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if err := c.d.fail(StageCreateStatement); err != nil {
		return nil, err
	}
	c.d.stats.StatementsOpened++
	return &statement{conn: c}, nil
}

func (c *Conn) PrepareStatement(_ context.Context, sql string) (driver.PreparedStatement, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if err := c.d.fail(StagePrepare); err != nil {
		return nil, err
	}
	c.d.stats.StatementsOpened++
	return &preparedStatement{statement: statement{conn: c}, sql: sql}, nil
}

func (c *Conn) Ping(_ context.Context) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.stats.Pings++
	return c.d.fail(StagePing)
}

func (c *Conn) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.closed {
		c.d.stats.DoubleCloses++
		return nil
	}
	c.closed = true
	c.d.stats.ConnsClosed++
	return c.d.fail(StageConnClose)
}

type statement struct {
	conn   *Conn
	closed bool
}

func (s *statement) run(ctx context.Context, sql string, args []any, prepared bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	d := s.conn.d
	d.mu.Lock()
	d.stats.Queries = append(d.stats.Queries, Query{SQL: sql, Args: args, ConnID: s.conn.ID, Prepared: prepared})
	h := d.handler
	err := d.fail(StageExecute)
	d.mu.Unlock()

	if err != nil {
		return Result{}, err
	}
	return h(sql, args)
}

func (s *statement) query(ctx context.Context, sql string, args []any, prepared bool) (driver.ResultSet, error) {
	res, err := s.run(ctx, sql, args, prepared)
	if err != nil {
		return nil, err
	}
	d := s.conn.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.ResultsOpened++
	return &resultSet{d: d, rows: res.Rows}, nil
}

func (s *statement) update(ctx context.Context, sql string, args []any, prepared bool) (int64, error) {
	res, err := s.run(ctx, sql, args, prepared)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

func (s *statement) ExecuteQuery(ctx context.Context, sql string) (driver.ResultSet, error) {
	return s.query(ctx, sql, nil, false)
}

func (s *statement) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	return s.update(ctx, sql, nil, false)
}

func (s *statement) Close() error {
	d := s.conn.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.closed {
		d.stats.DoubleCloses++
		return nil
	}
	s.closed = true
	d.stats.StatementsClosed++
	return d.fail(StageStatementClose)
}

type preparedStatement struct {
	statement
	driver.Args
	sql string
}

func (p *preparedStatement) ExecuteQuery(ctx context.Context) (driver.ResultSet, error) {
	return p.query(ctx, p.sql, p.Values(), true)
}

func (p *preparedStatement) ExecuteUpdate(ctx context.Context) (int64, error) {
	return p.update(ctx, p.sql, p.Values(), true)
}

type resultSet struct {
	d      *Driver
	rows   []driver.Row
	closed bool
}

func (r *resultSet) Rows() ([]driver.Row, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if err := r.d.fail(StageRows); err != nil {
		return nil, err
	}
	out := make([]driver.Row, len(r.rows))
	copy(out, r.rows)
	return out, nil
}

func (r *resultSet) Close() error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if r.closed {
		r.d.stats.DoubleCloses++
		return nil
	}
	r.closed = true
	r.d.stats.ResultsClosed++
	return r.d.fail(StageResultClose)
}
