// Package driver defines the boundary to the underlying database transport.
//
// The pool, executor and keepalive packages talk only to these interfaces;
// they never import the postgres, mysql, pq or sqlite packages directly.
package driver

import (
	"context"
	"time"
)

// Settings is what a Driver needs to set up its transport.
type Settings struct {
	URL      string
	Username string
	Password string

	// AssetPath is the directory searched for driver assets.
	AssetPath string

	MinPoolSize int
	MaxPoolSize int
}

// Driver performs one-time setup for a backend and returns a Connector.
type Driver interface {
	// Name identifies the driver in logs.
	Name() string

	// Dialect is the placeholder style the backend expects.
	Dialect() Dialect

	// Open validates the settings and establishes the transport.
	// It fails when the endpoint or credentials are unusable.
	Open(ctx context.Context, s Settings) (Connector, error)
}

// Dialect controls which placeholder style bound SQL uses.
type Dialect int

const (
	// DialectQuestion uses ? placeholders.
	DialectQuestion Dialect = iota

	// DialectDollar uses $1, $2, … placeholders.
	DialectDollar
)

// Connector creates physical connections.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)

	// Close tears down the transport. Connections must be closed first.
	Close() error
}

// Conn is one physical connection. It is used by one goroutine at a time.
type Conn interface {
	CreateStatement(ctx context.Context) (Statement, error)
	PrepareStatement(ctx context.Context, sql string) (PreparedStatement, error)

	// Ping reports whether the connection is still usable.
	Ping(ctx context.Context) error
	Close() error
}

// Statement executes ad-hoc SQL text.
type Statement interface {
	ExecuteQuery(ctx context.Context, sql string) (ResultSet, error)
	ExecuteUpdate(ctx context.Context, sql string) (int64, error)
	Close() error
}

// PreparedStatement executes a statement prepared with positional placeholders.
// Setter indices are 1-based.
type PreparedStatement interface {
	Setters

	ExecuteQuery(ctx context.Context) (ResultSet, error)
	ExecuteUpdate(ctx context.Context) (int64, error)
	Close() error
}

// Setters are the type-specific bind operations of a prepared statement.
type Setters interface {
	SetInt(index int, v int32) error
	SetLong(index int, v int64) error
	SetShort(index int, v int16) error
	SetFloat(index int, v float32) error
	SetDouble(index int, v float64) error
	SetDecimal(index int, v string) error
	SetString(index int, v string) error
	SetBoolean(index int, v bool) error
	SetDate(index int, v time.Time) error
	SetTime(index int, v time.Time) error
	SetTimestamp(index int, v time.Time) error
	SetBytes(index int, v []byte) error
	SetNull(index int) error
}

// ResultSet is a fully executed query result.
// Callers must always call Close(), even after Rows fails.
type ResultSet interface {
	// Rows materializes every remaining row in order.
	Rows() ([]Row, error)
	Close() error
}

// Row maps column names to Go-native values.
type Row map[string]any
