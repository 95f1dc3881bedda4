// Package mysql is the MySQL driver, backed by go-sql-driver/mysql.
//
// URL is a go-sql-driver DSN, e.g. "tcp(localhost:3306)/app". Username and
// Password from the settings override any credentials in the DSN.
package mysql

import (
	"context"
	"database/sql"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/driver/sqldb"
	"github.com/koustreak/sqlsession/internal/errs"
)

// Driver opens MySQL connections.
type Driver struct{}

// New returns the MySQL driver.
func New() Driver { return Driver{} }

func (Driver) Name() string { return "mysql" }

func (Driver) Dialect() driver.Dialect { return driver.DialectQuestion }

func (Driver) Open(ctx context.Context, s driver.Settings) (driver.Connector, error) {
	cfg, err := gomysql.ParseDSN(s.URL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "invalid DSN", err)
	}
	if s.Username != "" {
		cfg.User = s.Username
	}
	if s.Password != "" {
		cfg.Passwd = s.Password
	}
	cfg.ParseTime = true

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "invalid DSN", err)
	}

	return sqldb.Open(ctx, sql.OpenDB(connector), s, mapError)
}
