// Package pq is the PostgreSQL driver backed by lib/pq and database/sql.
//
// It accepts both URL ("postgres://host/db?sslmode=disable") and key/value
// ("host=localhost dbname=app") connection strings.
package pq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/driver/sqldb"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/lib/pq"
)

// Driver opens PostgreSQL connections through lib/pq.
type Driver struct{}

// New returns the lib/pq driver.
func New() Driver { return Driver{} }

func (Driver) Name() string { return "pq" }

func (Driver) Dialect() driver.Dialect { return driver.DialectDollar }

func (Driver) Open(ctx context.Context, s driver.Settings) (driver.Connector, error) {
	dsn, err := withCredentials(s.URL, s.Username, s.Password)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "invalid DSN", err)
	}

	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "invalid DSN", err)
	}

	return sqldb.Open(ctx, sql.OpenDB(connector), s, mapError)
}

// withCredentials injects user and password into either DSN form.
func withCredentials(dsn, user, password string) (string, error) {
	if user == "" && password == "" {
		return dsn, nil
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		if user == "" && u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, password)
		return u.String(), nil
	}

	var b strings.Builder
	b.WriteString(dsn)
	if user != "" {
		fmt.Fprintf(&b, " user=%s", quote(user))
	}
	if password != "" {
		fmt.Fprintf(&b, " password=%s", quote(password))
	}
	return strings.TrimSpace(b.String()), nil
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// mapError classifies lib/pq errors by SQLSTATE class.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		detail := fmt.Sprintf("%s: %s", msg, pqErr.Message)
		switch {
		// Class 08 is a connection exception, 57P0x an admin shutdown
		case pqErr.Code.Class() == "08", strings.HasPrefix(string(pqErr.Code), "57P0"):
			return errs.Wrap(errs.ErrKindConnection, detail, err)
		case pqErr.Code == "57014":
			return errs.Wrap(errs.ErrKindTimeout, detail, err)
		default:
			return errs.Wrap(errs.ErrKindQueryExecution, detail, err)
		}
	}

	return sqldb.MapError(err, msg)
}
