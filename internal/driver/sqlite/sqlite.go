// Package sqlite is the embedded SQLite driver, backed by modernc.org/sqlite.
//
// URL names the database file. Relative paths are resolved against the
// configured driver asset directory.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/driver/sqldb"
	"github.com/koustreak/sqlsession/internal/errs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver opens SQLite databases.
type Driver struct{}

// New returns the SQLite driver.
func New() Driver { return Driver{} }

func (Driver) Name() string { return "sqlite" }

func (Driver) Dialect() driver.Dialect { return driver.DialectQuestion }

func (Driver) Open(ctx context.Context, s driver.Settings) (driver.Connector, error) {
	if s.URL == "" {
		return nil, errs.New(errs.ErrKindConnection, "database file is required")
	}

	db, err := sql.Open("sqlite", resolve(s.URL, s.AssetPath))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnection, "unable to open database", err)
	}

	return sqldb.Open(ctx, db, s, mapError)
}

// resolve places relative database files under dir. In-memory databases
// and file: URIs are used as given.
func resolve(name, dir string) string {
	switch {
	case name == ":memory:", strings.HasPrefix(name, "file:"), filepath.IsAbs(name), dir == "":
		return name
	}
	return filepath.Join(dir, name)
}

// mapError classifies SQLite result codes.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		detail := fmt.Sprintf("%s: %s", msg, sqliteErr.Error())
		// Extended codes carry the primary code in the low byte.
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_IOERR:
			return errs.Wrap(errs.ErrKindConnection, detail, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
			return errs.Wrap(errs.ErrKindTimeout, detail, err)
		default:
			return errs.Wrap(errs.ErrKindQueryExecution, detail, err)
		}
	}

	return sqldb.MapError(err, msg)
}
