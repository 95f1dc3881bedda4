package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/sqlsession/internal/errs"
)

// PostgreSQL SQLSTATE error codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrQueryCanceled = "57014"
	pgErrAdminShutdown = "57P01"
	pgErrCrashShutdown = "57P02"
	pgErrCannotConnect = "57P03"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// fallback is used for errors that carry no SQLSTATE.
func mapError(err error, msg string, fallback errs.ErrKind) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryExecution
		switch {
		// Class 08: connection errors
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			kind = errs.ErrKindConnection
		case pgErr.Code == pgErrAdminShutdown, pgErr.Code == pgErrCrashShutdown, pgErr.Code == pgErrCannotConnect:
			kind = errs.ErrKindConnection
		case pgErr.Code == pgErrQueryCanceled:
			kind = errs.ErrKindTimeout
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.ErrKindConnection, msg, err)
	}

	return errs.Wrap(fallback, msg, err)
}
