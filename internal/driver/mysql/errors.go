package mysql

import (
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/sqlsession/internal/driver/sqldb"
	"github.com/koustreak/sqlsession/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied     = 1045
	errUnknownDatabase  = 1049
	errServerShutdown   = 1053
	errConnCount        = 1040
	errLostConnection   = 2013
	errConnRefused      = 2003
	errServerGone       = 2006
	errDuplicateEntry   = 1062
	errBadFieldError    = 1054
	errParseError       = 1064
	errNoSuchTable      = 1146
	errNoReferencedRow  = 1452
	errRowIsReferenced  = 1451
	errLockWaitTimeout  = 1205
	errQueryInterrupted = 1317
	errMaxExecutionTime = 3024
)

// mapError converts a MySQL driver error into an *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gomysql.ErrInvalidConn) {
		return errs.Wrap(errs.ErrKindConnection, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		detail := fmt.Sprintf("%s: %s", msg, mysqlErr.Message)
		switch mysqlErr.Number {
		case errAccessDenied, errUnknownDatabase, errServerShutdown, errConnCount,
			errLostConnection, errConnRefused, errServerGone:
			return errs.Wrap(errs.ErrKindConnection, detail, err)
		case errLockWaitTimeout, errQueryInterrupted, errMaxExecutionTime:
			return errs.Wrap(errs.ErrKindTimeout, detail, err)
		case errDuplicateEntry, errBadFieldError, errParseError, errNoSuchTable,
			errNoReferencedRow, errRowIsReferenced:
			return errs.Wrap(errs.ErrKindQueryExecution, detail, err)
		}
	}

	return sqldb.MapError(err, msg)
}
