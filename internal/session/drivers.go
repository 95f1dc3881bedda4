package session

import (
	"github.com/koustreak/sqlsession/internal/config"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/driver/mysql"
	"github.com/koustreak/sqlsession/internal/driver/postgres"
	"github.com/koustreak/sqlsession/internal/driver/pq"
	"github.com/koustreak/sqlsession/internal/driver/sqlite"
	"github.com/koustreak/sqlsession/internal/errs"
)

var drivers = map[string]func() driver.Driver{
	config.DriverPostgres: func() driver.Driver { return postgres.New() },
	config.DriverPQ:       func() driver.Driver { return pq.New() },
	config.DriverMySQL:    func() driver.Driver { return mysql.New() },
	config.DriverSQLite:   func() driver.Driver { return sqlite.New() },
}

// Resolve returns the driver registered under name.
func Resolve(name string) (driver.Driver, error) {
	newDriver, ok := drivers[name]
	if !ok {
		return nil, errs.Configuration("unknown driver %q", name)
	}
	return newDriver(), nil
}
