//go:build cgo

package sqlite

import (
	"database/sql"
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// DriverCgo selects github.com/mattn/go-sqlite3.
const DriverCgo = "sqlite3"

// cgoDriver is the mattn driver with the fold function installed on every
// connection.
const cgoDriver = "sqlite3_fieldstore"

func init() {
	sql.Register(cgoDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(foldFunc, fold, true)
		},
	})
}

func driverFor(name string) string {
	if name == DriverCgo {
		return cgoDriver
	}
	return name
}

func isCgoUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
