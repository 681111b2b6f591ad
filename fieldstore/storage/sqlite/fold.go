package sqlite

import (
	"database/sql/driver"
	"strings"

	msqlite "modernc.org/sqlite"
)

// foldFunc lower cases text with Unicode rules. SQLite's LOWER only folds
// ASCII letters.
const foldFunc = "fieldstore_fold"

func init() {
	msqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, func(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		return fold(args[0]), nil
	})
}

func fold(v any) any {
	switch t := v.(type) {
	case string:
		return strings.ToLower(t)
	case []byte:
		return strings.ToLower(string(t))
	}
	return v
}
