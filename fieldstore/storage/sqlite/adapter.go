// Package sqlite stores documents in a SQLite database. The pure Go driver
// "sqlite" is the default; builds with cgo can select "sqlite3".
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	msqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/ops"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/fieldstore/storage/sqlbuilder"
)

// Adapter is a storage.Adapter over one SQLite file. Document operations are
// available after Init.
type Adapter struct {
	*ops.Store

	Path       string
	DriverName string
	Log        *logrus.Entry

	db *sql.DB
}

var _ storage.Adapter = (*Adapter)(nil)

func New(path string) *Adapter {
	return &Adapter{Path: path, DriverName: "sqlite"}
}

func NewWithDriver(path, driver string) *Adapter {
	return &Adapter{Path: path, DriverName: driver}
}

func (a *Adapter) Backend() storage.Backend {
	return storage.BackendSQLite
}

// Dialect is the SQLite flavour of the shared SQL operations.
var Dialect = storage.Dialect{
	Placeholder: sqlbuilder.PlaceholderQuestion,
	SQL:         SQLTemplates,
	ILike: func(column, placeholder string) string {
		return fmt.Sprintf(`%[1]s(%[2]s) LIKE %[1]s(%[3]s) ESCAPE '\'`, foldFunc, column, placeholder)
	},
	IsUniqueViolation: isUniqueViolation,
}

func (a *Adapter) connect(ctx context.Context) (*sql.DB, error) {
	dsn := a.Path
	if !strings.Contains(dsn, "?") {
		dsn = dsn + "?_busy_timeout=5000&_foreign_keys=on"
	} else {
		dsn = dsn + "&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open(driverFor(a.DriverName), dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Init opens the database and creates the tables. An existing database must
// carry the fieldstore magic.
func (a *Adapter) Init(ctx context.Context) error {
	db, err := a.connect(ctx)
	if err != nil {
		return fserrors.Wrap(fserrors.ErrIO, "connect to database", err)
	}
	if _, err := db.ExecContext(ctx, ddlBase); err != nil {
		db.Close()
		return fserrors.Wrap(fserrors.ErrSQL, "create tables", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")

	if err := initMeta(ctx, db, SQLTemplates); err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.Store = ops.NewStore(db, Dialect, a.Log)
	return nil
}

func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fserrors.Wrap(fserrors.ErrIO, "close database", err)
	}
	return nil
}

func initMeta(ctx context.Context, db *sql.DB, sqlt storage.SQL) error {
	var magic string
	err := db.QueryRowContext(ctx, sqlt.GetMeta, storage.MetaMagic).Scan(&magic)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fserrors.Wrap(fserrors.ErrSQL, "read meta", err)
	case magic != storage.Magic:
		return fserrors.New(fserrors.ErrSchema, "not a fieldstore database")
	default:
		return nil
	}
	if _, err := db.ExecContext(ctx, sqlt.SetMeta, storage.MetaMagic, storage.Magic); err != nil {
		return fserrors.Wrap(fserrors.ErrSQL, "write meta", err)
	}
	if _, err := db.ExecContext(ctx, sqlt.SetMeta, storage.MetaVersion, storage.Version); err != nil {
		return fserrors.Wrap(fserrors.ErrSQL, "write meta", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	if isCgoUniqueViolation(err) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
