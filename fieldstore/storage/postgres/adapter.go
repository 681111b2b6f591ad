// Package postgres stores documents in PostgreSQL through pgx, inside a
// dedicated schema selected with search_path.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/ops"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/fieldstore/storage/sqlbuilder"
)

// uniqueViolation is the SQLSTATE of unique_violation.
const uniqueViolation = "23505"

type Adapter struct {
	*ops.Store

	DSN    string
	Schema string // used as dedicated schema via search_path
	Log    *logrus.Entry

	db *sql.DB
}

var _ storage.Adapter = (*Adapter)(nil)

func New(dsn, schema string) *Adapter {
	return &Adapter{DSN: dsn, Schema: schema}
}

func (a *Adapter) Backend() storage.Backend { return storage.BackendPostgres }

// Dialect is the PostgreSQL flavour of the shared SQL operations.
var Dialect = storage.Dialect{
	Placeholder: sqlbuilder.PlaceholderDollar,
	SQL:         SQLTemplates,
	ILike: func(column, placeholder string) string {
		return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, column, placeholder)
	},
	IsUniqueViolation: isUniqueViolation,
}

var schemaNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(ident string) string {
	// ident is validated to contain no quotes; safe to wrap
	return `"` + ident + `"`
}

func (a *Adapter) ensureSchema(ctx context.Context, db *sql.DB) error {
	if a.Schema == "" || !schemaNameRe.MatchString(a.Schema) {
		return fmt.Errorf("invalid postgres schema name %q (must match %s)", a.Schema, schemaNameRe.String())
	}
	_, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(a.Schema))
	return err
}

func (a *Adapter) connect(ctx context.Context) (*sql.DB, error) {
	// 1) Connect without search_path to ensure schema exists
	cfg0, err := pgx.ParseConfig(a.DSN)
	if err != nil {
		return nil, err
	}
	db0 := stdlib.OpenDB(*cfg0)
	if err := db0.PingContext(ctx); err != nil {
		_ = db0.Close()
		return nil, err
	}
	if err := a.ensureSchema(ctx, db0); err != nil {
		_ = db0.Close()
		return nil, err
	}
	_ = db0.Close()

	// 2) Connect with search_path pinned to the schema
	cfg, err := pgx.ParseConfig(a.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = make(map[string]string)
	}
	cfg.RuntimeParams["search_path"] = fmt.Sprintf("%s,public", quoteIdent(a.Schema))

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Init connects, creates the schema and tables and checks the meta magic.
func (a *Adapter) Init(ctx context.Context) error {
	db, err := a.connect(ctx)
	if err != nil {
		return fserrors.Wrap(fserrors.ErrIO, "connect to database", err)
	}
	if _, err := db.ExecContext(ctx, ddlBase); err != nil {
		db.Close()
		return fserrors.Wrap(fserrors.ErrSQL, "create tables", err)
	}

	var magic string
	err = db.QueryRowContext(ctx, SQLTemplates.GetMeta, storage.MetaMagic).Scan(&magic)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.ExecContext(ctx, SQLTemplates.SetMeta, storage.MetaMagic, storage.Magic); err != nil {
			db.Close()
			return fserrors.Wrap(fserrors.ErrSQL, "write meta", err)
		}
		if _, err := db.ExecContext(ctx, SQLTemplates.SetMeta, storage.MetaVersion, storage.Version); err != nil {
			db.Close()
			return fserrors.Wrap(fserrors.ErrSQL, "write meta", err)
		}
	case err != nil:
		db.Close()
		return fserrors.Wrap(fserrors.ErrSQL, "read meta", err)
	case magic != storage.Magic:
		db.Close()
		return fserrors.New(fserrors.ErrSchema, fmt.Sprintf("schema %s is not a fieldstore database", a.Schema))
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
