package ops

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
)

// Create inserts doc with its leaves and unique keys in one transaction.
func (s *Store) Create(ctx context.Context, doc storage.Document) error {
	return s.put(ctx, doc, true)
}

// Update replaces the data, leaves and unique keys of a stored document.
func (s *Store) Update(ctx context.Context, doc storage.Document) error {
	return s.put(ctx, doc, false)
}

func (s *Store) put(ctx context.Context, doc storage.Document, create bool) error {
	dataJSON, err := json.Marshal(doc.Data)
	if err != nil {
		return fserrors.Wrap(fserrors.ErrIO, "encode document", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fserrors.Wrap(fserrors.ErrSQL, "begin transaction", err)
	}
	defer tx.Rollback()

	if err := ExecutePut(ctx, tx, s.Dialect, doc, dataJSON, create); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fserrors.Wrap(fserrors.ErrSQL, "commit", err)
	}
	s.Log.WithFields(logrus.Fields{
		"collection": doc.Collection,
		"id":         doc.ID,
		"leaves":     len(doc.Leaves),
	}).Debug("document stored")
	return nil
}

// ExecutePut writes doc inside tx. Old leaves and unique keys are replaced
// wholesale.
func ExecutePut(ctx context.Context, tx *sql.Tx, d storage.Dialect, doc storage.Document, dataJSON []byte, create bool) error {
	sqlt := d.SQL
	if create {
		_, err := tx.ExecContext(ctx, sqlt.InsertDocument, doc.Collection, doc.ID, string(dataJSON), toMS(doc.CreatedAt), toMS(doc.UpdatedAt))
		if err != nil {
			return fserrors.Wrap(fserrors.ErrSQL, "insert document", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, sqlt.UpdateDocument, doc.Collection, doc.ID, string(dataJSON), toMS(doc.UpdatedAt))
		if err != nil {
			return fserrors.Wrap(fserrors.ErrSQL, "update document", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fserrors.NotFoundError(doc.Collection, doc.ID)
		}
		if err := deleteIndexRows(ctx, tx, sqlt, doc.Collection, doc.ID); err != nil {
			return err
		}
	}

	for _, l := range doc.Leaves {
		var text, num any
		if l.Text != nil {
			text = *l.Text
		}
		if l.Num != nil {
			num = *l.Num
		}
		if _, err := tx.ExecContext(ctx, sqlt.InsertValue, doc.Collection, doc.ID, l.Path, text, num); err != nil {
			return fserrors.Wrap(fserrors.ErrSQL, fmt.Sprintf("insert value %s", l.Path), err)
		}
	}

	for _, l := range storage.UniqueKeys(doc) {
		violation := &storage.UniqueViolation{Collection: doc.Collection, Path: l.Logical, Value: l.Key()}
		var owner string
		err := tx.QueryRowContext(ctx, sqlt.FindUnique, doc.Collection, l.Path, l.Key()).Scan(&owner)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fserrors.Wrap(fserrors.ErrSQL, "find unique value", err)
		default:
			return violation
		}
		if _, err := tx.ExecContext(ctx, sqlt.InsertUnique, doc.Collection, l.Path, l.Key(), doc.ID); err != nil {
			// A concurrent writer claimed the value between check and insert.
			if d.IsUniqueViolation != nil && d.IsUniqueViolation(err) {
				return violation
			}
			return fserrors.Wrap(fserrors.ErrSQL, "insert unique value", err)
		}
	}
	return nil
}

func deleteIndexRows(ctx context.Context, tx *sql.Tx, sqlt storage.SQL, collection, id string) error {
	if _, err := tx.ExecContext(ctx, sqlt.DeleteValues, collection, id); err != nil {
		return fserrors.Wrap(fserrors.ErrSQL, "delete values", err)
	}
	if _, err := tx.ExecContext(ctx, sqlt.DeleteUniques, collection, id); err != nil {
		return fserrors.Wrap(fserrors.ErrSQL, "delete unique values", err)
	}
	return nil
}
