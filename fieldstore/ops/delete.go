package ops

import (
	"context"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
)

// Delete removes a document with its leaves and unique keys. It reports
// whether the document existed.
func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fserrors.Wrap(fserrors.ErrSQL, "begin transaction", err)
	}
	defer tx.Rollback()

	sqlt := s.Dialect.SQL
	if err := deleteIndexRows(ctx, tx, sqlt, collection, id); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, sqlt.DeleteDocument, collection, id)
	if err != nil {
		return false, fserrors.Wrap(fserrors.ErrSQL, "delete document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fserrors.Wrap(fserrors.ErrSQL, "delete document", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fserrors.Wrap(fserrors.ErrSQL, "commit", err)
	}
	return n > 0, nil
}
