package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/planner"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
)

// FindByID loads one document; a missing document is a not_found error.
func (s *Store) FindByID(ctx context.Context, collection, id string) (*storage.Document, error) {
	var (
		dataJSON             string
		createdAt, updatedAt int64
	)
	err := s.DB.QueryRowContext(ctx, s.Dialect.SQL.GetDocument, collection, id).Scan(&dataJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fserrors.NotFoundError(collection, id)
	}
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrSQL, "get document", err)
	}
	return decodeDocument(collection, id, dataJSON, createdAt, updatedAt)
}

// Find returns one page of documents matching f, plus the total count.
func (s *Store) Find(ctx context.Context, collection string, f filter.Filter, page storage.Pagination) (*storage.Result, error) {
	b := s.Dialect.NewBuilder()
	compiled, err := planner.Compile(s.Dialect, b, collection, f)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrQueryRejected, "compile filter", err)
	}
	s.Log.WithFields(logrus.Fields{
		"collection": collection,
		"filter":     filter.Format(f),
		"steps":      strings.Join(compiled.ExplainSteps, "; "),
	}).Debug("find")

	res := &storage.Result{}
	if err := s.DB.QueryRowContext(ctx, planner.BuildCountSQL(compiled), b.Args()...).Scan(&res.Total); err != nil {
		return nil, fserrors.Wrap(fserrors.ErrSQL, "count documents", err)
	}

	// The sort key, when present, is bound after the count query's arguments.
	query := planner.BuildFindSQL(compiled, page, b)
	rows, err := s.DB.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrSQL, "find documents", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, dataJSON         string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&id, &dataJSON, &createdAt, &updatedAt); err != nil {
			return nil, fserrors.Wrap(fserrors.ErrSQL, "scan document", err)
		}
		doc, err := decodeDocument(collection, id, dataJSON, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		res.Docs = append(res.Docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fserrors.Wrap(fserrors.ErrSQL, "find documents", err)
	}
	return res, nil
}

// FindIDs lists the ids of every document matching f.
func (s *Store) FindIDs(ctx context.Context, collection string, f filter.Filter) ([]string, error) {
	b := s.Dialect.NewBuilder()
	compiled, err := planner.Compile(s.Dialect, b, collection, f)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrQueryRejected, "compile filter", err)
	}
	rows, err := s.DB.QueryContext(ctx, planner.BuildIDsSQL(compiled), b.Args()...)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrSQL, "find ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fserrors.Wrap(fserrors.ErrSQL, "scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fserrors.Wrap(fserrors.ErrSQL, "find ids", err)
	}
	return ids, nil
}

func decodeDocument(collection, id, dataJSON string, createdAt, updatedAt int64) (*storage.Document, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return nil, fserrors.Wrap(fserrors.ErrIO, fmt.Sprintf("decode document %s/%s", collection, id), err)
	}
	return &storage.Document{
		Collection: collection,
		ID:         id,
		Data:       data,
		CreatedAt:  fromMS(createdAt),
		UpdatedAt:  fromMS(updatedAt),
	}, nil
}
