// Package storage defines the contract between the document pipeline and a
// storage engine. Documents travel in storage shape together with their
// flattened leaves; engines answer filter trees built by package translate.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/paths"
	"github.com/nonibytes/fieldstore/fieldstore/storage/sqlbuilder"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

// Adapter is a storage engine. Implementations must be safe for concurrent
// use and enforce uniqueness of Unique leaves per collection and path.
type Adapter interface {
	Backend() Backend

	Init(ctx context.Context) error
	Close() error

	// Create stores a new document. A clash on a unique leaf is reported as
	// *UniqueViolation.
	Create(ctx context.Context, doc Document) error
	// Update replaces a stored document and its leaves.
	Update(ctx context.Context, doc Document) error
	Delete(ctx context.Context, collection, id string) (bool, error)

	FindByID(ctx context.Context, collection, id string) (*Document, error)
	Find(ctx context.Context, collection string, f filter.Filter, p Pagination) (*Result, error)
	// FindIDs lists ids of matching documents. It makes an Adapter usable as
	// the join Finder of a translator.
	FindIDs(ctx context.Context, collection string, f filter.Filter) ([]string, error)
}

// Document is one stored document in storage shape.
type Document struct {
	Collection string
	ID         string
	Data       map[string]any
	// Leaves is the flattened form of Data, written alongside it.
	Leaves    []paths.Leaf
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pagination selects one page of a result. Page is 1-based; a zero Limit
// returns every match.
type Pagination struct {
	Limit int
	Page  int
	// Sort is a storage path, descending when prefixed with "-". Empty sorts
	// by creation time.
	Sort string
}

// Offset is the number of matches skipped before the page.
func (p Pagination) Offset() int {
	if p.Limit <= 0 || p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// SortKey splits Sort into path and direction.
func (p Pagination) SortKey() (path string, desc bool) {
	if len(p.Sort) > 0 && p.Sort[0] == '-' {
		return p.Sort[1:], true
	}
	return p.Sort, false
}

// Result is one page of matches plus the total match count.
type Result struct {
	Docs  []Document
	Total int
}

// UniqueViolation reports that a unique leaf is already held by another
// document. Path is the logical field path.
type UniqueViolation struct {
	Collection string
	Path       string
	Value      string
}

func (e *UniqueViolation) Error() string {
	return fmt.Sprintf("value %q of %s.%s is already taken", e.Value, e.Collection, e.Path)
}

// UniqueKeys lists the unique leaves of doc, one per storage path and value.
func UniqueKeys(doc Document) []paths.Leaf {
	seen := map[string]bool{}
	var out []paths.Leaf
	for _, l := range doc.Leaves {
		if !l.Unique {
			continue
		}
		k := l.Path + "\x00" + l.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, l)
	}
	return out
}

// Builder allocates placeholders while SQL is assembled.
type Builder interface {
	Arg(v any) string
	Args() []any
	Len() int
}

var _ Builder = (*sqlbuilder.Builder)(nil)

// Meta keys written by Init of the SQL adapters.
const (
	MetaMagic   = "fieldstore_magic"
	MetaVersion = "fieldstore_version"
	Magic       = "fieldstore"
	Version     = "1"
)

// Dialect captures what differs between the SQL engines.
type Dialect struct {
	Placeholder sqlbuilder.PlaceholderStyle
	SQL         SQL
	// ILike renders a case-insensitive LIKE of column against placeholder,
	// with backslash as escape character.
	ILike func(column, placeholder string) string
	// IsUniqueViolation reports a constraint failure on unique_values.
	IsUniqueViolation func(err error) bool
}

// NewBuilder starts a placeholder builder in the dialect's style.
func (d Dialect) NewBuilder() *sqlbuilder.Builder {
	return sqlbuilder.New(d.Placeholder)
}

// SQL holds the statement templates shared by the SQL adapters.
type SQL struct {
	GetMeta string
	SetMeta string

	GetDocument    string
	InsertDocument string
	UpdateDocument string
	DeleteDocument string

	InsertValue  string
	DeleteValues string

	FindUnique    string
	InsertUnique  string
	DeleteUniques string
}
