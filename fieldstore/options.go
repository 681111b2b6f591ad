package fieldstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nonibytes/fieldstore/fieldstore/defaults"
	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/query"
	"github.com/nonibytes/fieldstore/fieldstore/translate"
)

// DefaultLimit is the page size of Find when FindOptions.Limit is zero.
const DefaultLimit = 10

// ReadFilter strips the parts of a stored document the caller may not see.
// It receives and returns storage shape; removed fields are simply absent
// from the projection.
type ReadFilter func(ctx context.Context, collection string, stored map[string]any) map[string]any

// Options configures a Store
type Options struct {
	Locales locale.Config
	Log     *logrus.Entry
	Now     func() time.Time
	// NewID generates document ids; the default is a time ordered UUIDv7.
	NewID func() string
	// NewRowID generates array and block row ids; the default is a random UUID.
	NewRowID func() string

	MaxJoinDepth   int
	DefaultTimeout time.Duration
	Normalize      query.NormalizeOptions
	ReadFilter     ReadFilter
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		Log:            logrus.NewEntry(logrus.StandardLogger()),
		Now:            time.Now,
		NewID:          newDocumentID,
		NewRowID:       uuid.NewString,
		MaxJoinDepth:   translate.DefaultMaxJoinDepth,
		DefaultTimeout: defaults.DefaultTimeout,
		Normalize:      query.DefaultNormalizeOptions(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Log == nil {
		o.Log = d.Log
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.NewID == nil {
		o.NewID = d.NewID
	}
	if o.NewRowID == nil {
		o.NewRowID = d.NewRowID
	}
	if o.MaxJoinDepth <= 0 {
		o.MaxJoinDepth = d.MaxJoinDepth
	}
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = d.DefaultTimeout
	}
	if o.Normalize == (query.NormalizeOptions{}) {
		o.Normalize = d.Normalize
	}
	return o
}

func newDocumentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// WriteOptions qualifies one write.
type WriteOptions struct {
	// Locale is the slot localized input is written to. Empty means the
	// default locale.
	Locale string
}

// ReadOptions qualifies the projection of read documents.
type ReadOptions struct {
	// Locale selects the slot of localized fields; "all" returns every slot.
	Locale string
	// FallbackLocale overrides the configured fallback; "none" disables it.
	FallbackLocale string
	// Depth populates relationship values with related documents, recursively.
	Depth int
}

// FindOptions qualifies a query.
type FindOptions struct {
	ReadOptions
	// Limit is the page size; zero means DefaultLimit and a negative value
	// returns every match.
	Limit int
	Page  int
	// Sort is a logical field path, descending when prefixed with "-".
	Sort string
}

// Page is one page of query results.
type Page struct {
	Docs        []map[string]any
	TotalDocs   int
	Limit       int
	Page        int
	TotalPages  int
	HasNextPage bool
	HasPrevPage bool
}
