// Package fieldstore runs documents declared by schema field trees through
// their write, read and query pipelines against a storage adapter.
//
// Writes resolve defaults, validate, expand localized input into storage
// shape and persist. Reads collapse stored documents to the requested locale
// and optionally populate relationships. Queries resolve logical paths,
// translate them into storage filters and page through the results.
package fieldstore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/paths"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/fieldstore/translate"
)

// Store is safe for concurrent use. The registry it serves is never
// modified.
type Store struct {
	reg        *schema.Registry
	adapter    storage.Adapter
	localizer  *locale.Localizer
	resolver   *paths.Resolver
	translator *translate.Translator
	opts       Options
	log        *logrus.Entry
}

// Open initialises adapter and returns a store serving the collections of
// reg.
func Open(ctx context.Context, reg *schema.Registry, adapter storage.Adapter, opts Options) (*Store, error) {
	if reg == nil {
		return nil, fserrors.SchemaError("no collections registered")
	}
	opts = opts.withDefaults()
	lc := opts.Locales
	if lc.Enabled() {
		if lc.DefaultLocale == "" {
			lc.DefaultLocale = lc.Locales[0]
		}
		if !lc.Has(lc.DefaultLocale) {
			return nil, fserrors.SchemaError(fmt.Sprintf("default locale %q is not configured", lc.DefaultLocale))
		}
	}
	opts.Locales = lc

	if err := adapter.Init(ctx); err != nil {
		return nil, err
	}

	resolver := paths.NewResolver(reg, lc)
	translator := translate.New(resolver, adapter,
		translate.WithMaxJoinDepth(opts.MaxJoinDepth),
		translate.WithLogger(opts.Log),
	)
	return &Store{
		reg:        reg,
		adapter:    adapter,
		localizer:  locale.New(lc, locale.WithIDGenerator(opts.NewRowID)),
		resolver:   resolver,
		translator: translator,
		opts:       opts,
		log:        opts.Log,
	}, nil
}

// Close releases the adapter.
func (s *Store) Close() error {
	return s.adapter.Close()
}

// Registry returns the compiled collections.
func (s *Store) Registry() *schema.Registry {
	return s.reg
}

// Adapter returns the storage adapter.
func (s *Store) Adapter() storage.Adapter {
	return s.adapter
}

func (s *Store) collection(slug string) (*schema.Collection, error) {
	c, ok := s.reg.Collection(slug)
	if !ok {
		return nil, fserrors.New(fserrors.ErrNotFound, fmt.Sprintf("unknown collection %q", slug))
	}
	return c, nil
}

// writeLocale resolves the slot a write targets. Writing to every locale at
// once is not possible.
func (s *Store) writeLocale(requested string) (string, error) {
	loc, err := s.opts.Locales.Resolve(requested)
	if err != nil {
		return "", err
	}
	if loc == locale.All {
		return "", fserrors.New(fserrors.ErrValidation, `cannot write with locale "all"`)
	}
	return loc, nil
}

func (s *Store) selector(opts ReadOptions) (locale.Selector, error) {
	loc, err := s.opts.Locales.Resolve(opts.Locale)
	if err != nil {
		return locale.Selector{}, err
	}
	return s.opts.Locales.Selector(loc, opts.FallbackLocale), nil
}
