// Package paths maps logical dot paths onto storage paths.
//
// Storage paths are dot separated keys into the storage shape of a document,
// with three conventions:
//
//   - array and block rows carry no index, so a condition on a row path
//     matches when any row matches;
//   - block row fields are addressed through their variant, as in
//     "layout#content.text";
//   - localized fields are followed by their locale code, as in
//     "title.en".
package paths

import (
	"fmt"
	"strings"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
)

// VariantSep joins a block field to the variant its row fields belong to.
const VariantSep = "#"

var idField = &schema.Field{Kind: schema.KindText, Name: schema.KeyID}

var blockTypeField = &schema.Field{Kind: schema.KindText, Name: schema.KeyBlockType}

// Join describes a condition on a related collection. Documents of the local
// collection match when LocalPath holds an id of a Collection document that
// matches ForeignPath. TagPath is set for polymorphic relationships and must
// equal Collection on the same document.
type Join struct {
	LocalPath   string
	TagPath     string
	Collection  string
	ForeignPath string
}

// Target is one concrete place a logical path can address.
type Target struct {
	// Path is the storage path for direct conditions; empty for joins.
	Path string
	// Field is the leaf field whose type governs literal coercion. For paths
	// into json and rich text values it is that field.
	Field *schema.Field
	// Nested is set when Path points inside a json or rich text value.
	Nested bool
	Join   *Join
}

func (t Target) String() string {
	if t.Join != nil {
		return fmt.Sprintf("%s -> %s.%s", t.Join.LocalPath, t.Join.Collection, t.Join.ForeignPath)
	}
	return t.Path
}

// Resolution lists the alternatives a logical path expands to; a condition
// on the path matches when it matches on any alternative.
type Resolution struct {
	Alternatives []Target
}

// Options qualifies one resolution.
type Options struct {
	// Locale pins unqualified localized fields to one slot. Empty or "all"
	// matches across every configured locale.
	Locale string
}

// Resolver resolves paths against a compiled registry. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	reg     *schema.Registry
	locales locale.Config
}

func NewResolver(reg *schema.Registry, locales locale.Config) *Resolver {
	return &Resolver{reg: reg, locales: locales}
}

// Resolve maps logical on collection to its storage alternatives. A segment
// that no field (or no block variant) declares is a structural error.
func (r *Resolver) Resolve(collection, logical string, opts Options) (*Resolution, error) {
	c, ok := r.reg.Collection(collection)
	if !ok {
		return nil, fserrors.Structural(logical, fmt.Sprintf("unknown collection %q", collection))
	}
	segs := strings.Split(logical, ".")
	for _, s := range segs {
		if s == "" {
			return nil, fserrors.Structural(logical, "empty path segment")
		}
	}
	if len(segs) == 1 && segs[0] == schema.KeyID {
		return &Resolution{Alternatives: []Target{{Path: schema.KeyID, Field: idField}}}, nil
	}
	rs := &resolution{r: r, logical: logical, opts: opts}
	targets, err := rs.level(c.Fields, segs, "")
	if err != nil {
		return nil, err
	}
	return &Resolution{Alternatives: targets}, nil
}

type resolution struct {
	r       *Resolver
	logical string
	opts    Options
}

func (rs *resolution) fail(msg string, args ...any) error {
	return fserrors.Structural(rs.logical, fmt.Sprintf(msg, args...))
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func (rs *resolution) level(fields []*schema.Field, segs []string, prefix string) ([]Target, error) {
	f, ok := schema.Lookup(fields, segs[0])
	if !ok {
		return nil, rs.fail("no field %q at %q", segs[0], prefix)
	}
	base := join(prefix, f.Name)
	rest := segs[1:]

	if !f.Localized || !rs.r.locales.Enabled() {
		return rs.field(f, base, rest)
	}

	var codes []string
	switch {
	case len(rest) > 0 && rs.r.locales.Has(rest[0]):
		codes, rest = rest[:1], rest[1:]
	case rs.opts.Locale != "" && rs.opts.Locale != locale.All:
		codes = []string{rs.opts.Locale}
	default:
		codes = rs.r.locales.Locales
	}
	var out []Target
	for _, code := range codes {
		ts, err := rs.field(f, base+"."+code, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	return out, nil
}

func (rs *resolution) field(f *schema.Field, base string, rest []string) ([]Target, error) {
	switch f.Kind {
	case schema.KindJSON, schema.KindRichText:
		p := base
		if len(rest) > 0 {
			p = base + "." + strings.Join(rest, ".")
		}
		return []Target{{Path: p, Field: f, Nested: len(rest) > 0}}, nil

	case schema.KindGroup, schema.KindTab:
		if len(rest) == 0 {
			return nil, rs.fail("%q is a group, not a value", base)
		}
		return rs.level(f.Fields, rest, base)

	case schema.KindArray:
		if len(rest) == 0 {
			return nil, rs.fail("%q is an array, not a value", base)
		}
		if len(rest) == 1 && rest[0] == schema.KeyID {
			return []Target{{Path: base + "." + schema.KeyID, Field: idField}}, nil
		}
		return rs.level(f.Fields, rest, base)

	case schema.KindBlocks:
		return rs.blocks(f, base, rest)

	case schema.KindRelationship:
		return rs.relationship(f, base, rest)
	}

	if len(rest) > 0 {
		return nil, rs.fail("%q is a %s field and has no %q", base, f.Kind, rest[0])
	}
	return []Target{{Path: base, Field: f}}, nil
}

// blocks expands a path into every variant that can resolve the remainder.
func (rs *resolution) blocks(f *schema.Field, base string, rest []string) ([]Target, error) {
	if len(rest) == 0 {
		return nil, rs.fail("%q is a blocks field, not a value", base)
	}
	if len(rest) == 1 {
		switch rest[0] {
		case schema.KeyID:
			return []Target{{Path: base + "." + schema.KeyID, Field: idField}}, nil
		case schema.KeyBlockType:
			return []Target{{Path: base + "." + schema.KeyBlockType, Field: blockTypeField}}, nil
		}
	}
	var (
		out      []Target
		firstErr error
	)
	for _, b := range f.Blocks {
		if _, ok := schema.Lookup(b.Fields, rest[0]); !ok {
			continue
		}
		ts, err := rs.level(b.Fields, rest, base+VariantSep+b.Slug)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, ts...)
	}
	if len(out) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, rs.fail("no block of %q declares %q", base, rest[0])
	}
	return out, nil
}

func (rs *resolution) relationship(f *schema.Field, base string, rest []string) ([]Target, error) {
	local, tag := base, ""
	if f.Polymorphic() {
		local, tag = base+"."+schema.KeyValue, base+"."+schema.KeyRelation
		if len(rest) == 1 && rest[0] == schema.KeyRelation {
			return []Target{{Path: tag, Field: &schema.Field{Kind: schema.KindSelect, Name: schema.KeyRelation, Options: f.RelationTo}}}, nil
		}
		if len(rest) == 1 && rest[0] == schema.KeyValue {
			rest = nil
		}
	}
	if len(rest) == 0 || (len(rest) == 1 && rest[0] == schema.KeyID && !f.Polymorphic()) {
		return []Target{{Path: local, Field: f}}, nil
	}

	foreign := strings.Join(rest, ".")
	var (
		out      []Target
		firstErr error
	)
	for _, slug := range f.RelationTo {
		// The foreign path is checked now so an unresolvable path is
		// rejected before any query runs. Segments shrink on every hop, so
		// self references terminate.
		if _, err := rs.r.Resolve(slug, foreign, rs.opts); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, Target{Field: f, Join: &Join{
			LocalPath:   local,
			TagPath:     tag,
			Collection:  slug,
			ForeignPath: foreign,
		}})
	}
	if len(out) == 0 {
		return nil, firstErr
	}
	return out, nil
}
