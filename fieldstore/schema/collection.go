package schema

import (
	"fmt"
	"regexp"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
)

// Collection declares the field tree of one kind of document.
type Collection struct {
	Slug       string
	Fields     []*Field
	Timestamps bool
}

// Registry holds compiled collections. It is built once at startup and never
// mutated afterwards, so it is shared freely across requests.
type Registry struct {
	collections map[string]*Collection
	order       []string
}

var validFieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var validSlugRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Compile validates collections and returns an immutable registry.
func Compile(cols ...Collection) (*Registry, error) {
	r := &Registry{collections: make(map[string]*Collection, len(cols))}
	for _, c := range cols {
		if !validSlugRe.MatchString(c.Slug) {
			return nil, fserrors.SchemaError(fmt.Sprintf("invalid collection slug %q", c.Slug))
		}
		if _, dup := r.collections[c.Slug]; dup {
			return nil, fserrors.SchemaError(fmt.Sprintf("duplicate collection slug %q", c.Slug))
		}
		fields := append([]*Field{}, c.Fields...)
		if c.Timestamps {
			fields = append(fields,
				&Field{Kind: KindDate, Name: KeyCreatedAt},
				&Field{Kind: KindDate, Name: KeyUpdatedAt},
			)
		}
		r.collections[c.Slug] = &Collection{Slug: c.Slug, Fields: fields, Timestamps: c.Timestamps}
		r.order = append(r.order, c.Slug)
	}

	for _, slug := range r.order {
		c := r.collections[slug]
		ck := &checker{reg: r, collection: slug}
		if err := ck.level(c.Fields, Path{}, map[string]bool{KeyID: true}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Collection returns the compiled collection for slug.
func (r *Registry) Collection(slug string) (*Collection, bool) {
	c, ok := r.collections[slug]
	return c, ok
}

// Slugs returns collection slugs in registration order.
func (r *Registry) Slugs() []string {
	return append([]string{}, r.order...)
}

type checker struct {
	reg        *Registry
	collection string
}

func (ck *checker) fail(path Path, msg string) error {
	return fserrors.SchemaError(fmt.Sprintf("collection %s: field %q: %s", ck.collection, path.String(), msg))
}

// level checks one namespace level. reserved carries keys the level may not
// declare (row ids, block tags).
func (ck *checker) level(fields []*Field, path Path, reserved map[string]bool) error {
	seen := map[string]bool{}
	for _, f := range NamedFields(fields) {
		p := path.Field(f.Name)
		if !validFieldNameRe.MatchString(f.Name) {
			return ck.fail(p, "invalid name (must match ^[A-Za-z_][A-Za-z0-9_]*$)")
		}
		if reserved[f.Name] {
			return ck.fail(p, "name is reserved")
		}
		if seen[f.Name] {
			return ck.fail(p, "duplicate name at this level")
		}
		seen[f.Name] = true
		if err := ck.field(f, p); err != nil {
			return err
		}
	}
	return ck.layout(fields, path)
}

// layout checks unnamed groupings, whose children were already checked as
// part of the enclosing level.
func (ck *checker) layout(fields []*Field, path Path) error {
	for _, f := range fields {
		if f.Named() {
			continue
		}
		switch f.Kind {
		case KindGroup, KindTab:
		case KindTabs:
			for _, t := range f.Fields {
				if t.Kind != KindTab {
					return ck.fail(path, "tabs may only contain tab fields")
				}
			}
		default:
			return ck.fail(path, fmt.Sprintf("%s field needs a name", f.Kind))
		}
		if err := ck.layout(f.Fields, path); err != nil {
			return err
		}
	}
	return nil
}

func (ck *checker) field(f *Field, p Path) error {
	if f.HasMany {
		switch f.Kind {
		case KindText, KindNumber, KindSelect, KindDate, KindRelationship:
		default:
			return ck.fail(p, fmt.Sprintf("hasMany is not supported on %s fields", f.Kind))
		}
	}
	switch f.Kind {
	case KindText, KindNumber, KindDate, KindCheckbox, KindJSON, KindRichText, KindPoint:
		return nil
	case KindSelect:
		if len(f.Options) == 0 {
			return ck.fail(p, "select needs options")
		}
		return nil
	case KindRelationship:
		if len(f.RelationTo) == 0 {
			return ck.fail(p, "relationship needs relationTo")
		}
		for _, target := range f.RelationTo {
			if _, ok := ck.reg.collections[target]; !ok {
				return ck.fail(p, fmt.Sprintf("unknown relationTo collection %q", target))
			}
		}
		return nil
	case KindGroup, KindTab:
		return ck.level(f.Fields, p, nil)
	case KindArray:
		if len(f.Fields) == 0 {
			return ck.fail(p, "array needs a row schema")
		}
		return ck.level(f.Fields, p, map[string]bool{KeyID: true})
	case KindBlocks:
		if len(f.Blocks) == 0 {
			return ck.fail(p, "blocks needs at least one block")
		}
		slugs := map[string]bool{}
		for _, b := range f.Blocks {
			if b.Slug == "" || slugs[b.Slug] {
				return ck.fail(p, fmt.Sprintf("invalid or duplicate block slug %q", b.Slug))
			}
			slugs[b.Slug] = true
			if err := ck.level(b.Fields, p, map[string]bool{KeyID: true, KeyBlockType: true}); err != nil {
				return err
			}
		}
		return nil
	default:
		return ck.fail(p, fmt.Sprintf("unknown field kind %q", f.Kind))
	}
}
