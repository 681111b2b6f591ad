// Package locale converts between the single-locale application shape of a
// document and its locale-keyed storage shape.
package locale

import (
	"fmt"

	"github.com/google/uuid"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
)

// All selects every locale slot on read.
const All = "all"

// NoFallback disables fallback for one read.
const NoFallback = "none"

// Config lists the locales a deployment stores. With no locales configured,
// localized fields are stored like any other field.
type Config struct {
	Locales       []string
	DefaultLocale string
	// Fallback substitutes the default locale's value when the requested
	// slot is empty.
	Fallback bool
}

func (c Config) Enabled() bool { return len(c.Locales) > 0 }

func (c Config) Has(code string) bool {
	for _, l := range c.Locales {
		if l == code {
			return true
		}
	}
	return false
}

// Resolve maps a requested locale to a concrete code, "all", or the default.
func (c Config) Resolve(requested string) (string, error) {
	if !c.Enabled() {
		return requested, nil
	}
	switch {
	case requested == "":
		return c.DefaultLocale, nil
	case requested == All, c.Has(requested):
		return requested, nil
	}
	return "", fserrors.New(fserrors.ErrValidation, fmt.Sprintf("unknown locale %q", requested))
}

// Selector chooses what a read returns for localized fields.
type Selector struct {
	Locale   string
	Fallback []string
}

// Selector builds the read selector for locale, honouring an explicit
// fallback locale ("none" disables fallback).
func (c Config) Selector(locale, fallback string) Selector {
	s := Selector{Locale: locale}
	switch {
	case fallback == NoFallback:
	case fallback != "":
		s.Fallback = []string{fallback}
	case c.Fallback && c.DefaultLocale != "" && c.DefaultLocale != locale:
		s.Fallback = []string{c.DefaultLocale}
	}
	return s
}

// Localizer expands and collapses documents for one locale configuration.
type Localizer struct {
	cfg   Config
	newID func() string
}

type Option func(*Localizer)

// WithIDGenerator replaces the UUID row id generator.
func WithIDGenerator(fn func() string) Option {
	return func(l *Localizer) { l.newID = fn }
}

func New(cfg Config, opts ...Option) *Localizer {
	l := &Localizer{cfg: cfg, newID: uuid.NewString}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Localizer) Config() Config { return l.cfg }

// Expand merges single-locale input written at locale into the existing
// storage-shape document and returns the new storage shape. Keys absent from
// input keep their stored value. For localized fields only the slot for
// locale is replaced, and every configured locale is given a slot. Array and
// block rows are matched to stored rows by id, falling back to position for
// rows written without one, so localized values nested in rows survive a
// write in another locale. Rows without a usable id get a fresh one.
func (l *Localizer) Expand(fields []*schema.Field, input, existing map[string]any, locale string) (map[string]any, error) {
	return l.expandLevel(fields, input, existing, locale, schema.Path{})
}

func (l *Localizer) expandLevel(fields []*schema.Field, in, old map[string]any, locale string, path schema.Path) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for _, f := range schema.NamedFields(fields) {
		p := path.Field(f.Name)
		inV, inPresent := in[f.Name]
		oldV, oldPresent := old[f.Name]
		if !inPresent {
			if oldPresent {
				out[f.Name] = schema.Clone(oldV)
			}
			continue
		}
		if !f.Localized || !l.cfg.Enabled() {
			v, err := l.expandValue(f, inV, oldV, locale, p)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
			continue
		}
		slots := make(map[string]any, len(l.cfg.Locales))
		if m, ok := oldV.(map[string]any); ok {
			for k, sv := range m {
				slots[k] = schema.Clone(sv)
			}
		}
		for _, code := range l.cfg.Locales {
			if _, ok := slots[code]; !ok {
				slots[code] = nil
			}
		}
		v, err := l.expandValue(f, inV, slots[locale], locale, p.Field(locale))
		if err != nil {
			return nil, err
		}
		slots[locale] = v
		out[f.Name] = slots
	}
	return out, nil
}

func (l *Localizer) expandValue(f *schema.Field, v, old any, locale string, path schema.Path) (any, error) {
	if f.HasMany {
		switch t := v.(type) {
		case nil:
			return []any{}, nil
		case []any:
			return schema.Clone(t), nil
		case []string:
			return schema.Clone(t), nil
		default:
			return []any{schema.Clone(t)}, nil
		}
	}
	if v == nil {
		return nil, nil
	}
	switch {
	case f.GroupLike():
		m, ok := v.(map[string]any)
		if !ok {
			return schema.Clone(v), nil
		}
		oldMap, _ := old.(map[string]any)
		return l.expandLevel(f.Fields, m, oldMap, locale, path)
	case f.Kind == schema.KindArray, f.Kind == schema.KindBlocks:
		rows, ok := v.([]any)
		if !ok {
			return schema.Clone(v), nil
		}
		oldRows, _ := old.([]any)
		return l.expandRows(f, rows, oldRows, locale, path)
	}
	return schema.Clone(v), nil
}

func (l *Localizer) expandRows(f *schema.Field, rows, oldRows []any, locale string, path schema.Path) ([]any, error) {
	byID := make(map[string]map[string]any, len(oldRows))
	for _, r := range oldRows {
		if m, ok := r.(map[string]any); ok {
			if id, _ := m[schema.KeyID].(string); id != "" {
				byID[id] = m
			}
		}
	}
	claimed := map[string]bool{}
	for _, r := range rows {
		if m, ok := r.(map[string]any); ok {
			if id, _ := m[schema.KeyID].(string); id != "" && byID[id] != nil {
				claimed[id] = true
			}
		}
	}

	used := make(map[string]bool, len(rows))
	out := make([]any, 0, len(rows))
	for i, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			out = append(out, schema.Clone(r))
			continue
		}
		rp := path.Index(i)

		id, _ := row[schema.KeyID].(string)
		var oldRow map[string]any
		switch {
		case id != "" && used[id]:
			id = ""
		case id != "":
			oldRow = byID[id]
		case i < len(oldRows):
			if m, ok := oldRows[i].(map[string]any); ok {
				if oid, _ := m[schema.KeyID].(string); oid != "" && !claimed[oid] && !used[oid] {
					id, oldRow = oid, m
				}
			}
		}
		if id == "" {
			id = l.newID()
		}
		used[id] = true

		fields := f.Fields
		if f.Kind == schema.KindBlocks {
			b, err := schema.VariantOf(f, row, rp)
			if err != nil {
				return nil, err
			}
			fields = b.Fields
			if oldRow != nil && oldRow[schema.KeyBlockType] != b.Slug {
				oldRow = nil
			}
		}
		expanded, err := l.expandLevel(fields, row, oldRow, locale, rp)
		if err != nil {
			return nil, err
		}
		expanded[schema.KeyID] = id
		if f.Kind == schema.KindBlocks {
			expanded[schema.KeyBlockType] = row[schema.KeyBlockType]
			if name, ok := row[schema.KeyBlockName]; ok {
				expanded[schema.KeyBlockName] = name
			}
		}
		out = append(out, expanded)
	}
	return out, nil
}

// Collapse projects a storage-shape document into application shape.
// Selecting All keeps locale maps; a concrete locale picks its slot, then
// the first populated fallback slot, then nil. Fields missing from stored
// (for example stripped by access control) are skipped.
func (l *Localizer) Collapse(fields []*schema.Field, stored map[string]any, sel Selector) map[string]any {
	return l.collapseLevel(fields, stored, sel)
}

func (l *Localizer) collapseLevel(fields []*schema.Field, stored map[string]any, sel Selector) map[string]any {
	out := make(map[string]any, len(stored))
	for _, f := range schema.NamedFields(fields) {
		v, ok := stored[f.Name]
		if !ok {
			continue
		}
		if !f.Localized || !l.cfg.Enabled() {
			out[f.Name] = l.collapseValue(f, v, sel)
			continue
		}
		slots, ok := v.(map[string]any)
		if !ok {
			out[f.Name] = l.collapseValue(f, v, sel)
			continue
		}
		if sel.Locale == All {
			all := make(map[string]any, len(slots))
			for code, sv := range slots {
				all[code] = l.collapseValue(f, sv, sel)
			}
			out[f.Name] = all
			continue
		}
		out[f.Name] = l.collapseValue(f, pick(slots, sel), sel)
	}
	return out
}

func pick(slots map[string]any, sel Selector) any {
	if v := slots[sel.Locale]; !empty(v) {
		return v
	}
	for _, fb := range sel.Fallback {
		if v := slots[fb]; !empty(v) {
			return v
		}
	}
	return slots[sel.Locale]
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

func (l *Localizer) collapseValue(f *schema.Field, v any, sel Selector) any {
	switch {
	case f.HasMany:
		if v == nil {
			return []any{}
		}
	case f.GroupLike():
		if m, ok := v.(map[string]any); ok {
			return l.collapseLevel(f.Fields, m, sel)
		}
	case f.Kind == schema.KindArray, f.Kind == schema.KindBlocks:
		rows, ok := v.([]any)
		if !ok {
			break
		}
		out := make([]any, 0, len(rows))
		for _, r := range rows {
			row, ok := r.(map[string]any)
			if !ok {
				continue
			}
			fields := f.Fields
			if f.Kind == schema.KindBlocks {
				tag, _ := row[schema.KeyBlockType].(string)
				b, ok := f.Block(tag)
				if !ok {
					continue
				}
				fields = b.Fields
			}
			c := l.collapseLevel(fields, row, sel)
			for _, k := range []string{schema.KeyID, schema.KeyBlockType, schema.KeyBlockName} {
				if rv, ok := row[k]; ok {
					c[k] = rv
				}
			}
			out = append(out, c)
		}
		return out
	}
	return schema.Clone(v)
}
