package paths

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
	"github.com/nonibytes/fieldstore/fieldstore/validate"
)

// DateLayout is the canonical text form of date leaves. It sorts
// lexicographically in time order.
const DateLayout = "2006-01-02T15:04:05.000Z"

// Leaf is one scalar of a stored document, addressed by storage path.
// Exactly one of Text and Num is set.
type Leaf struct {
	Path string
	Text *string
	Num  *float64

	// Unique marks leaves of unique fields; Logical is their indexed
	// logical path for error reporting.
	Unique  bool
	Logical string
}

// Key is the canonical string form of the leaf value.
func (l Leaf) Key() string {
	if l.Num != nil {
		return strconv.FormatFloat(*l.Num, 'g', -1, 64)
	}
	if l.Text != nil {
		return *l.Text
	}
	return ""
}

// CanonicalDate renders a date value in DateLayout.
func CanonicalDate(v any) (string, bool) {
	t, ok := validate.ParseDate(v)
	if !ok {
		return "", false
	}
	return t.UTC().Format(DateLayout), true
}

// Flatten lists the leaves of a storage-shape document in a stable order.
// The root id is included when present.
func Flatten(fields []*schema.Field, stored map[string]any, locales locale.Config) []Leaf {
	fl := &flattener{locales: locales}
	if id, ok := stored[schema.KeyID].(string); ok && id != "" {
		fl.text(schema.KeyID, id, nil, nil)
	}
	fl.level(fields, stored, "", schema.Path{})
	return fl.out
}

type flattener struct {
	locales locale.Config
	out     []Leaf
}

func (fl *flattener) text(path, s string, f *schema.Field, logical schema.Path) {
	fl.out = append(fl.out, Leaf{Path: path, Text: &s, Unique: f != nil && f.Unique, Logical: logical.String()})
}

func (fl *flattener) num(path string, x float64, f *schema.Field, logical schema.Path) {
	fl.out = append(fl.out, Leaf{Path: path, Num: &x, Unique: f != nil && f.Unique, Logical: logical.String()})
}

func (fl *flattener) level(fields []*schema.Field, m map[string]any, prefix string, logical schema.Path) {
	for _, f := range schema.NamedFields(fields) {
		v, ok := m[f.Name]
		if !ok || v == nil {
			continue
		}
		base := join(prefix, f.Name)
		lp := logical.Field(f.Name)
		if !f.Localized || !fl.locales.Enabled() {
			fl.value(f, v, base, lp)
			continue
		}
		slots, ok := v.(map[string]any)
		if !ok {
			continue
		}
		codes := make([]string, 0, len(slots))
		for code := range slots {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			if sv := slots[code]; sv != nil {
				fl.value(f, sv, base+"."+code, lp)
			}
		}
	}
}

func (fl *flattener) value(f *schema.Field, v any, base string, logical schema.Path) {
	if f.HasMany {
		items, _ := v.([]any)
		for i, it := range items {
			fl.scalar(f, it, base, logical.Index(i))
		}
		return
	}
	switch f.Kind {
	case schema.KindGroup, schema.KindTab:
		if m, ok := v.(map[string]any); ok {
			fl.level(f.Fields, m, base, logical)
		}
	case schema.KindArray, schema.KindBlocks:
		rows, _ := v.([]any)
		for i, r := range rows {
			row, ok := r.(map[string]any)
			if !ok {
				continue
			}
			lp := logical.Index(i)
			if id, ok := row[schema.KeyID].(string); ok {
				fl.text(base+"."+schema.KeyID, id, nil, nil)
			}
			if f.Kind == schema.KindArray {
				fl.level(f.Fields, row, base, lp)
				continue
			}
			tag, _ := row[schema.KeyBlockType].(string)
			b, ok := f.Block(tag)
			if !ok {
				continue
			}
			fl.text(base+"."+schema.KeyBlockType, tag, nil, nil)
			fl.level(b.Fields, row, base+VariantSep+tag, lp)
		}
	case schema.KindJSON, schema.KindRichText:
		fl.json(v, base)
	default:
		fl.scalar(f, v, base, logical)
	}
}

func (fl *flattener) scalar(f *schema.Field, v any, path string, logical schema.Path) {
	switch f.Kind {
	case schema.KindNumber:
		if x, ok := schema.AsFloat(v); ok {
			fl.num(path, x, f, logical)
		}
	case schema.KindDate:
		if s, ok := CanonicalDate(v); ok {
			fl.text(path, s, f, logical)
		}
	case schema.KindCheckbox:
		if b, ok := v.(bool); ok {
			fl.text(path, strconv.FormatBool(b), f, logical)
		}
	case schema.KindPoint:
		if s, ok := PointKey(v); ok {
			fl.text(path, s, f, logical)
		}
	case schema.KindRelationship:
		if f.Polymorphic() {
			m, _ := v.(map[string]any)
			if id, ok := m[schema.KeyValue].(string); ok {
				fl.text(path+"."+schema.KeyValue, id, f, logical)
			}
			if rel, ok := m[schema.KeyRelation].(string); ok {
				fl.text(path+"."+schema.KeyRelation, rel, nil, nil)
			}
			return
		}
		if id, ok := v.(string); ok {
			fl.text(path, id, f, logical)
		}
	default:
		if s, ok := v.(string); ok {
			fl.text(path, s, f, logical)
		}
	}
}

// json flattens free-form values: object keys extend the path, list
// elements share it.
func (fl *flattener) json(v any, path string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fl.json(t[k], path+"."+k)
		}
	case []any:
		for _, e := range t {
			fl.json(e, path)
		}
	case string:
		fl.text(path, t, nil, nil)
	case bool:
		fl.text(path, strconv.FormatBool(t), nil, nil)
	case nil:
	default:
		if x, ok := schema.AsFloat(t); ok {
			fl.num(path, x, nil, nil)
		}
	}
}

// PointKey renders a [lng, lat] pair as "lng,lat".
func PointKey(v any) (string, bool) {
	coords, ok := v.([]any)
	if !ok || len(coords) != 2 {
		return "", false
	}
	lng, ok1 := schema.AsFloat(coords[0])
	lat, ok2 := schema.AsFloat(coords[1])
	if !ok1 || !ok2 {
		return "", false
	}
	return strings.Join([]string{
		strconv.FormatFloat(lng, 'g', -1, 64),
		strconv.FormatFloat(lat, 'g', -1, 64),
	}, ","), true
}

// Now renders t in DateLayout.
func Now(t time.Time) string { return t.UTC().Format(DateLayout) }
