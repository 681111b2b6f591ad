// Package validate checks default-resolved write input against the schema.
package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
)

// Options describes one validation pass.
type Options struct {
	Locale    string
	Operation schema.Operation
}

// Deferred is a unique-constrained value whose check needs storage.
type Deferred struct {
	Path  string
	Field *schema.Field
	Value any
}

// Result is the outcome of a pass that was able to interpret the whole
// document. Issues are in traversal order.
type Result struct {
	Issues   fserrors.Issues
	Deferred []Deferred
}

func (r *Result) Valid() bool { return len(r.Issues) == 0 }

// Err returns the aggregated failure, or nil.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	return fserrors.Invalid(r.Issues)
}

// Validate walks data depth first in declaration order and collects every
// independent failure. It returns an error only when the document cannot be
// interpreted at all (an unknown block type).
func Validate(ctx context.Context, fields []*schema.Field, data map[string]any, opts Options) (*Result, error) {
	v := &validator{opts: opts, res: &Result{}}
	if err := schema.Walk(ctx, fields, data, data, schema.Path{}, v); err != nil {
		return nil, err
	}
	return v.res, nil
}

type validator struct {
	opts Options
	res  *Result
}

func (v *validator) add(path schema.Path, code, msg string) {
	v.res.Issues = append(v.res.Issues, fserrors.Issue{Path: path.String(), Code: code, Message: msg})
}

func (v *validator) Visit(ctx context.Context, n *schema.Node) error {
	f := n.Field
	val, _ := n.Value()

	if isEmpty(f, val) {
		if f.Required {
			if f.HasMany {
				v.add(n.Path, fserrors.CodeCardinality, "This field requires at least one value.")
			} else {
				v.add(n.Path, fserrors.CodeRequired, "This field is required.")
			}
			return nil
		}
		v.custom(ctx, n, val)
		return nil
	}

	ok := v.check(n, val)
	v.custom(ctx, n, val)
	if !ok || !f.Container() {
		return nil
	}
	return schema.Descend(ctx, n, val, v)
}

func (v *validator) custom(ctx context.Context, n *schema.Node, val any) {
	if n.Field.Validate == nil {
		return
	}
	err := n.Field.Validate(ctx, val, schema.ValidateContext{
		Path:      n.Path.String(),
		Field:     n.Field,
		Locale:    v.opts.Locale,
		Operation: v.opts.Operation,
		Siblings:  n.Siblings,
		Data:      n.Root,
	})
	if err != nil {
		v.add(n.Path, fserrors.CodeCustom, err.Error())
	}
}

// check runs the built-in constraints and reports whether val has the shape
// the field kind requires.
func (v *validator) check(n *schema.Node, val any) bool {
	f := n.Field
	if f.HasMany {
		items, ok := val.([]any)
		if !ok {
			v.add(n.Path, fserrors.CodeInvalidType, "This field must be a list of values.")
			return false
		}
		v.rows(n, len(items))
		shapeOK := true
		for i, it := range items {
			if !v.scalar(n, n.Path.Index(i), it) {
				shapeOK = false
			}
		}
		if shapeOK && f.Unique {
			v.res.Deferred = append(v.res.Deferred, Deferred{Path: n.Path.String(), Field: f, Value: val})
		}
		return shapeOK
	}

	switch f.Kind {
	case schema.KindGroup, schema.KindTab:
		if _, ok := val.(map[string]any); !ok {
			v.add(n.Path, fserrors.CodeInvalidType, "This field must be an object.")
			return false
		}
		return true
	case schema.KindArray, schema.KindBlocks:
		rows, ok := val.([]any)
		if !ok {
			v.add(n.Path, fserrors.CodeInvalidType, "This field must be a list of rows.")
			return false
		}
		for i, r := range rows {
			if _, ok := r.(map[string]any); !ok {
				v.add(n.Path.Index(i), fserrors.CodeInvalidType, "Each row must be an object.")
				return false
			}
		}
		v.rows(n, len(rows))
		return true
	}

	if !v.scalar(n, n.Path, val) {
		return false
	}
	if f.Unique {
		v.res.Deferred = append(v.res.Deferred, Deferred{Path: n.Path.String(), Field: f, Value: val})
	}
	return true
}

func (v *validator) rows(n *schema.Node, count int) {
	f := n.Field
	if f.MinRows != nil && count < *f.MinRows {
		v.add(n.Path, fserrors.CodeCardinality, fmt.Sprintf("This field requires at least %d row(s).", *f.MinRows))
	}
	if f.MaxRows != nil && count > *f.MaxRows {
		v.add(n.Path, fserrors.CodeCardinality, fmt.Sprintf("This field allows at most %d row(s).", *f.MaxRows))
	}
	if f.Required && count == 0 && !f.HasMany {
		v.add(n.Path, fserrors.CodeRequired, "This field is required.")
	}
}

// scalar checks one leaf value, or one element of a hasMany field.
func (v *validator) scalar(n *schema.Node, path schema.Path, val any) bool {
	f := n.Field
	switch f.Kind {
	case schema.KindText:
		s, ok := val.(string)
		if !ok {
			v.add(path, fserrors.CodeInvalidType, "This field must be text.")
			return false
		}
		l := len([]rune(s))
		if f.MinLength != nil && l < *f.MinLength {
			v.add(path, fserrors.CodeTooShort, fmt.Sprintf("This value must be longer than the minimum length of %d characters.", *f.MinLength))
		}
		if f.MaxLength != nil && l > *f.MaxLength {
			v.add(path, fserrors.CodeTooLong, fmt.Sprintf("This value must be shorter than the max length of %d characters.", *f.MaxLength))
		}
		return true

	case schema.KindNumber:
		x, ok := schema.AsFloat(val)
		if !ok {
			v.add(path, fserrors.CodeInvalidType, fmt.Sprintf("%v is not a valid number.", val))
			return false
		}
		if f.Min != nil && x < *f.Min {
			v.add(path, fserrors.CodeTooSmall, fmt.Sprintf("%v is less than the min allowed value of %v.", x, *f.Min))
		}
		if f.Max != nil && x > *f.Max {
			v.add(path, fserrors.CodeTooBig, fmt.Sprintf("%v is greater than the max allowed value of %v.", x, *f.Max))
		}
		return true

	case schema.KindDate:
		if _, ok := ParseDate(val); !ok {
			v.add(path, fserrors.CodeInvalidType, fmt.Sprintf("%v is not a valid date.", val))
			return false
		}
		return true

	case schema.KindCheckbox:
		if _, ok := val.(bool); !ok {
			v.add(path, fserrors.CodeInvalidType, "This field must be true or false.")
			return false
		}
		return true

	case schema.KindSelect:
		s, ok := val.(string)
		if !ok || !contains(f.Options, s) {
			v.add(path, fserrors.CodeInvalidOption, fmt.Sprintf("This field has an invalid selection: %v.", val))
			return false
		}
		return true

	case schema.KindJSON:
		if s, ok := val.(string); ok && !json.Valid([]byte(s)) {
			v.add(path, fserrors.CodeInvalidType, "This field must be valid JSON.")
			return false
		}
		if _, err := json.Marshal(val); err != nil {
			v.add(path, fserrors.CodeInvalidType, "This field must be valid JSON.")
			return false
		}
		return true

	case schema.KindRichText:
		nodes, ok := val.([]any)
		if !ok {
			v.add(path, fserrors.CodeInvalidType, "Rich text must be a list of nodes.")
			return false
		}
		for _, nd := range nodes {
			if _, ok := nd.(map[string]any); !ok {
				v.add(path, fserrors.CodeInvalidType, "Rich text nodes must be objects.")
				return false
			}
		}
		return true

	case schema.KindPoint:
		return v.point(path, val)

	case schema.KindRelationship:
		return v.relation(n, path, val)
	}
	v.add(path, fserrors.CodeInvalidType, fmt.Sprintf("unsupported field kind %s", f.Kind))
	return false
}

func (v *validator) point(path schema.Path, val any) bool {
	coords, ok := val.([]any)
	if !ok || len(coords) != 2 {
		v.add(path, fserrors.CodeInvalidType, "A point must be a [longitude, latitude] pair.")
		return false
	}
	lng, ok1 := schema.AsFloat(coords[0])
	lat, ok2 := schema.AsFloat(coords[1])
	if !ok1 || !ok2 {
		v.add(path, fserrors.CodeInvalidType, "Point coordinates must be numbers.")
		return false
	}
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		v.add(path, fserrors.CodeInvalidType, "Point coordinates are out of range.")
		return false
	}
	return true
}

func (v *validator) relation(n *schema.Node, path schema.Path, val any) bool {
	f := n.Field
	if !f.Polymorphic() {
		if id, ok := val.(string); ok && id != "" {
			return true
		}
		v.add(path, fserrors.CodeInvalidType, "This relationship must be a document id.")
		return false
	}
	m, ok := val.(map[string]any)
	if !ok {
		v.add(path, fserrors.CodeInvalidType, "This relationship must be an object with relationTo and value.")
		return false
	}
	rel, _ := m[schema.KeyRelation].(string)
	if !contains(f.RelationTo, rel) {
		v.add(path, fserrors.CodeInvalidOption, fmt.Sprintf("relationTo %q is not allowed here.", rel))
		return false
	}
	if id, ok := m[schema.KeyValue].(string); !ok || id == "" {
		v.add(path, fserrors.CodeInvalidType, "This relationship must carry a document id.")
		return false
	}
	return true
}

func isEmpty(f *schema.Field, val any) bool {
	switch t := val.(type) {
	case nil:
		return true
	case string:
		return t == "" && f.Kind != schema.KindJSON
	case []any:
		return len(t) == 0 && f.HasMany
	}
	return false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// ParseDate accepts RFC 3339 timestamps, plain dates and time.Time values.
func ParseDate(val any) (time.Time, bool) {
	switch t := val.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}
