package schema

import "context"

// Kind discriminates field definitions.
type Kind string

const (
	KindText         Kind = "text"
	KindNumber       Kind = "number"
	KindDate         Kind = "date"
	KindCheckbox     Kind = "checkbox"
	KindJSON         Kind = "json"
	KindRichText     Kind = "richText"
	KindPoint        Kind = "point"
	KindSelect       Kind = "select"
	KindRelationship Kind = "relationship"
	KindGroup        Kind = "group"
	KindArray        Kind = "array"
	KindBlocks       Kind = "blocks"
	KindTabs         Kind = "tabs"
	KindTab          Kind = "tab"
)

// Storage keys with fixed meaning.
const (
	KeyID        = "id"
	KeyBlockType = "blockType"
	KeyBlockName = "blockName"
	KeyRelation  = "relationTo"
	KeyValue     = "value"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
)

// Operation is the write intent a pipeline runs for.
type Operation uint8

const (
	OpCreate Operation = iota
	OpUpdate
)

func (op Operation) String() string {
	if op == OpUpdate {
		return "update"
	}
	return "create"
}

// Field is one node of the schema tree. Trees are built once and are read-only
// after Compile.
type Field struct {
	Kind      Kind
	Name      string
	Label     string
	Required  bool
	Localized bool
	HasMany   bool
	Unique    bool

	MinLength *int
	MaxLength *int
	Min       *float64
	Max       *float64
	MinRows   *int
	MaxRows   *int

	// Options lists the allowed values of a select field.
	Options []string
	// RelationTo lists target collection slugs; more than one makes the
	// relationship polymorphic.
	RelationTo []string

	// Fields holds children of group, tab and tabs fields, and the row schema
	// of array fields.
	Fields []*Field
	Blocks []*Block

	Default      Default
	Validate     ValidateFunc
	BeforeChange HookFunc
}

// Block is one tagged variant of a blocks field.
type Block struct {
	Slug   string
	Fields []*Field
}

// Named reports whether the field contributes a storage key segment.
func (f *Field) Named() bool {
	return f.Name != "" && f.Kind != KindTabs
}

// Container reports whether the field holds nested fields under its own key.
func (f *Field) Container() bool {
	switch f.Kind {
	case KindGroup, KindTab, KindArray, KindBlocks:
		return true
	}
	return false
}

// GroupLike reports whether the field stores a single nested object.
func (f *Field) GroupLike() bool {
	return f.Kind == KindGroup || f.Kind == KindTab
}

// Polymorphic reports whether a relationship targets several collections.
func (f *Field) Polymorphic() bool {
	return f.Kind == KindRelationship && len(f.RelationTo) > 1
}

// Block returns the variant tagged slug.
func (f *Field) Block(slug string) (*Block, bool) {
	for _, b := range f.Blocks {
		if b.Slug == slug {
			return b, true
		}
	}
	return nil, false
}

// IsScalar reports whether values of kind are leaves.
func IsScalar(k Kind) bool {
	switch k {
	case KindText, KindNumber, KindDate, KindCheckbox, KindJSON, KindRichText, KindPoint, KindSelect:
		return true
	}
	return false
}

// DefaultArgs is what computed defaults observe.
type DefaultArgs struct {
	Path      string
	Locale    string
	Operation Operation
	// Siblings holds the values resolved so far at the field's nesting level.
	Siblings map[string]any
	Data     map[string]any
}

type DefaultFunc func(args DefaultArgs) (any, error)

type AsyncDefaultFunc func(ctx context.Context, args DefaultArgs) (any, error)

// Default is a static literal, a synchronous function or an asynchronous
// function. The zero value declares no default.
type Default struct {
	Value any
	Func  DefaultFunc
	Async AsyncDefaultFunc
}

func Literal(v any) Default             { return Default{Value: v} }
func Computed(fn DefaultFunc) Default   { return Default{Func: fn} }
func Async(fn AsyncDefaultFunc) Default { return Default{Async: fn} }
func (d Default) IsZero() bool          { return d.Value == nil && d.Func == nil && d.Async == nil }
func (d Default) IsAsync() bool         { return d.Async != nil }
func (d Default) IsComputed() bool      { return d.Func != nil || d.Async != nil }

// ValidateContext is handed to custom validators.
type ValidateContext struct {
	Path      string
	Field     *Field
	Locale    string
	Operation Operation
	Siblings  map[string]any
	Data      map[string]any
}

// ValidateFunc returns nil when value is acceptable; the error text becomes
// the issue message.
type ValidateFunc func(ctx context.Context, value any, vc ValidateContext) error

// HookArgs is what BeforeChange hooks observe.
type HookArgs struct {
	Path      string
	Value     any
	Locale    string
	Operation Operation
	Siblings  map[string]any
	Data      map[string]any
}

// HookFunc transforms a field value after defaults are resolved.
type HookFunc func(ctx context.Context, args HookArgs) (any, error)

// IntPtr and FloatPtr help build constraint literals.
func IntPtr(v int) *int           { return &v }
func FloatPtr(v float64) *float64 { return &v }
