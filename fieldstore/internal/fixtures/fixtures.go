// Package fixtures holds the collection set exercised by the package tests.
package fixtures

import (
	"context"
	"errors"
	"time"

	"github.com/nonibytes/fieldstore/fieldstore/schema"
)

const (
	TextFields         = "text-fields"
	NumberFields       = "number-fields"
	SelectFields       = "select-fields"
	ArrayFields        = "array-fields"
	GroupFields        = "group-fields"
	TabsFields         = "tabs-fields"
	BlockFields        = "block-fields"
	RelationshipFields = "relationship-fields"
	IndexedFields      = "indexed-fields"
	JSONFields         = "json-fields"
	RichTextFields     = "rich-text-fields"
	DateFields         = "date-fields"
	PointFields        = "point-fields"
)

const (
	DefaultText          = "default-text"
	DefaultNumber        = 5.0
	NamedTabDefaultValue = "default text inside of a named tab"
	GroupDefaultValue    = "set from parent"
	GroupDefaultChild    = "child takes priority"
)

// ArrayDefaultValue is the literal default of the array-fields rows.
func ArrayDefaultValue() []any {
	return []any{
		map[string]any{"text": "row one"},
		map[string]any{"text": "row two"},
	}
}

func text(name string) *schema.Field { return &schema.Field{Kind: schema.KindText, Name: name} }

func number(name string) *schema.Field { return &schema.Field{Kind: schema.KindNumber, Name: name} }

func Collections() []schema.Collection {
	return []schema.Collection{
		{Slug: TextFields, Timestamps: true, Fields: []*schema.Field{
			{Kind: schema.KindText, Name: "text", Required: true},
			{Kind: schema.KindText, Name: "localizedText", Localized: true},
			{Kind: schema.KindText, Name: "defaultFunction", Default: schema.Computed(func(schema.DefaultArgs) (any, error) {
				return DefaultText, nil
			})},
			{Kind: schema.KindText, Name: "defaultAsync", Default: schema.Async(func(ctx context.Context, _ schema.DefaultArgs) (any, error) {
				select {
				case <-time.After(time.Millisecond):
					return DefaultText, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})},
			{Kind: schema.KindText, Name: "overrideLength", MaxLength: schema.IntPtr(50000)},
			{Kind: schema.KindText, Name: "fieldWithDefaultValue", Default: schema.Async(func(ctx context.Context, _ schema.DefaultArgs) (any, error) {
				select {
				case <-time.After(20 * time.Millisecond):
					return "some-value", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})},
			{Kind: schema.KindText, Name: "dependentOnFieldWithDefaultValue", BeforeChange: func(_ context.Context, args schema.HookArgs) (any, error) {
				if v, ok := args.Data["fieldWithDefaultValue"].(string); ok {
					return v, nil
				}
				return "", nil
			}},
			{Kind: schema.KindText, Name: "customError", MinLength: schema.IntPtr(3)},
			{Kind: schema.KindText, Name: "hasMany", HasMany: true},
			{Kind: schema.KindText, Name: "localizedHasMany", HasMany: true, Localized: true},
			{Kind: schema.KindText, Name: "validatesHasMany", HasMany: true, Validate: func(_ context.Context, v any, _ schema.ValidateContext) error {
				if v == nil {
					return nil
				}
				if _, ok := v.([]any); !ok {
					return errors.New("value should be an array")
				}
				return nil
			}},
		}},

		{Slug: NumberFields, Fields: []*schema.Field{
			number("number"),
			{Kind: schema.KindNumber, Name: "min", Min: schema.FloatPtr(10)},
			{Kind: schema.KindNumber, Name: "max", Max: schema.FloatPtr(10)},
			{Kind: schema.KindNumber, Name: "positiveNumber", Min: schema.FloatPtr(0)},
			{Kind: schema.KindNumber, Name: "negativeNumber", Max: schema.FloatPtr(0)},
			{Kind: schema.KindNumber, Name: "decimalMin", Min: schema.FloatPtr(0.5)},
			{Kind: schema.KindNumber, Name: "decimalMax", Max: schema.FloatPtr(0.5)},
			{Kind: schema.KindNumber, Name: "defaultNumber", Default: schema.Literal(DefaultNumber)},
			{Kind: schema.KindNumber, Name: "hasMany", HasMany: true, MinRows: schema.IntPtr(2), MaxRows: schema.IntPtr(5)},
			{Kind: schema.KindNumber, Name: "localizedHasMany", HasMany: true, Localized: true},
		}},

		{Slug: SelectFields, Fields: []*schema.Field{
			{Kind: schema.KindSelect, Name: "select", Options: []string{"one", "two", "three"}},
			{Kind: schema.KindSelect, Name: "selectHasMany", HasMany: true, Options: []string{"one", "two", "three"}},
			{Kind: schema.KindSelect, Name: "selectHasManyLocalized", HasMany: true, Localized: true, Options: []string{"one", "two"}},
			{Kind: schema.KindSelect, Name: "selectRequiredHasMany", HasMany: true, Options: []string{"one", "two"}, Default: schema.Literal([]any{"one"}), Required: true},
		}},

		{Slug: ArrayFields, Fields: []*schema.Field{
			{Kind: schema.KindArray, Name: "items", Required: true, Default: schema.Literal(ArrayDefaultValue()), Fields: []*schema.Field{
				{Kind: schema.KindText, Name: "text", Required: true},
				{Kind: schema.KindArray, Name: "subArray", Fields: []*schema.Field{text("text")}},
			}},
			{Kind: schema.KindArray, Name: "localized", Localized: true, Required: true, Default: schema.Literal(ArrayDefaultValue()), Fields: []*schema.Field{
				{Kind: schema.KindText, Name: "text", Required: true},
			}},
			{Kind: schema.KindArray, Name: "rowsWithLocalizedText", Fields: []*schema.Field{
				{Kind: schema.KindText, Name: "title", Localized: true},
				text("note"),
			}},
			{Kind: schema.KindArray, Name: "limited", MinRows: schema.IntPtr(1), MaxRows: schema.IntPtr(2), Fields: []*schema.Field{text("text")}},
		}},

		{Slug: GroupFields, Fields: []*schema.Field{
			{Kind: schema.KindGroup, Name: "group", Fields: []*schema.Field{
				{Kind: schema.KindText, Name: "text", Required: true, Default: schema.Literal("some text")},
				{Kind: schema.KindText, Name: "defaultParent", Default: schema.Literal(GroupDefaultValue)},
				{Kind: schema.KindText, Name: "defaultChild", Default: schema.Literal(GroupDefaultChild)},
				{Kind: schema.KindGroup, Name: "subGroup", Fields: []*schema.Field{
					{Kind: schema.KindText, Name: "textWithinGroup"},
					{Kind: schema.KindArray, Name: "arrayWithinGroup", Fields: []*schema.Field{text("textWithinArray")}},
				}},
			}},
			{Kind: schema.KindGroup, Name: "potentiallyEmptyGroup", Fields: []*schema.Field{text("text")}},
			{Kind: schema.KindGroup, Fields: []*schema.Field{text("promotedText")}},
		}},

		{Slug: TabsFields, Fields: []*schema.Field{
			{Kind: schema.KindTabs, Fields: []*schema.Field{
				{Kind: schema.KindTab, Fields: []*schema.Field{
					{Kind: schema.KindArray, Name: "array", Fields: []*schema.Field{text("text")}},
				}},
				{Kind: schema.KindTab, Name: "tab", Fields: []*schema.Field{
					text("text"),
					{Kind: schema.KindText, Name: "defaultValue", Default: schema.Literal(NamedTabDefaultValue)},
				}},
				{Kind: schema.KindTab, Name: "namedTabWithDefaultValue", Fields: []*schema.Field{
					{Kind: schema.KindText, Name: "defaultValue", Default: schema.Literal(NamedTabDefaultValue)},
				}},
				{Kind: schema.KindTab, Name: "localizedTab", Localized: true, Fields: []*schema.Field{text("text")}},
				{Kind: schema.KindTab, Name: "accessControlTab", Fields: []*schema.Field{text("text")}},
			}},
		}},

		{Slug: BlockFields, Fields: []*schema.Field{
			{Kind: schema.KindBlocks, Name: "blocks", Blocks: blockVariants()},
			{Kind: schema.KindBlocks, Name: "localizedBlocks", Localized: true, Blocks: blockVariants()},
			{Kind: schema.KindBlocks, Name: "relationshipBlocks", Blocks: []*schema.Block{
				{Slug: "relationships", Fields: []*schema.Field{
					{Kind: schema.KindRelationship, Name: "relationship", RelationTo: []string{TextFields}},
				}},
			}},
			{Kind: schema.KindBlocks, Name: "mixed", Blocks: []*schema.Block{
				{Slug: "label", Fields: []*schema.Field{text("value")}},
				{Slug: "metric", Fields: []*schema.Field{number("value")}},
			}},
		}},

		{Slug: RelationshipFields, Fields: []*schema.Field{
			text("text"),
			{Kind: schema.KindRelationship, Name: "relationship", RelationTo: []string{TextFields, ArrayFields}},
			{Kind: schema.KindRelationship, Name: "relationToSelf", RelationTo: []string{RelationshipFields}},
			{Kind: schema.KindRelationship, Name: "relationHasMany", HasMany: true, RelationTo: []string{TextFields}},
			{Kind: schema.KindArray, Name: "array", Fields: []*schema.Field{
				{Kind: schema.KindRelationship, Name: "relationship", RelationTo: []string{TextFields}},
			}},
		}},

		{Slug: IndexedFields, Fields: []*schema.Field{
			{Kind: schema.KindText, Name: "text", Required: true},
			{Kind: schema.KindText, Name: "uniqueText", Unique: true},
			{Kind: schema.KindPoint, Name: "point", Unique: true},
			{Kind: schema.KindGroup, Name: "group", Fields: []*schema.Field{
				{Kind: schema.KindText, Name: "localizedUnique", Unique: true, Localized: true},
			}},
		}},

		{Slug: JSONFields, Fields: []*schema.Field{
			{Kind: schema.KindJSON, Name: "json"},
		}},

		{Slug: RichTextFields, Fields: []*schema.Field{
			text("title"),
			{Kind: schema.KindRichText, Name: "richText"},
		}},

		{Slug: DateFields, Timestamps: true, Fields: []*schema.Field{
			{Kind: schema.KindDate, Name: "default", Required: true},
		}},

		{Slug: PointFields, Fields: []*schema.Field{
			{Kind: schema.KindPoint, Name: "point", Required: true},
			{Kind: schema.KindPoint, Name: "localized", Localized: true},
		}},
	}
}

func blockVariants() []*schema.Block {
	return []*schema.Block{
		{Slug: "content", Fields: []*schema.Field{{Kind: schema.KindText, Name: "text", Required: true}}},
		{Slug: "number", Fields: []*schema.Field{{Kind: schema.KindNumber, Name: "number", Required: true}}},
		{Slug: "subBlocks", Fields: []*schema.Field{
			{Kind: schema.KindBlocks, Name: "subBlocks", Blocks: []*schema.Block{
				{Slug: "text", Fields: []*schema.Field{text("text")}},
				{Slug: "number", Fields: []*schema.Field{number("number")}},
			}},
		}},
		{Slug: "richText", Fields: []*schema.Field{{Kind: schema.KindRichText, Name: "richText"}}},
	}
}

// Registry compiles Collections and panics on error.
func Registry() *schema.Registry {
	reg, err := schema.Compile(Collections()...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Fields returns the field tree of slug from a fresh registry.
func Fields(slug string) []*schema.Field {
	c, ok := Registry().Collection(slug)
	if !ok {
		panic("unknown fixture collection " + slug)
	}
	return c.Fields
}

// Locales used across tests; en is the default.
var Locales = []string{"en", "es", "de"}

// RichTextDoc is a rich text value whose first paragraph reads "hello, this is fun".
func RichTextDoc() []any {
	return []any{
		map[string]any{
			"type":      "p",
			"textAlign": "center",
			"children":  []any{map[string]any{"text": "hello, this is fun"}},
		},
		map[string]any{
			"type": "p",
			"children": []any{
				map[string]any{"type": "link", "linkType": "internal", "text": "a link"},
			},
		},
	}
}
