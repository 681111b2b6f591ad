package schema

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
)

func textField(name string) *Field { return &Field{Kind: KindText, Name: name} }

func TestCompileAddsTimestamps(t *testing.T) {
	reg, err := Compile(Collection{Slug: "posts", Timestamps: true, Fields: []*Field{textField("title")}})
	require.NoError(t, err)

	c, ok := reg.Collection("posts")
	require.True(t, ok)
	_, ok = Lookup(c.Fields, KeyCreatedAt)
	assert.True(t, ok)
	_, ok = Lookup(c.Fields, KeyUpdatedAt)
	assert.True(t, ok)
	assert.Equal(t, []string{"posts"}, reg.Slugs())
}

func TestCompileRejectsDuplicateSiblingAfterPromotion(t *testing.T) {
	_, err := Compile(Collection{Slug: "tabs", Fields: []*Field{
		textField("text"),
		{Kind: KindTabs, Fields: []*Field{
			{Kind: KindTab, Fields: []*Field{textField("text")}},
		}},
	}})
	require.Error(t, err)
	assert.True(t, fserrors.IsKind(err, fserrors.ErrSchema))
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestCompileAllowsSameNameInNamedTab(t *testing.T) {
	_, err := Compile(Collection{Slug: "tabs", Fields: []*Field{
		textField("text"),
		{Kind: KindTabs, Fields: []*Field{
			{Kind: KindTab, Name: "tab", Fields: []*Field{textField("text")}},
		}},
	}})
	require.NoError(t, err)
}

func TestCompileRejections(t *testing.T) {
	cases := []struct {
		name   string
		fields []*Field
		want   string
	}{
		{"reserved id", []*Field{textField("id")}, "reserved"},
		{"bad name", []*Field{textField("has-dash")}, "invalid name"},
		{"row id", []*Field{{Kind: KindArray, Name: "items", Fields: []*Field{textField("id")}}}, "reserved"},
		{"block tag", []*Field{{Kind: KindBlocks, Name: "blocks", Blocks: []*Block{
			{Slug: "content", Fields: []*Field{textField("blockType")}},
		}}}, "reserved"},
		{"dup block slug", []*Field{{Kind: KindBlocks, Name: "blocks", Blocks: []*Block{
			{Slug: "content"}, {Slug: "content"},
		}}}, "duplicate block slug"},
		{"unknown relation", []*Field{{Kind: KindRelationship, Name: "rel", RelationTo: []string{"nope"}}}, "unknown relationTo"},
		{"empty select", []*Field{{Kind: KindSelect, Name: "sel"}}, "needs options"},
		{"hasMany group", []*Field{{Kind: KindGroup, Name: "g", HasMany: true}}, "hasMany"},
		{"unnamed text", []*Field{{Kind: KindText}}, "needs a name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(Collection{Slug: "c", Fields: tc.fields})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCompileSelfRelationship(t *testing.T) {
	_, err := Compile(Collection{Slug: "relationship-fields", Fields: []*Field{
		{Kind: KindRelationship, Name: "relationToSelf", RelationTo: []string{"relationship-fields"}},
	}})
	require.NoError(t, err)
}

func TestWalkPromotesUnnamedAndDescends(t *testing.T) {
	fields := []*Field{
		textField("a"),
		{Kind: KindGroup, Fields: []*Field{textField("b")}},
		{Kind: KindArray, Name: "rows", Fields: []*Field{textField("c")}},
		{Kind: KindBlocks, Name: "blocks", Blocks: []*Block{
			{Slug: "content", Fields: []*Field{textField("text")}},
			{Slug: "num", Fields: []*Field{{Kind: KindNumber, Name: "n"}}},
		}},
	}
	doc := map[string]any{
		"rows":   []any{map[string]any{"c": "x"}, map[string]any{"c": "y"}},
		"blocks": []any{map[string]any{"blockType": "num", "n": 1.0}, map[string]any{"blockType": "content"}},
	}

	var seen []string
	var visit VisitorFunc
	visit = func(ctx context.Context, n *Node) error {
		seen = append(seen, n.Path.String())
		if n.Field.Container() {
			v, _ := n.Value()
			return Descend(ctx, n, v, visit)
		}
		return nil
	}
	require.NoError(t, Walk(context.Background(), fields, doc, doc, nil, visit))
	assert.Equal(t, []string{"a", "b", "rows", "rows.0.c", "rows.1.c", "blocks", "blocks.0.n", "blocks.1.text"}, seen)
}

func TestDescendUnknownBlockIsStructural(t *testing.T) {
	f := &Field{Kind: KindBlocks, Name: "blocks", Blocks: []*Block{{Slug: "content"}}}
	n := &Node{Field: f, Path: Path{"blocks"}}
	err := Descend(context.Background(), n, []any{map[string]any{"blockType": "bogus"}}, VisitorFunc(func(context.Context, *Node) error { return nil }))
	require.Error(t, err)
	assert.True(t, fserrors.IsKind(err, fserrors.ErrStructural))
}

const yamlSchema = `
collections:
  - slug: text-fields
    timestamps: true
    fields:
      - {name: text, type: text, required: true}
      - {name: localizedText, type: text, localized: true}
      - {name: count, type: number, min: 10, defaultValue: 12}
      - name: layout
        type: tabs
        tabs:
          - name: tab
            fields:
              - {name: text, type: text}
          - fields:
              - {name: promoted, type: text}
      - name: blocks
        type: blocks
        blocks:
          - slug: content
            fields:
              - {name: text, type: text}
      - {name: parent, type: relationship, relationTo: text-fields}
`

func TestLoadYAML(t *testing.T) {
	reg, err := LoadYAML(strings.NewReader(yamlSchema))
	require.NoError(t, err)

	c, ok := reg.Collection("text-fields")
	require.True(t, ok)

	count, ok := Lookup(c.Fields, "count")
	require.True(t, ok)
	assert.Equal(t, 12.0, count.Default.Value)
	assert.Equal(t, 10.0, *count.Min)

	_, ok = Lookup(c.Fields, "promoted")
	assert.True(t, ok)
	tab, ok := Lookup(c.Fields, "tab")
	require.True(t, ok)
	assert.Equal(t, KindTab, tab.Kind)

	parent, ok := Lookup(c.Fields, "parent")
	require.True(t, ok)
	assert.Equal(t, []string{"text-fields"}, parent.RelationTo)
}

func TestLoadYAMLUnknownKey(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("collections:\n  - slug: x\n    bogus: 1\n"))
	require.Error(t, err)
	assert.True(t, fserrors.IsKind(err, fserrors.ErrSchema))
}
