package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/internal/fixtures"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
)

func validate(t *testing.T, slug string, data map[string]any) *Result {
	t.Helper()
	res, err := Validate(context.Background(), fixtures.Fields(slug), data, Options{Locale: "en"})
	require.NoError(t, err)
	return res
}

func TestNumberBounds(t *testing.T) {
	cases := []struct {
		field string
		value float64
		code  string
	}{
		{"min", 5, fserrors.CodeTooSmall},
		{"max", 15, fserrors.CodeTooBig},
		{"positiveNumber", -5, fserrors.CodeTooSmall},
		{"negativeNumber", 5, fserrors.CodeTooBig},
		{"decimalMin", -0.25, fserrors.CodeTooSmall},
		{"decimalMax", 1.5, fserrors.CodeTooBig},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			res := validate(t, fixtures.NumberFields, map[string]any{tc.field: tc.value})
			require.Len(t, res.Issues, 1)
			assert.Equal(t, tc.field, res.Issues[0].Path)
			assert.Equal(t, tc.code, res.Issues[0].Code)
			assert.Equal(t, "The following field is invalid: "+tc.field, res.Err().Error())
		})
	}
}

func TestIntegerInputIsANumber(t *testing.T) {
	res := validate(t, fixtures.NumberFields, map[string]any{"min": 12})
	assert.True(t, res.Valid())
}

func TestCollectsEveryIssue(t *testing.T) {
	res := validate(t, fixtures.TextFields, map[string]any{
		"customError": "ab",
		"hasMany":     []any{"ok", 3.0},
	})
	assert.Equal(t, []string{"text", "customError", "hasMany.1"}, res.Issues.Paths())
	assert.Equal(t, "The following fields are invalid: text, customError, hasMany.1", res.Err().Error())
}

func TestRequiredHasManyIsCardinality(t *testing.T) {
	res := validate(t, fixtures.SelectFields, map[string]any{"selectRequiredHasMany": []any{}})
	require.Len(t, res.Issues, 1)
	assert.Equal(t, fserrors.CodeCardinality, res.Issues[0].Code)
}

func TestHasManyRowBounds(t *testing.T) {
	res := validate(t, fixtures.NumberFields, map[string]any{"hasMany": []any{1.0}})
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "hasMany", res.Issues[0].Path)
	assert.Equal(t, fserrors.CodeCardinality, res.Issues[0].Code)
}

func TestSelectOptions(t *testing.T) {
	res := validate(t, fixtures.SelectFields, map[string]any{
		"select":                "four",
		"selectHasMany":         []any{"one", "nine"},
		"selectRequiredHasMany": []any{"one"},
	})
	assert.Equal(t, []string{"select", "selectHasMany.1"}, res.Issues.Paths())
	for _, it := range res.Issues {
		assert.Equal(t, fserrors.CodeInvalidOption, it.Code)
	}
}

func TestArrayRowsCarryIndex(t *testing.T) {
	res := validate(t, fixtures.ArrayFields, map[string]any{
		"items": []any{
			map[string]any{"text": "fine"},
			map[string]any{},
		},
		"localized": []any{map[string]any{"text": "x"}},
		"limited":   []any{map[string]any{}, map[string]any{}, map[string]any{}},
	})
	assert.Equal(t, []string{"items.1.text", "limited"}, res.Issues.Paths())
}

func TestBlocksDispatchByVariant(t *testing.T) {
	res := validate(t, fixtures.BlockFields, map[string]any{
		"blocks": []any{
			map[string]any{"blockType": "content", "text": "hello"},
			map[string]any{"blockType": "number"},
			map[string]any{"blockType": "subBlocks", "subBlocks": []any{
				map[string]any{"blockType": "number", "number": "NaN"},
			}},
		},
	})
	assert.Equal(t, []string{"blocks.1.number", "blocks.2.subBlocks.0.number"}, res.Issues.Paths())
}

func TestUnknownBlockShortCircuits(t *testing.T) {
	_, err := Validate(context.Background(), fixtures.Fields(fixtures.BlockFields), map[string]any{
		"blocks": []any{map[string]any{"blockType": "gallery"}},
	}, Options{})
	require.Error(t, err)
	assert.True(t, fserrors.IsKind(err, fserrors.ErrStructural))
}

func TestJSONAndPoint(t *testing.T) {
	res := validate(t, fixtures.JSONFields, map[string]any{"json": "{ bad input: true }"})
	assert.Equal(t, "The following field is invalid: json", res.Err().Error())

	res = validate(t, fixtures.JSONFields, map[string]any{"json": map[string]any{"state": map[string]any{}}})
	assert.True(t, res.Valid())

	res = validate(t, fixtures.PointFields, map[string]any{"point": []any{7.0, 200.0}})
	assert.Equal(t, []string{"point"}, res.Issues.Paths())
}

func TestRelationshipShapes(t *testing.T) {
	res := validate(t, fixtures.RelationshipFields, map[string]any{
		"relationship":    map[string]any{"relationTo": fixtures.TextFields, "value": "abc"},
		"relationToSelf":  "def",
		"relationHasMany": []any{"a", "b"},
	})
	assert.True(t, res.Valid())

	res = validate(t, fixtures.RelationshipFields, map[string]any{
		"relationship":   map[string]any{"relationTo": "users", "value": "abc"},
		"relationToSelf": map[string]any{"id": "x"},
	})
	assert.Equal(t, []string{"relationship", "relationToSelf"}, res.Issues.Paths())
}

func TestCustomValidatorReceivesContext(t *testing.T) {
	var got schema.ValidateContext
	fields := []*schema.Field{
		{Kind: schema.KindGroup, Name: "g", Fields: []*schema.Field{
			{Kind: schema.KindText, Name: "a"},
			{Kind: schema.KindText, Name: "b", MaxLength: schema.IntPtr(10), Validate: func(_ context.Context, _ any, vc schema.ValidateContext) error {
				got = vc
				return nil
			}},
		}},
	}
	data := map[string]any{"g": map[string]any{"a": "sibling", "b": "x"}}
	_, err := Validate(context.Background(), fields, data, Options{Locale: "es", Operation: schema.OpUpdate})
	require.NoError(t, err)
	assert.Equal(t, "g.b", got.Path)
	assert.Equal(t, "es", got.Locale)
	assert.Equal(t, schema.OpUpdate, got.Operation)
	assert.Equal(t, "sibling", got.Siblings["a"])
	assert.Equal(t, 10, *got.Field.MaxLength)
	assert.Equal(t, data, got.Data)
}

func TestCustomValidatorMessage(t *testing.T) {
	res := validate(t, fixtures.TextFields, map[string]any{"text": "x", "validatesHasMany": "nope"})
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, "validatesHasMany", res.Issues[0].Path)
}

func TestUniqueFieldsAreDeferred(t *testing.T) {
	res := validate(t, fixtures.IndexedFields, map[string]any{
		"text":       "a",
		"uniqueText": "a",
		"group":      map[string]any{"localizedUnique": "b"},
	})
	require.True(t, res.Valid())
	require.Len(t, res.Deferred, 2)
	assert.Equal(t, "uniqueText", res.Deferred[0].Path)
	assert.Equal(t, "group.localizedUnique", res.Deferred[1].Path)
}
