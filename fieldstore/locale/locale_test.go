package locale

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/internal/fixtures"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
)

func newLocalizer() *Localizer {
	n := 0
	return New(Config{Locales: fixtures.Locales, DefaultLocale: "en", Fallback: true}, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("row-%d", n)
	}))
}

func TestLocalizedHasManyAllLocales(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.TextFields)

	stored, err := l.Expand(fields, map[string]any{"localizedHasMany": []any{"text1", "text2"}}, nil, "en")
	require.NoError(t, err)

	all := l.Collapse(fields, stored, Selector{Locale: All})
	slots := all["localizedHasMany"].(map[string]any)
	assert.Equal(t, []any{"text1", "text2"}, slots["en"])
	assert.Contains(t, slots, "es")
	assert.Contains(t, slots, "de")
	assert.Empty(t, slots["es"])
}

func TestHasManyIsAlwaysASequence(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.TextFields)
	for _, in := range []any{nil, []any{}, "single", []any{"one"}} {
		stored, err := l.Expand(fields, map[string]any{"hasMany": in}, nil, "en")
		require.NoError(t, err)
		_, ok := stored["hasMany"].([]any)
		assert.True(t, ok, "input %#v stored as %#v", in, stored["hasMany"])
	}
}

func TestRoundTripPerLocale(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.ArrayFields)

	en := map[string]any{"localized": []any{map[string]any{"id": "a", "text": "english"}}}
	es := map[string]any{"localized": []any{map[string]any{"id": "a", "text": "spanish"}}}

	stored, err := l.Expand(fields, en, nil, "en")
	require.NoError(t, err)
	stored, err = l.Expand(fields, es, stored, "es")
	require.NoError(t, err)

	if diff := cmp.Diff(en, l.Collapse(fields, stored, Selector{Locale: "en"})); diff != "" {
		t.Fatalf("en round trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(es, l.Collapse(fields, stored, Selector{Locale: "es"})); diff != "" {
		t.Fatalf("es round trip (-want +got):\n%s", diff)
	}
}

func TestExpandDoesNotTouchOtherLocales(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.TextFields)
	stored, err := l.Expand(fields, map[string]any{"localizedText": "hello"}, nil, "en")
	require.NoError(t, err)
	before := schema.Clone(stored["localizedText"].(map[string]any)["en"])

	stored, err = l.Expand(fields, map[string]any{"localizedText": "hola"}, stored, "es")
	require.NoError(t, err)
	slots := stored["localizedText"].(map[string]any)
	assert.Equal(t, before, slots["en"])
	assert.Equal(t, "hola", slots["es"])
}

func TestNestedLocalizedSurvivesRowReplacement(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.ArrayFields)

	stored, err := l.Expand(fields, map[string]any{
		"rowsWithLocalizedText": []any{map[string]any{"title": "english", "note": "n1"}},
	}, nil, "en")
	require.NoError(t, err)

	// Row written without its id in another locale.
	stored, err = l.Expand(fields, map[string]any{
		"rowsWithLocalizedText": []any{map[string]any{"title": "spanish", "note": "n2"}},
	}, stored, "es")
	require.NoError(t, err)

	row := stored["rowsWithLocalizedText"].([]any)[0].(map[string]any)
	assert.Equal(t, "row-1", row["id"])
	assert.Equal(t, "n2", row["note"])
	assert.Equal(t, map[string]any{"en": "english", "es": "spanish", "de": nil}, row["title"])
}

func TestRowIdentity(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.ArrayFields)

	stored, err := l.Expand(fields, map[string]any{"items": []any{
		map[string]any{"text": "a"},
		map[string]any{"text": "b"},
	}}, nil, "en")
	require.NoError(t, err)
	rows := stored["items"].([]any)
	idA := rows[0].(map[string]any)["id"]
	idB := rows[1].(map[string]any)["id"]
	require.NotEqual(t, idA, idB)

	// Reorder and append.
	stored, err = l.Expand(fields, map[string]any{"items": []any{
		map[string]any{"id": idB, "text": "b"},
		map[string]any{"id": idA, "text": "a"},
		map[string]any{"text": "c"},
	}}, stored, "en")
	require.NoError(t, err)
	rows = stored["items"].([]any)
	assert.Equal(t, idB, rows[0].(map[string]any)["id"])
	assert.Equal(t, idA, rows[1].(map[string]any)["id"])
	idC := rows[2].(map[string]any)["id"]
	assert.NotContains(t, []any{idA, idB}, idC)
}

func TestDuplicateRowIDsAreReassigned(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.ArrayFields)
	stored, err := l.Expand(fields, map[string]any{"items": []any{
		map[string]any{"id": "same", "text": "a"},
		map[string]any{"id": "same", "text": "b"},
	}}, nil, "en")
	require.NoError(t, err)
	rows := stored["items"].([]any)
	assert.Equal(t, "same", rows[0].(map[string]any)["id"])
	assert.NotEqual(t, "same", rows[1].(map[string]any)["id"])
}

func TestCollapseFallback(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.TextFields)
	stored, err := l.Expand(fields, map[string]any{"localizedText": "hello"}, nil, "en")
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, "hello", l.Collapse(fields, stored, cfg.Selector("es", ""))["localizedText"])
	assert.Nil(t, l.Collapse(fields, stored, cfg.Selector("es", NoFallback))["localizedText"])
	assert.Equal(t, "hello", l.Collapse(fields, stored, cfg.Selector("de", "en"))["localizedText"])
}

func TestCollapseToleratesStrippedSubtrees(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.TabsFields)
	stored := map[string]any{"tab": map[string]any{"text": "kept"}}
	out := l.Collapse(fields, stored, Selector{Locale: "en"})
	assert.Equal(t, map[string]any{"tab": map[string]any{"text": "kept"}}, out)
}

func TestLocalizedBlocksKeepVariant(t *testing.T) {
	l := newLocalizer()
	fields := fixtures.Fields(fixtures.BlockFields)
	in := map[string]any{"localizedBlocks": []any{
		map[string]any{"blockType": "content", "text": "hi", "blockName": "intro"},
	}}
	stored, err := l.Expand(fields, in, nil, "en")
	require.NoError(t, err)
	out := l.Collapse(fields, stored, Selector{Locale: "en"})
	row := out["localizedBlocks"].([]any)[0].(map[string]any)
	assert.Equal(t, "content", row["blockType"])
	assert.Equal(t, "intro", row["blockName"])
	assert.Equal(t, "row-1", row["id"])
}

func TestExpandUnknownBlockIsStructural(t *testing.T) {
	l := newLocalizer()
	_, err := l.Expand(fixtures.Fields(fixtures.BlockFields), map[string]any{
		"blocks": []any{map[string]any{"blockType": "unknown"}},
	}, nil, "en")
	require.Error(t, err)
	assert.True(t, fserrors.IsKind(err, fserrors.ErrStructural))
}

func TestConfigResolve(t *testing.T) {
	cfg := Config{Locales: []string{"en", "es"}, DefaultLocale: "en"}
	got, err := cfg.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "en", got)
	got, err = cfg.Resolve(All)
	require.NoError(t, err)
	assert.Equal(t, All, got)
	_, err = cfg.Resolve("fr")
	assert.Error(t, err)
}
