package fieldstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonibytes/fieldstore/fieldstore/internal/fixtures"
	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/storage/sqlite"
)

// The scenarios below run the whole pipeline against a real SQLite file.

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	return openStore(t, sqlite.New(filepath.Join(t.TempDir(), "fieldstore.db")), testOptions())
}

func TestSQLiteDefaultsAndValidation(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "text field"})
	got, err := s.FindByID(ctx, fixtures.TextFields, doc["id"].(string), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "text field", got["text"])
	assert.Equal(t, fixtures.DefaultText, got["defaultFunction"])

	_, err = s.Create(ctx, fixtures.NumberFields, map[string]any{"min": 5.0}, WriteOptions{})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrValidation))
	issues, ok := AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, []string{"min"}, issues.Paths())
}

func TestSQLiteArrayRelationshipJoin(t *testing.T) {
	s := newSQLiteStore(t)
	alt := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "alt text"})
	other := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "other"})
	match := mustCreate(t, s, fixtures.RelationshipFields, map[string]any{"array": []any{
		map[string]any{"relationship": alt["id"]},
	}})
	mustCreate(t, s, fixtures.RelationshipFields, map[string]any{"array": []any{
		map[string]any{"relationship": other["id"]},
	}})

	page, err := s.FindWhere(context.Background(), fixtures.RelationshipFields, map[string]any{
		"array.relationship.text": map[string]any{"equals": "alt text"},
	}, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{match["id"].(string)}, docIDs(page))
}

func TestSQLiteLocalizedHasManyAtAll(t *testing.T) {
	s := newSQLiteStore(t)
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{
		"text":             "a",
		"localizedHasMany": []any{"text1", "text2"},
	})
	got, err := s.FindByID(context.Background(), fixtures.TextFields, doc["id"].(string), ReadOptions{Locale: locale.All})
	require.NoError(t, err)
	slots := got["localizedHasMany"].(map[string]any)
	assert.Equal(t, []any{"text1", "text2"}, slots["en"])
}

func TestSQLiteBlockDisjunction(t *testing.T) {
	s := newSQLiteStore(t)
	green := mustCreate(t, s, fixtures.BlockFields, map[string]any{"blocks": []any{
		map[string]any{"blockType": "richText", "richText": fixtures.RichTextDoc()},
		map[string]any{"blockType": "content", "text": "green"},
	}})
	mustCreate(t, s, fixtures.BlockFields, map[string]any{"blocks": []any{
		map[string]any{"blockType": "number", "number": 7.0},
	}})

	page, err := s.FindQuery(context.Background(), fixtures.BlockFields, `blocks.text:green`, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{green["id"].(string)}, docIDs(page))

	page, err = s.FindQuery(context.Background(), fixtures.BlockFields, `blocks.richText.children.text:~"THIS IS FUN"`, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{green["id"].(string)}, docIDs(page))
}

func TestSQLiteUpdatePreservesHasMany(t *testing.T) {
	s := newSQLiteStore(t)
	doc := mustCreate(t, s, fixtures.SelectFields, map[string]any{"select": "one", "selectHasMany": []any{"one", "two"}})
	ctx := context.Background()

	_, err := s.Update(ctx, fixtures.SelectFields, doc["id"].(string), map[string]any{"select": "three"}, WriteOptions{})
	require.NoError(t, err)

	page, err := s.FindQuery(ctx, fixtures.SelectFields, `selectHasMany:two AND select:three`, FindOptions{})
	require.NoError(t, err)
	require.Len(t, page.Docs, 1)
	assert.Equal(t, []any{"one", "two"}, page.Docs[0]["selectHasMany"])

	page, err = s.FindQuery(ctx, fixtures.SelectFields, `select:one`, FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Docs)
}

func TestSQLiteRelationToSelfAndNegation(t *testing.T) {
	s := newSQLiteStore(t)
	parent := mustCreate(t, s, fixtures.RelationshipFields, map[string]any{"text": "parent"})
	child := mustCreate(t, s, fixtures.RelationshipFields, map[string]any{"text": "child", "relationToSelf": parent["id"]})
	ctx := context.Background()

	page, err := s.FindQuery(ctx, fixtures.RelationshipFields, `relationToSelf.text:parent`, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{child["id"].(string)}, docIDs(page))

	page, err = s.FindQuery(ctx, fixtures.RelationshipFields, `!relationToSelf`, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{parent["id"].(string)}, docIDs(page))
}

func TestSQLiteUniquenessConflict(t *testing.T) {
	s := newSQLiteStore(t)
	mustCreate(t, s, fixtures.IndexedFields, map[string]any{"text": "a", "uniqueText": "taken", "point": []any{10.0, 20.0}})

	_, err := s.Create(context.Background(), fixtures.IndexedFields, map[string]any{"text": "b", "point": []any{10.0, 20.0}}, WriteOptions{})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrUniqueness))
	issues, _ := AsIssues(err)
	assert.Equal(t, []string{"point"}, issues.Paths())
}

func TestSQLiteUnresolvablePath(t *testing.T) {
	s := newSQLiteStore(t)
	_, err := s.FindWhere(context.Background(), fixtures.RelationshipFields, map[string]any{
		"relationToSelf.missing": map[string]any{"equals": "x"},
	}, FindOptions{})
	assert.True(t, IsKind(err, ErrStructural))
}

func TestSQLiteSortAndPage(t *testing.T) {
	s := newSQLiteStore(t)
	for _, n := range []float64{3, 1, 2} {
		mustCreate(t, s, fixtures.NumberFields, map[string]any{"number": n})
	}
	page, err := s.FindQuery(context.Background(), fixtures.NumberFields, `number>=2`, FindOptions{Limit: 1, Page: 2, Sort: "-number"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalDocs)
	require.Len(t, page.Docs, 1)
	assert.Equal(t, 2.0, page.Docs[0]["number"])
	assert.True(t, page.HasPrevPage)
	assert.False(t, page.HasNextPage)
}
