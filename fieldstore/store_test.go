package fieldstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/internal/fixtures"
	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/query"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/fieldstore/storage/memory"
)

func testOptions() Options {
	return Options{
		Locales: locale.Config{Locales: fixtures.Locales, DefaultLocale: "en", Fallback: true},
		Now:     func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func openStore(t *testing.T, adapter storage.Adapter, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), fixtures.Registry(), adapter, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newStore(t *testing.T) *Store {
	return openStore(t, memory.New(), testOptions())
}

func mustCreate(t *testing.T, s *Store, collection string, data map[string]any) map[string]any {
	t.Helper()
	doc, err := s.Create(context.Background(), collection, data, WriteOptions{})
	require.NoError(t, err)
	return doc
}

func docIDs(p *Page) []string {
	ids := make([]string, len(p.Docs))
	for i, d := range p.Docs {
		ids[i], _ = d["id"].(string)
	}
	return ids
}

func TestOpenRejectsUnknownDefaultLocale(t *testing.T) {
	opts := testOptions()
	opts.Locales.DefaultLocale = "fr"
	_, err := Open(context.Background(), fixtures.Registry(), memory.New(), opts)
	assert.True(t, fserrors.IsKind(err, fserrors.ErrSchema))
}

func TestCreateResolvesDefaults(t *testing.T) {
	s := newStore(t)
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "text field"})

	assert.Equal(t, "text field", doc["text"])
	assert.Equal(t, fixtures.DefaultText, doc["defaultFunction"])
	assert.Equal(t, fixtures.DefaultText, doc["defaultAsync"])
	assert.Equal(t, "some-value", doc["dependentOnFieldWithDefaultValue"])
	assert.Equal(t, "2024-05-01T12:00:00.000Z", doc["createdAt"])
	require.NotEmpty(t, doc["id"])

	got, err := s.FindByID(context.Background(), fixtures.TextFields, doc["id"].(string), ReadOptions{})
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Fatalf("read back (-created +read):\n%s", diff)
	}
}

func TestCreateIgnoresCallerIDAndTimestamps(t *testing.T) {
	s := newStore(t)
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{
		"id":        "chosen",
		"text":      "a",
		"createdAt": "1999-01-01T00:00:00.000Z",
	})
	assert.NotEqual(t, "chosen", doc["id"])
	assert.Equal(t, "2024-05-01T12:00:00.000Z", doc["createdAt"])
}

func TestCreateAggregatesValidation(t *testing.T) {
	s := newStore(t)
	_, err := s.Create(context.Background(), fixtures.NumberFields, map[string]any{"min": 5.0, "max": 20.0}, WriteOptions{})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrValidation))
	assert.Equal(t, "The following fields are invalid: min, max", err.Error())

	issues, ok := AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, []string{"min", "max"}, issues.Paths())

	page, err := s.Find(context.Background(), fixtures.NumberFields, nil, FindOptions{})
	require.NoError(t, err)
	assert.Zero(t, page.TotalDocs)
}

func TestCreateReportsDefaultAndValidationIssuesTogether(t *testing.T) {
	minimum := 10.0
	reg, err := schema.Compile(schema.Collection{Slug: "orders", Fields: []*schema.Field{
		{Kind: schema.KindText, Name: "code", Default: schema.Computed(func(schema.DefaultArgs) (any, error) {
			return nil, errors.New("sequence unavailable")
		})},
		{Kind: schema.KindText, Name: "reference", Required: true, Default: schema.Computed(func(schema.DefaultArgs) (any, error) {
			return nil, errors.New("sequence unavailable")
		})},
		{Kind: schema.KindNumber, Name: "quantity", Min: &minimum},
	}})
	require.NoError(t, err)
	s, err := Open(context.Background(), reg, memory.New(), testOptions())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Create(context.Background(), "orders", map[string]any{"quantity": 5.0}, WriteOptions{})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrValidation))
	issues, ok := AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, []string{"code", "reference", "quantity"}, issues.Paths())
	assert.Equal(t, fserrors.CodeDefaultFailed, issues[1].Code)
	assert.Equal(t, fserrors.CodeTooSmall, issues[2].Code)
}

func TestCreateUnknownCollection(t *testing.T) {
	s := newStore(t)
	_, err := s.Create(context.Background(), "nope", map[string]any{}, WriteOptions{})
	assert.True(t, IsKind(err, ErrNotFound))
}

func TestWriteRejectsAllLocale(t *testing.T) {
	s := newStore(t)
	_, err := s.Create(context.Background(), fixtures.TextFields, map[string]any{"text": "a"}, WriteOptions{Locale: locale.All})
	assert.True(t, IsKind(err, ErrValidation))
}

func TestLocalizedHasManyReadAtAll(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{
		"text":             "a",
		"localizedHasMany": []any{"text1", "text2"},
	})

	got, err := s.FindByID(ctx, fixtures.TextFields, doc["id"].(string), ReadOptions{Locale: locale.All})
	require.NoError(t, err)
	slots, ok := got["localizedHasMany"].(map[string]any)
	require.True(t, ok, "expected locale map, got %#v", got["localizedHasMany"])
	assert.Equal(t, []any{"text1", "text2"}, slots["en"])
	for _, code := range []string{"es", "de"} {
		if v, ok := slots[code]; ok {
			assert.Empty(t, v)
		}
	}
}

func TestUpdateWritesOneLocaleSlot(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "a", "localizedText": "hello"})
	id := doc["id"].(string)

	_, err := s.Update(ctx, fixtures.TextFields, id, map[string]any{"localizedText": "hola"}, WriteOptions{Locale: "es"})
	require.NoError(t, err)

	en, err := s.FindByID(ctx, fixtures.TextFields, id, ReadOptions{Locale: "en"})
	require.NoError(t, err)
	es, err := s.FindByID(ctx, fixtures.TextFields, id, ReadOptions{Locale: "es"})
	require.NoError(t, err)
	de, err := s.FindByID(ctx, fixtures.TextFields, id, ReadOptions{Locale: "de"})
	require.NoError(t, err)
	noFallback, err := s.FindByID(ctx, fixtures.TextFields, id, ReadOptions{Locale: "de", FallbackLocale: locale.NoFallback})
	require.NoError(t, err)

	assert.Equal(t, "hello", en["localizedText"])
	assert.Equal(t, "hola", es["localizedText"])
	assert.Equal(t, "hello", de["localizedText"])
	assert.Nil(t, noFallback["localizedText"])
}

func TestUpdatePreservesOmittedFields(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.SelectFields, map[string]any{
		"select":        "one",
		"selectHasMany": []any{"one", "two"},
	})
	assert.Equal(t, []any{"one"}, doc["selectRequiredHasMany"])

	got, err := s.Update(ctx, fixtures.SelectFields, doc["id"].(string), map[string]any{"select": "two"}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "two", got["select"])
	assert.Equal(t, []any{"one", "two"}, got["selectHasMany"])
}

func TestUpdateLeavesUntouchedLocalizedHasMany(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{
		"text":             "a",
		"localizedHasMany": []any{"one"},
	})
	id := doc["id"].(string)

	_, err := s.Update(ctx, fixtures.TextFields, id, map[string]any{"text": "b"}, WriteOptions{Locale: "es"})
	require.NoError(t, err)

	es, err := s.FindByID(ctx, fixtures.TextFields, id, ReadOptions{Locale: "es"})
	require.NoError(t, err)
	assert.Equal(t, "b", es["text"])
	assert.Equal(t, []any{"one"}, es["localizedHasMany"])

	stored, err := s.adapter.FindByID(ctx, fixtures.TextFields, id)
	require.NoError(t, err)
	slots := stored.Data["localizedHasMany"].(map[string]any)
	assert.Nil(t, slots["es"])
}

func TestEmptyLocalizedHasManyFallsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{
		"text":             "a",
		"localizedHasMany": []any{"one"},
	})
	id := doc["id"].(string)

	_, err := s.Update(ctx, fixtures.TextFields, id, map[string]any{"localizedHasMany": []any{}}, WriteOptions{Locale: "de"})
	require.NoError(t, err)

	de, err := s.FindByID(ctx, fixtures.TextFields, id, ReadOptions{Locale: "de"})
	require.NoError(t, err)
	assert.Equal(t, []any{"one"}, de["localizedHasMany"])

	none, err := s.FindByID(ctx, fixtures.TextFields, id, ReadOptions{Locale: "de", FallbackLocale: locale.NoFallback})
	require.NoError(t, err)
	assert.Empty(t, none["localizedHasMany"])
}

func TestUpdateKeepsCreatedAt(t *testing.T) {
	opts := testOptions()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts.Now = func() time.Time { return now }
	s := openStore(t, memory.New(), opts)
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "a"})

	now = now.Add(time.Hour)
	got, err := s.Update(context.Background(), fixtures.TextFields, doc["id"].(string), map[string]any{"text": "b"}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", got["createdAt"])
	assert.Equal(t, "2024-05-01T13:00:00.000Z", got["updatedAt"])
}

func TestUpdateMissingDocument(t *testing.T) {
	s := newStore(t)
	_, err := s.Update(context.Background(), fixtures.TextFields, "missing", map[string]any{"text": "a"}, WriteOptions{})
	assert.True(t, IsKind(err, ErrNotFound))
}

func TestArrayRowIDsSurviveReorder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.ArrayFields, map[string]any{
		"items": []any{map[string]any{"text": "first"}, map[string]any{"text": "second"}},
	})
	rows := doc["items"].([]any)
	first, second := rows[0].(map[string]any), rows[1].(map[string]any)
	require.NotEmpty(t, first["id"])
	require.NotEqual(t, first["id"], second["id"])

	got, err := s.Update(ctx, fixtures.ArrayFields, doc["id"].(string), map[string]any{
		"items": []any{second, first, map[string]any{"text": "third"}},
	}, WriteOptions{})
	require.NoError(t, err)
	rows = got["items"].([]any)
	assert.Equal(t, second["id"], rows[0].(map[string]any)["id"])
	assert.Equal(t, first["id"], rows[1].(map[string]any)["id"])
	third := rows[2].(map[string]any)["id"]
	assert.NotEmpty(t, third)
	assert.NotEqual(t, first["id"], third)
	assert.NotEqual(t, second["id"], third)
}

func TestUniquenessConflict(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.IndexedFields, map[string]any{"text": "a", "uniqueText": "taken"})

	_, err := s.Create(ctx, fixtures.IndexedFields, map[string]any{"text": "b", "uniqueText": "taken"}, WriteOptions{})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrUniqueness))
	issues, ok := AsIssues(err)
	require.True(t, ok)
	assert.Equal(t, []string{"uniqueText"}, issues.Paths())

	_, err = s.Update(ctx, fixtures.IndexedFields, doc["id"].(string), map[string]any{"text": "c"}, WriteOptions{})
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "a"})
	id := doc["id"].(string)

	require.NoError(t, s.Delete(ctx, fixtures.TextFields, id))
	_, err := s.FindByID(ctx, fixtures.TextFields, id, ReadOptions{})
	assert.True(t, IsKind(err, ErrNotFound))
	assert.True(t, IsKind(s.Delete(ctx, fixtures.TextFields, id), ErrNotFound))
}

func TestFindBlockDisjunction(t *testing.T) {
	s := newStore(t)
	green := mustCreate(t, s, fixtures.BlockFields, map[string]any{"blocks": []any{
		map[string]any{"blockType": "richText", "richText": fixtures.RichTextDoc()},
		map[string]any{"blockType": "content", "text": "green"},
	}})
	mustCreate(t, s, fixtures.BlockFields, map[string]any{"blocks": []any{
		map[string]any{"blockType": "content", "text": "red"},
	}})

	page, err := s.FindWhere(context.Background(), fixtures.BlockFields, map[string]any{
		"blocks.text": map[string]any{"equals": "green"},
	}, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{green["id"].(string)}, docIDs(page))
}

func TestFindThroughArrayRelationship(t *testing.T) {
	s := newStore(t)
	alt := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "alt text"})
	other := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "other"})
	match := mustCreate(t, s, fixtures.RelationshipFields, map[string]any{"array": []any{
		map[string]any{"relationship": other["id"]},
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

func TestFindRelationToSelf(t *testing.T) {
	s := newStore(t)
	parent := mustCreate(t, s, fixtures.RelationshipFields, map[string]any{"text": "parent"})
	child := mustCreate(t, s, fixtures.RelationshipFields, map[string]any{"text": "child", "relationToSelf": parent["id"]})

	page, err := s.FindQuery(context.Background(), fixtures.RelationshipFields, `relationToSelf.text:parent`, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{child["id"].(string)}, docIDs(page))
}

func TestFindUnresolvablePath(t *testing.T) {
	s := newStore(t)
	_, err := s.FindQuery(context.Background(), fixtures.BlockFields, `blocks.missing:x`, FindOptions{})
	assert.True(t, IsKind(err, ErrStructural))
}

func TestFindPaginationAndSort(t *testing.T) {
	s := newStore(t)
	for _, n := range []float64{3, 1, 5, 2, 4} {
		mustCreate(t, s, fixtures.NumberFields, map[string]any{"number": n})
	}
	ctx := context.Background()

	page, err := s.Find(ctx, fixtures.NumberFields, nil, FindOptions{Limit: 2, Sort: "-number"})
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalDocs)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.False(t, page.HasPrevPage)
	require.Len(t, page.Docs, 2)
	assert.Equal(t, 5.0, page.Docs[0]["number"])
	assert.Equal(t, 4.0, page.Docs[1]["number"])

	last, err := s.Find(ctx, fixtures.NumberFields, nil, FindOptions{Limit: 2, Page: 3, Sort: "number"})
	require.NoError(t, err)
	require.Len(t, last.Docs, 1)
	assert.Equal(t, 5.0, last.Docs[0]["number"])
	assert.False(t, last.HasNextPage)
	assert.True(t, last.HasPrevPage)

	all, err := s.Find(ctx, fixtures.NumberFields, nil, FindOptions{Limit: -1})
	require.NoError(t, err)
	assert.Len(t, all.Docs, 5)
	assert.Equal(t, 1, all.TotalPages)
}

func TestFindRejectsSortAcrossJoin(t *testing.T) {
	s := newStore(t)
	_, err := s.Find(context.Background(), fixtures.RelationshipFields, nil, FindOptions{Sort: "relationToSelf.text"})
	assert.True(t, IsKind(err, ErrQueryRejected))
}

func TestFindPinsExplicitLocale(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "a", "localizedText": "hello"})
	_, err := s.Update(ctx, fixtures.TextFields, doc["id"].(string), map[string]any{"localizedText": "hola"}, WriteOptions{Locale: "es"})
	require.NoError(t, err)

	where := query.Cond{Path: "localizedText", Op: query.OpEquals, Value: "hola"}
	across, err := s.Find(ctx, fixtures.TextFields, where, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, across.TotalDocs)

	en, err := s.Find(ctx, fixtures.TextFields, where, FindOptions{ReadOptions: ReadOptions{Locale: "en"}})
	require.NoError(t, err)
	assert.Zero(t, en.TotalDocs)
}

func TestFindByIDPopulatesRelationships(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	target := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "target"})
	parent := mustCreate(t, s, fixtures.RelationshipFields, map[string]any{"text": "parent"})
	doc := mustCreate(t, s, fixtures.RelationshipFields, map[string]any{
		"relationToSelf":  parent["id"],
		"relationship":    map[string]any{"relationTo": fixtures.TextFields, "value": target["id"]},
		"relationHasMany": []any{target["id"], "gone"},
	})
	id := doc["id"].(string)

	flat, err := s.FindByID(ctx, fixtures.RelationshipFields, id, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, parent["id"], flat["relationToSelf"])

	got, err := s.FindByID(ctx, fixtures.RelationshipFields, id, ReadOptions{Depth: 1})
	require.NoError(t, err)
	rel, ok := got["relationToSelf"].(map[string]any)
	require.True(t, ok, "expected populated document, got %#v", got["relationToSelf"])
	assert.Equal(t, "parent", rel["text"])

	poly := got["relationship"].(map[string]any)
	assert.Equal(t, fixtures.TextFields, poly["relationTo"])
	assert.Equal(t, "target", poly["value"].(map[string]any)["text"])

	many := got["relationHasMany"].([]any)
	require.Len(t, many, 2)
	assert.Equal(t, "target", many[0].(map[string]any)["text"])
	assert.Equal(t, "gone", many[1])
}

func TestFindByIDPopulatesRichTextReferences(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	target := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "linked"})
	doc := mustCreate(t, s, fixtures.RichTextFields, map[string]any{
		"title": "links",
		"richText": []any{
			map[string]any{
				"type": "p",
				"children": []any{
					map[string]any{
						"type":     "link",
						"linkType": "internal",
						"doc":      map[string]any{"relationTo": fixtures.TextFields, "value": target["id"]},
						"children": []any{map[string]any{"text": "a link"}},
					},
				},
			},
			map[string]any{"type": "upload", "relationTo": fixtures.TextFields, "value": target["id"]},
			map[string]any{"type": "upload", "relationTo": "unregistered", "value": "x"},
		},
	})
	id := doc["id"].(string)

	flat, err := s.FindByID(ctx, fixtures.RichTextFields, id, ReadOptions{})
	require.NoError(t, err)
	nodes := flat["richText"].([]any)
	assert.Equal(t, target["id"], nodes[1].(map[string]any)["value"])

	got, err := s.FindByID(ctx, fixtures.RichTextFields, id, ReadOptions{Depth: 1})
	require.NoError(t, err)
	nodes = got["richText"].([]any)
	require.Len(t, nodes, 3)

	link := nodes[0].(map[string]any)["children"].([]any)[0].(map[string]any)
	ref := link["doc"].(map[string]any)
	assert.Equal(t, fixtures.TextFields, ref["relationTo"])
	assert.Equal(t, "linked", ref["value"].(map[string]any)["text"])

	upload := nodes[1].(map[string]any)
	assert.Equal(t, "linked", upload["value"].(map[string]any)["text"])
	assert.Equal(t, "x", nodes[2].(map[string]any)["value"])
}

func TestReadFilterHidesFields(t *testing.T) {
	opts := testOptions()
	opts.ReadFilter = func(_ context.Context, collection string, stored map[string]any) map[string]any {
		if collection == fixtures.TextFields {
			delete(stored, "defaultFunction")
		}
		return stored
	}
	s := openStore(t, memory.New(), opts)
	doc := mustCreate(t, s, fixtures.TextFields, map[string]any{"text": "a"})

	got, err := s.FindByID(context.Background(), fixtures.TextFields, doc["id"].(string), ReadOptions{})
	require.NoError(t, err)
	assert.NotContains(t, got, "defaultFunction")
	assert.Equal(t, "a", got["text"])
}

func TestExplain(t *testing.T) {
	s := newStore(t)
	got, err := s.Explain(context.Background(), fixtures.BlockFields, query.Cond{Path: "blocks.text", Op: query.OpEquals, Value: "green"}, FindOptions{Sort: "-blocks.text"})
	require.NoError(t, err)
	assert.Equal(t, `blocks#content.text = "green" sort -blocks#content.text`, got)
}
