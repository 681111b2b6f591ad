// Package storagetest is a conformance suite for storage.Adapter
// implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/paths"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
)

// Run exercises an initialised adapter returned by open. Each subtest gets a
// fresh adapter.
func Run(t *testing.T, open func(t *testing.T) storage.Adapter) {
	tests := []struct {
		name string
		fn   func(t *testing.T, a storage.Adapter)
	}{
		{"CreateAndFindByID", testCreateAndFindByID},
		{"Operators", testOperators},
		{"BooleanStructure", testBooleanStructure},
		{"CollectionsAreIsolated", testCollectionsAreIsolated},
		{"Uniqueness", testUniqueness},
		{"UpdateReplacesLeaves", testUpdateReplacesLeaves},
		{"Delete", testDelete},
		{"Pagination", testPagination},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

// Leaf helpers build flattened values by hand.
func Text(path, s string) paths.Leaf { return paths.Leaf{Path: path, Text: &s} }

func Num(path string, x float64) paths.Leaf { return paths.Leaf{Path: path, Num: &x} }

func Unique(l paths.Leaf, logical string) paths.Leaf {
	l.Unique = true
	l.Logical = logical
	return l
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func doc(collection, id string, n int, leaves ...paths.Leaf) storage.Document {
	data := map[string]any{"id": id}
	for _, l := range leaves {
		if l.Text != nil {
			data[l.Path] = *l.Text
		} else {
			data[l.Path] = *l.Num
		}
	}
	at := base.Add(time.Duration(n) * time.Minute)
	return storage.Document{
		Collection: collection,
		ID:         id,
		Data:       data,
		Leaves:     append([]paths.Leaf{Text("id", id)}, leaves...),
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func seed(t *testing.T, a storage.Adapter, docs ...storage.Document) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, a.Create(context.Background(), d))
	}
}

func ids(t *testing.T, a storage.Adapter, collection string, f filter.Filter) []string {
	t.Helper()
	out, err := a.FindIDs(context.Background(), collection, f)
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func eq(path string, v filter.Value) filter.Cond {
	return filter.Cond{Path: path, Op: filter.Eq, Values: []filter.Value{v}}
}

func testCreateAndFindByID(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	d := doc("posts", "p1", 0, Text("title", "Hello"), Num("rank", 3))
	d.Data["nested"] = map[string]any{"list": []any{"a", 1.0}}
	seed(t, a, d)

	got, err := a.FindByID(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, "Hello", got.Data["title"])
	assert.Equal(t, 3.0, got.Data["rank"])
	assert.Equal(t, map[string]any{"list": []any{"a", 1.0}}, got.Data["nested"])
	assert.True(t, got.CreatedAt.Equal(base), "created at %v", got.CreatedAt)

	_, err = a.FindByID(ctx, "posts", "missing")
	assert.True(t, fserrors.IsKind(err, fserrors.ErrNotFound), "got %v", err)
}

func testOperators(t *testing.T, a storage.Adapter) {
	seed(t, a,
		doc("posts", "p1", 0, Text("title", "Green apples"), Num("rank", 1), Text("blocks#content.text", "green")),
		doc("posts", "p2", 1, Text("title", "Red 50% off"), Num("rank", 5)),
		doc("posts", "p3", 2, Text("title", "green_tea"), Num("rank", 10), Text("tags", "a"), Text("tags", "b")),
	)
	cases := []struct {
		name string
		f    filter.Filter
		want []string
	}{
		{"eq text", eq("title", filter.Text("green_tea")), []string{"p3"}},
		{"eq is case sensitive", eq("title", filter.Text("GREEN_TEA")), nil},
		{"eq number", eq("rank", filter.Number(5)), []string{"p2"}},
		{"number never equals text", eq("rank", filter.Text("5")), nil},
		{"gt", filter.Cond{Path: "rank", Op: filter.Gt, Values: []filter.Value{filter.Number(1)}}, []string{"p2", "p3"}},
		{"lte", filter.Cond{Path: "rank", Op: filter.Lte, Values: []filter.Value{filter.Number(5)}}, []string{"p1", "p2"}},
		{"like case insensitive", filter.Cond{Path: "title", Op: filter.Like, Values: []filter.Value{filter.Text("GREEN")}}, []string{"p1", "p3"}},
		{"like literal percent", filter.Cond{Path: "title", Op: filter.Like, Values: []filter.Value{filter.Text("50%")}}, []string{"p2"}},
		{"like literal underscore", filter.Cond{Path: "title", Op: filter.Like, Values: []filter.Value{filter.Text("n_t")}}, []string{"p3"}},
		{"in mixed", filter.Cond{Path: "rank", Op: filter.In, Values: []filter.Value{filter.Number(1), filter.Number(10), filter.Text("x")}}, []string{"p1", "p3"}},
		{"any element of many", eq("tags", filter.Text("b")), []string{"p3"}},
		{"exists leaf", filter.Cond{Path: "tags", Op: filter.Exists}, []string{"p3"}},
		{"exists subtree", filter.Cond{Path: "blocks#content", Op: filter.Exists}, []string{"p1"}},
		{"exists is not prefix match", filter.Cond{Path: "blocks#con", Op: filter.Exists}, nil},
		{"nil matches all", nil, []string{"p1", "p2", "p3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(t, a, "posts", tc.f), filter.Format(tc.f))
		})
	}
}

func testBooleanStructure(t *testing.T, a storage.Adapter) {
	seed(t, a,
		doc("posts", "p1", 0, Text("title", "a"), Num("rank", 1)),
		doc("posts", "p2", 1, Text("title", "b"), Num("rank", 2)),
		doc("posts", "p3", 2, Num("rank", 3)),
	)
	and := filter.And{Items: []filter.Filter{
		filter.Cond{Path: "rank", Op: filter.Gte, Values: []filter.Value{filter.Number(2)}},
		filter.Cond{Path: "title", Op: filter.Exists},
	}}
	assert.Equal(t, []string{"p2"}, ids(t, a, "posts", and))

	or := filter.Or{Items: []filter.Filter{eq("title", filter.Text("a")), eq("rank", filter.Number(3))}}
	assert.Equal(t, []string{"p1", "p3"}, ids(t, a, "posts", or))

	// Documents without the field satisfy the negation.
	not := filter.Not{Inner: eq("title", filter.Text("a"))}
	assert.Equal(t, []string{"p2", "p3"}, ids(t, a, "posts", not))

	assert.Empty(t, ids(t, a, "posts", filter.None{}))
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(t, a, "posts", filter.Not{Inner: filter.None{}}))
}

func testCollectionsAreIsolated(t *testing.T, a storage.Adapter) {
	seed(t, a,
		doc("posts", "x1", 0, Text("title", "same")),
		doc("pages", "x2", 1, Text("title", "same")),
	)
	assert.Equal(t, []string{"x1"}, ids(t, a, "posts", eq("title", filter.Text("same"))))
	assert.Equal(t, []string{"x2"}, ids(t, a, "pages", filter.Not{Inner: filter.None{}}))
}

func testUniqueness(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	first := doc("users", "u1", 0, Unique(Text("email", "a@x.io"), "email"))
	seed(t, a, first)

	err := a.Create(ctx, doc("users", "u2", 1, Unique(Text("email", "a@x.io"), "email")))
	var uv *storage.UniqueViolation
	require.True(t, errors.As(err, &uv), "got %v", err)
	assert.Equal(t, "email", uv.Path)
	_, err = a.FindByID(ctx, "users", "u2")
	assert.True(t, fserrors.IsKind(err, fserrors.ErrNotFound), "failed create must not persist: %v", err)

	// The same value in another locale slot or collection is free.
	seed(t, a,
		doc("users", "u3", 2, Unique(Text("name.en", "x"), "name")),
		doc("users", "u4", 3, Unique(Text("name.es", "x"), "name")),
		doc("admins", "a1", 4, Unique(Text("email", "a@x.io"), "email")),
	)

	// Rewriting a document keeps its own values.
	require.NoError(t, a.Update(ctx, first))

	// A released value can be claimed.
	released := doc("users", "u1", 5, Unique(Text("email", "b@x.io"), "email"))
	require.NoError(t, a.Update(ctx, released))
	seed(t, a, doc("users", "u5", 6, Unique(Text("email", "a@x.io"), "email")))
}

func testUpdateReplacesLeaves(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	seed(t, a, doc("posts", "p1", 0, Text("title", "old"), Text("tag", "keep")))

	updated := doc("posts", "p1", 0, Text("title", "new"))
	updated.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, a.Update(ctx, updated))

	assert.Empty(t, ids(t, a, "posts", eq("title", filter.Text("old"))))
	assert.Empty(t, ids(t, a, "posts", eq("tag", filter.Text("keep"))))
	assert.Equal(t, []string{"p1"}, ids(t, a, "posts", eq("title", filter.Text("new"))))

	got, err := a.FindByID(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Data["title"])
	assert.True(t, got.CreatedAt.Equal(base), "created at must survive updates")
	assert.True(t, got.UpdatedAt.Equal(updated.UpdatedAt))

	err = a.Update(ctx, doc("posts", "missing", 0))
	assert.True(t, fserrors.IsKind(err, fserrors.ErrNotFound), "got %v", err)
}

func testDelete(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	seed(t, a, doc("posts", "p1", 0, Unique(Text("slug", "s"), "slug")))

	ok, err := a.Delete(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, ids(t, a, "posts", nil))

	ok, err = a.Delete(ctx, "posts", "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting frees unique values.
	seed(t, a, doc("posts", "p2", 1, Unique(Text("slug", "s"), "slug")))
}

func testPagination(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seed(t, a, doc("posts", fmt.Sprintf("p%d", i), i, Num("rank", float64(10-i))))
	}

	res, err := a.Find(ctx, "posts", nil, storage.Pagination{Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	require.Len(t, res.Docs, 2)
	assert.Equal(t, "p2", res.Docs[0].ID)
	assert.Equal(t, "p3", res.Docs[1].ID)

	res, err = a.Find(ctx, "posts", nil, storage.Pagination{Sort: "rank"})
	require.NoError(t, err)
	require.Len(t, res.Docs, 5)
	assert.Equal(t, "p4", res.Docs[0].ID)

	res, err = a.Find(ctx, "posts", nil, storage.Pagination{Sort: "-rank", Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	assert.Equal(t, "p0", res.Docs[0].ID)
	assert.Equal(t, 5, res.Total)

	res, err = a.Find(ctx, "posts", eq("rank", filter.Number(99)), storage.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Docs)
}
