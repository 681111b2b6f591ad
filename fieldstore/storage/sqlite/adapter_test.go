package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/paths"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/fieldstore/storage/storagetest"
)

func openTemp(t *testing.T) storage.Adapter {
	t.Helper()
	a := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAdapterConformance(t *testing.T) {
	storagetest.Run(t, openTemp)
}

func TestInitReopensExistingDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	a := New(path)
	require.NoError(t, a.Init(ctx))
	require.NoError(t, a.Create(ctx, storage.Document{Collection: "posts", ID: "p1", Data: map[string]any{"id": "p1"}}))
	require.NoError(t, a.Close())

	b := New(path)
	require.NoError(t, b.Init(ctx))
	defer b.Close()
	if _, err := b.FindByID(ctx, "posts", "p1"); err != nil {
		t.Fatalf("expected stored document after reopen: %v", err)
	}
}

func TestInitRejectsForeignDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "other.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL); INSERT INTO meta VALUES('fieldstore_magic', 'something-else')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = New(path).Init(ctx)
	if !fserrors.IsKind(err, fserrors.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestUniqueViolationDetection(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "u.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, "CREATE TABLE t (k TEXT PRIMARY KEY)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO t VALUES ('a')")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO t VALUES ('a')")
	require.Error(t, err)
	if !isUniqueViolation(fmt.Errorf("wrapped: %w", err)) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if isUniqueViolation(fmt.Errorf("disk I/O error")) {
		t.Fatalf("unexpected unique violation")
	}
}

func TestLikeFoldsNonASCII(t *testing.T) {
	ctx := context.Background()
	a := openTemp(t)
	for _, d := range []storage.Document{
		{Collection: "posts", ID: "p1", Data: map[string]any{"id": "p1"}, Leaves: []paths.Leaf{storagetest.Text("title", "ÉCOLE ÜBER")}},
		{Collection: "posts", ID: "p2", Data: map[string]any{"id": "p2"}, Leaves: []paths.Leaf{storagetest.Text("title", "ecole")}},
	} {
		require.NoError(t, a.Create(ctx, d))
	}

	ids, err := a.FindIDs(ctx, "posts", filter.Cond{Path: "title", Op: filter.Like, Values: []filter.Value{filter.Text("école")}})
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids)

	ids, err = a.FindIDs(ctx, "posts", filter.Cond{Path: "title", Op: filter.Like, Values: []filter.Value{filter.Text("über")}})
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids)
}

func TestFold(t *testing.T) {
	require.Equal(t, "école", fold("ÉCOLE"))
	require.Equal(t, "straße", fold([]byte("STRAßE")))
	require.Equal(t, int64(3), fold(int64(3)))
	require.Nil(t, fold(nil))
}
