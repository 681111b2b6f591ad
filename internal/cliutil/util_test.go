package cliutil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/internal/config"
)

func TestReadDataMergesAssignments(t *testing.T) {
	got, err := ReadData(strings.NewReader(`{"title": "x", "meta": {"a": 1}}`), "-",
		[]string{"views=3", "meta.b=true", "note=plain text", `tags=["a"]`})
	require.NoError(t, err)
	want := map[string]any{
		"title": "x",
		"views": 3.0,
		"note":  "plain text",
		"tags":  []any{"a"},
		"meta":  map[string]any{"a": 1.0, "b": true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("data (-want +got):\n%s", diff)
	}
}

func TestReadDataFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title": "from file"}`), 0o644))
	got, err := ReadData(nil, "@"+path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from file", got["title"])
}

func TestReadDataRejectsBadInput(t *testing.T) {
	_, err := ReadData(nil, "[1,2]", nil)
	assert.True(t, fserrors.IsKind(err, fserrors.ErrValidation))
	_, err = ReadData(nil, "", []string{"novalue"})
	assert.True(t, fserrors.IsKind(err, fserrors.ErrValidation))
}

func TestNewAdapterSelectsBackend(t *testing.T) {
	for backend, want := range map[string]storage.Backend{
		"sqlite":   storage.BackendSQLite,
		"postgres": storage.BackendPostgres,
		"memory":   storage.BackendMemory,
	} {
		cfg := &config.Config{Backend: backend, SQLite: config.SQLite{Path: "x.db", Driver: "sqlite"}}
		a, err := NewAdapter(cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, want, a.Backend())
	}
}

func TestPrintErrorListsIssues(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, fserrors.Invalid(fserrors.Issues{{Path: "min", Code: fserrors.CodeTooSmall, Message: "too small"}}))
	assert.Equal(t, "The following field is invalid: min\n  min: too small\n", buf.String())

	buf.Reset()
	PrintError(&buf, errors.New("boom"))
	assert.Equal(t, "boom\n", buf.String())
}

func TestLoadRegistryNeedsFile(t *testing.T) {
	_, err := LoadRegistry("")
	assert.True(t, fserrors.IsKind(err, fserrors.ErrSchema))
}
