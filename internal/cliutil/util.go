package cliutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/nonibytes/fieldstore/fieldstore"
	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/fieldstore/storage/memory"
	"github.com/nonibytes/fieldstore/fieldstore/storage/postgres"
	"github.com/nonibytes/fieldstore/fieldstore/storage/sqlite"
	"github.com/nonibytes/fieldstore/internal/config"
)

type OutputFormat string

const (
	FormatPretty OutputFormat = "pretty"
	FormatIDs    OutputFormat = "ids"
	FormatJSON   OutputFormat = "json"
)

func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case FormatPretty, FormatIDs, FormatJSON:
		return OutputFormat(s)
	default:
		return FormatPretty
	}
}

func PrintJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// PrintError writes err to w, one line per field issue for write failures.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, err)
	if issues, ok := fserrors.AsIssues(err); ok {
		for _, is := range issues {
			fmt.Fprintf(w, "  %s: %s\n", is.Path, is.Message)
		}
	}
}

// LoadRegistry compiles the schema file.
func LoadRegistry(path string) (*schema.Registry, error) {
	if path == "" {
		return nil, fserrors.SchemaError("no schema file configured (use --schema or FIELDSTORE_SCHEMA)")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrIO, "open schema", err)
	}
	defer f.Close()
	return schema.LoadYAML(f)
}

// NewAdapter builds the storage adapter cfg selects.
func NewAdapter(cfg *config.Config, log *logrus.Entry) (storage.Adapter, error) {
	switch storage.Backend(cfg.Backend) {
	case storage.BackendSQLite:
		a := sqlite.NewWithDriver(cfg.SQLite.Path, cfg.SQLite.Driver)
		a.Log = log
		return a, nil
	case storage.BackendPostgres:
		a := postgres.New(cfg.Postgres.DSN, cfg.Postgres.Schema)
		a.Log = log
		return a, nil
	case storage.BackendMemory:
		return memory.New(), nil
	}
	return nil, fserrors.SchemaError(fmt.Sprintf("unknown backend %q", cfg.Backend))
}

// OpenStore loads the schema and opens a store over the configured backend.
func OpenStore(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*fieldstore.Store, error) {
	reg, err := LoadRegistry(cfg.Schema)
	if err != nil {
		return nil, err
	}
	adapter, err := NewAdapter(cfg, log)
	if err != nil {
		return nil, err
	}
	return fieldstore.Open(ctx, reg, adapter, fieldstore.Options{
		Locales: locale.Config{
			Locales:       cfg.Locales,
			DefaultLocale: cfg.DefaultLocale,
			Fallback:      cfg.Fallback,
		},
		Log:            log,
		MaxJoinDepth:   cfg.MaxJoinDepth,
		DefaultTimeout: cfg.DefaultTimeout,
	})
}

// ReadData builds a document from a JSON object (inline, "@file" or "-" for
// stdin) overlaid with key=value assignments. Assignment values are parsed
// as JSON when they are valid JSON and kept as text otherwise; dotted keys
// address nested objects.
func ReadData(stdin io.Reader, raw string, sets []string) (map[string]any, error) {
	data := map[string]any{}
	if raw != "" {
		var b []byte
		var err error
		switch {
		case raw == "-":
			b, err = io.ReadAll(stdin)
		case strings.HasPrefix(raw, "@"):
			b, err = os.ReadFile(raw[1:])
		default:
			b = []byte(raw)
		}
		if err != nil {
			return nil, fserrors.Wrap(fserrors.ErrIO, "read data", err)
		}
		if err := json.Unmarshal(b, &data); err != nil {
			return nil, fserrors.Wrap(fserrors.ErrValidation, "data must be a JSON object", err)
		}
	}
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fserrors.New(fserrors.ErrValidation, fmt.Sprintf("invalid assignment %q (want key=value)", kv))
		}
		var val any = v
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			val = parsed
		}
		setPath(data, strings.Split(k, "."), val)
	}
	return data, nil
}

func setPath(m map[string]any, keys []string, v any) {
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = v
}
