// Package config loads the CLI configuration with viper. Values come from
// command line flags, FIELDSTORE_* environment variables and an optional
// fieldstore.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
)

const (
	EnvPrefix = "FIELDSTORE"
	FileName  = "fieldstore"
)

type SQLite struct {
	Path string `mapstructure:"path"`
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo builds only).
	Driver string `mapstructure:"driver"`
}

type Postgres struct {
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
}

type Config struct {
	Backend string `mapstructure:"backend"`
	// Schema is the YAML file declaring the collections.
	Schema   string   `mapstructure:"schema"`
	SQLite   SQLite   `mapstructure:"sqlite"`
	Postgres Postgres `mapstructure:"postgres"`

	Locales        []string      `mapstructure:"locales"`
	DefaultLocale  string        `mapstructure:"default_locale"`
	Fallback       bool          `mapstructure:"fallback"`
	MaxJoinDepth   int           `mapstructure:"max_join_depth"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`

	LogLevel string `mapstructure:"log_level"`
}

// flagKeys maps global flag names onto configuration keys.
var flagKeys = map[string]string{
	"backend":        "backend",
	"schema":         "schema",
	"sqlite-path":    "sqlite.path",
	"sqlite-driver":  "sqlite.driver",
	"pg-dsn":         "postgres.dsn",
	"pg-schema":      "postgres.schema",
	"locales":        "locales",
	"default-locale": "default_locale",
	"fallback":       "fallback",
	"log-level":      "log_level",
}

// keys lists every configuration key. AutomaticEnv only consults the
// environment for keys viper already knows, so each one is bound explicitly.
var keys = []string{
	"backend",
	"schema",
	"sqlite.path",
	"sqlite.driver",
	"postgres.dsn",
	"postgres.schema",
	"locales",
	"default_locale",
	"fallback",
	"max_join_depth",
	"default_timeout",
	"log_level",
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("backend", string(storage.BackendSQLite))
	v.SetDefault("sqlite.path", "fieldstore.db")
	v.SetDefault("sqlite.driver", "sqlite")
	v.SetDefault("postgres.schema", "public")
	v.SetDefault("fallback", true)
	v.SetDefault("max_join_depth", 4)
	v.SetDefault("default_timeout", "5s")
	v.SetDefault("log_level", "warning")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		// BindEnv only fails when called without a key.
		_ = v.BindEnv(k)
	}
	return v
}

// BindFlags lets the flags of fs that are set override every other source.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads file, or fieldstore.yaml from the working directory when file is
// empty, and decodes the merged configuration. A missing default file is not
// an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fserrors.Wrap(fserrors.ErrIO, "read config", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fserrors.Wrap(fserrors.ErrSchema, "decode config", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the settings that cannot be caught later by the store.
func (c *Config) Validate() error {
	switch storage.Backend(c.Backend) {
	case storage.BackendSQLite:
		if c.SQLite.Path == "" {
			return fserrors.SchemaError("sqlite.path is required for the sqlite backend")
		}
	case storage.BackendPostgres:
		if c.Postgres.DSN == "" {
			return fserrors.SchemaError("postgres.dsn is required for the postgres backend")
		}
	case storage.BackendMemory:
	default:
		return fserrors.SchemaError(fmt.Sprintf("unknown backend %q (want sqlite, postgres or memory)", c.Backend))
	}
	if c.MaxJoinDepth < 0 {
		return fserrors.SchemaError("max_join_depth must not be negative")
	}
	if c.DefaultTimeout < 0 {
		return fserrors.SchemaError("default_timeout must not be negative")
	}
	return nil
}
