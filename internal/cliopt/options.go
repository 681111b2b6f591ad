package cliopt

import "github.com/spf13/pflag"

// GlobalOptions are bound once on the root command and shared with every
// subcommand. Storage and locale settings are resolved through the config
// package; the fields here only hold what is not part of the config file.
//
// NOTE: This is a separate package to avoid import cycles between the root
// command and per-command code.
type GlobalOptions struct {
	ConfigFile string
	Format     string
	Debug      bool
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{Format: "pretty"}
}

func BindGlobalFlags(fs *pflag.FlagSet, g *GlobalOptions) {
	fs.StringVar(&g.ConfigFile, "config", g.ConfigFile, "config file (default ./fieldstore.yaml)")
	fs.StringVarP(&g.Format, "format", "o", g.Format, "output: pretty|ids|json")
	fs.BoolVarP(&g.Debug, "debug", "d", g.Debug, "log pipeline steps at debug level")

	fs.String("backend", "sqlite", "backend: sqlite|postgres|memory")
	fs.String("schema", "", "schema YAML file")
	fs.String("sqlite-path", "fieldstore.db", "sqlite database file")
	fs.String("sqlite-driver", "sqlite", "sqlite driver: sqlite|sqlite3")
	fs.String("pg-dsn", "", "postgres DSN")
	fs.String("pg-schema", "public", "postgres schema")
	fs.StringSlice("locales", nil, "configured locales, the first is the default")
	fs.String("default-locale", "", "default locale")
	fs.Bool("fallback", true, "fall back to the default locale on empty slots")
	fs.String("log-level", "warning", "log level")
}
