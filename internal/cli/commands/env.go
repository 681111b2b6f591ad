package commands

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/nonibytes/fieldstore/fieldstore"
	"github.com/nonibytes/fieldstore/internal/cliopt"
	"github.com/nonibytes/fieldstore/internal/cliutil"
	"github.com/nonibytes/fieldstore/internal/config"
)

// Env is what the root command hands to every subcommand. Config is loaded
// lazily so that flags are parsed first.
type Env struct {
	Global *cliopt.GlobalOptions
	Config func() (*config.Config, error)
	Log    func() *logrus.Entry

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func (e *Env) open(ctx context.Context) (*fieldstore.Store, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	return cliutil.OpenStore(ctx, cfg, e.Log())
}

func (e *Env) format() cliutil.OutputFormat {
	return cliutil.ParseOutputFormat(e.Global.Format)
}

// readFlags are shared by the commands that project documents.
type readFlags struct {
	locale   string
	fallback string
	depth    int
}

func (r *readFlags) options() fieldstore.ReadOptions {
	return fieldstore.ReadOptions{Locale: r.locale, FallbackLocale: r.fallback, Depth: r.depth}
}
