package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nonibytes/fieldstore/internal/cli/commands"
	"github.com/nonibytes/fieldstore/internal/cliopt"
	"github.com/nonibytes/fieldstore/internal/cliutil"
	"github.com/nonibytes/fieldstore/internal/config"
)

// NewRootCommand wires every subcommand to one configuration loaded after
// flag parsing.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	g := cliopt.DefaultGlobalOptions()
	v := config.New()
	logger := logrus.New()
	logger.SetOutput(errOut)

	var (
		once sync.Once
		cfg  *config.Config
		err  error
	)
	env := &commands.Env{
		Global: &g,
		In:     in,
		Out:    out,
		Err:    errOut,
		Config: func() (*config.Config, error) {
			once.Do(func() { cfg, err = config.Load(v, g.ConfigFile) })
			return cfg, err
		},
		Log: func() *logrus.Entry { return logrus.NewEntry(logger) },
	}

	root := &cobra.Command{
		Use:           "fieldstore",
		Short:         "Schema-driven document store",
		Long:          longRootDescription,
		Example:       rootExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.BindFlags(v, cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			level := logrus.WarnLevel
			if g.Debug {
				level = logrus.DebugLevel
			} else if name := v.GetString("log_level"); name != "" {
				parsed, err := logrus.ParseLevel(strings.ToLower(name))
				if err != nil {
					return err
				}
				level = parsed
			}
			logger.SetLevel(level)
			logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
			return nil
		},
	}
	cliopt.BindGlobalFlags(root.PersistentFlags(), &g)
	root.AddCommand(
		commands.NewInitCmd(env),
		commands.NewSchemaCmd(env),
		commands.NewCreateCmd(env),
		commands.NewUpdateCmd(env),
		commands.NewGetCmd(env),
		commands.NewFindCmd(env),
		commands.NewCountCmd(env),
		commands.NewDeleteCmd(env),
	)
	return root
}

// Execute runs the CLI and returns an exit code: 1 for failed commands, 2
// for usage errors.
func Execute(argv []string) int {
	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	root.SetArgs(argv)
	cmd, err := root.ExecuteContextC(context.Background())
	if err == nil {
		return 0
	}
	cliutil.PrintError(os.Stderr, err)
	if isUsageError(err) {
		cmd.SetOut(os.Stderr)
		cmd.Usage()
		return 2
	}
	return 1
}

func isUsageError(err error) bool {
	msg := err.Error()
	for _, p := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires at least", "invalid argument"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
