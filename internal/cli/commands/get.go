package commands

import (
	"github.com/spf13/cobra"

	"github.com/nonibytes/fieldstore/internal/cliutil"
)

func NewGetCmd(env *Env) *cobra.Command {
	var rf readFlags
	cmd := &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Read one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := store.FindByID(ctx, args[0], args[1], rf.options())
			if err != nil {
				return err
			}
			cliutil.PrintJSON(env.Out, doc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&rf.locale, "locale", "l", "", `locale to read, or "all"`)
	cmd.Flags().StringVar(&rf.fallback, "fallback-locale", "", `fallback locale, or "none"`)
	cmd.Flags().IntVar(&rf.depth, "depth", 0, "relationship population depth")
	return cmd
}
