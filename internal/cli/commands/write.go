package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nonibytes/fieldstore/fieldstore"
	"github.com/nonibytes/fieldstore/internal/cliutil"
)

type writeFlags struct {
	data   string
	sets   []string
	locale string
}

func (w *writeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.data, "data", "", `document as a JSON object, "@file" or "-" for stdin`)
	cmd.Flags().StringArrayVar(&w.sets, "set", nil, "set key=value (repeatable, dotted keys nest)")
	cmd.Flags().StringVarP(&w.locale, "locale", "l", "", "locale localized input is written to")
}

func NewCreateCmd(env *Env) *cobra.Command {
	var wf writeFlags
	cmd := &cobra.Command{
		Use:   "create <collection>",
		Short: "Create a document",
		Example: `  fieldstore create posts --set title=Hello --set views=3
  fieldstore create posts --data @post.json --locale es`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := cliutil.ReadData(env.In, wf.data, wf.sets)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := store.Create(ctx, args[0], data, fieldstore.WriteOptions{Locale: wf.locale})
			if err != nil {
				return err
			}
			printWritten(env, doc)
			return nil
		},
	}
	wf.bind(cmd)
	return cmd
}

func NewUpdateCmd(env *Env) *cobra.Command {
	var wf writeFlags
	cmd := &cobra.Command{
		Use:   "update <collection> <id>",
		Short: "Update a document; omitted top level fields keep their values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := cliutil.ReadData(env.In, wf.data, wf.sets)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := store.Update(ctx, args[0], args[1], data, fieldstore.WriteOptions{Locale: wf.locale})
			if err != nil {
				return err
			}
			printWritten(env, doc)
			return nil
		},
	}
	wf.bind(cmd)
	return cmd
}

func printWritten(env *Env, doc map[string]any) {
	switch env.format() {
	case cliutil.FormatIDs:
		fmt.Fprintln(env.Out, doc["id"])
	default:
		cliutil.PrintJSON(env.Out, doc)
	}
}
