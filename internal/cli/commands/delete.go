package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewDeleteCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "deleted")
			return nil
		},
	}
}
