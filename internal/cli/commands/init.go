package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewInitCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the storage tables of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(env.Out, "initialized %s storage for %d collections\n",
				store.Adapter().Backend(), len(store.Registry().Slugs()))
			return nil
		},
	}
}
