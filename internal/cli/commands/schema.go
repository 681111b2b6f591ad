package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nonibytes/fieldstore/fieldstore/schema"
	"github.com/nonibytes/fieldstore/internal/cliutil"
)

func NewSchemaCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the collection schema",
	}
	cmd.AddCommand(newSchemaCheckCmd(env), newSchemaFieldsCmd(env))
	return cmd
}

func loadRegistry(env *Env, args []string) (*schema.Registry, error) {
	if len(args) > 0 {
		return cliutil.LoadRegistry(args[0])
	}
	cfg, err := env.Config()
	if err != nil {
		return nil, err
	}
	return cliutil.LoadRegistry(cfg.Schema)
}

func newSchemaCheckCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Compile a schema file and list its collections",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(env, args)
			if err != nil {
				return err
			}
			for _, slug := range reg.Slugs() {
				c, _ := reg.Collection(slug)
				fmt.Fprintf(env.Out, "%s: %d fields\n", slug, len(schema.NamedFields(c.Fields)))
			}
			return nil
		},
	}
}

// fieldRow is one line of "schema fields".
type fieldRow struct {
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	Localized bool   `json:"localized,omitempty"`
	HasMany   bool   `json:"hasMany,omitempty"`
	Unique    bool   `json:"unique,omitempty"`
}

func newSchemaFieldsCmd(env *Env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "fields <collection>",
		Short: "List the logical field paths of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fileArgs []string
			if file != "" {
				fileArgs = []string{file}
			}
			reg, err := loadRegistry(env, fileArgs)
			if err != nil {
				return err
			}
			c, ok := reg.Collection(args[0])
			if !ok {
				return fmt.Errorf("unknown collection %q", args[0])
			}
			var rows []fieldRow
			collectFields(c.Fields, "", &rows)
			if env.format() == cliutil.FormatJSON {
				cliutil.PrintJSON(env.Out, rows)
				return nil
			}
			for _, r := range rows {
				var flags []string
				for _, f := range []struct {
					on   bool
					name string
				}{{r.Localized, "localized"}, {r.HasMany, "hasMany"}, {r.Unique, "unique"}} {
					if f.on {
						flags = append(flags, f.name)
					}
				}
				fmt.Fprintf(env.Out, "%-40s %-12s %s\n", r.Path, r.Kind, strings.Join(flags, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "schema file instead of the configured one")
	return cmd
}

// collectFields walks the field tree the way query paths address it: block
// fields are listed per variant as "field.name" since any variant may match.
func collectFields(fields []*schema.Field, prefix string, out *[]fieldRow) {
	for _, f := range schema.NamedFields(fields) {
		p := f.Name
		if prefix != "" {
			p = prefix + "." + f.Name
		}
		*out = append(*out, fieldRow{Path: p, Kind: string(f.Kind), Localized: f.Localized, HasMany: f.HasMany, Unique: f.Unique})
		switch {
		case f.Kind == schema.KindBlocks:
			for _, b := range f.Blocks {
				collectFields(b.Fields, p, out)
			}
		case f.Container():
			collectFields(f.Fields, p, out)
		}
	}
}
