package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/nonibytes/fieldstore/fieldstore"
	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/query"
	"github.com/nonibytes/fieldstore/internal/cliutil"
)

type findFlags struct {
	readFlags
	where   string
	limit   int
	page    int
	sort    string
	explain bool
}

func (f *findFlags) options() fieldstore.FindOptions {
	return fieldstore.FindOptions{
		ReadOptions: f.readFlags.options(),
		Limit:       f.limit,
		Page:        f.page,
		Sort:        f.sort,
	}
}

// expr parses the query from the positional text or the --where JSON map;
// neither means every document.
func (f *findFlags) expr(args []string) (query.Expr, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	switch {
	case text != "" && f.where != "":
		return nil, fserrors.QueryParseError("give either a query or --where, not both")
	case f.where != "":
		var m map[string]any
		if err := json.Unmarshal([]byte(f.where), &m); err != nil {
			return nil, fserrors.Wrap(fserrors.ErrQueryParse, "--where must be a JSON object", err)
		}
		return query.ParseWhere(m)
	case text != "":
		return query.Parse(text)
	}
	return nil, nil
}

func NewFindCmd(env *Env) *cobra.Command {
	var ff findFlags
	cmd := &cobra.Command{
		Use:   "find <collection> [query]",
		Short: "Query documents",
		Long: `Query documents with the textual syntax, for example

  title:hello AND (views>=10 OR tags:[go, sql]) AND NOT draft

or with a structured where object passed to --where.`,
		Example: `  fieldstore find posts 'title:~hello' --sort -views --limit 5
  fieldstore find posts --where '{"blocks.text": {"equals": "green"}}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := ff.expr(args[1:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var plan string
			if ff.explain {
				if plan, err = store.Explain(ctx, args[0], where, ff.options()); err != nil {
					return err
				}
			}
			start := time.Now()
			page, err := store.Find(ctx, args[0], where, ff.options())
			if err != nil {
				return err
			}
			printPage(env.Out, env.format(), page, plan, time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringVarP(&ff.where, "where", "w", "", "structured where object as JSON")
	cmd.Flags().IntVar(&ff.limit, "limit", fieldstore.DefaultLimit, "page size, negative for all")
	cmd.Flags().IntVar(&ff.page, "page", 1, "page number")
	cmd.Flags().StringVar(&ff.sort, "sort", "", `sort field, "-" prefix for descending`)
	cmd.Flags().BoolVar(&ff.explain, "explain", false, "print the storage filter")
	cmd.Flags().StringVarP(&ff.locale, "locale", "l", "", `locale to read and match, or "all"`)
	cmd.Flags().StringVar(&ff.fallback, "fallback-locale", "", `fallback locale, or "none"`)
	cmd.Flags().IntVar(&ff.depth, "depth", 0, "relationship population depth")
	return cmd
}

func NewCountCmd(env *Env) *cobra.Command {
	var ff findFlags
	cmd := &cobra.Command{
		Use:   "count <collection> [query]",
		Short: "Count matching documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := ff.expr(args[1:])
			if err != nil {
				return err
			}
			n, err := count(cmd.Context(), env, args[0], where, ff.options())
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Out, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&ff.where, "where", "w", "", "structured where object as JSON")
	cmd.Flags().StringVarP(&ff.locale, "locale", "l", "", "locale to match")
	return cmd
}

func count(ctx context.Context, env *Env, collection string, where query.Expr, opts fieldstore.FindOptions) (int, error) {
	store, err := env.open(ctx)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	opts.Limit = 1
	page, err := store.Find(ctx, collection, where, opts)
	if err != nil {
		return 0, err
	}
	return page.TotalDocs, nil
}

func printPage(w io.Writer, format cliutil.OutputFormat, page *fieldstore.Page, plan string, dur time.Duration) {
	switch format {
	case cliutil.FormatJSON:
		cliutil.PrintJSON(w, page)
	case cliutil.FormatIDs:
		for _, d := range page.Docs {
			fmt.Fprintln(w, d["id"])
		}
	default:
		fmt.Fprintf(w, "Found %d documents in %dms (page %d of %d)\n", page.TotalDocs, dur.Milliseconds(), page.Page, page.TotalPages)
		for _, d := range page.Docs {
			fmt.Fprintf(w, "- %v\n", d["id"])
		}
		if page.HasNextPage {
			fmt.Fprintf(w, "\nnext: --page %d\n", page.Page+1)
		}
		if plan != "" {
			fmt.Fprintf(w, "\nFilter:\n  %s\n", plan)
		}
	}
}
