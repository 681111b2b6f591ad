// Package translate turns logical filter expressions into storage filters.
//
// Every condition path is resolved against the collection schema. A path
// with several storage alternatives (block variants, locale slots) becomes an
// OR of the same operator over each alternative. A path crossing a
// relationship is answered by querying the related collection through a
// Finder and substituting the matching ids into an "in" condition on the
// local field.
package translate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/paths"
	"github.com/nonibytes/fieldstore/fieldstore/query"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
)

// DefaultMaxJoinDepth bounds how many relationships one condition may cross.
const DefaultMaxJoinDepth = 4

// Finder returns the ids of collection documents matching f. Storage
// adapters implement it.
type Finder interface {
	FindIDs(ctx context.Context, collection string, f filter.Filter) ([]string, error)
}

// Options qualifies one translation.
type Options struct {
	// Locale pins unqualified localized paths to one slot; empty or "all"
	// matches any slot.
	Locale string
}

type Translator struct {
	resolver *paths.Resolver
	finder   Finder
	maxDepth int
	log      *logrus.Entry
}

type Option func(*Translator)

func WithMaxJoinDepth(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.maxDepth = n
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(t *Translator) { t.log = l }
}

func New(resolver *paths.Resolver, finder Finder, opts ...Option) *Translator {
	t := &Translator{
		resolver: resolver,
		finder:   finder,
		maxDepth: DefaultMaxJoinDepth,
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Translate compiles where against collection. A nil expression yields a nil
// filter, which matches every document. Unresolvable paths are structural
// errors; nothing is queried in that case.
func (t *Translator) Translate(ctx context.Context, collection string, where query.Expr, opts Options) (filter.Filter, error) {
	if where == nil {
		return nil, nil
	}
	tr := &translation{t: t, opts: opts, memo: make(map[string][]string)}
	f, err := tr.expr(ctx, collection, where, 0)
	if err != nil {
		return nil, err
	}
	return filter.Simplify(f), nil
}

// translation holds the join results of one Translate call. Identical join
// sub-queries share one Finder round trip.
type translation struct {
	t     *Translator
	opts  Options
	group singleflight.Group

	mu   sync.Mutex
	memo map[string][]string
}

func (tr *translation) expr(ctx context.Context, collection string, e query.Expr, depth int) (filter.Filter, error) {
	switch x := e.(type) {
	case query.And:
		items, err := tr.each(ctx, len(x.Exprs), func(ctx context.Context, i int) (filter.Filter, error) {
			return tr.expr(ctx, collection, x.Exprs[i], depth)
		})
		return filter.And{Items: items}, err
	case query.Or:
		items, err := tr.each(ctx, len(x.Exprs), func(ctx context.Context, i int) (filter.Filter, error) {
			return tr.expr(ctx, collection, x.Exprs[i], depth)
		})
		return filter.Or{Items: items}, err
	case query.Not:
		inner, err := tr.expr(ctx, collection, x.Inner, depth)
		return filter.Not{Inner: inner}, err
	case query.Cond:
		return tr.cond(ctx, collection, x, depth)
	}
	return nil, fserrors.QueryRejectedError(fmt.Sprintf("unsupported expression %T", e))
}

// each runs fn for n independent operands concurrently.
func (tr *translation) each(ctx context.Context, n int, fn func(context.Context, int) (filter.Filter, error)) ([]filter.Filter, error) {
	out := make([]filter.Filter, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			f, err := fn(gctx, i)
			out[i] = f
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var storageOps = map[query.Op]filter.Op{
	query.OpEquals:           filter.Eq,
	query.OpGreaterThan:      filter.Gt,
	query.OpGreaterThanEqual: filter.Gte,
	query.OpLessThan:         filter.Lt,
	query.OpLessThanEqual:    filter.Lte,
	query.OpLike:             filter.Like,
	query.OpIn:               filter.In,
	query.OpExists:           filter.Exists,
}

func (tr *translation) cond(ctx context.Context, collection string, c query.Cond, depth int) (filter.Filter, error) {
	if c.Op.Negated() {
		pos := c
		pos.Op = c.Op.Positive()
		inner, err := tr.cond(ctx, collection, pos, depth)
		return filter.Not{Inner: inner}, err
	}
	switch {
	case c.Op == query.OpExists:
		present, ok := query.BoolValue(c.Value)
		if !ok {
			return nil, fserrors.QueryRejectedError(fmt.Sprintf("exists on %q needs true or false", c.Path))
		}
		if !present {
			inner, err := tr.cond(ctx, collection, query.Cond{Path: c.Path, Op: query.OpExists, Value: true}, depth)
			return filter.Not{Inner: inner}, err
		}
	case c.Op == query.OpEquals && c.Value == nil:
		inner, err := tr.cond(ctx, collection, query.Cond{Path: c.Path, Op: query.OpExists, Value: true}, depth)
		return filter.Not{Inner: inner}, err
	case !c.Op.Valid():
		return nil, fserrors.QueryRejectedError(fmt.Sprintf("unknown operator %q on %q", c.Op, c.Path))
	}

	res, err := tr.t.resolver.Resolve(collection, c.Path, paths.Options{Locale: tr.opts.Locale})
	if err != nil {
		return nil, err
	}
	alts, err := tr.each(ctx, len(res.Alternatives), func(ctx context.Context, i int) (filter.Filter, error) {
		return tr.target(ctx, res.Alternatives[i], c, depth)
	})
	if err != nil {
		return nil, err
	}
	return filter.Or{Items: alts}, nil
}

func (tr *translation) target(ctx context.Context, tg paths.Target, c query.Cond, depth int) (filter.Filter, error) {
	if tg.Join != nil {
		return tr.join(ctx, tg.Join, c, depth)
	}
	op := storageOps[c.Op]
	if op == filter.Exists {
		return filter.Cond{Path: tg.Path, Op: filter.Exists}, nil
	}

	raw := []any{c.Value}
	if op == filter.In {
		raw = query.ListValue(c.Value)
	}
	vals := make([]filter.Value, 0, len(raw))
	for _, r := range raw {
		if v, ok := coerce(tg, op, r); ok {
			vals = append(vals, v)
		}
	}
	// Nothing representable in this alternative's type: it matches nothing.
	if len(vals) == 0 {
		return filter.None{}, nil
	}
	return filter.Cond{Path: tg.Path, Op: op, Values: vals}, nil
}

func (tr *translation) join(ctx context.Context, j *paths.Join, c query.Cond, depth int) (filter.Filter, error) {
	if depth >= tr.t.maxDepth {
		return nil, fserrors.QueryRejectedError(fmt.Sprintf("%q crosses more than %d relationships", c.Path, tr.t.maxDepth))
	}
	ids, err := tr.joinIDs(ctx, j, c, depth+1)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return filter.None{}, nil
	}
	vals := make([]filter.Value, len(ids))
	for i, id := range ids {
		vals[i] = filter.Text(id)
	}
	in := filter.Cond{Path: j.LocalPath, Op: filter.In, Values: vals}
	if j.TagPath == "" {
		return in, nil
	}
	return filter.And{Items: []filter.Filter{
		in,
		filter.Cond{Path: j.TagPath, Op: filter.Eq, Values: []filter.Value{filter.Text(j.Collection)}},
	}}, nil
}

func (tr *translation) joinIDs(ctx context.Context, j *paths.Join, c query.Cond, depth int) ([]string, error) {
	lit, err := json.Marshal(c.Value)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrQueryRejected, fmt.Sprintf("literal on %q", c.Path), err)
	}
	key := strings.Join([]string{j.Collection, j.ForeignPath, string(c.Op), string(lit)}, "\x00")

	if ids, ok := tr.cached(key); ok {
		return ids, nil
	}

	v, err, _ := tr.group.Do(key, func() (any, error) {
		// A caller that missed the memo may arrive after the flight landed.
		if ids, ok := tr.cached(key); ok {
			return ids, nil
		}

		foreign := query.Cond{Path: j.ForeignPath, Op: c.Op, Value: c.Value}
		f, err := tr.cond(ctx, j.Collection, foreign, depth)
		if err != nil {
			return nil, err
		}
		f = filter.Simplify(f)
		var ids []string
		if _, none := f.(filter.None); !none {
			ids, err = tr.t.finder.FindIDs(ctx, j.Collection, f)
			if err != nil {
				return nil, err
			}
		}
		tr.t.log.WithFields(logrus.Fields{
			"collection": j.Collection,
			"path":       j.ForeignPath,
			"matches":    len(ids),
		}).Debug("join resolved")

		tr.mu.Lock()
		tr.memo[key] = ids
		tr.mu.Unlock()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (tr *translation) cached(key string) ([]string, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	ids, ok := tr.memo[key]
	return ids, ok
}

// coerce reads a literal in the type of the target field. Each alternative
// interprets the literal on its own; an alternative that cannot represent it
// is dropped. The text of a literal is never re-cased.
func coerce(tg paths.Target, op filter.Op, raw any) (filter.Value, bool) {
	f := tg.Field
	if op == filter.Like {
		s, ok := raw.(string)
		if !ok || f.Kind == schema.KindNumber {
			return filter.Value{}, false
		}
		return filter.Text(s), true
	}
	if tg.Nested || f.Kind == schema.KindJSON || f.Kind == schema.KindRichText {
		switch t := raw.(type) {
		case string:
			return filter.Text(t), true
		case bool:
			return filter.Text(strconv.FormatBool(t)), true
		}
		if x, ok := schema.AsFloat(raw); ok {
			return filter.Number(x), true
		}
		return filter.Value{}, false
	}

	switch f.Kind {
	case schema.KindNumber:
		if x, ok := schema.AsFloat(raw); ok {
			return filter.Number(x), true
		}
		if s, ok := raw.(string); ok {
			if x, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return filter.Number(x), true
			}
		}
	case schema.KindDate:
		if s, ok := paths.CanonicalDate(raw); ok {
			return filter.Text(s), true
		}
	case schema.KindCheckbox:
		if b, ok := query.BoolValue(raw); ok {
			return filter.Text(strconv.FormatBool(b)), true
		}
	case schema.KindPoint:
		if s, ok := paths.PointKey(raw); ok {
			return filter.Text(s), true
		}
		if s, ok := raw.(string); ok {
			return filter.Text(s), true
		}
	default:
		switch t := raw.(type) {
		case string:
			return filter.Text(t), true
		case bool:
			return filter.Text(strconv.FormatBool(t)), true
		}
		if x, ok := schema.AsFloat(raw); ok {
			return filter.Text(strconv.FormatFloat(x, 'f', -1, 64)), true
		}
	}
	return filter.Value{}, false
}
