package fieldstore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/paths"
	"github.com/nonibytes/fieldstore/fieldstore/query"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/fieldstore/translate"
)

// FindByID reads one document in application shape.
func (s *Store) FindByID(ctx context.Context, collection, id string, opts ReadOptions) (map[string]any, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	sel, err := s.selector(opts)
	if err != nil {
		return nil, err
	}
	doc, err := s.adapter.FindByID(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	r := s.newReader(sel)
	return r.project(ctx, col, doc, opts.Depth)
}

// Find runs where against collection and returns one page of documents. A
// nil where matches every document.
func (s *Store) Find(ctx context.Context, collection string, where query.Expr, opts FindOptions) (*Page, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	q, err := s.prepare(ctx, collection, where, opts)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 0:
		limit = 0
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}

	s.log.WithFields(logrus.Fields{
		"collection": collection,
		"filter":     filter.Format(q.filter),
		"locale":     q.sel.Locale,
	}).Debug("find")

	res, err := s.adapter.Find(ctx, collection, q.filter, storage.Pagination{Limit: limit, Page: page, Sort: q.sort})
	if err != nil {
		return nil, err
	}

	r := s.newReader(q.sel)
	out := &Page{
		Docs:       make([]map[string]any, 0, len(res.Docs)),
		TotalDocs:  res.Total,
		Limit:      limit,
		Page:       page,
		TotalPages: 1,
	}
	for i := range res.Docs {
		d, err := r.project(ctx, col, &res.Docs[i], opts.Depth)
		if err != nil {
			return nil, err
		}
		out.Docs = append(out.Docs, d)
	}
	if limit > 0 {
		out.TotalPages = (res.Total + limit - 1) / limit
		if out.TotalPages == 0 {
			out.TotalPages = 1
		}
	}
	out.HasNextPage = page < out.TotalPages
	out.HasPrevPage = page > 1
	return out, nil
}

// Explain returns the storage filter where translates to, in the compact form
// used in logs. Joins are resolved against the adapter as Find would.
func (s *Store) Explain(ctx context.Context, collection string, where query.Expr, opts FindOptions) (string, error) {
	if _, err := s.collection(collection); err != nil {
		return "", err
	}
	q, err := s.prepare(ctx, collection, where, opts)
	if err != nil {
		return "", err
	}
	out := filter.Format(q.filter)
	if q.sort != "" {
		out += " sort " + q.sort
	}
	return out, nil
}

type prepared struct {
	filter filter.Filter
	sel    locale.Selector
	sort   string
}

// prepare normalizes and translates where and resolves the sort path.
func (s *Store) prepare(ctx context.Context, collection string, where query.Expr, opts FindOptions) (*prepared, error) {
	sel, err := s.selector(opts.ReadOptions)
	if err != nil {
		return nil, err
	}
	if where != nil {
		if where, err = query.Normalize(where, s.opts.Normalize); err != nil {
			return nil, err
		}
	}

	// Only an explicitly requested locale pins unqualified localized paths.
	var pin string
	if opts.Locale != "" && opts.Locale != locale.All {
		pin = sel.Locale
	}
	f, err := s.translator.Translate(ctx, collection, where, translate.Options{Locale: pin})
	if err != nil {
		return nil, err
	}
	sort, err := s.sortPath(collection, opts.Sort, pin)
	if err != nil {
		return nil, err
	}
	return &prepared{filter: f, sel: sel, sort: sort}, nil
}

// FindWhere is Find with a structured where map, such as
// {"text": {"equals": "a"}, "or": [...]}.
func (s *Store) FindWhere(ctx context.Context, collection string, where map[string]any, opts FindOptions) (*Page, error) {
	expr, err := query.ParseWhere(where)
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, collection, expr, opts)
}

// FindQuery is Find with the textual query syntax, such as
// `text:~fun AND number>=5`. An empty query matches everything.
func (s *Store) FindQuery(ctx context.Context, collection, q string, opts FindOptions) (*Page, error) {
	var expr query.Expr
	if q != "" {
		var err error
		if expr, err = query.Parse(q); err != nil {
			return nil, err
		}
	}
	return s.Find(ctx, collection, expr, opts)
}

// sortPath maps a logical sort path to its first storage alternative.
func (s *Store) sortPath(collection, sort, pin string) (string, error) {
	if sort == "" {
		return "", nil
	}
	prefix := ""
	if sort[0] == '-' {
		prefix, sort = "-", sort[1:]
	}
	res, err := s.resolver.Resolve(collection, sort, paths.Options{Locale: pin})
	if err != nil {
		return "", err
	}
	if len(res.Alternatives) == 0 || res.Alternatives[0].Join != nil {
		return "", fserrors.QueryRejectedError(fmt.Sprintf("cannot sort by %q", sort))
	}
	return prefix + res.Alternatives[0].Path, nil
}

// reader projects the documents of one read. Related documents loaded while
// populating are shared across the read.
type reader struct {
	s       *Store
	sel     locale.Selector
	related map[string]*storage.Document
}

func (s *Store) newReader(sel locale.Selector) *reader {
	return &reader{s: s, sel: sel, related: make(map[string]*storage.Document)}
}

func (r *reader) project(ctx context.Context, col *schema.Collection, doc *storage.Document, depth int) (map[string]any, error) {
	stored := doc.Data
	if r.s.opts.ReadFilter != nil {
		stored = r.s.opts.ReadFilter(ctx, col.Slug, schema.CloneMap(stored))
	}
	out := r.s.localizer.Collapse(col.Fields, stored, r.sel)
	out[schema.KeyID] = doc.ID
	if depth > 0 {
		if err := r.populate(ctx, col.Fields, out, depth); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// populate replaces relationship ids in m with the related documents,
// projected at depth-1.
func (r *reader) populate(ctx context.Context, fields []*schema.Field, m map[string]any, depth int) error {
	for _, f := range schema.NamedFields(fields) {
		v, ok := m[f.Name]
		if !ok || v == nil {
			continue
		}
		if f.Localized && r.sel.Locale == locale.All {
			slots, ok := v.(map[string]any)
			if !ok {
				continue
			}
			out := make(map[string]any, len(slots))
			for code, sv := range slots {
				nv, err := r.value(ctx, f, sv, depth)
				if err != nil {
					return err
				}
				out[code] = nv
			}
			m[f.Name] = out
			continue
		}
		nv, err := r.value(ctx, f, v, depth)
		if err != nil {
			return err
		}
		m[f.Name] = nv
	}
	return nil
}

func (r *reader) value(ctx context.Context, f *schema.Field, v any, depth int) (any, error) {
	switch {
	case f.Kind == schema.KindRelationship:
		if f.HasMany {
			list, ok := v.([]any)
			if !ok {
				return v, nil
			}
			out := make([]any, len(list))
			for i, item := range list {
				nv, err := r.relation(ctx, f, item, depth)
				if err != nil {
					return nil, err
				}
				out[i] = nv
			}
			return out, nil
		}
		return r.relation(ctx, f, v, depth)
	case f.Kind == schema.KindRichText:
		return v, r.richText(ctx, v, depth)
	case f.GroupLike():
		if sub, ok := v.(map[string]any); ok {
			return sub, r.populate(ctx, f.Fields, sub, depth)
		}
	case f.Kind == schema.KindArray, f.Kind == schema.KindBlocks:
		rows, ok := v.([]any)
		if !ok {
			return v, nil
		}
		for _, raw := range rows {
			row, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			fields := f.Fields
			if f.Kind == schema.KindBlocks {
				slug, _ := row[schema.KeyBlockType].(string)
				b, ok := f.Block(slug)
				if !ok {
					continue
				}
				fields = b.Fields
			}
			if err := r.populate(ctx, fields, row, depth); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// relation swaps one relationship value for its target document. Targets
// that no longer exist keep their id.
func (r *reader) relation(ctx context.Context, f *schema.Field, v any, depth int) (any, error) {
	target, id := f.RelationTo[0], ""
	poly := false
	switch t := v.(type) {
	case string:
		id = t
	case map[string]any:
		poly = true
		target, _ = t[schema.KeyRelation].(string)
		id, _ = t[schema.KeyValue].(string)
	}
	related, err := r.load(ctx, target, id, depth)
	if err != nil {
		return nil, err
	}
	if related == nil {
		return v, nil
	}
	if poly {
		return map[string]any{schema.KeyRelation: target, schema.KeyValue: related}, nil
	}
	return related, nil
}

// load projects document id of collection target at depth-1. It returns nil
// when the collection is not registered or the document no longer exists.
func (r *reader) load(ctx context.Context, target, id string, depth int) (map[string]any, error) {
	if id == "" {
		return nil, nil
	}
	col, ok := r.s.reg.Collection(target)
	if !ok {
		return nil, nil
	}

	key := target + "/" + id
	doc, ok := r.related[key]
	if !ok {
		var err error
		doc, err = r.s.adapter.FindByID(ctx, target, id)
		if fserrors.IsKind(err, fserrors.ErrNotFound) {
			doc = nil
		} else if err != nil {
			return nil, err
		}
		r.related[key] = doc
	}
	if doc == nil {
		return nil, nil
	}
	return r.project(ctx, col, doc, depth-1)
}

// Rich text node keys holding references.
const (
	nodeDoc      = "doc"
	nodeChildren = "children"
)

// richText populates references held by rich text nodes. Link nodes keep
// theirs under "doc"; upload and relationship nodes carry relationTo and
// value themselves.
func (r *reader) richText(ctx context.Context, v any, depth int) error {
	nodes, ok := v.([]any)
	if !ok {
		return nil
	}
	for _, raw := range nodes {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ref, ok := node[nodeDoc].(map[string]any)
		if !ok {
			ref = node
		}
		if target, ok := ref[schema.KeyRelation].(string); ok {
			id, _ := ref[schema.KeyValue].(string)
			related, err := r.load(ctx, target, id, depth)
			if err != nil {
				return err
			}
			if related != nil {
				ref[schema.KeyValue] = related
			}
		}
		if err := r.richText(ctx, node[nodeChildren], depth); err != nil {
			return err
		}
	}
	return nil
}
