// Package memory is an in-process storage.Adapter. It evaluates the same
// filter trees as the SQL adapters against flattened leaves held in maps.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
)

type entry struct {
	doc    storage.Document
	values map[string][]filter.Value
}

type Adapter struct {
	mu          sync.RWMutex
	collections map[string]map[string]*entry
	// uniques maps collection, storage path and value key to the owning id.
	uniques map[string]string
}

var _ storage.Adapter = (*Adapter)(nil)

func New() *Adapter {
	return &Adapter{
		collections: make(map[string]map[string]*entry),
		uniques:     make(map[string]string),
	}
}

func (a *Adapter) Backend() storage.Backend { return storage.BackendMemory }

func (a *Adapter) Init(context.Context) error { return nil }

func (a *Adapter) Close() error { return nil }

func uniqueKey(collection, path, value string) string {
	return collection + "\x00" + path + "\x00" + value
}

// clone copies document data through JSON so stored and returned documents
// never share maps and numbers decode as float64 like the SQL adapters.
func clone(data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrIO, "encode document", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fserrors.Wrap(fserrors.ErrIO, "decode document", err)
	}
	return out, nil
}

func (a *Adapter) Create(_ context.Context, doc storage.Document) error {
	return a.put(doc, true)
}

func (a *Adapter) Update(_ context.Context, doc storage.Document) error {
	return a.put(doc, false)
}

func (a *Adapter) put(doc storage.Document, create bool) error {
	data, err := clone(doc.Data)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	docs := a.collections[doc.Collection]
	old, exists := docs[doc.ID]
	switch {
	case create && exists:
		return fserrors.New(fserrors.ErrSQL, "document "+doc.Collection+"/"+doc.ID+" already exists")
	case !create && !exists:
		return fserrors.NotFoundError(doc.Collection, doc.ID)
	}

	keys := storage.UniqueKeys(doc)
	for _, l := range keys {
		if owner, ok := a.uniques[uniqueKey(doc.Collection, l.Path, l.Key())]; ok && owner != doc.ID {
			return &storage.UniqueViolation{Collection: doc.Collection, Path: l.Logical, Value: l.Key()}
		}
	}

	if exists {
		a.releaseUniques(old.doc)
		doc.CreatedAt = old.doc.CreatedAt
	}
	for _, l := range keys {
		a.uniques[uniqueKey(doc.Collection, l.Path, l.Key())] = doc.ID
	}

	e := &entry{values: make(map[string][]filter.Value)}
	for _, l := range doc.Leaves {
		v := filter.Value{}
		switch {
		case l.Num != nil:
			v = filter.Number(*l.Num)
		case l.Text != nil:
			v = filter.Text(*l.Text)
		default:
			continue
		}
		e.values[l.Path] = append(e.values[l.Path], v)
	}
	doc.Data = data
	e.doc = doc

	if docs == nil {
		docs = make(map[string]*entry)
		a.collections[doc.Collection] = docs
	}
	docs[doc.ID] = e
	return nil
}

func (a *Adapter) releaseUniques(doc storage.Document) {
	for _, l := range storage.UniqueKeys(doc) {
		k := uniqueKey(doc.Collection, l.Path, l.Key())
		if a.uniques[k] == doc.ID {
			delete(a.uniques, k)
		}
	}
}

func (a *Adapter) Delete(_ context.Context, collection, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.collections[collection][id]
	if !ok {
		return false, nil
	}
	a.releaseUniques(e.doc)
	delete(a.collections[collection], id)
	return true, nil
}

func (a *Adapter) FindByID(_ context.Context, collection, id string) (*storage.Document, error) {
	a.mu.RLock()
	e, ok := a.collections[collection][id]
	a.mu.RUnlock()
	if !ok {
		return nil, fserrors.NotFoundError(collection, id)
	}
	return output(e)
}

func output(e *entry) (*storage.Document, error) {
	data, err := clone(e.doc.Data)
	if err != nil {
		return nil, err
	}
	d := e.doc
	d.Data = data
	d.Leaves = nil
	return &d, nil
}

func (a *Adapter) match(collection string, f filter.Filter) []*entry {
	var out []*entry
	for _, e := range a.collections[collection] {
		if f == nil || eval(f, e) {
			out = append(out, e)
		}
	}
	return out
}

func (a *Adapter) FindIDs(_ context.Context, collection string, f filter.Filter) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var ids []string
	for _, e := range a.match(collection, f) {
		ids = append(ids, e.doc.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (a *Adapter) Find(_ context.Context, collection string, f filter.Filter, page storage.Pagination) (*storage.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	matches := a.match(collection, f)
	path, desc := page.SortKey()
	sort.SliceStable(matches, func(i, j int) bool {
		if path != "" {
			if c := compareKeys(sortKey(matches[i], path, desc), sortKey(matches[j], path, desc)); c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		di, dj := matches[i].doc, matches[j].doc
		if !di.CreatedAt.Equal(dj.CreatedAt) {
			return di.CreatedAt.Before(dj.CreatedAt)
		}
		return di.ID < dj.ID
	})

	res := &storage.Result{Total: len(matches)}
	start := page.Offset()
	end := len(matches)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	for i := start; i < end; i++ {
		d, err := output(matches[i])
		if err != nil {
			return nil, err
		}
		res.Docs = append(res.Docs, *d)
	}
	return res, nil
}

// sortKey picks the smallest value at path, or the largest when sorting
// descending.
func sortKey(e *entry, path string, desc bool) *filter.Value {
	var best *filter.Value
	for i, v := range e.values[path] {
		if best == nil {
			best = &e.values[path][i]
			continue
		}
		c := compareKeys(&v, best)
		if (desc && c > 0) || (!desc && c < 0) {
			best = &e.values[path][i]
		}
	}
	return best
}

// compareKeys orders numbers before text and missing values first.
func compareKeys(x, y *filter.Value) int {
	switch {
	case x == nil && y == nil:
		return 0
	case x == nil:
		return -1
	case y == nil:
		return 1
	case x.Numeric != y.Numeric:
		if x.Numeric {
			return -1
		}
		return 1
	case x.Numeric:
		switch {
		case x.Num < y.Num:
			return -1
		case x.Num > y.Num:
			return 1
		}
		return 0
	}
	return strings.Compare(x.Text, y.Text)
}

func eval(f filter.Filter, e *entry) bool {
	switch t := f.(type) {
	case nil:
		return true
	case filter.None:
		return false
	case filter.Not:
		return !eval(t.Inner, e)
	case filter.And:
		for _, it := range t.Items {
			if !eval(it, e) {
				return false
			}
		}
		return true
	case filter.Or:
		for _, it := range t.Items {
			if eval(it, e) {
				return true
			}
		}
		return false
	case filter.Cond:
		if t.Op == filter.Exists {
			prefix := t.Path + "."
			for p := range e.values {
				if p == t.Path || strings.HasPrefix(p, prefix) {
					return true
				}
			}
			return false
		}
		return t.Match(e.values[t.Path])
	}
	return false
}
