package fieldstore

import (
	"context"
	"errors"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/nonibytes/fieldstore/fieldstore/defaults"
	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/locale"
	"github.com/nonibytes/fieldstore/fieldstore/paths"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
	"github.com/nonibytes/fieldstore/fieldstore/validate"
)

const uniqueMessage = "Value must be unique."

// Create stores a new document built from data written at opts.Locale and
// returns it as read back at that locale.
func (s *Store) Create(ctx context.Context, collection string, data map[string]any, opts WriteOptions) (map[string]any, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	loc, err := s.writeLocale(opts.Locale)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, col, writeOp{
		input:  data,
		locale: loc,
		op:     schema.OpCreate,
	})
}

// Update merges data over the stored document id. Top level keys absent from
// data keep their stored values; localized fields only change in the slot of
// opts.Locale.
func (s *Store) Update(ctx context.Context, collection, id string, data map[string]any, opts WriteOptions) (map[string]any, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	loc, err := s.writeLocale(opts.Locale)
	if err != nil {
		return nil, err
	}
	existing, err := s.adapter.FindByID(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	// Fallback must not leak other locales' values into the written slot.
	base := s.localizer.Collapse(col.Fields, existing.Data, locale.Selector{Locale: loc})
	merged := schema.CloneMap(base)
	for k, v := range data {
		merged[k] = v
	}
	return s.write(ctx, col, writeOp{
		id:       id,
		input:    merged,
		base:     base,
		written:  data,
		existing: existing,
		locale:   loc,
		op:       schema.OpUpdate,
	})
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.collection(collection); err != nil {
		return err
	}
	ok, err := s.adapter.Delete(ctx, collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return fserrors.NotFoundError(collection, id)
	}
	s.log.WithFields(logrus.Fields{"collection": collection, "id": id}).Debug("document deleted")
	return nil
}

type writeOp struct {
	id    string
	input map[string]any
	// base is the stored document collapsed at locale and written the keys
	// the caller supplied; both are nil on create.
	base     map[string]any
	written  map[string]any
	existing *storage.Document
	locale   string
	op       schema.Operation
}

// changes narrows resolved input to the top level keys an update actually
// writes: keys the caller supplied and keys a default or hook changed. The
// rest keep their stored slots untouched.
func (w writeOp) changes(resolved map[string]any) map[string]any {
	if w.existing == nil {
		return resolved
	}
	out := make(map[string]any, len(resolved))
	for k, v := range resolved {
		_, supplied := w.written[k]
		if supplied || !cmp.Equal(v, w.base[k]) {
			out[k] = v
		}
	}
	return out
}

func (s *Store) write(ctx context.Context, col *schema.Collection, w writeOp) (map[string]any, error) {
	log := s.log.WithFields(logrus.Fields{"collection": col.Slug, "locale": w.locale, "operation": w.op.String()})

	input := schema.CloneMap(w.input)
	delete(input, schema.KeyID)
	if col.Timestamps {
		delete(input, schema.KeyCreatedAt)
		delete(input, schema.KeyUpdatedAt)
	}

	// Failed defaults are reported together with validation issues; only
	// structural errors stop the write here.
	var failed fserrors.Issues
	err := defaults.Resolve(ctx, col.Fields, input, defaults.Options{
		Locale:    w.locale,
		Operation: w.op,
		Timeout:   s.opts.DefaultTimeout,
		Log:       log,
	})
	if err != nil {
		iss, ok := fserrors.AsIssues(err)
		if !ok || !fserrors.IsKind(err, fserrors.ErrDefault) {
			return nil, err
		}
		failed = iss
	}

	res, err := validate.Validate(ctx, col.Fields, input, validate.Options{Locale: w.locale, Operation: w.op})
	if err != nil {
		return nil, err
	}

	var existingData map[string]any
	if w.existing != nil {
		existingData = w.existing.Data
	}
	stored, err := s.localizer.Expand(col.Fields, w.changes(input), existingData, w.locale)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now().UTC()
	doc := storage.Document{Collection: col.Slug, ID: w.id, CreatedAt: now, UpdatedAt: now}
	if w.existing != nil {
		doc.CreatedAt = w.existing.CreatedAt
	} else {
		doc.ID = s.opts.NewID()
	}
	stored[schema.KeyID] = doc.ID
	if col.Timestamps {
		if _, ok := stored[schema.KeyCreatedAt]; !ok {
			stored[schema.KeyCreatedAt] = paths.Now(doc.CreatedAt)
		}
		stored[schema.KeyUpdatedAt] = paths.Now(now)
	}
	doc.Data = stored
	doc.Leaves = paths.Flatten(col.Fields, stored, s.opts.Locales)
	log = log.WithField("id", doc.ID)

	issues := append(failed, withoutPaths(res.Issues, failed)...)
	if len(res.Deferred) > 0 {
		taken, err := s.uniqueIssues(ctx, doc)
		if err != nil {
			return nil, err
		}
		issues = append(issues, taken...)
	}
	if len(issues) > 0 {
		log.WithField("issues", len(issues)).Debug("write rejected")
		return nil, fserrors.Invalid(issues)
	}

	if w.existing == nil {
		err = s.adapter.Create(ctx, doc)
	} else {
		err = s.adapter.Update(ctx, doc)
	}
	var uv *storage.UniqueViolation
	if errors.As(err, &uv) {
		return nil, fserrors.Invalid(fserrors.Issues{{Path: uv.Path, Code: fserrors.CodeUniqueness, Message: uniqueMessage}})
	}
	if err != nil {
		return nil, err
	}
	log.Debug("document written")

	out := s.localizer.Collapse(col.Fields, stored, locale.Selector{Locale: w.locale})
	out[schema.KeyID] = doc.ID
	return out, nil
}

// uniqueIssues is the advisory uniqueness check run before a write. The
// adapter enforces uniqueness again when the write commits.
func (s *Store) uniqueIssues(ctx context.Context, doc storage.Document) (fserrors.Issues, error) {
	var issues fserrors.Issues
	for _, l := range storage.UniqueKeys(doc) {
		v := filter.Text(l.Key())
		if l.Num != nil {
			v = filter.Number(*l.Num)
		}
		ids, err := s.adapter.FindIDs(ctx, doc.Collection, filter.Cond{Path: l.Path, Op: filter.Eq, Values: []filter.Value{v}})
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id != doc.ID {
				issues = append(issues, fserrors.Issue{Path: l.Logical, Code: fserrors.CodeUniqueness, Message: uniqueMessage})
				break
			}
		}
	}
	return issues, nil
}

// withoutPaths drops issues at paths already reported in seen, so a field
// whose default failed is not also reported as missing.
func withoutPaths(issues, seen fserrors.Issues) fserrors.Issues {
	if len(seen) == 0 {
		return issues
	}
	skip := make(map[string]bool, len(seen))
	for _, it := range seen {
		skip[it.Path] = true
	}
	out := make(fserrors.Issues, 0, len(issues))
	for _, it := range issues {
		if !skip[it.Path] {
			out = append(out, it)
		}
	}
	return out
}
