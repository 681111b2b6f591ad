// Package defaults materialises declared default values into write input.
package defaults

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
	"github.com/nonibytes/fieldstore/fieldstore/schema"
)

const DefaultTimeout = 5 * time.Second

// Options describes one resolution pass.
type Options struct {
	Locale    string
	Operation schema.Operation
	// Timeout bounds each asynchronous default. Zero means DefaultTimeout.
	Timeout time.Duration
	Log     *logrus.Entry
}

// FieldError is a default or hook failure attributed to a field path.
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *FieldError) Unwrap() error { return e.Err }

// Resolve fills absent fields of data that declare a default and runs
// BeforeChange hooks, mutating data in place. Fields are resolved depth
// first in declaration order, so a default or hook observes every sibling
// declared before it. Consecutive asynchronous defaults at one level run
// concurrently; anything after them waits for the whole batch.
//
// Failed defaults do not stop resolution of other fields; they are reported
// together as a default_resolution error once the tree has been walked. An
// unknown block type aborts immediately with a structural error.
func Resolve(ctx context.Context, fields []*schema.Field, data map[string]any, opts Options) error {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &resolver{opts: opts, root: data}
	if err := r.level(ctx, fields, data, schema.Path{}); err != nil {
		return err
	}
	if r.failed == nil {
		return nil
	}
	issues := make(fserrors.Issues, 0, len(r.failed.Errors))
	for _, e := range r.failed.Errors {
		fe := e.(*FieldError)
		issues = append(issues, fserrors.Issue{Path: fe.Path, Code: fserrors.CodeDefaultFailed, Message: fe.Err.Error()})
	}
	out := fserrors.Invalid(issues)
	out.Cause = r.failed.ErrorOrNil()
	return out
}

type resolver struct {
	opts   Options
	root   map[string]any
	failed *multierror.Error
}

func (r *resolver) fail(path schema.Path, err error) {
	r.opts.Log.WithField("path", path.String()).WithError(err).Debug("default resolution failed")
	r.failed = multierror.Append(r.failed, &FieldError{Path: path.String(), Err: err})
}

// asyncBatch is the set of asynchronous defaults started since the last join.
type asyncBatch struct {
	g       *errgroup.Group
	nodes   []*schema.Node
	results []any
	errs    []error
}

func (r *resolver) level(ctx context.Context, fields []*schema.Field, siblings map[string]any, path schema.Path) error {
	var batch *asyncBatch

	join := func() error {
		if batch == nil {
			return nil
		}
		_ = batch.g.Wait()
		b := batch
		batch = nil
		for i, n := range b.nodes {
			if b.errs[i] != nil {
				r.fail(n.Path, b.errs[i])
			} else if b.results[i] != nil {
				n.Set(b.results[i])
			}
		}
		for _, n := range b.nodes {
			if err := r.finish(ctx, n); err != nil {
				return err
			}
		}
		return nil
	}

	err := schema.Walk(ctx, fields, siblings, r.root, path, schema.VisitorFunc(func(ctx context.Context, n *schema.Node) error {
		_, present := n.Value()
		if !present && n.Field.Default.IsAsync() {
			if batch == nil {
				batch = &asyncBatch{g: &errgroup.Group{}}
			}
			i := len(batch.nodes)
			batch.nodes = append(batch.nodes, n)
			batch.results = append(batch.results, nil)
			batch.errs = append(batch.errs, nil)
			// A default that outlives its timeout keeps running detached, so it
			// reads a copy of the document.
			args := r.args(n)
			args.Siblings = schema.CloneMap(args.Siblings)
			args.Data = schema.CloneMap(args.Data)
			fn := n.Field.Default.Async
			timeout := r.opts.Timeout
			b := batch
			b.g.Go(func() error {
				v, err := callAsync(ctx, timeout, fn, args)
				b.results[i], b.errs[i] = v, err
				return nil
			})
			return nil
		}

		if err := join(); err != nil {
			return err
		}
		if !present {
			r.applySync(n)
		}
		return r.finish(ctx, n)
	}))
	if jerr := join(); err == nil {
		err = jerr
	}
	return err
}

// callAsync runs fn with a deadline and returns when either fn finishes or
// the deadline passes, whether or not fn observes its context.
func callAsync(ctx context.Context, timeout time.Duration, fn schema.AsyncDefaultFunc, args schema.DefaultArgs) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(tctx, args)
		done <- result{v: schema.Clone(v), err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && tctx.Err() != nil {
			return nil, timedOut(timeout, tctx.Err())
		}
		return res.v, res.err
	case <-tctx.Done():
		return nil, timedOut(timeout, tctx.Err())
	}
}

func timedOut(timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("default timed out after %s: %w", timeout, err)
	}
	return err
}

func (r *resolver) args(n *schema.Node) schema.DefaultArgs {
	return schema.DefaultArgs{
		Path:      n.Path.String(),
		Locale:    r.opts.Locale,
		Operation: r.opts.Operation,
		Siblings:  n.Siblings,
		Data:      r.root,
	}
}

func (r *resolver) applySync(n *schema.Node) {
	d := n.Field.Default
	switch {
	case d.Func != nil:
		v, err := d.Func(r.args(n))
		if err != nil {
			r.fail(n.Path, err)
			return
		}
		if v != nil {
			n.Set(schema.Clone(v))
		}
	case d.Value != nil:
		n.Set(schema.Clone(d.Value))
	case n.Field.GroupLike():
		// Groups always materialise so their children's defaults apply.
		n.Set(map[string]any{})
	}
}

// finish runs the field's hook and descends into containers.
func (r *resolver) finish(ctx context.Context, n *schema.Node) error {
	if hook := n.Field.BeforeChange; hook != nil {
		cur, present := n.Value()
		v, err := hook(ctx, schema.HookArgs{
			Path:      n.Path.String(),
			Value:     cur,
			Locale:    r.opts.Locale,
			Operation: r.opts.Operation,
			Siblings:  n.Siblings,
			Data:      r.root,
		})
		if err != nil {
			r.fail(n.Path, err)
		} else if v != nil || present {
			n.Set(v)
		}
	}
	if !n.Field.Container() {
		return nil
	}
	v, _ := n.Value()
	return schema.Levels(n, v, func(fields []*schema.Field, siblings map[string]any, path schema.Path) error {
		return r.level(ctx, fields, siblings, path)
	})
}
