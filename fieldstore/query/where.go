package query

import (
	"fmt"
	"sort"
	"strings"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
)

// ParseWhere builds an expression from the structured map form supplied by a
// transport:
//
//	{"and": [{"text": {"equals": "a"}}, {"or": [...]}], "blocks.text": {"like": "b"}}
//
// Sibling keys are combined with AND. Keys are visited in sorted order so the
// result is deterministic. An empty map yields a nil expression, which matches
// every document.
func ParseWhere(where map[string]any) (Expr, error) {
	if len(where) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []Expr
	for _, k := range keys {
		v := where[k]
		switch strings.ToLower(k) {
		case "and", "or":
			items, err := whereList(k, v)
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				continue
			}
			if strings.ToLower(k) == "and" {
				parts = append(parts, And{Exprs: items})
			} else {
				parts = append(parts, Or{Exprs: items})
			}
		default:
			conds, err := whereConds(k, v)
			if err != nil {
				return nil, err
			}
			parts = append(parts, conds...)
		}
	}
	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0], nil
	}
	return And{Exprs: parts}, nil
}

func whereList(key string, v any) ([]Expr, error) {
	list, ok := v.([]any)
	if !ok {
		if ms, isMaps := v.([]map[string]any); isMaps {
			for _, m := range ms {
				list = append(list, m)
			}
		} else {
			return nil, fserrors.QueryParseError(fmt.Sprintf("%q expects a list of conditions", key))
		}
	}
	out := make([]Expr, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fserrors.QueryParseError(fmt.Sprintf("%s[%d] is not an object", key, i))
		}
		e, err := ParseWhere(m)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func whereConds(path string, v any) ([]Expr, error) {
	ops, ok := v.(map[string]any)
	if !ok || len(ops) == 0 {
		return nil, fserrors.QueryParseError(fmt.Sprintf("%q expects an operator object", path))
	}
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Expr, 0, len(names))
	for _, name := range names {
		op := Op(name)
		if !op.Valid() {
			return nil, fserrors.QueryParseError(fmt.Sprintf("unknown operator %q on %q", name, path))
		}
		out = append(out, Cond{Path: path, Op: op, Value: ops[name]})
	}
	return out, nil
}
