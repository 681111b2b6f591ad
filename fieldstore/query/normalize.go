package query

import (
	"fmt"
	"strings"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
)

// NormalizeOptions configures normalization guardrails
type NormalizeOptions struct {
	MinLikeLen  int
	MaxInValues int
	MaxConds    int
}

// DefaultNormalizeOptions returns default normalization options
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		MinLikeLen:  1,
		MaxInValues: 1000,
		MaxConds:    200,
	}
}

// Normalize flattens nested groups of the same kind, unwraps single operand
// groups and enforces guardrails. A nil expression stays nil.
func Normalize(expr Expr, opts NormalizeOptions) (Expr, error) {
	if expr == nil {
		return nil, nil
	}
	if n := len(Conds(expr)); opts.MaxConds > 0 && n > opts.MaxConds {
		return nil, fserrors.QueryRejectedError(fmt.Sprintf("query has %d conditions (max %d)", n, opts.MaxConds))
	}
	return normalize(expr, opts)
}

func normalize(expr Expr, opts NormalizeOptions) (Expr, error) {
	switch e := expr.(type) {
	case And:
		items, err := flatten(e.Exprs, opts, func(x Expr) ([]Expr, bool) {
			a, ok := x.(And)
			return a.Exprs, ok
		})
		if err != nil {
			return nil, err
		}
		if len(items) == 1 {
			return items[0], nil
		}
		return And{Exprs: items}, nil
	case Or:
		items, err := flatten(e.Exprs, opts, func(x Expr) ([]Expr, bool) {
			o, ok := x.(Or)
			return o.Exprs, ok
		})
		if err != nil {
			return nil, err
		}
		if len(items) == 1 {
			return items[0], nil
		}
		return Or{Exprs: items}, nil
	case Not:
		if e.Inner == nil {
			return nil, fserrors.QueryRejectedError("NOT without operand")
		}
		inner, err := normalize(e.Inner, opts)
		if err != nil {
			return nil, err
		}
		if n, ok := inner.(Not); ok {
			return n.Inner, nil
		}
		return Not{Inner: inner}, nil
	case Cond:
		return e, checkCond(e, opts)
	}
	return nil, fserrors.QueryRejectedError(fmt.Sprintf("unsupported expression %T", expr))
}

func flatten(items []Expr, opts NormalizeOptions, same func(Expr) ([]Expr, bool)) ([]Expr, error) {
	var out []Expr
	for _, x := range items {
		if x == nil {
			continue
		}
		n, err := normalize(x, opts)
		if err != nil {
			return nil, err
		}
		if inner, ok := same(n); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fserrors.QueryRejectedError("empty condition group")
	}
	return out, nil
}

func checkCond(c Cond, opts NormalizeOptions) error {
	if strings.TrimSpace(c.Path) == "" {
		return fserrors.QueryRejectedError("condition without path")
	}
	if !c.Op.Valid() {
		return fserrors.QueryRejectedError(fmt.Sprintf("unknown operator %q on %q", c.Op, c.Path))
	}
	switch c.Op {
	case OpLike:
		s, ok := c.Value.(string)
		if !ok {
			return fserrors.QueryRejectedError(fmt.Sprintf("like on %q needs a text value", c.Path))
		}
		if len(s) < opts.MinLikeLen {
			return fserrors.QueryRejectedError(fmt.Sprintf("like pattern on %q too short (min %d characters)", c.Path, opts.MinLikeLen))
		}
	case OpIn, OpNotIn:
		if n := len(ListValue(c.Value)); opts.MaxInValues > 0 && n > opts.MaxInValues {
			return fserrors.QueryRejectedError(fmt.Sprintf("%s on %q has %d values (max %d)", c.Op, c.Path, n, opts.MaxInValues))
		}
	case OpExists:
		if _, ok := BoolValue(c.Value); !ok {
			return fserrors.QueryRejectedError(fmt.Sprintf("exists on %q needs true or false", c.Path))
		}
	}
	return nil
}

// ListValue returns the candidates of an in / not_in literal. A comma
// separated string is split; any other scalar is a single candidate.
func ListValue(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]any, len(parts))
		for i, s := range parts {
			out[i] = strings.TrimSpace(s)
		}
		return out
	}
	return []any{v}
}

// BoolValue reads an exists literal
func BoolValue(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(t) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
