// Package filter is the storage-neutral filter tree produced by the query
// translator. Conditions address storage paths (see package paths) and hold
// literals already coerced to the storage representation of their field.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter is a node of the tree
type Filter interface {
	isFilter()
}

// And matches documents every operand matches
type And struct {
	Items []Filter
}

// Or matches documents any operand matches
type Or struct {
	Items []Filter
}

// Not matches documents of the collection the inner filter does not
type Not struct {
	Inner Filter
}

// None matches nothing
type None struct{}

// Cond matches a document when any of its leaves at Path satisfies Op.
type Cond struct {
	Path   string
	Op     Op
	Values []Value
}

func (And) isFilter()  {}
func (Or) isFilter()   {}
func (Not) isFilter()  {}
func (None) isFilter() {}
func (Cond) isFilter() {}

// Op is a positive storage operator; negation is expressed with Not.
type Op int

const (
	Eq Op = iota
	Gt
	Gte
	Lt
	Lte
	// Like is a case-insensitive substring match.
	Like
	// In matches any of Values.
	In
	// Exists matches any leaf at Path or below it.
	Exists
)

func (op Op) String() string {
	switch op {
	case Eq:
		return "="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Like:
		return "like"
	case In:
		return "in"
	case Exists:
		return "exists"
	default:
		return "?"
	}
}

// Value is a literal in storage representation. Numeric values compare
// against numeric leaves, text values against text leaves.
type Value struct {
	Text    string
	Num     float64
	Numeric bool
}

func Text(s string) Value    { return Value{Text: s} }
func Number(x float64) Value { return Value{Num: x, Numeric: true} }

func (v Value) String() string {
	if v.Numeric {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return strconv.Quote(v.Text)
}

// Format renders f in a compact, stable form for logs and tests.
func Format(f Filter) string {
	switch t := f.(type) {
	case nil:
		return "*"
	case None:
		return "none"
	case Not:
		return "not(" + Format(t.Inner) + ")"
	case And:
		return group("and", t.Items)
	case Or:
		return group("or", t.Items)
	case Cond:
		if t.Op == Exists {
			return fmt.Sprintf("%s exists", t.Path)
		}
		vals := make([]string, len(t.Values))
		for i, v := range t.Values {
			vals[i] = v.String()
		}
		if t.Op == In {
			return fmt.Sprintf("%s in [%s]", t.Path, strings.Join(vals, ","))
		}
		return fmt.Sprintf("%s %s %s", t.Path, t.Op, strings.Join(vals, ","))
	}
	return fmt.Sprintf("%T", f)
}

func group(name string, items []Filter) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = Format(it)
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// Simplify removes None operands from Or, collapses And containing None and
// unwraps single operand groups. An empty And becomes nil, which matches
// every document.
func Simplify(f Filter) Filter {
	switch t := f.(type) {
	case And:
		var items []Filter
		for _, it := range t.Items {
			s := Simplify(it)
			if _, none := s.(None); none {
				return None{}
			}
			if a, ok := s.(And); ok {
				items = append(items, a.Items...)
				continue
			}
			items = append(items, s)
		}
		return wrap(items, func(items []Filter) Filter { return And{Items: items} }, nil)
	case Or:
		var items []Filter
		for _, it := range t.Items {
			s := Simplify(it)
			if _, none := s.(None); none {
				continue
			}
			if o, ok := s.(Or); ok {
				items = append(items, o.Items...)
				continue
			}
			items = append(items, s)
		}
		return wrap(items, func(items []Filter) Filter { return Or{Items: items} }, None{})
	case Not:
		return Not{Inner: Simplify(t.Inner)}
	}
	return f
}

func wrap(items []Filter, build func([]Filter) Filter, empty Filter) Filter {
	switch len(items) {
	case 0:
		return empty
	case 1:
		return items[0]
	}
	return build(items)
}

// Match evaluates a condition against the leaves a document holds at the
// condition's path. Leaves are given as values in storage representation.
func (c Cond) Match(leaves []Value) bool {
	if c.Op == Exists {
		return len(leaves) > 0
	}
	for _, l := range leaves {
		for _, v := range c.Values {
			if matchOne(c.Op, l, v) {
				return true
			}
		}
	}
	return false
}

func matchOne(op Op, leaf, v Value) bool {
	if leaf.Numeric != v.Numeric {
		return false
	}
	if op == Like {
		return !leaf.Numeric && strings.Contains(strings.ToLower(leaf.Text), strings.ToLower(v.Text))
	}
	var cmp int
	if leaf.Numeric {
		switch {
		case leaf.Num < v.Num:
			cmp = -1
		case leaf.Num > v.Num:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(leaf.Text, v.Text)
	}
	switch op {
	case Eq, In:
		return cmp == 0
	case Gt:
		return cmp > 0
	case Gte:
		return cmp >= 0
	case Lt:
		return cmp < 0
	case Lte:
		return cmp <= 0
	}
	return false
}
