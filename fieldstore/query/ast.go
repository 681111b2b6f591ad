// Package query holds the logical filter expression accepted by Find, its
// structured map form and the textual form used by the command line.
package query

import "fmt"

// Expr represents a logical filter expression
type Expr interface {
	isExpr()
}

// And matches when every operand matches
type And struct {
	Exprs []Expr
}

func (And) isExpr() {}

// Or matches when any operand matches
type Or struct {
	Exprs []Expr
}

func (Or) isExpr() {}

// Not matches documents the inner expression does not
type Not struct {
	Inner Expr
}

func (Not) isExpr() {}

// Cond applies one operator to the value at a logical dot path
type Cond struct {
	Path  string
	Op    Op
	Value any
}

func (Cond) isExpr() {}

func (c Cond) String() string {
	return fmt.Sprintf("%s %s %v", c.Path, c.Op, c.Value)
}

// Op is a condition operator
type Op string

const (
	OpEquals           Op = "equals"
	OpNotEquals        Op = "not_equals"
	OpGreaterThan      Op = "greater_than"
	OpGreaterThanEqual Op = "greater_than_equal"
	OpLessThan         Op = "less_than"
	OpLessThanEqual    Op = "less_than_equal"
	OpLike             Op = "like"
	OpIn               Op = "in"
	OpNotIn            Op = "not_in"
	OpExists           Op = "exists"
)

var knownOps = map[Op]bool{
	OpEquals:           true,
	OpNotEquals:        true,
	OpGreaterThan:      true,
	OpGreaterThanEqual: true,
	OpLessThan:         true,
	OpLessThanEqual:    true,
	OpLike:             true,
	OpIn:               true,
	OpNotIn:            true,
	OpExists:           true,
}

// Valid reports whether op is a known operator
func (op Op) Valid() bool { return knownOps[op] }

// Negated reports whether op selects documents by absence of a match
func (op Op) Negated() bool { return op == OpNotEquals || op == OpNotIn }

// Positive returns the operator op negates
func (op Op) Positive() Op {
	switch op {
	case OpNotEquals:
		return OpEquals
	case OpNotIn:
		return OpIn
	}
	return op
}

// Conds collects every condition of expr in traversal order
func Conds(expr Expr) []Cond {
	var out []Cond
	collectConds(expr, &out)
	return out
}

func collectConds(expr Expr, out *[]Cond) {
	switch e := expr.(type) {
	case And:
		for _, x := range e.Exprs {
			collectConds(x, out)
		}
	case Or:
		for _, x := range e.Exprs {
			collectConds(x, out)
		}
	case Not:
		collectConds(e.Inner, out)
	case Cond:
		*out = append(*out, e)
	}
}
