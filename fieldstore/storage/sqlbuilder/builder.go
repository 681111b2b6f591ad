// Package sqlbuilder collects query arguments and renders placeholders in
// the style of the target engine.
package sqlbuilder

import "strconv"

type PlaceholderStyle int

const (
	// PlaceholderQuestion renders numbered ?N placeholders (SQLite).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar renders $N placeholders (PostgreSQL).
	PlaceholderDollar
)

type Builder struct {
	Style PlaceholderStyle
	args  []any
}

func New(style PlaceholderStyle) *Builder {
	return &Builder{Style: style, args: make([]any, 0)}
}

// Arg appends v and returns its placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	n := strconv.Itoa(len(b.args))
	if b.Style == PlaceholderDollar {
		return "$" + n
	}
	return "?" + n
}

func (b *Builder) Args() []any { return b.args }
func (b *Builder) Len() int    { return len(b.args) }
