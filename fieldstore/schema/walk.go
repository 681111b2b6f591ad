package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
)

// Path is a logical address into a document, e.g. array.0.text.
type Path []string

func (p Path) Field(name string) Path {
	if name == "" {
		return p
	}
	return append(append(Path{}, p...), name)
}

func (p Path) Index(i int) Path {
	return append(append(Path{}, p...), strconv.Itoa(i))
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Node is one named field occurrence inside its sibling map.
type Node struct {
	Field    *Field
	Path     Path
	Siblings map[string]any
	Root     map[string]any
}

func (n *Node) Value() (any, bool) {
	v, ok := n.Siblings[n.Field.Name]
	return v, ok
}

func (n *Node) Set(v any) {
	n.Siblings[n.Field.Name] = v
}

// Visitor is called once per named field during Walk.
type Visitor interface {
	Visit(ctx context.Context, n *Node) error
}

type VisitorFunc func(ctx context.Context, n *Node) error

func (fn VisitorFunc) Visit(ctx context.Context, n *Node) error { return fn(ctx, n) }

// Walk visits the named fields of one namespace level in declaration order.
// Unnamed groups and tabs promote their children into the same level, so
// visitors only ever see fields that own a storage key. Walk does not descend
// into named containers; visitors call Descend when they want that.
func Walk(ctx context.Context, fields []*Field, siblings, root map[string]any, path Path, v Visitor) error {
	for _, f := range fields {
		if !f.Named() {
			if err := Walk(ctx, f.Fields, siblings, root, path, v); err != nil {
				return err
			}
			continue
		}
		n := &Node{Field: f, Path: path.Field(f.Name), Siblings: siblings, Root: root}
		if err := v.Visit(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Descend walks the children of a named container given its value.
func Descend(ctx context.Context, n *Node, value any, v Visitor) error {
	return Levels(n, value, func(fields []*Field, siblings map[string]any, path Path) error {
		return Walk(ctx, fields, siblings, n.Root, path, v)
	})
}

// Levels calls fn once for every nested namespace level a container value
// holds. Group and tab values are one level; array and blocks values yield
// one level per row with the row index appended to the path. Values of the
// wrong shape are skipped so callers can report them on their own terms.
func Levels(n *Node, value any, fn func(fields []*Field, siblings map[string]any, path Path) error) error {
	f := n.Field
	switch {
	case f.GroupLike():
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		return fn(f.Fields, m, n.Path)

	case f.Kind == KindArray, f.Kind == KindBlocks:
		rows, _ := value.([]any)
		for i, r := range rows {
			row, ok := r.(map[string]any)
			if !ok {
				continue
			}
			fields := f.Fields
			if f.Kind == KindBlocks {
				b, err := VariantOf(f, row, n.Path.Index(i))
				if err != nil {
					return err
				}
				fields = b.Fields
			}
			if err := fn(fields, row, n.Path.Index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// VariantOf selects the block variant of row by its blockType tag. A missing
// or unknown tag is a structural error.
func VariantOf(f *Field, row map[string]any, path Path) (*Block, error) {
	tag, _ := row[KeyBlockType].(string)
	if tag == "" {
		return nil, fserrors.Structural(path.String(), "block row has no blockType")
	}
	b, ok := f.Block(tag)
	if !ok {
		return nil, fserrors.Structural(path.String(), fmt.Sprintf("unknown block type %q", tag))
	}
	return b, nil
}

// Lookup finds the named field called name among fields, looking through
// unnamed groups and tabs.
func Lookup(fields []*Field, name string) (*Field, bool) {
	for _, f := range fields {
		if !f.Named() {
			if found, ok := Lookup(f.Fields, name); ok {
				return found, true
			}
			continue
		}
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// NamedFields flattens fields into the named fields of one namespace level.
func NamedFields(fields []*Field) []*Field {
	var out []*Field
	for _, f := range fields {
		if !f.Named() {
			out = append(out, NamedFields(f.Fields)...)
			continue
		}
		out = append(out, f)
	}
	return out
}
