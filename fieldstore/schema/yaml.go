package schema

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	fserrors "github.com/nonibytes/fieldstore/fieldstore/errors"
)

// File is the on-disk schema document:
//
//	collections:
//	  - slug: posts
//	    timestamps: true
//	    fields:
//	      - {name: title, type: text, required: true}
type File struct {
	Collections []CollectionSpec `yaml:"collections"`
}

type CollectionSpec struct {
	Slug       string      `yaml:"slug"`
	Timestamps bool        `yaml:"timestamps"`
	Fields     []FieldSpec `yaml:"fields"`
}

type FieldSpec struct {
	Name       string      `yaml:"name"`
	Type       Kind        `yaml:"type"`
	Label      string      `yaml:"label"`
	Required   bool        `yaml:"required"`
	Localized  bool        `yaml:"localized"`
	HasMany    bool        `yaml:"hasMany"`
	Unique     bool        `yaml:"unique"`
	MinLength  *int        `yaml:"minLength"`
	MaxLength  *int        `yaml:"maxLength"`
	Min        *float64    `yaml:"min"`
	Max        *float64    `yaml:"max"`
	MinRows    *int        `yaml:"minRows"`
	MaxRows    *int        `yaml:"maxRows"`
	Options    []string    `yaml:"options"`
	RelationTo StringList  `yaml:"relationTo"`
	Default    any         `yaml:"defaultValue"`
	Fields     []FieldSpec `yaml:"fields"`
	Tabs       []FieldSpec `yaml:"tabs"`
	Blocks     []BlockSpec `yaml:"blocks"`
}

type BlockSpec struct {
	Slug   string      `yaml:"slug"`
	Fields []FieldSpec `yaml:"fields"`
}

// StringList accepts either a scalar or a sequence.
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = StringList{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// LoadYAML reads a schema file and compiles it. Only literal defaults can be
// expressed in YAML.
func LoadYAML(r io.Reader) (*Registry, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fserrors.Wrap(fserrors.ErrSchema, "decode schema yaml", err)
	}
	cols := make([]Collection, 0, len(f.Collections))
	for _, cs := range f.Collections {
		fields, err := buildFields(cs.Fields)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", cs.Slug, err)
		}
		cols = append(cols, Collection{Slug: cs.Slug, Timestamps: cs.Timestamps, Fields: fields})
	}
	return Compile(cols...)
}

func buildFields(specs []FieldSpec) ([]*Field, error) {
	out := make([]*Field, 0, len(specs))
	for _, fs := range specs {
		f, err := buildField(fs)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func buildField(fs FieldSpec) (*Field, error) {
	f := &Field{
		Kind:       fs.Type,
		Name:       fs.Name,
		Label:      fs.Label,
		Required:   fs.Required,
		Localized:  fs.Localized,
		HasMany:    fs.HasMany,
		Unique:     fs.Unique,
		MinLength:  fs.MinLength,
		MaxLength:  fs.MaxLength,
		Min:        fs.Min,
		Max:        fs.Max,
		MinRows:    fs.MinRows,
		MaxRows:    fs.MaxRows,
		Options:    fs.Options,
		RelationTo: fs.RelationTo,
	}
	if fs.Default != nil {
		f.Default = Literal(jsonValue(fs.Default))
	}
	var err error
	if f.Fields, err = buildFields(fs.Fields); err != nil {
		return nil, err
	}
	if fs.Type == KindTabs {
		for _, ts := range fs.Tabs {
			ts.Type = KindTab
			t, err := buildField(ts)
			if err != nil {
				return nil, err
			}
			f.Fields = append(f.Fields, t)
		}
	} else if len(fs.Tabs) > 0 {
		return nil, fserrors.SchemaError(fmt.Sprintf("field %q: tabs are only allowed on tabs fields", fs.Name))
	}
	for _, bs := range fs.Blocks {
		bf, err := buildFields(bs.Fields)
		if err != nil {
			return nil, err
		}
		f.Blocks = append(f.Blocks, &Block{Slug: bs.Slug, Fields: bf})
	}
	return f, nil
}

// jsonValue converts decoded YAML scalars to the shapes JSON decoding yields,
// so literal defaults compare equal to values read back from storage.
func jsonValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = jsonValue(e)
		}
		return out
	}
	return v
}
