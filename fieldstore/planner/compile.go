// Package planner compiles filter trees into chains of SQL common table
// expressions over the field_values table. Every CTE yields one doc_id
// column; boolean structure maps onto INTERSECT, UNION and EXCEPT.
package planner

import (
	"fmt"
	"strings"

	"github.com/nonibytes/fieldstore/fieldstore/filter"
	"github.com/nonibytes/fieldstore/fieldstore/storage"
)

// CompileOutput is the result of compiling a filter
type CompileOutput struct {
	// Collection is the placeholder bound to the collection slug.
	Collection   string
	CTEs         []CTE
	ResultCTE    string
	ExplainSteps []string
}

// CTE represents a Common Table Expression
type CTE struct {
	Name string
	SQL  string
}

// Compiler compiles filters to CTEs
type Compiler struct {
	dialect      storage.Dialect
	builder      storage.Builder
	collection   string
	ctes         []CTE
	explainSteps []string
	cteCounter   int
}

// Compile compiles f for documents of collection. A nil filter selects the
// whole collection.
func Compile(d storage.Dialect, b storage.Builder, collection string, f filter.Filter) (*CompileOutput, error) {
	c := &Compiler{
		dialect:    d,
		builder:    b,
		collection: b.Arg(collection),
	}

	var (
		resultCTE string
		err       error
	)
	if f == nil {
		resultCTE = c.emit(c.allDocs(), "ALL")
	} else {
		resultCTE, err = c.compileFilter(f)
	}
	if err != nil {
		return nil, err
	}

	return &CompileOutput{
		Collection:   c.collection,
		CTEs:         c.ctes,
		ResultCTE:    resultCTE,
		ExplainSteps: c.explainSteps,
	}, nil
}

func (c *Compiler) nextCTEName() string {
	name := fmt.Sprintf("cte_%d", c.cteCounter)
	c.cteCounter++
	return name
}

func (c *Compiler) emit(sql, step string) string {
	name := c.nextCTEName()
	c.ctes = append(c.ctes, CTE{Name: name, SQL: sql})
	c.explainSteps = append(c.explainSteps, fmt.Sprintf("%s %s", name, step))
	return name
}

func (c *Compiler) allDocs() string {
	return fmt.Sprintf("SELECT id AS doc_id FROM documents WHERE collection = %s", c.collection)
}

func (c *Compiler) compileFilter(f filter.Filter) (string, error) {
	switch e := f.(type) {
	case filter.And:
		return c.compound(e.Items, "INTERSECT")
	case filter.Or:
		return c.compound(e.Items, "UNION")

	case filter.Not:
		innerName, err := c.compileFilter(e.Inner)
		if err != nil {
			return "", err
		}
		sql := fmt.Sprintf("%s EXCEPT SELECT doc_id FROM %s", c.allDocs(), innerName)
		return c.emit(sql, "EXCEPT "+innerName), nil

	case filter.None:
		return c.emit("SELECT doc_id FROM field_values WHERE 1 = 0", "NONE"), nil

	case filter.Cond:
		return c.compileCond(e)

	default:
		return "", fmt.Errorf("unknown filter type: %T", f)
	}
}

func (c *Compiler) compound(items []filter.Filter, op string) (string, error) {
	if len(items) == 0 {
		if op == "UNION" {
			return c.compileFilter(filter.None{})
		}
		return c.emit(c.allDocs(), "ALL"), nil
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		name, err := c.compileFilter(it)
		if err != nil {
			return "", err
		}
		names = append(names, name)
	}
	if len(names) == 1 {
		return names[0], nil
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = "SELECT doc_id FROM " + n
	}
	return c.emit(strings.Join(parts, " "+op+" "), op+" "+strings.Join(names, ", ")), nil
}

func (c *Compiler) compileCond(p filter.Cond) (string, error) {
	base := fmt.Sprintf("SELECT DISTINCT doc_id FROM field_values WHERE collection = %s", c.collection)

	if p.Op == filter.Exists {
		phPath := c.builder.Arg(p.Path)
		phPrefix := c.builder.Arg(escapeLike(p.Path) + ".%")
		sql := fmt.Sprintf(`%s AND (path = %s OR path LIKE %s ESCAPE '\')`, base, phPath, phPrefix)
		return c.emit(sql, "EXISTS "+p.Path), nil
	}
	if len(p.Values) == 0 {
		return c.compileFilter(filter.None{})
	}

	phPath := c.builder.Arg(p.Path)
	var preds []string
	switch p.Op {
	case filter.In:
		var texts, nums []any
		for _, v := range p.Values {
			if v.Numeric {
				nums = append(nums, v.Num)
			} else {
				texts = append(texts, v.Text)
			}
		}
		if len(texts) > 0 {
			preds = append(preds, fmt.Sprintf("text_value IN (%s)", c.list(texts)))
		}
		if len(nums) > 0 {
			preds = append(preds, fmt.Sprintf("num_value IN (%s)", c.list(nums)))
		}

	case filter.Like:
		for _, v := range p.Values {
			if v.Numeric {
				continue
			}
			ph := c.builder.Arg("%" + escapeLike(v.Text) + "%")
			preds = append(preds, c.dialect.ILike("text_value", ph))
		}

	case filter.Eq, filter.Gt, filter.Gte, filter.Lt, filter.Lte:
		for _, v := range p.Values {
			col, arg := "text_value", any(v.Text)
			if v.Numeric {
				col, arg = "num_value", v.Num
			}
			preds = append(preds, fmt.Sprintf("%s %s %s", col, p.Op, c.builder.Arg(arg)))
		}

	default:
		return "", fmt.Errorf("unknown operator: %v", p.Op)
	}
	if len(preds) == 0 {
		return c.compileFilter(filter.None{})
	}

	sql := fmt.Sprintf("%s AND path = %s AND (%s)", base, phPath, strings.Join(preds, " OR "))
	return c.emit(sql, filter.Format(p)), nil
}

func (c *Compiler) list(vs []any) string {
	phs := make([]string, len(vs))
	for i, v := range vs {
		phs[i] = c.builder.Arg(v)
	}
	return strings.Join(phs, ", ")
}
