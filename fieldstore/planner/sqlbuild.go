package planner

import (
	"fmt"
	"strings"

	"github.com/nonibytes/fieldstore/fieldstore/storage"
)

func withClause(compiled *CompileOutput, extra ...CTE) string {
	var cteParts []string
	for _, cte := range append(append([]CTE{}, compiled.CTEs...), extra...) {
		cteParts = append(cteParts, fmt.Sprintf("%s AS (%s)", cte.Name, cte.SQL))
	}
	if len(cteParts) == 0 {
		return ""
	}
	return fmt.Sprintf("WITH %s ", strings.Join(cteParts, ", "))
}

// BuildFindSQL selects one page of matching documents. Rows carry id, data,
// created_at and updated_at.
func BuildFindSQL(compiled *CompileOutput, page storage.Pagination, builder storage.Builder) string {
	var extra []CTE
	var sortJoin string
	orderClause := "ORDER BY d.created_at ASC, d.id ASC"

	if path, desc := page.SortKey(); path != "" {
		agg, dir := "MIN", "ASC"
		if desc {
			agg, dir = "MAX", "DESC"
		}
		phPath := builder.Arg(path)
		extra = append(extra, CTE{
			Name: "sort_key",
			SQL: fmt.Sprintf(
				"SELECT doc_id, %s(num_value) AS num_key, %s(text_value) AS text_key FROM field_values WHERE collection = %s AND path = %s GROUP BY doc_id",
				agg, agg, compiled.Collection, phPath,
			),
		})
		sortJoin = "LEFT JOIN sort_key s ON s.doc_id = d.id"
		orderClause = fmt.Sprintf("ORDER BY s.num_key %s, s.text_key %s, d.created_at ASC, d.id ASC", dir, dir)
	}

	var limitClause string
	if page.Limit > 0 {
		limitClause = fmt.Sprintf("LIMIT %d OFFSET %d", page.Limit, page.Offset())
	}

	return fmt.Sprintf(`%s
SELECT d.id, d.data, d.created_at, d.updated_at
FROM documents d
JOIN %s r ON r.doc_id = d.id
%s
WHERE d.collection = %s
%s
%s`,
		withClause(compiled, extra...),
		compiled.ResultCTE,
		sortJoin,
		compiled.Collection,
		orderClause,
		limitClause,
	)
}

// BuildCountSQL counts every match.
func BuildCountSQL(compiled *CompileOutput) string {
	return fmt.Sprintf("%sSELECT COUNT(*) FROM documents d JOIN %s r ON r.doc_id = d.id WHERE d.collection = %s",
		withClause(compiled), compiled.ResultCTE, compiled.Collection)
}

// BuildIDsSQL lists the ids of every match.
func BuildIDsSQL(compiled *CompileOutput) string {
	return fmt.Sprintf("%sSELECT DISTINCT doc_id FROM %s ORDER BY doc_id", withClause(compiled), compiled.ResultCTE)
}
