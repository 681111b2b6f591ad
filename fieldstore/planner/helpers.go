package planner

import "strings"

// escapeLike escapes LIKE metacharacters so s matches literally under
// ESCAPE '\'.
func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '%', '_', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
