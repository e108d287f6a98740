package query

import (
	"fmt"
	"strings"
)

// FormatPlain renders up to limit rows as "column: value" lines.
func FormatPlain(res *Result, limit int) string {
	if res == nil || len(res.Rows) == 0 {
		return "По вашему запросу ничего не найдено"
	}
	rows := res.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	var b strings.Builder
	b.WriteString("Результаты:\n")
	for i, r := range rows {
		fmt.Fprintf(&b, "\nЗапись %d:\n", i+1)
		for j, col := range res.Columns {
			var v any
			if j < len(r) {
				v = r[j]
			}
			if v == nil {
				v = "-"
			}
			fmt.Fprintf(&b, "  • %s: %v\n", col, v)
		}
	}
	if len(res.Rows) > len(rows) {
		fmt.Fprintf(&b, "\nПоказано %d из %d записей\n", len(rows), len(res.Rows))
	}
	return b.String()
}
