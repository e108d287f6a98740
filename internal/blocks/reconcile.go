package blocks

import (
	"fmt"
	"strings"

	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/shopspring/decimal"
)

// measured is one row as reconciliation sees it. Values line up with the
// column names passed to reconcile.
type measured struct {
	row    int
	total  bool
	skip   bool
	values []decimal.NullDecimal
}

// reconcile compares the first declared total against the sum of the
// ordinary rows above it. All mismatching columns fold into one warning.
func reconcile(b classifier.BlockType, rows []measured, columns []string, tol decimal.Decimal) []ValidationWarning {
	totalAt := -1
	for i, r := range rows {
		if r.total {
			totalAt = i
			break
		}
	}
	if totalAt < 0 {
		return nil
	}
	declared := rows[totalAt]

	var mismatches []string
	for c, name := range columns {
		if c >= len(declared.values) || !declared.values[c].Valid {
			continue
		}
		sum := decimal.Zero
		for _, r := range rows[:totalAt] {
			if r.skip || c >= len(r.values) || !r.values[c].Valid {
				continue
			}
			sum = sum.Add(r.values[c].Decimal)
		}
		want := declared.values[c].Decimal
		if want.Sub(sum).Abs().GreaterThan(tol) {
			mismatches = append(mismatches, fmt.Sprintf("%s: declared %s, rows sum to %s", name, want.StringFixed(2), sum.StringFixed(2)))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return []ValidationWarning{{
		Block:   b,
		Kind:    KindReconciliation,
		Row:     declared.row + 1,
		Message: "total does not reconcile (" + strings.Join(mismatches, "; ") + ")",
	}}
}
