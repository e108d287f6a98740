package blocks

import (
	"fmt"

	"github.com/deadloked8999/exeltest/internal/classifier"
)

// WarningKind classifies a non-fatal finding.
type WarningKind string

const (
	KindReconciliation WarningKind = "reconciliation"
	KindNumeric        WarningKind = "numeric"
	KindCashTotal      WarningKind = "cash_total"
	KindNetProfit      WarningKind = "net_profit"
	KindUnclassified   WarningKind = "unclassified"
)

// ValidationWarning is attached to an ingestion result; it never aborts it.
type ValidationWarning struct {
	Block   classifier.BlockType `json:"block,omitempty"`
	Kind    WarningKind          `json:"kind"`
	Row     int                  `json:"row,omitempty"` // 1-based sheet row
	Count   int                  `json:"count,omitempty"`
	Message string               `json:"message"`
}

func (w ValidationWarning) Error() string {
	if w.Block == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Block, w.Message)
}

// Verdict summarises one parsed block.
type Verdict struct {
	Block    classifier.BlockType `json:"block"`
	Table    string               `json:"table"`
	Records  int                  `json:"records"`
	OK       bool                 `json:"ok"`
	Warnings []ValidationWarning  `json:"warnings,omitempty"`
}

// numericIssues collects cells that should have held a number.
type numericIssues struct {
	rows []int
}

func (n *numericIssues) add(row int) {
	n.rows = append(n.rows, row+1)
}

func (n *numericIssues) warning(b classifier.BlockType) []ValidationWarning {
	if len(n.rows) == 0 {
		return nil
	}
	return []ValidationWarning{{
		Block:   b,
		Kind:    KindNumeric,
		Row:     n.rows[0],
		Count:   len(n.rows),
		Message: fmt.Sprintf("%d non-numeric value(s) stored as empty, rows %v", len(n.rows), n.rows),
	}}
}
