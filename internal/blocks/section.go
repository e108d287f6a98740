package blocks

import (
	"strings"

	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/grid"
	"github.com/deadloked8999/exeltest/internal/numparse"
	"github.com/shopspring/decimal"
)

// amountLookahead is how far right of a label an amount may sit.
const amountLookahead = 5

// Section is the grid slice assigned to one block.
type Section struct {
	Grid  *grid.Grid
	Block classifier.Block
}

// line is a non-empty row of a section, cells relative to the block's first column.
type line struct {
	row   int
	cells []string
}

func (s Section) lines() []line {
	var out []line
	for _, seg := range s.Block.Segments {
		for r := seg.FirstRow; r <= seg.LastRow; r++ {
			if s.Grid.RowEmpty(r) {
				continue
			}
			cells := make([]string, 0, seg.LastCol-seg.FirstCol+1)
			empty := true
			for c := seg.FirstCol; c <= seg.LastCol; c++ {
				v := s.Grid.Cell(r, c)
				if v != "" {
					empty = false
				}
				cells = append(cells, v)
			}
			if !empty {
				out = append(out, line{row: r, cells: cells})
			}
		}
	}
	return out
}

func (l line) cell(i int) string {
	if i < 0 || i >= len(l.cells) {
		return ""
	}
	return l.cells[i]
}

// leading returns the first non-empty cell and its index.
func (l line) leading() (string, int) {
	for i, c := range l.cells {
		if c != "" {
			return c, i
		}
	}
	return "", -1
}

// valueAfter returns the first non-empty cell right of col, within the lookahead.
func (l line) valueAfter(col int) string {
	for i := col + 1; i <= col+amountLookahead && i < len(l.cells); i++ {
		if l.cells[i] != "" {
			return l.cells[i]
		}
	}
	return ""
}

func (l line) contains(words ...string) bool {
	joined := strings.ToLower(strings.Join(l.cells, " "))
	for _, w := range words {
		if !strings.Contains(joined, w) {
			return false
		}
	}
	return true
}

// labelled is a label/amount row shared by the two-column blocks.
type labelled struct {
	row    int
	label  string
	amount decimal.NullDecimal
	total  bool
}

// labelledRows reads "label ... amount" rows. A row holding only a number
// carries an empty label; when it closes the block it is the total.
func labelledRows(s Section, issues *numericIssues) []labelled {
	lines := s.lines()
	out := make([]labelled, 0, len(lines))
	for i, l := range lines {
		first, col := l.leading()
		var label, raw string
		if numparse.IsNumeric(first) {
			raw = first
		} else {
			label = first
			raw = l.valueAfter(col)
		}
		r := labelled{row: l.row, label: label}
		r.amount = amount(raw, l.row, issues)
		r.total = classifier.IsTotalLabel(label) || (label == "" && i == len(lines)-1 && r.amount.Valid)
		out = append(out, r)
	}
	return out
}

// amount parses a money cell; blank is null, garbage is null and reported.
func amount(raw string, row int, issues *numericIssues) decimal.NullDecimal {
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, ok := numparse.ParseAmount(raw)
	if !ok {
		issues.add(row)
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// count parses an integer cell with the same null rules as amount.
func count(raw string, row int, issues *numericIssues) *int64 {
	if raw == "" {
		return nil
	}
	n, ok := numparse.ParseInt(raw)
	if !ok {
		issues.add(row)
		return nil
	}
	return &n
}

// rate parses an exchange rate without rounding to cents.
func rate(raw string, row int, issues *numericIssues) decimal.NullDecimal {
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, ok := numparse.Parse(raw)
	if !ok {
		issues.add(row)
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
