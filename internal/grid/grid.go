// Package grid turns the raw bytes of an uploaded workbook into a rectangular
// matrix of cell texts. Only the first worksheet is read.
package grid

import (
	"strings"
)

// Grid is one worksheet as text cells. Every row has Width() cells.
type Grid struct {
	Name   string
	Format string
	rows   [][]string
}

// New builds a Grid from ragged rows, trimming cells and padding rows to a
// common width. Trailing empty rows are dropped.
func New(name, format string, rows [][]string) *Grid {
	width := 0
	last := -1
	for i, row := range rows {
		for j := len(row) - 1; j >= 0; j-- {
			if strings.TrimSpace(row[j]) != "" {
				if j+1 > width {
					width = j + 1
				}
				last = i
				break
			}
		}
	}
	out := make([][]string, last+1)
	for i := 0; i <= last; i++ {
		cells := make([]string, width)
		for j := 0; j < width && j < len(rows[i]); j++ {
			cells[j] = cleanCell(rows[i][j])
		}
		out[i] = cells
	}
	return &Grid{Name: name, Format: format, rows: out}
}

func cleanCell(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// Height is the number of rows.
func (g *Grid) Height() int { return len(g.rows) }

// Width is the number of columns.
func (g *Grid) Width() int {
	if len(g.rows) == 0 {
		return 0
	}
	return len(g.rows[0])
}

// Cell returns the text at (row, col) or "" outside the grid.
func (g *Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g.rows) || col < 0 || col >= len(g.rows[row]) {
		return ""
	}
	return g.rows[row][col]
}

// Row returns a copy of one row.
func (g *Grid) Row(row int) []string {
	if row < 0 || row >= len(g.rows) {
		return nil
	}
	return append([]string(nil), g.rows[row]...)
}

// RowEmpty reports whether every cell of the row is blank.
func (g *Grid) RowEmpty(row int) bool {
	if row < 0 || row >= len(g.rows) {
		return true
	}
	for _, c := range g.rows[row] {
		if c != "" {
			return false
		}
	}
	return true
}

// Leading returns the first non-empty cell of a row at or after fromCol
// and its column, or ("", -1).
func (g *Grid) Leading(row, fromCol int) (string, int) {
	if row < 0 || row >= len(g.rows) {
		return "", -1
	}
	if fromCol < 0 {
		fromCol = 0
	}
	for j := fromCol; j < len(g.rows[row]); j++ {
		if g.rows[row][j] != "" {
			return g.rows[row][j], j
		}
	}
	return "", -1
}

// Empty reports whether the grid holds no text at all.
func (g *Grid) Empty() bool { return len(g.rows) == 0 }
