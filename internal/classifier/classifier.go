// Package classifier locates the named blocks of a shift report inside a
// worksheet grid by their header labels.
package classifier

import (
	"errors"
	"strings"

	"github.com/deadloked8999/exeltest/internal/grid"
	"github.com/deadloked8999/exeltest/internal/numparse"
)

// ErrNoRecognizedBlocks is returned when a sheet carries no known header.
var ErrNoRecognizedBlocks = errors.New("no recognizable blocks")

// Span is an inclusive, zero-based rectangle of grid cells.
type Span struct {
	FirstRow int `json:"first_row"`
	LastRow  int `json:"last_row"`
	FirstCol int `json:"first_col"`
	LastCol  int `json:"last_col"`
}

// Rows is the number of rows covered.
func (s Span) Rows() int {
	if s.LastRow < s.FirstRow {
		return 0
	}
	return s.LastRow - s.FirstRow + 1
}

// Block is one recognized block. Repeated headers of the same type add
// segments to the block that appeared first.
type Block struct {
	Type      BlockType `json:"type"`
	Header    string    `json:"header"`
	HeaderRow int       `json:"header_row"`
	Segments  []Span    `json:"segments"`
	// Implicit blocks are split off another block rather than opened by a header.
	Implicit bool `json:"implicit,omitempty"`
}

// Result is the classification of one sheet.
type Result struct {
	Blocks       []Block `json:"blocks"`
	Unclassified []Span  `json:"unclassified,omitempty"`
	Meta         Meta    `json:"meta"`
}

// Block returns the block of the given type, if present.
func (r *Result) Block(t BlockType) (Block, bool) {
	for _, b := range r.Blocks {
		if b.Type == t {
			return b, true
		}
	}
	return Block{}, false
}

// Classifier scans grids with a fixed header registry.
type Classifier struct {
	registry Registry
}

// New returns a classifier over the given registry.
func New(reg Registry) *Classifier {
	return &Classifier{registry: reg}
}

// Classify runs the default registry over g.
func Classify(g *grid.Grid) (*Result, error) {
	return New(DefaultRegistry).Classify(g)
}

type headerHit struct {
	row   int
	col   int
	text  string
	btype BlockType
}

// Classify finds block headers top to bottom. A block extends from the row
// after its header to the row before the next header or the end of sheet.
func (c *Classifier) Classify(g *grid.Grid) (*Result, error) {
	hits := c.findHeaders(g)
	if len(hits) == 0 {
		return nil, ErrNoRecognizedBlocks
	}

	res := &Result{}
	index := make(map[BlockType]int)
	for i, h := range hits {
		last := g.Height() - 1
		if i+1 < len(hits) {
			last = hits[i+1].row - 1
		}
		seg := Span{FirstRow: h.row + 1, LastRow: last, FirstCol: h.col, LastCol: g.Width() - 1}
		if at, ok := index[h.btype]; ok {
			res.Blocks[at].Segments = append(res.Blocks[at].Segments, seg)
			continue
		}
		index[h.btype] = len(res.Blocks)
		res.Blocks = append(res.Blocks, Block{
			Type:      h.btype,
			Header:    h.text,
			HeaderRow: h.row,
			Segments:  []Span{seg},
		})
	}

	res.Unclassified = nonEmptyStretches(g, 0, hits[0].row-1)
	res.splitTrailingDebts(g)
	res.Meta = detectMeta(g, res.Unclassified, hits)
	return res, nil
}

func (c *Classifier) findHeaders(g *grid.Grid) []headerHit {
	var hits []headerHit
	for r := 0; r < g.Height(); r++ {
		if g.RowEmpty(r) || rowHasNumber(g, r) {
			continue
		}
		text, col := g.Leading(r, 0)
		if l, ok := c.registry.Match(text); ok {
			if l.Exact && l.Type == Totals && l.Text == "ИТОГО" {
				next := nextNonEmpty(g, r+1)
				if next < 0 || totalsCaptionCol(g, next) < 0 {
					continue
				}
			}
			hits = append(hits, headerHit{row: r, col: col, text: text, btype: l.Type})
			continue
		}
		if capCol := totalsCaptionCol(g, r); capCol >= 0 {
			if n := len(hits); n > 0 && hits[n-1].btype == Totals && nextNonEmpty(g, hits[n-1].row+1) == r {
				// caption directly under a balance header belongs to that block
				continue
			}
			first := capCol - 1
			if first < 0 {
				first = 0
			}
			hits = append(hits, headerHit{row: r, col: first, text: g.Cell(r, capCol), btype: Totals})
		}
	}
	return hits
}

// totalsCaptionCol finds the "Доход | Расход" caption of the balance block.
func totalsCaptionCol(g *grid.Grid, r int) int {
	for j := 0; j+1 < g.Width(); j++ {
		left := strings.ToLower(g.Cell(r, j))
		right := strings.ToLower(g.Cell(r, j+1))
		if strings.HasPrefix(left, "доход") && strings.HasPrefix(right, "расход") {
			return j
		}
	}
	return -1
}

func rowHasNumber(g *grid.Grid, r int) bool {
	for j := 0; j < g.Width(); j++ {
		if c := g.Cell(r, j); c != "" && numparse.IsNumeric(c) {
			return true
		}
	}
	return false
}

func nextNonEmpty(g *grid.Grid, from int) int {
	for r := from; r < g.Height(); r++ {
		if !g.RowEmpty(r) {
			return r
		}
	}
	return -1
}

func nonEmptyStretches(g *grid.Grid, first, last int) []Span {
	var out []Span
	start := -1
	for r := first; r <= last; r++ {
		if g.RowEmpty(r) {
			if start >= 0 {
				out = append(out, Span{FirstRow: start, LastRow: r - 1, FirstCol: 0, LastCol: g.Width() - 1})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = r
		}
	}
	if start >= 0 {
		out = append(out, Span{FirstRow: start, LastRow: last, FirstCol: 0, LastCol: g.Width() - 1})
	}
	return out
}

// splitTrailingDebts moves the rows that follow the cash collection total
// after a blank line into a staff debts block. Reports that carry an
// explicit "Долги по персоналу" header are left alone.
func (r *Result) splitTrailingDebts(g *grid.Grid) {
	if _, ok := r.Block(StaffDebts); ok {
		return
	}
	at := -1
	for i, b := range r.Blocks {
		if b.Type == CashCollection {
			at = i
			break
		}
	}
	if at < 0 {
		return
	}
	cash := &r.Blocks[at]
	for si, seg := range cash.Segments {
		totalRow := -1
		for row := seg.FirstRow; row <= seg.LastRow; row++ {
			if label, _ := g.Leading(row, seg.FirstCol); IsTotalLabel(label) {
				totalRow = row
				break
			}
		}
		if totalRow < 0 || totalRow+1 > seg.LastRow || !g.RowEmpty(totalRow+1) {
			continue
		}
		start := nextNonEmpty(g, totalRow+1)
		if start < 0 || start > seg.LastRow {
			continue
		}
		if label, _ := g.Leading(start, seg.FirstCol); label == "" || numparse.IsNumeric(label) {
			continue
		}
		debts := Block{
			Type:      StaffDebts,
			Header:    StaffDebts.Title(),
			HeaderRow: totalRow + 1,
			Implicit:  true,
			Segments:  []Span{{FirstRow: start, LastRow: seg.LastRow, FirstCol: seg.FirstCol, LastCol: seg.LastCol}},
		}
		cash.Segments[si].LastRow = totalRow
		r.Blocks = append(r.Blocks[:at+1], append([]Block{debts}, r.Blocks[at+1:]...)...)
		return
	}
}
