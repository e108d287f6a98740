// Package blocks turns classified sheet regions into typed records and
// checks declared totals against their rows.
package blocks

import (
	"fmt"

	"github.com/deadloked8999/exeltest/internal/catalog"
	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/grid"
	"github.com/shopspring/decimal"
)

// Options tune parsing. The zero value is not usable; start from DefaultOptions.
type Options struct {
	// Tolerance is the largest accepted gap between a total and its rows.
	Tolerance decimal.Decimal
}

// DefaultOptions uses a one-kopeck tolerance.
func DefaultOptions() Options {
	return Options{Tolerance: decimal.New(1, -2)}
}

type parseFunc func(s Section, opts Options) ([]Record, []ValidationWarning)

// Strategy binds a block type to its table and parser.
type Strategy struct {
	Type  classifier.BlockType
	Table string
	parse parseFunc
}

var strategies = map[classifier.BlockType]Strategy{
	classifier.Income:         {Type: classifier.Income, Table: catalog.TableIncomeRecords, parse: parseIncome},
	classifier.Tickets:        {Type: classifier.Tickets, Table: catalog.TableTicketSales, parse: parseTickets},
	classifier.PaymentTypes:   {Type: classifier.PaymentTypes, Table: catalog.TablePaymentTypes, parse: parsePaymentTypes},
	classifier.Staff:          {Type: classifier.Staff, Table: catalog.TableStaffStatistics, parse: parseStaff},
	classifier.Expenses:       {Type: classifier.Expenses, Table: catalog.TableExpenseRecords, parse: parseExpenses},
	classifier.MiscExpenses:   {Type: classifier.MiscExpenses, Table: catalog.TableMiscExpenses, parse: parseExpenses},
	classifier.CashCollection: {Type: classifier.CashCollection, Table: catalog.TableCashCollection, parse: parseCashCollection},
	classifier.StaffDebts:     {Type: classifier.StaffDebts, Table: catalog.TableStaffDebts, parse: parseStaffDebts},
	classifier.Notes:          {Type: classifier.Notes, Table: catalog.TableNotesEntries, parse: parseNotes},
	classifier.Totals:         {Type: classifier.Totals, Table: catalog.TableTotalsSummary, parse: parseTotals},
}

// Lookup returns the strategy for a block type.
func Lookup(t classifier.BlockType) (Strategy, bool) {
	s, ok := strategies[t]
	return s, ok
}

// TableFor returns the table a block type is stored in.
func TableFor(t classifier.BlockType) string {
	return strategies[t].Table
}

// Parsed is the output of one block parser, shaped for bulk insertion.
type Parsed struct {
	Type    classifier.BlockType
	Table   string
	Columns []string
	Records []Record
	Verdict Verdict
}

// Rows returns the records as value rows in Columns order.
func (p Parsed) Rows() [][]any {
	rows := make([][]any, len(p.Records))
	for i, r := range p.Records {
		rows[i] = r.Values()
	}
	return rows
}

// Parse runs the strategy registered for b.Type.
func Parse(g *grid.Grid, b classifier.Block, opts Options) (Parsed, error) {
	st, ok := Lookup(b.Type)
	if !ok {
		return Parsed{}, fmt.Errorf("no parser for block type %q", b.Type)
	}
	tbl, ok := catalog.Default().Table(st.Table)
	if !ok {
		return Parsed{}, fmt.Errorf("table %s is not in the catalog", st.Table)
	}
	records, warns := st.parse(Section{Grid: g, Block: b}, opts)
	return Parsed{
		Type:    b.Type,
		Table:   st.Table,
		Columns: tbl.RecordColumns(),
		Records: records,
		Verdict: Verdict{
			Block:    b.Type,
			Table:    st.Table,
			Records:  len(records),
			OK:       len(warns) == 0,
			Warnings: warns,
		},
	}, nil
}

// ParseAll parses every classified block in order and returns sheet level
// warnings for stretches no header claimed.
func ParseAll(g *grid.Grid, res *classifier.Result, opts Options) ([]Parsed, []ValidationWarning, error) {
	var sheetWarns []ValidationWarning
	for _, u := range res.Unclassified {
		sheetWarns = append(sheetWarns, ValidationWarning{
			Kind:    KindUnclassified,
			Row:     u.FirstRow + 1,
			Count:   u.Rows(),
			Message: fmt.Sprintf("rows %d-%d belong to no known block", u.FirstRow+1, u.LastRow+1),
		})
	}
	out := make([]Parsed, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		p, err := Parse(g, b, opts)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, p)
	}
	return out, sheetWarns, nil
}
