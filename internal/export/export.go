// Package export writes stored reports back out as xlsx workbooks.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/deadloked8999/exeltest/internal/blocks"
	"github.com/deadloked8999/exeltest/internal/catalog"
	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/directory"
	"github.com/deadloked8999/exeltest/internal/ingest"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const dateLayout = "02.01.2006"

// sheet is a cursor over one worksheet.
type sheet struct {
	f    *excelize.File
	name string
	row  int
	bold int
}

func newWorkbook(name string) (*sheet, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	f.SetColWidth(name, "A", "A", 36)
	f.SetColWidth(name, "B", "F", 16)
	return &sheet{f: f, name: name, row: 1, bold: bold}, nil
}

func (s *sheet) put(strong bool, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.f.SetSheetRow(s.name, cell, &values); err != nil {
		return err
	}
	if strong && len(values) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(values), s.row)
		if err := s.f.SetCellStyle(s.name, cell, last, s.bold); err != nil {
			return err
		}
	}
	s.row++
	return nil
}

func (s *sheet) skip() { s.row++ }

func (s *sheet) write(w io.Writer) error {
	defer s.f.Close()
	return s.f.Write(w)
}

// Report writes the stored blocks of one file, each under a bold title with
// its total rows in bold.
func Report(w io.Writer, file ingest.UploadedFile, data []ingest.BlockRows) error {
	sh, err := newWorkbook("Отчёт")
	if err != nil {
		return err
	}
	if err := writeHeader(sh, file); err != nil {
		return err
	}
	cat := catalog.Default()
	for _, br := range data {
		t, ok := cat.Table(br.Table)
		if !ok {
			continue
		}
		sh.skip()
		if err := sh.put(true, blockTitle(br.Table)); err != nil {
			return err
		}
		if err := sh.put(true, captions(t, br.Columns)...); err != nil {
			return err
		}
		totalAt := indexOf(br.Columns, "is_total")
		for _, r := range br.Rows {
			vals := make([]any, len(r))
			for i, v := range r {
				vals[i] = cellValue(v)
			}
			strong := totalAt >= 0 && totalAt < len(r) && r[totalAt] == true
			if err := sh.put(strong, vals...); err != nil {
				return err
			}
		}
	}
	return sh.write(w)
}

func writeHeader(sh *sheet, file ingest.UploadedFile) error {
	date := ""
	if file.ReportDate != nil {
		date = file.ReportDate.Format(dateLayout)
	}
	if err := sh.put(true, "Дата:", date); err != nil {
		return err
	}
	if err := sh.put(true, "Клуб:", file.ClubName); err != nil {
		return err
	}
	return sh.put(false, "Файл:", file.FileName)
}

// PeriodFile is one stored report with its records.
type PeriodFile struct {
	File   ingest.UploadedFile
	Blocks []ingest.BlockRows
}

// Period aggregates every block across files per label: numeric columns
// are summed, total rows left out.
func Period(w io.Writer, club string, from, to time.Time, files []PeriodFile) error {
	sh, err := newWorkbook("Сводка")
	if err != nil {
		return err
	}
	if err := sh.put(true, "Клуб:", club); err != nil {
		return err
	}
	if err := sh.put(true, "Период:", from.Format(dateLayout)+" - "+to.Format(dateLayout)); err != nil {
		return err
	}
	if err := sh.put(false, "Отчётов:", len(files)); err != nil {
		return err
	}

	cat := catalog.Default()
	for _, t := range cat.Tables() {
		agg := newAggregate(t)
		for _, pf := range files {
			for _, br := range pf.Blocks {
				if br.Table == t.Name {
					agg.add(br)
				}
			}
		}
		if len(agg.order) == 0 {
			continue
		}
		sh.skip()
		if err := sh.put(true, blockTitle(t.Name)); err != nil {
			return err
		}
		if err := sh.put(true, captions(t, append([]string{agg.label}, agg.numeric...))...); err != nil {
			return err
		}
		totals := make([]decimal.Decimal, len(agg.numeric))
		for _, label := range agg.order {
			vals := []any{label}
			for i, sum := range agg.sums[label] {
				vals = append(vals, sum.InexactFloat64())
				totals[i] = totals[i].Add(sum)
			}
			if err := sh.put(false, vals...); err != nil {
				return err
			}
		}
		vals := []any{"ИТОГО"}
		for _, d := range totals {
			vals = append(vals, d.InexactFloat64())
		}
		if err := sh.put(true, vals...); err != nil {
			return err
		}
	}
	return sh.write(w)
}

type aggregate struct {
	label   string
	numeric []string
	order   []string
	sums    map[string][]decimal.Decimal
}

func newAggregate(t catalog.Table) *aggregate {
	a := &aggregate{sums: map[string][]decimal.Decimal{}}
	for _, c := range t.Columns {
		if c.Managed {
			continue
		}
		switch {
		case a.label == "" && c.Type == "text":
			a.label = c.Name
		case strings.HasPrefix(c.Type, "numeric") || c.Type == "integer":
			a.numeric = append(a.numeric, c.Name)
		}
	}
	return a
}

func (a *aggregate) add(br ingest.BlockRows) {
	labelAt := indexOf(br.Columns, a.label)
	totalAt := indexOf(br.Columns, "is_total")
	if labelAt < 0 {
		return
	}
	for _, r := range br.Rows {
		if totalAt >= 0 && r[totalAt] == true {
			continue
		}
		label, _ := r[labelAt].(string)
		label = strings.TrimSpace(label)
		sums, ok := a.sums[label]
		if !ok {
			sums = make([]decimal.Decimal, len(a.numeric))
			a.order = append(a.order, label)
		}
		for i, col := range a.numeric {
			if at := indexOf(br.Columns, col); at >= 0 {
				if d, ok := toDecimal(r[at]); ok {
					sums[i] = sums[i].Add(d)
				}
			}
		}
		a.sums[label] = sums
	}
}

// OffShift writes a venue's off-shift expenses with an ИТОГО row.
func OffShift(w io.Writer, club string, from, to time.Time, expenses []directory.OffShiftExpense) error {
	sh, err := newWorkbook("Расходы вне смены")
	if err != nil {
		return err
	}
	if err := sh.put(true, "Клуб:", club); err != nil {
		return err
	}
	if err := sh.put(true, "Период:", from.Format(dateLayout)+" - "+to.Format(dateLayout)); err != nil {
		return err
	}
	sh.skip()
	if err := sh.put(true, "Дата", "Статья", "Тип оплаты", "Сумма"); err != nil {
		return err
	}
	for _, e := range expenses {
		if err := sh.put(false, e.Date.Format(dateLayout), e.Item, e.PaymentType, e.Amount.InexactFloat64()); err != nil {
			return err
		}
	}
	if err := sh.put(true, "ИТОГО", "", "", directory.Total(expenses).InexactFloat64()); err != nil {
		return err
	}
	return sh.write(w)
}

// FileName builds an attachment name like report_2025-03-14.xlsx.
func FileName(prefix string, date *time.Time) string {
	if date == nil {
		return prefix + ".xlsx"
	}
	return fmt.Sprintf("%s_%s.xlsx", prefix, date.Format("2006-01-02"))
}

func blockTitle(table string) string {
	for _, bt := range classifier.AllBlockTypes {
		if blocks.TableFor(bt) == table {
			return bt.Title()
		}
	}
	return table
}

func captions(t catalog.Table, cols []string) []any {
	out := make([]any, len(cols))
	for i, name := range cols {
		out[i] = name
		if c, ok := t.Column(name); ok && c.Description != "" {
			out[i] = c.Description
		}
	}
	return out
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

// cellValue converts stored values to types excelize writes natively.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "да"
		}
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(dateLayout)
	}
	if d, ok := toDecimal(v); ok {
		return d.InexactFloat64()
	}
	return v
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case pgtype.Numeric:
		if !t.Valid || t.NaN {
			return decimal.Decimal{}, false
		}
		if t.Int == nil {
			return decimal.Zero, true
		}
		return decimal.NewFromBigInt(t.Int, t.Exp), true
	case int64:
		return decimal.NewFromInt(t), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}
