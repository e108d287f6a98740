package export

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/deadloked8999/exeltest/internal/directory"
	"github.com/deadloked8999/exeltest/internal/ingest"
)

func numeric(unscaled int64, exp int32) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(unscaled), Exp: exp, Valid: true}
}

func readBack(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func findRow(rows [][]string, first string) []string {
	for _, r := range rows {
		if len(r) > 0 && r[0] == first {
			return r
		}
	}
	return nil
}

func TestReport(t *testing.T) {
	d := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	file := ingest.UploadedFile{ID: 1, FileName: "smena.xlsx", ReportDate: &d, ClubName: "Гагарин"}
	data := []ingest.BlockRows{{
		Table:   "income_records",
		Columns: []string{"category", "amount", "is_total"},
		Rows: [][]any{
			{"Бар", numeric(30000, -2), false},
			{"Итого", numeric(1000, 0), true},
		},
	}}
	var buf bytes.Buffer
	if err := Report(&buf, file, data); err != nil {
		t.Fatal(err)
	}
	rows := readBack(t, &buf)
	if r := findRow(rows, "Дата:"); len(r) < 2 || r[1] != "14.03.2025" {
		t.Errorf("date row = %v", r)
	}
	if findRow(rows, "Доходы") == nil {
		t.Errorf("block title missing: %v", rows)
	}
	if r := findRow(rows, "Бар"); len(r) < 2 || r[1] != "300" {
		t.Errorf("bar row = %v", r)
	}
	if r := findRow(rows, "Итого"); len(r) < 3 || r[1] != "1000" || r[2] != "да" {
		t.Errorf("total row = %v", r)
	}
}

func TestPeriodAggregates(t *testing.T) {
	block := func(bar, kitchen int64) ingest.BlockRows {
		return ingest.BlockRows{
			Table:   "income_records",
			Columns: []string{"category", "amount", "is_total"},
			Rows: [][]any{
				{"Бар", numeric(bar, 0), false},
				{"Кухня", numeric(kitchen, 0), false},
				{"Итого", numeric(bar+kitchen, 0), true},
			},
		}
	}
	files := []PeriodFile{
		{Blocks: []ingest.BlockRows{block(100, 50)}},
		{Blocks: []ingest.BlockRows{block(200, 25)}},
	}
	var buf bytes.Buffer
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := Period(&buf, "Гагарин", from, from.AddDate(0, 1, -1), files); err != nil {
		t.Fatal(err)
	}
	rows := readBack(t, &buf)
	if r := findRow(rows, "Бар"); len(r) < 2 || r[1] != "300" {
		t.Errorf("bar = %v", r)
	}
	if r := findRow(rows, "Кухня"); len(r) < 2 || r[1] != "75" {
		t.Errorf("kitchen = %v", r)
	}
	if r := findRow(rows, "ИТОГО"); len(r) < 2 || r[1] != "375" {
		t.Errorf("total = %v", r)
	}
}

func TestOffShift(t *testing.T) {
	d := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := OffShift(&buf, "Гагарин", d, d, []directory.OffShiftExpense{
		{Item: "Ремонт", PaymentType: "нал", Amount: decimal.RequireFromString("1500.50"), Date: d},
		{Item: "Клининг", PaymentType: "безнал", Amount: decimal.RequireFromString("499.50"), Date: d},
	})
	if err != nil {
		t.Fatal(err)
	}
	rows := readBack(t, &buf)
	if r := findRow(rows, "ИТОГО"); len(r) < 4 || r[3] != "2000" {
		t.Errorf("total = %v", r)
	}
	if r := findRow(rows, "03.06.2025"); len(r) < 4 || r[1] != "Ремонт" {
		t.Errorf("first expense = %v", r)
	}
}

func TestFileName(t *testing.T) {
	d := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := FileName("report", &d); got != "report_2025-03-14.xlsx" {
		t.Errorf("got %q", got)
	}
	if got := FileName("report", nil); got != "report.xlsx" {
		t.Errorf("got %q", got)
	}
}
