package grid

import (
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func workbookBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	data := workbookBytes(t, [][]interface{}{
		{"ДОХОДЫ"},
		{"Бар", nil, 1500.5},
		{nil},
		{"Итого", nil, 1500.5},
	})
	g, err := Read(data, "report.xlsx")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if g.Format != FormatXLSX {
		t.Errorf("format = %s", g.Format)
	}
	if g.Height() != 4 || g.Width() != 3 {
		t.Fatalf("size = %dx%d, want 4x3", g.Height(), g.Width())
	}
	if got := g.Cell(1, 2); got != "1500.5" {
		t.Errorf("Cell(1,2) = %q", got)
	}
	if !g.RowEmpty(2) {
		t.Error("row 2 should be empty")
	}
	if text, col := g.Leading(3, 0); text != "Итого" || col != 0 {
		t.Errorf("Leading(3) = %q,%d", text, col)
	}
}

func TestReadCSVWindows1251(t *testing.T) {
	raw, err := charmap.Windows1251.NewEncoder().String("Расходы;;\nТакси;;300,50\n")
	if err != nil {
		t.Fatal(err)
	}
	g, err := Read([]byte(raw), "report.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if g.Cell(0, 0) != "Расходы" || g.Cell(1, 2) != "300,50" {
		t.Errorf("decoded cells = %q %q", g.Cell(0, 0), g.Cell(1, 2))
	}
}

func TestReadUnreadable(t *testing.T) {
	cases := map[string][]byte{
		"empty.xlsx":  nil,
		"broken.xlsx": []byte("PK\x03\x04not really a zip"),
		"fake.xlsx":   []byte("plain text with an xlsx name"),
		"binary.bin":  {0x01, 0x00, 0x02},
	}
	for name, data := range cases {
		_, err := Read(data, name)
		if !errors.Is(err, ErrUnreadableSource) {
			t.Errorf("%s: err = %v, want ErrUnreadableSource", name, err)
		}
	}
}

func TestNewPadsRows(t *testing.T) {
	g := New("x", FormatCSV, [][]string{{"a"}, {"b", " c "}, {"", ""}})
	if g.Height() != 2 || g.Width() != 2 {
		t.Fatalf("size = %dx%d", g.Height(), g.Width())
	}
	if g.Cell(1, 1) != "c" || g.Cell(0, 1) != "" || g.Cell(5, 5) != "" {
		t.Error("unexpected cell values")
	}
}

func TestSupported(t *testing.T) {
	for name, want := range map[string]bool{"a.xlsx": true, "b.XLS": true, "c.csv": true, "d.pdf": false} {
		if Supported(name) != want {
			t.Errorf("Supported(%s) != %v", name, want)
		}
	}
}
