package grid

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrUnreadableSource means the bytes could not be read as any supported
// workbook format.
var ErrUnreadableSource = errors.New("unreadable spreadsheet source")

const (
	FormatXLSX = "xlsx"
	FormatXLS  = "xls"
	FormatCSV  = "csv"
)

// SourceError carries the format that was attempted when reading failed.
type SourceError struct {
	Name   string
	Format string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("%s: %v", e.Name, ErrUnreadableSource)
	}
	return fmt.Sprintf("%s: read %s: %v", e.Name, e.Format, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrUnreadableSource }

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Supported reports whether the display name has an extension we read.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls", ".csv":
		return true
	}
	return false
}

// Read parses the first worksheet of data. The container format is sniffed
// from the leading bytes; the display name only breaks ties for text input.
func Read(data []byte, name string) (*Grid, error) {
	if len(data) == 0 {
		return nil, &SourceError{Name: name, Err: errors.New("empty payload")}
	}
	switch {
	case bytes.HasPrefix(data, zipMagic):
		rows, err := readXLSX(data)
		if err != nil {
			return nil, &SourceError{Name: name, Format: FormatXLSX, Err: err}
		}
		return New(name, FormatXLSX, rows), nil
	case bytes.HasPrefix(data, oleMagic):
		rows, err := readXLS(data)
		if err != nil {
			return nil, &SourceError{Name: name, Format: FormatXLS, Err: err}
		}
		return New(name, FormatXLS, rows), nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".xlsx" || ext == ".xlsm" || ext == ".xls" {
		return nil, &SourceError{Name: name, Format: strings.TrimPrefix(ext, "."), Err: errors.New("not a workbook container")}
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, &SourceError{Name: name, Format: FormatCSV, Err: errors.New("binary content")}
	}
	rows, err := readCSV(data)
	if err != nil {
		return nil, &SourceError{Name: name, Format: FormatCSV, Err: err}
	}
	return New(name, FormatCSV, rows), nil
}

func readXLSX(data []byte) ([][]string, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer xl.Close()
	sheet := xl.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	// raw values keep "1500" instead of a display format such as "1,500"
	return xl.GetRows(sheet, excelize.Options{RawCellValue: true})
}

func readXLS(data []byte) (rows [][]string, err error) {
	// the legacy reader panics on some truncated files
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = fmt.Errorf("xls reader: %v", r)
		}
	}()
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("failed to get xls sheet")
	}
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		vals := make([]string, row.LastCol()+1)
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			vals[j] = row.Col(j)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		// exports from Russian-locale Excel are Windows-1251
		src = transform.NewReader(src, charmap.Windows1251.NewDecoder())
	}
	decoded, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(decoded))
	r.Comma = sniffDelimiter(decoded)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	if bytes.Count(line, []byte("\t")) > bytes.Count(line, []byte(",")) {
		return '\t'
	}
	return ','
}
