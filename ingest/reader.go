package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// TABLE - Rectangular, string-keyed rows after header normalization
// =============================================================================

// Row maps canonical column name to trimmed cell value.
type Row map[string]string

// Table is the raw result of reading one source.
type Table struct {
	Columns  []string
	Rows     []Row
	Format   string // "csv" or "xlsx"
	Encoding string // text encoding used; empty for xlsx
}

// Has reports whether the table carries a column.
func (t Table) Has(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Source is one uploaded file.
type Source struct {
	Name string
	Data []byte
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// ReadTable sniffs the format of src and reads it into a Table.
func ReadTable(kind settlement.TableKind, src Source) (Table, error) {
	ext := strings.ToLower(filepath.Ext(src.Name))
	switch {
	case bytes.HasPrefix(src.Data, oleMagic) || ext == ".xls":
		return Table{}, fmt.Errorf("%s: legacy .xls workbooks: %w", kind, settlement.ErrUnsupportedFormat)
	case bytes.HasPrefix(src.Data, zipMagic) || ext == ".xlsx" || ext == ".xlsm":
		return readWorkbook(kind, src.Data)
	default:
		return readDelimited(kind, src.Data)
	}
}

func readDelimited(kind settlement.TableKind, data []byte) (Table, error) {
	text, encName, ok := decodeText(data)
	if !ok {
		return Table{}, &settlement.EncodingError{Table: kind, Tried: EncodingNames()}
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%s: read csv: %w: %v", kind, settlement.ErrUnsupportedFormat, err)
		}
		records = append(records, rec)
	}

	t, err := buildTable(kind, records)
	if err != nil {
		return Table{}, err
	}
	t.Format = "csv"
	t.Encoding = encName
	return t, nil
}

func readWorkbook(kind settlement.TableKind, data []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Table{}, fmt.Errorf("%s: open workbook: %w: %v", kind, settlement.ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("%s: %w", kind, settlement.ErrEmptySource)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("%s: read sheet %q: %w", kind, sheets[0], err)
	}
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{}, fmt.Errorf("%s: read sheet %q: %w", kind, sheets[0], err)
	}
	normalizeDateCells(rows, raw)

	t, err := buildTable(kind, rows)
	if err != nil {
		return Table{}, err
	}
	t.Format = "xlsx"
	return t, nil
}

// normalizeDateCells rewrites date-formatted cells of the 날짜 column as
// 2006-01-02. GetRows returns display text such as "Nov-24", so a cell whose
// raw value is a serial number and whose display differs is read from the serial.
func normalizeDateCells(rows, raw [][]string) {
	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return
	}
	col := -1
	for i, h := range rows[start] {
		if canonicalColumn(h) == ColDate {
			col = i
			break
		}
	}
	if col < 0 {
		return
	}

	for r := start + 1; r < len(rows) && r < len(raw); r++ {
		if col >= len(rows[r]) || col >= len(raw[r]) {
			continue
		}
		shown, value := strings.TrimSpace(rows[r][col]), strings.TrimSpace(raw[r][col])
		if shown == value {
			continue
		}
		serial, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		d, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			continue
		}
		rows[r][col] = d.Format("2006-01-02")
	}
}

// sniffDelimiter looks at the header line only.
func sniffDelimiter(text string) rune {
	header := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		header = text[:i]
	}
	switch {
	case strings.Contains(header, ","):
		return ','
	case strings.Contains(header, "\t"):
		return '\t'
	case strings.Contains(header, ";"):
		return ';'
	default:
		return ','
	}
}

// buildTable trims headers and cells, skips blank rows and pads short ones.
// Duplicate headers keep the first occurrence.
func buildTable(kind settlement.TableKind, records [][]string) (Table, error) {
	start := 0
	for start < len(records) && blank(records[start]) {
		start++
	}
	if start == len(records) {
		return Table{}, fmt.Errorf("%s: %w", kind, settlement.ErrEmptySource)
	}

	header := records[start]
	columns := make([]string, 0, len(header))
	index := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		c := canonicalColumn(h)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		index[i] = c
		columns = append(columns, c)
	}

	t := Table{Columns: columns}
	for _, rec := range records[start+1:] {
		if blank(rec) {
			continue
		}
		row := make(Row, len(columns))
		for _, c := range columns {
			row[c] = ""
		}
		for i, cell := range rec {
			if i < len(index) && index[i] != "" {
				row[index[i]] = strings.TrimSpace(cell)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
