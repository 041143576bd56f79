/*
Package export renders settlement results as downloadable artifacts.

PURPOSE:
  Turns a (possibly filtered) settlement.Result into the tables operators
  open in a spreadsheet: a flat detail listing and a category pivot. Both
  are built once as a Table and then written as CSV, XLSX or HTML.

TABLES:
  Detail: 매장명 | 매장코드 | 날짜 | 품목명 | 카테고리 | 수량 | 단가 | 소계
          ... one row per settlement line, store-then-line order ...
          전체 합계 |  |  |  |  |  |  | <grand total>

  Pivot:  매장명 | 부자재        | 택배        | 합계
                 | 수량 | 금액   | 수량 | 금액 |
          강남점 | 100  | 5000   | 10   | 35000| 40000
          전체 합계 | ...

ARTIFACTS:
  csv.go:  UTF-8 with BOM, detail then pivot, header rows flattened
  xlsx.go: 요약 (pivot), 전체 내역 (detail), one sheet per store
  html.go: Pivot for the notification email body

SEE ALSO:
  - settlement/pivot.go: The underlying group-by pass
*/
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/partner-settlement/settlement"
)

// GrandTotalLabel marks the synthetic trailing total row.
const GrandTotalLabel = "전체 합계"

// TotalColumnLabel heads the per-store total column of the pivot.
const TotalColumnLabel = "합계"

// DetailHeader is the column set of the detail listing.
var DetailHeader = []string{"매장명", "매장코드", "날짜", "품목명", "카테고리", "수량", "단가", "소계"}

// =============================================================================
// TABLE - Header rows, header spans and typed body cells
// =============================================================================

// Value is one body cell: text or a number.
type Value struct {
	Text  string
	Num   decimal.Decimal
	IsNum bool
}

// Text returns a text cell.
func Text(s string) Value { return Value{Text: s} }

// Num returns a numeric cell.
func Num(d decimal.Decimal) Value { return Value{Num: d, IsNum: true} }

// String renders numbers in plain form, integral values without a decimal point.
func (v Value) String() string {
	if v.IsNum {
		return settlement.Plain(v.Num)
	}
	return v.Text
}

// Span merges a header block. Coordinates are 0-based within the header.
type Span struct {
	Row, Col   int
	Rows, Cols int
}

// Table is a rectangular rendering of a result.
// Total is true when the last body row is the 전체 합계 row.
type Table struct {
	Header [][]string
	Spans  []Span
	Rows   [][]Value
	Total  bool
}

// Width returns the number of columns.
func (t Table) Width() int {
	if len(t.Header) == 0 {
		return 0
	}
	return len(t.Header[0])
}

// =============================================================================
// DETAIL
// =============================================================================

// DetailTable lists every line in store-then-line order. With withTotal a
// trailing 전체 합계 row carries the grand total in the 소계 column.
func DetailTable(r settlement.Result, withTotal bool) Table {
	t := Table{
		Header: [][]string{append([]string{}, DetailHeader...)},
		Rows:   make([][]Value, 0, r.LineCount()+1),
	}
	for _, ss := range r.Stores {
		for _, l := range ss.Lines {
			t.Rows = append(t.Rows, []Value{
				Text(ss.StoreName),
				Text(ss.StoreCode),
				Text(l.Date),
				Text(l.ItemName),
				Text(l.Category),
				Num(l.Quantity),
				Num(l.UnitPrice),
				Num(l.Amount),
			})
		}
	}
	if withTotal {
		row := make([]Value, len(DetailHeader))
		row[0] = Text(GrandTotalLabel)
		row[len(row)-1] = Num(r.GrandTotal)
		t.Rows = append(t.Rows, row)
		t.Total = true
	}
	return t
}

// =============================================================================
// PIVOT
// =============================================================================

// PivotTable renders p with a two-row header: each category spans its
// 수량 / 금액 pair, 매장명 and 합계 span both header rows.
func PivotTable(p settlement.Pivot) Table {
	width := 2 + 2*len(p.Categories)
	top := make([]string, width)
	sub := make([]string, width)
	top[0] = DetailHeader[0]
	spans := []Span{{Row: 0, Col: 0, Rows: 2, Cols: 1}}
	for i, c := range p.Categories {
		col := 1 + 2*i
		top[col] = c
		sub[col] = "수량"
		sub[col+1] = "금액"
		spans = append(spans, Span{Row: 0, Col: col, Rows: 1, Cols: 2})
	}
	top[width-1] = TotalColumnLabel
	spans = append(spans, Span{Row: 0, Col: width - 1, Rows: 2, Cols: 1})

	t := Table{
		Header: [][]string{top, sub},
		Spans:  spans,
		Rows:   make([][]Value, 0, len(p.Rows)+1),
		Total:  true,
	}
	for _, row := range p.Rows {
		t.Rows = append(t.Rows, pivotRow(row.StoreName, p.Categories, row.Cells, row.Total))
	}
	t.Rows = append(t.Rows, pivotRow(GrandTotalLabel, p.Categories, p.Totals, p.GrandTotal))
	return t
}

func pivotRow(label string, categories []string, cells map[string]settlement.CategoryTotal, total decimal.Decimal) []Value {
	out := make([]Value, 0, 2+2*len(categories))
	out = append(out, Text(label))
	for _, c := range categories {
		out = append(out, Num(cells[c].QuantitySum), Num(cells[c].AmountSum))
	}
	return append(out, Num(total))
}

// =============================================================================
// FORMATS AND FILE NAMES
// =============================================================================

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx", case-insensitively. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("export format %q: %w", s, settlement.ErrUnsupportedFormat)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName returns 정산결과_YYYYMMDD_HHMMSS.<ext> for the given instant.
func FileName(f Format, now time.Time) string {
	return "정산결과_" + now.Format("20060102_150405") + "." + string(f)
}

// Render writes r in the given format. CSV carries the detail listing followed
// by the category pivot; XLSX carries the pivot, the detail listing and one
// sheet per store.
func Render(f Format, r settlement.Result) ([]byte, error) {
	switch f {
	case FormatCSV:
		return CSV(DetailTable(r, true), PivotTable(settlement.PivotByCategory(r)))
	case FormatXLSX:
		return Workbook(r)
	default:
		return nil, fmt.Errorf("export format %q: %w", f, settlement.ErrUnsupportedFormat)
	}
}
