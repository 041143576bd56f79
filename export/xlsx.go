package export

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// WORKBOOK - 요약 | 전체 내역 | one sheet per store
// =============================================================================

const (
	SummarySheet = "요약"
	DetailSheet  = "전체 내역"

	// StoreTotalLabel labels the total row of a per-store sheet.
	StoreTotalLabel = "매장 합계"

	maxSheetName = 31
	numberFormat = 3 // built-in "#,##0"
	decimalFmt   = 4 // built-in "#,##0.00"
)

type sheetStyles struct {
	header int
	number int
	frac   int
	total  int
}

// Workbook renders r as an XLSX file. Sheets appear in the order 요약,
// 전체 내역, then stores in settlement order.
func Workbook(r settlement.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newSheetStyles(f)
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := writeSheet(f, SummarySheet, PivotTable(settlement.PivotByCategory(r)), styles); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(DetailSheet); err != nil {
		return nil, fmt.Errorf("failed to add detail sheet: %w", err)
	}
	if err := writeSheet(f, DetailSheet, DetailTable(r, true), styles); err != nil {
		return nil, err
	}

	names := newSheetNamer(SummarySheet, DetailSheet)
	for _, ss := range r.Stores {
		name := names.next(ss.StoreName)
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to add sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, storeTable(ss), styles); err != nil {
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// storeTable is the detail listing of one store with a 매장 합계 row.
func storeTable(ss settlement.StoreSettlement) Table {
	t := DetailTable(settlement.Result{
		Stores:     []settlement.StoreSettlement{ss},
		GrandTotal: ss.TotalAmount,
	}, true)
	t.Rows[len(t.Rows)-1][0] = Text(StoreTotalLabel)
	return t
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	var s sheetStyles
	var err error
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}
	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: center}); err != nil {
		return s, fmt.Errorf("failed to create header style: %w", err)
	}
	if s.number, err = f.NewStyle(&excelize.Style{NumFmt: numberFormat}); err != nil {
		return s, fmt.Errorf("failed to create number style: %w", err)
	}
	if s.frac, err = f.NewStyle(&excelize.Style{NumFmt: decimalFmt}); err != nil {
		return s, fmt.Errorf("failed to create number style: %w", err)
	}
	if s.total, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: numberFormat}); err != nil {
		return s, fmt.Errorf("failed to create total style: %w", err)
	}
	return s, nil
}

// writeSheet writes header rows, merges header spans, then body rows.
// Numbers are written as numeric cells so the sheet can be summed.
func writeSheet(f *excelize.File, sheet string, t Table, styles sheetStyles) error {
	width := t.Width()
	if width == 0 {
		return nil
	}

	for i, h := range t.Header {
		row := make([]any, len(h))
		for j, v := range h {
			row[j] = v
		}
		if err := setRow(f, sheet, i+1, row); err != nil {
			return err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(width, len(t.Header))
	if err := f.SetCellStyle(sheet, "A1", lastHeader, styles.header); err != nil {
		return fmt.Errorf("failed to style header of %q: %w", sheet, err)
	}
	for _, sp := range t.Spans {
		if sp.Rows <= 1 && sp.Cols <= 1 {
			continue
		}
		from, _ := excelize.CoordinatesToCellName(sp.Col+1, sp.Row+1)
		to, _ := excelize.CoordinatesToCellName(sp.Col+sp.Cols, sp.Row+sp.Rows)
		if err := f.MergeCell(sheet, from, to); err != nil {
			return fmt.Errorf("failed to merge %s:%s on %q: %w", from, to, sheet, err)
		}
	}

	for i, body := range t.Rows {
		rowNum := len(t.Header) + i + 1
		row := make([]any, width)
		for j := 0; j < width && j < len(body); j++ {
			if body[j].IsNum {
				row[j] = body[j].Num.InexactFloat64()
			} else {
				row[j] = body[j].Text
			}
		}
		if err := setRow(f, sheet, rowNum, row); err != nil {
			return err
		}
		for j := 0; j < width && j < len(body); j++ {
			v := body[j]
			if !v.IsNum {
				continue
			}
			style := styles.number
			if !v.Num.IsInteger() {
				style = styles.frac
			}
			if t.Total && i == len(t.Rows)-1 {
				style = styles.total
			}
			cell, _ := excelize.CoordinatesToCellName(j+1, rowNum)
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return fmt.Errorf("failed to style %s on %q: %w", cell, sheet, err)
			}
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(width)
	if err := f.SetColWidth(sheet, "A", lastCol, 14); err != nil {
		return fmt.Errorf("failed to size columns of %q: %w", sheet, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, row []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write row %d of %q: %w", rowNum, sheet, err)
	}
	return nil
}

// =============================================================================
// SHEET NAMES
// =============================================================================

// sheetNamer hands out valid, unique sheet names. Excel compares sheet
// names case-insensitively and caps them at 31 characters.
type sheetNamer struct {
	used map[string]struct{}
}

func newSheetNamer(reserved ...string) *sheetNamer {
	n := &sheetNamer{used: make(map[string]struct{})}
	for _, r := range reserved {
		n.used[strings.ToLower(r)] = struct{}{}
	}
	return n
}

func (n *sheetNamer) next(storeName string) string {
	base := SanitizeSheetName(storeName)
	name := base
	for i := 2; ; i++ {
		if _, taken := n.used[strings.ToLower(name)]; !taken {
			break
		}
		suffix := " (" + strconv.Itoa(i) + ")"
		name = truncateRunes(base, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	n.used[strings.ToLower(name)] = struct{}{}
	return name
}

// SanitizeSheetName replaces characters Excel forbids in sheet names,
// strips edge apostrophes and truncates to 31 characters.
func SanitizeSheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, "'")
	s = truncateRunes(s, maxSheetName)
	s = strings.TrimSpace(strings.Trim(s, "'"))
	if s == "" {
		return "매장"
	}
	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
