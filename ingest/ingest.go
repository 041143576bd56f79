/*
Package ingest turns uploaded price, store and usage files into typed rows.

PURPOSE:
  The boundary between loosely formatted operator files and the settlement
  engine. Everything past this package works on typed, trimmed values.

PIPELINE:
  1. Sniff format: workbook (zip magic / .xlsx) or delimited text
  2. Decode text: utf-8 (BOM stripped) -> cp949 (a superset of euc-kr)
  3. Normalize headers: trim, strip BOM, resolve English aliases
  4. Validate required columns for the table kind (SchemaError)
  5. Coerce numeric columns; drop rows that fail (CoercionWarning)

FAILURE MODES:
  Steps 1-4 are fatal to the call and return no rows, so callers never
  write a partial batch. Step 5 is per-row and never fatal.

ACCEPTED NUMBERS:
  "500", "1,200", "1200원", "12.5". Empty, negative and non-numeric
  values are dropped.

SEE ALSO:
  - settlement/errors.go: Error and warning types
  - session/session.go: Writes accepted rows into the session tables
*/
package ingest

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/partner-settlement/settlement"
)

// Report summarizes one ingest call.
type Report struct {
	Table    settlement.TableKind         `json:"table"`
	Source   string                       `json:"source"`
	Format   string                       `json:"format"`
	Encoding string                       `json:"encoding,omitempty"`
	Columns  []string                     `json:"columns"`
	Accepted int                          `json:"accepted"`
	Dropped  int                          `json:"dropped"`
	Warnings []settlement.CoercionWarning `json:"warnings"`
	StoreRef settlement.StoreRef          `json:"store_ref,omitempty"`
}

func newReport(kind settlement.TableKind, src Source, t Table) Report {
	return Report{
		Table:    kind,
		Source:   src.Name,
		Format:   t.Format,
		Encoding: t.Encoding,
		Columns:  t.Columns,
		Warnings: []settlement.CoercionWarning{},
	}
}

func (r *Report) drop(row int, col, value, reason string) {
	r.Dropped++
	r.Warnings = append(r.Warnings, settlement.CoercionWarning{Row: row, Column: col, Value: value, Reason: reason})
}

func load(kind settlement.TableKind, src Source) (Table, Report, error) {
	t, err := ReadTable(kind, src)
	if err != nil {
		return Table{}, Report{}, err
	}
	if err := checkSchema(kind, t); err != nil {
		return Table{}, Report{}, err
	}
	return t, newReport(kind, src, t), nil
}

// =============================================================================
// TABLE KINDS
// =============================================================================

// Prices reads a price list.
func Prices(src Source) ([]settlement.PriceEntry, Report, error) {
	t, report, err := load(settlement.TablePrices, src)
	if err != nil {
		return nil, Report{}, err
	}

	rows := make([]settlement.PriceEntry, 0, len(t.Rows))
	for i, row := range t.Rows {
		name := row[ColItemName]
		if name == "" {
			report.drop(i+1, ColItemName, name, "empty item name")
			continue
		}
		price, err := ParseNumber(row[ColUnitPrice])
		if err != nil {
			report.drop(i+1, ColUnitPrice, row[ColUnitPrice], err.Error())
			continue
		}
		rows = append(rows, settlement.PriceEntry{
			ItemName:  name,
			UnitPrice: price,
			Category:  row[ColCategory],
		})
	}
	report.Accepted = len(rows)
	return rows, report, nil
}

// Stores reads a store directory.
func Stores(src Source) ([]settlement.Store, Report, error) {
	t, report, err := load(settlement.TableStores, src)
	if err != nil {
		return nil, Report{}, err
	}

	rows := make([]settlement.Store, 0, len(t.Rows))
	for i, row := range t.Rows {
		code := row[ColStoreCode]
		if code == "" {
			report.drop(i+1, ColStoreCode, code, "empty store code")
			continue
		}
		rows = append(rows, settlement.Store{
			StoreName: row[ColStoreName],
			StoreCode: code,
		})
	}
	report.Accepted = len(rows)
	return rows, report, nil
}

// Usage reads a usage log. batchID tags every accepted row.
func Usage(src Source, batchID string) ([]settlement.UsageRecord, Report, error) {
	t, report, err := load(settlement.TableUsage, src)
	if err != nil {
		return nil, Report{}, err
	}
	ref := storeRefColumn(t)
	report.StoreRef = ref

	rows := make([]settlement.UsageRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		qty, err := ParseNumber(row[ColQuantity])
		if err != nil {
			report.drop(i+1, ColQuantity, row[ColQuantity], err.Error())
			continue
		}
		rows = append(rows, settlement.UsageRecord{
			Date:      row[ColDate],
			StoreCode: row[ColStoreCode],
			StoreName: row[ColStoreName],
			Ref:       ref,
			ItemName:  row[ColItemName],
			Quantity:  qty,
			BatchID:   batchID,
		})
	}
	report.Accepted = len(rows)
	return rows, report, nil
}

// =============================================================================
// NUMBERS
// =============================================================================

var (
	errEmptyNumber    = errors.New("empty value")
	errNotNumeric     = errors.New("not a number")
	errNegativeNumber = errors.New("negative value")
)

// ParseNumber coerces a cell into a non-negative decimal.
func ParseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "원")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errEmptyNumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotNumeric
	}
	if d.IsNegative() {
		return decimal.Zero, errNegativeNumber
	}
	return d, nil
}
