/*
Package settlement provides the partner settlement engine.

PURPOSE:
  Reconciles per-store consumption of supply items (bags, tape, boxes,
  courier services) against a price list and computes what each store owes.
  The package is storage-agnostic: reference tables arrive through a
  TableStore, results are recomputed on demand and never stored.

KEY CONCEPTS IN THIS FILE (types.go):
  - PriceEntry:      Priced item, keyed by item name
  - Store:           Registered store, keyed by store code
  - UsageRecord:     One consumption row, appended and never deduplicated
  - SettlementLine:  A usage row joined to its price (derived)
  - StoreSettlement: Lines and per-category totals of one store (derived)

DESIGN PRINCIPLES:
  1. Precision: unit prices, quantities and amounts use decimal.Decimal
  2. Derived data has no lifecycle: recompute from Tables whenever asked
  3. Typed rows: every table kind has named fields and a required-column set

SEE ALSO:
  - tables.go: Merge semantics for the reference tables
  - engine.go: Settlement computation
  - filter.go: Non-mutating views over a result
*/
package settlement

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// REFERENCE ROWS
// =============================================================================

// PriceEntry is one row of the price list. ItemName is unique post-merge.
type PriceEntry struct {
	ItemName  string          `json:"item_name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Category  string          `json:"category"`
}

// Store is one row of the store directory. StoreCode is unique post-merge.
type Store struct {
	StoreName string `json:"store_name"`
	StoreCode string `json:"store_code"`
}

// StoreRef says which identifying field a usage row carries.
type StoreRef string

const (
	RefStoreCode StoreRef = "store_code"
	RefStoreName StoreRef = "store_name"
)

// UsageRecord is one consumption row. Ref tells which of StoreCode or
// StoreName was present in the batch it came from; when a batch carried
// both columns, both fields are filled and Ref is RefStoreCode.
type UsageRecord struct {
	Date      string          `json:"date"`
	StoreCode string          `json:"store_code,omitempty"`
	StoreName string          `json:"store_name,omitempty"`
	Ref       StoreRef        `json:"ref"`
	ItemName  string          `json:"item_name"`
	Quantity  decimal.Decimal `json:"quantity"`
	BatchID   string          `json:"batch_id,omitempty"`
}

// StoreValue returns the identifying value for the given reference mode.
func (u UsageRecord) StoreValue(ref StoreRef) string {
	if ref == RefStoreName {
		return u.StoreName
	}
	return u.StoreCode
}

// Tables is a point-in-time copy of the three session tables.
type Tables struct {
	Prices []PriceEntry  `json:"prices"`
	Stores []Store       `json:"stores"`
	Usage  []UsageRecord `json:"usage"`
}

// Counts mirrors the summary metrics shown above a settlement.
type Counts struct {
	RegisteredItems  int `json:"registered_items"`
	RegisteredStores int `json:"registered_stores"`
	UsageRows        int `json:"usage_rows"`
}

// Counts returns the size of each table.
func (t Tables) Counts() Counts {
	return Counts{
		RegisteredItems:  len(t.Prices),
		RegisteredStores: len(t.Stores),
		UsageRows:        len(t.Usage),
	}
}

// Categories returns the distinct price-list categories in first-seen order.
// This is the category axis of every pivot, so zero-usage categories appear.
func (t Tables) Categories() []string {
	seen := make(map[string]struct{}, len(t.Prices))
	out := make([]string, 0, len(t.Prices))
	for _, p := range t.Prices {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

// =============================================================================
// DERIVED ROWS
// =============================================================================

// SettlementLine is a usage row priced against its PriceEntry.
type SettlementLine struct {
	Date      string          `json:"date"`
	ItemName  string          `json:"item_name"`
	Category  string          `json:"category"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// CategoryTotal holds the per-category rollup of a store.
type CategoryTotal struct {
	QuantitySum decimal.Decimal `json:"quantity_sum"`
	AmountSum   decimal.Decimal `json:"amount_sum"`
}

// Add returns the total with one more line folded in.
func (c CategoryTotal) Add(l SettlementLine) CategoryTotal {
	return CategoryTotal{
		QuantitySum: c.QuantitySum.Add(l.Quantity),
		AmountSum:   c.AmountSum.Add(l.Amount),
	}
}

// StoreSettlement is the per-store breakdown.
//
// INVARIANT: TotalAmount == sum of Lines[i].Amount.
type StoreSettlement struct {
	StoreName      string                   `json:"store_name"`
	StoreCode      string                   `json:"store_code"`
	Lines          []SettlementLine         `json:"lines"`
	CategoryTotals map[string]CategoryTotal `json:"category_totals"`
	TotalAmount    decimal.Decimal          `json:"total_amount"`
}

// newStoreSettlement builds a settlement from lines, computing the rollups.
func newStoreSettlement(store Store, lines []SettlementLine) StoreSettlement {
	ss := StoreSettlement{
		StoreName:      store.StoreName,
		StoreCode:      store.StoreCode,
		Lines:          lines,
		CategoryTotals: make(map[string]CategoryTotal),
		TotalAmount:    decimal.Zero,
	}
	for _, l := range lines {
		ss.CategoryTotals[l.Category] = ss.CategoryTotals[l.Category].Add(l)
		ss.TotalAmount = ss.TotalAmount.Add(l.Amount)
	}
	return ss
}

// TotalQuantity sums the quantity of every line.
func (s StoreSettlement) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Quantity)
	}
	return total
}

// Result is the canonical output of one settlement computation.
type Result struct {
	Stores     []StoreSettlement `json:"stores"`
	GrandTotal decimal.Decimal   `json:"grand_total"`
	Anomalies  []Anomaly         `json:"anomalies"`
	Counts     Counts            `json:"counts"`

	// Categories is the price-list category axis used by pivots.
	Categories []string `json:"categories"`
}

// LineCount returns the number of lines across all stores.
func (r Result) LineCount() int {
	n := 0
	for _, s := range r.Stores {
		n += len(s.Lines)
	}
	return n
}

// UnpricedItems returns the distinct unpriced item names in first-seen order.
func (r Result) UnpricedItems() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range r.Anomalies {
		if a.Kind != AnomalyUnpricedItem {
			continue
		}
		if _, ok := seen[a.ItemName]; ok {
			continue
		}
		seen[a.ItemName] = struct{}{}
		out = append(out, a.ItemName)
	}
	return out
}
