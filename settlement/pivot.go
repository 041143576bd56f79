package settlement

import "github.com/shopspring/decimal"

// =============================================================================
// CATEGORY PIVOT - One group-by pass, category axis from the price list
// =============================================================================

// PivotRow is one store of the category pivot.
type PivotRow struct {
	StoreName string                   `json:"store_name"`
	StoreCode string                   `json:"store_code"`
	Cells     map[string]CategoryTotal `json:"cells"`
	Total     decimal.Decimal          `json:"total"`
}

// Pivot is the store x category breakdown of a Result.
// Every row has a cell for every category, zero when unused.
type Pivot struct {
	Categories []string                 `json:"categories"`
	Rows       []PivotRow               `json:"rows"`
	Totals     map[string]CategoryTotal `json:"totals"`
	GrandTotal decimal.Decimal          `json:"grand_total"`
}

// PivotByCategory groups r by store then category.
// Categories seen in lines but missing from the price-list axis (possible
// after a price re-upload changed a category) are appended in first-seen order.
func PivotByCategory(r Result) Pivot {
	categories := append([]string{}, r.Categories...)
	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c] = struct{}{}
	}
	for _, ss := range r.Stores {
		for _, l := range ss.Lines {
			if _, ok := known[l.Category]; !ok {
				known[l.Category] = struct{}{}
				categories = append(categories, l.Category)
			}
		}
	}

	p := Pivot{
		Categories: categories,
		Rows:       make([]PivotRow, 0, len(r.Stores)),
		Totals:     zeroCells(categories),
		GrandTotal: decimal.Zero,
	}

	for _, ss := range r.Stores {
		row := PivotRow{
			StoreName: ss.StoreName,
			StoreCode: ss.StoreCode,
			Cells:     zeroCells(categories),
			Total:     decimal.Zero,
		}
		for _, l := range ss.Lines {
			row.Cells[l.Category] = row.Cells[l.Category].Add(l)
			p.Totals[l.Category] = p.Totals[l.Category].Add(l)
			row.Total = row.Total.Add(l.Amount)
		}
		p.Rows = append(p.Rows, row)
		p.GrandTotal = p.GrandTotal.Add(row.Total)
	}
	return p
}

// ByStore returns the pivot as store name -> category -> totals.
func (p Pivot) ByStore() map[string]map[string]CategoryTotal {
	out := make(map[string]map[string]CategoryTotal, len(p.Rows))
	for _, row := range p.Rows {
		cells, ok := out[row.StoreName]
		if !ok {
			cells = zeroCells(p.Categories)
			out[row.StoreName] = cells
		}
		for c, v := range row.Cells {
			cells[c] = CategoryTotal{
				QuantitySum: cells[c].QuantitySum.Add(v.QuantitySum),
				AmountSum:   cells[c].AmountSum.Add(v.AmountSum),
			}
		}
	}
	return out
}

func zeroCells(categories []string) map[string]CategoryTotal {
	cells := make(map[string]CategoryTotal, len(categories))
	for _, c := range categories {
		cells[c] = CategoryTotal{QuantitySum: decimal.Zero, AmountSum: decimal.Zero}
	}
	return cells
}
