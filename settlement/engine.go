/*
engine.go - Settlement computation

PURPOSE:
  Joins usage to prices and stores and rolls the result up per store and
  per category. This answers "how much does each store owe?"

ALGORITHM:
  1. Pick the selection mode once from the shape of the usage table:
     store_code if any row carries a store code, otherwise store_name.
  2. Record one unpriced_item anomaly per usage row whose item has no price,
     and one unknown_store anomaly per row whose reference matches no store.
  3. For each store in directory order, take its usage rows in arrival
     order, price them (amount = unit_price x quantity) and roll up
     quantity/amount per category.
  4. Stores with zero priced lines are omitted.
  5. GrandTotal = sum of included StoreSettlement.TotalAmount.

MATCHING:
  Exact, case-sensitive string equality on trimmed values. Ingest has
  already trimmed every cell.

EXAMPLE:
  Prices = {(박스, 500, 부자재)}, Stores = {(강남점, GN01)}
  Usage  = {(2024-11-01, GN01, 박스, 10)}
  => 강남점: one line, amount 5000; GrandTotal 5000

SEE ALSO:
  - filter.go: Views over the Result
  - pivot.go: Category pivot over the Result
*/
package settlement

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// SelectionMode returns the store reference used to match usage rows.
func SelectionMode(usage []UsageRecord) StoreRef {
	for _, u := range usage {
		if u.StoreCode != "" {
			return RefStoreCode
		}
	}
	return RefStoreName
}

// Compute produces the canonical settlement for the given tables.
// It never fails; empty input yields an empty result with a zero total.
func Compute(t Tables) Result {
	result := Result{
		Stores:     []StoreSettlement{},
		GrandTotal: decimal.Zero,
		Anomalies:  []Anomaly{},
		Counts:     t.Counts(),
		Categories: t.Categories(),
	}

	prices := make(map[string]PriceEntry, len(t.Prices))
	for _, p := range t.Prices {
		if _, ok := prices[p.ItemName]; !ok {
			prices[p.ItemName] = p
		}
	}

	mode := SelectionMode(t.Usage)
	byStore := make(map[string][]int)
	for i, u := range t.Usage {
		ref := u.StoreValue(mode)
		byStore[ref] = append(byStore[ref], i)
	}

	registered := make(map[string]struct{}, len(t.Stores))
	for _, s := range t.Stores {
		if mode == RefStoreName {
			registered[s.StoreName] = struct{}{}
		} else {
			registered[s.StoreCode] = struct{}{}
		}
	}

	for i, u := range t.Usage {
		ref := u.StoreValue(mode)
		label := anomalyStoreLabel(u, ref)
		if _, ok := prices[u.ItemName]; !ok {
			result.Anomalies = append(result.Anomalies, Anomaly{
				Kind: AnomalyUnpricedItem, Index: i, Date: u.Date, StoreRef: label, ItemName: u.ItemName,
			})
		}
		if _, ok := registered[ref]; !ok {
			result.Anomalies = append(result.Anomalies, Anomaly{
				Kind: AnomalyUnknownStore, Index: i, Date: u.Date, StoreRef: label, ItemName: u.ItemName,
			})
		}
	}

	for _, store := range t.Stores {
		key := store.StoreCode
		if mode == RefStoreName {
			key = store.StoreName
		}

		var lines []SettlementLine
		for _, idx := range byStore[key] {
			u := t.Usage[idx]
			price, ok := prices[u.ItemName]
			if !ok {
				continue
			}
			lines = append(lines, SettlementLine{
				Date:      u.Date,
				ItemName:  u.ItemName,
				Category:  price.Category,
				Quantity:  u.Quantity,
				UnitPrice: price.UnitPrice,
				Amount:    price.UnitPrice.Mul(u.Quantity),
			})
		}
		if len(lines) == 0 {
			continue
		}

		ss := newStoreSettlement(store, lines)
		result.Stores = append(result.Stores, ss)
		result.GrandTotal = result.GrandTotal.Add(ss.TotalAmount)
	}

	return result
}

// anomalyStoreLabel names the store of u for reporting. A row from a batch
// keyed the other way has no selected value, so its own reference is used.
func anomalyStoreLabel(u UsageRecord, selected string) string {
	if selected != "" {
		return selected
	}
	if u.StoreName != "" {
		return u.StoreName
	}
	return u.StoreCode
}
