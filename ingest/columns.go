package ingest

import (
	"strings"

	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// COLUMNS - Canonical names, aliases and required sets per table kind
// =============================================================================

const (
	ColItemName  = "품목명"
	ColUnitPrice = "단가"
	ColCategory  = "카테고리"
	ColStoreName = "매장명"
	ColStoreCode = "매장코드"
	ColDate      = "날짜"
	ColQuantity  = "수량"
)

// aliases maps lower-cased English headers to canonical columns.
var aliases = map[string]string{
	"item_name":  ColItemName,
	"item":       ColItemName,
	"unit_price": ColUnitPrice,
	"price":      ColUnitPrice,
	"category":   ColCategory,
	"store_name": ColStoreName,
	"store_code": ColStoreCode,
	"date":       ColDate,
	"quantity":   ColQuantity,
	"qty":        ColQuantity,
}

// canonicalColumn trims a header and resolves English aliases.
func canonicalColumn(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	if c, ok := aliases[strings.ToLower(h)]; ok {
		return c
	}
	return h
}

// RequiredColumns returns the columns a table kind must carry.
// Usage additionally needs one of 매장코드 / 매장명 (see storeRefColumn).
func RequiredColumns(kind settlement.TableKind) []string {
	switch kind {
	case settlement.TablePrices:
		return []string{ColItemName, ColUnitPrice, ColCategory}
	case settlement.TableStores:
		return []string{ColStoreName, ColStoreCode}
	case settlement.TableUsage:
		return []string{ColDate, ColItemName, ColQuantity}
	default:
		return nil
	}
}

// missingStoreRef is reported when a usage table has neither store column.
const missingStoreRef = ColStoreCode + "|" + ColStoreName

// checkSchema returns a *SchemaError listing every absent required column.
func checkSchema(kind settlement.TableKind, t Table) error {
	var missing []string
	for _, c := range RequiredColumns(kind) {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if kind == settlement.TableUsage && !t.Has(ColStoreCode) && !t.Has(ColStoreName) {
		missing = append(missing, missingStoreRef)
	}
	if len(missing) == 0 {
		return nil
	}
	return &settlement.SchemaError{
		Table:   kind,
		Missing: missing,
		Present: append([]string{}, t.Columns...),
	}
}

// storeRefColumn picks the store reference of a usage table.
// When both columns are present the store code wins.
func storeRefColumn(t Table) settlement.StoreRef {
	if t.Has(ColStoreCode) {
		return settlement.RefStoreCode
	}
	return settlement.RefStoreName
}
