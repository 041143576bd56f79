package settlement_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func price(item, unit, category string) settlement.PriceEntry {
	return settlement.PriceEntry{ItemName: item, UnitPrice: dec(unit), Category: category}
}

func store(name, code string) settlement.Store {
	return settlement.Store{StoreName: name, StoreCode: code}
}

func usageByCode(date, code, item, qty string) settlement.UsageRecord {
	return settlement.UsageRecord{
		Date: date, StoreCode: code, Ref: settlement.RefStoreCode, ItemName: item, Quantity: dec(qty),
	}
}

func usageByName(date, name, item, qty string) settlement.UsageRecord {
	return settlement.UsageRecord{
		Date: date, StoreName: name, Ref: settlement.RefStoreName, ItemName: item, Quantity: dec(qty),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// sampleTables is a small three-store directory with mixed categories.
func sampleTables() settlement.Tables {
	return settlement.Tables{
		Prices: []settlement.PriceEntry{
			price("비닐봉투(소)", "50", "부자재"),
			price("박스(대)", "1200", "부자재"),
			price("택배(기본)", "3500", "택배"),
			price("행낭", "1500", "행낭"),
		},
		Stores: []settlement.Store{
			store("강남점", "GN01"),
			store("서초점", "SC01"),
			store("역삼점", "YS01"),
		},
		Usage: []settlement.UsageRecord{
			usageByCode("2024-01-15", "GN01", "비닐봉투(소)", "100"),
			usageByCode("2024-01-15", "GN01", "택배(기본)", "10"),
			usageByCode("2024-01-16", "SC01", "박스(대)", "3"),
			usageByCode("2024-01-17", "GN01", "행낭", "2"),
		},
	}
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestCompute_SinglePricedLine(t *testing.T) {
	// GIVEN: One price, one store, one usage row of 10 boxes at 500
	// WHEN: Computing the settlement
	// THEN: One store with one 5000 line, grand total 5000

	tables := settlement.Tables{
		Prices: []settlement.PriceEntry{price("박스", "500", "부자재")},
		Stores: []settlement.Store{store("강남점", "GN01")},
		Usage:  []settlement.UsageRecord{usageByCode("2024-11-01", "GN01", "박스", "10")},
	}

	result := settlement.Compute(tables)

	require.Len(t, result.Stores, 1)
	ss := result.Stores[0]
	assert.Equal(t, "강남점", ss.StoreName)
	require.Len(t, ss.Lines, 1)
	assertDecimal(t, "5000", ss.Lines[0].Amount)
	assertDecimal(t, "5000", result.GrandTotal)
	assert.Empty(t, result.Anomalies)
}

func TestCompute_UnpricedItem_Excluded(t *testing.T) {
	// GIVEN: The only usage row names an item missing from the price list
	// WHEN: Computing
	// THEN: Zero stores, zero total, one unpriced anomaly naming the item

	tables := settlement.Tables{
		Prices: []settlement.PriceEntry{price("박스", "500", "부자재")},
		Stores: []settlement.Store{store("강남점", "GN01")},
		Usage:  []settlement.UsageRecord{usageByCode("2024-11-01", "GN01", "테이프", "10")},
	}

	result := settlement.Compute(tables)

	assert.Empty(t, result.Stores)
	assert.True(t, result.GrandTotal.IsZero())
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, settlement.AnomalyUnpricedItem, result.Anomalies[0].Kind)
	assert.Equal(t, "테이프", result.Anomalies[0].ItemName)
	assert.Equal(t, []string{"테이프"}, result.UnpricedItems())
}

func TestCompute_RepeatedItemKeepsSeparateLines(t *testing.T) {
	// GIVEN: Two usage rows for the same store and item (5 and 7 at 100)
	// WHEN: Computing
	// THEN: Two lines, 500 and 700, category amount sum 1200

	tables := settlement.Tables{
		Prices: []settlement.PriceEntry{price("테이프", "100", "부자재")},
		Stores: []settlement.Store{store("강남점", "GN01")},
		Usage: []settlement.UsageRecord{
			usageByCode("2024-11-01", "GN01", "테이프", "5"),
			usageByCode("2024-11-02", "GN01", "테이프", "7"),
		},
	}

	result := settlement.Compute(tables)

	require.Len(t, result.Stores, 1)
	ss := result.Stores[0]
	require.Len(t, ss.Lines, 2)
	assertDecimal(t, "500", ss.Lines[0].Amount)
	assertDecimal(t, "700", ss.Lines[1].Amount)
	assertDecimal(t, "1200", ss.CategoryTotals["부자재"].AmountSum)
	assertDecimal(t, "12", ss.CategoryTotals["부자재"].QuantitySum)
	assertDecimal(t, "12", ss.TotalQuantity())
}

func TestFilter_ExcludingAllCategories_EmptyResult(t *testing.T) {
	// GIVEN: A populated result
	// WHEN: Filtering by a category no line carries
	// THEN: Zero lines and a zero total, no panic

	result := settlement.Compute(sampleTables())
	require.NotEmpty(t, result.Stores)

	filtered := settlement.Filter{Categories: []string{"없는카테고리"}}.Apply(result)

	assert.Empty(t, filtered.Stores)
	assert.Equal(t, 0, filtered.LineCount())
	assert.True(t, filtered.GrandTotal.IsZero())
}

// =============================================================================
// ENGINE INVARIANTS
// =============================================================================

func TestCompute_GrandTotalIsSumOfStores(t *testing.T) {
	result := settlement.Compute(sampleTables())

	sum := decimal.Zero
	for _, ss := range result.Stores {
		lineSum := decimal.Zero
		for _, l := range ss.Lines {
			assert.True(t, l.UnitPrice.Mul(l.Quantity).Equal(l.Amount))
			lineSum = lineSum.Add(l.Amount)
		}
		assert.True(t, lineSum.Equal(ss.TotalAmount), "store %s", ss.StoreName)
		sum = sum.Add(ss.TotalAmount)
	}
	assert.True(t, sum.Equal(result.GrandTotal))
	// 100*50 + 10*3500 + 2*1500 + 3*1200
	assertDecimal(t, "46600", result.GrandTotal)
}

func TestCompute_DirectoryOrderAndStoresWithoutUsageOmitted(t *testing.T) {
	// GIVEN: Three stores; 역삼점 has no usage
	// WHEN: Computing
	// THEN: Stores appear in directory order and 역삼점 is omitted

	result := settlement.Compute(sampleTables())

	require.Len(t, result.Stores, 2)
	assert.Equal(t, "강남점", result.Stores[0].StoreName)
	assert.Equal(t, "서초점", result.Stores[1].StoreName)

	// Lines keep usage arrival order within the store.
	lines := result.Stores[0].Lines
	require.Len(t, lines, 3)
	assert.Equal(t, "비닐봉투(소)", lines[0].ItemName)
	assert.Equal(t, "택배(기본)", lines[1].ItemName)
	assert.Equal(t, "행낭", lines[2].ItemName)
}

func TestCompute_SelectionByStoreName(t *testing.T) {
	// GIVEN: Usage rows carrying only store names
	// WHEN: Computing
	// THEN: Rows match stores by name

	tables := sampleTables()
	tables.Usage = []settlement.UsageRecord{
		usageByName("2024-01-15", "서초점", "행낭", "4"),
	}

	result := settlement.Compute(tables)

	assert.Equal(t, settlement.RefStoreName, settlement.SelectionMode(tables.Usage))
	require.Len(t, result.Stores, 1)
	assert.Equal(t, "SC01", result.Stores[0].StoreCode)
	assertDecimal(t, "6000", result.GrandTotal)
}

func TestCompute_MixedUsage_CodeModeWins(t *testing.T) {
	// GIVEN: One batch keyed by code and one keyed by name
	// WHEN: Computing
	// THEN: Code mode is selected and name-only rows are unknown stores

	tables := sampleTables()
	tables.Usage = []settlement.UsageRecord{
		usageByCode("2024-01-15", "GN01", "행낭", "1"),
		usageByName("2024-01-15", "서초점", "행낭", "1"),
	}

	result := settlement.Compute(tables)

	require.Len(t, result.Stores, 1)
	assert.Equal(t, "강남점", result.Stores[0].StoreName)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, settlement.AnomalyUnknownStore, result.Anomalies[0].Kind)
	assert.Equal(t, 1, result.Anomalies[0].Index)
	assert.Equal(t, "서초점", result.Anomalies[0].StoreRef, "name-only row reports its own name")
	assert.Equal(t, `store "서초점" is not registered`, result.Anomalies[0].String())
}

func TestCompute_UnknownStore(t *testing.T) {
	tables := sampleTables()
	tables.Usage = append(tables.Usage, usageByCode("2024-01-18", "ZZ99", "행낭", "1"))

	result := settlement.Compute(tables)

	var unknown []settlement.Anomaly
	for _, a := range result.Anomalies {
		if a.Kind == settlement.AnomalyUnknownStore {
			unknown = append(unknown, a)
		}
	}
	require.Len(t, unknown, 1)
	assert.Equal(t, "ZZ99", unknown[0].StoreRef)
	assert.Equal(t, `store "ZZ99" is not registered`, unknown[0].String())
	assertDecimal(t, "46600", result.GrandTotal)
}

func TestCompute_OneAnomalyPerUnpricedRow(t *testing.T) {
	// GIVEN: The same unpriced item used three times across two stores
	// WHEN: Computing
	// THEN: Three anomalies, one distinct unpriced item

	tables := sampleTables()
	tables.Usage = append(tables.Usage,
		usageByCode("2024-01-18", "GN01", "테이프", "1"),
		usageByCode("2024-01-18", "SC01", "테이프", "1"),
		usageByCode("2024-01-19", "GN01", "테이프", "1"),
	)

	result := settlement.Compute(tables)

	assert.Len(t, result.Anomalies, 3)
	assert.Equal(t, []string{"테이프"}, result.UnpricedItems())
}

func TestCompute_FirstPriceEntryWins(t *testing.T) {
	// GIVEN: A tables value carrying two entries for the same item
	// WHEN: Computing
	// THEN: The first entry prices the line

	tables := settlement.Tables{
		Prices: []settlement.PriceEntry{price("박스", "500", "부자재"), price("박스", "900", "기타")},
		Stores: []settlement.Store{store("강남점", "GN01")},
		Usage:  []settlement.UsageRecord{usageByCode("2024-11-01", "GN01", "박스", "2")},
	}

	result := settlement.Compute(tables)

	require.Len(t, result.Stores, 1)
	assertDecimal(t, "1000", result.GrandTotal)
	assert.Equal(t, "부자재", result.Stores[0].Lines[0].Category)
}

func TestCompute_EmptyTables(t *testing.T) {
	result := settlement.Compute(settlement.Tables{})

	assert.NotNil(t, result.Stores)
	assert.NotNil(t, result.Anomalies)
	assert.Empty(t, result.Stores)
	assert.True(t, result.GrandTotal.IsZero())
	assert.Equal(t, settlement.Counts{}, result.Counts)
}

func TestCompute_FractionalQuantities(t *testing.T) {
	tables := settlement.Tables{
		Prices: []settlement.PriceEntry{price("테이프", "333.3", "부자재")},
		Stores: []settlement.Store{store("강남점", "GN01")},
		Usage:  []settlement.UsageRecord{usageByCode("2024-11-01", "GN01", "테이프", "1.5")},
	}

	result := settlement.Compute(tables)

	assertDecimal(t, "499.95", result.GrandTotal)
}

func TestCompute_CountsAndCategories(t *testing.T) {
	tables := sampleTables()

	result := settlement.Compute(tables)

	assert.Equal(t, settlement.Counts{RegisteredItems: 4, RegisteredStores: 3, UsageRows: 4}, result.Counts)
	assert.Equal(t, []string{"부자재", "택배", "행낭"}, result.Categories)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	tables := sampleTables()
	before := len(tables.Usage)

	_ = settlement.Compute(tables)
	_ = settlement.Compute(tables)

	assert.Len(t, tables.Usage, before)
	assert.Equal(t, "GN01", tables.Usage[0].StoreCode)
}
