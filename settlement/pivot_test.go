package settlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/partner-settlement/settlement"
)

func TestPivotByCategory_ZeroCellsForUnusedCategories(t *testing.T) {
	// GIVEN: 서초점 only uses 부자재
	// WHEN: Pivoting
	// THEN: 서초점 still has 택배 and 행낭 cells, both zero

	result := settlement.Compute(sampleTables())

	p := settlement.PivotByCategory(result)

	assert.Equal(t, []string{"부자재", "택배", "행낭"}, p.Categories)
	require.Len(t, p.Rows, 2)
	seocho := p.Rows[1]
	assert.Equal(t, "서초점", seocho.StoreName)
	require.Len(t, seocho.Cells, 3)
	assert.True(t, seocho.Cells["택배"].AmountSum.IsZero())
	assert.True(t, seocho.Cells["행낭"].QuantitySum.IsZero())
	assertDecimal(t, "3600", seocho.Cells["부자재"].AmountSum)
}

func TestPivotByCategory_TotalsMatchResult(t *testing.T) {
	result := settlement.Compute(sampleTables())

	p := settlement.PivotByCategory(result)

	assert.True(t, result.GrandTotal.Equal(p.GrandTotal))
	assertDecimal(t, "8600", p.Totals["부자재"].AmountSum)
	assertDecimal(t, "103", p.Totals["부자재"].QuantitySum)
	assertDecimal(t, "35000", p.Totals["택배"].AmountSum)

	for i, row := range p.Rows {
		assert.True(t, result.Stores[i].TotalAmount.Equal(row.Total))
	}
}

func TestPivotByCategory_EmptyResultKeepsAxis(t *testing.T) {
	tables := sampleTables()
	tables.Usage = nil

	p := settlement.PivotByCategory(settlement.Compute(tables))

	assert.Empty(t, p.Rows)
	assert.Equal(t, []string{"부자재", "택배", "행낭"}, p.Categories)
	assert.True(t, p.GrandTotal.IsZero())
}

func TestPivotByCategory_LineCategoryOffAxisAppended(t *testing.T) {
	result := settlement.Compute(sampleTables())
	result.Categories = []string{"부자재"}

	p := settlement.PivotByCategory(result)

	assert.Equal(t, []string{"부자재", "택배", "행낭"}, p.Categories)
}

func TestPivot_ByStore(t *testing.T) {
	p := settlement.PivotByCategory(settlement.Compute(sampleTables()))

	m := p.ByStore()

	require.Contains(t, m, "강남점")
	assertDecimal(t, "3000", m["강남점"]["행낭"].AmountSum)
	assertDecimal(t, "0", m["서초점"]["택배"].AmountSum)
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestFormatting(t *testing.T) {
	tests := []struct {
		in      string
		plain   string
		grouped string
		won     string
	}{
		{in: "0", plain: "0", grouped: "0", won: "0원"},
		{in: "500", plain: "500", grouped: "500", won: "500원"},
		{in: "5000", plain: "5000", grouped: "5,000", won: "5,000원"},
		{in: "1234567.5", plain: "1234567.5", grouped: "1,234,567.5", won: "1,234,567.5원"},
		{in: "12.50", plain: "12.5", grouped: "12.5", won: "12.5원"},
		{in: "-100000", plain: "-100000", grouped: "-100,000", won: "-100,000원"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d := dec(tt.in)
			assert.Equal(t, tt.plain, settlement.Plain(d))
			assert.Equal(t, tt.grouped, settlement.Grouped(d))
			assert.Equal(t, tt.won, settlement.Won(d))
		})
	}
}
