package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/partner-settlement/settlement"
	"github.com/warp/partner-settlement/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func price(item, unit, category string) settlement.PriceEntry {
	return settlement.PriceEntry{ItemName: item, UnitPrice: decimal.RequireFromString(unit), Category: category}
}

func usage(code, item, qty string) settlement.UsageRecord {
	return settlement.UsageRecord{
		Date:      "2024-01-15",
		StoreCode: code,
		Ref:       settlement.RefStoreCode,
		ItemName:  item,
		Quantity:  decimal.RequireFromString(qty),
		BatchID:   "batch-1",
	}
}

// =============================================================================
// MERGE TESTS
// =============================================================================

func TestTables_UpsertOrderingMatchesMerge(t *testing.T) {
	// GIVEN: existing [A1 B1 C1] and incoming [B2 D1 A2]
	// WHEN: Upserting both through SQLite
	// THEN: The snapshot equals settlement.MergePrices of the same inputs

	ctx := context.Background()
	tables := newTestStore(t).Session("s1")

	existing := []settlement.PriceEntry{price("A", "1", "x"), price("B", "1", "x"), price("C", "1", "x")}
	incoming := []settlement.PriceEntry{price("B", "2", "x"), price("D", "1", "x"), price("A", "2.5", "y")}
	require.NoError(t, tables.UpsertPrices(ctx, existing))
	require.NoError(t, tables.UpsertPrices(ctx, incoming))

	got, err := tables.Snapshot(ctx)
	require.NoError(t, err)
	want := settlement.MergePrices(existing, incoming)

	require.Len(t, got.Prices, len(want))
	for i := range want {
		assert.Equal(t, want[i].ItemName, got.Prices[i].ItemName)
		assert.Equal(t, want[i].Category, got.Prices[i].Category)
		assert.True(t, want[i].UnitPrice.Equal(got.Prices[i].UnitPrice), "item %s", want[i].ItemName)
	}
}

func TestTables_StoresUpsertByCode(t *testing.T) {
	ctx := context.Background()
	tables := newTestStore(t).Session("s1")

	require.NoError(t, tables.UpsertStores(ctx, []settlement.Store{
		{StoreName: "강남점", StoreCode: "GN01"},
		{StoreName: "서초점", StoreCode: "SC01"},
	}))
	require.NoError(t, tables.UpsertStores(ctx, []settlement.Store{{StoreName: "강남본점", StoreCode: "GN01"}}))

	got, err := tables.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []settlement.Store{
		{StoreName: "서초점", StoreCode: "SC01"},
		{StoreName: "강남본점", StoreCode: "GN01"},
	}, got.Stores)
}

func TestTables_UsageAppendsInOrder(t *testing.T) {
	ctx := context.Background()
	tables := newTestStore(t).Session("s1")

	batch := []settlement.UsageRecord{usage("GN01", "박스", "1"), usage("SC01", "행낭", "2.5")}
	require.NoError(t, tables.AppendUsage(ctx, batch))
	require.NoError(t, tables.AppendUsage(ctx, batch))

	got, err := tables.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Usage, 4)
	assert.Equal(t, "GN01", got.Usage[0].StoreCode)
	assert.Equal(t, "SC01", got.Usage[3].StoreCode)
	assert.Equal(t, settlement.RefStoreCode, got.Usage[1].Ref)
	assert.Equal(t, "batch-1", got.Usage[2].BatchID)
	assert.True(t, decimal.RequireFromString("2.5").Equal(got.Usage[1].Quantity))
}

// =============================================================================
// PARTITION TESTS
// =============================================================================

func TestSessions_AreIsolated(t *testing.T) {
	// GIVEN: Two sessions sharing one database
	// WHEN: Each writes and one resets
	// THEN: Neither sees the other's rows, and reset only touches its own

	ctx := context.Background()
	db := newTestStore(t)
	a, b := db.Session("a"), db.Session("b")

	require.NoError(t, a.UpsertPrices(ctx, []settlement.PriceEntry{price("박스", "500", "부자재")}))
	require.NoError(t, b.UpsertPrices(ctx, []settlement.PriceEntry{price("행낭", "1500", "행낭")}))
	require.NoError(t, b.AppendUsage(ctx, []settlement.UsageRecord{usage("GN01", "행낭", "1")}))

	require.NoError(t, a.Reset(ctx))

	ta, err := a.Snapshot(ctx)
	require.NoError(t, err)
	tb, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, settlement.Counts{}, ta.Counts())
	assert.Equal(t, settlement.Counts{RegisteredItems: 1, UsageRows: 1}, tb.Counts())
}

func TestDropSession(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	s := db.Session("gone")
	require.NoError(t, s.AppendUsage(ctx, []settlement.UsageRecord{usage("GN01", "박스", "1")}))

	require.NoError(t, db.DropSession(ctx, "gone"))

	got, err := db.Session("gone").Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Usage)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	tables := newTestStore(t).Session("s1")
	require.NoError(t, tables.UpsertPrices(ctx, []settlement.PriceEntry{price("박스", "500", "부자재")}))

	boom := errors.New("boom")
	err := tables.WithTx(ctx, func(tx settlement.TableStore) error {
		if err := tx.Reset(ctx); err != nil {
			return err
		}
		if err := tx.UpsertPrices(ctx, []settlement.PriceEntry{price("행낭", "1500", "행낭")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := tables.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Prices, 1)
	assert.Equal(t, "박스", got.Prices[0].ItemName)
}

func TestWithTx_Commit(t *testing.T) {
	ctx := context.Background()
	tables := newTestStore(t).Session("s1")

	err := tables.WithTx(ctx, func(tx settlement.TableStore) error {
		if err := tx.UpsertStores(ctx, []settlement.Store{{StoreName: "강남점", StoreCode: "GN01"}}); err != nil {
			return err
		}
		return tx.AppendUsage(ctx, []settlement.UsageRecord{usage("GN01", "박스", "3")})
	})
	require.NoError(t, err)

	got, err := tables.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Stores, 1)
	assert.Len(t, got.Usage, 1)
}

func TestTables_ImplementsTxTableStore(t *testing.T) {
	var _ settlement.TxTableStore = newTestStore(t).Session("s1")
}
