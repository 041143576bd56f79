package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/partner-settlement/ingest"
	"github.com/warp/partner-settlement/session"
	"github.com/warp/partner-settlement/settlement"
	"github.com/warp/partner-settlement/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	pricesCSV = "품목명,단가,카테고리\n박스,500,부자재\n테이프,100,부자재\n행낭,1500,행낭\n"
	storesCSV = "매장명,매장코드\n강남점,GN01\n서초점,SC01\n"
	usageCSV  = "날짜,매장코드,품목명,수량\n2024-11-01,GN01,박스,10\n2024-11-02,SC01,행낭,2\n"
)

func src(name, body string) ingest.Source {
	return ingest.Source{Name: name, Data: []byte(body)}
}

func backends(t *testing.T) map[string]session.Backend {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]session.Backend{
		"memory": session.MemoryBackend{},
		"sqlite": session.SQLiteBackend{DB: db},
	}
}

func loaded(t *testing.T, backend session.Backend) *session.Session {
	t.Helper()
	reg := session.NewRegistry(backend, nil)
	s, err := reg.Create("s1")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.IngestPrices(ctx, src("prices.csv", pricesCSV))
	require.NoError(t, err)
	_, err = s.IngestStores(ctx, src("stores.csv", storesCSV))
	require.NoError(t, err)
	_, err = s.IngestUsage(ctx, src("usage.csv", usageCSV))
	require.NoError(t, err)
	return s
}

// =============================================================================
// WORKSPACE TESTS
// =============================================================================

func TestSession_IngestAndCompute(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: Prices, stores and usage uploaded one by one
			// WHEN: Computing
			// THEN: Both stores settle and the grand total is 8000

			s := loaded(t, backend)

			r, err := s.Compute(context.Background())
			require.NoError(t, err)
			require.Len(t, r.Stores, 2)
			assert.Equal(t, "5000", r.Stores[0].TotalAmount.String())
			assert.Equal(t, "8000", r.GrandTotal.String())
			assert.Equal(t, settlement.Counts{RegisteredItems: 3, RegisteredStores: 2, UsageRows: 2}, r.Counts)
		})
	}
}

func TestSession_ReuploadUsageDoubles(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := loaded(t, backend)
			ctx := context.Background()

			_, err := s.IngestUsage(ctx, src("usage.csv", usageCSV))
			require.NoError(t, err)

			r, err := s.Compute(ctx)
			require.NoError(t, err)
			assert.Equal(t, "16000", r.GrandTotal.String())
			assert.Equal(t, 4, r.Counts.UsageRows)
		})
	}
}

func TestSession_SchemaErrorLeavesTablesUntouched(t *testing.T) {
	// GIVEN: A loaded session
	// WHEN: Uploading a price file missing 단가
	// THEN: SchemaError, and the price list is unchanged

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := loaded(t, backend)
			ctx := context.Background()

			_, err := s.IngestPrices(ctx, src("prices.csv", "품목명,카테고리\n박스,부자재\n"))
			assert.ErrorIs(t, err, settlement.ErrSchema)

			tables, err := s.Tables(ctx)
			require.NoError(t, err)
			assert.Len(t, tables.Prices, 3)
			assert.Equal(t, "500", tables.Prices[0].UnitPrice.String())
		})
	}
}

func TestSession_EncodingErrorLeavesTablesUntouched(t *testing.T) {
	// GIVEN: A loaded session
	// WHEN: Uploading usage bytes no supported encoding can decode
	// THEN: EncodingError, and the usage log is unchanged

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := loaded(t, backend)
			ctx := context.Background()

			_, err := s.IngestUsage(ctx, ingest.Source{Name: "usage.csv", Data: []byte{0xFF, 0xFF, 0xFF}})
			assert.ErrorIs(t, err, settlement.ErrEncoding)

			tables, err := s.Tables(ctx)
			require.NoError(t, err)
			assert.Len(t, tables.Usage, 2)

			r, err := s.Compute(ctx)
			require.NoError(t, err)
			assert.Equal(t, "8000", r.GrandTotal.String())
		})
	}
}

func TestSession_Settle_Filter(t *testing.T) {
	s := loaded(t, session.MemoryBackend{})

	r, err := s.Settle(context.Background(), settlement.Filter{Categories: []string{"행낭"}})
	require.NoError(t, err)

	require.Len(t, r.Stores, 1)
	assert.Equal(t, "서초점", r.Stores[0].StoreName)
	assert.Equal(t, "3000", r.GrandTotal.String())
}

func TestSession_Ingest_DispatchesByKind(t *testing.T) {
	s := loaded(t, session.MemoryBackend{})

	report, err := s.Ingest(context.Background(), settlement.TableStores, src("s.csv", "매장명,매장코드\n역삼점,YS01\n"))
	require.NoError(t, err)
	assert.Equal(t, settlement.TableStores, report.Table)

	_, err = s.Ingest(context.Background(), settlement.TableKind("orders"), src("o.csv", "a\n"))
	assert.Error(t, err)
}

func TestSession_Reset(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := loaded(t, backend)
			ctx := context.Background()

			require.NoError(t, s.Reset(ctx))

			r, err := s.Compute(ctx)
			require.NoError(t, err)
			assert.Equal(t, settlement.Counts{}, r.Counts)
			assert.True(t, r.GrandTotal.IsZero())
		})
	}
}

func TestSession_Load_ReplacesAtomically(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: A loaded session
			// WHEN: Loading a bundle whose usage file is malformed
			// THEN: Nothing changes; a valid bundle then replaces all tables

			s := loaded(t, backend)
			ctx := context.Background()

			_, err := s.Load(ctx, session.Bundle{
				Prices: src("p.csv", "품목명,단가,카테고리\n라벨,10,부자재\n"),
				Stores: src("s.csv", "매장명,매장코드\n역삼점,YS01\n"),
				Usage:  []ingest.Source{src("u.csv", "날짜,품목명\n2024-11-01,라벨\n")},
			})
			assert.ErrorIs(t, err, settlement.ErrSchema)
			before, err := s.Tables(ctx)
			require.NoError(t, err)
			assert.Len(t, before.Prices, 3)

			reports, err := s.Load(ctx, session.Bundle{
				Prices: src("p.csv", "품목명,단가,카테고리\n라벨,10,부자재\n"),
				Stores: src("s.csv", "매장명,매장코드\n역삼점,YS01\n"),
				Usage: []ingest.Source{
					src("u1.csv", "날짜,매장코드,품목명,수량\n2024-11-01,YS01,라벨,3\n"),
					src("u2.csv", "날짜,매장명,품목명,수량\n2024-11-02,역삼점,라벨,4\n"),
				},
			})
			require.NoError(t, err)
			assert.Len(t, reports, 4)

			after, err := s.Tables(ctx)
			require.NoError(t, err)
			assert.Equal(t, settlement.Counts{RegisteredItems: 1, RegisteredStores: 1, UsageRows: 2}, after.Counts())
			assert.NotEqual(t, after.Usage[0].BatchID, after.Usage[1].BatchID)
		})
	}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_Isolation(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			reg := session.NewRegistry(backend, nil)
			ctx := context.Background()
			a, err := reg.Create("a")
			require.NoError(t, err)
			b, err := reg.Create("b")
			require.NoError(t, err)

			_, err = a.IngestPrices(ctx, src("p.csv", pricesCSV))
			require.NoError(t, err)

			tb, err := b.Tables(ctx)
			require.NoError(t, err)
			assert.Empty(t, tb.Prices)
		})
	}
}

func TestRegistry_GetCreateDrop(t *testing.T) {
	reg := session.NewRegistry(session.MemoryBackend{}, nil)
	ctx := context.Background()

	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, settlement.ErrSessionNotFound)

	s, err := reg.Create("x")
	require.NoError(t, err)
	again, err := reg.Create("x")
	require.NoError(t, err)
	assert.Same(t, s, again)

	got, err := reg.Get("x")
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, reg.Drop(ctx, "x"))
	assert.ErrorIs(t, reg.Drop(ctx, "x"), settlement.ErrSessionNotFound)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_DropClearsSQLitePartition(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	backend := session.SQLiteBackend{DB: db}
	s := loaded(t, backend)
	reg := session.NewRegistry(backend, nil)
	_, err = reg.Create(s.ID)
	require.NoError(t, err)

	require.NoError(t, reg.Drop(context.Background(), s.ID))

	tables, err := db.Session(s.ID).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables.Usage)
}

func TestReaper_ExpiresIdleSessions(t *testing.T) {
	reg := session.NewRegistry(session.MemoryBackend{}, nil)
	_, err := reg.Create("idle")
	require.NoError(t, err)

	rp := session.NewReaper(reg, time.Hour, nil)
	assert.Equal(t, 0, rp.RunNow(), "fresh session is kept")

	rp.IdleTimeout = -time.Second
	assert.Equal(t, 1, rp.RunNow())
	assert.Equal(t, 0, reg.Len())
}

func TestReaper_StartStop(t *testing.T) {
	reg := session.NewRegistry(session.MemoryBackend{}, nil)
	rp := session.NewReaper(reg, time.Hour, nil)
	rp.CheckInterval = time.Millisecond

	rp.Start()
	rp.Start()
	rp.Stop()
	rp.Stop()
}
