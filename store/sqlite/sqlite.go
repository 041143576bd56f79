/*
Package sqlite provides a SQLite-backed implementation of settlement.TableStore.

PURPOSE:
  Keeps the session tables in SQLite instead of process memory. One database
  serves many sessions; every row carries its session id and a session only
  ever sees its own partition.

KEY TABLES:
  prices: (session_id, item_name) unique, seq orders survivors
  stores: (session_id, store_code) unique, seq orders survivors
  usage:  append-only, seq is arrival order

UPSERT ORDERING:
  An upsert deletes the existing key and re-inserts it with the next seq,
  which reproduces settlement.MergePrices / MergeStores ordering exactly.

CONCURRENCY:
  Uses sync.RWMutex plus a single open connection. ":memory:" databases are
  per-connection in SQLite, so one connection also keeps them coherent.

USAGE:
  db, err := sqlite.New(":memory:")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

  tables := db.Session("3f1c...")
  err = tables.UpsertPrices(ctx, rows)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - settlement/tables.go: Interface and merge semantics
  - settlement/store/memory.go: In-memory implementation
*/
package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/partner-settlement/settlement"
)

// Store owns the database handle shared by every session partition.
type Store struct {
	db *sqlx.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS prices (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		category TEXT NOT NULL,
		PRIMARY KEY (session_id, item_name)
	);

	CREATE TABLE IF NOT EXISTS stores (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		store_name TEXT NOT NULL,
		store_code TEXT NOT NULL,
		PRIMARY KEY (session_id, store_code)
	);

	CREATE TABLE IF NOT EXISTS usage (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		date TEXT NOT NULL,
		store_code TEXT NOT NULL DEFAULT '',
		store_name TEXT NOT NULL DEFAULT '',
		ref TEXT NOT NULL,
		item_name TEXT NOT NULL,
		quantity TEXT NOT NULL,
		batch_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_prices_session_seq ON prices(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_stores_session_seq ON stores(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_usage_session_seq ON usage(session_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Session returns the partition of the given session.
func (s *Store) Session(sessionID string) *Tables {
	return &Tables{parent: s, sessionID: sessionID}
}

// DropSession deletes every row of a session.
func (s *Store) DropSession(ctx context.Context, sessionID string) error {
	return s.Session(sessionID).Reset(ctx)
}

// =============================================================================
// SESSION PARTITION (settlement.TxTableStore)
// =============================================================================

// Tables is one session's view of the database.
type Tables struct {
	parent    *Store
	sessionID string
}

func (t *Tables) UpsertPrices(ctx context.Context, rows []settlement.PriceEntry) error {
	return t.inTx(ctx, func(q sqlx.ExtContext) error { return upsertPrices(ctx, q, t.sessionID, rows) })
}

func (t *Tables) UpsertStores(ctx context.Context, rows []settlement.Store) error {
	return t.inTx(ctx, func(q sqlx.ExtContext) error { return upsertStores(ctx, q, t.sessionID, rows) })
}

func (t *Tables) AppendUsage(ctx context.Context, rows []settlement.UsageRecord) error {
	return t.inTx(ctx, func(q sqlx.ExtContext) error { return appendUsage(ctx, q, t.sessionID, rows) })
}

// Reset clears the three tables of this session in one database transaction.
func (t *Tables) Reset(ctx context.Context) error {
	return t.inTx(ctx, func(q sqlx.ExtContext) error { return reset(ctx, q, t.sessionID) })
}

func (t *Tables) Snapshot(ctx context.Context) (settlement.Tables, error) {
	t.parent.mu.RLock()
	defer t.parent.mu.RUnlock()
	return snapshot(ctx, t.parent.db, t.sessionID)
}

// WithTx executes fn within one database transaction.
func (t *Tables) WithTx(ctx context.Context, fn func(settlement.TableStore) error) error {
	return t.inTx(ctx, func(q sqlx.ExtContext) error {
		return fn(&txTables{q: q, sessionID: t.sessionID})
	})
}

func (t *Tables) inTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()

	tx, err := t.parent.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// txTables writes through an open transaction; the parent lock is already held.
type txTables struct {
	q         sqlx.ExtContext
	sessionID string
}

func (tt *txTables) UpsertPrices(ctx context.Context, rows []settlement.PriceEntry) error {
	return upsertPrices(ctx, tt.q, tt.sessionID, rows)
}

func (tt *txTables) UpsertStores(ctx context.Context, rows []settlement.Store) error {
	return upsertStores(ctx, tt.q, tt.sessionID, rows)
}

func (tt *txTables) AppendUsage(ctx context.Context, rows []settlement.UsageRecord) error {
	return appendUsage(ctx, tt.q, tt.sessionID, rows)
}

func (tt *txTables) Reset(ctx context.Context) error {
	return reset(ctx, tt.q, tt.sessionID)
}

func (tt *txTables) Snapshot(ctx context.Context) (settlement.Tables, error) {
	return snapshot(ctx, tt.q, tt.sessionID)
}

// =============================================================================
// QUERIES
// =============================================================================

type priceRow struct {
	ItemName  string          `db:"item_name"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Category  string          `db:"category"`
}

type storeRow struct {
	StoreName string `db:"store_name"`
	StoreCode string `db:"store_code"`
}

type usageRow struct {
	Date      string          `db:"date"`
	StoreCode string          `db:"store_code"`
	StoreName string          `db:"store_name"`
	Ref       string          `db:"ref"`
	ItemName  string          `db:"item_name"`
	Quantity  decimal.Decimal `db:"quantity"`
	BatchID   string          `db:"batch_id"`
}

func nextSeq(ctx context.Context, q sqlx.QueryerContext, table, sessionID string) (int64, error) {
	var seq int64
	err := sqlx.GetContext(ctx, q, &seq,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM "+table+" WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s sequence: %w", table, err)
	}
	return seq, nil
}

func upsertPrices(ctx context.Context, q sqlx.ExtContext, sessionID string, rows []settlement.PriceEntry) error {
	seq, err := nextSeq(ctx, q, "prices", sessionID)
	if err != nil {
		return err
	}
	for _, p := range rows {
		if _, err := q.ExecContext(ctx,
			"DELETE FROM prices WHERE session_id = ? AND item_name = ?", sessionID, p.ItemName); err != nil {
			return fmt.Errorf("failed to replace price %q: %w", p.ItemName, err)
		}
		if _, err := q.ExecContext(ctx,
			"INSERT INTO prices (session_id, seq, item_name, unit_price, category) VALUES (?, ?, ?, ?, ?)",
			sessionID, seq, p.ItemName, p.UnitPrice.String(), p.Category); err != nil {
			return fmt.Errorf("failed to insert price %q: %w", p.ItemName, err)
		}
		seq++
	}
	return nil
}

func upsertStores(ctx context.Context, q sqlx.ExtContext, sessionID string, rows []settlement.Store) error {
	seq, err := nextSeq(ctx, q, "stores", sessionID)
	if err != nil {
		return err
	}
	for _, s := range rows {
		if _, err := q.ExecContext(ctx,
			"DELETE FROM stores WHERE session_id = ? AND store_code = ?", sessionID, s.StoreCode); err != nil {
			return fmt.Errorf("failed to replace store %q: %w", s.StoreCode, err)
		}
		if _, err := q.ExecContext(ctx,
			"INSERT INTO stores (session_id, seq, store_name, store_code) VALUES (?, ?, ?, ?)",
			sessionID, seq, s.StoreName, s.StoreCode); err != nil {
			return fmt.Errorf("failed to insert store %q: %w", s.StoreCode, err)
		}
		seq++
	}
	return nil
}

func appendUsage(ctx context.Context, q sqlx.ExtContext, sessionID string, rows []settlement.UsageRecord) error {
	seq, err := nextSeq(ctx, q, "usage", sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, u := range rows {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO usage (session_id, seq, date, store_code, store_name, ref, item_name, quantity, batch_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, seq, u.Date, u.StoreCode, u.StoreName, string(u.Ref), u.ItemName, u.Quantity.String(), u.BatchID, now,
		); err != nil {
			return fmt.Errorf("failed to append usage: %w", err)
		}
		seq++
	}
	return nil
}

func reset(ctx context.Context, q sqlx.ExecerContext, sessionID string) error {
	for _, table := range []string{"prices", "stores", "usage"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", sessionID); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func snapshot(ctx context.Context, q sqlx.QueryerContext, sessionID string) (settlement.Tables, error) {
	var (
		prices []priceRow
		stores []storeRow
		usage  []usageRow
	)
	if err := sqlx.SelectContext(ctx, q, &prices,
		"SELECT item_name, unit_price, category FROM prices WHERE session_id = ? ORDER BY seq", sessionID); err != nil {
		return settlement.Tables{}, fmt.Errorf("failed to query prices: %w", err)
	}
	if err := sqlx.SelectContext(ctx, q, &stores,
		"SELECT store_name, store_code FROM stores WHERE session_id = ? ORDER BY seq", sessionID); err != nil {
		return settlement.Tables{}, fmt.Errorf("failed to query stores: %w", err)
	}
	if err := sqlx.SelectContext(ctx, q, &usage, `
		SELECT date, store_code, store_name, ref, item_name, quantity, batch_id
		FROM usage WHERE session_id = ? ORDER BY seq`, sessionID); err != nil {
		return settlement.Tables{}, fmt.Errorf("failed to query usage: %w", err)
	}

	t := settlement.Tables{
		Prices: make([]settlement.PriceEntry, len(prices)),
		Stores: make([]settlement.Store, len(stores)),
		Usage:  make([]settlement.UsageRecord, len(usage)),
	}
	for i, p := range prices {
		t.Prices[i] = settlement.PriceEntry{ItemName: p.ItemName, UnitPrice: p.UnitPrice, Category: p.Category}
	}
	for i, s := range stores {
		t.Stores[i] = settlement.Store{StoreName: s.StoreName, StoreCode: s.StoreCode}
	}
	for i, u := range usage {
		t.Usage[i] = settlement.UsageRecord{
			Date:      u.Date,
			StoreCode: u.StoreCode,
			StoreName: u.StoreName,
			Ref:       settlement.StoreRef(u.Ref),
			ItemName:  u.ItemName,
			Quantity:  u.Quantity,
			BatchID:   u.BatchID,
		}
	}
	return t, nil
}
