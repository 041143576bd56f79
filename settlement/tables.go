/*
tables.go - Reference table merge semantics

PURPOSE:
  Defines how incremental uploads fold into the session tables and the
  TableStore interface every backend implements.

MERGE RULES:
  Prices: upsert keyed by ItemName
  Stores: upsert keyed by StoreCode
  Usage:  append only, arrival order, NO dedup

UPSERT ORDERING:
  Survivors are ordered by the position of their LAST occurrence in
  (existing ++ incoming). A re-uploaded key therefore moves to where it
  appears in the new batch; untouched keys keep their place.

  existing: [A1 B1 C1]   incoming: [B2 D1 A2]
  merged:   [C1 B2 D1 A2]

USAGE ACCUMULATION:
  Re-uploading the same usage file doubles every total. This is current
  product behavior and is covered by tests.

SEE ALSO:
  - store/memory.go: In-memory TableStore
  - store/sqlite/sqlite.go: SQLite TableStore
*/
package settlement

import "context"

// =============================================================================
// TABLE STORE - Interface for session table persistence
// =============================================================================

// TableStore holds the three tables of one session.
// Merge operations are the only mutators; Reset clears all three at once.
type TableStore interface {
	UpsertPrices(ctx context.Context, rows []PriceEntry) error
	UpsertStores(ctx context.Context, rows []Store) error
	AppendUsage(ctx context.Context, rows []UsageRecord) error

	// Reset clears prices, stores and usage atomically.
	Reset(ctx context.Context) error

	// Snapshot returns a copy of the current tables.
	Snapshot(ctx context.Context) (Tables, error)
}

// TxTableStore wraps TableStore with all-or-nothing multi-table writes.
// If fn returns an error, every write made through the passed store is undone.
type TxTableStore interface {
	TableStore
	WithTx(ctx context.Context, fn func(TableStore) error) error
}

// =============================================================================
// MERGE FUNCTIONS - Shared by every TableStore implementation
// =============================================================================

// MergePrices upserts incoming into existing by ItemName.
func MergePrices(existing, incoming []PriceEntry) []PriceEntry {
	return upsert(existing, incoming, func(p PriceEntry) string { return p.ItemName })
}

// MergeStores upserts incoming into existing by StoreCode.
func MergeStores(existing, incoming []Store) []Store {
	return upsert(existing, incoming, func(s Store) string { return s.StoreCode })
}

// AppendUsage concatenates incoming after existing.
func AppendUsage(existing, incoming []UsageRecord) []UsageRecord {
	out := make([]UsageRecord, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	return append(out, incoming...)
}

func upsert[T any](existing, incoming []T, key func(T) string) []T {
	combined := make([]T, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)

	last := make(map[string]int, len(combined))
	for i, row := range combined {
		last[key(row)] = i
	}

	out := make([]T, 0, len(last))
	for i, row := range combined {
		if last[key(row)] == i {
			out = append(out, row)
		}
	}
	return out
}
