// Package store provides TableStore implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (one per session)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	prices []settlement.PriceEntry
	stores []settlement.Store
	usage  []settlement.UsageRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

// UpsertPrices merges rows by item name. Last write wins.
func (m *Memory) UpsertPrices(_ context.Context, rows []settlement.PriceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = settlement.MergePrices(m.prices, rows)
	return nil
}

// UpsertStores merges rows by store code. Last write wins.
func (m *Memory) UpsertStores(_ context.Context, rows []settlement.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = settlement.MergeStores(m.stores, rows)
	return nil
}

// AppendUsage appends rows. No dedup.
func (m *Memory) AppendUsage(_ context.Context, rows []settlement.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = settlement.AppendUsage(m.usage, rows)
	return nil
}

// Reset clears all three tables under one lock.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restore(memorySnapshot{})
	return nil
}

func (m *Memory) Snapshot(_ context.Context) (settlement.Tables, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot()
	return settlement.Tables{Prices: s.prices, Stores: s.stores, Usage: s.usage}, nil
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// WithTx runs fn against the store and restores the previous tables if fn
// fails, so a multi-table load is all-or-nothing.
func (m *Memory) WithTx(ctx context.Context, fn func(settlement.TableStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		prices: append([]settlement.PriceEntry{}, m.prices...),
		stores: append([]settlement.Store{}, m.stores...),
		usage:  append([]settlement.UsageRecord{}, m.usage...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.prices = s.prices
	m.stores = s.stores
	m.usage = s.usage
}

type memorySnapshot struct {
	prices []settlement.PriceEntry
	stores []settlement.Store
	usage  []settlement.UsageRecord
}

// txMemoryView mutates the parent without locking; the parent lock is held by WithTx.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) UpsertPrices(_ context.Context, rows []settlement.PriceEntry) error {
	tv.parent.prices = settlement.MergePrices(tv.parent.prices, rows)
	return nil
}

func (tv *txMemoryView) UpsertStores(_ context.Context, rows []settlement.Store) error {
	tv.parent.stores = settlement.MergeStores(tv.parent.stores, rows)
	return nil
}

func (tv *txMemoryView) AppendUsage(_ context.Context, rows []settlement.UsageRecord) error {
	tv.parent.usage = settlement.AppendUsage(tv.parent.usage, rows)
	return nil
}

func (tv *txMemoryView) Reset(_ context.Context) error {
	tv.parent.restore(memorySnapshot{})
	return nil
}

func (tv *txMemoryView) Snapshot(_ context.Context) (settlement.Tables, error) {
	s := tv.parent.snapshot()
	return settlement.Tables{Prices: s.prices, Stores: s.stores, Usage: s.usage}, nil
}
