/*
Package session owns the per-operator workspace.

PURPOSE:
  A Session is the explicit state container for one logged-in operator:
  its three tables live in a TableStore that no other session can see.
  Ingest, computation and reset all go through it.

INGEST CONTRACT:
  A file is fully parsed and validated before anything is written. An
  EncodingError or SchemaError therefore leaves the tables untouched.
  Load(Bundle) goes further and writes every table in one transaction.

COMPUTATION:
  Results are recomputed from a snapshot on every call and never stored.

SEE ALSO:
  - registry.go: Session lookup and lifecycle
  - reaper.go: Idle session expiry
*/
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/partner-settlement/ingest"
	"github.com/warp/partner-settlement/settlement"
)

// Session is one operator workspace.
type Session struct {
	ID        string
	CreatedAt time.Time

	tables   settlement.TxTableStore
	logger   *zap.Logger
	lastUsed atomic.Int64 // unix nanos
}

// New wraps tables as session id.
func New(id string, tables settlement.TxTableStore, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		tables:    tables,
		logger:    logger.With(zap.String("session_id", id)),
	}
	s.lastUsed.Store(now.UnixNano())
	return s
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed returns the time of the last Touch.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// =============================================================================
// INGEST
// =============================================================================

// Ingest reads src as the given table kind and merges it.
func (s *Session) Ingest(ctx context.Context, kind settlement.TableKind, src ingest.Source) (ingest.Report, error) {
	switch kind {
	case settlement.TablePrices:
		return s.IngestPrices(ctx, src)
	case settlement.TableStores:
		return s.IngestStores(ctx, src)
	case settlement.TableUsage:
		return s.IngestUsage(ctx, src)
	default:
		return ingest.Report{}, fmt.Errorf("table %q: %w", kind, settlement.ErrUnsupportedFormat)
	}
}

// IngestPrices upserts a price list by item name.
func (s *Session) IngestPrices(ctx context.Context, src ingest.Source) (ingest.Report, error) {
	rows, report, err := ingest.Prices(src)
	if err != nil {
		return ingest.Report{}, err
	}
	if err := s.tables.UpsertPrices(ctx, rows); err != nil {
		return ingest.Report{}, fmt.Errorf("failed to store prices: %w", err)
	}
	s.logIngest(report)
	return report, nil
}

// IngestStores upserts a store directory by store code.
func (s *Session) IngestStores(ctx context.Context, src ingest.Source) (ingest.Report, error) {
	rows, report, err := ingest.Stores(src)
	if err != nil {
		return ingest.Report{}, err
	}
	if err := s.tables.UpsertStores(ctx, rows); err != nil {
		return ingest.Report{}, fmt.Errorf("failed to store stores: %w", err)
	}
	s.logIngest(report)
	return report, nil
}

// IngestUsage appends a usage log as a new batch. Re-uploading the same
// file appends it again.
func (s *Session) IngestUsage(ctx context.Context, src ingest.Source) (ingest.Report, error) {
	rows, report, err := ingest.Usage(src, uuid.NewString())
	if err != nil {
		return ingest.Report{}, err
	}
	if err := s.tables.AppendUsage(ctx, rows); err != nil {
		return ingest.Report{}, fmt.Errorf("failed to store usage: %w", err)
	}
	s.logIngest(report)
	return report, nil
}

func (s *Session) logIngest(r ingest.Report) {
	s.Touch()
	s.logger.Info("table ingested",
		zap.String("table", string(r.Table)),
		zap.String("source", r.Source),
		zap.String("format", r.Format),
		zap.String("encoding", r.Encoding),
		zap.Int("accepted", r.Accepted),
		zap.Int("dropped", r.Dropped),
	)
}

// Bundle is a complete set of source files.
type Bundle struct {
	Prices ingest.Source
	Stores ingest.Source
	Usage  []ingest.Source
}

// Load replaces the session tables with bundle. Every file is parsed first;
// the reset and all writes then happen in one transaction.
func (s *Session) Load(ctx context.Context, b Bundle) ([]ingest.Report, error) {
	prices, pr, err := ingest.Prices(b.Prices)
	if err != nil {
		return nil, err
	}
	stores, sr, err := ingest.Stores(b.Stores)
	if err != nil {
		return nil, err
	}
	reports := []ingest.Report{pr, sr}
	var usage []settlement.UsageRecord
	for _, src := range b.Usage {
		rows, ur, err := ingest.Usage(src, uuid.NewString())
		if err != nil {
			return nil, err
		}
		usage = append(usage, rows...)
		reports = append(reports, ur)
	}

	err = s.tables.WithTx(ctx, func(tx settlement.TableStore) error {
		if err := tx.Reset(ctx); err != nil {
			return err
		}
		if err := tx.UpsertPrices(ctx, prices); err != nil {
			return err
		}
		if err := tx.UpsertStores(ctx, stores); err != nil {
			return err
		}
		return tx.AppendUsage(ctx, usage)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	for _, r := range reports {
		s.logIngest(r)
	}
	return reports, nil
}

// =============================================================================
// TABLES AND SETTLEMENT
// =============================================================================

// Tables returns a copy of the current tables.
func (s *Session) Tables(ctx context.Context) (settlement.Tables, error) {
	s.Touch()
	return s.tables.Snapshot(ctx)
}

// Reset clears all three tables.
func (s *Session) Reset(ctx context.Context) error {
	s.Touch()
	if err := s.tables.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset tables: %w", err)
	}
	s.logger.Info("tables reset")
	return nil
}

// Compute settles the current tables.
func (s *Session) Compute(ctx context.Context) (settlement.Result, error) {
	t, err := s.Tables(ctx)
	if err != nil {
		return settlement.Result{}, err
	}
	r := settlement.Compute(t)
	s.logger.Debug("settlement computed",
		zap.Int("stores", len(r.Stores)),
		zap.String("grand_total", r.GrandTotal.String()),
		zap.Int("anomalies", len(r.Anomalies)),
	)
	return r, nil
}

// Settle computes and applies f.
func (s *Session) Settle(ctx context.Context, f settlement.Filter) (settlement.Result, error) {
	r, err := s.Compute(ctx)
	if err != nil {
		return settlement.Result{}, err
	}
	if f.IsZero() {
		return r, nil
	}
	return f.Apply(r), nil
}
