package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/partner-settlement/settlement"
	"github.com/warp/partner-settlement/settlement/store"
	"github.com/warp/partner-settlement/store/sqlite"
)

// =============================================================================
// REGISTRY - Session lifecycle
// =============================================================================

// Backend creates and drops the table partition of a session.
type Backend interface {
	Open(id string) (settlement.TxTableStore, error)
	Drop(ctx context.Context, id string) error
}

// MemoryBackend gives every session its own in-process tables.
type MemoryBackend struct{}

func (MemoryBackend) Open(string) (settlement.TxTableStore, error) { return store.NewMemory(), nil }
func (MemoryBackend) Drop(context.Context, string) error          { return nil }

// SQLiteBackend partitions one database by session id.
type SQLiteBackend struct {
	DB *sqlite.Store
}

func (b SQLiteBackend) Open(id string) (settlement.TxTableStore, error) { return b.DB.Session(id), nil }
func (b SQLiteBackend) Drop(ctx context.Context, id string) error {
	return b.DB.DropSession(ctx, id)
}

// Registry maps session ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	backend  Backend
	logger   *zap.Logger
}

// NewRegistry returns an empty registry over backend.
func NewRegistry(backend Backend, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		backend:  backend,
		logger:   logger,
	}
}

// Create opens a session with the given id. Creating an existing id
// returns the existing session.
func (r *Registry) Create(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	tables, err := r.backend.Open(id)
	if err != nil {
		return nil, fmt.Errorf("failed to open session tables: %w", err)
	}
	s := New(id, tables, r.logger)
	r.sessions[id] = s
	r.logger.Info("session opened", zap.String("session_id", id))
	return s, nil
}

// Get returns the session or settlement.ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, settlement.ErrSessionNotFound
	}
	s.Touch()
	return s, nil
}

// Drop removes a session and its tables.
func (r *Registry) Drop(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return settlement.ErrSessionNotFound
	}
	if err := r.backend.Drop(ctx, id); err != nil {
		return fmt.Errorf("failed to drop session tables: %w", err)
	}
	r.logger.Info("session closed", zap.String("session_id", id))
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Expire drops every session idle since before cutoff and returns how many.
func (r *Registry) Expire(ctx context.Context, cutoff time.Time) int {
	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	dropped := 0
	for _, id := range stale {
		if err := r.Drop(ctx, id); err != nil {
			r.logger.Warn("failed to expire session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		dropped++
	}
	return dropped
}
