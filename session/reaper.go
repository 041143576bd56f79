package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// REAPER - Expires idle sessions
// =============================================================================

// Reaper periodically drops sessions idle for longer than IdleTimeout.
// A session is unreachable once its token expires, so IdleTimeout is
// normally the token TTL.
type Reaper struct {
	Registry      *Registry
	IdleTimeout   time.Duration
	CheckInterval time.Duration

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReaper creates a reaper checking every 10 minutes.
func NewReaper(registry *Registry, idleTimeout time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		Registry:      registry,
		IdleTimeout:   idleTimeout,
		CheckInterval: 10 * time.Minute,
		logger:        logger,
	}
}

// Start begins the background loop. A non-positive IdleTimeout disables it.
func (rp *Reaper) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.IdleTimeout <= 0 {
		rp.logger.Info("session reaper disabled")
		return
	}
	if rp.ticker != nil {
		return
	}

	rp.ticker = time.NewTicker(rp.CheckInterval)
	rp.stop = make(chan struct{})
	rp.wg.Add(1)
	go rp.run()

	rp.logger.Info("session reaper started",
		zap.Duration("idle_timeout", rp.IdleTimeout),
		zap.Duration("check_interval", rp.CheckInterval),
	)
}

// Stop ends the loop and waits for it to exit.
func (rp *Reaper) Stop() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.ticker == nil {
		return
	}
	rp.ticker.Stop()
	close(rp.stop)
	rp.wg.Wait()
	rp.ticker = nil
	rp.logger.Info("session reaper stopped")
}

// RunNow expires idle sessions immediately and returns how many were dropped.
func (rp *Reaper) RunNow() int {
	n := rp.Registry.Expire(context.Background(), time.Now().Add(-rp.IdleTimeout))
	if n > 0 {
		rp.logger.Info("expired idle sessions", zap.Int("count", n), zap.Int("open", rp.Registry.Len()))
	}
	return n
}

func (rp *Reaper) run() {
	defer rp.wg.Done()
	for {
		select {
		case <-rp.ticker.C:
			rp.RunNow()
		case <-rp.stop:
			return
		}
	}
}
