// Package recovery runs the periodic stuck-saga sweep: a ticker-driven
// background job external to the engine's core, per the concurrency
// model's requirement that crash recovery rely on persisted state plus
// idempotent step queries rather than distributed consensus.
package recovery

import (
	"context"
	"time"

	"github.com/katalystsys/sagaflow/internal/engine"
	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
)

// Sweeper periodically finds non-terminal sagas that have not been
// touched in a while and resubmits them via Engine.Resume with
// IsRecovery=true.
type Sweeper struct {
	store     persistence.Port
	eng       *engine.Engine
	logStore  *logging.LogStore
	interval  time.Duration
	staleness time.Duration
	batchSize int
}

// Config controls the sweep cadence.
type Config struct {
	Interval  time.Duration
	Staleness time.Duration
	BatchSize int
}

// DefaultConfig sweeps every 30s for sagas untouched for 2 minutes, up
// to 50 per pass.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, Staleness: 2 * time.Minute, BatchSize: 50}
}

func NewSweeper(store persistence.Port, eng *engine.Engine, logStore *logging.LogStore, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultConfig().Staleness
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Sweeper{store: store, eng: eng, logStore: logStore, interval: cfg.Interval, staleness: cfg.Staleness, batchSize: cfg.BatchSize}
}

var nonTerminalStatuses = []sagastatus.Status{
	sagastatus.Init,
	sagastatus.Processing,
	sagastatus.Pending,
	sagastatus.Resuming,
	sagastatus.RecoveryProcessing,
	sagastatus.Reverting,
	sagastatus.RevertingPending,
	sagastatus.ResumingReverting,
	sagastatus.RecoveryReverting,
}

// Run blocks, ticking every s.interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	stuck, err := s.store.FindStuckSagas(ctx, nonTerminalStatuses, time.Now().Add(-s.staleness), s.batchSize)
	if err != nil {
		s.logStore.LogAndStore("error", "recovery sweep: FindStuckSagas failed: %v", err)
		return
	}
	if len(stuck) == 0 {
		return
	}
	s.logStore.LogAndStore("info", "recovery sweep: resubmitting %d stuck saga(s)", len(stuck))
	for _, sc := range stuck {
		if _, err := s.eng.Resume(ctx, engine.ResumeCommand{OrderID: sc.OrderID, IsRecovery: true, Source: "recovery-sweep"}); err != nil {
			s.logStore.LogAndStore("warning", "recovery sweep: resuming saga %s failed: %v", sc.OrderID, err)
		}
	}
}
