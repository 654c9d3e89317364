// Package persistence defines the storage port the saga engine is
// built against and the guarantees any implementation must provide:
// atomic single-row updates, linearizable per-key reads,
// append-only step logs, and a total order of UpdatedAt per row. The
// engine core never imports a concrete backend — only this interface.
// See memstore (in-memory, used by tests and as the default demo
// backend) and sqlstore (SQLite/PostgreSQL via database/sql) for
// implementations.
package persistence

import (
	"context"
	"time"

	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
)

// Port is the persistence boundary the engine and recovery sweep are
// built against.
type Port interface {
	// Create persists a brand new saga row. It fails (ok=false) if
	// OrderID already exists.
	Create(ctx context.Context, sc *sagacontext.SagaContext) (bool, error)

	// UpdateStatus persists sc with an optimistic-lock check: the
	// write only succeeds if the row's stored UpdatedAt still equals
	// prevUpdatedAt, the value observed by the caller before it
	// mutated sc in memory. ok=false on a lost race.
	UpdateStatus(ctx context.Context, sc *sagacontext.SagaContext, prevUpdatedAt time.Time) (bool, error)

	FindByID(ctx context.Context, orderID string) (*sagacontext.SagaContext, error)
	FindByOrderNo(ctx context.Context, orderNo string) (*sagacontext.SagaContext, error)
	ExistsByOrderNo(ctx context.Context, orderNo string) (bool, error)

	SaveSteps(ctx context.Context, logs []step.Log) (bool, error)
	LoadSteps(ctx context.Context, orderID string) ([]step.Log, error)

	// FindStuckSagas returns up to limit sagas whose status is in
	// statuses and whose UpdatedAt is older than olderThan, for the
	// recovery sweep.
	FindStuckSagas(ctx context.Context, statuses []sagastatus.Status, olderThan time.Time, limit int) ([]*sagacontext.SagaContext, error)

	// TryLock acquires the per-saga mutual-exclusion lock, yielding
	// immediately (ok=false) rather than blocking if already held.
	TryLock(ctx context.Context, orderID string) (bool, error)
	ReleaseLock(ctx context.Context, orderID string) error
}

// ErrNotFound is returned by FindByID/FindByOrderNo when no row
// matches.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "persistence: saga not found" }
