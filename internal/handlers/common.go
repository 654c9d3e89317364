// Package handlers implements the five state-handler groups: Init,
// Processing, Reverting, Resuming, Terminal. Each type self-declares
// the statuses it owns (registry.Handler) and delegates onward
// strictly through the registry it is handed in Handle, never by
// referencing another handler directly.
package handlers

import (
	"context"
	"time"

	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagaerr"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
)

// persistTransition moves sc to next and persists the change. It
// returns an error if the transition is invalid or the store reports
// an error; a lost optimistic-lock race (ok=false) is logged and
// swallowed here, leaving sc at next in memory. Callers decide whether
// a returned error is fatal for their particular edge (Init surfaces
// SYSTEM_ERROR on a persistence fault; every other handler logs and
// lets the recovery sweep reconcile).
func persistTransition(ctx context.Context, store persistence.Port, logStore *logging.LogStore, sc *sagacontext.SagaContext, next sagastatus.Status) error {
	prev := sc.UpdatedAt
	if err := sc.Transition(next); err != nil {
		return err
	}
	ok, err := store.UpdateStatus(ctx, sc, prev)
	if err != nil {
		logStore.LogAndStore("error", "saga %s: persistence error writing status %s: %v", sc.OrderID, next, err)
		return err
	}
	if !ok {
		logStore.LogAndStore("warning", "saga %s: optimistic lock lost writing status %s, recovery will reconcile", sc.OrderID, next)
	}
	return nil
}

// checkExpiry implements "<any non-terminal> -> TIMEOUT, evaluated on
// entry". Every handler calls this first.
func checkExpiry(ctx context.Context, store persistence.Port, logStore *logging.LogStore, sc *sagacontext.SagaContext) (timedOut bool) {
	if sc.IsTerminal() {
		return false
	}
	if !sc.IsExpired(time.Now()) {
		return false
	}
	prev := sc.UpdatedAt
	if err := sc.ForceTerminal(sagastatus.Timeout); err != nil {
		return false
	}
	if ok, err := store.UpdateStatus(ctx, sc, prev); err != nil || !ok {
		logStore.LogAndStore("warning", "saga %s: failed to persist TIMEOUT cleanly", sc.OrderID)
	}
	logStore.LogAndStore("info", "saga %s: %s, transitioned to TIMEOUT", sc.OrderID, sagaerr.ErrSagaTimeout.Message)
	return true
}
