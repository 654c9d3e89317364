package handlers

import (
	"context"

	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/registry"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
)

// InitHandler owns INIT: the before-hook chain has already run (in
// engine.Engine.Start, before this saga was ever persisted), so all
// that remains is advancing to PROCESSING and delegating.
type InitHandler struct {
	store    persistence.Port
	logStore *logging.LogStore
}

// NewInitHandler builds the INIT handler.
func NewInitHandler(store persistence.Port, logStore *logging.LogStore) *InitHandler {
	return &InitHandler{store: store, logStore: logStore}
}

func (h *InitHandler) Statuses() []sagastatus.Status { return []sagastatus.Status{sagastatus.Init} }

func (h *InitHandler) Handle(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry) (*sagacontext.SagaContext, error) {
	if checkExpiry(ctx, h.store, h.logStore, sc) {
		return sc, nil
	}

	prev := sc.UpdatedAt
	if err := sc.Transition(sagastatus.Processing); err != nil {
		return sc, err
	}
	ok, err := h.store.UpdateStatus(ctx, sc, prev)
	if err != nil || !ok {
		// No step has executed yet, so there is nothing to
		// compensate: a persistence fault here is non-fatal to data
		// integrity but the saga cannot safely proceed in this
		// process, so it surfaces SYSTEM_ERROR rather than silently
		// continuing.
		h.logStore.LogAndStore("error", "saga %s: persistence rejected INIT->PROCESSING write, surfacing SYSTEM_ERROR", sc.OrderID)
		_ = sc.ForceTerminal(sagastatus.SystemError)
		return sc, nil
	}

	return reg.Dispatch(ctx, sc)
}
