package handlers

import (
	"context"

	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/registry"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
)

// CompensationBuilder constructs the compensation step paired with a
// succeeded forward step. Supplied by the deployment wiring the engine
// together, since only it knows how to build a RELEASE_INVENTORY step
// from a RESERVE_INVENTORY step and so on.
type CompensationBuilder func(forward step.Step, index int) step.Step

// RevertingHandler owns REVERTING: it builds the compensation array on
// first entry, then walks it one step at a time, executing and mapping
// outcomes, until it either exhausts the array (REVERTED) or hits a
// compensation it cannot complete (REVERT_FAILED).
type RevertingHandler struct {
	store    persistence.Port
	logStore *logging.LogStore
	build    CompensationBuilder
}

func NewRevertingHandler(store persistence.Port, logStore *logging.LogStore, build CompensationBuilder) *RevertingHandler {
	return &RevertingHandler{store: store, logStore: logStore, build: build}
}

func (h *RevertingHandler) Statuses() []sagastatus.Status {
	return []sagastatus.Status{sagastatus.Reverting}
}

func (h *RevertingHandler) Handle(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry) (*sagacontext.SagaContext, error) {
	if checkExpiry(ctx, h.store, h.logStore, sc) {
		return sc, nil
	}

	sc.BuildCompensationSteps(h.build)

	cs, ok := sc.NextCompensationStep()
	if !ok {
		return h.handleReverted(ctx, sc, reg)
	}

	result := cs.Execute(ctx)
	if ok, err := h.store.SaveSteps(ctx, []step.Log{cs.ToLog()}); err != nil || !ok {
		h.logStore.LogAndStore("warning", "saga %s: failed to persist compensation step log for %s: %v", sc.OrderID, cs.StepID(), err)
	}
	sc.LastResult = result

	switch result.Status {
	case sagastatus.StepSucceeded, sagastatus.StepCompleted:
		return h.Handle(ctx, sc, reg)

	case sagastatus.StepPending, sagastatus.StepUnknown:
		if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.RevertingPending); err != nil {
			h.logStore.LogAndStore("error", "saga %s: failed to record REVERTING_PENDING: %v", sc.OrderID, err)
		}
		return sc, nil

	case sagastatus.StepFailed, sagastatus.StepRejected:
		if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.RevertFailed); err != nil {
			h.logStore.LogAndStore("error", "saga %s: failed to record REVERT_FAILED: %v", sc.OrderID, err)
			return sc, err
		}
		h.logStore.LogAndStore("error", "saga %s: compensation step %s failed, manual intervention required", sc.OrderID, cs.StepID())
		return reg.Dispatch(ctx, sc)

	default:
		h.logStore.LogAndStore("error", "saga %s: compensation step %s returned unexpected status %s", sc.OrderID, cs.StepID(), result.Status)
		if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.RevertingPending); err != nil {
			h.logStore.LogAndStore("error", "saga %s: failed to park after unexpected compensation status: %v", sc.OrderID, err)
		}
		return sc, nil
	}
}

func (h *RevertingHandler) handleReverted(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry) (*sagacontext.SagaContext, error) {
	if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.Reverted); err != nil {
		h.logStore.LogAndStore("error", "saga %s: failed to persist REVERTED: %v", sc.OrderID, err)
		return sc, err
	}
	return reg.Dispatch(ctx, sc)
}
