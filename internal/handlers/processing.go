package handlers

import (
	"context"
	"time"

	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/registry"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

// ProcessingHandler owns PROCESSING: it advances to the next forward
// step, executes it, and maps the outcome to a transition.
type ProcessingHandler struct {
	store    persistence.Port
	logStore *logging.LogStore
}

func NewProcessingHandler(store persistence.Port, logStore *logging.LogStore) *ProcessingHandler {
	return &ProcessingHandler{store: store, logStore: logStore}
}

func (h *ProcessingHandler) Statuses() []sagastatus.Status {
	return []sagastatus.Status{sagastatus.Processing}
}

func (h *ProcessingHandler) Handle(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry) (*sagacontext.SagaContext, error) {
	if checkExpiry(ctx, h.store, h.logStore, sc) {
		return sc, nil
	}

	s, ok := sc.NextForwardStep()
	if !ok {
		h.logStore.LogAndStore("error", "saga %s: PROCESSING entered with no next forward step", sc.OrderID)
		return h.systemError(ctx, sc)
	}

	result := s.Execute(ctx)
	h.persistStepLog(ctx, s)

	switch result.Status {
	case sagastatus.StepSucceeded:
		sc.MarkProcessed(s.StepID())
		sc.LastResult = result
		if sc.IsLastForwardStep() {
			return h.handleSuccess(ctx, sc, reg)
		}
		return h.Handle(ctx, sc, reg)

	case sagastatus.StepCompleted:
		// Idempotent re-entry: the backing service already considers
		// this step done. Do not advance further this attempt.
		sc.MarkProcessed(s.StepID())
		sc.LastResult = result
		return sc, nil

	case sagastatus.StepPending, sagastatus.StepUnknown:
		sc.MarkProcessed(s.StepID())
		sc.LastResult = result
		if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.Pending); err != nil {
			h.logStore.LogAndStore("error", "saga %s: failed to record PENDING: %v", sc.OrderID, err)
		}
		return sc, nil

	case sagastatus.StepTimeout:
		sc.MarkProcessed(s.StepID())
		return h.handleFailure(ctx, sc, reg, result)

	case sagastatus.StepExecuting, sagastatus.StepProcessing, sagastatus.StepSkipped:
		// Unexpected from a call that was supposed to be complete by
		// the time Execute returns; park and let a later callback or
		// recovery resolve it.
		sc.MarkProcessed(s.StepID())
		sc.LastResult = result
		if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.Pending); err != nil {
			h.logStore.LogAndStore("error", "saga %s: failed to record PENDING for unexpected step status %s: %v", sc.OrderID, result.Status, err)
		}
		return sc, nil

	case sagastatus.StepFailed, sagastatus.StepRejected:
		sc.MarkProcessed(s.StepID())
		return h.handleFailure(ctx, sc, reg, result)

	default:
		// Compensation-only values (COMPENSATING, COMPENSATED, ...)
		// returned during forward flow are an invariant violation.
		h.logStore.LogAndStore("error", "saga %s: step %s returned compensation-only status %s during forward flow", sc.OrderID, s.StepID(), result.Status)
		return h.systemError(ctx, sc)
	}
}

func (h *ProcessingHandler) handleSuccess(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry) (*sagacontext.SagaContext, error) {
	if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.Success); err != nil {
		h.logStore.LogAndStore("error", "saga %s: failed to persist SUCCESS: %v", sc.OrderID, err)
		return sc, err
	}
	return reg.Dispatch(ctx, sc)
}

func (h *ProcessingHandler) handleFailure(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry, result stepresult.Result) (*sagacontext.SagaContext, error) {
	sc.LastResult = result
	next := evaluateFailedStep(sc, time.Now())
	if err := persistTransition(ctx, h.store, h.logStore, sc, next); err != nil {
		h.logStore.LogAndStore("error", "saga %s: failed to persist failure transition to %s: %v", sc.OrderID, next, err)
		return sc, err
	}
	return reg.Dispatch(ctx, sc)
}

func (h *ProcessingHandler) systemError(ctx context.Context, sc *sagacontext.SagaContext) (*sagacontext.SagaContext, error) {
	prev := sc.UpdatedAt
	_ = sc.ForceTerminal(sagastatus.SystemError)
	if ok, err := h.store.UpdateStatus(ctx, sc, prev); err != nil || !ok {
		h.logStore.LogAndStore("error", "saga %s: failed to persist SYSTEM_ERROR", sc.OrderID)
	}
	return sc, nil
}

func (h *ProcessingHandler) persistStepLog(ctx context.Context, s step.Step) {
	if ok, err := h.store.SaveSteps(ctx, []step.Log{s.ToLog()}); err != nil || !ok {
		h.logStore.LogAndStore("warning", "saga %s: failed to persist step log for %s: %v", s.OrderID(), s.StepID(), err)
	}
}
