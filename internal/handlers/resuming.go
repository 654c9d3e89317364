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
)

// ResumingHandler owns RESUMING, RESUMING_REVERTING, and their
// recovery-flavored counterparts RECOVERY_PROCESSING/
// RECOVERY_REVERTING. All four run the identical in-flight-step
// inspection algorithm; the only difference between a plain resume and
// a recovery resume is which of ResumeOf/RecoveryOf the engine used to
// arrive here, which does not change how the current step is queried.
type ResumingHandler struct {
	store    persistence.Port
	logStore *logging.LogStore
}

func NewResumingHandler(store persistence.Port, logStore *logging.LogStore) *ResumingHandler {
	return &ResumingHandler{store: store, logStore: logStore}
}

func (h *ResumingHandler) Statuses() []sagastatus.Status {
	return []sagastatus.Status{
		sagastatus.Resuming,
		sagastatus.ResumingReverting,
		sagastatus.RecoveryProcessing,
		sagastatus.RecoveryReverting,
	}
}

func (h *ResumingHandler) Handle(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry) (*sagacontext.SagaContext, error) {
	if checkExpiry(ctx, h.store, h.logStore, sc) {
		return sc, nil
	}

	reverting := sc.Status.IsReverting()

	var current step.Step
	var ok bool
	if reverting {
		current, ok = sc.CurrentCompensation()
	} else {
		current, ok = sc.CurrentForwardStep()
	}

	if !ok {
		if !reverting && sc.IsLastForwardStep() {
			return h.toTerminal(ctx, sc, reg, sagastatus.Success)
		}
		if reverting {
			return h.toTerminal(ctx, sc, reg, sagastatus.Reverted)
		}
		h.logStore.LogAndStore("warning", "saga %s: resumed with no in-flight step to inspect, routing to MANUAL_REVIEW", sc.OrderID)
		return h.toTerminal(ctx, sc, reg, sagastatus.ManualReview)
	}

	result := current.Query(ctx)
	current.UpdateStatus(result)
	sc.LastResult = result
	if ok, err := h.store.SaveSteps(ctx, []step.Log{current.ToLog()}); err != nil || !ok {
		h.logStore.LogAndStore("warning", "saga %s: failed to persist resumed step log for %s: %v", sc.OrderID, current.StepID(), err)
	}

	switch result.Status {
	case sagastatus.StepSucceeded, sagastatus.StepCompleted:
		return h.handleStepSucceeded(ctx, sc, reg, reverting)

	case sagastatus.StepFailed, sagastatus.StepRejected:
		return h.handleStepFailed(ctx, sc, reg, reverting)

	case sagastatus.StepPending:
		next := sagastatus.Pending
		if reverting {
			next = sagastatus.RevertingPending
		}
		if err := persistTransition(ctx, h.store, h.logStore, sc, next); err != nil {
			h.logStore.LogAndStore("error", "saga %s: failed to park resumed saga at %s: %v", sc.OrderID, next, err)
		}
		return sc, nil

	case sagastatus.StepUnknown:
		return h.reexecute(ctx, sc, reg, current, reverting)

	default:
		h.logStore.LogAndStore("error", "saga %s: resumed step %s returned unexpected status %s", sc.OrderID, current.StepID(), result.Status)
		if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.SystemError); err != nil {
			_ = sc.ForceTerminal(sagastatus.SystemError)
		}
		return sc, nil
	}
}

func (h *ResumingHandler) handleStepSucceeded(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry, reverting bool) (*sagacontext.SagaContext, error) {
	if reverting {
		if sc.IsLastCompensationStep() {
			return h.toTerminal(ctx, sc, reg, sagastatus.Reverted)
		}
		if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.Reverting); err != nil {
			h.logStore.LogAndStore("error", "saga %s: failed to resume into REVERTING: %v", sc.OrderID, err)
			return sc, err
		}
		return reg.Dispatch(ctx, sc)
	}

	sc.MarkProcessed(sc.ForwardSteps[sc.CurrentStep].StepID())
	if sc.IsLastForwardStep() {
		return h.toTerminal(ctx, sc, reg, sagastatus.Success)
	}
	if err := persistTransition(ctx, h.store, h.logStore, sc, sagastatus.Processing); err != nil {
		h.logStore.LogAndStore("error", "saga %s: failed to resume into PROCESSING: %v", sc.OrderID, err)
		return sc, err
	}
	return reg.Dispatch(ctx, sc)
}

func (h *ResumingHandler) handleStepFailed(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry, reverting bool) (*sagacontext.SagaContext, error) {
	if reverting {
		return h.toTerminal(ctx, sc, reg, sagastatus.RevertFailed)
	}
	next := evaluateFailedStep(sc, time.Now())
	if err := persistTransition(ctx, h.store, h.logStore, sc, next); err != nil {
		h.logStore.LogAndStore("error", "saga %s: failed to persist resumed failure transition to %s: %v", sc.OrderID, next, err)
		return sc, err
	}
	return reg.Dispatch(ctx, sc)
}

func (h *ResumingHandler) reexecute(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry, s step.Step, reverting bool) (*sagacontext.SagaContext, error) {
	result := s.Execute(ctx)
	sc.LastResult = result
	if ok, err := h.store.SaveSteps(ctx, []step.Log{s.ToLog()}); err != nil || !ok {
		h.logStore.LogAndStore("warning", "saga %s: failed to persist re-executed step log for %s: %v", sc.OrderID, s.StepID(), err)
	}

	switch result.Status {
	case sagastatus.StepSucceeded, sagastatus.StepCompleted:
		return h.handleStepSucceeded(ctx, sc, reg, reverting)
	case sagastatus.StepFailed, sagastatus.StepRejected:
		return h.handleStepFailed(ctx, sc, reg, reverting)
	default:
		next := sagastatus.Pending
		if reverting {
			next = sagastatus.RevertingPending
		}
		if err := persistTransition(ctx, h.store, h.logStore, sc, next); err != nil {
			h.logStore.LogAndStore("error", "saga %s: failed to park after re-execute: %v", sc.OrderID, err)
		}
		return sc, nil
	}
}

func (h *ResumingHandler) toTerminal(ctx context.Context, sc *sagacontext.SagaContext, reg *registry.Registry, status sagastatus.Status) (*sagacontext.SagaContext, error) {
	if err := persistTransition(ctx, h.store, h.logStore, sc, status); err != nil {
		h.logStore.LogAndStore("error", "saga %s: failed to persist resumed terminal status %s: %v", sc.OrderID, status, err)
		return sc, err
	}
	return reg.Dispatch(ctx, sc)
}
