// Package engine is the saga orchestration entry point: Start, Resume,
// Query, Exists. It constructs a SagaContext, persists it, acquires
// the per-saga lock, and dispatches into the state-handler registry,
// returning whatever context the handler chain settles on (a terminal
// status or a suspension point).
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/katalystsys/sagaflow/internal/hooks"
	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/registry"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

// PlanBuilder builds the ordered forward-step array, timeout, and
// compensation-allowed flag for a new saga from a StartCommand. A
// deployment supplies this (internal/planconfig ships a YAML-driven
// one); the engine itself has no notion of order types or step
// catalogs.
type PlanBuilder func(cmd StartCommand, orderID string) (steps []step.Step, timeout time.Duration, compensationAllowed bool, policy step.UndoPolicy, err error)

// Engine is the saga orchestrator's entry point.
type Engine struct {
	store    persistence.Port
	reg      *registry.Registry
	logStore *logging.LogStore
	hookCh   *hooks.Chain
	plan     PlanBuilder
}

// New builds an Engine. plan may be nil only if callers never invoke
// Start (e.g. a process that only resumes/recovers existing sagas).
func New(store persistence.Port, reg *registry.Registry, logStore *logging.LogStore, hookCh *hooks.Chain, plan PlanBuilder) *Engine {
	return &Engine{store: store, reg: reg, logStore: logStore, hookCh: hookCh, plan: plan}
}

// Start runs the before-hook chain against a freshly built saga
// context, then either persists it in INIT and dispatches it (the INIT
// handler advances it to PROCESSING), or persists the hook rejection
// directly in FAILED/SYSTEM_ERROR. Hooks
// run before the first persistence write so DedupHook sees the true
// state of the store: once a row exists, Create only ever guards
// against an OrderID collision, not a duplicate order number.
func (e *Engine) Start(ctx context.Context, cmd StartCommand) (*sagacontext.SagaContext, error) {
	if e.plan == nil {
		return nil, fmt.Errorf("engine: Start called with no plan builder configured")
	}

	orderID := uuid.NewString()
	steps, timeout, compensationAllowed, policy, err := e.plan(cmd, orderID)
	if err != nil {
		return nil, fmt.Errorf("engine: building plan for order %s: %w", cmd.OrderNo, err)
	}

	sc := sagacontext.New(orderID, cmd.OrderNo, cmd.CustomerID, steps, timeout, compensationAllowed, cmd.Metadata, policy)

	verdict := e.hookCh.RunBefore(ctx, sc)
	if !verdict.IsSuccess() {
		sc.LastResult = stepresult.Failed(verdict.ErrorCode, verdict.ErrorMessage)
		next := sagastatus.Failed
		if verdict.Outcome == hooks.OutcomeSystemError {
			next = sagastatus.SystemError
		}
		if err := sc.Transition(next); err != nil {
			e.logStore.LogAndStore("error", "saga %s: invalid INIT rejection transition: %v", sc.OrderID, err)
			return sc, err
		}
		if ok, err := e.store.Create(ctx, sc); err != nil || !ok {
			e.logStore.LogAndStore("error", "saga %s: failed to persist INIT rejection (%s): %v", sc.OrderID, next, err)
		}
		e.logStore.LogAndStore("info", "saga %s rejected at INIT: %s (%s)", sc.OrderID, verdict.Outcome, verdict.ErrorCode)
		return sc, nil
	}

	ok, err := e.store.Create(ctx, sc)
	if err != nil || !ok {
		e.logStore.LogAndStore("error", "saga %s: failed to create initial row, surfacing SYSTEM_ERROR: %v", sc.OrderID, err)
		_ = sc.ForceTerminal(sagastatus.SystemError)
		return sc, nil
	}

	out, err := e.reg.Dispatch(ctx, sc)
	if err != nil {
		e.logStore.LogAndStore("error", "saga %s: dispatch failed during start: %v", sc.OrderID, err)
	}
	return out, nil
}

// Resume loads a saga by orderID, applies an optional step callback
// result, and re-enters the state machine via the RESUMING group (or
// the RECOVERY group when cmd.IsRecovery). A terminal saga is refused
// outright: resuming after a terminal status is a logged no-op.
func (e *Engine) Resume(ctx context.Context, cmd ResumeCommand) (*sagacontext.SagaContext, error) {
	locked, err := e.store.TryLock(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("engine: acquiring lock for %s: %w", cmd.OrderID, err)
	}
	if !locked {
		return nil, fmt.Errorf("engine: saga %s is already being processed", cmd.OrderID)
	}
	defer func() {
		if err := e.store.ReleaseLock(ctx, cmd.OrderID); err != nil {
			e.logStore.LogAndStore("warning", "saga %s: failed to release lock: %v", cmd.OrderID, err)
		}
	}()

	sc, err := e.store.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if sc.IsTerminal() {
		e.logStore.LogAndStore("info", "saga %s: resume refused, already terminal at %s", sc.OrderID, sc.Status)
		return sc, nil
	}

	if cmd.StepID != "" && cmd.CallbackResult != nil {
		if s, ok := findStep(sc, cmd.StepID); ok {
			s.UpdateStatus(*cmd.CallbackResult)
			if ok, err := e.store.SaveSteps(ctx, []step.Log{s.ToLog()}); err != nil || !ok {
				e.logStore.LogAndStore("warning", "saga %s: failed to persist callback result for step %s: %v", sc.OrderID, cmd.StepID, err)
			}
		} else {
			e.logStore.LogAndStore("warning", "saga %s: callback referenced unknown step %s", sc.OrderID, cmd.StepID)
		}
	}

	next := sagastatus.ResumeOf(sc.Status)
	if cmd.IsRecovery {
		next = sagastatus.RecoveryOf(sc.Status)
	}

	prev := sc.UpdatedAt
	if err := sc.Transition(next); err != nil {
		return sc, err
	}
	if ok, err := e.store.UpdateStatus(ctx, sc, prev); err != nil || !ok {
		e.logStore.LogAndStore("warning", "saga %s: failed to persist resume transition to %s", sc.OrderID, next)
	}

	return e.reg.Dispatch(ctx, sc)
}

// Query loads a saga by orderID without mutating it.
func (e *Engine) Query(ctx context.Context, orderID string) (*sagacontext.SagaContext, error) {
	return e.store.FindByID(ctx, orderID)
}

// Exists reports whether a saga already exists for orderNo.
func (e *Engine) Exists(ctx context.Context, orderNo string) (bool, error) {
	return e.store.ExistsByOrderNo(ctx, orderNo)
}

func findStep(sc *sagacontext.SagaContext, stepID string) (step.Step, bool) {
	for _, s := range sc.ForwardSteps {
		if s.StepID() == stepID {
			return s, true
		}
	}
	for _, s := range sc.CompensationSteps {
		if s.StepID() == stepID {
			return s, true
		}
	}
	return nil, false
}
