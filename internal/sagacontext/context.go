// Package sagacontext models the in-memory representation of one
// saga instance: identity, status, forward/compensation step arrays,
// cursors, timeout, and the processed-step audit log. It enforces the
// state-transition invariants; it is not itself durable — the
// persistence port (internal/persistence) is the durable store, and a
// SagaContext is confined to the task currently executing it.
package sagacontext

import (
	"fmt"
	"time"

	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

// MinCompensationBudget is the minimum residual time reserved for
// compensation. If a forward failure leaves less than this much time
// before the saga's deadline, evaluateFailedStep extends the timeout
// rather than let compensation race the clock.
const MinCompensationBudget = 5 * time.Minute

// SagaContext is one in-flight saga instance.
type SagaContext struct {
	OrderID    string
	OrderNo    string
	CustomerID string

	Status    sagastatus.Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Timeout   time.Duration

	ForwardSteps      []step.Step
	CompensationSteps []step.Step

	// CurrentStep is the cursor into ForwardSteps: -1 means not
	// started, 0..N-1 names the next index to execute (advance
	// before execute), N means the forward array is exhausted.
	CurrentStep             int
	CurrentCompensationStep int

	ProcessedStepIDs []string

	LastResult          stepresult.Result
	Metadata            map[string]any
	CompensationAllowed bool

	Policy step.UndoPolicy
}

// New constructs a fresh SagaContext in INIT, with forward steps
// already attached (immutable from this point on) and a not-started
// cursor. It is the factory the engine's Start uses.
func New(orderID, orderNo, customerID string, forwardSteps []step.Step, timeout time.Duration, compensationAllowed bool, metadata map[string]any, policy step.UndoPolicy) *SagaContext {
	now := time.Now()
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &SagaContext{
		OrderID:             orderID,
		OrderNo:             orderNo,
		CustomerID:          customerID,
		Status:              sagastatus.Init,
		CreatedAt:           now,
		UpdatedAt:           now,
		Timeout:             timeout,
		ForwardSteps:        forwardSteps,
		CurrentStep:         -1,
		CompensationAllowed: compensationAllowed,
		Metadata:            metadata,
		Policy:              policy,
	}
}

// IsTerminal reports whether the saga's status has no outbound edges.
// This is the strict, status-only predicate — it does not itself
// consider the deadline. Use IsExpired for that.
func (sc *SagaContext) IsTerminal() bool { return sc.Status.IsTerminal() }

// IsExpired reports whether now is past the saga's deadline. Handlers
// check this on entry and transition to TIMEOUT before doing any
// further work.
func (sc *SagaContext) IsExpired(now time.Time) bool {
	return now.After(sc.CreatedAt.Add(sc.Timeout))
}

// RemainingTime returns the time left before the saga's deadline,
// relative to now. It can be negative once expired.
func (sc *SagaContext) RemainingTime(now time.Time) time.Duration {
	return sc.CreatedAt.Add(sc.Timeout).Sub(now)
}

// ExtendTimeoutIfNeeded grows Timeout so that at least
// MinCompensationBudget remains, relative to now. Called from
// evaluateFailedStep before committing to REVERTING.
func (sc *SagaContext) ExtendTimeoutIfNeeded(now time.Time) {
	if sc.RemainingTime(now) >= MinCompensationBudget {
		return
	}
	sc.Timeout = now.Add(MinCompensationBudget).Sub(sc.CreatedAt)
}

// Transition validates next against the state-machine topology
// (transitions.go) and, if valid, applies it along with UpdatedAt.
// It refuses any transition out of a terminal status and any
// transition not present in the edge table.
func (sc *SagaContext) Transition(next sagastatus.Status) error {
	if sc.Status.IsTerminal() {
		return fmt.Errorf("sagacontext: saga %s is terminal at %s, cannot transition to %s", sc.OrderID, sc.Status, next)
	}
	if !CanTransition(sc.Status, next) {
		return fmt.Errorf("sagacontext: invalid transition %s -> %s for saga %s", sc.Status, next, sc.OrderID)
	}
	sc.Status = next
	sc.UpdatedAt = time.Now()
	return nil
}

// ForceTerminal moves a non-terminal saga straight to next, bypassing
// the per-status edge table. It is used for the TIMEOUT edge, which is
// valid from any non-terminal status, and for surfacing SYSTEM_ERROR
// from the engine and handlers.
func (sc *SagaContext) ForceTerminal(next sagastatus.Status) error {
	if sc.Status.IsTerminal() {
		return fmt.Errorf("sagacontext: saga %s is already terminal at %s", sc.OrderID, sc.Status)
	}
	sc.Status = next
	sc.UpdatedAt = time.Now()
	return nil
}

// NextForwardStep advances CurrentStep and returns the step now
// addressed by the cursor, or ok=false if the forward array is
// exhausted. The cursor advances before the step executes.
func (sc *SagaContext) NextForwardStep() (step.Step, bool) {
	if sc.CurrentStep+1 >= len(sc.ForwardSteps) {
		sc.CurrentStep = len(sc.ForwardSteps)
		return nil, false
	}
	sc.CurrentStep++
	return sc.ForwardSteps[sc.CurrentStep], true
}

// CurrentForwardStep returns the step the cursor currently addresses,
// without advancing it — used by ResumingHandler to re-inspect the
// step that was in flight when the process stopped.
func (sc *SagaContext) CurrentForwardStep() (step.Step, bool) {
	if sc.CurrentStep < 0 || sc.CurrentStep >= len(sc.ForwardSteps) {
		return nil, false
	}
	return sc.ForwardSteps[sc.CurrentStep], true
}

// IsLastForwardStep reports whether the cursor addresses the final
// forward step.
func (sc *SagaContext) IsLastForwardStep() bool {
	return sc.CurrentStep == len(sc.ForwardSteps)-1
}

// IsLastCompensationStep reports whether the compensation cursor
// addresses the final compensation step, without advancing it — used
// by ResumingHandler to decide REVERTED vs REVERTING the same way
// IsLastForwardStep lets it decide SUCCESS vs PROCESSING, leaving the
// actual advance to whichever handler runs next.
func (sc *SagaContext) IsLastCompensationStep() bool {
	return sc.CurrentCompensationStep == len(sc.CompensationSteps)-1
}

// MarkProcessed appends stepID to the audit log of attempted steps.
// A step is recorded here once its execution has been attempted,
// regardless of outcome.
func (sc *SagaContext) MarkProcessed(stepID string) {
	sc.ProcessedStepIDs = append(sc.ProcessedStepIDs, stepID)
}

// BuildCompensationSteps constructs CompensationSteps from the
// forward array, in reverse execution order, for every succeeded step
// whose action requires compensation. It is a no-op if
// CompensationSteps is already populated — the array is built once,
// at the moment of transition into REVERTING.
func (sc *SagaContext) BuildCompensationSteps(build func(forward step.Step, index int) step.Step) {
	if len(sc.CompensationSteps) > 0 {
		return
	}
	var compensations []step.Step
	for i := len(sc.ForwardSteps) - 1; i >= 0; i-- {
		fwd := sc.ForwardSteps[i]
		if !fwd.Status().NeedsCompensation() {
			continue
		}
		if sc.Policy != nil && !sc.Policy.RequiresCompensation(fwd.Action()) {
			continue
		}
		compensations = append(compensations, build(fwd, len(compensations)))
	}
	sc.CompensationSteps = compensations
	sc.CurrentCompensationStep = -1
}

// NextCompensationStep advances the compensation cursor and returns
// the step it now addresses, or ok=false once exhausted.
func (sc *SagaContext) NextCompensationStep() (step.Step, bool) {
	if sc.CurrentCompensationStep+1 >= len(sc.CompensationSteps) {
		sc.CurrentCompensationStep = len(sc.CompensationSteps)
		return nil, false
	}
	sc.CurrentCompensationStep++
	return sc.CompensationSteps[sc.CurrentCompensationStep], true
}

// CurrentCompensation returns the step the compensation cursor
// currently addresses.
func (sc *SagaContext) CurrentCompensation() (step.Step, bool) {
	if sc.CurrentCompensationStep < 0 || sc.CurrentCompensationStep >= len(sc.CompensationSteps) {
		return nil, false
	}
	return sc.CompensationSteps[sc.CurrentCompensationStep], true
}

// HasAnyNonUndoableSucceeded reports whether any forward step that
// already succeeded is a non-undoable "add" action, per the
// configured UndoPolicy. evaluateFailedStep uses this to route to
// MANUAL_REVIEW instead of REVERTING.
func (sc *SagaContext) HasAnyNonUndoableSucceeded() bool {
	if sc.Policy == nil {
		return false
	}
	for _, fwd := range sc.ForwardSteps {
		if fwd.Status().NeedsCompensation() && sc.Policy.IsNonUndoableAdd(fwd.Action()) {
			return true
		}
	}
	return false
}

// FirstStepFailed reports whether the forward array's first step is
// the one that just failed — i.e. nothing has succeeded yet to
// compensate.
func (sc *SagaContext) FirstStepFailed() bool {
	return len(sc.ForwardSteps) == 0 || sc.CurrentStep == 0
}
