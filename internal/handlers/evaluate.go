package handlers

import (
	"time"

	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
)

// evaluateFailedStep is the pure decision function called whenever a
// forward step fails, to decide what the saga does next. It is a
// function of (forwardSteps, compensationAllowed, remainingTime) — it
// reads sc but does not mutate it except for the timeout extension on
// the REVERTING branch, which is part of evaluating the failure
// itself: if residual time drops below the compensation budget on
// failure, the timeout is extended.
func evaluateFailedStep(sc *sagacontext.SagaContext, now time.Time) sagastatus.Status {
	if sc.FirstStepFailed() {
		return sagastatus.Failed
	}
	if sc.HasAnyNonUndoableSucceeded() {
		return sagastatus.ManualReview
	}
	if !sc.CompensationAllowed {
		return sagastatus.RevertFailed
	}
	// A tight deadline routes to REVERTING with the timeout extended,
	// not REVERT_FAILED: compensation must still be offered its
	// MinCompensationBudget rather than being skipped for lack of time.
	sc.ExtendTimeoutIfNeeded(now)
	return sagastatus.Reverting
}
