// Package stepresult defines the tagged outcome of a single step
// attempt, as returned by Step.Execute and Step.Query.
package stepresult

import "github.com/katalystsys/sagaflow/internal/sagastatus"

// Result is the immutable outcome of one step attempt.
type Result struct {
	Status        sagastatus.StepStatus
	ErrorCode     string
	ErrorMessage  string
	ExternalRefID string
	Metadata      map[string]any
}

// Succeeded builds a successful Result carrying an optional external
// reference (e.g. a payment gateway transaction id).
func Succeeded(externalRefID string, metadata map[string]any) Result {
	return Result{
		Status:        sagastatus.StepSucceeded,
		ExternalRefID: externalRefID,
		Metadata:      metadata,
	}
}

// Completed builds a Result for a step the backing service reports as
// already done — the idempotent re-entry case.
func Completed(externalRefID string) Result {
	return Result{Status: sagastatus.StepCompleted, ExternalRefID: externalRefID}
}

// Pending builds a Result for a step whose outcome will arrive later
// via an asynchronous callback.
func Pending(externalRefID string) Result {
	return Result{Status: sagastatus.StepPending, ExternalRefID: externalRefID}
}

// Unknown builds a Result for a step whose outcome could not be
// determined synchronously (e.g. the call timed out at the transport
// layer with no indication whether the backing service applied the
// effect).
func Unknown(errorMessage string) Result {
	return Result{Status: sagastatus.StepUnknown, ErrorMessage: errorMessage}
}

// Failed builds a Result for a step that failed outright. errorCode
// should be non-empty; an empty code is replaced with INTERNAL_ERROR.
func Failed(errorCode, errorMessage string) Result {
	if errorCode == "" {
		errorCode = "INTERNAL_ERROR"
	}
	return Result{Status: sagastatus.StepFailed, ErrorCode: errorCode, ErrorMessage: errorMessage}
}

// Rejected builds a Result for a step the backing service refused
// outright (business rule, not a transient failure).
func Rejected(errorCode, errorMessage string) Result {
	return Result{Status: sagastatus.StepRejected, ErrorCode: errorCode, ErrorMessage: errorMessage}
}

// FromException translates a panic/recover at the step boundary into
// a Result instead of letting it cross into the handler. Steps must
// not throw; this is the last line of defense.
func FromException(recovered any) Result {
	return Failed("INTERNAL_ERROR", toMessage(recovered))
}

func toMessage(recovered any) string {
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	if s, ok := recovered.(string); ok {
		return s
	}
	return "unrecognized panic value"
}

// IsSuccess reports whether this attempt succeeded (including the
// idempotent COMPLETED case).
func (r Result) IsSuccess() bool { return r.Status.IsSuccess() }

// IsFailed reports whether this attempt is a hard failure or
// rejection.
func (r Result) IsFailed() bool { return r.Status.IsFailed() }
