// Package hookset ships the demo before/after hooks this repository
// wires into the engine by default: deduplication, field validation,
// and a best-effort notification hook that logs the saga's terminal
// outcome. Real deployments would replace these with their own
// hooks.BeforeHook/AfterHook implementations; nothing in the engine
// core depends on this package.
package hookset

import (
	"context"
	"fmt"

	"github.com/katalystsys/sagaflow/internal/hooks"
	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagaerr"
)

// DedupHook rejects a start request whose OrderNo already has a saga
// in the store, whatever that saga's status (terminal ones included).
type DedupHook struct {
	store persistence.Port
}

// NewDedupHook builds a DedupHook backed by store.
func NewDedupHook(store persistence.Port) *DedupHook { return &DedupHook{store: store} }

func (h *DedupHook) Name() string { return "dedup" }

func (h *DedupHook) Before(ctx context.Context, sc *sagacontext.SagaContext) hooks.Result {
	exists, err := h.store.ExistsByOrderNo(ctx, sc.OrderNo)
	if err != nil {
		return hooks.Result{Outcome: hooks.OutcomeSystemError, ErrorCode: sagaerr.ErrPersistenceFailure.Code, ErrorMessage: err.Error()}
	}
	if exists {
		return hooks.Result{Outcome: hooks.OutcomeDuplicate, ErrorCode: sagaerr.ErrDuplicateRequest.Code, ErrorMessage: fmt.Sprintf("orderNo %s already submitted", sc.OrderNo)}
	}
	return hooks.Success()
}

// ValidationHook checks the minimal shape every saga must have before
// it is allowed to start.
type ValidationHook struct{}

func NewValidationHook() *ValidationHook { return &ValidationHook{} }

func (h *ValidationHook) Name() string { return "validation" }

func (h *ValidationHook) Before(_ context.Context, sc *sagacontext.SagaContext) hooks.Result {
	if sc.CustomerID == "" {
		return hooks.Result{Outcome: hooks.OutcomeValidation, ErrorCode: "MISSING_CUSTOMER_ID", ErrorMessage: "customerId is required"}
	}
	if len(sc.ForwardSteps) == 0 {
		return hooks.Result{Outcome: hooks.OutcomeValidation, ErrorCode: "NO_STEPS", ErrorMessage: "a saga needs at least one forward step"}
	}
	return hooks.Success()
}

// AuthorizationHook is a placeholder seam for tenant/customer-scoped
// authorization checks; it always succeeds, and exists so deployments
// can see where to plug theirs in without changing the chain shape.
type AuthorizationHook struct{}

func NewAuthorizationHook() *AuthorizationHook { return &AuthorizationHook{} }

func (h *AuthorizationHook) Name() string { return "authorization" }

func (h *AuthorizationHook) Before(_ context.Context, _ *sagacontext.SagaContext) hooks.Result {
	return hooks.Success()
}

// NotificationHook is a best-effort after-hook logging the saga's
// terminal outcome through LogStore.LogAndStore.
type NotificationHook struct {
	logStore *logging.LogStore
}

func NewNotificationHook(logStore *logging.LogStore) *NotificationHook {
	return &NotificationHook{logStore: logStore}
}

func (h *NotificationHook) Name() string { return "notification" }

func (h *NotificationHook) After(_ context.Context, sc *sagacontext.SagaContext) {
	h.logStore.LogAndStore("info", "saga %s (order %s) reached terminal status %s after %d processed steps",
		sc.OrderID, sc.OrderNo, sc.Status, len(sc.ProcessedStepIDs))
}
