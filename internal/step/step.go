// Package step defines the abstract per-step contract saga handlers
// drive: Execute, Query, UpdateStatus, plus the serializable StepLog
// projection persisted alongside each attempt. Concrete steps (HTTP
// calls to inventory/payment/shipping/notification services) live
// outside this package — see internal/steplib for the demo
// implementations this repository ships.
package step

import (
	"context"
	"fmt"
	"time"

	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

// Action names a forward or compensating operation a step performs,
// e.g. "RESERVE_INVENTORY" or "RELEASE_INVENTORY".
type Action string

// ID builds the globally unique, (orderID, index)-sortable step
// identifier used as the idempotency key embedded in outbound calls.
func ID(orderID string, index int, action Action, serviceType string) string {
	return fmt.Sprintf("%s:%03d:%s:%s", orderID, index, string(action), serviceType)
}

// Step is the contract a saga step implementation satisfies. Execute
// MUST be idempotent — re-invoking it for a step already completed
// externally must observe the prior result, typically by passing ID()
// as an idempotency key to the backing service. Query MUST be
// side-effect free.
type Step interface {
	StepID() string
	OrderID() string
	Index() int
	Action() Action
	ServiceType() string
	IsCompensation() bool
	// CompensationOf returns the stepId of the forward step this step
	// compensates, or "" if this is a forward step.
	CompensationOf() string

	Status() sagastatus.StepStatus
	Result() stepresult.Result

	Execute(ctx context.Context) stepresult.Result
	Query(ctx context.Context) stepresult.Result
	UpdateStatus(r stepresult.Result) bool

	ToLog() Log
}

// Log is the pure serializable projection of a step, the shape
// persisted by the persistence port's SaveSteps/LoadSteps.
type Log struct {
	StepID         string
	OrderID        string
	Index          int
	Action         Action
	Status         sagastatus.StepStatus
	ErrorCode      string
	ErrorMessage   string
	ExternalRefID  string
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SentAt         *time.Time
	ReceivedAt     *time.Time
	IsCompensation bool
	CompensationOf string
}
