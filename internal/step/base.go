package step

import (
	"context"
	"log"
	"time"

	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

// ExecuteFunc is the user-supplied forward (or compensating) logic a
// concrete step wraps with Base.RunExecute. It must not throw in
// ordinary Go terms, but Base recovers a panic anyway and translates
// it into a Result.
type ExecuteFunc func(ctx context.Context) stepresult.Result

// QueryFunc is the user-supplied idempotent status-check logic a
// concrete step wraps with Base.RunQuery.
type QueryFunc func(ctx context.Context) stepresult.Result

// Base is embedded by composition (not inheritance) into every
// concrete step in internal/steplib. It owns the identity fields and
// mutable status/result, and supplies RunExecute/RunQuery helpers that
// add logging and exception-to-result translation around the step's
// own logic, mirroring the template-method shape of the source this
// engine was modeled on without requiring a class hierarchy.
type Base struct {
	stepID         string
	orderID        string
	index          int
	action         Action
	serviceType    string
	isCompensation bool
	compensationOf string

	status     sagastatus.StepStatus
	result     stepresult.Result
	createdAt  time.Time
	updatedAt  time.Time
	sentAt     *time.Time
	receivedAt *time.Time
}

// NewBase constructs a Base for a forward step.
func NewBase(orderID string, index int, action Action, serviceType string) *Base {
	now := time.Now()
	return &Base{
		stepID:      ID(orderID, index, action, serviceType),
		orderID:     orderID,
		index:       index,
		action:      action,
		serviceType: serviceType,
		status:      sagastatus.StepPending,
		createdAt:   now,
		updatedAt:   now,
	}
}

// NewCompensationBase constructs a Base for the compensation of
// forwardStepID.
func NewCompensationBase(orderID string, index int, action Action, serviceType, forwardStepID string) *Base {
	b := NewBase(orderID, index, action, serviceType)
	b.isCompensation = true
	b.compensationOf = forwardStepID
	return b
}

func (b *Base) StepID() string             { return b.stepID }
func (b *Base) OrderID() string             { return b.orderID }
func (b *Base) Index() int                  { return b.index }
func (b *Base) Action() Action              { return b.action }
func (b *Base) ServiceType() string         { return b.serviceType }
func (b *Base) IsCompensation() bool        { return b.isCompensation }
func (b *Base) CompensationOf() string      { return b.compensationOf }
func (b *Base) Status() sagastatus.StepStatus { return b.status }
func (b *Base) Result() stepresult.Result   { return b.result }

// UpdateStatus applies r to the step unless the step already holds a
// final status — a terminal step-status can never be overwritten.
func (b *Base) UpdateStatus(r stepresult.Result) bool {
	if b.status.IsFinal() {
		return false
	}
	b.status = r.Status
	b.result = r
	b.updatedAt = time.Now()
	return true
}

// ToLog projects the step into its serializable audit-log form.
func (b *Base) ToLog() Log {
	return Log{
		StepID:         b.stepID,
		OrderID:        b.orderID,
		Index:          b.index,
		Action:         b.action,
		Status:         b.status,
		ErrorCode:      b.result.ErrorCode,
		ErrorMessage:   b.result.ErrorMessage,
		ExternalRefID:  b.result.ExternalRefID,
		Metadata:       b.result.Metadata,
		CreatedAt:      b.createdAt,
		UpdatedAt:      b.updatedAt,
		SentAt:         b.sentAt,
		ReceivedAt:     b.receivedAt,
		IsCompensation: b.isCompensation,
		CompensationOf: b.compensationOf,
	}
}

// RunExecute wraps fn with sent/received timestamps, logging, and
// panic-to-Result translation, then applies the outcome via
// UpdateStatus. Concrete steps call this from their own Execute
// method instead of duplicating the bookkeeping.
func (b *Base) RunExecute(ctx context.Context, fn ExecuteFunc) (result stepresult.Result) {
	now := time.Now()
	b.sentAt = &now

	defer func() {
		if r := recover(); r != nil {
			log.Printf("step %s panicked during execute: %v", b.stepID, r)
			result = stepresult.FromException(r)
		}
		received := time.Now()
		b.receivedAt = &received
		b.UpdateStatus(result)
	}()

	log.Printf("step %s executing (action=%s service=%s compensation=%v)", b.stepID, b.action, b.serviceType, b.isCompensation)
	result = fn(ctx)
	return result
}

// RunQuery wraps fn with panic-to-Result translation. Query must be
// side-effect free so it never mutates status itself; callers apply
// the returned Result via UpdateStatus explicitly.
func (b *Base) RunQuery(ctx context.Context, fn QueryFunc) (result stepresult.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("step %s panicked during query: %v", b.stepID, r)
			result = stepresult.FromException(r)
		}
	}()
	result = fn(ctx)
	return result
}
