// Package hooks defines the before/after hook contract the saga
// engine runs around INIT and terminal processing. Concrete
// hooks (deduplication, validation, notification) are collaborators
// specified only by this interface; internal/hookset ships the demo
// implementations this repository wires up by default.
package hooks

import (
	"context"
	"log"

	"github.com/katalystsys/sagaflow/internal/sagacontext"
)

// Outcome classifies a before-hook's verdict.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeValidation     Outcome = "validation"
	OutcomeAuthorization  Outcome = "authorization"
	OutcomeSystemError    Outcome = "system_error"
)

// Result is a before-hook's verdict.
type Result struct {
	Outcome      Outcome
	ErrorCode    string
	ErrorMessage string
}

// IsSuccess reports whether the chain should continue.
func (r Result) IsSuccess() bool { return r.Outcome == OutcomeSuccess }

// Success returns the passing Result. The zero Result is not a
// success: its Outcome is empty.
func Success() Result { return Result{Outcome: OutcomeSuccess} }

// BeforeHook may short-circuit INIT before the first step runs.
type BeforeHook interface {
	Name() string
	Before(ctx context.Context, sc *sagacontext.SagaContext) Result
}

// AfterHook runs on every terminal transition, best effort.
type AfterHook interface {
	Name() string
	After(ctx context.Context, sc *sagacontext.SagaContext)
}

// Chain runs an ordered list of before-hooks (can abort) and
// after-hooks (cannot — failures are logged and discarded).
type Chain struct {
	before []BeforeHook
	after  []AfterHook
}

// NewChain builds a Chain from the given hooks, run in order.
func NewChain(before []BeforeHook, after []AfterHook) *Chain {
	return &Chain{before: before, after: after}
}

// RunBefore runs each before-hook in order, stopping at the first
// non-success verdict. A panicking hook is converted to
// OutcomeSystemError rather than propagated.
func (c *Chain) RunBefore(ctx context.Context, sc *sagacontext.SagaContext) (result Result) {
	result = Success()
	for _, h := range c.before {
		verdict := c.runOne(ctx, sc, h)
		if !verdict.IsSuccess() {
			return verdict
		}
	}
	return result
}

func (c *Chain) runOne(ctx context.Context, sc *sagacontext.SagaContext, h BeforeHook) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hook %s panicked: %v", h.Name(), r)
			result = Result{Outcome: OutcomeSystemError, ErrorCode: "HOOK_PANIC", ErrorMessage: "before-hook panicked"}
		}
	}()
	return h.Before(ctx, sc)
}

// RunAfter runs every after-hook regardless of prior outcome; a
// panicking or erroring hook is logged and otherwise ignored.
func (c *Chain) RunAfter(ctx context.Context, sc *sagacontext.SagaContext) {
	for _, h := range c.after {
		c.runAfterOne(ctx, sc, h)
	}
}

func (c *Chain) runAfterOne(ctx context.Context, sc *sagacontext.SagaContext, h AfterHook) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("after-hook %s panicked: %v", h.Name(), r)
		}
	}()
	h.After(ctx, sc)
}
