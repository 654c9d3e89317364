// Package registry implements the Status -> Handler map: a plain map,
// filled at startup and read-only afterwards, with
// register/get/dispatch operations.
// Handlers self-declare which statuses they own; a status with no
// registered handler is a programming error surfaced as
// ErrHandlerNotFound. The registry is the only mechanism by which one
// handler delegates to another — handlers never reference each other
// directly, which sidesteps a construction-order cycle: handlers are
// built independently and registered into this object after
// construction, then call back into it by reference to delegate.
package registry

import (
	"context"
	"fmt"

	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagaerr"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
)

// Handler is one behavioral function per status group: Init,
// Processing, Reverting, Resuming, Terminal.
type Handler interface {
	// Statuses lists every status this handler owns. Called once at
	// registration time.
	Statuses() []sagastatus.Status
	// Handle advances sc from its current status. It may mutate sc
	// and delegate onward by calling reg.Dispatch(ctx, sc) itself, or
	// return sc once the saga reaches a suspension point.
	Handle(ctx context.Context, sc *sagacontext.SagaContext, reg *Registry) (*sagacontext.SagaContext, error)
}

// ErrHandlerNotFound is returned (wrapped) when Dispatch is called for
// a status with no registered handler. It carries the same code as
// sagaerr.ErrStateHandlerNotFound but keeps the offending status
// attached for logging.
type ErrHandlerNotFound struct {
	Status sagastatus.Status
}

func (e ErrHandlerNotFound) Error() string {
	return fmt.Sprintf("registry: %s for status %s", sagaerr.ErrStateHandlerNotFound.Code, e.Status)
}

// Registry is the read-only-after-startup Status -> Handler map.
type Registry struct {
	handlers map[sagastatus.Status]Handler
}

// New creates an empty Registry. Handlers are added via Register,
// called once per handler from the composition root (cmd/sagaengine).
func New() *Registry {
	return &Registry{handlers: make(map[sagastatus.Status]Handler)}
}

// Register adds h for every status it declares ownership of.
func (r *Registry) Register(h Handler) {
	for _, s := range h.Statuses() {
		r.handlers[s] = h
	}
}

// Get looks up the handler owning status s.
func (r *Registry) Get(s sagastatus.Status) (Handler, bool) {
	h, ok := r.handlers[s]
	return h, ok
}

// Dispatch looks up the handler for sc's current status and invokes
// it. A missing handler is a programming error, not a saga-level
// failure, so it is returned as an error rather than forced into
// SYSTEM_ERROR — callers (the engine) decide how to surface it.
func (r *Registry) Dispatch(ctx context.Context, sc *sagacontext.SagaContext) (*sagacontext.SagaContext, error) {
	h, ok := r.Get(sc.Status)
	if !ok {
		return sc, ErrHandlerNotFound{Status: sc.Status}
	}
	return h.Handle(ctx, sc, r)
}
