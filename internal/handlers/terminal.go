package handlers

import (
	"context"

	"github.com/katalystsys/sagaflow/internal/hooks"
	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/registry"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
)

// TerminalHandler owns every terminal status. It runs the after-hook
// chain best-effort, writes an audit log entry, and never delegates
// further: a terminal saga has no outbound edges.
type TerminalHandler struct {
	hookCh   *hooks.Chain
	logStore *logging.LogStore
}

func NewTerminalHandler(hookCh *hooks.Chain, logStore *logging.LogStore) *TerminalHandler {
	return &TerminalHandler{hookCh: hookCh, logStore: logStore}
}

func (h *TerminalHandler) Statuses() []sagastatus.Status {
	return []sagastatus.Status{
		sagastatus.Success,
		sagastatus.Failed,
		sagastatus.Reverted,
		sagastatus.RevertFailed,
		sagastatus.ManualReview,
		sagastatus.Timeout,
		sagastatus.SystemError,
	}
}

func (h *TerminalHandler) Handle(ctx context.Context, sc *sagacontext.SagaContext, _ *registry.Registry) (*sagacontext.SagaContext, error) {
	h.hookCh.RunAfter(ctx, sc)

	duration := sc.UpdatedAt.Sub(sc.CreatedAt)
	h.logStore.LogAndStore("info", "saga %s (order %s) terminated at %s after %s, %d steps processed",
		sc.OrderID, sc.OrderNo, sc.Status, duration, len(sc.ProcessedStepIDs))

	return sc, nil
}
