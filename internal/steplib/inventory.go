package steplib

import (
	"context"

	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

const (
	ActionReserveInventory step.Action = "RESERVE_INVENTORY"
	ActionReleaseInventory step.Action = "RELEASE_INVENTORY"
)

// ReserveInventoryStep reserves qty units of sku against idempotencyKey.
type ReserveInventoryStep struct {
	*step.Base
	client InventoryClient
	sku    string
	qty    int
}

func NewReserveInventoryStep(orderID string, index int, client InventoryClient, sku string, qty int) *ReserveInventoryStep {
	return &ReserveInventoryStep{
		Base:   step.NewBase(orderID, index, ActionReserveInventory, "inventory"),
		client: client,
		sku:    sku,
		qty:    qty,
	}
}

func (s *ReserveInventoryStep) Execute(ctx context.Context) stepresult.Result {
	return s.RunExecute(ctx, func(ctx context.Context) stepresult.Result {
		refID, err := s.client.Reserve(ctx, s.StepID(), s.sku, s.qty)
		if err != nil {
			return stepresult.Failed("INVENTORY_RESERVE_FAILED", err.Error())
		}
		return stepresult.Succeeded(refID, map[string]any{"sku": s.sku, "qty": s.qty})
	})
}

func (s *ReserveInventoryStep) Query(ctx context.Context) stepresult.Result {
	return s.RunQuery(ctx, func(ctx context.Context) stepresult.Result { return s.Result() })
}

// ReleaseInventoryStep compensates a ReserveInventoryStep.
type ReleaseInventoryStep struct {
	*step.Base
	client           InventoryClient
	reservationRefID string
}

func NewReleaseInventoryStep(orderID string, index int, client InventoryClient, forwardStepID, reservationRefID string) *ReleaseInventoryStep {
	return &ReleaseInventoryStep{
		Base:             step.NewCompensationBase(orderID, index, ActionReleaseInventory, "inventory", forwardStepID),
		client:           client,
		reservationRefID: reservationRefID,
	}
}

func (s *ReleaseInventoryStep) Execute(ctx context.Context) stepresult.Result {
	return s.RunExecute(ctx, func(ctx context.Context) stepresult.Result {
		if err := s.client.Release(ctx, s.StepID(), s.reservationRefID); err != nil {
			return stepresult.Failed("INVENTORY_RELEASE_FAILED", err.Error())
		}
		return stepresult.Succeeded(s.reservationRefID, nil)
	})
}

func (s *ReleaseInventoryStep) Query(ctx context.Context) stepresult.Result {
	return s.RunQuery(ctx, func(ctx context.Context) stepresult.Result { return s.Result() })
}
