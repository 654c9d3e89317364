package steplib

import (
	"context"

	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

const ActionCreateShipment step.Action = "CREATE_SHIPMENT"

// CreateShipmentStep creates a carrier shipment for an order. It is
// treated as a non-undoable "add" by the default policy, so it has no
// paired compensation step in normal operation.
type CreateShipmentStep struct {
	*step.Base
	client  ShippingClient
	address string
}

func NewCreateShipmentStep(orderID string, index int, client ShippingClient, address string) *CreateShipmentStep {
	return &CreateShipmentStep{
		Base:    step.NewBase(orderID, index, ActionCreateShipment, "shipping"),
		client:  client,
		address: address,
	}
}

func (s *CreateShipmentStep) Execute(ctx context.Context) stepresult.Result {
	return s.RunExecute(ctx, func(ctx context.Context) stepresult.Result {
		refID, err := s.client.CreateShipment(ctx, s.StepID(), s.OrderID(), s.address)
		if err != nil {
			return stepresult.Failed("SHIPMENT_CREATE_FAILED", err.Error())
		}
		return stepresult.Succeeded(refID, map[string]any{"address": s.address})
	})
}

func (s *CreateShipmentStep) Query(ctx context.Context) stepresult.Result {
	return s.RunQuery(ctx, func(ctx context.Context) stepresult.Result { return s.Result() })
}
