package steplib

import (
	"fmt"

	"github.com/katalystsys/sagaflow/internal/engine"
	"github.com/katalystsys/sagaflow/internal/planconfig"
	"github.com/katalystsys/sagaflow/internal/step"
)

// Clients bundles the four demo service clients a StepFactory set
// needs. Deployments assemble one of these from real service clients
// instead of the Demo* implementations and pass it to RegisterFactories.
type Clients struct {
	Inventory    InventoryClient
	Payment      PaymentClient
	Shipping     ShippingClient
	Notification NotificationClient
}

// RegisterFactories binds a planconfig.Manager's actions to the demo
// order-fulfillment steps, reading item/payment/shipping shape out of
// StartCommand's untyped maps.
func RegisterFactories(m *planconfig.Manager, clients Clients) {
	m.RegisterFactory(ActionReserveInventory, func(orderID string, index int, cmd engine.StartCommand) (step.Step, error) {
		sku, qty, err := firstItem(cmd.Items)
		if err != nil {
			return nil, err
		}
		return NewReserveInventoryStep(orderID, index, clients.Inventory, sku, qty), nil
	})

	m.RegisterFactory(ActionChargePayment, func(orderID string, index int, cmd engine.StartCommand) (step.Step, error) {
		amountCents, currency, methodID, err := paymentDetails(cmd.Payment)
		if err != nil {
			return nil, err
		}
		return NewChargePaymentStep(orderID, index, clients.Payment, amountCents, currency, methodID), nil
	})

	m.RegisterFactory(ActionCreateShipment, func(orderID string, index int, cmd engine.StartCommand) (step.Step, error) {
		address, err := shippingAddress(cmd.Shipping)
		if err != nil {
			return nil, err
		}
		return NewCreateShipmentStep(orderID, index, clients.Shipping, address), nil
	})

	m.RegisterFactory(ActionSendNotification, func(orderID string, index int, cmd engine.StartCommand) (step.Step, error) {
		return NewSendNotificationStep(orderID, index, clients.Notification, cmd.CustomerID, "your order has been placed"), nil
	})
}

// BuildCompensation implements handlers.CompensationBuilder for the demo
// action set: it maps a succeeded forward step to its paired
// compensation step, carrying forward the external reference the
// forward step recorded.
func BuildCompensation(clients Clients) func(forward step.Step, index int) step.Step {
	return func(forward step.Step, index int) step.Step {
		ref := forward.Result().ExternalRefID
		switch forward.Action() {
		case ActionReserveInventory:
			return NewReleaseInventoryStep(forward.OrderID(), index, clients.Inventory, forward.StepID(), ref)
		case ActionChargePayment:
			return NewRefundPaymentStep(forward.OrderID(), index, clients.Payment, forward.StepID(), ref)
		default:
			return nil
		}
	}
}

func firstItem(items []map[string]any) (sku string, qty int, err error) {
	if len(items) == 0 {
		return "", 0, fmt.Errorf("steplib: order has no items")
	}
	item := items[0]
	sku, _ = item["sku"].(string)
	if sku == "" {
		return "", 0, fmt.Errorf("steplib: item missing sku")
	}
	switch v := item["qty"].(type) {
	case int:
		qty = v
	case float64:
		qty = int(v)
	default:
		qty = 1
	}
	return sku, qty, nil
}

func paymentDetails(payment map[string]any) (amountCents int64, currency, methodID string, err error) {
	if payment == nil {
		return 0, "", "", fmt.Errorf("steplib: order has no payment details")
	}
	switch v := payment["amountCents"].(type) {
	case int:
		amountCents = int64(v)
	case int64:
		amountCents = v
	case float64:
		amountCents = int64(v)
	default:
		return 0, "", "", fmt.Errorf("steplib: payment missing amountCents")
	}
	currency, _ = payment["currency"].(string)
	if currency == "" {
		currency = "USD"
	}
	methodID, _ = payment["paymentMethodId"].(string)
	if methodID == "" {
		return 0, "", "", fmt.Errorf("steplib: payment missing paymentMethodId")
	}
	return amountCents, currency, methodID, nil
}

func shippingAddress(shipping map[string]any) (string, error) {
	if shipping == nil {
		return "", fmt.Errorf("steplib: order has no shipping details")
	}
	address, _ := shipping["address"].(string)
	if address == "" {
		return "", fmt.Errorf("steplib: shipping missing address")
	}
	return address, nil
}
