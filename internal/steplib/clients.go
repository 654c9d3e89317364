// Package steplib ships demo idempotent steps for an order-fulfillment
// saga: reserve inventory, charge payment, create shipment, send
// notification, and their compensations. Each wraps step.Base and
// delegates the actual work to a small client interface, so a
// deployment can swap in real service clients without touching the
// step bookkeeping.
package steplib

import "context"

// InventoryClient reserves and releases stock. Implementations must
// treat idempotencyKey as an idempotency key: a repeated Reserve call
// with the same key must observe the original reservation rather than
// double-reserve.
type InventoryClient interface {
	Reserve(ctx context.Context, idempotencyKey, sku string, qty int) (externalRefID string, err error)
	Release(ctx context.Context, idempotencyKey, reservationRefID string) error
}

// PaymentClient charges and refunds a payment method.
type PaymentClient interface {
	Charge(ctx context.Context, idempotencyKey string, amountCents int64, currency, paymentMethodID string) (externalRefID string, err error)
	Refund(ctx context.Context, idempotencyKey, chargeRefID string) error
}

// ShippingClient creates and cancels a shipment. Shipment creation is
// modeled as non-undoable in the default policy: once a carrier
// manifest exists, Cancel is provided for completeness but the policy
// routes a post-shipment failure to MANUAL_REVIEW rather than calling
// it automatically.
type ShippingClient interface {
	CreateShipment(ctx context.Context, idempotencyKey, orderID, address string) (externalRefID string, err error)
	CancelShipment(ctx context.Context, idempotencyKey, shipmentRefID string) error
}

// NotificationClient sends a customer-facing notification. Like
// shipping, dispatch is treated as non-undoable by the default policy.
type NotificationClient interface {
	Send(ctx context.Context, idempotencyKey, customerID, message string) error
}
