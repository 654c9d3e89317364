package steplib

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DemoInventoryClient is an in-memory InventoryClient keyed by
// idempotency key, so a re-executed Reserve for a step already applied
// returns the original reservation instead of double-booking stock.
type DemoInventoryClient struct {
	mu           sync.Mutex
	reservations map[string]string
}

func NewDemoInventoryClient() *DemoInventoryClient {
	return &DemoInventoryClient{reservations: map[string]string{}}
}

func (c *DemoInventoryClient) Reserve(_ context.Context, idempotencyKey, sku string, qty int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.reservations[idempotencyKey]; ok {
		return ref, nil
	}
	ref := "rsv_" + uuid.NewString()
	c.reservations[idempotencyKey] = ref
	return ref, nil
}

func (c *DemoInventoryClient) Release(_ context.Context, idempotencyKey, reservationRefID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reservations, idempotencyKey)
	return nil
}

// DemoPaymentClient is an in-memory PaymentClient with the same
// idempotency-key replay behavior as DemoInventoryClient.
type DemoPaymentClient struct {
	mu      sync.Mutex
	charges map[string]string
}

func NewDemoPaymentClient() *DemoPaymentClient {
	return &DemoPaymentClient{charges: map[string]string{}}
}

func (c *DemoPaymentClient) Charge(_ context.Context, idempotencyKey string, amountCents int64, currency, paymentMethodID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.charges[idempotencyKey]; ok {
		return ref, nil
	}
	if amountCents <= 0 {
		return "", fmt.Errorf("amountCents must be positive, got %d", amountCents)
	}
	ref := "chg_" + uuid.NewString()
	c.charges[idempotencyKey] = ref
	return ref, nil
}

func (c *DemoPaymentClient) Refund(_ context.Context, idempotencyKey, chargeRefID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.charges, idempotencyKey)
	return nil
}

// DemoShippingClient is an in-memory ShippingClient.
type DemoShippingClient struct {
	mu        sync.Mutex
	shipments map[string]string
}

func NewDemoShippingClient() *DemoShippingClient {
	return &DemoShippingClient{shipments: map[string]string{}}
}

func (c *DemoShippingClient) CreateShipment(_ context.Context, idempotencyKey, orderID, address string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.shipments[idempotencyKey]; ok {
		return ref, nil
	}
	ref := "shp_" + uuid.NewString()
	c.shipments[idempotencyKey] = ref
	return ref, nil
}

func (c *DemoShippingClient) CancelShipment(_ context.Context, idempotencyKey, shipmentRefID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shipments, idempotencyKey)
	return nil
}

// DemoNotificationClient is a no-op NotificationClient that always
// succeeds, standing in for an email/SMS gateway.
type DemoNotificationClient struct{}

func NewDemoNotificationClient() *DemoNotificationClient { return &DemoNotificationClient{} }

func (c *DemoNotificationClient) Send(_ context.Context, idempotencyKey, customerID, message string) error {
	return nil
}
