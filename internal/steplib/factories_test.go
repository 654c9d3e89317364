package steplib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalystsys/sagaflow/internal/stepresult"
)

func TestFirstItem_ReadsSkuAndQty(t *testing.T) {
	sku, qty, err := firstItem([]map[string]any{{"sku": "SKU-1", "qty": 3}})
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", sku)
	assert.Equal(t, 3, qty)
}

func TestFirstItem_TreatsFloatQtyFromJSON(t *testing.T) {
	sku, qty, err := firstItem([]map[string]any{{"sku": "SKU-1", "qty": float64(5)}})
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", sku)
	assert.Equal(t, 5, qty)
}

func TestFirstItem_EmptyItemsIsAnError(t *testing.T) {
	_, _, err := firstItem(nil)
	assert.Error(t, err)
}

func TestFirstItem_MissingSkuIsAnError(t *testing.T) {
	_, _, err := firstItem([]map[string]any{{"qty": 1}})
	assert.Error(t, err)
}

func TestPaymentDetails_ReadsAmountCurrencyAndMethod(t *testing.T) {
	amount, currency, methodID, err := paymentDetails(map[string]any{
		"amountCents": 1999, "currency": "EUR", "paymentMethodId": "pm_1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1999), amount)
	assert.Equal(t, "EUR", currency)
	assert.Equal(t, "pm_1", methodID)
}

func TestPaymentDetails_DefaultsCurrencyToUSD(t *testing.T) {
	_, currency, _, err := paymentDetails(map[string]any{"amountCents": 1999, "paymentMethodId": "pm_1"})
	require.NoError(t, err)
	assert.Equal(t, "USD", currency)
}

func TestPaymentDetails_NilPaymentIsAnError(t *testing.T) {
	_, _, _, err := paymentDetails(nil)
	assert.Error(t, err)
}

func TestPaymentDetails_MissingPaymentMethodIsAnError(t *testing.T) {
	_, _, _, err := paymentDetails(map[string]any{"amountCents": 500})
	assert.Error(t, err)
}

func TestShippingAddress_ReadsAddress(t *testing.T) {
	address, err := shippingAddress(map[string]any{"address": "1 Infinite Loop"})
	require.NoError(t, err)
	assert.Equal(t, "1 Infinite Loop", address)
}

func TestShippingAddress_MissingAddressIsAnError(t *testing.T) {
	_, err := shippingAddress(map[string]any{})
	assert.Error(t, err)
}

func TestBuildCompensation_MapsReserveAndChargeToTheirCompensations(t *testing.T) {
	clients := Clients{
		Inventory: NewDemoInventoryClient(),
		Payment:   NewDemoPaymentClient(),
	}
	build := BuildCompensation(clients)

	reserve := NewReserveInventoryStep("o1", 0, clients.Inventory, "SKU-1", 1)
	reserve.UpdateStatus(stepresult.Succeeded("rsv_1", nil))
	compensation := build(reserve, 0)
	require.NotNil(t, compensation)
	assert.Equal(t, ActionReleaseInventory, compensation.Action())

	charge := NewChargePaymentStep("o1", 1, clients.Payment, 500, "USD", "pm_1")
	charge.UpdateStatus(stepresult.Succeeded("chg_1", nil))
	compensation = build(charge, 1)
	require.NotNil(t, compensation)
	assert.Equal(t, ActionRefundPayment, compensation.Action())
}

func TestBuildCompensation_NonUndoableActionHasNoCompensation(t *testing.T) {
	clients := Clients{Shipping: NewDemoShippingClient()}
	build := BuildCompensation(clients)

	shipment := NewCreateShipmentStep("o1", 2, clients.Shipping, "1 Infinite Loop")
	shipment.UpdateStatus(stepresult.Succeeded("shp_1", nil))

	assert.Nil(t, build(shipment, 0))
}
