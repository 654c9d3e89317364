package steplib

import (
	"context"

	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

const (
	ActionChargePayment step.Action = "CHARGE_PAYMENT"
	ActionRefundPayment step.Action = "REFUND_PAYMENT"
)

// ChargePaymentStep charges amountCents against paymentMethodID.
type ChargePaymentStep struct {
	*step.Base
	client          PaymentClient
	amountCents     int64
	currency        string
	paymentMethodID string
}

func NewChargePaymentStep(orderID string, index int, client PaymentClient, amountCents int64, currency, paymentMethodID string) *ChargePaymentStep {
	return &ChargePaymentStep{
		Base:            step.NewBase(orderID, index, ActionChargePayment, "payment"),
		client:          client,
		amountCents:     amountCents,
		currency:        currency,
		paymentMethodID: paymentMethodID,
	}
}

func (s *ChargePaymentStep) Execute(ctx context.Context) stepresult.Result {
	return s.RunExecute(ctx, func(ctx context.Context) stepresult.Result {
		refID, err := s.client.Charge(ctx, s.StepID(), s.amountCents, s.currency, s.paymentMethodID)
		if err != nil {
			return classifyPaymentError(err)
		}
		return stepresult.Succeeded(refID, map[string]any{"amountCents": s.amountCents, "currency": s.currency})
	})
}

func (s *ChargePaymentStep) Query(ctx context.Context) stepresult.Result {
	return s.RunQuery(ctx, func(ctx context.Context) stepresult.Result { return s.Result() })
}

// classifyPaymentError maps a payment client error to a Result. The
// demo client reports business rejections (declined, insufficient
// funds) and other failures alike as plain errors, so every error is
// reported as FAILED with PAYMENT_CHARGE_FAILED; REJECTED is never
// returned.
func classifyPaymentError(err error) stepresult.Result {
	return stepresult.Failed("PAYMENT_CHARGE_FAILED", err.Error())
}

// RefundPaymentStep compensates a ChargePaymentStep.
type RefundPaymentStep struct {
	*step.Base
	client      PaymentClient
	chargeRefID string
}

func NewRefundPaymentStep(orderID string, index int, client PaymentClient, forwardStepID, chargeRefID string) *RefundPaymentStep {
	return &RefundPaymentStep{
		Base:        step.NewCompensationBase(orderID, index, ActionRefundPayment, "payment", forwardStepID),
		client:      client,
		chargeRefID: chargeRefID,
	}
}

func (s *RefundPaymentStep) Execute(ctx context.Context) stepresult.Result {
	return s.RunExecute(ctx, func(ctx context.Context) stepresult.Result {
		if err := s.client.Refund(ctx, s.StepID(), s.chargeRefID); err != nil {
			return stepresult.Failed("PAYMENT_REFUND_FAILED", err.Error())
		}
		return stepresult.Succeeded(s.chargeRefID, nil)
	})
}

func (s *RefundPaymentStep) Query(ctx context.Context) stepresult.Result {
	return s.RunQuery(ctx, func(ctx context.Context) stepresult.Result { return s.Result() })
}
