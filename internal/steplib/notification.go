package steplib

import (
	"context"

	"github.com/katalystsys/sagaflow/internal/step"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

const ActionSendNotification step.Action = "SEND_NOTIFICATION"

// SendNotificationStep dispatches a customer-facing message. Treated
// as non-undoable by the default policy: a message already sent
// cannot be unsent.
type SendNotificationStep struct {
	*step.Base
	client     NotificationClient
	customerID string
	message    string
}

func NewSendNotificationStep(orderID string, index int, client NotificationClient, customerID, message string) *SendNotificationStep {
	return &SendNotificationStep{
		Base:       step.NewBase(orderID, index, ActionSendNotification, "notification"),
		client:     client,
		customerID: customerID,
		message:    message,
	}
}

func (s *SendNotificationStep) Execute(ctx context.Context) stepresult.Result {
	return s.RunExecute(ctx, func(ctx context.Context) stepresult.Result {
		if err := s.client.Send(ctx, s.StepID(), s.customerID, s.message); err != nil {
			return stepresult.Failed("NOTIFICATION_SEND_FAILED", err.Error())
		}
		return stepresult.Succeeded("", nil)
	})
}

func (s *SendNotificationStep) Query(ctx context.Context) stepresult.Result {
	return s.RunQuery(ctx, func(ctx context.Context) stepresult.Result { return s.Result() })
}
