package notify

import (
	"context"
	"time"

	"payplan-workers/internal/common/camunda"
	"payplan-workers/internal/models"
)

const DefaultStatusMessage = "payment-plan-status-changed"

type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg camunda.Message) error
}

// ZeebeNotifier correlates status changes with process instances waiting on
// the plan id. Sign-offs that leave the status unchanged are not published.
type ZeebeNotifier struct {
	publisher   MessagePublisher
	messageName string
	ttl         time.Duration
}

func NewZeebeNotifier(publisher MessagePublisher, messageName string, ttl time.Duration) *ZeebeNotifier {
	if messageName == "" {
		messageName = DefaultStatusMessage
	}
	return &ZeebeNotifier{publisher: publisher, messageName: messageName, ttl: ttl}
}

func (n *ZeebeNotifier) Notify(ctx context.Context, event models.PlanEvent) error {
	if !event.StatusChanged() {
		return nil
	}
	return n.publisher.PublishMessage(ctx, camunda.Message{
		Name:           n.messageName,
		CorrelationKey: event.PlanID,
		MessageID:      event.ID,
		TimeToLive:     n.ttl,
		Variables: map[string]interface{}{
			"planId":         event.PlanID,
			"action":         event.Action,
			"previousStatus": event.PreviousStatus,
			"status":         event.NewStatus,
			"actorId":        event.ActorID,
		},
	})
}
