package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
)

type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes every plan event as JSON to one topic. Message
// attributes carry the action and statuses so subscribers can filter.
type SNSNotifier struct {
	client   SNSPublisher
	topicARN string
}

func NewSNSNotifier(client SNSPublisher, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, event models.PlanEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.NewNotificationSendFailedError("sns", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String("Payment plan " + string(event.Action)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"action":         stringAttr(string(event.Action)),
			"previousStatus": stringAttr(string(event.PreviousStatus)),
			"newStatus":      stringAttr(string(event.NewStatus)),
			"statusChanged":  stringAttr(boolString(event.StatusChanged())),
		},
	}
	if event.ProgramID != "" {
		input.MessageAttributes["programId"] = stringAttr(event.ProgramID)
	}
	if strings.HasSuffix(n.topicARN, ".fifo") {
		input.MessageGroupId = aws.String(event.PlanID)
		input.MessageDeduplicationId = aws.String(event.ID)
	}

	if _, err := n.client.Publish(ctx, input); err != nil {
		return errors.NewNotificationSendFailedError("sns", err)
	}
	return nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
