package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
)

type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier emails the configured recipients when a plan is rejected or
// reaches ACCEPTED. Other events are ignored.
type SESNotifier struct {
	client     SESSender
	from       string
	recipients []string
}

func NewSESNotifier(client SESSender, from string, recipients []string) *SESNotifier {
	return &SESNotifier{client: client, from: from, recipients: recipients}
}

func (n *SESNotifier) Notify(ctx context.Context, event models.PlanEvent) error {
	subject, body, ok := emailFor(event)
	if !ok || len(n.recipients) == 0 {
		return nil
	}

	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: n.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(n.from),
	})
	if err != nil {
		return errors.NewNotificationSendFailedError("ses", err)
	}
	return nil
}

func emailFor(event models.PlanEvent) (subject, body string, ok bool) {
	var b strings.Builder
	switch {
	case event.IsRejection():
		subject = fmt.Sprintf("Payment plan %s was rejected", event.PlanID)
		fmt.Fprintf(&b, "Payment plan %s was rejected at %s by %s and returned to %s.\n",
			event.PlanID, event.PreviousStatus, event.ActorID, event.NewStatus)
	case event.StatusChanged() && event.NewStatus == models.StatusAccepted:
		subject = fmt.Sprintf("Payment plan %s was accepted", event.PlanID)
		fmt.Fprintf(&b, "Payment plan %s was released by %s and is ready for delivery.\n", event.PlanID, event.ActorID)
	default:
		return "", "", false
	}
	if event.ProgramID != "" {
		fmt.Fprintf(&b, "Program: %s\n", event.ProgramID)
	}
	if event.Comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", event.Comment)
	}
	fmt.Fprintf(&b, "Time: %s\n", event.OccurredAt.UTC().Format("2006-01-02 15:04 MST"))
	return subject, b.String(), true
}
