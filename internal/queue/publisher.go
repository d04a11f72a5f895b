// Package queue publishes webhook outcomes to SQS for downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"cashier/internal/config"
	"cashier/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EventPublisher sends a WebhookHandledMessage per processed delivery. A nil
// *EventPublisher, or one without a queue URL, drops messages silently.
type EventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewEventPublisher creates a publisher for awsCfg.WebhookEventsQueue.
func NewEventPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		client:   client,
		queueURL: awsCfg.WebhookEventsQueue,
		logger:   logger,
	}
}

// Enabled reports whether Publish sends anything.
func (p *EventPublisher) Enabled() bool {
	return p != nil && p.client != nil && p.queueURL != ""
}

// Publish sends msg, assigning a MessageID when empty. The event type is
// copied to an "event_type" message attribute so subscribers can filter.
func (p *EventPublisher) Publish(ctx context.Context, msg types.WebhookHandledMessage) error {
	if !p.Enabled() {
		return nil
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.TraceID == "" {
		msg.TraceID = types.GetRequestID(ctx)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal WebhookHandledMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.EventType),
			},
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Status)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send WebhookHandledMessage for %s: %w", msg.EventID, err)
	}

	p.logger.DebugContext(ctx, "webhook handled message sent",
		"message_id", msg.MessageID,
		"event_id", msg.EventID,
		"event_type", msg.EventType,
		"status", string(msg.Status),
	)
	return nil
}
