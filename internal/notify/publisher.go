package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"advisy/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// maxSQSDelay is the SQS DelaySeconds ceiling (15 minutes).
const maxSQSDelay = 900

// DeliveryPublisher sends DeliveryJobs to the notify-worker queue, for both
// initial dispatch and retry.
//
// The retry contract: Publish increments job.RetryCount BEFORE serializing,
// so the consumer always sees the attempt number of the delivery it is
// about to perform.
type DeliveryPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewDeliveryPublisher creates a publisher targeting the given queue URL.
func NewDeliveryPublisher(client SQSSender, queueURL string, logger *slog.Logger) *DeliveryPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish increments the job's RetryCount, serializes it, and sends it with
// the given delay. Delay is clamped to the SQS maximum of 900 seconds.
func (p *DeliveryPublisher) Publish(ctx context.Context, job types.DeliveryJob, delay time.Duration) error {
	job.RetryCount++

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("notify: failed to marshal delivery job: %w", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > maxSQSDelay {
		delaySec = maxSQSDelay
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(job.Kind)),
			},
			"channel": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(job.Channel)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("notify: failed to send delivery job to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "delivery job published",
		"notification_id", job.NotificationID,
		"tenant_id", job.TenantID,
		"kind", string(job.Kind),
		"channel", string(job.Channel),
		"retry_count", job.RetryCount,
		"delay_seconds", delaySec,
		"trace_id", job.TraceID,
	)
	return nil
}
