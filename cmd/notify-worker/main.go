// Package main is the entrypoint for the notify worker Lambda function.
//
// The worker consumes DeliveryJobs from the notification SQS queue and
// delivers them over the channel the job names: transactional email via
// Resend or SMS via Twilio. Transient upstream failures are re-published to
// the queue with exponential backoff; jobs that exhaust their retries are
// reported as partial batch failures so SQS moves them to the DLQ.
//
// Cold start (main):
//  1. Load configuration (SSM-resolved outside local mode).
//  2. Initialize the structured logger.
//  3. Initialize the external client registry (Resend, Twilio or stubs).
//  4. Initialize SQS and CloudWatch clients.
//  5. Register the handler and call lambda.Start.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"advisy/internal/config"
	"advisy/internal/external"
	"advisy/internal/notify"
	"advisy/internal/types"
)

// maxDeliveryRetries bounds the re-publish cycle. A job observed with this
// retry count fails the batch item and lands in the DLQ via redrive.
const maxDeliveryRetries = 5

// retryBaseDelay seeds the exponential backoff. The publisher clamps the
// computed delay to the SQS ceiling of 900 seconds.
const retryBaseDelay = 30 * time.Second

// TemplateMailer delivers one templated email. Implemented by the registry's
// EmailSender.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, req types.EmailRequest) (string, error)
}

// SMSSender delivers one SMS to a single recipient.
type SMSSender interface {
	SendSMS(ctx context.Context, to string, body string) (string, error)
}

// JobPublisher re-enqueues a job for a later attempt.
type JobPublisher interface {
	Publish(ctx context.Context, job types.DeliveryJob, delay time.Duration) error
}

// Handler holds the dependencies for the notify worker Lambda handler.
type Handler struct {
	mailer    TemplateMailer
	sms       SMSSender
	publisher JobPublisher
	metrics   notify.DeliveryMetrics
	logger    *slog.Logger
}

// Handle processes an SQS event containing one or more delivery jobs. Each
// job is processed independently; failures are reported per message so SQS
// retries only what actually failed.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("delivery job failed",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord handles a single SQS message through the delivery pipeline.
// A nil return acknowledges the message; an error surfaces it as a batch
// item failure.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	start := time.Now()

	var job types.DeliveryJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		// Permanent parse failure; retrying cannot help.
		h.logger.Error("unparseable delivery job dropped",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	if lag, ok := queueLag(record, start); ok {
		h.metrics.RecordQueueLag(ctx, lag)
	}

	logger := h.logger.With(
		"notification_id", job.NotificationID,
		"tenant_id", job.TenantID,
		"channel", string(job.Channel),
		"retry_count", job.RetryCount,
		"trace_id", job.TraceID,
	)

	err := h.deliver(ctx, &job)
	if err == nil {
		h.metrics.RecordDelivery(ctx, job.Channel, notify.ResultSuccess)
		h.metrics.RecordLatency(ctx, job.Channel, time.Since(start))
		logger.Info("delivery succeeded")
		return nil
	}

	if !isTransient(err) {
		// Retrying a malformed job or a hard provider rejection burns
		// queue cycles for nothing. Record the failure and acknowledge.
		h.metrics.RecordDelivery(ctx, job.Channel, notify.ResultFailure)
		logger.Error("delivery failed permanently", "error", err.Error())
		return nil
	}

	if job.RetryCount >= maxDeliveryRetries {
		h.metrics.RecordDelivery(ctx, job.Channel, notify.ResultFailure)
		logger.Error("delivery retries exhausted", "error", err.Error())
		return fmt.Errorf("retries exhausted: %w", err)
	}

	delay := retryBaseDelay << job.RetryCount
	if pubErr := h.publisher.Publish(ctx, job, delay); pubErr != nil {
		// Could not schedule the retry; let SQS redeliver the original.
		logger.Error("retry publish failed", "error", pubErr.Error())
		return fmt.Errorf("publishing retry: %w", pubErr)
	}

	logger.Warn("delivery deferred for retry",
		"error", err.Error(),
		"delay", delay.String(),
	)
	return nil
}

// deliver routes the job to its channel. The job carries exactly one
// payload, matching Channel.
func (h *Handler) deliver(ctx context.Context, job *types.DeliveryJob) error {
	switch job.Channel {
	case types.ChannelEmail:
		if job.Email == nil {
			return errPayloadMissing
		}
		_, err := h.mailer.SendTemplate(ctx, *job.Email)
		return err

	case types.ChannelSMS:
		if job.SMS == nil || len(job.SMS.Recipients) == 0 {
			return errPayloadMissing
		}
		// Attempt every recipient; a retry re-targets only the ones that
		// failed, so a flaky number cannot re-send to the whole list.
		var failed []string
		var lastErr error
		for _, recipient := range job.SMS.Recipients {
			if _, err := h.sms.SendSMS(ctx, recipient, job.SMS.Message); err != nil {
				failed = append(failed, recipient)
				lastErr = err
			}
		}
		if lastErr != nil {
			job.SMS.Recipients = failed
			return lastErr
		}
		return nil

	default:
		return fmt.Errorf("unknown delivery channel %q", job.Channel)
	}
}

// errPayloadMissing marks a job whose payload does not match its channel.
var errPayloadMissing = errors.New("delivery job payload missing for channel")

// isTransient reports whether the delivery error is worth retrying. Upstream
// availability and rate-limit errors are; everything else is permanent.
func isTransient(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return strings.HasPrefix(string(appErr.Code), "upstream_")
	}
	return false
}

// queueLag derives the time the message spent in the queue from the SQS
// SentTimestamp attribute (epoch milliseconds).
func queueLag(record events.SQSMessage, now time.Time) (time.Duration, bool) {
	raw, ok := record.Attributes["SentTimestamp"]
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	lag := now.Sub(time.UnixMilli(ms))
	if lag < 0 {
		lag = 0
	}
	return lag, true
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "notify-worker")
	logger.Info("notify worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	registry, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing external clients: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	handler := &Handler{
		mailer:    registry.Email,
		sms:       registry.SMS,
		publisher: notify.NewDeliveryPublisher(sqsClient, cfg.AWS.NotificationQueue, logger),
		metrics:   notify.NewCloudWatchDeliveryMetrics(cwClient, logger),
		logger:    logger,
	}

	lambda.Start(handler.Handle)
	return nil
}
