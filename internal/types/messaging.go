package types

// DeliveryJob is the SQS payload sent from the API to the notify worker. It
// carries everything needed to deliver one notification over one channel.
type DeliveryJob struct {
	// Core identity
	NotificationID string `json:"notification_id"`
	TenantID       string `json:"tenant_id"`
	UserID         string `json:"user_id"`

	// Routing
	Kind    NotificationKind `json:"kind"`
	Channel DeliveryChannel  `json:"channel"`

	// Channel payloads. Exactly one is set, matching Channel.
	Email *EmailRequest `json:"email,omitempty"`
	SMS   *SMSRequest   `json:"sms,omitempty"`

	// Retry state: carried across the SQS publish-subscribe cycle.
	// Incremented by workers on transient failures before re-publishing.
	RetryCount int `json:"retry_count"`

	// Observability
	TraceID string `json:"trace_id"`
}
