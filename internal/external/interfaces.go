package external

import (
	"context"

	"advisy/internal/types"
)

// EmailSender abstracts the transactional email provider (Resend).
// Implementations translate the closed template set into provider payloads.
type EmailSender interface {
	// SendTemplate renders and sends one templated email. Returns the
	// provider message id.
	SendTemplate(ctx context.Context, req types.EmailRequest) (string, error)
}

// SMSSender abstracts the SMS provider (Twilio).
type SMSSender interface {
	// SendSMS sends one message to a single recipient. The number is
	// normalized to E.164 before sending. Returns the provider message id.
	SendSMS(ctx context.Context, to string, body string) (string, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// Stripe event type constants prevent magic strings in webhook handlers.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeInvoicePaid       = "invoice.paid"
	EventStripePaymentFailed     = "invoice.payment_failed"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
)
