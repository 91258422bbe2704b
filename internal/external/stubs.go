package external

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"advisy/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the application to boot in local/test mode
// without requiring real external service credentials. They log all
// actions and return predictable, safe default values.
// ---------------------------------------------------------------------------

// StubSeatBilling satisfies the seat billing surface by logging calls and
// returning test-safe values. Used when config.IsTestMode is true or
// APP_ENV=local.
type StubSeatBilling struct {
	logger *slog.Logger
}

// NewStubSeatBilling creates a new StubSeatBilling.
func NewStubSeatBilling(logger *slog.Logger) *StubSeatBilling {
	return &StubSeatBilling{logger: logger}
}

func (s *StubSeatBilling) EnsureCustomer(ctx context.Context, tenantID string, email string) (string, error) {
	s.logger.InfoContext(ctx, "stub: EnsureCustomer called",
		"tenant_id", tenantID,
		"email", email,
	)
	return fmt.Sprintf("cus_stub_%s", tenantID), nil
}

func (s *StubSeatBilling) UpdateSeatQuantity(ctx context.Context, subscriptionID string, quantity int) error {
	s.logger.InfoContext(ctx, "stub: UpdateSeatQuantity called",
		"subscription_id", subscriptionID,
		"quantity", quantity,
	)
	return nil
}

func (s *StubSeatBilling) CreateSeatCheckout(ctx context.Context, customerID, tenantID string, urls types.RedirectURLs) (string, error) {
	s.logger.InfoContext(ctx, "stub: CreateSeatCheckout called",
		"customer_id", customerID,
		"tenant_id", tenantID,
	)
	return "https://checkout.stub.local/session", nil
}

func (s *StubSeatBilling) CreatePlanCheckout(ctx context.Context, tenantID, customerID string, plan types.PlanTier, urls types.RedirectURLs) (string, string, error) {
	s.logger.InfoContext(ctx, "stub: CreatePlanCheckout called",
		"tenant_id", tenantID,
		"plan", string(plan),
	)
	return "https://checkout.stub.local/session", fmt.Sprintf("cs_stub_%s", tenantID), nil
}

func (s *StubSeatBilling) CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error) {
	s.logger.InfoContext(ctx, "stub: CreatePortalSession called",
		"customer_id", customerID,
		"return_url", returnURL,
	)
	return "https://portal.stub.local/session", nil
}

func (s *StubSeatBilling) GetSubscriptionState(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	s.logger.InfoContext(ctx, "stub: GetSubscriptionState called",
		"subscription_id", subscriptionID,
	)
	return &SubscriptionState{
		ID:     subscriptionID,
		Status: types.SubStatusActive,
		Plan:   types.PlanStart,
	}, nil
}

// StubEmailSender implements EmailSender by logging calls and returning a
// fake message id. Unknown templates are still rejected, so validation
// behavior matches the real client.
type StubEmailSender struct {
	logger *slog.Logger
}

// NewStubEmailSender creates a new StubEmailSender.
func NewStubEmailSender(logger *slog.Logger) *StubEmailSender {
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) SendTemplate(ctx context.Context, req types.EmailRequest) (string, error) {
	if _, _, err := renderEmailTemplate(req.Type, req.RecipientName, req.Data); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "stub: SendTemplate called",
		"template", string(req.Type),
		"to", req.RecipientEmail,
	)
	return "msg_stub_" + uuid.New().String(), nil
}

// StubSMSSender implements SMSSender by logging calls and returning a fake
// message sid. Numbers still go through normalization, so invalid numbers
// fail the same way they would in production.
type StubSMSSender struct {
	logger *slog.Logger
}

// NewStubSMSSender creates a new StubSMSSender.
func NewStubSMSSender(logger *slog.Logger) *StubSMSSender {
	return &StubSMSSender{logger: logger}
}

func (s *StubSMSSender) SendSMS(ctx context.Context, to string, body string) (string, error) {
	normalized, err := types.NormalizePhone(to)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidPhone,
			fmt.Sprintf("invalid recipient phone number: %s", to),
			err,
		)
	}
	s.logger.InfoContext(ctx, "stub: SendSMS called",
		"to", normalized,
		"body_len", len(body),
	)
	return "SM_stub_" + uuid.New().String(), nil
}

// StubWebhookVerifier implements WebhookVerifier by always succeeding.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

// NewStubWebhookVerifier creates a new StubWebhookVerifier.
func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	s.logger.Info("stub: Stripe webhook Verify called",
		"payload_len", len(payload),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ EmailSender = (*StubEmailSender)(nil)
var _ EmailSender = (*ResendClient)(nil)
var _ SMSSender = (*StubSMSSender)(nil)
var _ SMSSender = (*TwilioClient)(nil)
var _ WebhookVerifier = (*StubWebhookVerifier)(nil)
var _ WebhookVerifier = (*StripeVerifier)(nil)
