package external

import (
	"log/slog"
	"net/http"
	"time"

	"advisy/internal/config"
)

// ---------------------------------------------------------------------------
// Client Registry
//
// Central factory that instantiates all external service clients based on
// configuration. In test/local mode, returns stub implementations that log
// actions without requiring real credentials. In production mode, returns
// real client implementations with strict timeouts.
// ---------------------------------------------------------------------------

// ClientRegistry holds all external service clients. It is the single point
// of access for the rest of the application to reach third-party services
// (Stripe, Resend, Twilio).
type ClientRegistry struct {
	Stripe *StripeClient
	Email  EmailSender
	SMS    SMSSender

	// Present only in stub mode; handlers target the concrete StripeClient
	// in production and this stand-in locally.
	StubBilling *StubSeatBilling

	StripeVerifier WebhookVerifier
}

// RegistryOption is a functional option for configuring a ClientRegistry.
// Options inject dependencies not available from config alone (e.g. the
// tenant store the real Stripe client persists customer ids through).
type RegistryOption func(*registryConfig)

type registryConfig struct {
	tenantStore TenantBillingStore
}

// WithTenantBillingStore provides the store the real StripeClient uses to
// persist resolved customer ids. A no-op in stub mode.
func WithTenantBillingStore(store TenantBillingStore) RegistryOption {
	return func(rc *registryConfig) {
		rc.tenantStore = store
	}
}

// NewClientRegistry initializes all external service clients.
// If cfg.IsTestMode is true or cfg.Environment is "local", the registry is
// populated with stub implementations that log actions without requiring
// real credentials. Otherwise, real clients are initialized with strict
// per-provider timeouts.
//
// SMS is special: Twilio credentials are optional even in production. With
// no account SID configured the registry installs the stub sender, and the
// verification flow falls back to simulated codes.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rc := &registryConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	useStubs := cfg.IsTestMode || cfg.Environment == "local"

	if useStubs {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return newStubRegistry(logger), nil
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
	)
	return newProductionRegistry(cfg, logger, rc)
}

// newStubRegistry creates a ClientRegistry populated entirely with stub
// implementations, so the application boots locally without any external
// service credentials.
func newStubRegistry(logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")

	return &ClientRegistry{
		StubBilling:    NewStubSeatBilling(stubLogger),
		Email:          NewStubEmailSender(stubLogger),
		SMS:            NewStubSMSSender(stubLogger),
		StripeVerifier: NewStubWebhookVerifier(stubLogger),
	}
}

// newProductionRegistry creates a ClientRegistry with real clients
// configured with strict timeouts and resilience patterns.
func newProductionRegistry(cfg *config.Config, logger *slog.Logger, rc *registryConfig) (*ClientRegistry, error) {
	reg := &ClientRegistry{}

	// Stripe sits on interactive request paths; 20s covers its slowest
	// documented operations.
	stripeHTTPClient := &http.Client{Timeout: 20 * time.Second}
	reg.Stripe = NewStripeClient(stripeHTTPClient, rc.tenantStore, StripeClientConfig{
		SecretKey:   cfg.Billing.StripeSecretKey.Unmask(),
		SeatPriceID: cfg.Billing.SeatPriceID,
		Logger:      logger.With("client", "stripe"),
	})
	reg.StripeVerifier = &StripeVerifier{}

	emailHTTPClient := &http.Client{Timeout: 10 * time.Second}
	reg.Email = NewResendClient(emailHTTPClient, ResendClientConfig{
		APIKey:      cfg.Email.ResendAPIKey.Unmask(),
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Logger:      logger.With("client", "resend"),
	})

	if cfg.SMS.Enabled() {
		smsHTTPClient := &http.Client{Timeout: 10 * time.Second}
		reg.SMS = NewTwilioClient(smsHTTPClient, TwilioClientConfig{
			AccountSID: cfg.SMS.TwilioAccountSID,
			AuthToken:  cfg.SMS.TwilioAuthToken.Unmask(),
			FromNumber: cfg.SMS.TwilioFromNumber,
			Logger:     logger.With("client", "twilio"),
		})
	} else {
		logger.Warn("twilio not configured; SMS delivery runs in simulated mode")
		reg.SMS = NewStubSMSSender(logger.With("client", "sms-simulated"))
	}

	return reg, nil
}
