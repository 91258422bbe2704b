// Package main is the entry point for the Advisy API server.
//
// It loads configuration, opens the Postgres pool, wires the domain services
// (plan catalog, feature gate, seat accounting, consumption reporting,
// verification codes) and the external client registry (Stripe, Resend,
// Twilio), builds the HTTP server with the core chassis (middleware, routing,
// health checks), and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"advisy/internal/api/handlers"
	"advisy/internal/auth"
	"advisy/internal/billing"
	"advisy/internal/config"
	"advisy/internal/core"
	"advisy/internal/db"
	"advisy/internal/external"
	"advisy/internal/gate"
	"advisy/internal/notify"
	"advisy/internal/plan"
	"advisy/internal/types"
	"advisy/internal/verify"
)

// startupTimeout bounds config loading and the initial database connection.
const startupTimeout = 30 * time.Second

// billingBackend is the full Stripe surface the API needs: plan checkout and
// portal sessions, seat checkout and quantity updates, and subscription
// reads. Both external.StripeClient and external.StubSeatBilling satisfy it,
// so the whole billing path switches between real and stub mode in one place.
type billingBackend interface {
	EnsureCustomer(ctx context.Context, tenantID string, email string) (string, error)
	CreatePlanCheckout(ctx context.Context, tenantID, customerID string, plan types.PlanTier, urls types.RedirectURLs) (string, string, error)
	CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error)
	CreateSeatCheckout(ctx context.Context, customerID, tenantID string, urls types.RedirectURLs) (string, error)
	UpdateSeatQuantity(ctx context.Context, subscriptionID string, quantity int) error
	GetSubscriptionState(ctx context.Context, subscriptionID string) (*external.SubscriptionState, error)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// For local development the SecretProvider may be nil; SSM resolution is
	// bypassed when APP_ENV=local.
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("advisy API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	pool, err := db.NewPool(startupCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	// Repositories share the pool; each scopes its queries by tenant.
	tenantRepo := db.NewTenantRepository(pool)
	userRepo := db.NewUserRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)
	clientRepo := db.NewClientRepository(pool)
	documentRepo := db.NewDocumentRepository(pool)
	familyRepo := db.NewFamilyRepository(pool)
	commissionRepo := db.NewCommissionRepository(pool)
	contactRepo := db.NewContactRepository(pool)
	catalogRepo := db.NewCatalogRepository(pool)
	notificationRepo := db.NewNotificationRepository(pool)
	usageRepo := db.NewUsageRepository(pool)
	verificationRepo := db.NewVerificationRepository(pool)

	catalog := plan.NewStaticCatalog()
	featureGate := gate.New(catalog)

	registry, err := external.NewClientRegistry(cfg, logger,
		external.WithTenantBillingStore(tenantRepo),
	)
	if err != nil {
		return fmt.Errorf("initializing external clients: %w", err)
	}

	var backend billingBackend = registry.Stripe
	if registry.StubBilling != nil {
		backend = registry.StubBilling
	}

	seatSvc := billing.NewSeatService(tenantRepo, userRepo, backend, logger)
	reporter := billing.NewReporter(catalog, tenantRepo, userRepo, documentRepo, usageRepo)

	verifySvc := verify.NewService(verify.Config{
		Store:     verificationRepo,
		Sender:    registry.SMS,
		Simulated: cfg.IsTestMode || !cfg.SMS.Enabled(),
		Logger:    logger.With("component", "verify"),
	})

	// SQS carries notification delivery jobs to the notify worker. The
	// endpoint override points the client at LocalStack during local
	// development.
	awsCfg, err := awsconfig.LoadDefaultConfig(startupCtx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	publisher := notify.NewDeliveryPublisher(sqsClient, cfg.AWS.NotificationQueue, logger)

	// The hub holds the single LISTEN connection and fans notifications out
	// to SSE streams. It reconnects on its own until the context is
	// cancelled at shutdown.
	hub := notify.NewHub(pool, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("notification hub stopped", "error", err)
		}
	}()

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		stopHub()
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	srv.Authenticator = auth.NewSessionAuthenticator(auth.Config{
		Sessions: sessionRepo,
		Users:    userRepo,
		Logger:   logger.With("component", "auth"),
	})
	srv.PlanResolver = plan.NewTenantPlanResolver(tenantRepo, logger)
	srv.HealthProbes = []core.HealthProbe{&poolProbe{pool: pool}}
	srv.Closers = append(srv.Closers,
		func() error { stopHub(); return nil },
		func() error { pool.Close(); return nil },
	)

	billingHandler := handlers.NewBillingHandler(seatSvc, reporter, backend, tenantRepo, catalog, srv.Validator, logger)
	clientHandler := handlers.NewClientHandler(clientRepo, familyRepo, featureGate, srv.Validator, logger)
	documentHandler := handlers.NewDocumentHandler(documentRepo, notificationRepo, publisher, reporter, srv.Validator, logger)
	commissionHandler := handlers.NewCommissionHandler(commissionRepo, featureGate, srv.Validator, logger)
	contactHandler := handlers.NewContactHandler(contactRepo, srv.Validator, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, logger).WithLiveSubscriber(hub)
	userHandler := handlers.NewUserHandler(userRepo, seatSvc, registry.Email, srv.Validator, logger)
	messagingHandler := handlers.NewMessagingHandler(
		registry.Email,
		registry.SMS,
		verifySvc,
		reporter,
		usageRepo,
		userRepo,
		featureGate,
		srv.Validator,
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		billingHandler.RegisterRoutes,
		clientHandler.RegisterRoutes,
		documentHandler.RegisterRoutes,
		commissionHandler.RegisterRoutes,
		contactHandler.RegisterRoutes,
		catalogHandler.RegisterRoutes,
		notificationHandler.RegisterRoutes,
		userHandler.RegisterRoutes,
		messagingHandler.RegisterRoutes,
	)

	// The Stripe webhook authenticates via signature, not bearer token, so
	// it mounts outside the /v1 group.
	webhookHandler := handlers.NewStripeWebhookHandler(
		registry.StripeVerifier,
		tenantRepo,
		backend,
		catalog,
		userRepo,
		notificationRepo,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars, webhookHandler.RegisterRoutes)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// SSE streams stay open well past a normal request; the write
		// deadline must not cut them off.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// poolProbe reports database health for GET /health.
type poolProbe struct {
	pool *pgxpool.Pool
}

func (p *poolProbe) Name() string { return "database" }

func (p *poolProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
