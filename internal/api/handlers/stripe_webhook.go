package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"advisy/internal/core"
	"advisy/internal/external"
	"advisy/internal/plan"
	"advisy/internal/types"
)

// maxWebhookBodySize caps a Stripe webhook payload at 64 KB. Stripe payloads
// are small; the limit protects against abuse on an unauthenticated route.
const maxWebhookBodySize = 64 * 1024

// BillingTenantUpdater is the tenant-side billing state the webhook keeps in
// sync with Stripe.
type BillingTenantUpdater interface {
	GetByID(ctx context.Context, id string) (*types.Tenant, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Tenant, error)
	UpdatePlan(ctx context.Context, id string, plan types.PlanTier, status types.SubscriptionStatus, seatsIncluded int) error
	UpdateBillingStatus(ctx context.Context, id string, status types.SubscriptionStatus) error
	UpdateStripeRefs(ctx context.Context, id, customerID, subscriptionID string) error
	SetExtraUsers(ctx context.Context, id string, extraUsers int) error
}

// SubscriptionReader fetches the authoritative subscription state from
// Stripe. Used instead of trusting seat quantities embedded in events.
type SubscriptionReader interface {
	GetSubscriptionState(ctx context.Context, subscriptionID string) (*external.SubscriptionState, error)
}

// AdminNotifier lists tenant members so billing alerts can reach every
// admin, and records the notifications.
type AdminNotifier interface {
	ListByTenant(ctx context.Context, tenantID string) ([]*types.User, error)
}

// StripeWebhookHandler processes asynchronous billing events from Stripe.
// The route is public (Stripe calls it directly); security comes from
// verifying the Stripe-Signature header against the signing secret.
type StripeWebhookHandler struct {
	verifier      external.WebhookVerifier
	tenants       BillingTenantUpdater
	subscriptions SubscriptionReader
	catalog       plan.Catalog
	users         AdminNotifier
	notifications NotificationWriter
	secret        string
	logger        *slog.Logger
}

func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	tenants BillingTenantUpdater,
	subscriptions SubscriptionReader,
	catalog plan.Catalog,
	users AdminNotifier,
	notifications NotificationWriter,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:      verifier,
		tenants:       tenants,
		subscriptions: subscriptions,
		catalog:       catalog,
		users:         users,
		notifications: notifications,
		secret:        secret,
		logger:        logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. Kept separate from
// BillingHandler.RegisterRoutes because this route carries no auth
// middleware.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle reads the payload, verifies the signature, and routes the event.
// After a valid signature the response is always 200: processing errors are
// logged rather than returned, so Stripe does not retry events our side
// failed on internally.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationBody,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenInvalid,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationBody,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)
	case external.EventStripeSubUpdated:
		return h.handleSubscriptionUpdated(ctx, event)
	case external.EventStripeSubDeleted:
		return h.handleSubscriptionDeleted(ctx, event)
	case external.EventStripeInvoicePaid:
		return h.handleInvoicePaid(ctx, event)
	case external.EventStripePaymentFailed:
		return h.handlePaymentFailed(ctx, event)
	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted confirms either a plan signup or an extra-seat
// purchase, distinguished by the session's metadata.purpose.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	session, err := event.checkoutSession()
	if err != nil {
		return fmt.Errorf("checkout.session.completed %s: %w", event.ID, err)
	}
	tenantID := session.ClientReferenceID
	if tenantID == "" {
		tenantID = session.Metadata["tenant_id"]
	}
	if tenantID == "" {
		return fmt.Errorf("checkout.session.completed %s: missing tenant reference", event.ID)
	}

	if session.Metadata["purpose"] == external.CheckoutPurposeExtraSeat {
		return h.resyncSeats(ctx, tenantID, session.Subscription)
	}

	tier := types.PlanTier(session.Metadata["plan"])
	if _, ok := external.PlanToPrice[tier]; !ok {
		return fmt.Errorf("checkout.session.completed %s: unknown plan %q", event.ID, tier)
	}

	if session.Customer != "" || session.Subscription != "" {
		if err := h.tenants.UpdateStripeRefs(ctx, tenantID, session.Customer, session.Subscription); err != nil {
			return fmt.Errorf("UpdateStripeRefs: %w", err)
		}
	}

	included := h.catalog.Limits(tier).IncludedSeats
	h.logger.InfoContext(ctx, "plan activated from checkout",
		"event_id", event.ID,
		"tenant_id", tenantID,
		"plan", string(tier),
		"seats_included", included,
	)
	return h.tenants.UpdatePlan(ctx, tenantID, tier, types.SubStatusActive, included)
}

// handleSubscriptionUpdated re-syncs plan, status, and extra seats from the
// subscription object. Covers upgrades, downgrades, and seat quantity
// changes applied directly on the subscription.
func (h *StripeWebhookHandler) handleSubscriptionUpdated(ctx context.Context, event *stripeWebhookEvent) error {
	sub, err := event.subscription()
	if err != nil {
		return fmt.Errorf("customer.subscription.updated %s: %w", event.ID, err)
	}

	tenant, err := h.tenantForSubscription(ctx, sub)
	if err != nil {
		return fmt.Errorf("customer.subscription.updated %s: %w", event.ID, err)
	}

	// Plan prices identify the tier; any other recurring line on the
	// subscription is the extra-seat price.
	tier := tenant.Plan
	extraSeats := 0
	for _, item := range sub.Items.Data {
		if mapped, ok := external.PriceToPlan[item.Price.ID]; ok {
			tier = mapped
			continue
		}
		extraSeats = item.Quantity
	}

	status := mapSubscriptionStatus(sub.Status)
	included := h.catalog.Limits(tier).IncludedSeats

	h.logger.InfoContext(ctx, "subscription state synced",
		"event_id", event.ID,
		"tenant_id", tenant.ID,
		"plan", string(tier),
		"status", string(status),
		"extra_seats", extraSeats,
	)

	if err := h.tenants.UpdatePlan(ctx, tenant.ID, tier, status, included); err != nil {
		return fmt.Errorf("UpdatePlan: %w", err)
	}
	if err := h.tenants.SetExtraUsers(ctx, tenant.ID, extraSeats); err != nil {
		return fmt.Errorf("SetExtraUsers: %w", err)
	}
	return nil
}

// handleSubscriptionDeleted marks the tenant canceled. The plan column is
// left as is; access decisions key off the billing status.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, event *stripeWebhookEvent) error {
	sub, err := event.subscription()
	if err != nil {
		return fmt.Errorf("customer.subscription.deleted %s: %w", event.ID, err)
	}
	tenant, err := h.tenantForSubscription(ctx, sub)
	if err != nil {
		return fmt.Errorf("customer.subscription.deleted %s: %w", event.ID, err)
	}

	h.logger.InfoContext(ctx, "subscription canceled",
		"event_id", event.ID,
		"tenant_id", tenant.ID,
	)
	return h.tenants.UpdateBillingStatus(ctx, tenant.ID, types.SubStatusCanceled)
}

// handleInvoicePaid clears a past_due tenant back to active.
func (h *StripeWebhookHandler) handleInvoicePaid(ctx context.Context, event *stripeWebhookEvent) error {
	invoice, err := event.invoice()
	if err != nil {
		return fmt.Errorf("invoice.paid %s: %w", event.ID, err)
	}
	tenant, err := h.tenants.GetByStripeCustomerID(ctx, invoice.Customer)
	if err != nil {
		return fmt.Errorf("invoice.paid %s: %w", event.ID, err)
	}

	if tenant.BillingStatus != types.SubStatusPastDue {
		return nil
	}

	h.logger.InfoContext(ctx, "payment recovered",
		"event_id", event.ID,
		"tenant_id", tenant.ID,
	)
	return h.tenants.UpdateBillingStatus(ctx, tenant.ID, types.SubStatusActive)
}

// handlePaymentFailed moves the tenant to past_due and alerts its admins.
func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, event *stripeWebhookEvent) error {
	invoice, err := event.invoice()
	if err != nil {
		return fmt.Errorf("invoice.payment_failed %s: %w", event.ID, err)
	}
	tenant, err := h.tenants.GetByStripeCustomerID(ctx, invoice.Customer)
	if err != nil {
		return fmt.Errorf("invoice.payment_failed %s: %w", event.ID, err)
	}

	h.logger.WarnContext(ctx, "payment failed",
		"event_id", event.ID,
		"tenant_id", tenant.ID,
	)

	if err := h.tenants.UpdateBillingStatus(ctx, tenant.ID, types.SubStatusPastDue); err != nil {
		return fmt.Errorf("UpdateBillingStatus: %w", err)
	}

	h.notifyAdmins(ctx, tenant.ID)
	return nil
}

// notifyAdmins inserts a billing alert for every admin-or-above member.
// Failures are logged; the billing state change already happened.
func (h *StripeWebhookHandler) notifyAdmins(ctx context.Context, tenantID string) {
	if h.users == nil || h.notifications == nil {
		return
	}
	members, err := h.users.ListByTenant(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list members for billing alert",
			"tenant_id", tenantID,
			"error", err,
		)
		return
	}
	for _, member := range members {
		actor := types.Actor{Role: member.Role}
		if !actor.RoleHasAtLeast(types.RoleAdmin) {
			continue
		}
		n := &types.Notification{
			ID:       "ntf_" + uuid.NewString(),
			TenantID: tenantID,
			UserID:   member.ID,
			Kind:     types.KindBillingAlert,
			Title:    "Échec de paiement",
			Message:  "Le dernier paiement de votre abonnement a échoué. Veuillez mettre à jour votre moyen de paiement.",
		}
		if err := h.notifications.Create(ctx, n); err != nil {
			h.logger.ErrorContext(ctx, "failed to insert billing alert",
				"tenant_id", tenantID,
				"user_id", member.ID,
				"error", err,
			)
		}
	}
}

// resyncSeats re-reads the subscription from Stripe after an extra-seat
// checkout and stores the authoritative seat count.
func (h *StripeWebhookHandler) resyncSeats(ctx context.Context, tenantID, subscriptionID string) error {
	if subscriptionID == "" {
		return fmt.Errorf("extra-seat checkout for tenant %s carries no subscription", tenantID)
	}
	state, err := h.subscriptions.GetSubscriptionState(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("GetSubscriptionState: %w", err)
	}

	h.logger.InfoContext(ctx, "extra seats synced from checkout",
		"tenant_id", tenantID,
		"subscription_id", subscriptionID,
		"extra_seats", state.ExtraSeats,
	)
	return h.tenants.SetExtraUsers(ctx, tenantID, state.ExtraSeats)
}

// tenantForSubscription resolves the tenant behind a subscription event,
// preferring the tenant_id metadata stamped at checkout creation and falling
// back to the customer reference.
func (h *StripeWebhookHandler) tenantForSubscription(ctx context.Context, sub *stripeSubscriptionObj) (*types.Tenant, error) {
	if tenantID := sub.Metadata["tenant_id"]; tenantID != "" {
		return h.tenants.GetByID(ctx, tenantID)
	}
	if sub.Customer != "" {
		return h.tenants.GetByStripeCustomerID(ctx, sub.Customer)
	}
	return nil, fmt.Errorf("subscription %s carries neither tenant metadata nor a customer", sub.ID)
}

// ---------------------------------------------------------------------------
// Stripe event parsing
// ---------------------------------------------------------------------------

// stripeWebhookEvent is a minimal projection of a Stripe event, limited to
// the fields routing and processing need. The full stripe.Event type stays
// out of the handler so tests can build payloads by hand.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSessionObj struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscriptionObj struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Items    stripeSubItems    `json:"items"`
}

type stripeSubItems struct {
	Data []stripeSubItem `json:"data"`
}

type stripeSubItem struct {
	Quantity int            `json:"quantity"`
	Price    stripeSubPrice `json:"price"`
}

type stripeSubPrice struct {
	ID string `json:"id"`
}

type stripeInvoiceObj struct {
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

func (e *stripeWebhookEvent) object() (json.RawMessage, error) {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("event data: %w", err)
	}
	return data.Object, nil
}

func (e *stripeWebhookEvent) checkoutSession() (*stripeCheckoutSessionObj, error) {
	obj, err := e.object()
	if err != nil {
		return nil, err
	}
	var session stripeCheckoutSessionObj
	if err := json.Unmarshal(obj, &session); err != nil {
		return nil, fmt.Errorf("checkout session object: %w", err)
	}
	return &session, nil
}

func (e *stripeWebhookEvent) subscription() (*stripeSubscriptionObj, error) {
	obj, err := e.object()
	if err != nil {
		return nil, err
	}
	var sub stripeSubscriptionObj
	if err := json.Unmarshal(obj, &sub); err != nil {
		return nil, fmt.Errorf("subscription object: %w", err)
	}
	return &sub, nil
}

func (e *stripeWebhookEvent) invoice() (*stripeInvoiceObj, error) {
	obj, err := e.object()
	if err != nil {
		return nil, err
	}
	var invoice stripeInvoiceObj
	if err := json.Unmarshal(obj, &invoice); err != nil {
		return nil, fmt.Errorf("invoice object: %w", err)
	}
	return &invoice, nil
}

// mapSubscriptionStatus narrows a raw Stripe status string to the local
// enum. Unknown values pass through so new Stripe states are at least
// recorded verbatim.
func mapSubscriptionStatus(status string) types.SubscriptionStatus {
	switch status {
	case "active":
		return types.SubStatusActive
	case "trialing":
		return types.SubStatusTrialing
	case "past_due":
		return types.SubStatusPastDue
	case "canceled":
		return types.SubStatusCanceled
	case "incomplete":
		return types.SubStatusIncomplete
	case "incomplete_expired":
		return types.SubStatusIncompleteExpired
	case "unpaid":
		return types.SubStatusUnpaid
	default:
		return types.SubscriptionStatus(status)
	}
}
