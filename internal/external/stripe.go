package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"advisy/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// TenantBillingStore provides the minimal data access StripeClient needs to
// persist the Stripe customer id it resolves or creates. This avoids pulling
// in the full TenantRepository surface.
type TenantBillingStore interface {
	SetStripeCustomerID(ctx context.Context, tenantID, customerID string) error
}

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey   string
	SeatPriceID string // Recurring price for one extra seat
	BaseURL     string // Override for testing; defaults to stripeAPIBase
	Logger      *slog.Logger
}

// SubscriptionState is the billing view of one Stripe subscription, reduced
// to what the tenant row mirrors: plan, status, and purchased extra seats.
// Webhook handlers use it to re-sync local state from Stripe as the source
// of truth.
type SubscriptionState struct {
	ID         string
	Status     types.SubscriptionStatus
	Plan       types.PlanTier
	ExtraSeats int
}

// StripeClient talks to the Stripe REST API directly through BaseClient.
// This routes every request through the platform's resilience infrastructure
// (circuit breaker, retries, error mapping) and makes testing with httptest
// straightforward.
type StripeClient struct {
	base        *BaseClient
	secretKey   string
	baseURL     string
	seatPriceID string
	tenants     TenantBillingStore
	logger      *slog.Logger
}

// NewStripeClient creates a new StripeClient. The httpClient timeout should
// be around 20 seconds; Stripe calls sit on interactive request paths.
func NewStripeClient(
	httpClient *http.Client,
	tenants TenantBillingStore,
	cfg StripeClientConfig,
) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Advisy/1.0",
		WithSleepFunc(time.Sleep),
	)
	return newStripeClient(base, tenants, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Useful for tests that control the BaseClient configuration.
func NewStripeClientWithBase(
	base *BaseClient,
	tenants TenantBillingStore,
	cfg StripeClientConfig,
) *StripeClient {
	return newStripeClient(base, tenants, cfg)
}

func newStripeClient(base *BaseClient, tenants TenantBillingStore, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:        base,
		secretKey:   cfg.SecretKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		seatPriceID: cfg.SeatPriceID,
		tenants:     tenants,
		logger:      logger,
	}
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// EnsureCustomer retrieves or creates the Stripe customer for a tenant.
// Search-first to prevent duplicates:
//  1. Query the Stripe Search API for metadata['tenant_id'] match
//  2. If found, return the existing customer id
//  3. If not found, create a new customer carrying tenant_id metadata
//  4. Persist the customer id on the tenant row
func (s *StripeClient) EnsureCustomer(ctx context.Context, tenantID string, email string) (string, error) {
	searchQuery := fmt.Sprintf("metadata['tenant_id']:'%s'", tenantID)
	params := url.Values{}
	params.Set("query", searchQuery)

	searchResp, err := s.doGet(ctx, "/v1/customers/search", params)
	if err != nil {
		return "", s.wrapStripeError("EnsureCustomer.search", err)
	}
	defer searchResp.Body.Close()

	if searchResp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(searchResp, "EnsureCustomer.search")
	}

	var searchResult stripeSearchResult
	if err := json.NewDecoder(searchResp.Body).Decode(&searchResult); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer search response",
			err,
		)
	}

	if len(searchResult.Data) > 0 {
		customerID := searchResult.Data[0].ID
		if dbErr := s.tenants.SetStripeCustomerID(ctx, tenantID, customerID); dbErr != nil {
			s.logger.WarnContext(ctx, "failed to persist stripe customer id",
				"tenant_id", tenantID,
				"customer_id", customerID,
				"error", dbErr,
			)
		}
		return customerID, nil
	}

	createParams := url.Values{}
	createParams.Set("email", email)
	createParams.Set("metadata[tenant_id]", tenantID)

	createResp, err := s.doPost(ctx, "/v1/customers", createParams)
	if err != nil {
		return "", s.wrapStripeError("EnsureCustomer.create", err)
	}
	defer createResp.Body.Close()

	if createResp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(createResp, "EnsureCustomer.create")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(createResp.Body).Decode(&customer); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer creation response",
			err,
		)
	}

	if dbErr := s.tenants.SetStripeCustomerID(ctx, tenantID, customer.ID); dbErr != nil {
		s.logger.WarnContext(ctx, "failed to persist stripe customer id after creation",
			"tenant_id", tenantID,
			"customer_id", customer.ID,
			"error", dbErr,
		)
	}

	return customer.ID, nil
}

// ---------------------------------------------------------------------------
// Checkout
// ---------------------------------------------------------------------------

// CreatePlanCheckout generates a hosted Checkout Session for a plan
// subscription. client_reference_id carries the tenant id for webhook
// correlation.
func (s *StripeClient) CreatePlanCheckout(
	ctx context.Context,
	tenantID string,
	customerID string,
	plan types.PlanTier,
	urls types.RedirectURLs,
) (checkoutURL string, sessionID string, err error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "subscription")
	params.Set("client_reference_id", tenantID)
	params.Set("success_url", urls.Success)
	params.Set("cancel_url", urls.Cancel)
	params.Set("metadata[tenant_id]", tenantID)
	params.Set("metadata[plan]", string(plan))
	params.Set("line_items[0][price]", stripePriceID(plan))
	params.Set("line_items[0][quantity]", "1")

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", "", s.wrapStripeError("CreatePlanCheckout", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", s.handleErrorResponse(resp, "CreatePlanCheckout")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	return session.URL, session.ID, nil
}

// CreateSeatCheckout opens a Checkout Session for the tenant's first extra
// seat. The seat only counts once the checkout.session.completed webhook
// syncs the subscription back.
func (s *StripeClient) CreateSeatCheckout(
	ctx context.Context,
	customerID string,
	tenantID string,
	urls types.RedirectURLs,
) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "subscription")
	params.Set("client_reference_id", tenantID)
	params.Set("success_url", urls.Success)
	params.Set("cancel_url", urls.Cancel)
	params.Set("metadata[tenant_id]", tenantID)
	params.Set("metadata[purpose]", CheckoutPurposeExtraSeat)
	params.Set("line_items[0][price]", s.seatPriceID)
	params.Set("line_items[0][quantity]", "1")

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreateSeatCheckout", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateSeatCheckout")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	return session.URL, nil
}

// CreatePortalSession generates a Stripe Billing Portal URL for self-serve
// invoice and payment method management.
func (s *StripeClient) CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	resp, err := s.doPost(ctx, "/v1/billing_portal/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreatePortalSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreatePortalSession")
	}

	var session stripePortalSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe portal session response",
			err,
		)
	}

	return session.URL, nil
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

// UpdateSeatQuantity sets the extra-seat line on an existing subscription to
// the given quantity, creating the line if the subscription has none yet.
// Proration applies immediately.
func (s *StripeClient) UpdateSeatQuantity(ctx context.Context, subscriptionID string, quantity int) error {
	sub, err := s.fetchSubscription(ctx, subscriptionID, "UpdateSeatQuantity")
	if err != nil {
		return err
	}

	var seatItemID string
	for _, item := range sub.Items.Data {
		if item.Price.ID == s.seatPriceID {
			seatItemID = item.ID
			break
		}
	}

	params := url.Values{}
	params.Set("quantity", strconv.Itoa(quantity))
	params.Set("proration_behavior", "create_prorations")

	var resp *http.Response
	if seatItemID != "" {
		resp, err = s.doPost(ctx, "/v1/subscription_items/"+seatItemID, params)
	} else {
		params.Set("subscription", subscriptionID)
		params.Set("price", s.seatPriceID)
		resp, err = s.doPost(ctx, "/v1/subscription_items", params)
	}
	if err != nil {
		return s.wrapStripeError("UpdateSeatQuantity", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "UpdateSeatQuantity")
	}

	s.logger.InfoContext(ctx, "seat quantity updated",
		"subscription_id", subscriptionID,
		"quantity", quantity,
	)
	return nil
}

// GetSubscriptionState fetches a subscription and reduces it to the fields
// the tenant row mirrors. The plan comes from the first recognized plan
// price; extra seats from the seat price line quantity.
func (s *StripeClient) GetSubscriptionState(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	sub, err := s.fetchSubscription(ctx, subscriptionID, "GetSubscriptionState")
	if err != nil {
		return nil, err
	}
	return s.reduceSubscription(sub), nil
}

func (s *StripeClient) fetchSubscription(ctx context.Context, subscriptionID, operation string) (*stripeSubscription, error) {
	resp, err := s.doGet(ctx, "/v1/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return nil, s.wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, operation)
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscription response",
			err,
		)
	}
	return &sub, nil
}

func (s *StripeClient) reduceSubscription(sub *stripeSubscription) *SubscriptionState {
	state := &SubscriptionState{
		ID:     sub.ID,
		Status: mapSubscriptionStatus(sub.Status),
		Plan:   types.PlanStart,
	}
	for _, item := range sub.Items.Data {
		if item.Price.ID == s.seatPriceID {
			state.ExtraSeats = item.Quantity
			continue
		}
		if plan, ok := PriceToPlan[item.Price.ID]; ok {
			state.Plan = plan
		}
	}
	return state
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request with a form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
	DocURL      string `json:"doc_url"`
}

// handleErrorResponse reads a Stripe error response and maps it to a types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error into a types.AppError.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	if stripeErr.Code == "card_declined" || stripeErr.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Message),
			nil,
			map[string]any{
				"decline_code": stripeErr.DeclineCode,
				"stripe_code":  stripeErr.Code,
			},
		)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
		)
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with operation context.
// AppErrors from BaseClient (circuit breaker, retries exhausted) already
// carry the right code and pass through untouched.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripeCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type stripeSearchResult struct {
	Data    []stripeCustomer `json:"data"`
	HasMore bool             `json:"has_more"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripePortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeSubscription struct {
	ID       string                  `json:"id"`
	Customer string                  `json:"customer"`
	Status   string                  `json:"status"`
	Items    stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	ID       string      `json:"id"`
	Quantity int         `json:"quantity"`
	Price    stripePrice `json:"price"`
}

type stripePrice struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
	Lookup   string            `json:"lookup_key"`
}

// mapSubscriptionStatus converts a Stripe subscription status string to the
// domain enum. Unknown statuses pass through verbatim.
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

// ---------------------------------------------------------------------------
// Price ID <-> Plan Tier Mapping
// ---------------------------------------------------------------------------

// CheckoutPurposeExtraSeat marks a Checkout Session created for an extra
// seat purchase. The webhook reads it back to tell seat checkouts apart
// from plan signups.
const CheckoutPurposeExtraSeat = "extra_seat"

// PriceToPlan maps Stripe Price IDs to plan tiers. The ids here are lookup
// keys configured on the Stripe account; checkout creation and webhook
// interpretation both go through this table.
var PriceToPlan = map[string]types.PlanTier{
	"price_advisy_start":   types.PlanStart,
	"price_advisy_pro":     types.PlanPro,
	"price_advisy_prime":   types.PlanPrime,
	"price_advisy_founder": types.PlanFounder,
}

// PlanToPrice maps plan tiers to Stripe Price IDs.
var PlanToPrice = map[types.PlanTier]string{
	types.PlanStart:   "price_advisy_start",
	types.PlanPro:     "price_advisy_pro",
	types.PlanPrime:   "price_advisy_prime",
	types.PlanFounder: "price_advisy_founder",
}

// stripePriceID returns the Stripe Price ID for a plan tier.
func stripePriceID(plan types.PlanTier) string {
	if id, ok := PlanToPrice[plan]; ok {
		return id
	}
	return "price_advisy_" + string(plan)
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier validates webhook payloads using stripe-go's signature
// verification: HMAC-SHA256 with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
