package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"advisy/internal/external"
	"advisy/internal/plan"
	"advisy/internal/types"
)

type mockWebhookVerifier struct {
	verifyFn func(payload []byte, header, secret string) error
}

func (m *mockWebhookVerifier) Verify(payload []byte, header, secret string) error {
	if m.verifyFn != nil {
		return m.verifyFn(payload, header, secret)
	}
	return nil
}

type mockBillingTenantUpdater struct {
	getFn           func(ctx context.Context, id string) (*types.Tenant, error)
	getByCustomerFn func(ctx context.Context, customerID string) (*types.Tenant, error)

	planUpdates   []planUpdate
	statusUpdates []types.SubscriptionStatus
	refUpdates    []string
	extraUsers    []int
}

type planUpdate struct {
	tenantID      string
	plan          types.PlanTier
	status        types.SubscriptionStatus
	seatsIncluded int
}

func (m *mockBillingTenantUpdater) GetByID(ctx context.Context, id string) (*types.Tenant, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &types.Tenant{ID: id, Plan: types.PlanStart, BillingStatus: types.SubStatusActive}, nil
}

func (m *mockBillingTenantUpdater) GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Tenant, error) {
	if m.getByCustomerFn != nil {
		return m.getByCustomerFn(ctx, customerID)
	}
	return &types.Tenant{ID: "ten_1", Plan: types.PlanPro, StripeCustomerID: customerID, BillingStatus: types.SubStatusActive}, nil
}

func (m *mockBillingTenantUpdater) UpdatePlan(ctx context.Context, id string, tier types.PlanTier, status types.SubscriptionStatus, seatsIncluded int) error {
	m.planUpdates = append(m.planUpdates, planUpdate{id, tier, status, seatsIncluded})
	return nil
}

func (m *mockBillingTenantUpdater) UpdateBillingStatus(ctx context.Context, id string, status types.SubscriptionStatus) error {
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *mockBillingTenantUpdater) UpdateStripeRefs(ctx context.Context, id, customerID, subscriptionID string) error {
	m.refUpdates = append(m.refUpdates, customerID+"/"+subscriptionID)
	return nil
}

func (m *mockBillingTenantUpdater) SetExtraUsers(ctx context.Context, id string, extraUsers int) error {
	m.extraUsers = append(m.extraUsers, extraUsers)
	return nil
}

type mockSubscriptionReader struct {
	getStateFn func(ctx context.Context, subscriptionID string) (*external.SubscriptionState, error)
}

func (m *mockSubscriptionReader) GetSubscriptionState(ctx context.Context, subscriptionID string) (*external.SubscriptionState, error) {
	if m.getStateFn != nil {
		return m.getStateFn(ctx, subscriptionID)
	}
	return &external.SubscriptionState{ID: subscriptionID, Status: types.SubStatusActive, Plan: types.PlanPro}, nil
}

type mockAdminNotifier struct {
	listFn func(ctx context.Context, tenantID string) ([]*types.User, error)
}

func (m *mockAdminNotifier) ListByTenant(ctx context.Context, tenantID string) ([]*types.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, tenantID)
	}
	return nil, nil
}

var (
	_ external.WebhookVerifier = (*mockWebhookVerifier)(nil)
	_ BillingTenantUpdater     = (*mockBillingTenantUpdater)(nil)
	_ SubscriptionReader       = (*mockSubscriptionReader)(nil)
	_ AdminNotifier            = (*mockAdminNotifier)(nil)
)

type webhookMocks struct {
	verifier      *mockWebhookVerifier
	tenants       *mockBillingTenantUpdater
	subscriptions *mockSubscriptionReader
	users         *mockAdminNotifier
	notifications *mockNotificationWriter
}

func newTestWebhookHandler() (*StripeWebhookHandler, *webhookMocks) {
	m := &webhookMocks{
		verifier:      &mockWebhookVerifier{},
		tenants:       &mockBillingTenantUpdater{},
		subscriptions: &mockSubscriptionReader{},
		users:         &mockAdminNotifier{},
		notifications: &mockNotificationWriter{},
	}
	h := NewStripeWebhookHandler(
		m.verifier, m.tenants, m.subscriptions, plan.NewStaticCatalog(),
		m.users, m.notifications, "whsec_test", testLogger(),
	)
	return h, m
}

func postWebhook(h *StripeWebhookHandler, payload string, signed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewBufferString(payload))
	if signed {
		req.Header.Set("Stripe-Signature", "t=123,v1=abc")
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

func eventPayload(eventType, object string) string {
	return fmt.Sprintf(`{"id":"evt_1","type":%q,"created":1756339200,"data":{"object":%s}}`, eventType, object)
}

func TestWebhook_MissingSignature(t *testing.T) {
	h, m := newTestWebhookHandler()
	m.verifier.verifyFn = func(payload []byte, header, secret string) error {
		t.Error("verification must not run without a signature header")
		return nil
	}

	rr := postWebhook(h, `{}`, false)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	h, m := newTestWebhookHandler()
	m.verifier.verifyFn = func(payload []byte, header, secret string) error {
		return errors.New("signature mismatch")
	}

	rr := postWebhook(h, eventPayload(external.EventStripeInvoicePaid, `{}`), true)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(m.tenants.statusUpdates) != 0 {
		t.Error("no state change may happen on a bad signature")
	}
}

func TestWebhook_CheckoutCompleted_ActivatesPlan(t *testing.T) {
	h, m := newTestWebhookHandler()

	payload := eventPayload(external.EventStripeCheckoutCompleted, `{
		"client_reference_id": "ten_1",
		"customer": "cus_42",
		"subscription": "sub_42",
		"metadata": {"plan": "pro"}
	}`)
	rr := postWebhook(h, payload, true)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(m.tenants.refUpdates) != 1 || m.tenants.refUpdates[0] != "cus_42/sub_42" {
		t.Errorf("expected stripe refs stored, got %v", m.tenants.refUpdates)
	}
	if len(m.tenants.planUpdates) != 1 {
		t.Fatalf("expected one plan update, got %d", len(m.tenants.planUpdates))
	}
	up := m.tenants.planUpdates[0]
	if up.tenantID != "ten_1" || up.plan != types.PlanPro || up.status != types.SubStatusActive {
		t.Errorf("unexpected plan update %+v", up)
	}
	if up.seatsIncluded != plan.NewStaticCatalog().Limits(types.PlanPro).IncludedSeats {
		t.Errorf("included seats must come from the catalog, got %d", up.seatsIncluded)
	}
}

func TestWebhook_CheckoutCompleted_ExtraSeatResyncs(t *testing.T) {
	h, m := newTestWebhookHandler()
	m.subscriptions.getStateFn = func(ctx context.Context, subscriptionID string) (*external.SubscriptionState, error) {
		if subscriptionID != "sub_42" {
			t.Errorf("unexpected subscription %q", subscriptionID)
		}
		return &external.SubscriptionState{ID: subscriptionID, Status: types.SubStatusActive, Plan: types.PlanPro, ExtraSeats: 3}, nil
	}

	payload := eventPayload(external.EventStripeCheckoutCompleted, `{
		"client_reference_id": "ten_1",
		"subscription": "sub_42",
		"metadata": {"purpose": "extra_seat"}
	}`)
	rr := postWebhook(h, payload, true)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(m.tenants.extraUsers) != 1 || m.tenants.extraUsers[0] != 3 {
		t.Errorf("expected extra seats synced to 3, got %v", m.tenants.extraUsers)
	}
	if len(m.tenants.planUpdates) != 0 {
		t.Error("an extra-seat checkout must not touch the plan")
	}
}

func TestWebhook_SubscriptionUpdated_SyncsPlanAndSeats(t *testing.T) {
	h, m := newTestWebhookHandler()

	payload := eventPayload(external.EventStripeSubUpdated, `{
		"id": "sub_42",
		"customer": "cus_42",
		"status": "past_due",
		"metadata": {"tenant_id": "ten_1"},
		"items": {"data": [
			{"quantity": 1, "price": {"id": "price_advisy_prime"}},
			{"quantity": 4, "price": {"id": "price_advisy_extra_seat"}}
		]}
	}`)
	rr := postWebhook(h, payload, true)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(m.tenants.planUpdates) != 1 {
		t.Fatalf("expected one plan update, got %d", len(m.tenants.planUpdates))
	}
	up := m.tenants.planUpdates[0]
	if up.plan != types.PlanPrime || up.status != types.SubStatusPastDue {
		t.Errorf("unexpected plan update %+v", up)
	}
	if len(m.tenants.extraUsers) != 1 || m.tenants.extraUsers[0] != 4 {
		t.Errorf("expected 4 extra seats from the seat line, got %v", m.tenants.extraUsers)
	}
}

func TestWebhook_SubscriptionDeleted_MarksCanceled(t *testing.T) {
	h, m := newTestWebhookHandler()

	payload := eventPayload(external.EventStripeSubDeleted, `{
		"id": "sub_42",
		"customer": "cus_42",
		"status": "canceled",
		"metadata": {"tenant_id": "ten_1"},
		"items": {"data": []}
	}`)
	rr := postWebhook(h, payload, true)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(m.tenants.statusUpdates) != 1 || m.tenants.statusUpdates[0] != types.SubStatusCanceled {
		t.Errorf("expected canceled status, got %v", m.tenants.statusUpdates)
	}
}

func TestWebhook_InvoicePaid_RecoversPastDueOnly(t *testing.T) {
	h, m := newTestWebhookHandler()
	status := types.SubStatusPastDue
	m.tenants.getByCustomerFn = func(ctx context.Context, customerID string) (*types.Tenant, error) {
		return &types.Tenant{ID: "ten_1", BillingStatus: status}, nil
	}

	payload := eventPayload(external.EventStripeInvoicePaid, `{"customer": "cus_42"}`)
	rr := postWebhook(h, payload, true)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(m.tenants.statusUpdates) != 1 || m.tenants.statusUpdates[0] != types.SubStatusActive {
		t.Errorf("expected past_due cleared to active, got %v", m.tenants.statusUpdates)
	}

	// An already-active tenant is left alone.
	status = types.SubStatusActive
	rr = postWebhook(h, payload, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(m.tenants.statusUpdates) != 1 {
		t.Errorf("an active tenant must not be touched, got %v", m.tenants.statusUpdates)
	}
}

func TestWebhook_PaymentFailed_AlertsAdmins(t *testing.T) {
	h, m := newTestWebhookHandler()
	m.users.listFn = func(ctx context.Context, tenantID string) ([]*types.User, error) {
		return []*types.User{
			{ID: "usr_owner", Role: types.RoleOwner},
			{ID: "usr_admin", Role: types.RoleAdmin},
			{ID: "usr_advisor", Role: types.RoleAdvisor},
		}, nil
	}

	payload := eventPayload(external.EventStripePaymentFailed, `{"customer": "cus_42"}`)
	rr := postWebhook(h, payload, true)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(m.tenants.statusUpdates) != 1 || m.tenants.statusUpdates[0] != types.SubStatusPastDue {
		t.Errorf("expected past_due status, got %v", m.tenants.statusUpdates)
	}
	if len(m.notifications.created) != 2 {
		t.Fatalf("expected alerts for owner and admin only, got %d", len(m.notifications.created))
	}
	for _, n := range m.notifications.created {
		if n.Kind != types.KindBillingAlert {
			t.Errorf("unexpected kind %s", n.Kind)
		}
		if n.UserID == "usr_advisor" {
			t.Error("advisors must not receive billing alerts")
		}
	}
}

func TestWebhook_ProcessingErrorStillAcks(t *testing.T) {
	h, m := newTestWebhookHandler()
	m.tenants.getByCustomerFn = func(ctx context.Context, customerID string) (*types.Tenant, error) {
		return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "Cabinet introuvable.", nil)
	}

	payload := eventPayload(external.EventStripeInvoicePaid, `{"customer": "cus_unknown"}`)
	rr := postWebhook(h, payload, true)

	if rr.Code != http.StatusOK {
		t.Errorf("a verified event must always be acknowledged, got %d", rr.Code)
	}
}

func TestWebhook_UnknownEventIgnored(t *testing.T) {
	h, m := newTestWebhookHandler()

	rr := postWebhook(h, eventPayload("customer.created", `{}`), true)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if len(m.tenants.planUpdates)+len(m.tenants.statusUpdates)+len(m.tenants.extraUsers) != 0 {
		t.Error("unknown events must not change state")
	}
}

func TestWebhook_UnknownPlanInCheckoutRejectedSilently(t *testing.T) {
	h, m := newTestWebhookHandler()

	payload := eventPayload(external.EventStripeCheckoutCompleted, `{
		"client_reference_id": "ten_1",
		"metadata": {"plan": "platinum"}
	}`)
	rr := postWebhook(h, payload, true)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if len(m.tenants.planUpdates) != 0 {
		t.Error("an unknown plan must not be activated")
	}
}
