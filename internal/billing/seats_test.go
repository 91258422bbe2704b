package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"advisy/internal/types"
)

func TestComputeSeats(t *testing.T) {
	tests := []struct {
		name          string
		included      int
		extra         int
		active        int
		wantTotal     int
		wantAvailable int
		wantCanAdd    bool
	}{
		{"empty seat free", 1, 0, 0, 1, 1, true},
		{"exactly full", 1, 0, 1, 1, 0, false},
		{"overcommitted preserves deficit", 1, 2, 5, 3, -2, false},
		{"extra seats widen capacity", 3, 2, 4, 5, 1, true},
		{"zero config", 0, 0, 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := ComputeSeats(tt.included, tt.extra, tt.active)
			assert.Equal(t, tt.wantTotal, usage.TotalSeats)
			assert.Equal(t, tt.wantAvailable, usage.AvailableSeats)
			assert.Equal(t, tt.wantCanAdd, usage.CanAddUser)
		})
	}
}

// --- Mocks ---

type mockTenantStore struct {
	mock.Mock
}

func (m *mockTenantStore) GetByID(ctx context.Context, id string) (*types.Tenant, error) {
	args := m.Called(ctx, id)
	if t := args.Get(0); t != nil {
		return t.(*types.Tenant), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTenantStore) SetExtraUsers(ctx context.Context, id string, extraUsers int) error {
	args := m.Called(ctx, id, extraUsers)
	return args.Error(0)
}

type mockUserCounter struct {
	mock.Mock
}

func (m *mockUserCounter) CountActive(ctx context.Context, tenantID string) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

type mockSeatBilling struct {
	mock.Mock
}

func (m *mockSeatBilling) UpdateSeatQuantity(ctx context.Context, subscriptionID string, quantity int) error {
	args := m.Called(ctx, subscriptionID, quantity)
	return args.Error(0)
}

func (m *mockSeatBilling) CreateSeatCheckout(ctx context.Context, customerID, tenantID string, urls types.RedirectURLs) (string, error) {
	args := m.Called(ctx, customerID, tenantID, urls)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- SeatService ---

func TestSeatService_Usage(t *testing.T) {
	tenants := new(mockTenantStore)
	users := new(mockUserCounter)
	svc := NewSeatService(tenants, users, new(mockSeatBilling), testLogger())

	tenants.On("GetByID", mock.Anything, "tn_1").
		Return(&types.Tenant{ID: "tn_1", SeatsIncluded: 3, ExtraUsers: 1}, nil)
	users.On("CountActive", mock.Anything, "tn_1").Return(2, nil)

	usage, err := svc.Usage(context.Background(), "tn_1")
	require.NoError(t, err)
	assert.Equal(t, 4, usage.TotalSeats)
	assert.Equal(t, 2, usage.AvailableSeats)
	assert.True(t, usage.CanAddUser)
}

func TestSeatService_CheckCanAdd_SeatAvailable(t *testing.T) {
	tenants := new(mockTenantStore)
	users := new(mockUserCounter)
	svc := NewSeatService(tenants, users, new(mockSeatBilling), testLogger())

	tenants.On("GetByID", mock.Anything, "tn_1").
		Return(&types.Tenant{ID: "tn_1", SeatsIncluded: 1}, nil)
	users.On("CountActive", mock.Anything, "tn_1").Return(0, nil)

	require.NoError(t, svc.CheckCanAdd(context.Background(), "tn_1"))
}

func TestSeatService_CheckCanAdd_Exhausted(t *testing.T) {
	tenants := new(mockTenantStore)
	users := new(mockUserCounter)
	svc := NewSeatService(tenants, users, new(mockSeatBilling), testLogger())

	tenants.On("GetByID", mock.Anything, "tn_1").
		Return(&types.Tenant{ID: "tn_1", SeatsIncluded: 1, ExtraUsers: 2}, nil)
	users.On("CountActive", mock.Anything, "tn_1").Return(5, nil)

	err := svc.CheckCanAdd(context.Background(), "tn_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeLimitSeats, appErr.Code)
	assert.Equal(t, 3, appErr.Details["total_seats"])
	assert.Equal(t, -2, appErr.Details["available_seats"])
}

func TestSeatService_AddSeat_SubscriptionUpdate(t *testing.T) {
	tenants := new(mockTenantStore)
	stripe := new(mockSeatBilling)
	svc := NewSeatService(tenants, new(mockUserCounter), stripe, testLogger())

	tenants.On("GetByID", mock.Anything, "tn_1").Return(&types.Tenant{
		ID:                   "tn_1",
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		SeatsIncluded:        3,
		ExtraUsers:           1,
	}, nil)
	stripe.On("UpdateSeatQuantity", mock.Anything, "sub_1", 2).Return(nil)
	tenants.On("SetExtraUsers", mock.Anything, "tn_1", 2).Return(nil)

	result, err := svc.AddSeat(context.Background(), "tn_1", types.RedirectURLs{})
	require.NoError(t, err)
	assert.Equal(t, types.SeatAddSubscriptionUpdate, result.Method)
	assert.Empty(t, result.URL)
	tenants.AssertExpectations(t)
	stripe.AssertExpectations(t)
}

func TestSeatService_AddSeat_CheckoutWhenNoSubscription(t *testing.T) {
	tenants := new(mockTenantStore)
	stripe := new(mockSeatBilling)
	svc := NewSeatService(tenants, new(mockUserCounter), stripe, testLogger())

	urls := types.RedirectURLs{Success: "https://app.advisy.fr/ok", Cancel: "https://app.advisy.fr/ko"}
	tenants.On("GetByID", mock.Anything, "tn_1").Return(&types.Tenant{
		ID:               "tn_1",
		StripeCustomerID: "cus_1",
	}, nil)
	stripe.On("CreateSeatCheckout", mock.Anything, "cus_1", "tn_1", urls).
		Return("https://checkout.stripe.com/c/pay/cs_test", nil)

	result, err := svc.AddSeat(context.Background(), "tn_1", urls)
	require.NoError(t, err)
	assert.Equal(t, types.SeatAddCheckout, result.Method)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test", result.URL)
	// Extra seat count is only updated by the completion webhook.
	tenants.AssertNotCalled(t, "SetExtraUsers", mock.Anything, mock.Anything, mock.Anything)
}

func TestSeatService_AddSeat_NoBillingAccount(t *testing.T) {
	tenants := new(mockTenantStore)
	svc := NewSeatService(tenants, new(mockUserCounter), new(mockSeatBilling), testLogger())

	tenants.On("GetByID", mock.Anything, "tn_1").Return(&types.Tenant{ID: "tn_1"}, nil)

	_, err := svc.AddSeat(context.Background(), "tn_1", types.RedirectURLs{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

func TestSeatService_AddSeat_StripeFailureNoLocalUpdate(t *testing.T) {
	tenants := new(mockTenantStore)
	stripe := new(mockSeatBilling)
	svc := NewSeatService(tenants, new(mockUserCounter), stripe, testLogger())

	tenants.On("GetByID", mock.Anything, "tn_1").Return(&types.Tenant{
		ID:                   "tn_1",
		StripeSubscriptionID: "sub_1",
		ExtraUsers:           0,
	}, nil)
	stripe.On("UpdateSeatQuantity", mock.Anything, "sub_1", 1).
		Return(types.NewAppError(types.ErrCodeUpstreamStripe, "stripe unavailable", nil))

	_, err := svc.AddSeat(context.Background(), "tn_1", types.RedirectURLs{})
	require.Error(t, err)
	tenants.AssertNotCalled(t, "SetExtraUsers", mock.Anything, mock.Anything, mock.Anything)
}
