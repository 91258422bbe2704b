package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"advisy/internal/plan"
	"advisy/internal/types"
)

func TestPercentUsed(t *testing.T) {
	assert.Equal(t, 0, PercentUsed(0, 100))
	assert.Equal(t, 69, PercentUsed(69, 100))
	assert.Equal(t, 100, PercentUsed(100, 100))
	assert.Equal(t, 150, PercentUsed(300, 200))
	// Zero limit means the resource is not in the plan; never alerts.
	assert.Equal(t, 0, PercentUsed(50, 0))
}

func TestLevelFor_Thresholds(t *testing.T) {
	tests := []struct {
		percent int
		want    types.AlertLevel
	}{
		{0, types.AlertNone},
		{69, types.AlertNone},
		{84, types.AlertNone},
		{85, types.AlertWarning},
		{99, types.AlertWarning},
		{100, types.AlertCritical},
		{140, types.AlertCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.percent), "percent %d", tt.percent)
	}
}

func TestShowBanner(t *testing.T) {
	below := []types.ConsumptionMetric{
		{Resource: types.ResourceSMS, Used: 69, Limit: 100},
		{Resource: types.ResourceEmails, Used: 10, Limit: 100},
	}
	assert.False(t, ShowBanner(below))

	atThreshold := []types.ConsumptionMetric{
		{Resource: types.ResourceSMS, Used: 70, Limit: 100},
	}
	assert.True(t, ShowBanner(atThreshold))

	oneMaxed := []types.ConsumptionMetric{
		{Resource: types.ResourceSMS, Used: 5, Limit: 100},
		{Resource: types.ResourceAIDocuments, Used: 100, Limit: 100},
	}
	assert.True(t, ShowBanner(oneMaxed))

	assert.False(t, ShowBanner(nil))
}

func TestStorageGBUsed(t *testing.T) {
	assert.Equal(t, 0, storageGBUsed(0))
	// Partial usage rounds up so it is visible against the limit.
	assert.Equal(t, 1, storageGBUsed(1))
	assert.Equal(t, 1, storageGBUsed(999_999_999))
	assert.Equal(t, 1, storageGBUsed(1_000_000_000))
	assert.Equal(t, 4, storageGBUsed(3_500_000_000))
}

// --- Reporter ---

type mockStorageLookup struct {
	mock.Mock
}

func (m *mockStorageLookup) TotalStorageBytes(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

type mockUsageCounters struct {
	mock.Mock
}

func (m *mockUsageCounters) GetAllCounts(ctx context.Context, tenantID string) (map[types.ResourceType]int, error) {
	args := m.Called(ctx, tenantID)
	if c := args.Get(0); c != nil {
		return c.(map[types.ResourceType]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsageCounters) GetCount(ctx context.Context, tenantID string, resource types.ResourceType) (int, error) {
	args := m.Called(ctx, tenantID, resource)
	return args.Int(0), args.Error(1)
}

func newTestReporter(tenants *mockTenantStore, users *mockUserCounter, storage *mockStorageLookup, usage *mockUsageCounters) *Reporter {
	return NewReporter(plan.NewStaticCatalog(), tenants, users, storage, usage)
}

func TestReporter_Snapshot(t *testing.T) {
	tenants := new(mockTenantStore)
	users := new(mockUserCounter)
	storage := new(mockStorageLookup)
	usage := new(mockUsageCounters)
	reporter := newTestReporter(tenants, users, storage, usage)

	tenants.On("GetByID", mock.Anything, "tn_1").Return(&types.Tenant{
		ID:            "tn_1",
		Plan:          types.PlanPro,
		SeatsIncluded: 3,
		ExtraUsers:    1,
	}, nil)
	usage.On("GetAllCounts", mock.Anything, "tn_1").Return(map[types.ResourceType]int{
		types.ResourceSMS:         170, // 85% of the Pro limit of 200
		types.ResourceEmails:      500,
		types.ResourceAIDocuments: 50, // at the Pro limit
	}, nil)
	storage.On("TotalStorageBytes", mock.Anything, "tn_1").Return(int64(3_500_000_000), nil)
	users.On("CountActive", mock.Anything, "tn_1").Return(4, nil)

	snapshot, err := reporter.Snapshot(context.Background(), "tn_1")
	require.NoError(t, err)
	assert.Equal(t, types.PlanPro, snapshot.Plan)
	require.Len(t, snapshot.Metrics, 5)

	byResource := make(map[types.ResourceType]types.ConsumptionMetric)
	for _, m := range snapshot.Metrics {
		byResource[m.Resource] = m
	}

	sms := byResource[types.ResourceSMS]
	assert.Equal(t, 170, sms.Used)
	assert.Equal(t, 200, sms.Limit)
	assert.Equal(t, types.AlertWarning, LevelFor(PercentUsed(sms.Used, sms.Limit)))

	ai := byResource[types.ResourceAIDocuments]
	assert.Equal(t, types.AlertCritical, LevelFor(PercentUsed(ai.Used, ai.Limit)))

	storageMetric := byResource[types.ResourceStorageGB]
	assert.Equal(t, 4, storageMetric.Used)
	assert.Equal(t, 20, storageMetric.Limit)

	seats := byResource[types.ResourceActiveUsers]
	assert.Equal(t, 4, seats.Used)
	assert.Equal(t, 4, seats.Limit)

	assert.Equal(t, 0, snapshot.Seats.AvailableSeats)
	assert.False(t, snapshot.Seats.CanAddUser)
	assert.True(t, ShowBanner(snapshot.Metrics))
}

func TestReporter_CheckLimit_Allowed(t *testing.T) {
	tenants := new(mockTenantStore)
	usage := new(mockUsageCounters)
	reporter := newTestReporter(tenants, new(mockUserCounter), new(mockStorageLookup), usage)

	tenants.On("GetByID", mock.Anything, "tn_1").
		Return(&types.Tenant{ID: "tn_1", Plan: types.PlanPro}, nil)
	usage.On("GetCount", mock.Anything, "tn_1", types.ResourceSMS).Return(150, nil)

	// 150 used + 10 requested against the Pro SMS limit of 200.
	err := reporter.CheckLimit(context.Background(), "tn_1", types.ResourceSMS, 10)
	require.NoError(t, err)
}

func TestReporter_CheckLimit_Exceeded(t *testing.T) {
	tenants := new(mockTenantStore)
	usage := new(mockUsageCounters)
	reporter := newTestReporter(tenants, new(mockUserCounter), new(mockStorageLookup), usage)

	tenants.On("GetByID", mock.Anything, "tn_1").
		Return(&types.Tenant{ID: "tn_1", Plan: types.PlanStart}, nil)
	usage.On("GetCount", mock.Anything, "tn_1", types.ResourceSMS).Return(48, nil)

	// 48 used + 5 requested against the Start SMS limit of 50.
	err := reporter.CheckLimit(context.Background(), "tn_1", types.ResourceSMS, 5)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeLimitResource, appErr.Code)
	assert.Equal(t, 48, appErr.Details["used"])
	assert.Equal(t, 50, appErr.Details["limit"])
	assert.Equal(t, "start", appErr.Details["plan"])
}

func TestReporter_CheckLimit_UnknownResource(t *testing.T) {
	tenants := new(mockTenantStore)
	reporter := newTestReporter(tenants, new(mockUserCounter), new(mockStorageLookup), new(mockUsageCounters))

	tenants.On("GetByID", mock.Anything, "tn_1").
		Return(&types.Tenant{ID: "tn_1", Plan: types.PlanPro}, nil)

	err := reporter.CheckLimit(context.Background(), "tn_1", types.ResourceType("bandwidth"), 1)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
}
