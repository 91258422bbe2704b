package verify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"advisy/internal/types"
)

// --- Mock IssueStore ---

type mockIssueStore struct {
	mock.Mock
}

func (m *mockIssueStore) Create(ctx context.Context, v *types.VerificationIssue) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *mockIssueStore) GetLatest(ctx context.Context, userID string, vType types.VerificationType) (*types.VerificationIssue, error) {
	args := m.Called(ctx, userID, vType)
	if v := args.Get(0); v != nil {
		return v.(*types.VerificationIssue), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIssueStore) Consume(ctx context.Context, userID string, vType types.VerificationType) error {
	args := m.Called(ctx, userID, vType)
	return args.Error(0)
}

func (m *mockIssueStore) CountRecent(ctx context.Context, userID string, windowMinutes int) (int, error) {
	args := m.Called(ctx, userID, windowMinutes)
	return args.Int(0), args.Error(1)
}

// --- Mock CodeSender ---

type mockCodeSender struct {
	mock.Mock
}

func (m *mockCodeSender) SendSMS(ctx context.Context, to string, body string) (string, error) {
	args := m.Called(ctx, to, body)
	return args.String(0), args.Error(1)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testRequest() types.VerificationRequest {
	return types.VerificationRequest{
		UserID:           "user_1",
		PhoneNumber:      "06 12 34 56 78",
		VerificationType: types.VerificationPhone,
	}
}

func TestIssueCode_SendsNormalizedSMS(t *testing.T) {
	store := new(mockIssueStore)
	sender := new(mockCodeSender)
	now := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

	store.On("CountRecent", mock.Anything, "user_1", throttleWindowMinutes).Return(0, nil)

	var created *types.VerificationIssue
	store.On("Create", mock.Anything, mock.AnythingOfType("*types.VerificationIssue")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*types.VerificationIssue)
		}).Return(nil)

	var sentBody string
	sender.On("SendSMS", mock.Anything, "+33612345678", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			sentBody = args.String(2)
		}).Return("SM_123", nil)

	svc := NewService(Config{
		Store:  store,
		Sender: sender,
		Clock:  fixedClock{now: now},
		Logger: testLogger(),
	})

	result, err := svc.IssueCode(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, result.Simulated)
	assert.Empty(t, result.Code, "code must not leak outside SMS in real delivery mode")
	assert.Equal(t, "+33612345678", result.Phone)
	assert.Equal(t, now.Add(codeTTL), result.ExpiresAt)

	require.NotNil(t, created)
	assert.Equal(t, "user_1", created.UserID)
	assert.Equal(t, types.VerificationPhone, created.Type)
	assert.False(t, created.Simulated)
	assert.NotEmpty(t, created.CodeHash)

	// The SMS body carries the plaintext code and the stored hash matches it.
	require.Regexp(t, `\b\d{6}\b`, sentBody)
	code := regexpFindCode(t, sentBody)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.CodeHash), []byte(code)))

	store.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestIssueCode_SimulatedModeReturnsCode(t *testing.T) {
	store := new(mockIssueStore)
	now := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

	store.On("CountRecent", mock.Anything, "user_1", throttleWindowMinutes).Return(0, nil)

	var created *types.VerificationIssue
	store.On("Create", mock.Anything, mock.AnythingOfType("*types.VerificationIssue")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*types.VerificationIssue)
		}).Return(nil)

	svc := NewService(Config{
		Store:  store,
		Sender: nil, // no provider configured
		Clock:  fixedClock{now: now},
		Logger: testLogger(),
	})

	result, err := svc.IssueCode(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, result.Simulated)
	require.Len(t, result.Code, codeDigits)
	require.NotNil(t, created)
	assert.True(t, created.Simulated)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.CodeHash), []byte(result.Code)))

	store.AssertExpectations(t)
}

func TestIssueCode_InvalidPhoneFailsBeforePersistence(t *testing.T) {
	store := new(mockIssueStore)
	svc := NewService(Config{Store: store, Logger: testLogger()})

	req := testRequest()
	req.PhoneNumber = "not-a-number"

	_, err := svc.IssueCode(context.Background(), req)
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeValidationInvalidPhone, appErr.Code)

	store.AssertNotCalled(t, "CountRecent", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIssueCode_ThrottlesRepeatedRequests(t *testing.T) {
	store := new(mockIssueStore)
	store.On("CountRecent", mock.Anything, "user_1", throttleWindowMinutes).
		Return(throttleMaxIssues, nil)

	svc := NewService(Config{Store: store, Logger: testLogger()})

	_, err := svc.IssueCode(context.Background(), testRequest())
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeRateLimit, appErr.Code)
	assert.Equal(t, throttleWindowMinutes, appErr.Details["retry_after_minutes"])

	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIssueCode_SendFailureSurfaces(t *testing.T) {
	store := new(mockIssueStore)
	sender := new(mockCodeSender)

	store.On("CountRecent", mock.Anything, "user_1", throttleWindowMinutes).Return(0, nil)
	store.On("Create", mock.Anything, mock.Anything).Return(nil)
	sender.On("SendSMS", mock.Anything, mock.Anything, mock.Anything).
		Return("", types.NewAppError(types.ErrCodeUpstreamSMS, "twilio down", nil))

	svc := NewService(Config{Store: store, Sender: sender, Logger: testLogger()})

	_, err := svc.IssueCode(context.Background(), testRequest())
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamSMS, appErr.Code)
}

func TestCheckCode_ConsumesOnMatch(t *testing.T) {
	store := new(mockIssueStore)

	hash, err := bcrypt.GenerateFromPassword([]byte("123456"), bcrypt.MinCost)
	require.NoError(t, err)

	store.On("GetLatest", mock.Anything, "user_1", types.VerificationPortal).
		Return(&types.VerificationIssue{
			ID:       "ver_1",
			UserID:   "user_1",
			Type:     types.VerificationPortal,
			CodeHash: string(hash),
		}, nil)
	store.On("Consume", mock.Anything, "user_1", types.VerificationPortal).Return(nil)

	svc := NewService(Config{Store: store, Logger: testLogger()})

	issue, err := svc.CheckCode(context.Background(), "user_1", types.VerificationPortal, "123456")
	require.NoError(t, err)
	assert.Equal(t, "ver_1", issue.ID)
	store.AssertExpectations(t)
}

func TestCheckCode_MismatchLeavesIssueOutstanding(t *testing.T) {
	store := new(mockIssueStore)

	hash, err := bcrypt.GenerateFromPassword([]byte("123456"), bcrypt.MinCost)
	require.NoError(t, err)

	store.On("GetLatest", mock.Anything, "user_1", types.VerificationPortal).
		Return(&types.VerificationIssue{CodeHash: string(hash)}, nil)

	svc := NewService(Config{Store: store, Logger: testLogger()})

	_, err = svc.CheckCode(context.Background(), "user_1", types.VerificationPortal, "654321")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeValidationCode, appErr.Code)

	store.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckCode_NoOutstandingIssue(t *testing.T) {
	store := new(mockIssueStore)
	store.On("GetLatest", mock.Anything, "user_1", types.VerificationSignature).
		Return(nil, types.NewAppError(types.ErrCodeNotFoundVerification, "no valid verification code", nil))

	svc := NewService(Config{Store: store, Logger: testLogger()})

	_, err := svc.CheckCode(context.Background(), "user_1", types.VerificationSignature, "123456")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeNotFoundVerification, appErr.Code)
}

func TestGenerateCode_AlwaysSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

// regexpFindCode extracts the 6-digit code embedded in an SMS body.
func regexpFindCode(t *testing.T, body string) string {
	t.Helper()
	for i := 0; i+codeDigits <= len(body); i++ {
		candidate := body[i : i+codeDigits]
		allDigits := true
		for _, r := range candidate {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return candidate
		}
	}
	t.Fatal("no 6-digit code found in SMS body")
	return ""
}
