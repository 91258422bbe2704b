// Package verify issues and checks SMS verification codes. Codes are
// 6-digit, short-lived, and stored only as bcrypt hashes. When no SMS
// provider is configured the service runs in simulated mode: the code is
// persisted and logged but never sent, so local and test environments can
// complete verification flows without Twilio credentials.
package verify

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"advisy/internal/types"
)

const (
	codeDigits = 6

	// codeTTL bounds how long an issued code stays redeemable.
	codeTTL = 10 * time.Minute

	// throttleWindowMinutes and throttleMaxIssues cap issuance per user so a
	// stolen session cannot flood a phone number with codes.
	throttleWindowMinutes = 15
	throttleMaxIssues     = 3

	// codeHashCost is deliberately below the password cost: codes expire in
	// minutes and carry only 6 digits of entropy either way.
	codeHashCost = 10
)

// IssueStore is the persistence surface the service needs. Satisfied by
// db.VerificationRepository.
type IssueStore interface {
	Create(ctx context.Context, v *types.VerificationIssue) error
	GetLatest(ctx context.Context, userID string, vType types.VerificationType) (*types.VerificationIssue, error)
	Consume(ctx context.Context, userID string, vType types.VerificationType) error
	CountRecent(ctx context.Context, userID string, windowMinutes int) (int, error)
}

// CodeSender delivers the rendered code message. Satisfied by
// external.SMSSender implementations.
type CodeSender interface {
	SendSMS(ctx context.Context, to string, body string) (string, error)
}

// IssueResult reports the outcome of a code issuance. Code is populated only
// in simulated mode so test environments can complete the flow; in real
// delivery mode the code leaves the process exclusively via SMS.
type IssueResult struct {
	IssueID   string    `json:"issueId"`
	Phone     string    `json:"phone"`
	Simulated bool      `json:"simulated"`
	ExpiresAt time.Time `json:"expiresAt"`
	Code      string    `json:"code,omitempty"`
}

// Service issues and redeems verification codes.
type Service struct {
	store  IssueStore
	sender CodeSender
	clock  types.Clock
	logger *slog.Logger

	// simulated forces logged codes even when a sender is present. Set when
	// the SMS provider is unconfigured.
	simulated bool
}

// Config carries the service dependencies. Sender may be nil; the service
// then runs in simulated mode regardless of the Simulated flag.
type Config struct {
	Store     IssueStore
	Sender    CodeSender
	Simulated bool
	Clock     types.Clock
	Logger    *slog.Logger
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Service{
		store:     cfg.Store,
		sender:    cfg.Sender,
		clock:     clock,
		logger:    logger,
		simulated: cfg.Simulated || cfg.Sender == nil,
	}
}

// IssueCode generates a fresh code for the request, stores its hash, and
// dispatches it. The phone number is normalized before any persistence so
// the stored issue and the SMS recipient always agree.
func (s *Service) IssueCode(ctx context.Context, req types.VerificationRequest) (*IssueResult, error) {
	phone, err := types.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidPhone,
			fmt.Sprintf("invalid phone number %q", req.PhoneNumber),
			err,
		)
	}

	recent, err := s.store.CountRecent(ctx, req.UserID, throttleWindowMinutes)
	if err != nil {
		return nil, err
	}
	if recent >= throttleMaxIssues {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeRateLimit,
			"too many verification codes requested",
			nil,
			map[string]any{
				"retry_after_minutes": throttleWindowMinutes,
			},
		)
	}

	code, err := generateCode()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate verification code", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), codeHashCost)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash verification code", err)
	}

	now := s.clock.Now()
	issue := &types.VerificationIssue{
		ID:        "ver_" + uuid.NewString(),
		UserID:    req.UserID,
		Phone:     phone,
		Type:      req.VerificationType,
		CodeHash:  string(hash),
		Simulated: s.simulated,
		ExpiresAt: now.Add(codeTTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, issue); err != nil {
		return nil, err
	}

	result := &IssueResult{
		IssueID:   issue.ID,
		Phone:     phone,
		Simulated: s.simulated,
		ExpiresAt: issue.ExpiresAt,
	}

	if s.simulated {
		// The code is surfaced in the result and the log line. Nothing is
		// dispatched.
		result.Code = code
		s.logger.InfoContext(ctx, "verification code simulated",
			"issue_id", issue.ID,
			"user_id", req.UserID,
			"verification_type", string(req.VerificationType),
			"phone", phone,
			"code", code,
		)
		return result, nil
	}

	message := fmt.Sprintf("Votre code de vérification Advisy : %s. Il expire dans %d minutes.",
		code, int(codeTTL.Minutes()))
	sid, err := s.sender.SendSMS(ctx, phone, message)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "verification code sent",
		"issue_id", issue.ID,
		"user_id", req.UserID,
		"verification_type", string(req.VerificationType),
		"message_sid", sid,
	)
	return result, nil
}

// CheckCode redeems a code for the user and verification type, returning the
// consumed issue. A successful check consumes every outstanding issue for
// that pair, so a code cannot be replayed. Expired issues are invisible to
// the lookup and report not-found.
func (s *Service) CheckCode(ctx context.Context, userID string, vType types.VerificationType, code string) (*types.VerificationIssue, error) {
	issue, err := s.store.GetLatest(ctx, userID, vType)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(issue.CodeHash), []byte(code)); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationCode,
			"verification code does not match",
			nil,
		)
	}

	if err := s.store.Consume(ctx, userID, vType); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "verification code redeemed",
		"issue_id", issue.ID,
		"user_id", userID,
		"verification_type", string(vType),
	)
	return issue, nil
}

// generateCode draws a uniform 6-digit code from crypto/rand. Leading zeros
// are preserved.
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
