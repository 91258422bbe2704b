package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"advisy/internal/types"
)

// twilioAPIBase is the default Twilio API base URL.
// Overridable in tests via TwilioClientConfig.BaseURL.
const twilioAPIBase = "https://api.twilio.com"

// TwilioClientConfig holds the configuration for creating a TwilioClient.
type TwilioClientConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string // Override for testing; defaults to twilioAPIBase
	Logger     *slog.Logger
}

// TwilioClient sends SMS through the Twilio Messages API via BaseClient.
// Recipient numbers are normalized to E.164 before sending; numbers that
// cannot be normalized fail as validation errors, never as provider errors.
type TwilioClient struct {
	base       *BaseClient
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	logger     *slog.Logger
}

// NewTwilioClient creates a new TwilioClient.
func NewTwilioClient(httpClient *http.Client, cfg TwilioClientConfig) *TwilioClient {
	base := NewBaseClient(
		httpClient,
		"twilio",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Advisy/1.0",
		WithSleepFunc(time.Sleep),
	)
	return newTwilioClient(base, cfg)
}

// NewTwilioClientWithBase creates a TwilioClient with a pre-configured
// BaseClient. Useful for tests that control retry behavior.
func NewTwilioClientWithBase(base *BaseClient, cfg TwilioClientConfig) *TwilioClient {
	return newTwilioClient(base, cfg)
}

func newTwilioClient(base *BaseClient, cfg TwilioClientConfig) *TwilioClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twilioAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilioClient{
		base:       base,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// twilioMessageResponse is the JSON body returned on a successful send.
type twilioMessageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// twilioErrorResponse is the JSON error body returned by the Twilio API.
type twilioErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// Twilio error codes for unreachable or malformed destination numbers.
const (
	twilioCodeInvalidTo     = 21211
	twilioCodeNotMobile     = 21614
	twilioCodeUnreachable   = 21612
)

// SendSMS normalizes the recipient number and sends one message. Returns the
// Twilio message SID on success.
func (t *TwilioClient) SendSMS(ctx context.Context, to string, body string) (string, error) {
	normalized, err := types.NormalizePhone(to)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidPhone,
			fmt.Sprintf("invalid recipient phone number: %s", to),
			err,
		)
	}

	params := url.Values{}
	params.Set("To", normalized)
	params.Set("From", t.fromNumber)
	params.Set("Body", body)

	reqURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create Twilio send request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.base.Do(req)
	if err != nil {
		return "", t.wrapTwilioError("SendSMS", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", t.handleErrorResponse(resp, "SendSMS")
	}

	var msg twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Twilio message response",
			err,
		)
	}

	t.logger.InfoContext(ctx, "sms sent",
		"message_sid", msg.SID,
		"status", msg.Status,
	)
	return msg.SID, nil
}

// handleErrorResponse reads a Twilio error response and maps it to a
// types.AppError. Destination-number errors surface as validation failures
// so callers can report the bad number instead of a provider outage.
func (t *TwilioClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamSMS,
			fmt.Sprintf("%s: Twilio returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var tErr twilioErrorResponse
	errMsg := string(body)
	if jsonErr := json.Unmarshal(body, &tErr); jsonErr == nil && tErr.Message != "" {
		errMsg = tErr.Message
	}

	switch {
	case tErr.Code == twilioCodeInvalidTo || tErr.Code == twilioCodeNotMobile || tErr.Code == twilioCodeUnreachable:
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidPhone,
			fmt.Sprintf("%s: Twilio rejected recipient: %s", operation, errMsg),
			nil,
			map[string]any{"twilio_code": tErr.Code},
		)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Twilio rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Twilio server error: %s", operation, errMsg),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamSMS,
			fmt.Sprintf("%s: Twilio error (%d): %s", operation, resp.StatusCode, errMsg),
			nil,
		)
	}
}

// wrapTwilioError wraps a BaseClient transport error with operation context.
func (t *TwilioClient) wrapTwilioError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamSMS,
		fmt.Sprintf("%s: Twilio request failed: %v", operation, err),
		err,
	)
}
