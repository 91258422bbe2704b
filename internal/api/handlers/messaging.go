package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"advisy/internal/core"
	"advisy/internal/gate"
	"advisy/internal/types"
	"advisy/internal/verify"
)

// TemplateMailer sends one transactional email from the closed template set.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, req types.EmailRequest) (string, error)
}

// BulkSMSSender sends one SMS to an already-validated French mobile number.
type BulkSMSSender interface {
	SendSMS(ctx context.Context, to string, body string) (string, error)
}

// CodeIssuer is the verification code lifecycle. Implemented by
// verify.Service.
type CodeIssuer interface {
	IssueCode(ctx context.Context, req types.VerificationRequest) (*verify.IssueResult, error)
	CheckCode(ctx context.Context, userID string, vType types.VerificationType, code string) (*types.VerificationIssue, error)
}

// MeteredLimiter rejects sends that would start past the plan limit.
type MeteredLimiter interface {
	CheckLimit(ctx context.Context, tenantID string, resource types.ResourceType, count int) error
}

// UsageCounter advances the monthly consumption counters.
type UsageCounter interface {
	Increment(ctx context.Context, tenantID string, resource types.ResourceType, delta int) (int, error)
}

// PhoneVerifiedStore marks a user's phone as verified after a successful
// code check.
type PhoneVerifiedStore interface {
	SetPhoneVerified(ctx context.Context, userID, phone string) error
}

// SendEmailRequest wraps types.EmailRequest with the closed-enum template
// check applied at the API boundary.
type SendEmailRequest struct {
	Type           string         `json:"type" validate:"required,email_template"`
	RecipientEmail string         `json:"recipientEmail" validate:"required,email"`
	RecipientName  string         `json:"recipientName" validate:"required"`
	Data           map[string]any `json:"data,omitempty"`
}

// CheckVerificationRequest redeems a previously issued code.
type CheckVerificationRequest struct {
	UserID           string                 `json:"userId" validate:"required"`
	VerificationType types.VerificationType `json:"verificationType" validate:"required,oneof=phone portal_access signature"`
	Code             string                 `json:"code" validate:"required,len=6,numeric"`
}

// SMSResultView reports the per-recipient outcome of a bulk send.
type SMSResultView struct {
	Recipient string `json:"recipient"`
	Sent      bool   `json:"sent"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MessagingHandler serves transactional email, bulk SMS, and SMS
// verification codes.
type MessagingHandler struct {
	mailer    TemplateMailer
	sms       BulkSMSSender
	verifier  CodeIssuer
	limits    MeteredLimiter
	usage     UsageCounter
	users     PhoneVerifiedStore
	gate      *gate.Gate
	validator *core.Validator
	logger    *slog.Logger
}

func NewMessagingHandler(
	mailer TemplateMailer,
	sms BulkSMSSender,
	verifier CodeIssuer,
	limits MeteredLimiter,
	usage UsageCounter,
	users PhoneVerifiedStore,
	g *gate.Gate,
	v *core.Validator,
	l *slog.Logger,
) *MessagingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &MessagingHandler{
		mailer:    mailer,
		sms:       sms,
		verifier:  verifier,
		limits:    limits,
		usage:     usage,
		users:     users,
		gate:      g,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts messaging routes. Template emails require the
// emailing module; verification codes are available on every plan.
func (h *MessagingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/emails", func(r chi.Router) {
		if h.gate != nil {
			r.Use(gate.RequireModule(h.gate, types.ModuleEmailing))
		}
		r.Post("/", h.SendEmail)
	})
	r.Post("/sms", h.SendSMS)
	r.Route("/verifications", func(r chi.Router) {
		r.Post("/", h.IssueVerification)
		r.Post("/check", h.CheckVerification)
	})
}

// SendEmail handles POST /v1/emails.
func (h *MessagingHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req SendEmailRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.limits.CheckLimit(r.Context(), actor.TenantID, types.ResourceEmails, 1); err != nil {
		core.Error(w, r, err)
		return
	}

	messageID, err := h.mailer.SendTemplate(r.Context(), types.EmailRequest{
		Type:           types.EmailTemplate(req.Type),
		RecipientEmail: req.RecipientEmail,
		RecipientName:  req.RecipientName,
		Data:           req.Data,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.usage.Increment(r.Context(), actor.TenantID, types.ResourceEmails, 1); err != nil {
		// The email is already out. Log the counter drift instead of failing
		// the request.
		h.logger.ErrorContext(r.Context(), "failed to count sent email",
			"tenant_id", actor.TenantID,
			"error", err,
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{
		"message_id": messageID,
	}})
}

// SendSMS handles POST /v1/sms. Recipients are attempted independently;
// one invalid number never blocks the rest of the batch.
func (h *MessagingHandler) SendSMS(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req types.SMSRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.limits.CheckLimit(r.Context(), actor.TenantID, types.ResourceSMS, len(req.Recipients)); err != nil {
		core.Error(w, r, err)
		return
	}

	results := make([]SMSResultView, len(req.Recipients))
	sent := 0
	for i, recipient := range req.Recipients {
		results[i].Recipient = recipient
		messageID, err := h.sms.SendSMS(r.Context(), recipient, req.Message)
		if err != nil {
			results[i].Error = errorMessage(err)
			continue
		}
		results[i].Sent = true
		results[i].MessageID = messageID
		sent++
	}

	if sent > 0 {
		if _, err := h.usage.Increment(r.Context(), actor.TenantID, types.ResourceSMS, sent); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to count sent sms",
				"tenant_id", actor.TenantID,
				"sent", sent,
				"error", err,
			)
		}
	}

	h.logger.InfoContext(r.Context(), "bulk sms dispatched",
		"tenant_id", actor.TenantID,
		"requested", len(req.Recipients),
		"sent", sent,
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"sent":    sent,
		"failed":  len(req.Recipients) - sent,
		"results": results,
	}})
}

// IssueVerification handles POST /v1/verifications.
func (h *MessagingHandler) IssueVerification(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	var req types.VerificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.verifier.IssueCode(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: result})
}

// CheckVerification handles POST /v1/verifications/check. A successful
// phone verification is recorded on the user row.
func (h *MessagingHandler) CheckVerification(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	var req CheckVerificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	issue, err := h.verifier.CheckCode(r.Context(), req.UserID, req.VerificationType, req.Code)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.VerificationType == types.VerificationPhone {
		if err := h.users.SetPhoneVerified(r.Context(), req.UserID, issue.Phone); err != nil {
			// The code is already consumed; surface the flag failure in logs
			// rather than failing an otherwise successful verification.
			h.logger.ErrorContext(r.Context(), "failed to flag phone as verified",
				"user_id", req.UserID,
				"error", err,
			)
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{
		"verified": true,
	}})
}

func errorMessage(err error) string {
	if appErr, ok := err.(*types.AppError); ok {
		return appErr.Message
	}
	return err.Error()
}
