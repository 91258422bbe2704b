package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"advisy/internal/types"
)

// resendAPIBase is the default Resend API base URL.
// Overridable in tests via ResendClientConfig.BaseURL.
const resendAPIBase = "https://api.resend.com"

// ResendClientConfig holds the configuration for creating a ResendClient.
type ResendClientConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	BaseURL     string // Override for testing; defaults to resendAPIBase
	Logger      *slog.Logger
}

// ResendClient sends transactional email through the Resend API via
// BaseClient. The template set is closed: only the templates declared in
// types.AllEmailTemplates can be sent, each rendered server-side from its
// embedded French layout.
type ResendClient struct {
	base        *BaseClient
	apiKey      string
	baseURL     string
	fromAddress string
	fromName    string
	logger      *slog.Logger
}

// NewResendClient creates a new ResendClient. The httpClient timeout should
// be around 10 seconds; email sends run on request paths and in the worker.
func NewResendClient(httpClient *http.Client, cfg ResendClientConfig) *ResendClient {
	base := NewBaseClient(
		httpClient,
		"resend",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Advisy/1.0",
		WithSleepFunc(time.Sleep),
	)
	return newResendClient(base, cfg)
}

// NewResendClientWithBase creates a ResendClient with a pre-configured
// BaseClient. Useful for tests that control retry behavior.
func NewResendClientWithBase(base *BaseClient, cfg ResendClientConfig) *ResendClient {
	return newResendClient(base, cfg)
}

func newResendClient(base *BaseClient, cfg ResendClientConfig) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResendClient{
		base:        base,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		logger:      logger,
	}
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

// resendSendPayload is the Resend POST /emails JSON request body.
type resendSendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendSendResponse struct {
	ID string `json:"id"`
}

// SendTemplate renders the named template and sends it to the recipient.
// Unknown templates are rejected before any network call. Returns the
// provider message id on success.
func (c *ResendClient) SendTemplate(ctx context.Context, req types.EmailRequest) (string, error) {
	subject, html, err := renderEmailTemplate(req.Type, req.RecipientName, req.Data)
	if err != nil {
		return "", err
	}

	payload := resendSendPayload{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromAddress),
		To:      []string{req.RecipientEmail},
		Subject: subject,
		HTML:    html,
		Tags: []resendTag{
			{Name: "template", Value: string(req.Type)},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal Resend send payload",
			err,
		)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create Resend send request",
			err,
		)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return "", c.wrapResendError("SendTemplate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.handleErrorResponse(resp, "SendTemplate")
	}

	var sent resendSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Resend send response",
			err,
		)
	}

	c.logger.InfoContext(ctx, "email sent",
		"template", string(req.Type),
		"message_id", sent.ID,
	)
	return sent.ID, nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// emailLayout is the shared HTML shell for all transactional templates.
const emailLayout = `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2 style="color:#1a2b4b">{{.Heading}}</h2>
<p>Bonjour {{.Name}},</p>
{{.Body}}
<p style="color:#6b7280;font-size:12px">L'&eacute;quipe Advisy</p>
</div>`

type emailDefinition struct {
	subject string
	heading string
	body    string
}

// emailDefinitions is the closed template set. Bodies are HTML fragments
// rendered into emailLayout; {{index .Data "key"}} reads request data.
var emailDefinitions = map[types.EmailTemplate]emailDefinition{
	types.TemplateWelcome: {
		subject: "Bienvenue sur Advisy",
		heading: "Bienvenue !",
		body:    `<p>Votre cabinet est pr&ecirc;t. Connectez-vous pour configurer vos premiers clients.</p>`,
	},
	types.TemplateContractSigned: {
		subject: "Votre contrat a été signé",
		heading: "Contrat signé",
		body:    `<p>Le contrat <strong>{{index .Data "contract_name"}}</strong> a bien &eacute;t&eacute; sign&eacute;.</p>`,
	},
	types.TemplateMandatSigned: {
		subject: "Votre mandat a été signé",
		heading: "Mandat signé",
		body:    `<p>Le mandat <strong>{{index .Data "mandat_name"}}</strong> a bien &eacute;t&eacute; sign&eacute;.</p>`,
	},
	types.TemplateAccountCreated: {
		subject: "Votre compte Advisy a été créé",
		heading: "Compte créé",
		body:    `<p>Un compte a &eacute;t&eacute; cr&eacute;&eacute; pour vous. Utilisez le lien d'invitation pour choisir votre mot de passe.</p>`,
	},
	types.TemplateRelationClient: {
		subject: "Un message de votre conseiller",
		heading: "Message de votre conseiller",
		body:    `<p>{{index .Data "message"}}</p>`,
	},
	types.TemplateOffreSpeciale: {
		subject: "Une offre pour vous",
		heading: "Offre spéciale",
		body:    `<p>{{index .Data "offer"}}</p>`,
	},
}

var layoutTmpl = template.Must(template.New("layout").Parse(emailLayout))

// renderEmailTemplate produces the subject and HTML body for a template.
// A template outside the closed set is a validation error, never a send.
func renderEmailTemplate(t types.EmailTemplate, name string, data map[string]any) (string, string, error) {
	def, ok := emailDefinitions[t]
	if !ok {
		return "", "", types.NewAppError(
			types.ErrCodeValidationTemplate,
			fmt.Sprintf("unknown email template: %s", t),
			nil,
		)
	}

	bodyTmpl, err := template.New(string(t)).Parse(def.body)
	if err != nil {
		return "", "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to parse email body template", err)
	}

	var bodyBuf bytes.Buffer
	if err := bodyTmpl.Execute(&bodyBuf, struct{ Data map[string]any }{Data: data}); err != nil {
		return "", "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render email body", err)
	}

	var out bytes.Buffer
	err = layoutTmpl.Execute(&out, struct {
		Heading string
		Name    string
		Body    template.HTML
	}{
		Heading: def.heading,
		Name:    name,
		Body:    template.HTML(bodyBuf.String()),
	})
	if err != nil {
		return "", "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render email layout", err)
	}

	return def.subject, out.String(), nil
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// resendErrorResponse represents the JSON error body returned by Resend.
type resendErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// handleErrorResponse reads a Resend error response and maps it to a
// types.AppError.
func (c *ResendClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmail,
			fmt.Sprintf("%s: Resend returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var rErr resendErrorResponse
	errMsg := string(body)
	if jsonErr := json.Unmarshal(body, &rErr); jsonErr == nil && rErr.Message != "" {
		errMsg = rErr.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return types.NewAppError(
			types.ErrCodeValidationBody,
			fmt.Sprintf("%s: Resend rejected the payload: %s", operation, errMsg),
			nil,
		)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Resend rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Resend server error: %s", operation, errMsg),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmail,
			fmt.Sprintf("%s: Resend error (%d): %s", operation, resp.StatusCode, errMsg),
			nil,
		)
	}
}

// wrapResendError wraps a BaseClient transport error with operation context.
func (c *ResendClient) wrapResendError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmail,
		fmt.Sprintf("%s: Resend request failed: %v", operation, err),
		err,
	)
}
