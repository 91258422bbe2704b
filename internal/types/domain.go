package types

import (
	"time"
)

// Tenant represents a brokerage cabinet, the billable multi-tenant unit that
// owns users, clients, and all client data.
type Tenant struct {
	ID                   string             `json:"id" db:"id"`
	Name                 string             `json:"name" db:"name"`
	BillingEmail         string             `json:"billing_email" db:"billing_email"`
	Plan                 PlanTier           `json:"plan" db:"plan"`
	BillingStatus        SubscriptionStatus `json:"billing_status" db:"billing_status"`
	StripeCustomerID     string             `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"-" db:"stripe_subscription_id"`

	// Seat configuration. Total seats is SeatsIncluded + ExtraUsers; the
	// derived figures live in SeatUsage.
	SeatsIncluded int `json:"seats_included" db:"seats_included"`
	ExtraUsers    int `json:"extra_users" db:"extra_users"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// TenantPlanInfo is the resolved plan snapshot the feature gate evaluates.
// Resolution reflects only whether the snapshot was loaded; a failed load is
// never treated as full access.
type TenantPlanInfo struct {
	TenantID      string             `json:"tenant_id"`
	Plan          PlanTier           `json:"plan"`
	BillingStatus SubscriptionStatus `json:"billing_status"`
	Resolution    PlanResolution     `json:"resolution"`
}

// User represents a human user (advisor or manager) within a tenant.
type User struct {
	ID       string     `json:"id" db:"id"`
	TenantID string     `json:"tenant_id" db:"tenant_id"`
	Email    string     `json:"email" db:"email"`
	Name     string     `json:"name,omitempty" db:"name"`
	Phone    string     `json:"phone,omitempty" db:"phone"`
	Role     UserRole   `json:"role" db:"role"`
	Status   UserStatus `json:"status" db:"status"`

	PhoneVerifiedAt *time.Time `json:"phone_verified_at,omitempty" db:"phone_verified_at"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	DeletedAt   *time.Time `json:"-" db:"deleted_at"`
}

// Client is the core CRM entity: an insured person or prospect managed by a
// tenant's advisors.
type Client struct {
	ID        string `json:"id" db:"id"`
	TenantID  string `json:"tenant_id" db:"tenant_id"`
	AdvisorID string `json:"advisor_id,omitempty" db:"advisor_id"`

	FirstName  string     `json:"first_name" db:"first_name"`
	LastName   string     `json:"last_name" db:"last_name"`
	Email      string     `json:"email,omitempty" db:"email"`
	Phone      string     `json:"phone,omitempty" db:"phone"`
	BirthDate  *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Address    string     `json:"address,omitempty" db:"address"`
	PostalCode string     `json:"postal_code,omitempty" db:"postal_code"`
	City       string     `json:"city,omitempty" db:"city"`
	Notes      string     `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// FamilyMember is a dependent or relative attached to a client record.
type FamilyMember struct {
	ID           string     `json:"id" db:"id"`
	ClientID     string     `json:"client_id" db:"client_id"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Relationship string     `json:"relationship" db:"relationship"`
	BirthDate    *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Document is a file attached to a client (identity, contract, mandate...).
// Extracted text is stored zstd-compressed; the repository handles the codec.
type Document struct {
	ID          string           `json:"id" db:"id"`
	TenantID    string           `json:"tenant_id" db:"tenant_id"`
	ClientID    string           `json:"client_id" db:"client_id"`
	Name        string           `json:"name" db:"name"`
	Category    DocumentCategory `json:"category" db:"category"`
	ContentType string           `json:"content_type" db:"content_type"`
	SizeBytes   int64            `json:"size_bytes" db:"size_bytes"`
	StoragePath string           `json:"-" db:"storage_path"`

	// ExtractedText is the AI-extracted text content, hydrated on demand.
	ExtractedText string `json:"extracted_text,omitempty" db:"-"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// Commission is a commission line reported by an insurance company for a
// contract managed by the tenant.
type Commission struct {
	ID          string           `json:"id" db:"id"`
	TenantID    string           `json:"tenant_id" db:"tenant_id"`
	ClientID    string           `json:"client_id,omitempty" db:"client_id"`
	CompanyID   string           `json:"company_id,omitempty" db:"company_id"`
	ContractRef string           `json:"contract_ref" db:"contract_ref"`
	AmountCents int64            `json:"amount_cents" db:"amount_cents"`
	Rate        float64          `json:"rate" db:"rate"`
	PeriodMonth string           `json:"period_month" db:"period_month"`
	Status      CommissionStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// CompanyContact is a named contact at an insurance company, scoped to a
// tenant's own address book.
type CompanyContact struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	CompanyID string    `json:"company_id" db:"company_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	JobTitle  string    `json:"job_title,omitempty" db:"job_title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// InsuranceCompany is a carrier in the shared insurance catalog.
type InsuranceCompany struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	LogoURL string `json:"logo_url,omitempty" db:"logo_url"`
}

// InsuranceProduct is a product offered by a carrier.
type InsuranceProduct struct {
	ID          string `json:"id" db:"id"`
	CompanyID   string `json:"company_id" db:"company_id"`
	Name        string `json:"name" db:"name"`
	Category    string `json:"category" db:"category"`
	Description string `json:"description,omitempty" db:"description"`
}

// CatalogEntry is a product joined with its carrier for catalog listings.
type CatalogEntry struct {
	Product InsuranceProduct `json:"product"`
	Company InsuranceCompany `json:"company"`
}

// Notification is an in-app notification record scoped to a tenant user.
// ReadAt is nil while unread; the transition to read is one-way.
type Notification struct {
	ID        string           `json:"id" db:"id"`
	TenantID  string           `json:"tenant_id" db:"tenant_id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Kind      NotificationKind `json:"kind" db:"kind"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Payload   PayloadMap       `json:"payload,omitempty" db:"payload"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	ReadAt    *time.Time       `json:"read_at,omitempty" db:"read_at"`
}

// Unread reports whether the notification has not been read.
func (n *Notification) Unread() bool {
	return n.ReadAt == nil
}

// NotificationScope identifies the audience of a notification feed or live
// subscription. UserID empty means tenant-wide.
type NotificationScope struct {
	TenantID string
	UserID   string
}

// Key returns a stable identity for the scope, used to enforce that at most
// one live subscription exists per scope.
func (s NotificationScope) Key() string {
	return s.TenantID + "/" + s.UserID
}

// SeatUsage carries the derived seat figures for a tenant.
// Available can be negative when active users exceed purchased seats; the
// deficit is preserved, never clamped to zero.
type SeatUsage struct {
	TotalSeats     int  `json:"total_seats"`
	AvailableSeats int  `json:"available_seats"`
	CanAddUser     bool `json:"can_add_user"`
}

// SeatAddResult is the outcome of a seat addition request.
// URL is set only for the checkout method.
type SeatAddResult struct {
	Method SeatAddMethod `json:"method"`
	URL    string        `json:"url,omitempty"`
}

// PlanLimits defines the metered resource constraints for a plan tier.
// A limit of 0 means the resource is not available on the plan.
type PlanLimits struct {
	StorageGB        int `json:"storage_gb"`
	SMSMonthly       int `json:"sms_monthly"`
	EmailsMonthly    int `json:"emails_monthly"`
	AIDocsMonthly    int `json:"ai_documents_monthly"`
	IncludedSeats    int `json:"included_seats"`
}

// ConsumptionMetric pairs current usage with the plan limit for one resource.
type ConsumptionMetric struct {
	Resource ResourceType `json:"resource"`
	Used     int          `json:"used"`
	Limit    int          `json:"limit"`
}

// UsageSnapshot combines plan limits with live counters for the usage view.
type UsageSnapshot struct {
	Plan    PlanTier            `json:"plan"`
	Metrics []ConsumptionMetric `json:"metrics"`
	Seats   SeatUsage           `json:"seats"`
}

// RedirectURLs guides the user back from hosted Stripe checkout pages.
type RedirectURLs struct {
	Success string
	Cancel  string
}

// EmailRequest is the contract for the transactional email endpoint.
type EmailRequest struct {
	Type           EmailTemplate  `json:"type" validate:"required"`
	RecipientEmail string         `json:"recipientEmail" validate:"required,email"`
	RecipientName  string         `json:"recipientName" validate:"required"`
	Data           map[string]any `json:"data,omitempty"`
}

// SMSRequest is the contract for the bulk SMS endpoint.
type SMSRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
	Message    string   `json:"message" validate:"required,max=1600"`
}

// VerificationRequest asks for an SMS verification code to be sent.
type VerificationRequest struct {
	UserID           string           `json:"userId" validate:"required"`
	PhoneNumber      string           `json:"phoneNumber" validate:"required"`
	VerificationType VerificationType `json:"verificationType" validate:"required"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

// Session is an authenticated API session. The bearer token itself is never
// stored; only its SHA-256 hash.
type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// VerificationIssue records an issued verification code. The code itself is
// stored only as a bcrypt hash.
type VerificationIssue struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Phone     string           `json:"phone" db:"phone"`
	Type      VerificationType `json:"type" db:"type"`
	CodeHash  string           `json:"-" db:"code_hash"`
	Simulated bool             `json:"simulated" db:"simulated"`
	ExpiresAt time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
