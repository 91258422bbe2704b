package types

// PlanTier identifies the billing plan for a tenant (brokerage cabinet).
// Tiers form a total order: start < pro < prime < founder.
type PlanTier string

const (
	PlanStart   PlanTier = "start"
	PlanPro     PlanTier = "pro"
	PlanPrime   PlanTier = "prime"
	PlanFounder PlanTier = "founder"
)

// Module identifies a gated product area. Plan tiers unlock sets of modules.
type Module string

const (
	ModuleClients           Module = "clients"
	ModuleContracts         Module = "contracts"
	ModuleCommissions       Module = "commissions"
	ModuleStatements        Module = "statements"
	ModuleMembership        Module = "membership"
	ModulePayroll           Module = "payroll"
	ModuleEmailing          Module = "emailing"
	ModuleAutomation        Module = "automation"
	ModuleMandateAutomation Module = "mandate_automation"
	ModuleClientPortal      Module = "client_portal"
)

// UserRole defines authorization levels within a tenant.
type UserRole string

const (
	RoleOwner   UserRole = "owner"
	RoleAdmin   UserRole = "admin"
	RoleAdvisor UserRole = "advisor"
)

// UserStatus represents the account lifecycle state of a user.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInvited  UserStatus = "invited"
	UserStatusDisabled UserStatus = "disabled"
)

// SubscriptionStatus represents the state of a billing subscription.
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
)

// SeatAddMethod identifies how a seat addition was (or will be) applied.
type SeatAddMethod string

const (
	// SeatAddSubscriptionUpdate means the subscription quantity was bumped
	// directly and the seat is usable immediately.
	SeatAddSubscriptionUpdate SeatAddMethod = "subscription_update"
	// SeatAddCheckout means the caller must complete a hosted checkout
	// session before the seat becomes available.
	SeatAddCheckout SeatAddMethod = "checkout"
)

// NotificationKind identifies the business event behind a notification.
type NotificationKind string

const (
	KindNewContract  NotificationKind = "new_contract"
	KindNewDocument  NotificationKind = "new_document"
	KindInvoice      NotificationKind = "invoice"
	KindClaimUpdate  NotificationKind = "claim_update"
	KindMessage      NotificationKind = "message"
	KindBillingAlert NotificationKind = "billing_alert"
	KindSystem       NotificationKind = "system"
)

// DeliveryChannel identifies an outbound notification delivery channel.
type DeliveryChannel string

const (
	ChannelEmail DeliveryChannel = "email"
	ChannelSMS   DeliveryChannel = "sms"
)

// EmailTemplate is the closed set of transactional email templates.
// The email dispatcher rejects any value outside this set.
type EmailTemplate string

const (
	TemplateWelcome        EmailTemplate = "welcome"
	TemplateContractSigned EmailTemplate = "contract_signed"
	TemplateMandatSigned   EmailTemplate = "mandat_signed"
	TemplateAccountCreated EmailTemplate = "account_created"
	TemplateRelationClient EmailTemplate = "relation_client"
	TemplateOffreSpeciale  EmailTemplate = "offre_speciale"
)

// AllEmailTemplates lists every valid template, used by request validation.
var AllEmailTemplates = []EmailTemplate{
	TemplateWelcome,
	TemplateContractSigned,
	TemplateMandatSigned,
	TemplateAccountCreated,
	TemplateRelationClient,
	TemplateOffreSpeciale,
}

// VerificationType identifies the purpose of an SMS verification code.
type VerificationType string

const (
	VerificationPhone     VerificationType = "phone"
	VerificationPortal    VerificationType = "portal_access"
	VerificationSignature VerificationType = "signature"
)

// ResourceType identifies a metered, plan-limited resource.
type ResourceType string

const (
	ResourceStorageGB   ResourceType = "storage_gb"
	ResourceSMS         ResourceType = "sms"
	ResourceEmails      ResourceType = "emails"
	ResourceAIDocuments ResourceType = "ai_documents"
	ResourceActiveUsers ResourceType = "active_users"
)

// AlertLevel classifies a consumption metric against its limit.
type AlertLevel string

const (
	AlertNone     AlertLevel = ""
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// PlanResolution tracks whether a tenant's plan has been loaded.
// Gating decisions must not be made while resolution is pending; a failed
// resolution never grants access.
type PlanResolution string

const (
	ResolutionPending  PlanResolution = "pending"
	ResolutionResolved PlanResolution = "resolved"
	ResolutionFailed   PlanResolution = "failed"
)

// DocumentCategory classifies stored client documents.
type DocumentCategory string

const (
	DocCategoryIdentity DocumentCategory = "identity"
	DocCategoryContract DocumentCategory = "contract"
	DocCategoryMandate  DocumentCategory = "mandate"
	DocCategoryStatement DocumentCategory = "statement"
	DocCategoryOther    DocumentCategory = "other"
)

// CommissionStatus represents the reconciliation state of a commission line.
type CommissionStatus string

const (
	CommissionPending    CommissionStatus = "pending"
	CommissionReconciled CommissionStatus = "reconciled"
	CommissionDisputed   CommissionStatus = "disputed"
)
