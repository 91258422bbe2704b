package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricDeliveryAttempt  = "DeliveryAttempt"
	MetricDeliverySuccess  = "DeliverySuccess"
	MetricDeliveryFailed   = "DeliveryFailed"
	MetricEmailSent        = "EmailSent"
	MetricSMSSent          = "SMSSent"
	MetricSMSSimulated     = "SMSSimulated"
	MetricSeatAdded        = "SeatAdded"
	MetricConsumptionAlert = "ConsumptionAlert"
	MetricAPILatency       = "APILatency"

	// Dimension Keys
	DimChannel  = "Channel"
	DimTenantID = "TenantID"
	DimTemplate = "Template"
	DimKind     = "EventKind"
	DimResource = "Resource"
	DimProvider = "Provider"

	// Metric Namespace
	MetricNamespace = "Advisy"
)
