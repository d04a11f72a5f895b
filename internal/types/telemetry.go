package types

// CloudWatch metric and dimension names.
const (
	MetricWebhookVerification = "WebhookVerification"
	MetricWebhookProcessed    = "WebhookProcessed"
	MetricAPILatency          = "APILatency"
	MetricAPIRequestCount     = "APIRequestCount"

	DimResult    = "Result"
	DimEndpoint  = "Endpoint"
	DimMethod    = "Method"
	DimStatus    = "Status"
	DimEventType = "EventType"

	MetricNamespace = "Cashier"
)

// Values of the Result dimension.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)
