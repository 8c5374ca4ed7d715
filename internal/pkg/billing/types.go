package billing

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Outcomes recorded on processed webhook events and in metrics.
const (
	OutcomePurchased           = "purchased"
	OutcomeReplayed            = "replayed"
	OutcomeRenewed             = "renewed"
	OutcomePaymentFailed       = "payment_failed"
	OutcomeCancelled           = "cancelled"
	OutcomeSkipped             = "skipped"
	OutcomeUnhandled           = "unhandled"
	OutcomeUnknownSubscription = "unknown_subscription"
	OutcomeUnsupportedPlan     = "unsupported_plan"
	OutcomeMissingEmail        = "missing_email"
	OutcomeDuplicate           = "duplicate"
	OutcomeFailed              = "failed"
)

// WebhookResult describes how a delivered event was handled.
type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   string
	// Duplicate is set when the event had already been processed successfully.
	Duplicate bool
	// Ignored is set when the event was accepted but changed nothing.
	Ignored bool
}
