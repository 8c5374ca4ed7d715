package models

import "time"

// BillingProviderStripe is the only payment processor that mutates license state.
const BillingProviderStripe = "stripe"

// BillingWebhookEvent stores payment processor webhook payloads with deduplication
// metadata so redeliveries are processed at most once successfully.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	Outcome         string     `gorm:"type:varchar(32);default:''" json:"outcome"`
	ProcessedAt     *time.Time `gorm:"type:datetime(3);default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	// ProcessingStartedAt is set while one delivery holds the event; cleared when it finishes.
	ProcessingStartedAt *time.Time `gorm:"type:datetime(3);default:null" json:"processing_started_at,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NeedsProcessing reports whether a stored event has not completed successfully yet.
func (e *BillingWebhookEvent) NeedsProcessing() bool {
	return e.ProcessedAt == nil || e.ProcessingError != ""
}
