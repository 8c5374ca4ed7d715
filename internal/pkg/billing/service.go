package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
	"github.com/mindsetalert/backoffice/internal/pkg/licensing"
	"github.com/mindsetalert/backoffice/internal/pkg/metrics/counter"
	"github.com/stripe/stripe-go/v81"
	"gorm.io/gorm"
)

var (
	ErrNotConfigured = errors.New("webhook secret is not configured")
	// ErrEventInFlight means another delivery of the same event is being applied right now.
	ErrEventInFlight = errors.New("webhook event is already being processed")
)

// DefaultClaimTimeout is how long a claimed event stays locked before a redelivery may take it over.
const DefaultClaimTimeout = 5 * time.Minute

// LicenseLifecycle is the set of license transitions payment events drive.
type LicenseLifecycle interface {
	Purchase(ctx context.Context, in licensing.PurchaseInput) (*licensing.PurchaseResult, error)
	Renew(ctx context.Context, subscriptionID string) (*models.License, error)
	MarkPaymentFailed(ctx context.Context, subscriptionID string) (*models.License, error)
	Cancel(ctx context.Context, subscriptionID string) (*models.License, error)
}

type Config struct {
	WebhookSecret string
	Tolerance     time.Duration
	ClaimTimeout  time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		Tolerance:     env.GetDuration("STRIPE_SIGNATURE_TOLERANCE", DefaultSignatureTolerance),
		ClaimTimeout:  env.GetDuration("STRIPE_WEBHOOK_CLAIM_TIMEOUT", DefaultClaimTimeout),
	}
}

// Service verifies, records and applies payment processor webhooks.
type Service struct {
	cfg      Config
	repo     Repository
	licenses LicenseLifecycle
	now      func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(cfg Config, repo Repository, licenses LicenseLifecycle) *Service {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultSignatureTolerance
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = DefaultClaimTimeout
	}
	return &Service{cfg: cfg, repo: repo, licenses: licenses, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(cfg Config, db *gorm.DB, licenses LicenseLifecycle) *Service {
	return NewService(cfg, NewRepository(db), licenses)
}

// WithClock replaces the time source used for processing claims.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HandleStripeWebhook verifies and applies one delivery. A returned error means the
// delivery should be retried by the sender; signature and parse errors are not retryable.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, ErrNotConfigured
	}
	event, err := ConstructStripeEvent(payload, signatureHeader, s.cfg.WebhookSecret, s.cfg.Tolerance)
	if err != nil {
		return nil, err
	}
	eventType := string(event.Type)

	_, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}

	result := &WebhookResult{EventID: stored.ProviderEventID, EventType: eventType}
	if !stored.NeedsProcessing() {
		result.Duplicate = true
		result.Outcome = OutcomeDuplicate
		counter.AddBillingWebhookEvent(eventType, OutcomeDuplicate)
		return result, nil
	}

	now := s.now()
	claimed, err := s.repo.ClaimWebhookEvent(ctx, stored.ID, now, now.Add(-s.cfg.ClaimTimeout))
	if err != nil {
		return nil, fmt.Errorf("claim webhook event: %w", err)
	}
	if !claimed {
		log.Infof("[Billing] %s %s is held by another delivery", eventType, stored.ProviderEventID)
		return nil, ErrEventInFlight
	}

	outcome, applyErr := s.apply(ctx, event)
	if applyErr != nil {
		outcome = OutcomeFailed
		log.Errorf("[Billing] %s %s failed: %v", eventType, stored.ProviderEventID, applyErr)
	}
	counter.AddBillingWebhookEvent(eventType, outcome)

	if err := s.MarkWebhookProcessed(ctx, stored.ID, outcome, applyErr); err != nil {
		log.Errorf("[Billing] mark webhook %d processed: %v", stored.ID, err)
	}
	if applyErr != nil {
		return nil, applyErr
	}

	result.Outcome = outcome
	result.Ignored = isIgnored(outcome)
	return result, nil
}

func (s *Service) apply(ctx context.Context, event *stripe.Event) (string, error) {
	switch string(event.Type) {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := decodeObject(event, &session); err != nil {
			return "", err
		}
		res, err := s.licenses.Purchase(ctx, licensing.PurchaseInput{
			Email:          checkoutEmail(&session),
			SubscriptionID: subscriptionID(session.Subscription),
			Plan:           checkoutPlan(&session),
		})
		switch {
		case errors.Is(err, licensing.ErrUnsupportedPlan):
			log.Infof("[Billing] checkout %s plan %q grants no license", session.ID, checkoutPlan(&session))
			return OutcomeUnsupportedPlan, nil
		case errors.Is(err, licensing.ErrEmailRequired):
			log.Warnf("[Billing] checkout %s has no customer email", session.ID)
			return OutcomeMissingEmail, nil
		case err != nil:
			return "", err
		}
		if !res.Created {
			return OutcomeReplayed, nil
		}
		return OutcomePurchased, nil

	case EventInvoicePaymentSucceeded:
		var invoice stripe.Invoice
		if err := decodeObject(event, &invoice); err != nil {
			return "", err
		}
		if isFirstInvoice(&invoice) {
			return OutcomeSkipped, nil
		}
		return s.bySubscription(ctx, subscriptionID(invoice.Subscription), OutcomeRenewed, s.licenses.Renew)

	case EventInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := decodeObject(event, &invoice); err != nil {
			return "", err
		}
		return s.bySubscription(ctx, subscriptionID(invoice.Subscription), OutcomePaymentFailed, s.licenses.MarkPaymentFailed)

	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decodeObject(event, &sub); err != nil {
			return "", err
		}
		return s.bySubscription(ctx, sub.ID, OutcomeCancelled, s.licenses.Cancel)

	default:
		return OutcomeUnhandled, nil
	}
}

func (s *Service) bySubscription(ctx context.Context, subscriptionID, outcome string, transition func(context.Context, string) (*models.License, error)) (string, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return OutcomeUnknownSubscription, nil
	}
	if _, err := transition(ctx, subscriptionID); err != nil {
		if errors.Is(err, licensing.ErrNotFound) {
			log.Warnf("[Billing] no license for subscription %s", subscriptionID)
			return OutcomeUnknownSubscription, nil
		}
		return "", err
	}
	return outcome, nil
}

func isIgnored(outcome string) bool {
	switch outcome {
	case OutcomeSkipped, OutcomeUnhandled, OutcomeUnknownSubscription, OutcomeUnsupportedPlan, OutcomeMissingEmail:
		return true
	default:
		return false
	}
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome string, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, outcome, errMsg)
}
