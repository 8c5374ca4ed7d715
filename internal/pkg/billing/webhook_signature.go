package billing

import (
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// DefaultSignatureTolerance bounds the age of a signed webhook timestamp.
const DefaultSignatureTolerance = webhook.DefaultTolerance

var (
	ErrSignatureMissing = errors.New("missing signature")
	ErrSignatureInvalid = errors.New("invalid signature")
	ErrSignatureExpired = errors.New("signature timestamp outside tolerance")
)

// ConstructStripeEvent verifies the Stripe-Signature header and decodes the event envelope.
// Account API version pinning is not enforced; only the fields this service reads are decoded.
func ConstructStripeEvent(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration) (*stripe.Event, error) {
	secret := strings.TrimSpace(webhookSecret)
	header := strings.TrimSpace(signatureHeader)
	if secret == "" || header == "" {
		return nil, ErrSignatureMissing
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case err == nil:
	case errors.Is(err, webhook.ErrNotSigned):
		return nil, ErrSignatureMissing
	case errors.Is(err, webhook.ErrInvalidHeader), errors.Is(err, webhook.ErrNoValidSignature):
		return nil, ErrSignatureInvalid
	case errors.Is(err, webhook.ErrTooOld):
		return nil, ErrSignatureExpired
	default:
		// Signature was valid; the body did not decode.
		return nil, ErrMalformedEvent
	}

	if strings.TrimSpace(string(event.Type)) == "" || event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, ErrMalformedEvent
	}
	return &event, nil
}

// SignStripePayload renders a Stripe-Signature header for payload signed at the given time.
// Used by tests and local tooling.
func SignStripePayload(payload []byte, webhookSecret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: at,
	})
	return signed.Header
}
