package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mindsetalert/backoffice/internal/pkg/billing"
)

const stripeSignatureHeader = "Stripe-Signature"

type WebhookService interface {
	HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) (*billing.WebhookResult, error)
}

type BillingController struct {
	webhooks WebhookService
}

func NewBillingController(webhooks WebhookService) *BillingController {
	return &BillingController{webhooks: webhooks}
}

// HandleStripeWebhook applies a payment processor event. Non-2xx answers make Stripe redeliver.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(stripeSignatureHeader)

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := bc.webhooks.HandleStripeWebhook(ctx, rawBody, signature)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrNotConfigured):
		log.Error("[Billing] STRIPE_WEBHOOK_SECRET is not configured")
		return jsonError(c, fiber.StatusInternalServerError, "Server not configured")
	case errors.Is(err, billing.ErrSignatureMissing), errors.Is(err, billing.ErrSignatureInvalid), errors.Is(err, billing.ErrSignatureExpired):
		return jsonError(c, fiber.StatusBadRequest, "Webhook Error: "+err.Error())
	case errors.Is(err, billing.ErrMalformedEvent):
		return jsonError(c, fiber.StatusBadRequest, "invalid_payload")
	case errors.Is(err, billing.ErrEventInFlight):
		return jsonError(c, fiber.StatusConflict, "event_in_progress")
	default:
		return jsonError(c, fiber.StatusInternalServerError, "webhook_processing_failed")
	}

	resp := fiber.Map{"ok": true, "received": true}
	if res.Duplicate {
		resp["duplicate"] = true
	}
	if res.Ignored {
		resp["ignored"] = true
	}
	return c.JSON(resp)
}
