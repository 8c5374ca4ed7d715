package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsetalert/backoffice/internal/pkg/billing"
)

type stubWebhooks struct {
	gotPayload   []byte
	gotSignature string
	result       *billing.WebhookResult
	err          error
}

func (s *stubWebhooks) HandleStripeWebhook(_ context.Context, payload []byte, signature string) (*billing.WebhookResult, error) {
	s.gotPayload = payload
	s.gotSignature = signature
	return s.result, s.err
}

func TestHandleStripeWebhook(t *testing.T) {
	tests := []struct {
		name   string
		result *billing.WebhookResult
		err    error
		status int
		want   map[string]any
	}{
		{name: "applied", result: &billing.WebhookResult{Outcome: billing.OutcomePurchased}, status: fiber.StatusOK, want: map[string]any{"ok": true, "received": true}},
		{name: "duplicate", result: &billing.WebhookResult{Duplicate: true}, status: fiber.StatusOK, want: map[string]any{"ok": true, "received": true, "duplicate": true}},
		{name: "ignored", result: &billing.WebhookResult{Ignored: true}, status: fiber.StatusOK, want: map[string]any{"ok": true, "received": true, "ignored": true}},
		{name: "bad signature", err: billing.ErrSignatureInvalid, status: fiber.StatusBadRequest, want: map[string]any{"error": "Webhook Error: invalid signature"}},
		{name: "stale signature", err: billing.ErrSignatureExpired, status: fiber.StatusBadRequest},
		{name: "malformed", err: billing.ErrMalformedEvent, status: fiber.StatusBadRequest, want: map[string]any{"error": "invalid_payload"}},
		{name: "concurrent delivery", err: billing.ErrEventInFlight, status: fiber.StatusConflict, want: map[string]any{"error": "event_in_progress"}},
		{name: "unconfigured", err: billing.ErrNotConfigured, status: fiber.StatusInternalServerError, want: map[string]any{"error": "Server not configured"}},
		{name: "store down", err: errors.New("connection refused"), status: fiber.StatusInternalServerError, want: map[string]any{"error": "webhook_processing_failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubWebhooks{result: tt.result, err: tt.err}
			app := fiber.New()
			app.Post("/api/billing/webhook", NewBillingController(stub).HandleStripeWebhook)

			payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
			req := httptest.NewRequest(fiber.MethodPost, "/api/billing/webhook", bytes.NewReader(payload))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, payload, stub.gotPayload, "raw body is passed through untouched")
			assert.Equal(t, "t=1,v1=abc", stub.gotSignature)

			if tt.want != nil {
				var body map[string]any
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.want, body)
			}
		})
	}
}
