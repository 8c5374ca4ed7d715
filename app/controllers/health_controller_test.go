package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	tests := []struct {
		name     string
		database Pinger
		cache    Pinger
		status   int
		want     map[string]string
	}{
		{name: "all up", database: up, cache: up, status: fiber.StatusOK, want: map[string]string{"database": "ok", "cache": "ok"}},
		{name: "cache down", database: up, cache: down, status: fiber.StatusOK, want: map[string]string{"database": "ok", "cache": "down"}},
		{name: "no cache", database: up, status: fiber.StatusOK, want: map[string]string{"database": "ok", "cache": "disabled"}},
		{name: "database down", database: down, cache: up, status: fiber.StatusServiceUnavailable, want: map[string]string{"database": "down", "cache": "ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/healthz", NewHealthController(tt.database, tt.cache).HandleHealth)

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.want, body)
		})
	}
}
