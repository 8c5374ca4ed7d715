package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	icuser "github.com/mindsetalert/backoffice/internal/pkg/usercontext"
)

const testJWTSecret = "jwt-test-secret"

func signCustomerToken(t *testing.T, secret string, method jwt.SigningMethod, claims customerClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newBearerApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/me", BearerAuth(secret), RequireAPISessionAuth, func(c *fiber.Ctx) error {
		return c.JSON(icuser.GetUserContext(c))
	})
	return app
}

func TestBearerAuth(t *testing.T) {
	app := newBearerApp(testJWTSecret)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	valid := signCustomerToken(t, testJWTSecret, jwt.SigningMethodHS256, customerClaims{
		Email:            " Trader@Example.com ",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: future},
	})

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got icuser.UserContext
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "trader@example.com", got.Email)
	assert.Equal(t, "user-1", got.Subject)
	assert.True(t, got.IsLoggedIn)
	assert.False(t, got.IsAdmin)

	rejected := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"wrong secret": "Bearer " + signCustomerToken(t, "other", jwt.SigningMethodHS256, customerClaims{
			Email: "a@b.c", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
		}),
		"wrong alg": "Bearer " + signCustomerToken(t, testJWTSecret, jwt.SigningMethodHS512, customerClaims{
			Email: "a@b.c", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
		}),
		"expired": "Bearer " + signCustomerToken(t, testJWTSecret, jwt.SigningMethodHS256, customerClaims{
			Email: "a@b.c", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		}),
		"no expiry": "Bearer " + signCustomerToken(t, testJWTSecret, jwt.SigningMethodHS256, customerClaims{Email: "a@b.c"}),
		"no email": "Bearer " + signCustomerToken(t, testJWTSecret, jwt.SigningMethodHS256, customerClaims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
		}),
	}
	for name, header := range rejected {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err, name)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestBearerAuth_Unconfigured(t *testing.T) {
	app := newBearerApp("")
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestRequireAPISessionAuth_WithoutBearer(t *testing.T) {
	app := fiber.New()
	app.Get("/me", RequireAPISessionAuth, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAdminSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name   string
		cfg    AdminSecretConfig
		header string
		want   int
	}{
		{name: "plain match", cfg: AdminSecretConfig{Secret: "plain-secret"}, header: "plain-secret", want: fiber.StatusNoContent},
		{name: "plain mismatch", cfg: AdminSecretConfig{Secret: "plain-secret"}, header: "plain-secre", want: fiber.StatusForbidden},
		{name: "missing header", cfg: AdminSecretConfig{Secret: "plain-secret"}, want: fiber.StatusForbidden},
		{name: "hash match", cfg: AdminSecretConfig{SecretHash: string(hash)}, header: "hashed-secret", want: fiber.StatusNoContent},
		{name: "hash wins over plain", cfg: AdminSecretConfig{Secret: "plain-secret", SecretHash: string(hash)}, header: "plain-secret", want: fiber.StatusForbidden},
		{name: "unconfigured", cfg: AdminSecretConfig{}, header: "anything", want: fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/admin", AdminSecret(tt.cfg), func(c *fiber.Ctx) error {
				assert.True(t, icuser.IsAdmin(c))
				return c.SendStatus(fiber.StatusNoContent)
			})
			req := httptest.NewRequest(fiber.MethodPost, "/admin", nil)
			if tt.header != "" {
				req.Header.Set(AdminSecretHeader, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
