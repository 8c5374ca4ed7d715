package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mindsetalert/backoffice/app/models"
	icuser "github.com/mindsetalert/backoffice/internal/pkg/usercontext"
)

// customerClaims is the access token issued by the customer auth backend.
type customerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// BearerAuth authenticates customers with an HS256 access token and stores their email
// in the user context. An empty secret rejects every request.
func BearerAuth(secret string) fiber.Handler {
	key := []byte(strings.TrimSpace(secret))
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(c *fiber.Ctx) error {
		if len(key) == 0 {
			log.Error("[Auth] AUTH_JWT_SECRET is not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server not configured"})
		}

		raw := extractBearerToken(c)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		claims := &customerClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil {
			if !errors.Is(err, jwt.ErrTokenExpired) {
				log.Debugf("[Auth] rejected bearer token: %v", err)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		email := models.NormalizeEmail(claims.Email)
		if email == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		icuser.SetUserContext(c, icuser.UserContext{
			Subject:    claims.Subject,
			Email:      email,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

// RequireAPISessionAuth guards handlers that need an authenticated customer and returns
// JSON 401 when BearerAuth did not run or did not succeed.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Next()
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
