package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	icuser "github.com/mindsetalert/backoffice/internal/pkg/usercontext"
)

const AdminSecretHeader = "X-Admin-Secret"

// AdminSecretConfig holds either a bcrypt hash of the admin secret or the secret itself.
// The hash wins when both are set.
type AdminSecretConfig struct {
	Secret     string
	SecretHash string
}

// AdminSecret protects operator endpoints with a shared secret sent in X-Admin-Secret.
func AdminSecret(cfg AdminSecretConfig) fiber.Handler {
	secret := strings.TrimSpace(cfg.Secret)
	hash := []byte(strings.TrimSpace(cfg.SecretHash))

	return func(c *fiber.Ctx) error {
		if secret == "" && len(hash) == 0 {
			log.Error("[Auth] ADMIN_SECRET is not configured")
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}

		given := strings.TrimSpace(c.Get(AdminSecretHeader))
		if given == "" || !adminSecretMatches(given, secret, hash) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}

		icuser.SetUserContext(c, icuser.UserContext{IsLoggedIn: true, IsAdmin: true})
		return c.Next()
	}
}

func adminSecretMatches(given, secret string, hash []byte) bool {
	if len(hash) > 0 {
		return bcrypt.CompareHashAndPassword(hash, []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
}
