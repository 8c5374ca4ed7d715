package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/mindsetalert/backoffice/app/controllers"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
	"github.com/mindsetalert/backoffice/internal/pkg/middleware"
)

// Config carries the HTTP-layer settings of the API.
type Config struct {
	// AuthSecret verifies customer bearer tokens.
	AuthSecret string
	Admin      middleware.AdminSecretConfig

	// ProxyHeader names the header carrying the client address when requests arrive through
	// a proxy listed in TrustedProxies. Other peers cannot choose their rate-limit key.
	ProxyHeader    string
	TrustedProxies []string

	RateLimitMax    int
	RateLimitWindow time.Duration
	// LimiterStorage keeps rate-limit counters; nil keeps them in process memory.
	LimiterStorage fiber.Storage

	// DiscordReturnURL is where the browser lands after linking a Discord account.
	DiscordReturnURL string
}

func ConfigFromEnv() Config {
	return Config{
		AuthSecret: env.GetEnv("AUTH_JWT_SECRET", ""),
		Admin: middleware.AdminSecretConfig{
			Secret:     env.GetEnv("ADMIN_SECRET", ""),
			SecretHash: env.GetEnv("ADMIN_SECRET_HASH", ""),
		},
		ProxyHeader:     env.GetEnv("PROXY_HEADER", ""),
		TrustedProxies:  env.GetList("TRUSTED_PROXIES"),
		RateLimitMax:    env.GetInt("RATE_LIMIT_MAX", 30),
		RateLimitWindow: env.GetDuration("RATE_LIMIT_WINDOW", time.Minute),
		DiscordReturnURL: env.GetEnv("DISCORD_LINK_RETURN_URL",
			strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")+"/member-portal"),
	}
}

// FiberConfig is the app configuration the routes expect: c.IP() only honors ProxyHeader
// when the peer is a trusted proxy.
func FiberConfig(cfg Config) fiber.Config {
	return fiber.Config{
		BodyLimit:               1 << 20,
		ProxyHeader:             cfg.ProxyHeader,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.TrustedProxies,
		EnableIPValidation:      true,
	}
}

// Services are the handlers' dependencies, built once in main.
type Services struct {
	Licenses  controllers.LicenseService
	Admin     controllers.AdminLicenseService
	Account   controllers.AccountLicenses
	Tokens    controllers.AccountTokens
	Downloads controllers.DownloadService
	Billing   controllers.WebhookService
	// DiscordFlow is nil when Discord OAuth is not configured.
	DiscordFlow controllers.DiscordLinkFlow
	Discord     controllers.DiscordAccounts
	Database    controllers.Pinger
	Cache       controllers.Pinger
}

type ApiRouter struct {
	cfg      Config
	services Services
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", controllers.NewHealthController(h.services.Database, h.services.Cache).HandleHealth)

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Installer clients and download links: public, throttled per peer address.
	throttle := h.limiter()
	licenses := controllers.NewLicenseController(h.services.Licenses)
	api.Post("/validate-license", throttle, licenses.HandleValidate)
	api.Post("/deactivate-license", throttle, licenses.HandleDeactivate)
	api.Get("/download", throttle, controllers.NewDownloadController(h.services.Downloads).HandleDownload)

	// Signed-in customers.
	bearer := middleware.BearerAuth(h.cfg.AuthSecret)
	account := controllers.NewAccountController(h.services.Account, h.services.Tokens)
	api.Get("/account/licenses", bearer, middleware.RequireAPISessionAuth, account.HandleListLicenses)
	api.Post("/token/create", bearer, middleware.RequireAPISessionAuth, account.HandleCreateToken)

	discord := controllers.NewDiscordController(h.services.DiscordFlow, h.services.Discord, h.cfg.DiscordReturnURL)
	api.Get("/discord/auth", bearer, middleware.RequireAPISessionAuth, discord.HandleAuth)
	api.Get("/discord/callback", throttle, discord.HandleCallback)

	// Payment processor; authenticated by the payload signature.
	api.Post("/billing/webhook", controllers.NewBillingController(h.services.Billing).HandleStripeWebhook)

	// Operators.
	admin := controllers.NewAdminController(h.services.Admin)
	adminGroup := api.Group("/admin", middleware.AdminSecret(h.cfg.Admin))
	adminGroup.Post("/resend-license-email", admin.HandleResendLicenseEmail)
	adminGroup.Post("/fix-license-expiration", admin.HandleFixLicenseExpiration)
}

func (h ApiRouter) limiter() fiber.Handler {
	limit := h.cfg.RateLimitMax
	if limit <= 0 {
		limit = 30
	}
	window := h.cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		},
		Storage: h.cfg.LimiterStorage,
	})
}

func NewApiRouter(cfg Config, services Services) *ApiRouter {
	return &ApiRouter{cfg: cfg, services: services}
}
