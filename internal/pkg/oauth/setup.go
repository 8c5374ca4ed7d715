// Package oauth runs the Discord account-linking flow through goth.
package oauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/discord"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/mindsetalert/backoffice/internal/pkg/env"
)

const (
	providerName   = "discord"
	linkCookieName = "mindset_discord_link"
	linkEmailKey   = "email"
	CallbackPath   = "/api/discord/callback"
)

var ErrNoPendingLink = errors.New("no pending discord link for this browser")

type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	// Storage keeps OAuth state between the redirect and the callback; nil keeps it in memory.
	Storage      fiber.Storage
	SecureCookie bool
}

func ConfigFromEnv() Config {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	return Config{
		ClientID:     strings.TrimSpace(env.GetEnv("DISCORD_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("DISCORD_CLIENT_SECRET", "")),
		CallbackURL:  env.GetEnv("DISCORD_REDIRECT_URI", base+CallbackPath),
		SecureCookie: !env.IsDev(),
	}
}

// DiscordLinker starts the Discord authorization for a signed-in customer and resolves the
// Discord account on the callback. The customer's email travels in its own session cookie
// because the callback is a browser redirect without the bearer token.
type DiscordLinker struct {
	links *session.Store
}

// Setup registers the Discord provider with goth and points goth_fiber at cfg.Storage.
// It returns nil when the client credentials are missing.
func Setup(cfg Config) *DiscordLinker {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		log.Info("[OAuth] DISCORD_CLIENT_ID/DISCORD_CLIENT_SECRET not set, account linking disabled")
		return nil
	}

	goth.UseProviders(discord.New(cfg.ClientID, cfg.ClientSecret, cfg.CallbackURL,
		discord.ScopeIdentify, discord.ScopeEmail))
	gothfiber.GetProviderName = func(*fiber.Ctx) (string, error) { return providerName, nil }

	gothfiber.SessionStore = session.New(session.Config{
		Storage:        cfg.Storage,
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   cfg.SecureCookie,
		Expiration:     15 * time.Minute,
	})
	return &DiscordLinker{
		links: session.New(session.Config{
			Storage:        cfg.Storage,
			KeyLookup:      "cookie:" + linkCookieName,
			CookieHTTPOnly: true,
			CookieSameSite: "Lax",
			CookieSecure:   cfg.SecureCookie,
			Expiration:     15 * time.Minute,
		}),
	}
}

// AuthURL remembers email for the callback and returns the Discord authorization URL.
func (l *DiscordLinker) AuthURL(c *fiber.Ctx, email string) (string, error) {
	sess, err := l.links.Get(c)
	if err != nil {
		return "", fmt.Errorf("link session: %w", err)
	}
	sess.Set(linkEmailKey, email)
	if err := sess.Save(); err != nil {
		return "", fmt.Errorf("link session: %w", err)
	}
	return gothfiber.GetAuthURL(c)
}

// Complete exchanges the authorization code and returns the pending customer email together
// with the Discord user id.
func (l *DiscordLinker) Complete(c *fiber.Ctx) (email, discordUserID string, err error) {
	sess, err := l.links.Get(c)
	if err != nil {
		return "", "", fmt.Errorf("link session: %w", err)
	}
	email, _ = sess.Get(linkEmailKey).(string)
	if email == "" {
		return "", "", ErrNoPendingLink
	}

	user, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		return "", "", fmt.Errorf("discord authorization: %w", err)
	}
	if err := sess.Destroy(); err != nil {
		log.Warnf("[OAuth] clear link session: %v", err)
	}
	return email, user.UserID, nil
}
