package controllers

import (
	"context"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mindsetalert/backoffice/internal/pkg/licensing"
	"github.com/mindsetalert/backoffice/internal/pkg/oauth"
	"github.com/mindsetalert/backoffice/internal/pkg/usercontext"
)

// DiscordLinkFlow is the OAuth round trip with Discord.
type DiscordLinkFlow interface {
	AuthURL(c *fiber.Ctx, email string) (string, error)
	Complete(c *fiber.Ctx) (email, discordUserID string, err error)
}

type DiscordAccounts interface {
	LinkDiscord(ctx context.Context, email, discordUserID string) (*licensing.DiscordLink, error)
}

// DiscordController links a customer's Discord account so bundle roles can be synced.
type DiscordController struct {
	flow      DiscordLinkFlow
	accounts  DiscordAccounts
	returnURL string
}

// NewDiscordController sends browsers back to returnURL after the callback. flow may be nil
// when linking is not configured.
func NewDiscordController(flow DiscordLinkFlow, accounts DiscordAccounts, returnURL string) *DiscordController {
	if returnURL == "" {
		returnURL = "/member-portal"
	}
	return &DiscordController{flow: flow, accounts: accounts, returnURL: returnURL}
}

// HandleAuth starts linking for the signed-in customer. It answers with the authorization
// URL, or redirects there when called with ?redirect=true.
func (dc *DiscordController) HandleAuth(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn || userCtx.Email == "" {
		return jsonError(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	if dc.flow == nil {
		return jsonError(c, fiber.StatusInternalServerError, "Discord linking not configured")
	}

	authURL, err := dc.flow.AuthURL(c, userCtx.Email)
	if err != nil {
		log.Errorf("[Discord] start link for %s: %v", userCtx.Email, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to start Discord authorization")
	}
	if c.QueryBool("redirect") {
		return c.Redirect(authURL, fiber.StatusFound)
	}
	return c.JSON(fiber.Map{"url": authURL})
}

// HandleCallback finishes the authorization Discord redirected back with.
func (dc *DiscordController) HandleCallback(c *fiber.Ctx) error {
	if dc.flow == nil {
		return dc.back(c, "error", "not_configured")
	}
	if c.Query("error") != "" {
		return dc.back(c, "error", "access_denied")
	}
	if c.Query("code") == "" {
		return dc.back(c, "error", "missing_code")
	}

	email, discordUserID, err := dc.flow.Complete(c)
	if errors.Is(err, oauth.ErrNoPendingLink) {
		return dc.back(c, "error", "link_expired")
	}
	if err != nil {
		log.Warnf("[Discord] callback: %v", err)
		return dc.back(c, "error", "discord_auth_failed")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	link, err := dc.accounts.LinkDiscord(ctx, email, discordUserID)
	switch {
	case errors.Is(err, licensing.ErrNoCustomer):
		return dc.back(c, "error", "no_customer")
	case err != nil:
		log.Errorf("[Discord] link %s to %s: %v", discordUserID, email, err)
		return dc.back(c, "error", "server_error")
	}
	if !link.RoleGranted {
		return dc.back(c, "discord_linked", "no_role")
	}
	return dc.back(c, "discord_linked", "true")
}

func (dc *DiscordController) back(c *fiber.Ctx, key, value string) error {
	target, err := url.Parse(dc.returnURL)
	if err != nil {
		return c.Redirect("/", fiber.StatusFound)
	}
	q := target.Query()
	q.Set(key, value)
	target.RawQuery = q.Encode()
	return c.Redirect(target.String(), fiber.StatusFound)
}
