package controllers

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/internal/pkg/licensing"
	"github.com/mindsetalert/backoffice/internal/pkg/oauth"
)

type stubLinkFlow struct {
	gotEmail      string
	email         string
	discordUserID string
	err           error
}

func (s *stubLinkFlow) AuthURL(_ *fiber.Ctx, email string) (string, error) {
	s.gotEmail = email
	return "https://discord.example/oauth2/authorize?state=s1", s.err
}

func (s *stubLinkFlow) Complete(*fiber.Ctx) (string, string, error) {
	return s.email, s.discordUserID, s.err
}

type recordingRoles struct {
	granted []string
}

func (r *recordingRoles) Grant(_ context.Context, userID string) error {
	r.granted = append(r.granted, userID)
	return nil
}

func (r *recordingRoles) Revoke(context.Context, string) error { return nil }

func newDiscordApp(flow DiscordLinkFlow, accounts DiscordAccounts) *fiber.App {
	dc := NewDiscordController(flow, accounts, "https://mindset.example/member-portal")
	app := fiber.New()
	app.Get("/api/discord/auth", withCustomer, dc.HandleAuth)
	app.Get("/api/discord/callback", dc.HandleCallback)
	return app
}

func TestHandleDiscordAuth(t *testing.T) {
	flow := &stubLinkFlow{}
	app := newDiscordApp(flow, nil)

	e := &testEnv{app: app}
	resp, body := e.do(t, fiber.MethodGet, "/api/discord/auth", nil, "X-Test-Email", "trader@example.com")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://discord.example/oauth2/authorize?state=s1", body["url"])
	assert.Equal(t, "trader@example.com", flow.gotEmail)

	resp, _ = e.do(t, fiber.MethodGet, "/api/discord/auth?redirect=true", nil, "X-Test-Email", "trader@example.com")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://discord.example/oauth2/authorize?state=s1", resp.Header.Get(fiber.HeaderLocation))

	resp, _ = e.do(t, fiber.MethodGet, "/api/discord/auth", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	unconfigured := &testEnv{app: newDiscordApp(nil, nil)}
	resp, _ = unconfigured.do(t, fiber.MethodGet, "/api/discord/auth", nil, "X-Test-Email", "trader@example.com")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestHandleDiscordCallback_LinksAndGrantsRole(t *testing.T) {
	e := newTestEnv(t)
	roles := &recordingRoles{}
	repos := e.store.Repositories()
	licenses := licensing.NewService(licensing.Deps{
		Clients:  repos.Client,
		Licenses: repos.License,
		Tokens:   e.downloads,
		Mailer:   e.mailer,
		Roles:    roles,
	})
	bought, err := licenses.Purchase(context.Background(), licensing.PurchaseInput{Email: "member@example.com", SubscriptionID: "sub_bundle", Plan: "bundle"})
	require.NoError(t, err)

	app := newDiscordApp(&stubLinkFlow{email: "member@example.com", discordUserID: "discord-77"}, licenses)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/discord/callback?code=abc&state=s1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://mindset.example/member-portal?discord_linked=true", resp.Header.Get(fiber.HeaderLocation))

	assert.Equal(t, []string{"discord-77"}, roles.granted)
	client, ok := e.store.Client(bought.License.ClientID)
	require.True(t, ok)
	assert.Equal(t, "discord-77", client.DiscordUserID)
}

func TestHandleDiscordCallback_Failures(t *testing.T) {
	e := newTestEnv(t)
	e.store.PutClient(models.Client{Email: "plain@example.com"})

	tests := []struct {
		name   string
		flow   DiscordLinkFlow
		query  string
		target string
	}{
		{name: "denied", flow: &stubLinkFlow{}, query: "?error=access_denied", target: "?error=access_denied"},
		{name: "no code", flow: &stubLinkFlow{}, query: "", target: "?error=missing_code"},
		{name: "no pending link", flow: &stubLinkFlow{err: oauth.ErrNoPendingLink}, query: "?code=abc", target: "?error=link_expired"},
		{name: "exchange failed", flow: &stubLinkFlow{err: errors.New("token exchange")}, query: "?code=abc", target: "?error=discord_auth_failed"},
		{name: "unknown customer", flow: &stubLinkFlow{email: "nobody@example.com", discordUserID: "d1"}, query: "?code=abc", target: "?error=no_customer"},
		{name: "no bundle", flow: &stubLinkFlow{email: "plain@example.com", discordUserID: "d2"}, query: "?code=abc", target: "?discord_linked=no_role"},
		{name: "unconfigured", query: "?code=abc", target: "?error=not_configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newDiscordApp(tt.flow, e.licenses)
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/discord/callback"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusFound, resp.StatusCode)
			assert.Equal(t, "https://mindset.example/member-portal"+tt.target, resp.Header.Get(fiber.HeaderLocation))
		})
	}
}
