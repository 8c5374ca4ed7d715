package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/mindsetalert/backoffice/app/repository/repotest"
	"github.com/mindsetalert/backoffice/internal/pkg/downloads"
	"github.com/mindsetalert/backoffice/internal/pkg/licensing"
	"github.com/mindsetalert/backoffice/internal/pkg/mail"
	"github.com/mindsetalert/backoffice/internal/pkg/usercontext"
)

const installerBody = "MZ-installer-bytes"

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.DownloadMail
	err  error
}

func (m *recordingMailer) SendDownloadLink(_ context.Context, dm mail.DownloadMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, dm)
	return m.err
}

// testEnv wires the real services over the in-memory store.
type testEnv struct {
	app       *fiber.App
	store     *repotest.Store
	licenses  *licensing.Service
	downloads *downloads.Service
	mailer    *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MindsetTrading_Setup.exe"), []byte(installerBody), 0o644))

	resolver, err := downloads.NewLocalResolver(dir)
	require.NoError(t, err)

	env := &testEnv{store: repotest.NewStore(), mailer: &recordingMailer{}}
	repos := env.store.Repositories()
	env.downloads = downloads.NewService(downloads.Config{
		Secret:        "controller-test-secret",
		MaxDownloads:  2,
		PublicBaseURL: "https://mindset.example",
	}, repos.DownloadToken, resolver)
	env.licenses = licensing.NewService(licensing.Deps{
		Clients:  repos.Client,
		Licenses: repos.License,
		Tokens:   env.downloads,
		Mailer:   env.mailer,
	})

	app := fiber.New()
	lc := NewLicenseController(env.licenses)
	app.Post("/api/validate-license", lc.HandleValidate)
	app.Post("/api/deactivate-license", lc.HandleDeactivate)
	app.Get("/api/download", NewDownloadController(env.downloads).HandleDownload)

	ac := NewAccountController(env.licenses, env.downloads)
	account := app.Group("/api", withCustomer)
	account.Get("/account/licenses", ac.HandleListLicenses)
	account.Post("/token/create", ac.HandleCreateToken)

	admin := NewAdminController(env.licenses)
	app.Post("/api/admin/resend-license-email", admin.HandleResendLicenseEmail)
	app.Post("/api/admin/fix-license-expiration", admin.HandleFixLicenseExpiration)

	env.app = app
	return env
}

// withCustomer stands in for BearerAuth: the X-Test-Email header becomes the caller.
func withCustomer(c *fiber.Ctx) error {
	if email := c.Get("X-Test-Email"); email != "" {
		usercontext.SetUserContext(c, usercontext.UserContext{Email: email, IsLoggedIn: true})
	}
	return c.Next()
}

func (e *testEnv) do(t *testing.T, method, target string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}
