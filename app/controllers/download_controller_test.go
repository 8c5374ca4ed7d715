package controllers

import (
	"context"
	"io"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/internal/pkg/downloads"
	"github.com/mindsetalert/backoffice/internal/pkg/security"
)

func downloadPath(token string) string {
	return "/api/download?token=" + url.QueryEscape(token)
}

func TestHandleDownload_StreamsUntilQuota(t *testing.T) {
	e := newTestEnv(t)
	license := seedActiveLicense(e, "LIC-DOWN-LOAD-0001", nil)
	token, err := e.downloads.Issue(context.Background(), license.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, _ := e.do(t, fiber.MethodGet, downloadPath(token.Token), nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "download %d", i+1)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, installerBody, string(body))
		assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "attachment")
		assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))
	}

	resp, body := e.do(t, fiber.MethodGet, downloadPath(token.Token), nil)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Download limit reached", body["error"])

	stored, _ := e.store.Token(token.Token)
	assert.Equal(t, 2, stored.DownloadsUsed)
}

func TestHandleDownload_Errors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	license := seedActiveLicense(e, "LIC-DOWN-ERRS-0001", nil)

	expired, err := e.downloads.IssueWithExpiry(ctx, license.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	unsaved, err := security.SignDownloadToken(security.DownloadClaims{
		LicenseID: license.ID,
		ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
	}, "controller-test-secret")
	require.NoError(t, err)

	missingFile, err := security.SignDownloadToken(security.DownloadClaims{
		LicenseID: license.ID,
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second).UnixMilli(),
	}, "controller-test-secret")
	require.NoError(t, err)
	e.store.PutToken(models.DownloadToken{
		LicenseID:    license.ID,
		Token:        missingFile,
		FileKey:      "Other_Setup.exe",
		ExpiresAt:    time.Now().Add(time.Hour),
		MaxDownloads: 3,
	})

	tests := []struct {
		name   string
		target string
		status int
		reason string
	}{
		{name: "no token", target: "/api/download", status: fiber.StatusBadRequest, reason: "Invalid token"},
		{name: "garbage", target: downloadPath("abc.def"), status: fiber.StatusBadRequest, reason: "Invalid token"},
		{name: "expired", target: downloadPath(expired.Token), status: fiber.StatusGone, reason: "Link expired"},
		{name: "never stored", target: downloadPath(unsaved), status: fiber.StatusNotFound, reason: "Token not found"},
		{name: "file missing", target: downloadPath(missingFile), status: fiber.StatusNotFound, reason: "File not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := e.do(t, fiber.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.reason, body["error"])
		})
	}
}

type stubDownloads struct {
	redemption *downloads.Redemption
	err        error
}

func (s stubDownloads) Redeem(context.Context, string) (*downloads.Redemption, error) {
	return s.redemption, s.err
}

func TestHandleDownload_RedirectsToObjectStorage(t *testing.T) {
	app := fiber.New()
	app.Get("/api/download", NewDownloadController(stubDownloads{redemption: &downloads.Redemption{
		Token:    &models.DownloadToken{DownloadsUsed: 1},
		Delivery: &downloads.Delivery{RedirectURL: "https://bucket.example/MindsetTrading_Setup.exe?X-Amz-Signature=abc"},
	}}).HandleDownload)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/download?token=t", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://bucket.example/MindsetTrading_Setup.exe?X-Amz-Signature=abc", resp.Header.Get(fiber.HeaderLocation))
}

func TestHandleDownload_Misconfigured(t *testing.T) {
	app := fiber.New()
	app.Get("/api/download", NewDownloadController(stubDownloads{err: downloads.ErrNotConfigured}).HandleDownload)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/download?token=t", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
