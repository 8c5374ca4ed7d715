package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mindsetalert/backoffice/internal/pkg/downloads"
)

type DownloadService interface {
	Redeem(ctx context.Context, token string) (*downloads.Redemption, error)
}

// DownloadController redeems signed download links.
type DownloadController struct {
	downloads DownloadService
}

func NewDownloadController(svc DownloadService) *DownloadController {
	return &DownloadController{downloads: svc}
}

// HandleDownload consumes one download of ?token= and sends the caller to the installer.
func (dc *DownloadController) HandleDownload(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "Invalid token")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	redemption, err := dc.downloads.Redeem(ctx, token)
	if err != nil {
		return downloadError(c, err)
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	delivery := redemption.Delivery
	if delivery.RedirectURL != "" {
		return c.Redirect(delivery.RedirectURL, fiber.StatusFound)
	}
	return c.Download(delivery.FilePath, delivery.FileName)
}

func downloadError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, downloads.ErrInvalidToken):
		return jsonError(c, fiber.StatusBadRequest, "Invalid token")
	case errors.Is(err, downloads.ErrLinkExpired):
		return jsonError(c, fiber.StatusGone, "Link expired")
	case errors.Is(err, downloads.ErrTokenNotFound):
		return jsonError(c, fiber.StatusNotFound, "Token not found")
	case errors.Is(err, downloads.ErrFileNotFound):
		return jsonError(c, fiber.StatusNotFound, "File not found")
	case errors.Is(err, downloads.ErrQuotaExceeded):
		return jsonError(c, fiber.StatusTooManyRequests, "Download limit reached")
	case errors.Is(err, downloads.ErrNotConfigured):
		return jsonError(c, fiber.StatusInternalServerError, "Server not configured")
	default:
		log.Errorf("[Downloads] redemption failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "Download failed")
	}
}
