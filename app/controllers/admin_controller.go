package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mindsetalert/backoffice/internal/pkg/downloads"
	"github.com/mindsetalert/backoffice/internal/pkg/licensing"
)

// AdminLicenseService holds the operator-only license operations.
type AdminLicenseService interface {
	ResendDownloadLink(ctx context.Context, licenseKey string) (*licensing.ResendResult, error)
	FixExpiration(ctx context.Context, licenseKey string) (*licensing.ExpirationFix, error)
}

// AdminController handles support requests guarded by the admin secret
type AdminController struct {
	licenses AdminLicenseService
}

// NewAdminController creates a new admin controller
func NewAdminController(licenses AdminLicenseService) *AdminController {
	return &AdminController{licenses: licenses}
}

type adminLicenseRequest struct {
	LicenseKey       string `json:"licenseKey"`
	LegacyLicenseKey string `json:"license_key"`
}

func (ac *AdminController) bindLicenseKey(c *fiber.Ctx) string {
	var req adminLicenseRequest
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&req)
	}
	return firstNonEmpty(req.LicenseKey, req.LegacyLicenseKey)
}

// HandleResendLicenseEmail mails the owner a working download link again
func (ac *AdminController) HandleResendLicenseEmail(c *fiber.Ctx) error {
	key := ac.bindLicenseKey(c)
	if key == "" {
		return jsonError(c, fiber.StatusBadRequest, "License key required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := ac.licenses.ResendDownloadLink(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, licensing.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "License not found")
	case errors.Is(err, licensing.ErrEmailRequired):
		return jsonError(c, fiber.StatusBadRequest, "No email found for this license")
	case errors.Is(err, licensing.ErrMailFailed):
		return ac.handleError(c, fiber.StatusBadGateway, "Failed to send email", err)
	case errors.Is(err, downloads.ErrNotConfigured):
		return ac.handleError(c, fiber.StatusInternalServerError, "Server not configured", err)
	default:
		return ac.handleError(c, fiber.StatusInternalServerError, "Internal server error", err)
	}

	log.Infof("[Admin] resent download link for %s to %s", res.LicenseKey, res.SentTo)
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Email sent successfully",
		"sentTo":     res.SentTo,
		"licenseKey": res.LicenseKey,
	})
}

// HandleFixLicenseExpiration recomputes expires_at from the license start date
func (ac *AdminController) HandleFixLicenseExpiration(c *fiber.Ctx) error {
	key := ac.bindLicenseKey(c)
	if key == "" {
		return jsonError(c, fiber.StatusBadRequest, "License key required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	fix, err := ac.licenses.FixExpiration(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, licensing.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "License not found")
	case errors.Is(err, licensing.ErrNoStartDate):
		return jsonError(c, fiber.StatusBadRequest, "Cannot determine license start date")
	default:
		return ac.handleError(c, fiber.StatusInternalServerError, "Failed to update license", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "License expiration updated",
		"license": fiber.Map{
			"license_key":    fix.License.LicenseKey,
			"plan":           fix.License.Plan,
			"old_expiration": formatTimePtr(fix.OldExpiration),
			"new_expiration": formatTimePtr(&fix.NewExpiration),
			"days_added":     fix.DaysAdded,
		},
	})
}

// handleError logs the cause and answers with a generic reason
func (ac *AdminController) handleError(c *fiber.Ctx, status int, message string, err error) error {
	log.Errorf("[Admin] %s: %v", message, err)
	return jsonError(c, status, message)
}
