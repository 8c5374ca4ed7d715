package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/internal/pkg/downloads"
	"github.com/mindsetalert/backoffice/internal/pkg/licensing"
	"github.com/mindsetalert/backoffice/internal/pkg/usercontext"
)

type AccountLicenses interface {
	ListForEmail(ctx context.Context, email string) ([]models.License, error)
	GetByID(ctx context.Context, id string) (*models.License, error)
	OwnerEmail(ctx context.Context, license *models.License) (string, error)
}

type AccountTokens interface {
	PreferredByLicense(ctx context.Context, licenseIDs []string) (map[string]models.DownloadToken, error)
	Issue(ctx context.Context, licenseID string) (*models.DownloadToken, error)
	IssueWithExpiry(ctx context.Context, licenseID string, expiresAt time.Time) (*models.DownloadToken, error)
	DownloadURL(token string) string
	// TTL bounds how far in the future a customer-chosen deadline may lie.
	TTL() time.Duration
}

// AccountController serves the signed-in customer's license overview.
type AccountController struct {
	licenses AccountLicenses
	tokens   AccountTokens
	now      func() time.Time
}

func NewAccountController(licenses AccountLicenses, tokens AccountTokens) *AccountController {
	return &AccountController{licenses: licenses, tokens: tokens, now: time.Now}
}

type accountLicense struct {
	License     models.License        `json:"license"`
	Token       *models.DownloadToken `json:"token"`
	DownloadURL *string               `json:"downloadUrl"`
}

// HandleListLicenses returns every license of the caller with its preferred download link.
func (ac *AccountController) HandleListLicenses(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn || userCtx.Email == "" {
		return jsonError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	licenses, err := ac.licenses.ListForEmail(ctx, userCtx.Email)
	if err != nil {
		log.Errorf("[Account] list licenses for %s: %v", userCtx.Email, err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load licenses")
	}

	result := make([]accountLicense, 0, len(licenses))
	if len(licenses) == 0 {
		return c.JSON(fiber.Map{"licenses": result})
	}

	ids := make([]string, len(licenses))
	for i, l := range licenses {
		ids[i] = l.ID
	}
	preferred, err := ac.tokens.PreferredByLicense(ctx, ids)
	if err != nil {
		log.Errorf("[Account] load download tokens: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load download links")
	}

	for _, l := range licenses {
		entry := accountLicense{License: l}
		if t, ok := preferred[l.ID]; ok {
			url := ac.tokens.DownloadURL(t.Token)
			entry.Token = &t
			entry.DownloadURL = &url
		}
		result = append(result, entry)
	}
	return c.JSON(fiber.Map{"licenses": result})
}

type tokenTarget struct {
	LicenseID string `json:"licenseId"`
	// ExpiresAt is an epoch-millisecond deadline.
	ExpiresAt int64 `json:"expiresAt"`
}

type createTokenRequest struct {
	tokenTarget
	Payload *tokenTarget `json:"payload"`
}

func (r createTokenRequest) target() tokenTarget {
	if r.Payload != nil && r.Payload.LicenseID != "" {
		return *r.Payload
	}
	return r.tokenTarget
}

// HandleCreateToken issues a fresh download link for one of the caller's licenses.
func (ac *AccountController) HandleCreateToken(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn || userCtx.Email == "" {
		return jsonError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req createTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	target := req.target()
	if target.LicenseID == "" {
		return jsonError(c, fiber.StatusBadRequest, "Missing payload.licenseId")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	license, err := ac.licenses.GetByID(ctx, target.LicenseID)
	if errors.Is(err, licensing.ErrNotFound) {
		return jsonError(c, fiber.StatusNotFound, "License not found")
	}
	if err != nil {
		log.Errorf("[Account] load license %s: %v", target.LicenseID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Server error")
	}
	owner, err := ac.licenses.OwnerEmail(ctx, license)
	if err != nil && !errors.Is(err, licensing.ErrEmailRequired) {
		log.Errorf("[Account] resolve owner of %s: %v", license.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Server error")
	}
	if owner == "" || owner != userCtx.Email {
		return jsonError(c, fiber.StatusForbidden, "Forbidden")
	}

	var token *models.DownloadToken
	if target.ExpiresAt > 0 {
		expiresAt := time.UnixMilli(target.ExpiresAt)
		now := ac.now()
		if !expiresAt.After(now) {
			return jsonError(c, fiber.StatusBadRequest, "expiresAt must be in the future")
		}
		if expiresAt.After(now.Add(ac.tokens.TTL())) {
			return jsonError(c, fiber.StatusBadRequest, "expiresAt exceeds the maximum link lifetime")
		}
		token, err = ac.tokens.IssueWithExpiry(ctx, license.ID, expiresAt)
	} else {
		token, err = ac.tokens.Issue(ctx, license.ID)
	}
	if errors.Is(err, downloads.ErrNotConfigured) {
		return jsonError(c, fiber.StatusInternalServerError, "Server not configured")
	}
	if err != nil {
		log.Errorf("[Account] issue token for %s: %v", license.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "Server error")
	}

	return c.JSON(fiber.Map{
		"token":       token.Token,
		"downloadUrl": ac.tokens.DownloadURL(token.Token),
		"expiresAt":   token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
