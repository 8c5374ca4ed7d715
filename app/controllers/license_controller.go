package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/internal/pkg/licensing"
)

// LicenseService is the device-binding part of the licensing service.
type LicenseService interface {
	Validate(ctx context.Context, in licensing.ValidateInput) (*models.License, error)
	Deactivate(ctx context.Context, licenseKey, hardwareID string) error
}

// LicenseController serves the desktop client's activation endpoints.
type LicenseController struct {
	licenses LicenseService
}

func NewLicenseController(licenses LicenseService) *LicenseController {
	return &LicenseController{licenses: licenses}
}

// licenseRequest accepts the current and the legacy field names sent by older clients.
type licenseRequest struct {
	LicenseKey       string `json:"licenseKey"`
	LegacyLicenseKey string `json:"license_key"`
	HardwareID       string `json:"hardwareId"`
	MachineKey       string `json:"machine_key"`
	MachineID        string `json:"machineId"`
	DeviceName       string `json:"deviceName"`
	MachineName      string `json:"machine_name"`
	LegacyDeviceName string `json:"machineName"`
}

type activationInput struct {
	LicenseKey string `validate:"required,max=64"`
	HardwareID string `validate:"required,max=191"`
	DeviceName string `validate:"max=191"`
}

func (r licenseRequest) normalize() activationInput {
	return activationInput{
		LicenseKey: firstNonEmpty(r.LicenseKey, r.LegacyLicenseKey),
		HardwareID: firstNonEmpty(r.HardwareID, r.MachineKey, r.MachineID),
		DeviceName: firstNonEmpty(r.DeviceName, r.MachineName, r.LegacyDeviceName),
	}
}

// bindActivation parses and validates the body. A non-empty message is the 400 reason.
func bindActivation(c *fiber.Ctx) (activationInput, string) {
	var req licenseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return activationInput{}, "Invalid request body"
		}
	}
	in := req.normalize()
	if err := validate.Struct(in); err != nil {
		fe := firstInvalid(err)
		switch {
		case fe == nil:
			return in, "Invalid request body"
		case fe.Field() == "LicenseKey" && fe.Tag() == "required":
			return in, "License key required"
		case fe.Field() == "HardwareID" && fe.Tag() == "required":
			return in, "Hardware ID required"
		default:
			return in, "Invalid " + fe.Field()
		}
	}
	return in, ""
}

// HandleValidate binds the license to the calling device or refreshes the binding.
func (lc *LicenseController) HandleValidate(c *fiber.Ctx) error {
	in, msg := bindActivation(c)
	if msg != "" {
		return jsonError(c, fiber.StatusBadRequest, msg)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	license, err := lc.licenses.Validate(ctx, licensing.ValidateInput{
		LicenseKey: in.LicenseKey,
		HardwareID: in.HardwareID,
		DeviceName: in.DeviceName,
	})
	if err != nil {
		return licenseError(c, err, "Failed to update license")
	}

	return c.JSON(fiber.Map{
		"valid": true,
		"license": fiber.Map{
			"id":          license.ID,
			"clientId":    license.ClientID,
			"status":      license.Status,
			"expiresAt":   formatTimePtr(license.ExpiresAt),
			"activatedAt": formatTimePtr(license.ActivatedAt),
			"lastUsedAt":  formatTimePtr(license.LastValidationAt),
		},
	})
}

// HandleDeactivate releases the binding held by the calling device.
func (lc *LicenseController) HandleDeactivate(c *fiber.Ctx) error {
	in, msg := bindActivation(c)
	if msg != "" {
		return jsonError(c, fiber.StatusBadRequest, msg)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := lc.licenses.Deactivate(ctx, in.LicenseKey, in.HardwareID); err != nil {
		return licenseError(c, err, "Failed to deactivate license")
	}
	return c.JSON(fiber.Map{"success": true})
}

func licenseError(c *fiber.Ctx, err error, fallback string) error {
	var conflict *licensing.DeviceConflictError
	switch {
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "License already activated on another device",
			"details": fiber.Map{
				"activatedDevice": conflict.DeviceName,
				"activatedAt":     formatTimePtr(conflict.ActivatedAt),
				"lastValidation":  formatTimePtr(conflict.LastValidation),
			},
		})
	case errors.Is(err, licensing.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "License not found")
	case errors.Is(err, licensing.ErrExpired):
		return jsonError(c, fiber.StatusBadRequest, "License expired")
	case errors.Is(err, licensing.ErrRevoked):
		return jsonError(c, fiber.StatusForbidden, "License is not active")
	case errors.Is(err, licensing.ErrForbidden):
		return jsonError(c, fiber.StatusForbidden, "Cannot deactivate from different device")
	case errors.Is(err, licensing.ErrLicenseKeyRequired):
		return jsonError(c, fiber.StatusBadRequest, "License key required")
	case errors.Is(err, licensing.ErrHardwareIDRequired):
		return jsonError(c, fiber.StatusBadRequest, "Hardware ID required")
	default:
		log.Errorf("[License] %s: %v", fallback, err)
		return jsonError(c, fiber.StatusInternalServerError, fallback)
	}
}
