package licensing

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("license not found")
	ErrExpired            = errors.New("license expired")
	ErrRevoked            = errors.New("license is not active")
	ErrDeviceConflict     = errors.New("license already activated on another device")
	ErrForbidden          = errors.New("cannot deactivate from different device")
	ErrLicenseKeyRequired = errors.New("license key required")
	ErrHardwareIDRequired = errors.New("hardware ID required")
	ErrEmailRequired      = errors.New("customer email required")
	ErrUnsupportedPlan    = errors.New("unsupported plan")
	ErrNoStartDate        = errors.New("cannot determine license start date")
	ErrNoCustomer         = errors.New("no customer for this email")
	ErrDiscordIDRequired  = errors.New("discord user id required")
)

// DeviceConflictError describes the device currently holding the license.
type DeviceConflictError struct {
	DeviceName     string
	ActivatedAt    *time.Time
	LastValidation *time.Time
}

func (e *DeviceConflictError) Error() string {
	return ErrDeviceConflict.Error() + ": " + e.DeviceName
}

func (e *DeviceConflictError) Is(target error) bool {
	return target == ErrDeviceConflict
}
