package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LicenseStatusActive        = "active"
	LicenseStatusCancelled     = "cancelled"
	LicenseStatusPaymentFailed = "payment_failed"
	LicenseStatusExpired       = "expired"
)

const (
	LicensePlanMonthly = "monthly"
	LicensePlanYearly  = "yearly"
	LicensePlanBundle  = "bundle"
)

// UnknownDeviceName is stored when a client validates without a device label.
const UnknownDeviceName = "Unknown device"

// License is a purchased entitlement bound to at most one device at a time.
// Status follows the billing lifecycle; IsActive and HardwareID track the device binding.
type License struct {
	ID                  string     `gorm:"type:char(36);primaryKey" json:"id"`
	LicenseKey          string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"license_key"`
	ClientID            string     `gorm:"type:char(36);not null;index" json:"client_id"`
	SubscriptionID      string     `gorm:"type:varchar(191);default:null;uniqueIndex" json:"subscription_id,omitempty"`
	Plan                string     `gorm:"type:varchar(20);not null;default:'monthly'" json:"plan"`
	Status              string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	IsActive            bool       `gorm:"default:false" json:"is_active"`
	HardwareID          *string    `gorm:"type:varchar(191);default:null" json:"hardware_id,omitempty"`
	ActivatedDeviceName *string    `gorm:"type:varchar(191);default:null" json:"activated_device_name,omitempty"`
	ActivatedAt         *time.Time `gorm:"type:datetime(3);default:null" json:"activated_at,omitempty"`
	LastValidationAt    *time.Time `gorm:"type:datetime(3);default:null" json:"last_validation_at,omitempty"`
	ExpiresAt           *time.Time `gorm:"type:datetime(3);default:null" json:"expires_at,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *License) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// IsExpiredAt reports whether the license has a deadline that lies before t.
// A license without ExpiresAt never expires.
func (l *License) IsExpiredAt(t time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(t)
}

// IsRevoked reports whether billing has withdrawn access regardless of the device binding.
func (l *License) IsRevoked() bool {
	switch l.Status {
	case LicenseStatusCancelled, LicenseStatusPaymentFailed, LicenseStatusExpired:
		return true
	default:
		return false
	}
}

// IsBoundElsewhere reports whether the license is currently bound to a device other than hardwareID.
func (l *License) IsBoundElsewhere(hardwareID string) bool {
	return l.HardwareID != nil && *l.HardwareID != "" && *l.HardwareID != hardwareID
}

// DeviceName returns the display label of the bound device.
func (l *License) DeviceName() string {
	if l.ActivatedDeviceName == nil || *l.ActivatedDeviceName == "" {
		return UnknownDeviceName
	}
	return *l.ActivatedDeviceName
}
