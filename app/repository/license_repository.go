package repository

import (
	"context"
	"time"

	"github.com/mindsetalert/backoffice/app/models"
	"gorm.io/gorm"
)

type licenseRepository struct {
	db *gorm.DB
}

// NewLicenseRepository creates a new license repository instance
func NewLicenseRepository(db *gorm.DB) LicenseRepository {
	return &licenseRepository{db: db}
}

// Create creates a new license in the database
func (r *licenseRepository) Create(ctx context.Context, license *models.License) error {
	return r.db.WithContext(ctx).Create(license).Error
}

// GetByID retrieves a license by its ID
func (r *licenseRepository) GetByID(ctx context.Context, id string) (*models.License, error) {
	var license models.License
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// GetByKey retrieves a license by its license key
func (r *licenseRepository) GetByKey(ctx context.Context, key string) (*models.License, error) {
	var license models.License
	err := r.db.WithContext(ctx).Where("license_key = ?", key).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// GetBySubscriptionID retrieves the license created for a billing subscription
func (r *licenseRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.License, error) {
	if subscriptionID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var license models.License
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// ListByClientID returns the client's licenses, newest first
func (r *licenseRepository) ListByClientID(ctx context.Context, clientID string) ([]models.License, error) {
	var licenses []models.License
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&licenses).Error
	return licenses, err
}

func (r *licenseRepository) UpdateLifecycle(ctx context.Context, id string, lc LicenseLifecycle) error {
	res := r.db.WithContext(ctx).Model(&models.License{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     lc.Status,
			"is_active":  lc.IsActive,
			"expires_at": lc.ExpiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero affected rows for unchanged values, so confirm existence.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *licenseRepository) BindDevice(ctx context.Context, id string, b DeviceBinding) (*models.License, bool, error) {
	updates := map[string]interface{}{
		"hardware_id":           b.HardwareID,
		"activated_device_name": b.DeviceName,
		"is_active":             true,
		"last_validation_at":    b.At,
		"activated_at":          gorm.Expr("COALESCE(activated_at, ?)", b.At),
	}
	if b.FirstActivation {
		updates["status"] = models.LicenseStatusActive
	}

	res := r.db.WithContext(ctx).Model(&models.License{}).
		Where("id = ? AND (hardware_id IS NULL OR hardware_id = '' OR hardware_id = ?)", id, b.HardwareID).
		Updates(updates)
	if res.Error != nil {
		return nil, false, res.Error
	}

	stored, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if res.RowsAffected > 0 {
		return stored, true, nil
	}
	// Zero rows: either another device holds the binding or nothing changed.
	applied := stored.HardwareID != nil && *stored.HardwareID == b.HardwareID
	return stored, applied, nil
}

func (r *licenseRepository) ReleaseDevice(ctx context.Context, id, hardwareID string, at time.Time) (*models.License, bool, error) {
	res := r.db.WithContext(ctx).Model(&models.License{}).
		Where("id = ? AND (hardware_id IS NULL OR hardware_id = '' OR hardware_id = ?)", id, hardwareID).
		Updates(map[string]interface{}{
			"hardware_id":           nil,
			"activated_device_name": nil,
			"is_active":             false,
			"last_validation_at":    at,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}

	stored, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if res.RowsAffected > 0 {
		return stored, true, nil
	}
	applied := stored.HardwareID == nil || *stored.HardwareID == "" || *stored.HardwareID == hardwareID
	return stored, applied, nil
}
