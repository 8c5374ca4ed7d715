package repository

import (
	"context"
	"time"

	"github.com/mindsetalert/backoffice/app/models"
	"gorm.io/gorm"
)

type downloadTokenRepository struct {
	db *gorm.DB
}

// NewDownloadTokenRepository creates a new download token repository instance
func NewDownloadTokenRepository(db *gorm.DB) DownloadTokenRepository {
	return &downloadTokenRepository{db: db}
}

// Create stores a freshly signed token
func (r *downloadTokenRepository) Create(ctx context.Context, token *models.DownloadToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// GetByToken looks a token up by its exact string
func (r *downloadTokenRepository) GetByToken(ctx context.Context, token string) (*models.DownloadToken, error) {
	var row models.DownloadToken
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetLatestByLicenseID returns the most recently created token of a license
func (r *downloadTokenRepository) GetLatestByLicenseID(ctx context.Context, licenseID string) (*models.DownloadToken, error) {
	var row models.DownloadToken
	err := r.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *downloadTokenRepository) ListUsableByLicenseIDs(ctx context.Context, licenseIDs []string, now time.Time) ([]models.DownloadToken, error) {
	if len(licenseIDs) == 0 {
		return nil, nil
	}
	var rows []models.DownloadToken
	err := r.db.WithContext(ctx).
		Where("license_id IN ?", licenseIDs).
		Where("expires_at > ? AND downloads_used < max_downloads", now).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *downloadTokenRepository) IncrementDownloads(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.DownloadToken{}).
		Where("id = ? AND downloads_used < max_downloads", id).
		UpdateColumn("downloads_used", gorm.Expr("downloads_used + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
