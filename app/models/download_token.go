package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultFileKey names the installer served when a token row carries no file key.
const DefaultFileKey = "MindsetTrading_Setup.exe"

// DownloadToken is the persisted half of a signed download link. Only DownloadsUsed changes
// after creation.
type DownloadToken struct {
	ID            string    `gorm:"type:char(36);primaryKey" json:"id"`
	LicenseID     string    `gorm:"type:char(36);not null;index" json:"license_id"`
	Token         string    `gorm:"type:varchar(512);not null;uniqueIndex" json:"token"`
	FileKey       string    `gorm:"type:varchar(191);not null;default:'MindsetTrading_Setup.exe'" json:"file_key"`
	ExpiresAt     time.Time `gorm:"type:datetime(3);not null;index" json:"expires_at"`
	DownloadsUsed int       `gorm:"not null;default:0" json:"downloads_used"`
	MaxDownloads  int       `gorm:"not null;default:3" json:"max_downloads"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (t *DownloadToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// HasQuota reports whether at least one more redemption is allowed.
func (t *DownloadToken) HasQuota() bool {
	return t.DownloadsUsed < t.MaxDownloads
}

// IsUsableAt reports whether the token is unexpired at now and still has quota.
func (t *DownloadToken) IsUsableAt(now time.Time) bool {
	return now.Before(t.ExpiresAt) && t.HasQuota()
}

// ResolvedFileKey falls back to the default installer name.
func (t *DownloadToken) ResolvedFileKey() string {
	if t.FileKey == "" {
		return DefaultFileKey
	}
	return t.FileKey
}
