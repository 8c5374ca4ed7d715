package repository

import (
	"context"
	"time"

	"github.com/mindsetalert/backoffice/app/models"
	"gorm.io/gorm"
)

// ClientRepository defines the interface for client-related database operations
type ClientRepository interface {
	FindOrCreateByEmail(ctx context.Context, email string) (*models.Client, error)
	GetByEmail(ctx context.Context, email string) (*models.Client, error)
	GetByID(ctx context.Context, id string) (*models.Client, error)
	// SetDiscordUserID links the client's chat account. An empty id unlinks it.
	SetDiscordUserID(ctx context.Context, id, discordUserID string) error
}

// DeviceBinding is the state written when a license is bound to (or re-validated on) a device.
type DeviceBinding struct {
	HardwareID string
	DeviceName string
	At         time.Time
	// FirstActivation flips status back to active; it is set when the license was never activated.
	FirstActivation bool
}

// LicenseLifecycle is the subset of license columns owned by billing events and admin fixes.
type LicenseLifecycle struct {
	Status    string
	IsActive  bool
	ExpiresAt *time.Time
}

// LicenseRepository defines the interface for license-related database operations
type LicenseRepository interface {
	Create(ctx context.Context, license *models.License) error
	GetByID(ctx context.Context, id string) (*models.License, error)
	GetByKey(ctx context.Context, key string) (*models.License, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.License, error)
	ListByClientID(ctx context.Context, clientID string) ([]models.License, error)
	// UpdateLifecycle writes status, is_active and expires_at only. The device binding is untouched.
	UpdateLifecycle(ctx context.Context, id string, lc LicenseLifecycle) error
	// BindDevice binds the license when it is unbound or already bound to the same device.
	// It returns the license as stored afterwards and whether the binding was applied.
	BindDevice(ctx context.Context, id string, b DeviceBinding) (*models.License, bool, error)
	// ReleaseDevice clears the binding when it is held by hardwareID or nobody.
	// It returns the license as stored afterwards and whether the release was applied.
	ReleaseDevice(ctx context.Context, id, hardwareID string, at time.Time) (*models.License, bool, error)
}

// DownloadTokenRepository defines the interface for download-token database operations
type DownloadTokenRepository interface {
	Create(ctx context.Context, token *models.DownloadToken) error
	GetByToken(ctx context.Context, token string) (*models.DownloadToken, error)
	GetLatestByLicenseID(ctx context.Context, licenseID string) (*models.DownloadToken, error)
	// ListUsableByLicenseIDs returns tokens that are unexpired at now and below quota, newest first.
	ListUsableByLicenseIDs(ctx context.Context, licenseIDs []string, now time.Time) ([]models.DownloadToken, error)
	// IncrementDownloads consumes one download. It reports false when the quota is already exhausted.
	IncrementDownloads(ctx context.Context, id string) (bool, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Client        ClientRepository
	License       LicenseRepository
	DownloadToken DownloadTokenRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Client:        NewClientRepository(db),
		License:       NewLicenseRepository(db),
		DownloadToken: NewDownloadTokenRepository(db),
	}
}
