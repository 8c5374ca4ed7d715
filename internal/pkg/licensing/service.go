package licensing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/app/repository"
	"github.com/mindsetalert/backoffice/internal/pkg/community"
	"github.com/mindsetalert/backoffice/internal/pkg/licensekey"
	"github.com/mindsetalert/backoffice/internal/pkg/mail"
	"github.com/mindsetalert/backoffice/internal/pkg/metrics/counter"
	"gorm.io/gorm"
)

// TokenIssuer is the part of the download service the license lifecycle needs.
type TokenIssuer interface {
	Issue(ctx context.Context, licenseID string) (*models.DownloadToken, error)
	FindOrIssue(ctx context.Context, licenseID string) (*models.DownloadToken, bool, error)
	HasToken(ctx context.Context, licenseID string) (bool, error)
	DownloadURL(token string) string
}

type Deps struct {
	Clients  repository.ClientRepository
	Licenses repository.LicenseRepository
	Tokens   TokenIssuer
	Mailer   mail.Mailer
	Roles    community.RoleSyncer
}

// Service owns license state: device binding and the billing lifecycle.
type Service struct {
	clients  repository.ClientRepository
	licenses repository.LicenseRepository
	tokens   TokenIssuer
	mailer   mail.Mailer
	roles    community.RoleSyncer

	now    func() time.Time
	newKey func() (string, error)
}

func NewService(d Deps) *Service {
	roles := d.Roles
	if roles == nil {
		roles = community.NoopRoleSyncer{}
	}
	return &Service{
		clients:  d.Clients,
		licenses: d.Licenses,
		tokens:   d.Tokens,
		mailer:   d.Mailer,
		roles:    roles,
		now:      time.Now,
		newKey:   licensekey.Generate,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type ValidateInput struct {
	LicenseKey string
	HardwareID string
	DeviceName string
}

// Validate binds the license to the calling device, or refreshes an existing binding.
func (s *Service) Validate(ctx context.Context, in ValidateInput) (*models.License, error) {
	license, err := s.validate(ctx, in)
	counter.AddLicenseValidation(validationResult(err))
	return license, err
}

func (s *Service) validate(ctx context.Context, in ValidateInput) (*models.License, error) {
	key := licensekey.Normalize(in.LicenseKey)
	hardwareID := strings.TrimSpace(in.HardwareID)
	if key == "" {
		return nil, ErrLicenseKeyRequired
	}
	if hardwareID == "" {
		return nil, ErrHardwareIDRequired
	}

	license, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if license.IsExpiredAt(now) {
		return nil, ErrExpired
	}
	if license.IsRevoked() {
		return nil, ErrRevoked
	}
	if license.IsBoundElsewhere(hardwareID) {
		return nil, conflictFrom(license)
	}

	deviceName := strings.TrimSpace(in.DeviceName)
	if deviceName == "" {
		deviceName = models.UnknownDeviceName
	}
	stored, applied, err := s.licenses.BindDevice(ctx, license.ID, repository.DeviceBinding{
		HardwareID:      hardwareID,
		DeviceName:      deviceName,
		At:              now,
		FirstActivation: license.ActivatedAt == nil,
	})
	if err != nil {
		return nil, fmt.Errorf("bind device: %w", err)
	}
	if !applied {
		// Another device won the binding after our read.
		return nil, conflictFrom(stored)
	}
	return stored, nil
}

// Deactivate releases the binding held by hardwareID. Releasing an unbound license succeeds.
func (s *Service) Deactivate(ctx context.Context, licenseKey, hardwareID string) error {
	err := s.deactivate(ctx, licenseKey, hardwareID)
	counter.AddLicenseDeactivation(validationResult(err))
	return err
}

func (s *Service) deactivate(ctx context.Context, licenseKey, hardwareID string) error {
	key := licensekey.Normalize(licenseKey)
	hardwareID = strings.TrimSpace(hardwareID)
	if key == "" {
		return ErrLicenseKeyRequired
	}
	if hardwareID == "" {
		return ErrHardwareIDRequired
	}

	license, err := s.getByKey(ctx, key)
	if err != nil {
		return err
	}
	if license.IsBoundElsewhere(hardwareID) {
		return ErrForbidden
	}

	_, applied, err := s.licenses.ReleaseDevice(ctx, license.ID, hardwareID, s.now())
	if err != nil {
		return fmt.Errorf("release device: %w", err)
	}
	if !applied {
		return ErrForbidden
	}
	return nil
}

// GetByKey looks a license up by its key.
func (s *Service) GetByKey(ctx context.Context, licenseKey string) (*models.License, error) {
	return s.getByKey(ctx, licensekey.Normalize(licenseKey))
}

// GetByID looks a license up by its id.
func (s *Service) GetByID(ctx context.Context, id string) (*models.License, error) {
	license, err := s.licenses.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return license, err
}

// OwnerEmail returns the email of the client owning the license.
func (s *Service) OwnerEmail(ctx context.Context, license *models.License) (string, error) {
	client, err := s.clients.GetByID(ctx, license.ClientID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrEmailRequired
	}
	if err != nil {
		return "", err
	}
	if client.Email == "" {
		return "", ErrEmailRequired
	}
	return client.Email, nil
}

// ListForEmail returns the licenses of the client with that email, newest first.
// An unknown email has no licenses.
func (s *Service) ListForEmail(ctx context.Context, email string) ([]models.License, error) {
	client, err := s.clients.GetByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.License{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.licenses.ListByClientID(ctx, client.ID)
}

func (s *Service) getByKey(ctx context.Context, key string) (*models.License, error) {
	license, err := s.licenses.GetByKey(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return license, nil
}

func conflictFrom(l *models.License) *DeviceConflictError {
	return &DeviceConflictError{
		DeviceName:     l.DeviceName(),
		ActivatedAt:    l.ActivatedAt,
		LastValidation: l.LastValidationAt,
	}
}

func validationResult(err error) string {
	switch {
	case err == nil:
		return counter.ResultOK
	case errors.Is(err, ErrNotFound):
		return counter.ResultNotFound
	case errors.Is(err, ErrExpired):
		return counter.ResultExpired
	case errors.Is(err, ErrRevoked):
		return counter.ResultRevoked
	case errors.Is(err, ErrDeviceConflict):
		return counter.ResultDeviceConflict
	case errors.Is(err, ErrForbidden):
		return counter.ResultForbidden
	case errors.Is(err, ErrLicenseKeyRequired), errors.Is(err, ErrHardwareIDRequired):
		return counter.ResultInvalid
	default:
		return counter.ResultError
	}
}

func logSwallowed(component, action string, err error) {
	if err != nil {
		log.Warnf("[%s] %s failed: %v", component, action, err)
	}
}
