package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/app/repository"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
	"github.com/mindsetalert/backoffice/internal/pkg/metrics/counter"
	"github.com/mindsetalert/backoffice/internal/pkg/security"
	"gorm.io/gorm"
)

var (
	ErrInvalidToken  = security.ErrInvalidToken
	ErrLinkExpired   = security.ErrLinkExpired
	ErrTokenNotFound = errors.New("token not found")
	ErrQuotaExceeded = errors.New("download limit reached")
	ErrFileNotFound  = errors.New("file not found")
	ErrNotConfigured = errors.New("server not configured")
)

const (
	DefaultTTL          = 180 * 24 * time.Hour
	DefaultMaxDownloads = 999999
	DownloadPath        = "/api/download"

	maxIssueAttempts = 5
)

// Config is read once at startup. Secret must not change while the process runs.
type Config struct {
	Secret        string
	FileKey       string
	TTL           time.Duration
	MaxDownloads  int
	PublicBaseURL string
}

func ConfigFromEnv() Config {
	return Config{
		Secret:        env.GetEnv("DOWNLOAD_SECRET", ""),
		FileKey:       env.GetEnv("DOWNLOAD_FILE_KEY", models.DefaultFileKey),
		TTL:           env.GetDuration("DOWNLOAD_TTL", DefaultTTL),
		MaxDownloads:  env.GetInt("DOWNLOAD_MAX", DefaultMaxDownloads),
		PublicBaseURL: strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
	}
}

// Redemption is the outcome of a successful redeem: the consumed token row and where the file lives.
type Redemption struct {
	Token    *models.DownloadToken
	Delivery *Delivery
}

// Service mints, verifies and redeems download tokens.
type Service struct {
	cfg      Config
	tokens   repository.DownloadTokenRepository
	resolver Resolver
	now      func() time.Time
}

func NewService(cfg Config, tokens repository.DownloadTokenRepository, resolver Resolver) *Service {
	if cfg.FileKey == "" {
		cfg.FileKey = models.DefaultFileKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxDownloads <= 0 {
		cfg.MaxDownloads = DefaultMaxDownloads
	}
	return &Service{cfg: cfg, tokens: tokens, resolver: resolver, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue signs and stores a token for licenseID valid for the configured TTL.
func (s *Service) Issue(ctx context.Context, licenseID string) (*models.DownloadToken, error) {
	return s.IssueWithExpiry(ctx, licenseID, s.now().Add(s.cfg.TTL))
}

// IssueWithExpiry signs and stores a token with an explicit deadline.
func (s *Service) IssueWithExpiry(ctx context.Context, licenseID string, expiresAt time.Time) (*models.DownloadToken, error) {
	if s.cfg.Secret == "" {
		return nil, ErrNotConfigured
	}
	// Signed and stored deadlines share millisecond precision.
	expiresAt = expiresAt.Truncate(time.Millisecond)

	for attempt := 1; ; attempt++ {
		row, err := s.store(ctx, licenseID, expiresAt)
		if err == nil {
			counter.AddDownloadTokenIssued()
			log.Infof("[Downloads] issued token for license %s (expires %s)", licenseID, expiresAt.UTC().Format(time.RFC3339))
			return row, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt >= maxIssueAttempts {
			return nil, fmt.Errorf("store download token: %w", err)
		}
		// Same license and deadline sign to the same token.
		expiresAt = expiresAt.Add(time.Millisecond)
	}
}

func (s *Service) store(ctx context.Context, licenseID string, expiresAt time.Time) (*models.DownloadToken, error) {
	token, err := security.SignDownloadToken(security.DownloadClaims{
		LicenseID: licenseID,
		ExpiresAt: expiresAt.UnixMilli(),
	}, s.cfg.Secret)
	if err != nil {
		return nil, err
	}

	row := &models.DownloadToken{
		LicenseID:    licenseID,
		Token:        token,
		FileKey:      s.cfg.FileKey,
		ExpiresAt:    expiresAt,
		MaxDownloads: s.cfg.MaxDownloads,
	}
	if err := s.tokens.Create(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// TTL is the lifetime of tokens minted by Issue and the upper bound for explicit deadlines.
func (s *Service) TTL() time.Duration {
	return s.cfg.TTL
}

// Verify checks integrity and freshness without touching storage.
func (s *Service) Verify(token string) (*security.DownloadClaims, error) {
	claims, err := security.VerifyDownloadToken(token, s.cfg.Secret, s.now())
	if errors.Is(err, security.ErrSecretMissing) {
		return nil, ErrNotConfigured
	}
	return claims, err
}

// Redeem consumes one download of token and resolves the file it grants.
func (s *Service) Redeem(ctx context.Context, token string) (*Redemption, error) {
	r, err := s.redeem(ctx, token)
	counter.AddDownloadRedemption(redemptionResult(err))
	return r, err
}

func (s *Service) redeem(ctx context.Context, token string) (*Redemption, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}

	row, err := s.tokens.GetByToken(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.LicenseID != claims.LicenseID {
		return nil, ErrInvalidToken
	}
	if s.now().After(row.ExpiresAt) {
		return nil, ErrLinkExpired
	}
	if !row.HasQuota() {
		return nil, ErrQuotaExceeded
	}

	ok, err := s.tokens.IncrementDownloads(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another redemption took the last download between the read and the update.
		return nil, ErrQuotaExceeded
	}
	row.DownloadsUsed++

	if s.resolver == nil {
		return nil, ErrNotConfigured
	}
	delivery, err := s.resolver.Resolve(ctx, row.ResolvedFileKey())
	if err != nil {
		return nil, err
	}
	return &Redemption{Token: row, Delivery: delivery}, nil
}

// LatestUsable returns the newest unexpired token of a license that still has quota.
func (s *Service) LatestUsable(ctx context.Context, licenseID string) (*models.DownloadToken, error) {
	rows, err := s.tokens.ListUsableByLicenseIDs(ctx, []string{licenseID}, s.now())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrTokenNotFound
	}
	return &rows[0], nil
}

// FindOrIssue reuses the latest usable token or issues a new one. reused reports which happened.
func (s *Service) FindOrIssue(ctx context.Context, licenseID string) (token *models.DownloadToken, reused bool, err error) {
	token, err = s.LatestUsable(ctx, licenseID)
	if err == nil {
		return token, true, nil
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return nil, false, err
	}
	token, err = s.Issue(ctx, licenseID)
	return token, false, err
}

// PreferredByLicense maps each license id to its newest usable token. Licenses without one are absent.
func (s *Service) PreferredByLicense(ctx context.Context, licenseIDs []string) (map[string]models.DownloadToken, error) {
	rows, err := s.tokens.ListUsableByLicenseIDs(ctx, licenseIDs, s.now())
	if err != nil {
		return nil, err
	}
	preferred := make(map[string]models.DownloadToken, len(licenseIDs))
	for _, row := range rows {
		if _, seen := preferred[row.LicenseID]; !seen {
			preferred[row.LicenseID] = row
		}
	}
	return preferred, nil
}

// HasToken reports whether any token was ever issued for the license.
func (s *Service) HasToken(ctx context.Context, licenseID string) (bool, error) {
	_, err := s.tokens.GetLatestByLicenseID(ctx, licenseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DownloadURL is the public redemption link for token.
func (s *Service) DownloadURL(token string) string {
	return DownloadURL(s.cfg.PublicBaseURL, token)
}

func DownloadURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + DownloadPath + "?token=" + url.QueryEscape(token)
}

func redemptionResult(err error) string {
	switch {
	case err == nil:
		return counter.ResultOK
	case errors.Is(err, ErrInvalidToken):
		return counter.ResultInvalid
	case errors.Is(err, ErrLinkExpired):
		return counter.ResultLinkExpired
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrFileNotFound):
		return counter.ResultNotFound
	case errors.Is(err, ErrQuotaExceeded):
		return counter.ResultQuotaExceeded
	default:
		return counter.ResultError
	}
}
