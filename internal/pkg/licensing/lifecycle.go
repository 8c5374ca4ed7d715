package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/app/repository"
	"github.com/mindsetalert/backoffice/internal/pkg/mail"
	"gorm.io/gorm"
)

const maxKeyAttempts = 3

var ErrMailFailed = errors.New("failed to send email")

type PurchaseInput struct {
	Email          string
	SubscriptionID string
	Plan           string
}

type PurchaseResult struct {
	License *models.License
	// Token is nil when the license already had a download token.
	Token   *models.DownloadToken
	Created bool
}

// Purchase creates the license paid for by a completed checkout and issues its first
// download token. Replaying the same subscription reuses the license.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	plan, ok := NormalizePlan(in.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlan, in.Plan)
	}
	email := models.NormalizeEmail(in.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	client, err := s.clients.FindOrCreateByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("resolve client: %w", err)
	}

	result := &PurchaseResult{}
	if in.SubscriptionID != "" {
		existing, err := s.licenses.GetBySubscriptionID(ctx, in.SubscriptionID)
		switch {
		case err == nil:
			result.License = existing
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	if result.License == nil {
		license, created, err := s.createLicense(ctx, client.ID, in.SubscriptionID, plan)
		if err != nil {
			return nil, err
		}
		result.License = license
		result.Created = created
		if created {
			log.Infof("[Licensing] created %s license %s for %s", plan, license.LicenseKey, email)
		}
	}

	hasToken, err := s.tokens.HasToken(ctx, result.License.ID)
	if err != nil {
		return nil, err
	}
	if !hasToken {
		token, err := s.tokens.Issue(ctx, result.License.ID)
		if err != nil {
			return nil, fmt.Errorf("issue initial download token: %w", err)
		}
		result.Token = token
		logSwallowed("Mail", "download email to "+email, s.sendDownloadMail(ctx, email, result.License, token))
	}

	if result.Created && grantsCommunityRole(plan) {
		s.syncRole(ctx, client.ID, true)
	}
	return result, nil
}

// createLicense inserts a new license. created is false when a concurrent purchase for the
// same subscription won the insert; the existing license is returned instead.
func (s *Service) createLicense(ctx context.Context, clientID, subscriptionID, plan string) (*models.License, bool, error) {
	expiresAt := s.now().Add(PlanPeriod(plan))
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := s.newKey()
		if err != nil {
			return nil, false, err
		}
		license := &models.License{
			LicenseKey:     key,
			ClientID:       clientID,
			SubscriptionID: subscriptionID,
			Plan:           plan,
			Status:         models.LicenseStatusActive,
			IsActive:       true,
			ExpiresAt:      &expiresAt,
		}
		lastErr = s.licenses.Create(ctx, license)
		if lastErr == nil {
			return license, true, nil
		}
		if !errors.Is(lastErr, gorm.ErrDuplicatedKey) {
			return nil, false, fmt.Errorf("create license: %w", lastErr)
		}
		if subscriptionID != "" {
			existing, err := s.licenses.GetBySubscriptionID(ctx, subscriptionID)
			if err == nil {
				return existing, false, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, err
			}
		}
		// License key collision; draw another.
	}
	return nil, false, fmt.Errorf("create license: no unique key after %d attempts: %w", maxKeyAttempts, lastErr)
}

// Renew extends the subscription's license by one plan period counted from its current
// expiry, so a late renewal never shortens the entitlement.
func (s *Service) Renew(ctx context.Context, subscriptionID string) (*models.License, error) {
	license, err := s.bySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	base := s.now()
	if license.ExpiresAt != nil {
		base = *license.ExpiresAt
	}
	expiresAt := base.Add(PlanPeriod(license.Plan))

	if err := s.licenses.UpdateLifecycle(ctx, license.ID, repository.LicenseLifecycle{
		Status:    models.LicenseStatusActive,
		IsActive:  true,
		ExpiresAt: &expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("renew license: %w", err)
	}
	license.Status = models.LicenseStatusActive
	license.IsActive = true
	license.ExpiresAt = &expiresAt

	log.Infof("[Licensing] renewed %s until %s", license.LicenseKey, expiresAt.UTC().Format(time.RFC3339))
	if grantsCommunityRole(license.Plan) {
		s.syncRole(ctx, license.ClientID, true)
	}
	return license, nil
}

// MarkPaymentFailed revokes access. The device binding is kept so a recovered payment
// does not force a re-activation.
func (s *Service) MarkPaymentFailed(ctx context.Context, subscriptionID string) (*models.License, error) {
	return s.revoke(ctx, subscriptionID, models.LicenseStatusPaymentFailed)
}

// Cancel revokes access after the subscription ended.
func (s *Service) Cancel(ctx context.Context, subscriptionID string) (*models.License, error) {
	return s.revoke(ctx, subscriptionID, models.LicenseStatusCancelled)
}

func (s *Service) revoke(ctx context.Context, subscriptionID, status string) (*models.License, error) {
	license, err := s.bySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.licenses.UpdateLifecycle(ctx, license.ID, repository.LicenseLifecycle{
		Status:    status,
		IsActive:  false,
		ExpiresAt: license.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("set license %s: %w", status, err)
	}
	license.Status = status
	license.IsActive = false

	log.Infof("[Licensing] %s is now %s", license.LicenseKey, status)
	if grantsCommunityRole(license.Plan) {
		s.syncRole(ctx, license.ClientID, false)
	}
	return license, nil
}

type ExpirationFix struct {
	License       *models.License
	OldExpiration *time.Time
	NewExpiration time.Time
	DaysAdded     int
}

// FixExpiration recomputes expires_at as start + one plan period, where start is the first
// activation or the creation time. This is the only transition allowed to move expires_at back.
func (s *Service) FixExpiration(ctx context.Context, licenseKey string) (*ExpirationFix, error) {
	license, err := s.GetByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}

	var start time.Time
	switch {
	case license.ActivatedAt != nil:
		start = *license.ActivatedAt
	case !license.CreatedAt.IsZero():
		start = license.CreatedAt
	default:
		return nil, ErrNoStartDate
	}
	period := PlanPeriod(license.Plan)
	expiresAt := start.Add(period)

	if err := s.licenses.UpdateLifecycle(ctx, license.ID, repository.LicenseLifecycle{
		Status:    models.LicenseStatusActive,
		IsActive:  true,
		ExpiresAt: &expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("fix expiration: %w", err)
	}

	fix := &ExpirationFix{
		License:       license,
		OldExpiration: license.ExpiresAt,
		NewExpiration: expiresAt,
		DaysAdded:     int(period / day),
	}
	license.Status = models.LicenseStatusActive
	license.IsActive = true
	license.ExpiresAt = &expiresAt
	log.Infof("[Licensing] corrected expiration of %s to %s", license.LicenseKey, expiresAt.UTC().Format(time.RFC3339))
	return fix, nil
}

type ResendResult struct {
	SentTo     string
	LicenseKey string
	Token      *models.DownloadToken
}

// ResendDownloadLink mails the owner a usable download link, issuing one if needed.
// Unlike after a purchase, a delivery failure is reported.
func (s *Service) ResendDownloadLink(ctx context.Context, licenseKey string) (*ResendResult, error) {
	license, err := s.GetByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	email, err := s.OwnerEmail(ctx, license)
	if err != nil {
		return nil, err
	}
	token, _, err := s.tokens.FindOrIssue(ctx, license.ID)
	if err != nil {
		return nil, fmt.Errorf("download token: %w", err)
	}
	if err := s.sendDownloadMail(ctx, email, license, token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMailFailed, err)
	}
	return &ResendResult{SentTo: email, LicenseKey: license.LicenseKey, Token: token}, nil
}

func (s *Service) sendDownloadMail(ctx context.Context, to string, license *models.License, token *models.DownloadToken) error {
	if s.mailer == nil {
		return mail.ErrNotConfigured
	}
	return s.mailer.SendDownloadLink(ctx, mail.DownloadMail{
		To:          to,
		LicenseKey:  license.LicenseKey,
		DownloadURL: s.tokens.DownloadURL(token.Token),
	})
}

func (s *Service) bySubscription(ctx context.Context, subscriptionID string) (*models.License, error) {
	license, err := s.licenses.GetBySubscriptionID(ctx, subscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return license, nil
}

// syncRole mirrors bundle access onto the community role. Failures never block billing.
func (s *Service) syncRole(ctx context.Context, clientID string, grant bool) {
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		logSwallowed("Discord", "client lookup", err)
		return
	}
	if client.DiscordUserID == "" {
		return
	}
	if grant {
		logSwallowed("Discord", "grant role to "+client.DiscordUserID, s.roles.Grant(ctx, client.DiscordUserID))
		return
	}
	logSwallowed("Discord", "revoke role from "+client.DiscordUserID, s.roles.Revoke(ctx, client.DiscordUserID))
}
