package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestLicenseIsExpiredAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	l := &License{}
	assert.False(t, l.IsExpiredAt(now), "license without deadline never expires")

	past := now.Add(-time.Minute)
	l.ExpiresAt = &past
	assert.True(t, l.IsExpiredAt(now))

	future := now.Add(time.Minute)
	l.ExpiresAt = &future
	assert.False(t, l.IsExpiredAt(now))
}

func TestLicenseIsRevoked(t *testing.T) {
	for _, status := range []string{LicenseStatusCancelled, LicenseStatusPaymentFailed, LicenseStatusExpired} {
		assert.True(t, (&License{Status: status}).IsRevoked(), status)
	}
	assert.False(t, (&License{Status: LicenseStatusActive}).IsRevoked())
	assert.False(t, (&License{}).IsRevoked())
}

func TestLicenseIsBoundElsewhere(t *testing.T) {
	l := &License{}
	assert.False(t, l.IsBoundElsewhere("HW1"))

	l.HardwareID = strPtr("HW1")
	assert.False(t, l.IsBoundElsewhere("HW1"))
	assert.True(t, l.IsBoundElsewhere("HW2"))
}

func TestLicenseDeviceName(t *testing.T) {
	l := &License{}
	assert.Equal(t, UnknownDeviceName, l.DeviceName())

	l.ActivatedDeviceName = strPtr("DESKTOP-1 (Windows)")
	assert.Equal(t, "DESKTOP-1 (Windows)", l.DeviceName())
}

func TestDownloadTokenUsability(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := &DownloadToken{ExpiresAt: now.Add(time.Hour), MaxDownloads: 2}

	assert.True(t, tok.IsUsableAt(now))
	tok.DownloadsUsed = 2
	assert.False(t, tok.HasQuota())
	assert.False(t, tok.IsUsableAt(now))

	tok.DownloadsUsed = 0
	assert.False(t, tok.IsUsableAt(now.Add(2*time.Hour)))
}

func TestDownloadTokenResolvedFileKey(t *testing.T) {
	assert.Equal(t, DefaultFileKey, (&DownloadToken{}).ResolvedFileKey())
	assert.Equal(t, "beta.exe", (&DownloadToken{FileKey: "beta.exe"}).ResolvedFileKey())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "trader@example.com", NormalizeEmail("  Trader@Example.COM "))
}

func TestBillingWebhookEventNeedsProcessing(t *testing.T) {
	e := &BillingWebhookEvent{}
	assert.True(t, e.NeedsProcessing())

	now := time.Now()
	e.ProcessedAt = &now
	assert.False(t, e.NeedsProcessing())

	e.ProcessingError = "boom"
	assert.True(t, e.NeedsProcessing())
}
