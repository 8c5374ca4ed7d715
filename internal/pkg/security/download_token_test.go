package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "mindset-test-secret"

// Token minted by the previous Node.js implementation for the same secret and payload.
const interopToken = "eyJsaWNlbnNlSWQiOiI2ZjFjMmI5ZS0xMTExLTQyMjItODMzMy05NDQ0NTU1NTY2NjYiLCJleHBpcmVzQXQiOjE3NjcyMjU2MDAwMDB9." +
	"c9fb8ecaf7edf045efa4a84973d33d53e6768d26e3301c95fc0e632d64121779"

func TestSignDownloadToken_MatchesWireFormat(t *testing.T) {
	token, err := SignDownloadToken(DownloadClaims{
		LicenseID: "6f1c2b9e-1111-4222-8333-944455556666",
		ExpiresAt: 1767225600000,
	}, testSecret)
	require.NoError(t, err)
	assert.Equal(t, interopToken, token)
}

func TestVerifyDownloadToken_RoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	cases := []DownloadClaims{
		{LicenseID: "lic-1", ExpiresAt: now.Add(time.Second).UnixMilli()},
		{LicenseID: "6f1c2b9e-1111-4222-8333-944455556666", ExpiresAt: now.Add(180 * 24 * time.Hour).UnixMilli()},
		{LicenseID: "ünïcode-id", ExpiresAt: now.UnixMilli()},
	}

	for _, claims := range cases {
		token, err := SignDownloadToken(claims, testSecret)
		require.NoError(t, err)

		got, err := VerifyDownloadToken(token, testSecret, now)
		require.NoError(t, err, claims.LicenseID)
		assert.Equal(t, claims, *got)
	}
}

func TestVerifyDownloadToken_Expired(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	token, err := SignDownloadToken(DownloadClaims{LicenseID: "lic-1", ExpiresAt: now.Add(-time.Millisecond).UnixMilli()}, testSecret)
	require.NoError(t, err)

	_, err = VerifyDownloadToken(token, testSecret, now)
	assert.ErrorIs(t, err, ErrLinkExpired)

	// Integrity alone still passes.
	claims, err := ParseDownloadToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "lic-1", claims.LicenseID)
}

func TestVerifyDownloadToken_MissingDeadlineIsExpired(t *testing.T) {
	token, err := SignDownloadToken(DownloadClaims{LicenseID: "lic-1"}, testSecret)
	require.NoError(t, err)

	_, err = VerifyDownloadToken(token, testSecret, time.Now())
	assert.ErrorIs(t, err, ErrLinkExpired)
}

func TestVerifyDownloadToken_AnyTamperedByteIsInvalid(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	token, err := SignDownloadToken(DownloadClaims{LicenseID: "lic-1", ExpiresAt: now.Add(time.Hour).UnixMilli()}, testSecret)
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			continue
		}
		b := []byte(token)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		_, err := VerifyDownloadToken(string(b), testSecret, now)
		require.Error(t, err, "byte %d", i)
		assert.ErrorIs(t, err, ErrInvalidToken, "byte %d", i)
	}
}

func TestVerifyDownloadToken_StructuralFailures(t *testing.T) {
	now := time.Now()
	valid, err := SignDownloadToken(DownloadClaims{LicenseID: "lic-1", ExpiresAt: now.Add(time.Hour).UnixMilli()}, testSecret)
	require.NoError(t, err)
	payloadB64 := strings.SplitN(valid, ".", 2)[0]

	cases := map[string]string{
		"empty":          "",
		"no separator":   strings.ReplaceAll(valid, ".", ""),
		"three parts":    valid + ".00",
		"non-hex sig":    payloadB64 + ".zz",
		"short sig":      payloadB64 + ".abcd",
		"signed garbage": "bm90LWpzb24." + signPayload("bm90LWpzb24", testSecret),
		"bad base64":     "***." + signPayload("***", testSecret),
		"no license id":  "e30." + signPayload("e30", testSecret),
		"other secret":   mustSign(t, now, "another-secret"),
	}

	for name, token := range cases {
		_, err := VerifyDownloadToken(token, testSecret, now)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestDownloadToken_RequiresSecret(t *testing.T) {
	_, err := SignDownloadToken(DownloadClaims{LicenseID: "lic-1", ExpiresAt: 1}, "")
	assert.True(t, errors.Is(err, ErrSecretMissing))

	_, err = VerifyDownloadToken(interopToken, "", time.Now())
	assert.True(t, errors.Is(err, ErrSecretMissing))
}

func TestDownloadClaimsDeadline(t *testing.T) {
	c := DownloadClaims{ExpiresAt: 1767225600000}
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), c.Deadline().UTC())
}

func mustSign(t *testing.T, now time.Time, secret string) string {
	t.Helper()
	token, err := SignDownloadToken(DownloadClaims{LicenseID: "lic-1", ExpiresAt: now.Add(time.Hour).UnixMilli()}, secret)
	require.NoError(t, err)
	return token
}
