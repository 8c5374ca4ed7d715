package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers every structural or signature failure. Callers must not be able
	// to tell a forged signature from a malformed payload.
	ErrInvalidToken  = errors.New("invalid token")
	ErrLinkExpired   = errors.New("link expired")
	ErrSecretMissing = errors.New("download secret is not configured")
)

// DownloadClaims is the signed payload of a download token. ExpiresAt is an absolute
// deadline in epoch milliseconds.
type DownloadClaims struct {
	LicenseID string `json:"licenseId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Deadline returns ExpiresAt as a time.Time.
func (c DownloadClaims) Deadline() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

// SignDownloadToken renders base64url(json(claims)) + "." + hex(HMAC-SHA256(secret, payloadB64)).
func SignDownloadToken(claims DownloadClaims, secret string) (string, error) {
	if secret == "" {
		return "", ErrSecretMissing
	}
	if claims.LicenseID == "" {
		return "", errors.New("license id is required for token generation")
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)
	return payloadB64 + "." + signPayload(payloadB64, secret), nil
}

// ParseDownloadToken checks integrity only and returns the embedded claims.
func ParseDownloadToken(token, secret string) (*DownloadClaims, error) {
	if secret == "" {
		return nil, ErrSecretMissing
	}
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, ErrInvalidToken
	}
	payloadB64, signatureHex := parts[0], parts[1]

	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return nil, ErrInvalidToken
	}
	expected, _ := hex.DecodeString(signPayload(payloadB64, secret))
	if !hmac.Equal(got, expected) {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(payloadB64, "="))
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims DownloadClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.LicenseID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// VerifyDownloadToken checks integrity and freshness. A payload without a deadline counts
// as expired.
func VerifyDownloadToken(token, secret string, now time.Time) (*DownloadClaims, error) {
	claims, err := ParseDownloadToken(token, secret)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt <= 0 || now.UnixMilli() > claims.ExpiresAt {
		return nil, ErrLinkExpired
	}
	return claims, nil
}

func signPayload(payloadB64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payloadB64))
	return hex.EncodeToString(mac.Sum(nil))
}
