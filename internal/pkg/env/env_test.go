package env

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := Env
	Env = values
	t.Cleanup(func() { Env = prev })
}

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	withEnv(t, map[string]string{"APP_PORT": "4100"})
	t.Setenv("APP_PORT", "9999")

	assert.Equal(t, "4100", GetEnv("APP_PORT", "4000"))
}

func TestGetEnvFallsBackToProcessEnv(t *testing.T) {
	withEnv(t, map[string]string{})
	t.Setenv("BACKOFFICE_TEST_KEY", "from-os")

	assert.Equal(t, "from-os", GetEnv("BACKOFFICE_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("BACKOFFICE_TEST_UNSET", "def"))
}

func TestTypedGetters(t *testing.T) {
	withEnv(t, map[string]string{
		"DOWNLOAD_MAX": "25",
		"BAD_INT":      "many",
		"S3_ENABLED":   "true",
		"DOWNLOAD_TTL": "72h",
		"BAD_DURATION": "soon",
		"PROXIES":      " 10.0.0.1, ,10.0.0.0/8 ",
	})

	assert.Equal(t, 25, GetInt("DOWNLOAD_MAX", 3))
	assert.Equal(t, 3, GetInt("BAD_INT", 3))
	assert.Equal(t, 7, GetInt("UNSET_INT", 7))
	assert.True(t, GetBool("S3_ENABLED", false))
	assert.False(t, GetBool("UNSET_BOOL", false))
	assert.Equal(t, 72*time.Hour, GetDuration("DOWNLOAD_TTL", time.Hour))
	assert.Equal(t, time.Hour, GetDuration("BAD_DURATION", time.Hour))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.0/8"}, GetList("PROXIES"))
	assert.Empty(t, GetList("UNSET_LIST"))
}

func TestRequire(t *testing.T) {
	withEnv(t, map[string]string{"DOWNLOAD_SECRET": "s3cr3t", "SMTP_HOST": "  "})

	require.NoError(t, Require("DOWNLOAD_SECRET"))

	err := Require("DOWNLOAD_SECRET", "SMTP_HOST", "BACKOFFICE_NEVER_SET")
	require.Error(t, err)

	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"SMTP_HOST", "BACKOFFICE_NEVER_SET"}, missing.Keys)
	assert.Contains(t, err.Error(), "SMTP_HOST")
}
