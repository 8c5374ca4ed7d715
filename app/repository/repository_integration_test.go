package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/internal/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB connects to the MySQL instance named by TEST_DB_DSN or skips the test.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set; skipping MySQL repository tests")
	}
	db, err := database.Open(dsn)
	if err != nil {
		t.Skipf("MySQL not reachable: %v", err)
	}
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		db.Exec("DELETE FROM download_tokens")
		db.Exec("DELETE FROM licenses")
		db.Exec("DELETE FROM clients")
	})
	return db
}

func seedLicense(t *testing.T, repos *Repositories, key string) *models.License {
	t.Helper()
	ctx := context.Background()

	client, err := repos.Client.FindOrCreateByEmail(ctx, "Trader@Example.com ")
	require.NoError(t, err)
	license := &models.License{LicenseKey: key, ClientID: client.ID, Plan: models.LicensePlanMonthly, Status: models.LicenseStatusActive}
	require.NoError(t, repos.License.Create(ctx, license))
	return license
}

func TestClientRepository_FindOrCreateIsIdempotent(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()

	a, err := repos.Client.FindOrCreateByEmail(ctx, "Trader@Example.com")
	require.NoError(t, err)
	b, err := repos.Client.FindOrCreateByEmail(ctx, " trader@example.com ")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "trader@example.com", b.Email)
}

func TestLicenseRepository_BindDeviceIsExclusive(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	license := seedLicense(t, repos, "LIC-INTG-BIND-0001")
	now := time.Now().UTC().Truncate(time.Second)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, hw := range []string{"HW1", "HW2"} {
		wg.Add(1)
		go func(i int, hw string) {
			defer wg.Done()
			_, ok, err := repos.License.BindDevice(ctx, license.ID, DeviceBinding{HardwareID: hw, DeviceName: hw + "-pc", At: now, FirstActivation: true})
			assert.NoError(t, err)
			results[i] = ok
		}(i, hw)
	}
	wg.Wait()

	assert.NotEqual(t, results[0], results[1], "exactly one device must win the binding")

	stored, err := repos.License.GetByID(ctx, license.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.HardwareID)
	require.NotNil(t, stored.ActivatedAt)
	assert.True(t, stored.IsActive)

	// Re-binding the winner keeps the first activation time.
	later := now.Add(time.Hour)
	again, ok, err := repos.License.BindDevice(ctx, license.ID, DeviceBinding{HardwareID: *stored.HardwareID, At: later})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, again.ActivatedAt.Equal(*stored.ActivatedAt))
}

func TestLicenseRepository_ReleaseDevice(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	license := seedLicense(t, repos, "LIC-INTG-FREE-0001")
	now := time.Now().UTC()

	_, ok, err := repos.License.BindDevice(ctx, license.ID, DeviceBinding{HardwareID: "HW1", At: now, FirstActivation: true})
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = repos.License.ReleaseDevice(ctx, license.ID, "HW2", now)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, ok, err := repos.License.ReleaseDevice(ctx, license.ID, "HW1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, stored.HardwareID)
	assert.False(t, stored.IsActive)

	// Releasing an unbound license is a no-op success.
	_, ok, err = repos.License.ReleaseDevice(ctx, license.ID, "HW1", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDownloadTokenRepository_IncrementStopsAtQuota(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	license := seedLicense(t, repos, "LIC-INTG-QUOT-0001")

	token := &models.DownloadToken{LicenseID: license.ID, Token: "tok-quota", FileKey: models.DefaultFileKey, ExpiresAt: time.Now().Add(time.Hour), MaxDownloads: 3}
	require.NoError(t, repos.DownloadToken.Create(ctx, token))

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repos.DownloadToken.IncrementDownloads(ctx, token.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	stored, err := repos.DownloadToken.GetByToken(ctx, "tok-quota")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.DownloadsUsed)

	usable, err := repos.DownloadToken.ListUsableByLicenseIDs(ctx, []string{license.ID}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, usable)
}
