// Package repotest provides in-memory repositories with the same conditional-update
// semantics as the MySQL implementations.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mindsetalert/backoffice/app/models"
	"github.com/mindsetalert/backoffice/app/repository"
	"gorm.io/gorm"
)

// Store backs all three repositories with one mutex.
type Store struct {
	mu       sync.Mutex
	clients  map[string]models.Client
	licenses map[string]models.License
	tokens   map[string]models.DownloadToken
	seq      int

	// Now stamps CreatedAt; tests may replace it.
	Now func() time.Time
}

func NewStore() *Store {
	return &Store{
		clients:  make(map[string]models.Client),
		licenses: make(map[string]models.License),
		tokens:   make(map[string]models.DownloadToken),
		Now:      time.Now,
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Client:        clientRepo{s},
		License:       licenseRepo{s},
		DownloadToken: tokenRepo{s},
	}
}

// stamp returns strictly increasing creation times so newest-first ordering is stable.
func (s *Store) stamp() time.Time {
	s.seq++
	return s.Now().Add(time.Duration(s.seq) * time.Microsecond)
}

// License returns a copy of the stored license.
func (s *Store) License(id string) (models.License, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[id]
	return l, ok
}

// Token returns a copy of the stored token row.
func (s *Store) Token(token string) (models.DownloadToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Token == token {
			return t, true
		}
	}
	return models.DownloadToken{}, false
}

// TokensFor lists every token of a license, newest first.
func (s *Store) TokensFor(licenseID string) []models.DownloadToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DownloadToken
	for _, t := range s.tokens {
		if t.LicenseID == licenseID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// PutLicense inserts or replaces a license as-is.
func (s *Store) PutLicense(l models.License) models.License {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.stamp()
	}
	s.licenses[l.ID] = l
	return l
}

// PutClient inserts or replaces a client as-is.
// Client returns a copy of the stored client.
func (s *Store) Client(id string) (models.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *Store) PutClient(c models.Client) models.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Email = models.NormalizeEmail(c.Email)
	s.clients[c.ID] = c
	return c
}

// PutToken inserts or replaces a token row as-is.
func (s *Store) PutToken(t models.DownloadToken) models.DownloadToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.stamp()
	}
	s.tokens[t.ID] = t
	return t
}

type clientRepo struct{ s *Store }

func (r clientRepo) FindOrCreateByEmail(_ context.Context, email string) (*models.Client, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, gorm.ErrRecordNotFound
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.clients {
		if c.Email == email {
			return &c, nil
		}
	}
	c := models.Client{ID: uuid.NewString(), Email: email, CreatedAt: r.s.stamp()}
	r.s.clients[c.ID] = c
	return &c, nil
}

func (r clientRepo) GetByEmail(_ context.Context, email string) (*models.Client, error) {
	email = models.NormalizeEmail(email)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.clients {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r clientRepo) GetByID(_ context.Context, id string) (*models.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r clientRepo) SetDiscordUserID(_ context.Context, id, discordUserID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.DiscordUserID = discordUserID
	r.s.clients[id] = c
	return nil
}

type licenseRepo struct{ s *Store }

func (r licenseRepo) Create(_ context.Context, l *models.License) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.licenses {
		if existing.LicenseKey == l.LicenseKey {
			return gorm.ErrDuplicatedKey
		}
		if l.SubscriptionID != "" && existing.SubscriptionID == l.SubscriptionID {
			return gorm.ErrDuplicatedKey
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = r.s.stamp()
	l.UpdatedAt = l.CreatedAt
	r.s.licenses[l.ID] = *l
	return nil
}

func (r licenseRepo) GetByID(_ context.Context, id string) (*models.License, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.licenses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &l, nil
}

func (r licenseRepo) GetByKey(_ context.Context, key string) (*models.License, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.licenses {
		if l.LicenseKey == key {
			return &l, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r licenseRepo) GetBySubscriptionID(_ context.Context, subscriptionID string) (*models.License, error) {
	if subscriptionID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *models.License
	for _, l := range r.s.licenses {
		if l.SubscriptionID != subscriptionID {
			continue
		}
		if found == nil || l.CreatedAt.Before(found.CreatedAt) {
			l := l
			found = &l
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r licenseRepo) ListByClientID(_ context.Context, clientID string) ([]models.License, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.License
	for _, l := range r.s.licenses {
		if l.ClientID == clientID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r licenseRepo) UpdateLifecycle(_ context.Context, id string, lc repository.LicenseLifecycle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.licenses[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.Status = lc.Status
	l.IsActive = lc.IsActive
	l.ExpiresAt = lc.ExpiresAt
	r.s.licenses[id] = l
	return nil
}

func (r licenseRepo) BindDevice(_ context.Context, id string, b repository.DeviceBinding) (*models.License, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.licenses[id]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if l.HardwareID != nil && *l.HardwareID != "" && *l.HardwareID != b.HardwareID {
		return &l, false, nil
	}
	hw, name, at := b.HardwareID, b.DeviceName, b.At
	l.HardwareID = &hw
	l.ActivatedDeviceName = &name
	l.IsActive = true
	l.LastValidationAt = &at
	if l.ActivatedAt == nil {
		l.ActivatedAt = &at
	}
	if b.FirstActivation {
		l.Status = models.LicenseStatusActive
	}
	r.s.licenses[id] = l
	return &l, true, nil
}

func (r licenseRepo) ReleaseDevice(_ context.Context, id, hardwareID string, at time.Time) (*models.License, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.licenses[id]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if l.HardwareID != nil && *l.HardwareID != "" && *l.HardwareID != hardwareID {
		return &l, false, nil
	}
	l.HardwareID = nil
	l.ActivatedDeviceName = nil
	l.IsActive = false
	l.LastValidationAt = &at
	r.s.licenses[id] = l
	return &l, true, nil
}

type tokenRepo struct{ s *Store }

func (r tokenRepo) Create(_ context.Context, t *models.DownloadToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tokens {
		if existing.Token == t.Token {
			return gorm.ErrDuplicatedKey
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = r.s.stamp()
	r.s.tokens[t.ID] = *t
	return nil
}

func (r tokenRepo) GetByToken(_ context.Context, token string) (*models.DownloadToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.Token == token {
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r tokenRepo) GetLatestByLicenseID(_ context.Context, licenseID string) (*models.DownloadToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.DownloadToken
	for _, t := range r.s.tokens {
		if t.LicenseID != licenseID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			t := t
			latest = &t
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (r tokenRepo) ListUsableByLicenseIDs(_ context.Context, licenseIDs []string, now time.Time) ([]models.DownloadToken, error) {
	wanted := make(map[string]struct{}, len(licenseIDs))
	for _, id := range licenseIDs {
		wanted[id] = struct{}{}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.DownloadToken
	for _, t := range r.s.tokens {
		if _, ok := wanted[t.LicenseID]; ok && t.IsUsableAt(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r tokenRepo) IncrementDownloads(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok || t.DownloadsUsed >= t.MaxDownloads {
		return false, nil
	}
	t.DownloadsUsed++
	r.s.tokens[id] = t
	return true, nil
}
