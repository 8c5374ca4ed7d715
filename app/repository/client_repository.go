package repository

import (
	"context"

	"github.com/mindsetalert/backoffice/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository instance
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

// FindOrCreateByEmail inserts the client unless the email exists and returns the stored row.
// Concurrent callers for the same email converge on one client.
func (r *clientRepository) FindOrCreateByEmail(ctx context.Context, email string) (*models.Client, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, gorm.ErrRecordNotFound
	}
	candidate := models.Client{Email: email}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&candidate).Error
	if err != nil {
		return nil, err
	}
	return r.GetByEmail(ctx, email)
}

// GetByEmail retrieves a client by normalized email
func (r *clientRepository) GetByEmail(ctx context.Context, email string) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// GetByID retrieves a client by its ID
func (r *clientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// SetDiscordUserID stores the linked Discord account of a client
func (r *clientRepository) SetDiscordUserID(ctx context.Context, id, discordUserID string) error {
	var value interface{}
	if discordUserID != "" {
		value = discordUserID
	}
	res := r.db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", id).Update("discord_user_id", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Unchanged values report zero rows on MySQL.
		_, err := r.GetByID(ctx, id)
		return err
	}
	return nil
}
