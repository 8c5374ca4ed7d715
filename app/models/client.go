package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is the paying customer, identified by email. Licenses hang off it.
type Client struct {
	ID            string    `gorm:"type:char(36);primaryKey" json:"id"`
	Email         string    `gorm:"type:varchar(200);not null;uniqueIndex" json:"email"`
	DiscordUserID string    `gorm:"type:varchar(32);default:null;index" json:"discord_user_id,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// NormalizeEmail is the canonical form used for client lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
