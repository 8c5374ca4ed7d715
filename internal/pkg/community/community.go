// Package community keeps chat-community roles in step with bundle licenses.
package community

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
)

// RoleSyncer grants and revokes the member role of a linked chat account.
type RoleSyncer interface {
	Grant(ctx context.Context, userID string) error
	Revoke(ctx context.Context, userID string) error
}

// NoopRoleSyncer is used when no community is configured.
type NoopRoleSyncer struct{}

func (NoopRoleSyncer) Grant(context.Context, string) error  { return nil }
func (NoopRoleSyncer) Revoke(context.Context, string) error { return nil }

// NewRoleSyncerFromEnv returns a Discord client when DISCORD_BOT_TOKEN, DISCORD_GUILD_ID and
// DISCORD_ROLE_MINDSET_MEMBER are set, and a NoopRoleSyncer otherwise.
func NewRoleSyncerFromEnv() RoleSyncer {
	token := strings.TrimSpace(env.GetEnv("DISCORD_BOT_TOKEN", ""))
	guild := strings.TrimSpace(env.GetEnv("DISCORD_GUILD_ID", ""))
	role := strings.TrimSpace(env.GetEnv("DISCORD_ROLE_MINDSET_MEMBER", ""))
	if token == "" || guild == "" || role == "" {
		log.Info("[Discord] not configured, role sync disabled")
		return NoopRoleSyncer{}
	}

	revoke := []string{role}
	if member := strings.TrimSpace(env.GetEnv("DISCORD_ROLE_MEMBER", "")); member != "" {
		revoke = append(revoke, member)
	}
	client, err := NewDiscordClient(DiscordConfig{
		BotToken:      token,
		GuildID:       guild,
		GrantRoleID:   role,
		RevokeRoleIDs: revoke,
	})
	if err != nil {
		log.Errorf("[Discord] %v, role sync disabled", err)
		return NoopRoleSyncer{}
	}
	return client
}
