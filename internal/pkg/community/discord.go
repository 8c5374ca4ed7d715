package community

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2/log"
)

const auditLogReason = "license billing sync"

var ErrNotReady = errors.New("discord bot not ready")

type DiscordConfig struct {
	BotToken      string
	GuildID       string
	GrantRoleID   string
	RevokeRoleIDs []string
}

// DiscordClient manages guild roles over the Discord REST API. The gateway is never opened.
type DiscordClient struct {
	config  DiscordConfig
	session *discordgo.Session

	mu      sync.Mutex
	ready   bool
	botName string
}

func NewDiscordClient(cfg DiscordConfig) (*DiscordClient, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Client = &http.Client{Timeout: 10 * time.Second}
	return &DiscordClient{config: cfg, session: session}, nil
}

// Ready verifies the bot token once. A success is cached; a failure is retried on the next call.
func (c *DiscordClient) Ready(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}

	me, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	c.ready = true
	c.botName = me.Username
	log.Infof("[Discord] bot connected as %s", c.botName)
	return nil
}

func (c *DiscordClient) Grant(ctx context.Context, userID string) error {
	if err := c.Ready(ctx); err != nil {
		return err
	}
	if err := requireUserID(userID); err != nil {
		return err
	}
	err := c.session.GuildMemberRoleAdd(c.config.GuildID, userID, c.config.GrantRoleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(auditLogReason))
	if err != nil {
		return fmt.Errorf("discord grant role %s to %s: %w", c.config.GrantRoleID, userID, err)
	}
	log.Infof("[Discord] granted role %s to %s", c.config.GrantRoleID, userID)
	return nil
}

func (c *DiscordClient) Revoke(ctx context.Context, userID string) error {
	if err := c.Ready(ctx); err != nil {
		return err
	}
	if err := requireUserID(userID); err != nil {
		return err
	}
	var errs []error
	for _, roleID := range c.config.RevokeRoleIDs {
		err := c.session.GuildMemberRoleRemove(c.config.GuildID, userID, roleID,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(auditLogReason))
		switch {
		case err == nil:
			log.Infof("[Discord] revoked role %s from %s", roleID, userID)
		case isNotFound(err):
			// Member already left the guild.
		default:
			errs = append(errs, fmt.Errorf("discord revoke role %s from %s: %w", roleID, userID, err))
		}
	}
	return errors.Join(errs...)
}

func requireUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("discord user id is required")
	}
	return nil
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
