package licensing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/app/models"
	"gorm.io/gorm"
)

// DiscordLink is the result of linking a customer's Discord account.
type DiscordLink struct {
	ClientID      string
	DiscordUserID string
	// RoleGranted is set when the customer holds a live bundle license.
	RoleGranted bool
}

// LinkDiscord stores the Discord account of the customer with that email and grants the
// community role when one of their licenses includes it. A previously linked account loses it.
func (s *Service) LinkDiscord(ctx context.Context, email, discordUserID string) (*DiscordLink, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	discordUserID = strings.TrimSpace(discordUserID)
	if discordUserID == "" {
		return nil, ErrDiscordIDRequired
	}

	client, err := s.clients.GetByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCustomer
	}
	if err != nil {
		return nil, err
	}
	previous := client.DiscordUserID
	if err := s.clients.SetDiscordUserID(ctx, client.ID, discordUserID); err != nil {
		return nil, fmt.Errorf("link discord account: %w", err)
	}
	log.Infof("[Licensing] linked discord %s to %s", discordUserID, email)

	entitled, err := s.hasCommunityAccess(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	if entitled {
		if previous != "" && previous != discordUserID {
			logSwallowed("Discord", "revoke role from "+previous, s.roles.Revoke(ctx, previous))
		}
		s.syncRole(ctx, client.ID, true)
	}
	return &DiscordLink{ClientID: client.ID, DiscordUserID: discordUserID, RoleGranted: entitled}, nil
}

// hasCommunityAccess reports whether the client owns an unexpired, active bundle license.
func (s *Service) hasCommunityAccess(ctx context.Context, clientID string) (bool, error) {
	licenses, err := s.licenses.ListByClientID(ctx, clientID)
	if err != nil {
		return false, err
	}
	now := s.now()
	for i := range licenses {
		l := &licenses[i]
		if grantsCommunityRole(l.Plan) && !l.IsRevoked() && !l.IsExpiredAt(now) {
			return true, nil
		}
	}
	return false, nil
}
