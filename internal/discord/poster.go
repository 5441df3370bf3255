package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/sjawhar/wispr-bot/internal/transcribe"
)

// Poster sends messages to guild text channels after checking the bot may
// write there.
type Poster struct {
	session *discordgo.Session
}

func NewPoster(s *discordgo.Session) *Poster {
	return &Poster{session: s}
}

func (p *Poster) Post(ctx context.Context, channelID, content string) error {
	if channelID == "" {
		return transcribe.ErrNoChannel
	}

	if p.session.State != nil && p.session.State.User != nil {
		perms, err := p.session.State.UserChannelPermissions(p.session.State.User.ID, channelID)
		if err == nil && !canSend(perms) {
			return fmt.Errorf("channel %s: %w", channelID, transcribe.ErrPermissionDenied)
		}
	}

	if _, err := p.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return nil
}

func canSend(perms int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	need := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages)
	return perms&need == need
}
