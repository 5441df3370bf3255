package discord

import (
	"context"
	"log/slog"
)

// voiceMove is one member's voice channel change. An empty channel means
// "not in voice".
type voiceMove struct {
	GuildID string
	UserID  string
	Bot     bool
	Before  string
	After   string
}

// presence turns voice state changes into auto-join and auto-leave calls.
type presence struct {
	controller Controller
	settings   SettingsStore
	logger     *slog.Logger
}

// handle applies one move. remaining reports how many members other than the
// bot are left in a channel.
func (p *presence) handle(ctx context.Context, mv voiceMove, botID string, remaining func(channelID string) int) {
	log := p.logger.With("guild", mv.GuildID, "user", mv.UserID)

	if mv.UserID == botID {
		// Disconnected by a moderator or a network drop.
		if mv.Before != "" && mv.After == "" {
			if err := p.controller.ChannelEmptied(mv.GuildID, mv.Before); err != nil {
				log.Warn("release session after forced disconnect", "error", err)
			}
		}
		return
	}
	if mv.Bot {
		return
	}

	if mv.Before == "" && mv.After != "" {
		if err := p.controller.SpeakerJoined(ctx, mv.GuildID, mv.After); err != nil {
			log.Warn("auto-join failed", "channel", mv.After, "error", err)
		} else {
			p.defaultTranscriptChannel(mv.GuildID, mv.After, log)
		}
	}

	if mv.Before != "" && mv.Before != mv.After && remaining(mv.Before) == 0 {
		if err := p.controller.ChannelEmptied(mv.GuildID, mv.Before); err != nil {
			log.Warn("leave empty channel", "channel", mv.Before, "error", err)
		}
	}
}

// defaultTranscriptChannel points transcripts at the voice channel's text
// chat when the bot auto-joined a guild that has no transcript channel yet.
func (p *presence) defaultTranscriptChannel(guildID, channelID string, log *slog.Logger) {
	snap, ok := p.controller.Status(guildID)
	if !ok || snap.ChannelID != channelID {
		return
	}
	enabled, err := p.settings.AutoJoinEnabled()
	if err != nil || !enabled {
		return
	}
	gs, err := p.settings.GuildSettings(guildID)
	if err != nil || gs.TranscriptChannel != "" {
		return
	}
	if err := p.settings.SetTranscriptChannel(guildID, channelID); err != nil {
		log.Warn("set default transcript channel", "error", err)
		return
	}
	log.Info("transcripts default to voice channel chat", "channel", channelID)
}
