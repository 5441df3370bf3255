// Package discord connects the session manager to Discord: slash commands,
// voice presence events, voice capture and message delivery.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

const commandTimeout = 30 * time.Second

// NewSession creates a discordgo session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	s.StateEnabled = true
	return s, nil
}

type Options struct {
	// ChunkLabel is shown in command replies, e.g. "5-second".
	ChunkLabel string
	Logger     *slog.Logger
}

// Bot wires Discord events to the controller.
type Bot struct {
	session  *discordgo.Session
	commands *commandSet
	presence *presence
	settings SettingsStore
	logger   *slog.Logger

	ctx context.Context
}

func New(s *discordgo.Session, controller Controller, settings SettingsStore, opts Options) *Bot {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ChunkLabel == "" {
		opts.ChunkLabel = "5-second"
	}
	logger := opts.Logger.With("component", "discord")

	b := &Bot{
		session:  s,
		commands: newCommandSet(controller, settings, opts.ChunkLabel),
		presence: &presence{controller: controller, settings: settings, logger: logger},
		settings: settings,
		logger:   logger,
		ctx:      context.Background(),
	}

	s.AddHandler(b.onReady)
	s.AddHandler(b.onInteraction)
	s.AddHandler(b.onVoiceStateUpdate)
	return b
}

// Open connects to the gateway. ctx bounds event handling work.
func (b *Bot) Open(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("logged in", "user", r.User.String(), "guilds", len(r.Guilds))

	enabled, err := b.settings.AutoJoinEnabled()
	if err != nil {
		b.logger.Warn("read auto-join flag", "error", err)
		return
	}
	b.logger.Info("auto-join state", "enabled", enabled)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	r := parseRequest(s, i)
	log := b.logger.With("command", r.Name, "guild", r.GuildID, "user", r.UserID)

	var flags discordgo.MessageFlags
	if r.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	// Voice joins can outlast the interaction deadline, so acknowledge first.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		log.Warn("acknowledge interaction", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	reply, err := b.commands.run(ctx, r)
	if err != nil {
		log.Error("command failed", "error", err)
	} else {
		log.Info("command handled")
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		log.Warn("send command reply", "error", err)
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || vs.GuildID == "" {
		return
	}

	mv := voiceMove{
		GuildID: vs.GuildID,
		UserID:  vs.UserID,
		After:   vs.ChannelID,
		Bot:     vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot,
	}
	if vs.BeforeUpdate != nil {
		mv.Before = vs.BeforeUpdate.ChannelID
	}

	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}

	b.presence.handle(b.ctx, mv, botID, func(channelID string) int {
		return membersIn(s, vs.GuildID, channelID, botID)
	})
}

// membersIn counts members other than the bot in a voice channel.
func membersIn(s *discordgo.Session, guildID, channelID, botID string) int {
	if s.State == nil {
		return 0
	}
	g, err := s.State.Guild(guildID)
	if err != nil {
		return 0
	}

	s.State.RLock()
	defer s.State.RUnlock()

	n := 0
	for _, st := range g.VoiceStates {
		if st.ChannelID == channelID && st.UserID != botID {
			n++
		}
	}
	return n
}

// RegisterCommands replaces the bot's slash commands. An empty guildID
// registers them globally.
func RegisterCommands(s *discordgo.Session, guildID string) ([]string, error) {
	if s.State == nil || s.State.User == nil {
		return nil, fmt.Errorf("discord session is not open")
	}
	created, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands())
	if err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	names := make([]string, len(created))
	for i, c := range created {
		names[i] = c.Name
	}
	return names, nil
}

// ClearCommands removes all of the bot's slash commands.
func ClearCommands(s *discordgo.Session, guildID string) error {
	if s.State == nil || s.State.User == nil {
		return fmt.Errorf("discord session is not open")
	}
	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, []*discordgo.ApplicationCommand{}); err != nil {
		return fmt.Errorf("clear commands: %w", err)
	}
	return nil
}
