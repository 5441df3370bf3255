package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/sjawhar/wispr-bot/internal/session"
	"github.com/sjawhar/wispr-bot/internal/storage"
)

// Controller is the session surface the commands drive.
type Controller interface {
	Join(ctx context.Context, guildID, channelID string) (*session.Session, error)
	StartTranscribing(guildID string) error
	StopTranscribing(guildID string) error
	Leave(guildID string) error
	AutoJoin(ctx context.Context, guildID, channelID string) error
	Status(guildID string) (session.Snapshot, bool)
	SpeakerJoined(ctx context.Context, guildID, channelID string) error
	ChannelEmptied(guildID, channelID string) error
}

// SettingsStore persists per-guild and bot-wide settings.
type SettingsStore interface {
	GuildSettings(guildID string) (storage.GuildSettings, error)
	SetTranscriptChannel(guildID, channelID string) error
	SetResponseChannel(guildID, channelID string) error
	SetLanguage(guildID, language string) error
	AutoJoinEnabled() (bool, error)
	SetAutoJoin(enabled bool) error
}

// request is a parsed slash command invocation.
type request struct {
	Name         string
	GuildID      string
	UserID       string
	VoiceChannel string // caller's current voice channel, if any
	Strings      map[string]string
	Channels     map[string]string
	Ephemeral    bool
}

type commandFunc func(ctx context.Context, r request) (string, error)

var ephemeralOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionBoolean,
	Name:        "ephemeral",
	Description: "Should the response be ephemeral?",
}

func textChannelOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         "channel",
		Description:  description,
		Required:     true,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildVoice},
	}
}

// Commands returns the application commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "join", Description: "Bot joins your current voice channel.", Options: []*discordgo.ApplicationCommandOption{ephemeralOption}},
		{Name: "start_transcribing", Description: "Start live transcription of voice channel.", Options: []*discordgo.ApplicationCommandOption{ephemeralOption}},
		{Name: "stop_transcribing", Description: "Stop live transcription.", Options: []*discordgo.ApplicationCommandOption{ephemeralOption}},
		{Name: "leave", Description: "Bot leaves the voice channel.", Options: []*discordgo.ApplicationCommandOption{ephemeralOption}},
		{Name: "auto_join_and_transcribe", Description: "Join your voice channel and start transcribing.", Options: []*discordgo.ApplicationCommandOption{ephemeralOption}},
		{Name: "set_language", Description: "Set the transcription language for this server.", Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "language", Description: "Language code, e.g. fr or en", Required: true},
			ephemeralOption,
		}},
		{Name: "set_transcription_channel", Description: "Set the text channel for transcription messages.", Options: []*discordgo.ApplicationCommandOption{
			textChannelOption("Channel for transcripts"),
			ephemeralOption,
		}},
		{Name: "set_response_channel", Description: "Set the text channel for response actions.", Options: []*discordgo.ApplicationCommandOption{
			textChannelOption("Channel for keyword responses"),
			ephemeralOption,
		}},
		{Name: "activate_auto_join", Description: "Auto-join and transcribe when users join a voice channel.", Options: []*discordgo.ApplicationCommandOption{ephemeralOption}},
		{Name: "deactivate_auto_join", Description: "Stop auto-joining voice channels.", Options: []*discordgo.ApplicationCommandOption{ephemeralOption}},
		{Name: "status", Description: "Show the bot's voice and transcription status.", Options: []*discordgo.ApplicationCommandOption{ephemeralOption}},
	}
}

// commandSet maps command names to their handlers.
type commandSet struct {
	controller Controller
	settings   SettingsStore
	chunkLabel string
	handlers   map[string]commandFunc
}

func newCommandSet(controller Controller, settings SettingsStore, chunkLabel string) *commandSet {
	c := &commandSet{controller: controller, settings: settings, chunkLabel: chunkLabel}
	c.handlers = map[string]commandFunc{
		"join":                      c.join,
		"start_transcribing":        c.start,
		"stop_transcribing":         c.stop,
		"leave":                     c.leave,
		"auto_join_and_transcribe":  c.autoJoin,
		"set_language":              c.setLanguage,
		"set_transcription_channel": c.setTranscriptChannel,
		"set_response_channel":      c.setResponseChannel,
		"activate_auto_join":        c.activateAutoJoin,
		"deactivate_auto_join":      c.deactivateAutoJoin,
		"status":                    c.status,
	}
	return c
}

// run executes a command and returns the reply text. Errors become user
// facing rejections; unexpected ones are returned for logging.
func (c *commandSet) run(ctx context.Context, r request) (string, error) {
	if r.GuildID == "" {
		return "This command only works in a server.", nil
	}
	h, ok := c.handlers[r.Name]
	if !ok {
		return "Unknown command.", fmt.Errorf("unknown command %q", r.Name)
	}

	reply, err := h(ctx, r)
	if err == nil {
		return reply, nil
	}
	if msg, known := rejection(err); known {
		return msg, nil
	}
	return "Something went wrong, please try again.", err
}

func rejection(err error) (string, bool) {
	switch {
	case errors.Is(err, session.ErrNotInVoice):
		return "You must be in a voice channel to use this command.", true
	case errors.Is(err, session.ErrAlreadyActive):
		return "I'm already in a voice channel in this server. Use /leave first.", true
	case errors.Is(err, session.ErrNoSession):
		return "I'm not in a voice channel. Use /join first.", true
	case errors.Is(err, session.ErrAlreadyRecording):
		return "Already transcribing.", true
	case errors.Is(err, session.ErrNotRecording):
		return "Not currently transcribing.", true
	}
	var capErr *session.CaptureError
	if errors.As(err, &capErr) {
		return "Could not connect to the voice channel.", true
	}
	return "", false
}

func (c *commandSet) join(ctx context.Context, r request) (string, error) {
	if _, err := c.controller.Join(ctx, r.GuildID, r.VoiceChannel); err != nil {
		return "", err
	}
	return fmt.Sprintf("Joined <#%s>", r.VoiceChannel), nil
}

func (c *commandSet) start(_ context.Context, r request) (string, error) {
	if err := c.controller.StartTranscribing(r.GuildID); err != nil {
		return "", err
	}
	return fmt.Sprintf("**Started transcribing** in %s chunks...", c.chunkLabel), nil
}

func (c *commandSet) stop(_ context.Context, r request) (string, error) {
	if err := c.controller.StopTranscribing(r.GuildID); err != nil {
		return "", err
	}
	return "Stopped transcribing.", nil
}

func (c *commandSet) leave(_ context.Context, r request) (string, error) {
	if err := c.controller.Leave(r.GuildID); err != nil {
		var capErr *session.CaptureError
		if !errors.As(err, &capErr) {
			return "", err
		}
	}
	return "Left the voice channel.", nil
}

func (c *commandSet) autoJoin(ctx context.Context, r request) (string, error) {
	if r.VoiceChannel == "" {
		return "", session.ErrNotInVoice
	}
	if err := c.controller.AutoJoin(ctx, r.GuildID, r.VoiceChannel); err != nil {
		return "", err
	}
	return fmt.Sprintf("Joined <#%s> and started transcribing in %s chunks...", r.VoiceChannel, c.chunkLabel), nil
}

func (c *commandSet) setLanguage(_ context.Context, r request) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(r.Strings["language"]))
	if lang == "" {
		return "Please provide a language code.", nil
	}
	if err := c.settings.SetLanguage(r.GuildID, lang); err != nil {
		return "", err
	}
	return fmt.Sprintf("Default transcription language set to %s.", lang), nil
}

func (c *commandSet) setTranscriptChannel(_ context.Context, r request) (string, error) {
	ch := r.Channels["channel"]
	if err := c.settings.SetTranscriptChannel(r.GuildID, ch); err != nil {
		return "", err
	}
	return fmt.Sprintf("Transcription messages will now be sent to <#%s>", ch), nil
}

func (c *commandSet) setResponseChannel(_ context.Context, r request) (string, error) {
	ch := r.Channels["channel"]
	if err := c.settings.SetResponseChannel(r.GuildID, ch); err != nil {
		return "", err
	}
	return fmt.Sprintf("Response actions will now be sent to <#%s>", ch), nil
}

func (c *commandSet) activateAutoJoin(_ context.Context, _ request) (string, error) {
	if err := c.settings.SetAutoJoin(true); err != nil {
		return "", err
	}
	return "Auto-join and transcribe activated.", nil
}

func (c *commandSet) deactivateAutoJoin(_ context.Context, _ request) (string, error) {
	if err := c.settings.SetAutoJoin(false); err != nil {
		return "", err
	}
	return "Auto-join and transcribe deactivated.", nil
}

func (c *commandSet) status(_ context.Context, r request) (string, error) {
	gs, err := c.settings.GuildSettings(r.GuildID)
	if err != nil {
		return "", err
	}
	autoJoin, err := c.settings.AutoJoinEnabled()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if snap, ok := c.controller.Status(r.GuildID); ok {
		fmt.Fprintf(&b, "Voice: <#%s>", snap.ChannelID)
		if snap.Recording {
			b.WriteString(" (transcribing)\n")
		} else {
			b.WriteString(" (idle)\n")
		}
	} else {
		b.WriteString("Voice: not connected\n")
	}
	fmt.Fprintf(&b, "Language: %s\n", gs.Language)
	fmt.Fprintf(&b, "Transcripts: %s\n", channelMention(gs.TranscriptChannel))
	fmt.Fprintf(&b, "Responses: %s\n", channelMention(gs.ResponseChannel))
	fmt.Fprintf(&b, "Auto-join: %t", autoJoin)
	return b.String(), nil
}

func channelMention(id string) string {
	if id == "" {
		return "not set"
	}
	return "<#" + id + ">"
}

// parseRequest extracts the fields the handlers need from an interaction.
func parseRequest(s *discordgo.Session, i *discordgo.InteractionCreate) request {
	data := i.ApplicationCommandData()
	r := request{
		Name:      data.Name,
		GuildID:   i.GuildID,
		Strings:   make(map[string]string),
		Channels:  make(map[string]string),
		Ephemeral: true,
	}
	if i.Member != nil && i.Member.User != nil {
		r.UserID = i.Member.User.ID
	}

	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionBoolean:
			if opt.Name == "ephemeral" {
				r.Ephemeral = opt.BoolValue()
			}
		case discordgo.ApplicationCommandOptionString:
			r.Strings[opt.Name] = opt.StringValue()
		case discordgo.ApplicationCommandOptionChannel:
			if id, ok := opt.Value.(string); ok {
				r.Channels[opt.Name] = id
			}
		}
	}

	if r.GuildID != "" && r.UserID != "" && s.State != nil {
		if vs, err := s.State.VoiceState(r.GuildID, r.UserID); err == nil && vs != nil {
			r.VoiceChannel = vs.ChannelID
		}
	}
	return r
}
