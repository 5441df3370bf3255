package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sjawhar/wispr-bot/internal/metrics"
)

// Close reasons reported to metrics and event listeners.
const (
	ReasonLeave        = "leave"
	ReasonChannelEmpty = "channel_empty"
	ReasonMoved        = "moved"
	ReasonCaptureError = "capture_error"
	ReasonShutdown     = "shutdown"
)

type Options struct {
	ChunkDuration time.Duration
	GraceInterval time.Duration
	Hub           EventBroadcaster
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Manager implements the voice commands and auto-join on top of a Registry.
type Manager struct {
	registry  *Registry
	connector Connector
	settings  Settings
	sched     *scheduler
	hub       EventBroadcaster
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewManager(registry *Registry, connector Connector, dispatcher Dispatcher, settings Settings, opts Options) *Manager {
	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = 5 * time.Second
	}
	if opts.GraceInterval < 0 {
		opts.GraceInterval = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "session")

	m := &Manager{
		registry:  registry,
		connector: connector,
		settings:  settings,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		logger:    logger,
	}
	m.sched = &scheduler{
		chunk:      opts.ChunkDuration,
		grace:      opts.GraceInterval,
		dispatcher: dispatcher,
		metrics:    opts.Metrics,
		logger:     logger,
		onFailure: func(s *Session, _ error) {
			_ = m.teardown(s, ReasonCaptureError)
		},
	}
	return m
}

// Registry returns the registry the manager operates on.
func (m *Manager) Registry() *Registry { return m.registry }

// Join connects the bot to channelID and registers a session for the guild.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) (*Session, error) {
	if channelID == "" {
		return nil, ErrNotInVoice
	}

	s, err := m.registry.Open(ctx, guildID, channelID, m.connector)
	if err != nil {
		return nil, err
	}

	m.metrics.SessionOpened()
	m.logger.Info("joined voice channel", "guild", guildID, "channel", channelID)
	if m.hub != nil {
		m.hub.BroadcastSessionStarted(guildID, channelID)
	}
	return s, nil
}

// StartTranscribing turns on chunked capture for the guild's session.
func (m *Manager) StartTranscribing(guildID string) error {
	s, ok := m.registry.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	if err := m.sched.start(s); err != nil {
		return err
	}

	m.metrics.RecordingToggled("start")
	m.logger.Info("transcription started", "guild", guildID)
	if m.hub != nil {
		m.hub.BroadcastRecordingChanged(guildID, true)
	}
	return nil
}

// StopTranscribing turns off capture. The window in progress is still
// transcribed.
func (m *Manager) StopTranscribing(guildID string) error {
	s, ok := m.registry.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	if err := m.sched.stop(s); err != nil {
		return err
	}

	m.metrics.RecordingToggled("stop")
	m.logger.Info("transcription stopped", "guild", guildID)
	if m.hub != nil {
		m.hub.BroadcastRecordingChanged(guildID, false)
	}
	return nil
}

// Leave stops capture and disconnects the guild's session.
func (m *Manager) Leave(guildID string) error {
	s, ok := m.registry.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	return m.teardown(s, ReasonLeave)
}

// AutoJoin joins channelID and starts transcribing in one step. A session
// already on channelID is reused.
func (m *Manager) AutoJoin(ctx context.Context, guildID, channelID string) error {
	if _, err := m.Join(ctx, guildID, channelID); err != nil {
		s, ok := m.registry.Get(guildID)
		if !errors.Is(err, ErrAlreadyActive) || !ok || s.ChannelID() != channelID {
			return err
		}
	}

	err := m.StartTranscribing(guildID)
	if errors.Is(err, ErrAlreadyRecording) {
		return nil
	}
	return err
}

// SpeakerJoined handles a member entering channelID. With auto-join enabled
// the bot follows into the channel and starts transcribing, leaving any other
// channel in the guild first.
func (m *Manager) SpeakerJoined(ctx context.Context, guildID, channelID string) error {
	enabled, err := m.settings.AutoJoinEnabled()
	if err != nil {
		return fmt.Errorf("read auto-join flag: %w", err)
	}
	if !enabled {
		return nil
	}

	if s, ok := m.registry.Get(guildID); ok {
		if s.ChannelID() == channelID {
			return nil
		}
		if err := m.teardown(s, ReasonMoved); err != nil && !errors.Is(err, ErrNoSession) {
			return err
		}
	}

	m.logger.Info("auto-joining voice channel", "guild", guildID, "channel", channelID)
	err = m.AutoJoin(ctx, guildID, channelID)
	if errors.Is(err, ErrAlreadyActive) {
		// another event won the race for this guild
		return nil
	}
	return err
}

// ChannelEmptied tears down the guild's session if it is on channelID.
func (m *Manager) ChannelEmptied(guildID, channelID string) error {
	s, ok := m.registry.Get(guildID)
	if !ok || s.ChannelID() != channelID {
		return nil
	}
	err := m.teardown(s, ReasonChannelEmpty)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// Status returns a snapshot of the guild's session.
func (m *Manager) Status(guildID string) (Snapshot, bool) {
	s, ok := m.registry.Get(guildID)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Sessions lists all live sessions.
func (m *Manager) Sessions() []Snapshot {
	return m.registry.List()
}

// Shutdown disconnects every session.
func (m *Manager) Shutdown() {
	for _, snap := range m.registry.List() {
		if s, ok := m.registry.Get(snap.GuildID); ok {
			if err := m.teardown(s, ReasonShutdown); err != nil && !errors.Is(err, ErrNoSession) {
				m.logger.Warn("shutdown session", "guild", snap.GuildID, "error", err)
			}
		}
	}
}

// teardown unregisters s, stops its loop and releases the connection. Only
// the first caller for a given session does the work.
func (m *Manager) teardown(s *Session, reason string) error {
	if !m.registry.removeSession(s) {
		return ErrNoSession
	}
	defer m.registry.released(s.guildID)

	if done := s.markRemoved(); done != nil {
		<-done
	}

	var err error
	if dErr := s.conn.Disconnect(); dErr != nil {
		err = &CaptureError{GuildID: s.guildID, Op: "disconnect", Err: dErr}
		m.logger.Warn("disconnect failed", "guild", s.guildID, "error", dErr)
	}

	duration := time.Since(s.joinedAt)
	m.metrics.SessionClosed(reason)
	m.logger.Info("left voice channel", "guild", s.guildID, "channel", s.channelID, "reason", reason, "duration", duration.Round(time.Second))
	if m.hub != nil {
		m.hub.BroadcastSessionEnded(s.guildID, duration, reason)
	}
	return err
}
