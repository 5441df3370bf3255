package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type TranscriptEvent struct {
	Event
	GuildID  string `json:"guild_id"`
	WindowID string `json:"window_id"`
	Speaker  string `json:"speaker"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

type SessionStartedEvent struct {
	Event
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

type SessionEndedEvent struct {
	Event
	GuildID  string  `json:"guild_id"`
	Duration float64 `json:"duration"`
	Reason   string  `json:"reason"`
}

type RecordingChangedEvent struct {
	Event
	GuildID   string `json:"guild_id"`
	Recording bool   `json:"recording"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
