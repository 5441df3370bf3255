package server

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventEnvelope(t *testing.T) {
	events := []any{
		TranscriptEvent{Event: newEvent("transcript", time.Unix(1, 0)), GuildID: "1", Speaker: "2", Text: "hello"},
		SessionStartedEvent{Event: newEvent("session_started", time.Unix(1, 0)), GuildID: "1", ChannelID: "3"},
		SessionEndedEvent{Event: newEvent("session_ended", time.Unix(1, 0)), GuildID: "1", Duration: 30, Reason: "leave"},
		RecordingChangedEvent{Event: newEvent("recording_changed", time.Unix(1, 0)), GuildID: "1", Recording: true},
	}

	for _, event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(b, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		for _, key := range []string{"type", "version", "timestamp", "guild_id"} {
			if payload[key] == nil {
				t.Fatalf("missing %s in payload: %s", key, string(b))
			}
		}
	}
}

func TestNewEventDefaultsTimestamp(t *testing.T) {
	ev := newEvent("x", time.Time{})
	if ev.Timestamp == "" || ev.Version != EventVersion {
		t.Fatalf("unexpected event %#v", ev)
	}
}
