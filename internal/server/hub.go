package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/wispr-bot/internal/transcribe"
)

// Hub fans events out to websocket subscribers. Slow subscribers miss
// events rather than block the sender.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastTranscript(r transcribe.Result) {
	h.broadcastEvent(TranscriptEvent{
		Event:    newEvent("transcript", r.Timestamp),
		GuildID:  r.GuildID,
		WindowID: r.WindowID,
		Speaker:  r.Speaker,
		Text:     r.Text,
		Language: r.Language,
	})
}

func (h *Hub) BroadcastSessionStarted(guildID, channelID string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:     newEvent("session_started", time.Now().UTC()),
		GuildID:   guildID,
		ChannelID: channelID,
	})
}

func (h *Hub) BroadcastSessionEnded(guildID string, duration time.Duration, reason string) {
	h.broadcastEvent(SessionEndedEvent{
		Event:    newEvent("session_ended", time.Now().UTC()),
		GuildID:  guildID,
		Duration: duration.Seconds(),
		Reason:   reason,
	})
}

func (h *Hub) BroadcastRecordingChanged(guildID string, recording bool) {
	h.broadcastEvent(RecordingChangedEvent{
		Event:     newEvent("recording_changed", time.Now().UTC()),
		GuildID:   guildID,
		Recording: recording,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal error", "error", err)
		return
	}
	h.Broadcast(payload)
}
