package session

import (
	"context"
	"time"

	"github.com/sjawhar/wispr-bot/internal/audio"
)

// Connection is an exclusive handle on one voice channel connection. Only the
// session's scheduler loop calls the capture methods.
type Connection interface {
	StartCapture() error
	StopCapture() error
	Collect() (audio.Window, error)
	Disconnect() error
}

// Connector opens voice connections.
type Connector interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Dispatcher receives completed chunk windows. Dispatch must not block on
// transcription.
type Dispatcher interface {
	Dispatch(w audio.Window)
}

// Settings exposes the process-wide flags the manager reads.
type Settings interface {
	AutoJoinEnabled() (bool, error)
}

type EventBroadcaster interface {
	BroadcastSessionStarted(guildID, channelID string)
	BroadcastSessionEnded(guildID string, duration time.Duration, reason string)
	BroadcastRecordingChanged(guildID string, recording bool)
}

// State is the scheduler state of a session.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StateDraining:
		return "draining"
	default:
		return "idle"
	}
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Recording bool      `json:"recording"`
	State     string    `json:"state"`
	JoinedAt  time.Time `json:"joined_at"`
}
