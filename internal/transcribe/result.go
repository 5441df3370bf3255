package transcribe

import (
	"fmt"
	"strings"
	"time"
)

// Result is the transcript of one speaker's audio within one chunk window.
type Result struct {
	GuildID   string    `json:"guild_id"`
	WindowID  string    `json:"window_id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

// Mention renders the speaker as a Discord user mention.
func (r Result) Mention() string {
	return "<@" + r.Speaker + ">"
}

// Message formats the result as the line posted to the transcript channel.
func (r Result) Message() string {
	text := strings.ReplaceAll(strings.TrimSpace(r.Text), "`", "'")
	return fmt.Sprintf("**%s** said: `%s`", r.Mention(), text)
}
