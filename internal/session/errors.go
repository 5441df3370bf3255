package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned when a guild already has a session or a
	// connection attempt in progress.
	ErrAlreadyActive = errors.New("already connected to a voice channel in this server")
	// ErrNoSession is returned when an operation needs a session the guild
	// does not have.
	ErrNoSession = errors.New("not connected to a voice channel in this server")
	// ErrAlreadyRecording is returned by StartTranscribing while recording.
	ErrAlreadyRecording = errors.New("already transcribing")
	// ErrNotRecording is returned by StopTranscribing while not recording.
	ErrNotRecording = errors.New("not transcribing")
	// ErrNotInVoice is returned when the caller is not in a voice channel.
	ErrNotInVoice = errors.New("you must be in a voice channel")
)

// CaptureError reports a failure of the voice connection itself.
type CaptureError struct {
	GuildID string
	Op      string
	Err     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s voice capture for guild %s: %v", e.Op, e.GuildID, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
