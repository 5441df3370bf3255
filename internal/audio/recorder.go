package audio

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DiscordSampleRate is the PCM rate produced by decoding Discord voice.
	DiscordSampleRate = 48000
	// DiscordChannels is the channel count produced by decoding Discord voice.
	DiscordChannels = 2
)

var (
	ErrWindowOpen   = errors.New("capture window already open")
	ErrWindowClosed = errors.New("no capture window open")
)

// Window is one chunk window's worth of per-speaker PCM audio.
type Window struct {
	ID         string
	GuildID    string
	SampleRate int
	Channels   int
	StartedAt  time.Time
	EndedAt    time.Time
	Speakers   map[string][]int16
}

// SpeakerIDs returns the speakers with captured audio, sorted.
func (w Window) SpeakerIDs() []string {
	ids := make([]string, 0, len(w.Speakers))
	for id, pcm := range w.Speakers {
		if len(pcm) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether no speaker produced audio in the window.
func (w Window) Empty() bool {
	return len(w.SpeakerIDs()) == 0
}

// AudioDuration returns the length of a speaker's captured audio.
func (w Window) AudioDuration(speaker string) time.Duration {
	if w.SampleRate <= 0 || w.Channels <= 0 {
		return 0
	}
	frames := len(w.Speakers[speaker]) / w.Channels
	return time.Duration(frames) * time.Second / time.Duration(w.SampleRate)
}

type windowState int

const (
	windowIdle windowState = iota
	windowOpen
	windowDraining
)

// Recorder buffers per-speaker PCM between Start and Collect.
//
// Stop does not discard audio that arrives afterwards: frames already in the
// decode pipeline when capture stops still belong to the window until Collect
// finalizes it.
type Recorder struct {
	guildID    string
	sampleRate int
	channels   int

	mu        sync.Mutex
	state     windowState
	windowID  string
	startedAt time.Time
	stoppedAt time.Time
	speakers  map[string][]int16

	now func() time.Time
}

func NewRecorder(guildID string, sampleRate, channels int) *Recorder {
	if sampleRate <= 0 {
		sampleRate = DiscordSampleRate
	}
	if channels <= 0 {
		channels = DiscordChannels
	}
	return &Recorder{
		guildID:    guildID,
		sampleRate: sampleRate,
		channels:   channels,
		now:        time.Now,
	}
}

// Start opens a new capture window. The previous window must have been
// collected first.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != windowIdle {
		return ErrWindowOpen
	}

	r.state = windowOpen
	r.windowID = uuid.NewString()
	r.startedAt = r.now().UTC()
	r.stoppedAt = time.Time{}
	r.speakers = make(map[string][]int16)
	return nil
}

// Stop ends capture for the current window. Late frames are still accepted
// until Collect.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != windowOpen {
		return ErrWindowClosed
	}
	r.state = windowDraining
	r.stoppedAt = r.now().UTC()
	return nil
}

// Capturing reports whether a window is open for new audio.
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == windowOpen
}

// Write appends decoded PCM for a speaker. Audio written outside a window is
// dropped.
func (r *Recorder) Write(speaker string, pcm []int16) {
	if speaker == "" || len(pcm) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == windowIdle {
		return
	}
	r.speakers[speaker] = append(r.speakers[speaker], pcm...)
}

// Collect finalizes the stopped window and returns its audio. It returns
// ErrWindowOpen if capture has not been stopped.
func (r *Recorder) Collect() (Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case windowOpen:
		return Window{}, ErrWindowOpen
	case windowIdle:
		return Window{}, ErrWindowClosed
	}

	w := Window{
		ID:         r.windowID,
		GuildID:    r.guildID,
		SampleRate: r.sampleRate,
		Channels:   r.channels,
		StartedAt:  r.startedAt,
		EndedAt:    r.stoppedAt,
		Speakers:   r.speakers,
	}

	r.state = windowIdle
	r.windowID = ""
	r.speakers = nil
	return w, nil
}

// Reset drops any buffered audio and returns the recorder to idle.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = windowIdle
	r.windowID = ""
	r.speakers = nil
}
