package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sjawhar/wispr-bot/internal/audio"
	"github.com/sjawhar/wispr-bot/internal/keyword"
	"github.com/sjawhar/wispr-bot/internal/metrics"
	"github.com/sjawhar/wispr-bot/internal/storage"
)

var (
	// ErrNoChannel is returned by a Poster when no channel is configured.
	ErrNoChannel = errors.New("output channel not configured")
	// ErrPermissionDenied is returned by a Poster when the bot may not write
	// to the channel.
	ErrPermissionDenied = errors.New("missing permission to send messages")
)

// Poster sends a text message to a channel.
type Poster interface {
	Post(ctx context.Context, channelID, content string) error
}

// SettingsReader returns the current per-guild settings.
type SettingsReader interface {
	GuildSettings(guildID string) (storage.GuildSettings, error)
}

// SessionChecker reports whether a guild still has a registered session.
type SessionChecker interface {
	Active(guildID string) bool
}

// Broadcaster receives every delivered transcript.
type Broadcaster interface {
	BroadcastTranscript(r Result)
}

type Options struct {
	Workers  int
	Timeout  time.Duration
	TempDir  string
	Keywords *keyword.Pipeline
	Hub      Broadcaster
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Dispatcher transcribes chunk windows in the background, one task per
// speaker, bounded by a worker semaphore.
type Dispatcher struct {
	engine   Engine
	settings SettingsReader
	sessions SessionChecker
	poster   Poster

	keywords *keyword.Pipeline
	hub      Broadcaster
	metrics  *metrics.Metrics
	logger   *slog.Logger

	sem     *semaphore.Weighted
	timeout time.Duration
	tempDir string

	ctx context.Context
	wg  sync.WaitGroup
}

// NewDispatcher returns a dispatcher whose background work stops when ctx is
// cancelled.
func NewDispatcher(ctx context.Context, engine Engine, settings SettingsReader, sessions SessionChecker, poster Poster, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Dispatcher{
		engine:   engine,
		settings: settings,
		sessions: sessions,
		poster:   poster,
		keywords: opts.Keywords,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "transcribe"),
		sem:      semaphore.NewWeighted(int64(opts.Workers)),
		timeout:  opts.Timeout,
		tempDir:  opts.TempDir,
		ctx:      ctx,
	}
}

// Dispatch schedules transcription of every speaker in w and returns
// immediately. Windows without audio are ignored.
func (d *Dispatcher) Dispatch(w audio.Window) {
	speakers := w.SpeakerIDs()
	d.metrics.ChunkCaptured(len(speakers))
	if len(speakers) == 0 {
		return
	}

	settings, err := d.settings.GuildSettings(w.GuildID)
	if err != nil {
		d.logger.Warn("read guild settings", "guild", w.GuildID, "error", err)
		return
	}

	for _, speaker := range speakers {
		d.wg.Add(1)
		go func(speaker string) {
			defer d.wg.Done()
			d.handleSpeaker(w, speaker, settings)
		}(speaker)
	}
}

// Wait blocks until all dispatched work has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) handleSpeaker(w audio.Window, speaker string, settings storage.GuildSettings) {
	log := d.logger.With("guild", w.GuildID, "window", w.ID, "speaker", speaker)
	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		log.Debug("dispatcher stopped, dropping speaker audio", "error", err)
		return
	}
	text, err := d.transcribe(w, speaker, settings.Language)
	d.sem.Release(1)

	if err != nil {
		log.Warn("transcription failed", "error", err)
		return
	}
	if text == "" {
		log.Debug("empty transcription")
		return
	}

	d.deliver(Result{
		GuildID:   w.GuildID,
		WindowID:  w.ID,
		Speaker:   speaker,
		Text:      text,
		Language:  settings.Language,
		Timestamp: w.EndedAt,
	}, settings)
}

func (d *Dispatcher) transcribe(w audio.Window, speaker, language string) (text string, err error) {
	path, err := audio.WriteTempWAV(d.tempDir, w.Speakers[speaker], w.SampleRate, w.Channels)
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			d.logger.Warn("remove chunk file", "path", path, "error", rmErr)
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	d.metrics.TranscriptionRequest()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcription engine panic: %v", r)
		}
		d.metrics.TranscriptionDone(time.Since(start).Seconds(), text, err)
	}()

	text, err = d.engine.Transcribe(ctx, path, language)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (d *Dispatcher) deliver(r Result, settings storage.GuildSettings) {
	log := d.logger.With("guild", r.GuildID, "speaker", r.Speaker)

	if d.sessions != nil && !d.sessions.Active(r.GuildID) {
		d.metrics.TranscriptSuppressed()
		log.Debug("session removed, dropping transcript")
		return
	}

	log.Info("transcript", "text", r.Text)
	if d.hub != nil {
		d.hub.BroadcastTranscript(r)
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	transcripts := channelOutput{poster: d.poster, channelID: settings.TranscriptChannel}
	if err := transcripts.Send(ctx, r.Message()); err != nil {
		d.outputFailed(log, "transcript", err)
	}

	if d.keywords == nil {
		return
	}
	if settings.ResponseChannel == "" {
		d.metrics.OutputDropped("no_channel")
		return
	}
	responses := channelOutput{poster: d.poster, channelID: settings.ResponseChannel}
	d.keywords.Process(ctx, r.Text, r.Mention(), responses)
}

func (d *Dispatcher) outputFailed(log *slog.Logger, output string, err error) {
	switch {
	case errors.Is(err, ErrNoChannel):
		d.metrics.OutputDropped("no_channel")
		log.Debug("output not configured", "output", output)
	case errors.Is(err, ErrPermissionDenied):
		d.metrics.OutputDropped("permission")
		log.Warn("output not writable", "output", output, "error", err)
	default:
		d.metrics.OutputDropped("error")
		log.Warn("post failed", "output", output, "error", err)
	}
}

// channelOutput binds a Poster to a single channel.
type channelOutput struct {
	poster    Poster
	channelID string
}

func (o channelOutput) Send(ctx context.Context, content string) error {
	if o.channelID == "" || o.poster == nil {
		return ErrNoChannel
	}
	return o.poster.Post(ctx, o.channelID, content)
}
