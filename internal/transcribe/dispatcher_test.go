package transcribe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sjawhar/wispr-bot/internal/audio"
	"github.com/sjawhar/wispr-bot/internal/keyword"
	"github.com/sjawhar/wispr-bot/internal/storage"
)

type posterMock struct {
	mu    sync.Mutex
	sent  map[string][]string
	deny  map[string]bool
	calls int
}

func newPosterMock() *posterMock {
	return &posterMock{sent: make(map[string][]string), deny: make(map[string]bool)}
}

func (p *posterMock) Post(_ context.Context, channelID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.deny[channelID] {
		return ErrPermissionDenied
	}
	p.sent[channelID] = append(p.sent[channelID], content)
	return nil
}

func (p *posterMock) messages(channelID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]string(nil), p.sent[channelID]...)
	sort.Strings(out)
	return out
}

type settingsMock struct {
	settings storage.GuildSettings
}

func (s settingsMock) GuildSettings(guildID string) (storage.GuildSettings, error) {
	out := s.settings
	out.GuildID = guildID
	return out, nil
}

type sessionsMock struct {
	active atomic.Bool
}

func activeSessions() *sessionsMock {
	s := &sessionsMock{}
	s.active.Store(true)
	return s
}

func (s *sessionsMock) Active(string) bool { return s.active.Load() }

// speakerEngine answers based on the sample value written for each speaker.
type speakerEngine struct {
	mu        sync.Mutex
	languages []string
	replies   map[int16]string
	failures  map[int16]bool
}

func (e *speakerEngine) Transcribe(_ context.Context, path, language string) (string, error) {
	e.mu.Lock()
	e.languages = append(e.languages, language)
	e.mu.Unlock()

	marker, err := firstSample(path)
	if err != nil {
		return "", err
	}
	if e.failures[marker] {
		return "", errors.New("engine unavailable")
	}
	return e.replies[marker], nil
}

func firstSample(path string) (int16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) < 46 {
		return 0, errors.New("short wav")
	}
	return int16(uint16(data[44]) | uint16(data[45])<<8), nil
}

func window(speakers map[string]int16) audio.Window {
	w := audio.Window{
		ID:         "w1",
		GuildID:    "g1",
		SampleRate: audio.DiscordSampleRate,
		Channels:   audio.DiscordChannels,
		StartedAt:  time.Now().Add(-5 * time.Second),
		EndedAt:    time.Now(),
		Speakers:   make(map[string][]int16),
	}
	for id, marker := range speakers {
		w.Speakers[id] = []int16{marker, marker, marker, marker}
	}
	return w
}

func assertNoChunkFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "chunk-*.wav"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected temp files to be removed, found %v", matches)
	}
}

func TestDispatchContainsPerSpeakerFailures(t *testing.T) {
	dir := t.TempDir()
	engine := &speakerEngine{
		replies:  map[int16]string{1: "  bonjour tout le monde ", 3: "ça va"},
		failures: map[int16]bool{2: true},
	}
	poster := newPosterMock()
	d := NewDispatcher(context.Background(), engine,
		settingsMock{settings: storage.GuildSettings{TranscriptChannel: "tx", Language: "fr"}},
		activeSessions(), poster, Options{Workers: 2, TempDir: dir})

	d.Dispatch(window(map[string]int16{"A": 1, "B": 2, "C": 3}))
	d.Wait()

	got := poster.messages("tx")
	want := []string{"**<@A>** said: `bonjour tout le monde`", "**<@C>** said: `ça va`"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
	assertNoChunkFiles(t, dir)
}

func TestDispatchSkipsEmptyTranscripts(t *testing.T) {
	dir := t.TempDir()
	engine := &speakerEngine{replies: map[int16]string{1: "   "}}
	poster := newPosterMock()
	d := NewDispatcher(context.Background(), engine,
		settingsMock{settings: storage.GuildSettings{TranscriptChannel: "tx", ResponseChannel: "rx"}},
		activeSessions(), poster, Options{TempDir: dir, Keywords: keyword.NewPipeline(nil)})

	d.Dispatch(window(map[string]int16{"A": 1}))
	d.Wait()

	if poster.calls != 0 {
		t.Fatalf("expected no posts, got %d", poster.calls)
	}
	assertNoChunkFiles(t, dir)
}

func TestDispatchIgnoresEmptyWindow(t *testing.T) {
	engine := EngineFunc(func(context.Context, string, string) (string, error) {
		t.Fatal("engine should not be called")
		return "", nil
	})
	d := NewDispatcher(context.Background(), engine, settingsMock{}, activeSessions(), newPosterMock(), Options{})

	d.Dispatch(window(nil))
	d.Wait()
}

func TestDispatchUsesStoredLanguage(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "wispr.db"), "fr")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	engine := &speakerEngine{replies: map[int16]string{1: "hallo"}}
	d := NewDispatcher(context.Background(), engine, store, activeSessions(), newPosterMock(), Options{TempDir: t.TempDir()})

	if err := store.SetLanguage("g1", "de"); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}
	d.Dispatch(window(map[string]int16{"A": 1}))
	d.Wait()

	// a change between windows applies to the next one
	if err := store.SetLanguage("g1", "es"); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}
	d.Dispatch(window(map[string]int16{"A": 1}))
	d.Wait()

	if len(engine.languages) != 2 || engine.languages[0] != "de" || engine.languages[1] != "es" {
		t.Fatalf("expected languages [de es], got %v", engine.languages)
	}
}

func TestDispatchAfterStopLogsDroppedSpeaker(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	engine := EngineFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return "unused", nil
	})
	d := NewDispatcher(ctx, engine, settingsMock{settings: storage.GuildSettings{TranscriptChannel: "tx"}},
		activeSessions(), newPosterMock(), Options{TempDir: t.TempDir(), Logger: logger})

	d.Dispatch(window(map[string]int16{"A": 1}))
	d.Wait()

	if calls.Load() != 0 {
		t.Fatalf("expected no transcription after stop, got %d", calls.Load())
	}
	out := logs.String()
	for _, want := range []string{"dropping speaker audio", "guild=g1", "window=w1", "speaker=A"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestDispatchSuppressesAfterRemoval(t *testing.T) {
	sessions := activeSessions()
	release := make(chan struct{})
	engine := EngineFunc(func(context.Context, string, string) (string, error) {
		<-release
		return "too late", nil
	})
	poster := newPosterMock()
	d := NewDispatcher(context.Background(), engine,
		settingsMock{settings: storage.GuildSettings{TranscriptChannel: "tx"}},
		sessions, poster, Options{TempDir: t.TempDir()})

	d.Dispatch(window(map[string]int16{"A": 1}))
	sessions.active.Store(false)
	close(release)
	d.Wait()

	if poster.calls != 0 {
		t.Fatalf("expected transcript to be suppressed, got %d posts", poster.calls)
	}
}

func TestDispatchRunsKeywordsWithoutTranscriptChannel(t *testing.T) {
	p := keyword.NewPipeline(nil)
	p.Add("hello", keyword.MessageAction{Lines: []string{"**Hello detected** from {speaker}!"}})

	engine := &speakerEngine{replies: map[int16]string{1: "Hello everyone"}}
	poster := newPosterMock()
	d := NewDispatcher(context.Background(), engine,
		settingsMock{settings: storage.GuildSettings{ResponseChannel: "rx"}},
		activeSessions(), poster, Options{TempDir: t.TempDir(), Keywords: p})

	d.Dispatch(window(map[string]int16{"U1": 1}))
	d.Wait()

	got := poster.messages("rx")
	if len(got) != 1 || got[0] != "**Hello detected** from <@U1>!" {
		t.Fatalf("unexpected response output %v", got)
	}
	if poster.calls != 1 {
		t.Fatalf("expected only the keyword post, got %d posts", poster.calls)
	}
}

func TestDispatchPermissionDeniedIsContained(t *testing.T) {
	p := keyword.NewPipeline(nil)
	p.Add("hello", keyword.MessageAction{Lines: []string{"hi {speaker}"}})

	engine := &speakerEngine{replies: map[int16]string{1: "hello"}}
	poster := newPosterMock()
	poster.deny["tx"] = true
	d := NewDispatcher(context.Background(), engine,
		settingsMock{settings: storage.GuildSettings{TranscriptChannel: "tx", ResponseChannel: "rx"}},
		activeSessions(), poster, Options{TempDir: t.TempDir(), Keywords: p})

	d.Dispatch(window(map[string]int16{"A": 1}))
	d.Wait()

	if len(poster.messages("tx")) != 0 {
		t.Fatal("expected denied transcript post to be dropped")
	}
	if got := poster.messages("rx"); len(got) != 1 || got[0] != "hi <@A>" {
		t.Fatalf("expected keyword output despite transcript failure, got %v", got)
	}
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	var inflight, peak atomic.Int32
	engine := EngineFunc(func(context.Context, string, string) (string, error) {
		n := inflight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return "x", nil
	})
	d := NewDispatcher(context.Background(), engine, settingsMock{}, activeSessions(), newPosterMock(),
		Options{Workers: 1, TempDir: t.TempDir()})

	d.Dispatch(window(map[string]int16{"A": 1, "B": 2, "C": 3, "D": 4}))
	d.Wait()

	if peak.Load() != 1 {
		t.Fatalf("expected at most one concurrent call, got %d", peak.Load())
	}
}

func TestDispatchTimeout(t *testing.T) {
	dir := t.TempDir()
	engine := EngineFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	poster := newPosterMock()
	d := NewDispatcher(context.Background(), engine,
		settingsMock{settings: storage.GuildSettings{TranscriptChannel: "tx"}},
		activeSessions(), poster, Options{Timeout: 20 * time.Millisecond, TempDir: dir})

	d.Dispatch(window(map[string]int16{"A": 1}))
	d.Wait()

	if poster.calls != 0 {
		t.Fatalf("expected no posts after timeout, got %d", poster.calls)
	}
	assertNoChunkFiles(t, dir)
}

func TestDispatchRecoversEnginePanic(t *testing.T) {
	dir := t.TempDir()
	engine := EngineFunc(func(context.Context, string, string) (string, error) {
		panic("sdk bug")
	})
	d := NewDispatcher(context.Background(), engine, settingsMock{}, activeSessions(), newPosterMock(),
		Options{TempDir: dir})

	d.Dispatch(window(map[string]int16{"A": 1}))
	d.Wait()

	assertNoChunkFiles(t, dir)
}

func TestResultMessage(t *testing.T) {
	r := Result{Speaker: "42", Text: " use `go test` "}
	if got, want := r.Message(), "**<@42>** said: `use 'go test'`"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
