package audio

import (
	"encoding/binary"
	"errors"
	"os"
	"testing"
	"time"
)

func TestRecorderCollectsPerSpeakerAudio(t *testing.T) {
	recorder := NewRecorder("guild-1", 48000, 2)

	if err := recorder.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	recorder.Write("alice", []int16{1, 2, 3, 4})
	recorder.Write("bob", []int16{5, 6})
	recorder.Write("alice", []int16{7, 8})

	if err := recorder.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	window, err := recorder.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if window.GuildID != "guild-1" {
		t.Fatalf("expected guild-1, got %q", window.GuildID)
	}
	if window.ID == "" {
		t.Fatal("expected window id")
	}
	if got := len(window.Speakers["alice"]); got != 6 {
		t.Fatalf("expected 6 samples for alice, got %d", got)
	}
	if got := len(window.Speakers["bob"]); got != 2 {
		t.Fatalf("expected 2 samples for bob, got %d", got)
	}

	ids := window.SpeakerIDs()
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
		t.Fatalf("unexpected speaker ids %v", ids)
	}
}

func TestRecorderAcceptsLateFramesUntilCollect(t *testing.T) {
	recorder := NewRecorder("g", 48000, 2)
	_ = recorder.Start()
	recorder.Write("alice", []int16{1, 2})
	_ = recorder.Stop()

	if recorder.Capturing() {
		t.Fatal("expected recorder to report not capturing after Stop")
	}

	recorder.Write("alice", []int16{3, 4})

	window, err := recorder.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := len(window.Speakers["alice"]); got != 4 {
		t.Fatalf("expected late frames to be kept, got %d samples", got)
	}

	recorder.Write("alice", []int16{9, 9})
	if err := recorder.Start(); err != nil {
		t.Fatalf("Start after Collect failed: %v", err)
	}
	_ = recorder.Stop()
	next, _ := recorder.Collect()
	if !next.Empty() {
		t.Fatalf("expected audio written between windows to be dropped, got %v", next.Speakers)
	}
}

func TestRecorderRejectsOverlappingWindows(t *testing.T) {
	recorder := NewRecorder("g", 0, 0)

	if err := recorder.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := recorder.Start(); !errors.Is(err, ErrWindowOpen) {
		t.Fatalf("expected ErrWindowOpen, got %v", err)
	}
	if _, err := recorder.Collect(); !errors.Is(err, ErrWindowOpen) {
		t.Fatalf("expected Collect before Stop to fail with ErrWindowOpen, got %v", err)
	}

	_ = recorder.Stop()
	if err := recorder.Start(); !errors.Is(err, ErrWindowOpen) {
		t.Fatalf("expected Start while draining to fail, got %v", err)
	}
	if err := recorder.Stop(); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("expected second Stop to fail with ErrWindowClosed, got %v", err)
	}
}

func TestWindowAudioDuration(t *testing.T) {
	w := Window{
		SampleRate: 48000,
		Channels:   2,
		Speakers:   map[string][]int16{"a": make([]int16, 48000*2)},
	}
	if got := w.AudioDuration("a"); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
}

func TestWriteTempWAV(t *testing.T) {
	dir := t.TempDir()
	samples := []int16{100, -100, 200, -200}

	path, err := WriteTempWAV(dir, samples, 48000, 2)
	if err != nil {
		t.Fatalf("WriteTempWAV failed: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header: %q", data[:12])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 48000 {
		t.Fatalf("expected sample rate 48000, got %d", rate)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 2 {
		t.Fatalf("expected 2 channels, got %d", ch)
	}
}

func TestWriteTempWAVRejectsEmptyAudio(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteTempWAV(dir, nil, 48000, 2); err == nil {
		t.Fatal("expected error for empty audio")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp file cleanup on failure, found %d files", len(entries))
	}
}
