package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeChunk(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	return path
}

func TestDeepgramEngineJoinsChannels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("model"); got != "nova-2" {
			t.Errorf("unexpected model %q", got)
		}
		if got := q.Get("language"); got != "de" {
			t.Errorf("unexpected language %q", got)
		}
		if got := r.Header.Get("Authorization"); !strings.Contains(got, "test-key") {
			t.Errorf("missing api key in %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"metadata": map[string]any{"request_id": "r1"},
			"results": map[string]any{
				"channels": []any{
					map[string]any{"alternatives": []any{
						map[string]any{"transcript": " guten tag "},
						map[string]any{"transcript": "ignored"},
					}},
					map[string]any{"alternatives": []any{}},
					map[string]any{"alternatives": []any{
						map[string]any{"transcript": "zusammen"},
					}},
				},
			},
		})
	}))
	defer server.Close()

	engine := NewDeepgramEngine("test-key", "nova-2", server.URL)
	got, err := engine.Transcribe(context.Background(), writeChunk(t), "de")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "guten tag zusammen" {
		t.Fatalf("expected joined first alternatives, got %q", got)
	}
}

func TestDeepgramEngineWithoutResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"metadata": map[string]any{"request_id": "r2"}})
	}))
	defer server.Close()

	engine := NewDeepgramEngine("test-key", "nova-2", server.URL)
	got, err := engine.Transcribe(context.Background(), writeChunk(t), "en")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestDeepgramEngineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"err_code": "INVALID_AUTH", "err_msg": "bad key"})
	}))
	defer server.Close()

	engine := NewDeepgramEngine("test-key", "nova-2", server.URL)
	_, err := engine.Transcribe(context.Background(), writeChunk(t), "en")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "deepgram transcription:") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDeepgramEngineMissingFile(t *testing.T) {
	engine := NewDeepgramEngine("test-key", "nova-2", "http://127.0.0.1:1")
	_, err := engine.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), "en")
	if err == nil || !strings.Contains(err.Error(), "open chunk") {
		t.Fatalf("expected open error, got %v", err)
	}
}
