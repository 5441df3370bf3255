package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DB_PATH", "HTTP_ADDR", "DEFAULT_LANGUAGE",
		"CHUNK_DURATION", "GRACE_INTERVAL",
		"TRANSCRIPTION_ENGINE", "TRANSCRIPTION_MODEL", "TRANSCRIPTION_WORKERS", "TRANSCRIPTION_TIMEOUT",
		"LOG_LEVEL", "LOG_FORMAT", "GDRIVE_FOLDER_ID", "GOOGLE_CREDENTIALS_FILE",
		"DISCORD_TOKEN", "OPENAI_API_KEY", "DEEPGRAM_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "data/wispr-bot.db" {
		t.Fatalf("expected default db_path, got %q", cfg.DBPath)
	}
	if cfg.DefaultLanguage != "fr" {
		t.Fatalf("expected default language fr, got %q", cfg.DefaultLanguage)
	}
	if cfg.ChunkDuration() != 5*time.Second {
		t.Fatalf("expected 5s chunks, got %v", cfg.ChunkDuration())
	}
	if cfg.GraceInterval() != time.Second {
		t.Fatalf("expected 1s grace, got %v", cfg.GraceInterval())
	}
	if cfg.Transcription.Engine != EngineOpenAI {
		t.Fatalf("expected openai engine, got %q", cfg.Transcription.Engine)
	}
	if cfg.Transcription.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.Transcription.Workers)
	}
	if len(cfg.Keywords) != 4 || cfg.Keywords[0].Trigger != "miaou" {
		t.Fatalf("expected default keyword table, got %#v", cfg.Keywords)
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
db_path: /custom/db.sqlite
http_addr: 127.0.0.1:9000
default_language: es
capture:
  chunk_duration: 10s
  grace_interval: 500ms
transcription:
  engine: deepgram
  model: nova-2
  workers: 4
  timeout: 30s
keywords:
  - trigger: ping
    messages: ["pong {speaker}"]
  - trigger: hey bot
    llm:
      model: anthropic/claude-sonnet
      system_prompt: be brief
      max_tokens: 120
      timeout: 8s
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/custom/db.sqlite" {
		t.Fatalf("expected yaml db_path, got %q", cfg.DBPath)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("expected yaml http_addr, got %q", cfg.HTTPAddr)
	}
	if cfg.DefaultLanguage != "es" {
		t.Fatalf("expected yaml language, got %q", cfg.DefaultLanguage)
	}
	if cfg.ChunkDuration() != 10*time.Second {
		t.Fatalf("expected 10s chunk, got %v", cfg.ChunkDuration())
	}
	if cfg.GraceInterval() != 500*time.Millisecond {
		t.Fatalf("expected 500ms grace, got %v", cfg.GraceInterval())
	}
	if cfg.Transcription.Engine != EngineDeepgram || cfg.Transcription.Model != "nova-2" {
		t.Fatalf("unexpected transcription config %#v", cfg.Transcription)
	}
	if cfg.Transcription.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Transcription.Workers)
	}
	if cfg.TranscriptionTimeout() != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.TranscriptionTimeout())
	}
	if len(cfg.Keywords) != 2 {
		t.Fatalf("expected yaml keywords to replace defaults, got %d", len(cfg.Keywords))
	}
	if cfg.Keywords[1].LLM == nil || cfg.Keywords[1].LLM.Model != "anthropic/claude-sonnet" {
		t.Fatalf("expected llm keyword, got %#v", cfg.Keywords[1])
	}
	if llm := cfg.Keywords[1].LLM; llm.MaxTokens != 120 || llm.ReplyTimeout() != 8*time.Second {
		t.Fatalf("expected reply limits, got %#v", llm)
	}
}

func TestLLMKeywordReplyTimeout(t *testing.T) {
	for in, want := range map[string]time.Duration{"": 0, "soon": 0, "-2s": 0, "15s": 15 * time.Second} {
		if got := (LLMKeyword{Timeout: in}).ReplyTimeout(); got != want {
			t.Fatalf("ReplyTimeout(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
db_path: /from/yaml
default_language: en
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)
	t.Setenv(EnvPrefix+"DB_PATH", "/from/env")
	t.Setenv(EnvPrefix+"DEFAULT_LANGUAGE", "de")
	t.Setenv(EnvPrefix+"TRANSCRIPTION_WORKERS", "8")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/from/env" {
		t.Fatalf("expected env override for db_path, got %q", cfg.DBPath)
	}
	if cfg.DefaultLanguage != "de" {
		t.Fatalf("expected env override for language, got %q", cfg.DefaultLanguage)
	}
	if cfg.Transcription.Workers != 8 {
		t.Fatalf("expected env override for workers, got %d", cfg.Transcription.Workers)
	}
}

func TestSecretsIgnoredInYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
discord_token: should-be-ignored
openai_api_key: also-ignored
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DiscordToken != "" || cfg.OpenAIAPIKey != "" {
		t.Fatalf("expected secrets from yaml to be ignored, got %q / %q", cfg.DiscordToken, cfg.OpenAIAPIKey)
	}
}

func TestSecretsFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DISCORD_TOKEN", "tok")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oai")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DiscordToken != "tok" || cfg.OpenAIAPIKey != "oai" {
		t.Fatalf("expected secrets from env, got %q / %q", cfg.DiscordToken, cfg.OpenAIAPIKey)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings when fully configured, got: %v", warnings)
	}
}

func TestValidationWarnings(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"TRANSCRIPTION_ENGINE", "deepgram")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var discordWarning, deepgramWarning bool
	for _, w := range warnings {
		if strings.Contains(w, "Discord") {
			discordWarning = true
		}
		if strings.Contains(w, "Deepgram") {
			deepgramWarning = true
		}
	}
	if !discordWarning || !deepgramWarning {
		t.Fatalf("expected Discord and Deepgram warnings, got %v", warnings)
	}
}

func TestInvalidDurationsFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DISCORD_TOKEN", "tok")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oai")
	t.Setenv(EnvPrefix+"CHUNK_DURATION", "soon")
	t.Setenv(EnvPrefix+"GRACE_INTERVAL", "-1s")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if cfg.ChunkDuration() != 5*time.Second {
		t.Fatalf("expected fallback chunk duration, got %v", cfg.ChunkDuration())
	}
	if cfg.GraceInterval() != time.Second {
		t.Fatalf("expected fallback grace interval, got %v", cfg.GraceInterval())
	}
}

func TestUnknownEngineFallsBackToOpenAI(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"TRANSCRIPTION_ENGINE", "vosk")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transcription.Engine != EngineOpenAI {
		t.Fatalf("expected fallback to openai, got %q", cfg.Transcription.Engine)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "vosk") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unknown engine warning, got %v", warnings)
	}
}

func TestMissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load should not fail for missing config file, got: %v", err)
	}
	if cfg.DBPath != "data/wispr-bot.db" {
		t.Fatalf("expected defaults when config file missing, got db_path=%q", cfg.DBPath)
	}
}

func TestInvalidConfigFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(configPath, []byte(":::invalid yaml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)

	if _, _, err := Load(configPath); err == nil {
		t.Fatal("expected error for invalid yaml, got nil")
	}
}
