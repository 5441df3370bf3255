package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all wispr-bot environment variables.
const EnvPrefix = "WISPR_"

const (
	EngineOpenAI   = "openai"
	EngineDeepgram = "deepgram"
)

// Config holds all application configuration. Secrets (tokens and API keys)
// are loaded exclusively from environment variables and never appear in the
// config file.
type Config struct {
	DBPath          string        `yaml:"db_path"`
	HTTPAddr        string        `yaml:"http_addr"`
	DefaultLanguage string        `yaml:"default_language"`
	Capture         Capture       `yaml:"capture"`
	Transcription   Transcription `yaml:"transcription"`
	Keywords        []Keyword     `yaml:"keywords"`
	Log             Log           `yaml:"log"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	BackupInterval        string `yaml:"backup_interval"`

	// Secrets: env vars only, never serialized to YAML.
	DiscordToken    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

type Capture struct {
	ChunkDuration string `yaml:"chunk_duration"`
	GraceInterval string `yaml:"grace_interval"`
}

type Transcription struct {
	Engine  string `yaml:"engine"`
	Model   string `yaml:"model"`
	Workers int    `yaml:"workers"`
	Timeout string `yaml:"timeout"`
	TempDir string `yaml:"temp_dir"`
}

// Keyword is one row of the keyword action table. Exactly one of Messages or
// LLM is expected to be set.
type Keyword struct {
	Trigger  string      `yaml:"trigger"`
	Messages []string    `yaml:"messages"`
	LLM      *LLMKeyword `yaml:"llm"`
}

type LLMKeyword struct {
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	MaxTokens    int64  `yaml:"max_tokens"`
	Timeout      string `yaml:"timeout"`
}

// ReplyTimeout returns the per-reply timeout, or zero when unset or invalid.
func (k LLMKeyword) ReplyTimeout() time.Duration {
	d, err := time.ParseDuration(k.Timeout)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	defaultChunkDuration = 5 * time.Second
	defaultGraceInterval = time.Second
	defaultTimeout       = 60 * time.Second
	defaultBackup        = 5 * time.Minute
)

func defaults() Config {
	return Config{
		DBPath:          "data/wispr-bot.db",
		HTTPAddr:        ":8080",
		DefaultLanguage: "fr",
		Capture: Capture{
			ChunkDuration: "5s",
			GraceInterval: "1s",
		},
		Transcription: Transcription{
			Engine:  EngineOpenAI,
			Model:   "whisper-1",
			Workers: 2,
			Timeout: "60s",
		},
		Keywords:              DefaultKeywords(),
		Log:                   Log{Level: "info", Format: "text"},
		GoogleCredentialsFile: "./service-account.json",
		BackupInterval:        "5m",
	}
}

// DefaultKeywords is the keyword table used when the config file does not
// define one.
func DefaultKeywords() []Keyword {
	return []Keyword{
		{Trigger: "miaou", Messages: []string{"**Keyword 'miaou' detected** from {speaker}!"}},
		{Trigger: "hello", Messages: []string{"**Hello detected** from {speaker}!"}},
		{Trigger: "bonjour", Messages: []string{"**Hello detected** from {speaker}!"}},
		{Trigger: "gay", Messages: []string{
			"**Gay detected** from {speaker}!",
			"https://imgur.com/gallery/two-mindsets-going-into-2025-0jWTrH6",
		}},
	}
}

// Load reads a .env file if present, then configuration from a YAML file (if
// it exists), applies environment variable overrides, loads secrets, and
// validates the result. It returns the config, any validation warnings, and
// an error if the file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ChunkDuration returns the capture window length, falling back to 5s.
func (c *Config) ChunkDuration() time.Duration {
	return parsePositive(c.Capture.ChunkDuration, defaultChunkDuration)
}

// GraceInterval returns the drain wait after stopping capture, falling back
// to 1s.
func (c *Config) GraceInterval() time.Duration {
	return parsePositive(c.Capture.GraceInterval, defaultGraceInterval)
}

// TranscriptionTimeout returns the per-speaker engine timeout, falling back
// to 60s.
func (c *Config) TranscriptionTimeout() time.Duration {
	return parsePositive(c.Transcription.Timeout, defaultTimeout)
}

// ParsedBackupInterval returns the settings backup period, falling back to 5m.
func (c *Config) ParsedBackupInterval() time.Duration {
	return parsePositive(c.BackupInterval, defaultBackup)
}

func parsePositive(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DEFAULT_LANGUAGE"); v != "" {
		cfg.DefaultLanguage = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_DURATION"); v != "" {
		cfg.Capture.ChunkDuration = v
	}
	if v := os.Getenv(EnvPrefix + "GRACE_INTERVAL"); v != "" {
		cfg.Capture.GraceInterval = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_ENGINE"); v != "" {
		cfg.Transcription.Engine = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_MODEL"); v != "" {
		cfg.Transcription.Model = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_WORKERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.Transcription.Workers = n
		}
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIPTION_TIMEOUT"); v != "" {
		cfg.Transcription.Timeout = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DiscordToken = os.Getenv(EnvPrefix + "DISCORD_TOKEN")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DiscordToken == "" {
		warnings = append(warnings, "Discord token not configured. Set "+EnvPrefix+"DISCORD_TOKEN.")
	}

	switch cfg.Transcription.Engine {
	case EngineOpenAI:
		if cfg.OpenAIAPIKey == "" {
			warnings = append(warnings, "OpenAI API key not configured, transcription is disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
		}
	case EngineDeepgram:
		if cfg.DeepgramAPIKey == "" {
			warnings = append(warnings, "Deepgram API key not configured, transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcription engine %q, using %s.", cfg.Transcription.Engine, EngineOpenAI))
		cfg.Transcription.Engine = EngineOpenAI
	}

	if d, err := time.ParseDuration(cfg.Capture.ChunkDuration); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid capture.chunk_duration %q, using default %s.", cfg.Capture.ChunkDuration, defaultChunkDuration))
	}
	if d, err := time.ParseDuration(cfg.Capture.GraceInterval); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid capture.grace_interval %q, using default %s.", cfg.Capture.GraceInterval, defaultGraceInterval))
	}
	if d, err := time.ParseDuration(cfg.Transcription.Timeout); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid transcription.timeout %q, using default %s.", cfg.Transcription.Timeout, defaultTimeout))
	}
	if cfg.Transcription.Workers <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid transcription.workers %d, using 1.", cfg.Transcription.Workers))
		cfg.Transcription.Workers = 1
	}
	if strings.TrimSpace(cfg.DefaultLanguage) == "" {
		cfg.DefaultLanguage = "fr"
	}

	for i, kw := range cfg.Keywords {
		if strings.TrimSpace(kw.Trigger) == "" {
			warnings = append(warnings, fmt.Sprintf("Keyword %d has an empty trigger and is ignored.", i))
			continue
		}
		if len(kw.Messages) == 0 && kw.LLM == nil {
			warnings = append(warnings, fmt.Sprintf("Keyword %q has no action and is ignored.", kw.Trigger))
		}
		if kw.LLM != nil && kw.LLM.Timeout != "" && kw.LLM.ReplyTimeout() == 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid llm timeout %q for keyword %q, using the default.", kw.LLM.Timeout, kw.Trigger))
		}
	}

	return warnings
}
