package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

const (
	// DefaultLanguage is used when neither the guild nor the store configures one.
	DefaultLanguage = "fr"

	keyAutoJoin = "auto_join_enabled"
)

// GuildSettings is the per-guild routing and language configuration.
type GuildSettings struct {
	GuildID           string `json:"guild_id" yaml:"guild_id"`
	TranscriptChannel string `json:"transcript_channel,omitempty" yaml:"transcript_channel,omitempty"`
	ResponseChannel   string `json:"response_channel,omitempty" yaml:"response_channel,omitempty"`
	Language          string `json:"language" yaml:"language"`
}

type SQLiteStore struct {
	db              *sql.DB
	defaultLanguage string
}

func NewSQLiteStore(dbPath, defaultLanguage string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "wispr-bot.db")
	}
	if strings.TrimSpace(defaultLanguage) == "" {
		defaultLanguage = DefaultLanguage
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, defaultLanguage: defaultLanguage}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			transcript_channel TEXT NOT NULL DEFAULT '',
			response_channel TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create guild_settings table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bot_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create bot_settings table: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// DefaultLanguage returns the language applied to guilds without one.
func (s *SQLiteStore) DefaultLanguage() string {
	return s.defaultLanguage
}

// GuildSettings returns the settings for a guild. A guild with no stored row
// gets empty routing and the default language.
func (s *SQLiteStore) GuildSettings(guildID string) (GuildSettings, error) {
	row := s.db.QueryRow(
		`SELECT guild_id, transcript_channel, response_channel, language FROM guild_settings WHERE guild_id = ?`,
		guildID,
	)

	var gs GuildSettings
	err := row.Scan(&gs.GuildID, &gs.TranscriptChannel, &gs.ResponseChannel, &gs.Language)
	if errors.Is(err, sql.ErrNoRows) {
		return GuildSettings{GuildID: guildID, Language: s.defaultLanguage}, nil
	}
	if err != nil {
		return GuildSettings{}, fmt.Errorf("query settings for guild %s: %w", guildID, err)
	}

	if gs.Language == "" {
		gs.Language = s.defaultLanguage
	}
	return gs, nil
}

func (s *SQLiteStore) SetTranscriptChannel(guildID, channelID string) error {
	return s.upsert(guildID, "transcript_channel", channelID)
}

func (s *SQLiteStore) SetResponseChannel(guildID, channelID string) error {
	return s.upsert(guildID, "response_channel", channelID)
}

func (s *SQLiteStore) SetLanguage(guildID, language string) error {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return errors.New("language code is required")
	}
	return s.upsert(guildID, "language", language)
}

func (s *SQLiteStore) upsert(guildID, column, value string) error {
	if strings.TrimSpace(guildID) == "" {
		return errors.New("guild id is required")
	}

	// column is one of a fixed set of identifiers chosen by the callers above.
	query := fmt.Sprintf(
		`INSERT INTO guild_settings(guild_id, %[1]s, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at`,
		column,
	)
	if _, err := s.db.Exec(query, guildID, value, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("update %s for guild %s: %w", column, guildID, err)
	}
	return nil
}

// AutoJoinEnabled reports the process-wide auto-join flag. It defaults to
// false.
func (s *SQLiteStore) AutoJoinEnabled() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM bot_settings WHERE key = ?`, keyAutoJoin).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query auto join flag: %w", err)
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse auto join flag %q: %w", value, err)
	}
	return enabled, nil
}

func (s *SQLiteStore) SetAutoJoin(enabled bool) error {
	_, err := s.db.Exec(
		`INSERT INTO bot_settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		keyAutoJoin,
		strconv.FormatBool(enabled),
	)
	if err != nil {
		return fmt.Errorf("update auto join flag: %w", err)
	}
	return nil
}

// AllGuildSettings lists every stored guild, ordered by id.
func (s *SQLiteStore) AllGuildSettings() ([]GuildSettings, error) {
	rows, err := s.db.Query(
		`SELECT guild_id, transcript_channel, response_channel, language FROM guild_settings ORDER BY guild_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query guild settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make([]GuildSettings, 0, 8)
	for rows.Next() {
		var gs GuildSettings
		if err := rows.Scan(&gs.GuildID, &gs.TranscriptChannel, &gs.ResponseChannel, &gs.Language); err != nil {
			return nil, fmt.Errorf("scan guild settings: %w", err)
		}
		if gs.Language == "" {
			gs.Language = s.defaultLanguage
		}
		settings = append(settings, gs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guild settings rows: %w", err)
	}

	return settings, nil
}

// Snapshot is the exported form of all persisted settings.
type Snapshot struct {
	AutoJoinEnabled bool            `yaml:"auto_join_enabled"`
	DefaultLanguage string          `yaml:"default_language"`
	Guilds          []GuildSettings `yaml:"guilds"`
}

// ExportYAML serializes every persisted setting for backups.
func (s *SQLiteStore) ExportYAML() ([]byte, error) {
	autoJoin, err := s.AutoJoinEnabled()
	if err != nil {
		return nil, err
	}
	guilds, err := s.AllGuildSettings()
	if err != nil {
		return nil, err
	}

	out, err := yaml.Marshal(Snapshot{
		AutoJoinEnabled: autoJoin,
		DefaultLanguage: s.defaultLanguage,
		Guilds:          guilds,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal settings snapshot: %w", err)
	}
	return out, nil
}
