package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/sjawhar/wispr-bot/internal/session"
	"github.com/sjawhar/wispr-bot/internal/storage"
)

var guildIDPattern = regexp.MustCompile(`^[0-9]{1,20}$`)

// SessionSource lists live voice sessions.
type SessionSource interface {
	Sessions() []session.Snapshot
	Status(guildID string) (session.Snapshot, bool)
}

// SettingsSource exposes persisted bot settings.
type SettingsSource interface {
	AutoJoinEnabled() (bool, error)
	GuildSettings(guildID string) (storage.GuildSettings, error)
	AllGuildSettings() ([]storage.GuildSettings, error)
}

func registerAPIRoutes(mux *http.ServeMux, sessions SessionSource, settings SettingsSource, warnings func() []string) {
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		autoJoin, err := settings.AutoJoinEnabled()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("read auto-join flag: %v", err))
			return
		}

		var warn []string
		if warnings != nil {
			warn = warnings()
		}
		if warn == nil {
			warn = []string{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"auto_join": autoJoin,
			"sessions":  sessions.Sessions(),
			"warnings":  warn,
		})
	})

	mux.HandleFunc("GET /api/guilds", func(w http.ResponseWriter, r *http.Request) {
		all, err := settings.AllGuildSettings()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list guild settings: %v", err))
			return
		}
		if all == nil {
			all = []storage.GuildSettings{}
		}
		writeJSON(w, http.StatusOK, all)
	})

	mux.HandleFunc("GET /api/guilds/{id}", func(w http.ResponseWriter, r *http.Request) {
		guildID := r.PathValue("id")
		if !validGuildID(guildID) {
			writeJSONError(w, http.StatusForbidden, "invalid guild id")
			return
		}

		gs, err := settings.GuildSettings(guildID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get guild settings: %v", err))
			return
		}

		payload := map[string]any{"settings": gs, "session": nil}
		if snap, ok := sessions.Status(guildID); ok {
			payload["session"] = snap
		}
		writeJSON(w, http.StatusOK, payload)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func validGuildID(id string) bool {
	return guildIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
