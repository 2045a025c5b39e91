package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

func (a *App) handleRoot(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"message":   "Socket Gateway Server",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(a.startedAt).Seconds(),
	})
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"connections": a.registry.ConnectionCount(),
		"rooms":       a.registry.RoomCount(),
	})
}

func (a *App) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Warn("Failed to write response", slog.Any("error", err))
	}
}
