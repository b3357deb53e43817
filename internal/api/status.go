package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/nerrad567/moodring/internal/bridges/hue"
)

// BridgeHealth is the bridge section of the health response.
type BridgeHealth struct {
	Status hue.HealthStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// SlotLights is one palette slot and the lights assigned to it.
type SlotLights struct {
	Slot   int      `json:"slot"`
	Lights []string `json:"lights"`
}

// handleHealth returns the process health.
//
// The top-level status is "ok" whenever the process is serving; a degraded
// bridge is reported in the bridge section only, since playback tracking
// and lookups still run without it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"mqtt_connected": s.mqtt != nil && s.mqtt.IsConnected(),
		"cache_entries":  s.cache.Len(),
	}
	if s.bridge != nil {
		status, reason := s.bridge.Status()
		resp["bridge"] = BridgeHealth{Status: status, Reason: reason}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListCache returns every cached album palette, pending placeholders included.
func (s *Server) handleListCache(w http.ResponseWriter, _ *http.Request) {
	entries := s.cache.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleListLights returns the slot to light assignments in slot order.
func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	slots := []SlotLights{}
	total := 0
	if s.lights != nil {
		for slot, lights := range s.lights.Slots() {
			slots = append(slots, SlotLights{Slot: slot, Lights: lights})
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })
		total = s.lights.LightCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"slots":  slots,
		"lights": total,
	})
}

// handleListHistory returns the most recent palette dispatches, newest first.
//
// Query parameters:
//   - limit: Maximum entries (default and cap applied by the repository)
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "palette history is not available")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing palette history failed", "error", err)
		writeInternalError(w, "failed to list palette history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
