package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"lanternfall/internal/world"
)

type routerHandlers struct {
	world *world.World
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *routerHandlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleStatus reports a coarse census of the world. Cheap enough to poll;
// it takes the world lock briefly.
func (h *routerHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats := h.world.CollectStats()
	RecordRequest(r.Method, "/api/status", time.Since(start))
	writeJSON(w, http.StatusOK, stats)
}

func (h *routerHandlers) handleRealms(w http.ResponseWriter, r *http.Request) {
	stats := h.world.CollectStats()
	names := make([]string, 0, len(stats.Realms))
	for name := range stats.Realms {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"realms": names,
	})
}
