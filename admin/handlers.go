package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/bus"
	"github.com/palettekb/palette/cache"
	"github.com/palettekb/palette/registry"
)

// Handlers serves the operational API over the cache store, the bus and the
// subscriber registry.
type Handlers struct {
	store    *cache.Store
	bus      *bus.Bus
	registry *registry.Registry
}

// NewHandlers creates a Handlers instance.
func NewHandlers(store *cache.Store, b *bus.Bus, reg *registry.Registry) *Handlers {
	return &Handlers{
		store:    store,
		bus:      b,
		registry: reg,
	}
}

// handleCacheStats returns point-in-time cache statistics.
func (h *Handlers) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.store.Stats(r.Context()))
}

// invalidateRequest is the body for POST /cache/invalidate.
type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

// handleInvalidate deletes every cached key matching the submitted pattern.
func (h *Handlers) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Pattern) == "" {
		writeErrorResponse(w, http.StatusBadRequest, "pattern is required")
		return
	}

	removed, res := h.store.Invalidate(r.Context(), req.Pattern)
	if res.Err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, res.Err.Error())
		return
	}

	log.Info().
		Str("pattern", req.Pattern).
		Int("keys", removed).
		Msg("Cache invalidated via admin API")
	writeJSONResponse(w, map[string]interface{}{
		"pattern":          req.Pattern,
		"keys_invalidated": removed,
	})
}

// handleFlush drops every key under the configured prefix.
func (h *Handlers) handleFlush(w http.ResponseWriter, r *http.Request) {
	if !h.store.Flush(r.Context()) {
		writeErrorResponse(w, http.StatusServiceUnavailable, "backing store unavailable")
		return
	}

	log.Info().Msg("Cache flushed via admin API")
	writeJSONResponse(w, map[string]interface{}{"flushed": true})
}

// handleBusHealth publishes a health ping and verifies the transport round
// trip. 503 when the transport is down.
func (h *Handlers) handleBusHealth(w http.ResponseWriter, r *http.Request) {
	healthy := h.bus.HealthCheck(r.Context())
	if !healthy {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"healthy": false}}); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
		return
	}
	writeJSONResponse(w, map[string]interface{}{"healthy": true})
}

// handleSubscribers returns the advisory registry grouped by topic.
func (h *Handlers) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	all := h.registry.All()

	topics := make(map[string]interface{}, len(all))
	total := 0
	for topic, ids := range all {
		topics[string(topic)] = ids
		total += len(ids)
	}

	writeJSONResponse(w, map[string]interface{}{
		"topics":            topics,
		"total_subscribers": total,
	})
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"data": data,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
