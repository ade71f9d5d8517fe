package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/telemetry"
)

// RegisterRoutes registers the operational API routes using chi router. The
// bearer token guards /admin; /metrics stays open for scrapers.
func RegisterRoutes(mux *http.ServeMux, handlers *Handlers, token string) {
	r := chi.NewRouter()
	r.Use(BearerAuth(token))

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", handlers.handleCacheStats)
		r.Post("/invalidate", handlers.handleInvalidate)
		r.Post("/flush", handlers.handleFlush)
	})

	r.Route("/bus", func(r chi.Router) {
		r.Get("/health", handlers.handleBusHealth)
	})

	r.Get("/subscribers", handlers.handleSubscribers)

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	if handler := telemetry.GetMetricsHandler(); handler != nil {
		mux.Handle("/metrics", handler)
		log.Info().Msg("Metrics endpoint enabled at /metrics")
	}

	log.Info().Msg("Admin endpoints enabled at /admin")
}
