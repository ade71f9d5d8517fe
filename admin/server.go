package admin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/cfg"
)

const shutdownTimeout = 5 * time.Second

// Server runs the operational HTTP API on its own listener.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds the admin server from the [admin] config section. The
// returned server is not listening yet; call Start.
func NewServer(config cfg.AdminConfiguration, handlers *Handlers) *Server {
	mux := http.NewServeMux()
	RegisterRoutes(mux, handlers, config.BearerToken)

	// Register pprof handlers for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	addr := fmt.Sprintf("%s:%d", config.BindAddress, config.Port)
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("admin: listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	log.Info().
		Str("address", s.httpServer.Addr).
		Msg("Starting admin HTTP server")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Admin HTTP server failed")
		}
	}()
	return nil
}

// Addr returns the bound address, useful when the port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Admin HTTP server shutdown failed")
	}
}
