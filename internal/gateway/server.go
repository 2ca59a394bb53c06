// Package gateway exposes the router over HTTP and WebSocket for local
// clients: REST endpoints for one-shot operations and settings, a WebSocket
// channel for streamed generation.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DasMonkey/mindly-core/internal/config"
	"github.com/DasMonkey/mindly-core/internal/logging"
	"github.com/DasMonkey/mindly-core/internal/router"
	"github.com/DasMonkey/mindly-core/internal/version"
)

// Server is the mindly gateway HTTP + WebSocket server.
type Server struct {
	cfg    config.GatewayConfig
	router *router.Manager
	log    *logging.Logger

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a gateway server over the given router.
func New(cfg config.GatewayConfig, rt *router.Manager, log *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		router: rt,
		log:    log.Sub("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local-client gateway; auth happens via bearer token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// bindAddr resolves the listen address from the bind mode.
func (s *Server) bindAddr() string {
	host := "127.0.0.1"
	if s.cfg.Bind == "lan" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", s.cfg.Port))
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	handler := s.withAuth(s.routes())
	handler = withMiddleware(handler, s.log)

	s.httpServer = &http.Server{
		Addr:              s.bindAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("gateway listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info().Msg("gateway shutting down")
	return s.httpServer.Shutdown(ctx)
}

// withAuth enforces the bearer token on every route except /health. An empty
// configured token disables authentication.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Auth.Token == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token != s.cfg.Auth.Token {
			s.log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("rejected unauthorized request")
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	// WebSocket clients cannot always set headers.
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   map[string]string{"message": message},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}
