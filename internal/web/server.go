// Package web exposes the event bus to remote consumers over HTTP.
//
// Two push transports carry the same wire frames: a Server-Sent Events
// stream at {prefix}/api/events and a WebSocket at {prefix}/api/events/ws.
// Producers outside the process can feed the bus through
// POST {prefix}/api/publish; in-process producers call bus.Publish directly.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/inercia/specula/internal/bus"
	"github.com/inercia/specula/internal/logging"
	speculaWeb "github.com/inercia/specula/web"
)

// Config holds the web server configuration.
type Config struct {
	// Host is the address to bind (default 127.0.0.1). Loopback hosts get
	// socket-level rejection of non-local connections.
	Host string
	// Port is the TCP port; 0 selects a random free port.
	Port int
	// APIPrefix is the URL prefix for all API endpoints.
	APIPrefix string
	// RateLimitRPS and RateLimitBurst configure per-IP request limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server serves the subscribe and publish endpoints for one bus.
type Server struct {
	config Config
	bus    *bus.Bus
	logger *slog.Logger

	httpServer *http.Server
	listener   net.Listener

	rateLimiter *RateLimiter

	mu       sync.Mutex
	shutdown bool
}

// NewServer creates a web server for the given bus.
func NewServer(cfg Config, b *bus.Bus) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/specula"
	}

	rlCfg := DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rlCfg.BurstSize = cfg.RateLimitBurst
	}

	return &Server{
		config:      cfg,
		bus:         b,
		logger:      logging.Web(),
		rateLimiter: NewRateLimiter(rlCfg),
	}
}

// APIPrefix returns the URL prefix for API endpoints.
func (s *Server) APIPrefix() string {
	return s.config.APIPrefix
}

// Addr returns the address the server is listening on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the routed HTTP handler for the server's endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	prefix := s.config.APIPrefix
	mux.HandleFunc("GET "+prefix+"/api/events", s.withRateLimit(s.handleEvents))
	mux.HandleFunc("GET "+prefix+"/api/events/ws", s.withRateLimit(s.handleEventsWS))
	mux.HandleFunc("POST "+prefix+"/api/publish", s.withRateLimit(s.handlePublish))
	mux.HandleFunc("GET "+prefix+"/api/health", s.handleHealth)

	// Embedded viewer, mounted under the API prefix so its relative
	// subscribe URL works behind a proxy. The bare root redirects there.
	staticFS, err := fs.Sub(speculaWeb.StaticFS, "static")
	if err == nil {
		mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix+"/", http.FileServerFS(staticFS)))
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
		})
	}
	return mux
}

// Start binds the listener and begins serving in a background goroutine.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if isLoopbackHost(s.config.Host) {
		ln = NewLocalhostListener(ln, s.logger)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// No WriteTimeout: event streams are long-lived by design; idle
		// policy belongs to the client or an intermediary.
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	s.logger.Info("Web server listening",
		"addr", ln.Addr().String(),
		"api_prefix", s.config.APIPrefix)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server. Active event streams are ended by
// closing their bus subscriptions when the bus shuts down; Shutdown only
// handles the HTTP side.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	srv := s.httpServer
	s.mu.Unlock()

	s.rateLimiter.Close()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// withRateLimit wraps a handler with per-IP rate limiting.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.rateLimiter.Allow(ip) {
			s.logger.Warn("Rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"subscribers": s.bus.SubscriberCount(),
	})
}

// clientIP extracts the remote IP of a request.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isLoopbackHost reports whether the configured bind host is local-only.
func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
