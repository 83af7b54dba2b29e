package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatrelay/internal/broadcast"
	"github.com/Tyrowin/chatrelay/internal/metrics"
)

// Server owns the HTTP surface of the relay and the goroutines of every
// WebSocket connection it accepted.
type Server struct {
	cfg      Config
	engine   *broadcast.Engine
	logger   *zap.Logger
	promReg  *prometheus.Registry
	metrics  *metrics.RelayMetrics
	origins  originPolicy
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	closing    bool
	live       map[*Client]struct{}
	clients    sync.WaitGroup
}

// NewServer creates a server around engine. A nil logger disables logging;
// a nil Prometheus registry gets a fresh one, and nil relay metrics are
// registered on it. Pass the same RelayMetrics the engine was built with so
// both update one set of collectors.
func NewServer(
	cfg *Config,
	engine *broadcast.Engine,
	logger *zap.Logger,
	promReg *prometheus.Registry,
	relayMetrics *metrics.RelayMetrics,
) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if promReg == nil {
		promReg = metrics.NewRegistry()
	}
	if relayMetrics == nil {
		relayMetrics = metrics.NewRelayMetrics(promReg)
	}

	s := &Server{
		cfg:     sanitizeConfig(*cfg),
		engine:  engine,
		logger:  logger,
		promReg: promReg,
		metrics: relayMetrics,
		live:    make(map[*Client]struct{}),
	}
	s.origins = newOriginPolicy(s.cfg.AllowedOrigins, logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	cfg := s.cfg
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ListenAndServe serves the relay routes on the configured port until
// Shutdown is called. It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	httpServer := CreateServer(s.cfg.Port, s.Routes())

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info("Server listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serveClient runs conn's handling loop on a goroutine tracked for shutdown.
func (s *Server) serveClient(conn *websocket.Conn, addr string) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Debug("Error closing connection during shutdown", zap.Error(err))
		}
		return
	}
	client := s.newClient(conn, addr)
	s.live[client] = struct{}{}
	s.clients.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.clients.Done()
		client.serve()

		s.mu.Lock()
		delete(s.live, client)
		s.mu.Unlock()
	}()
}

// Shutdown stops accepting requests, closes every WebSocket connection and
// waits for their handling loops to finish. It returns
// context.DeadlineExceeded if that takes longer than timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info("Initiating server shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.Lock()
	httpServer := s.httpServer
	s.closing = true
	live := make([]*Client, 0, len(s.live))
	for client := range s.live {
		live = append(live, client)
	}
	s.mu.Unlock()

	var shutdownErr error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
			shutdownErr = err
		}
	}

	// Closing the socket ends each handling loop, which then unregisters
	// itself and announces the departure like any other disconnect.
	for _, client := range live {
		if err := client.Close(); err != nil {
			s.logger.Debug("Error closing client connection", zap.String("addr", client.addr), zap.Error(err))
		}
	}
	s.logger.Info("Closed client connections", zap.Int("count", len(live)))

	done := make(chan struct{})
	go func() {
		s.clients.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Server shutdown completed")
		return shutdownErr
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout reached, some connections may still be running")
		return context.DeadlineExceeded
	}
}
