package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/calbot/internal/instrumentation"
)

// CallbackServerConfig holds configuration for the callback server.
type CallbackServerConfig struct {
	// Addr is the listen address, e.g. "0.0.0.0:8080".
	Addr     string
	Callback http.Handler
	Health   *HealthChecker
	Metrics  *instrumentation.Metrics
	Logger   *slog.Logger
}

// CallbackServer hosts /callback and the health endpoints.
type CallbackServer struct {
	mu         sync.Mutex
	addr       string
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// NewCallbackServer creates a CallbackServer. The callback handler is required.
func NewCallbackServer(config CallbackServerConfig) (*CallbackServer, error) {
	if config.Callback == nil {
		return nil, fmt.Errorf("callback handler is required")
	}
	if config.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/callback", config.Callback)
	if config.Health != nil {
		config.Health.RegisterHealthEndpoints(mux)
	}

	return &CallbackServer{
		addr:    config.Addr,
		handler: metricsMiddleware(config.Metrics, mux),
		logger:  logger,
	}, nil
}

// Handler returns the instrumented mux, for tests and embedding.
func (s *CallbackServer) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves until Shutdown.
// http.ErrServerClosed is not reported as an error.
func (s *CallbackServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("callback server listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting callback server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		s.logger.Info("Shutting down callback server")
		return srv.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// metricsMiddleware records every request. Unknown paths are folded into
// "other" to keep label cardinality bounded.
func metricsMiddleware(metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Context(), r.Method, routeLabel(r.URL.Path), status, time.Since(start))
	})
}

func routeLabel(path string) string {
	switch path {
	case "/callback", "/healthz", "/readyz", "/healthz/detailed":
		return path
	default:
		return "other"
	}
}
