// ABOUTME: Gateway orchestrator that wires storage, registry, engine, and HTTP server.
// ABOUTME: Manages component lifecycle, health endpoints, and graceful shutdown.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/relay-gateway/internal/agent"
	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/engine"
	"github.com/2389/relay-gateway/internal/registry"
	"github.com/2389/relay-gateway/internal/session"
	"github.com/2389/relay-gateway/internal/store"
	"github.com/2389/relay-gateway/internal/tasks"
)

// messageProcessor is what the HTTP layer needs from the orchestration
// engine. Tests substitute a recording fake.
type messageProcessor interface {
	ProcessMessageAndSave(ctx context.Context, sessionID string, turns []agent.Turn, params engine.Params)
}

// Components holds the wired dependencies of a Gateway. New builds the
// production set; tests assemble their own.
type Components struct {
	Store      store.Store
	Registry   *registry.Registry
	Sessions   *session.Manager
	Engine     messageProcessor
	Supervisor *tasks.Supervisor

	// SharedClose releases the shared store client on shutdown. May be nil.
	SharedClose io.Closer
}

// Gateway orchestrates the relay-gateway server components. It owns the
// HTTP server for the session API and WebSocket endpoints.
type Gateway struct {
	config      *config.Config
	store       store.Store
	registry    *registry.Registry
	sessions    *session.Manager
	engine      messageProcessor
	supervisor  *tasks.Supervisor
	sharedClose io.Closer
	httpServer  *http.Server
	logger      *slog.Logger
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("RELAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initSharedStore creates the shared connection store from config.
// A URL takes precedence over a bare address.
func initSharedStore(cfg *config.Config) (*registry.RedisStore, error) {
	if cfg.Redis.URL != "" {
		shared, err := registry.NewRedisStoreFromURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("initializing shared store: %w", err)
		}
		return shared, nil
	}
	return registry.NewRedisStore(cfg.Redis.Addr), nil
}

// New creates a new Gateway instance with the given configuration,
// wiring the production component set.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	shared, err := initSharedStore(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	reg := registry.New(shared, logger)
	sessions := session.NewManager(s, logger)

	apiKey := cfg.Agent.APIKey
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey == "" && envKey != "" {
		apiKey = envKey
	}
	anthropicAgent := agent.NewAnthropicAgent(agent.AnthropicOptions{
		APIKey: apiKey,
	}, logger)

	comps := Components{
		Store:       s,
		Registry:    reg,
		Sessions:    sessions,
		Engine:      engine.New(reg, sessions, anthropicAgent, logger),
		Supervisor:  tasks.NewSupervisor(cfg.Tasks.MaxConcurrent, logger),
		SharedClose: shared,
	}
	return NewWithComponents(cfg, comps, logger), nil
}

// NewWithComponents creates a Gateway over pre-built components.
func NewWithComponents(cfg *config.Config, comps Components, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	gw := &Gateway{
		config:      cfg,
		store:       comps.Store,
		registry:    comps.Registry,
		sessions:    comps.Sessions,
		engine:      comps.Engine,
		supervisor:  comps.Supervisor,
		sharedClose: comps.SharedClose,
		logger:      logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/db", gw.handleDBHealth)
	mux.HandleFunc("/health/redis", gw.handleRedisHealth)

	// Session API
	mux.HandleFunc("/api/v1/sessions", gw.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", gw.handleSessionRoutes)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw
}

// Handler exposes the HTTP handler for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server, drains background tasks,
// and releases storage resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if g.supervisor != nil {
		errs = appendCloseError(errs, "task drain", g.supervisor.Shutdown(ctx))
	}
	errs = appendCloseError(errs, "store close", g.store.Close())
	if g.sharedClose != nil {
		errs = appendCloseError(errs, "shared store close", g.sharedClose.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns a liveness payload.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleDBHealth verifies the database answers a trivial query.
func (g *Gateway) handleDBHealth(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Error("database health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}

// handleRedisHealth verifies the shared registry store is reachable and
// reports the currently active sessions.
func (g *Gateway) handleRedisHealth(w http.ResponseWriter, r *http.Request) {
	if err := g.registry.Ping(r.Context()); err != nil {
		g.logger.Error("redis health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	active, err := g.registry.ActiveSessions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"redis":           "connected",
		"active_sessions": len(ids),
		"session_ids":     ids,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
