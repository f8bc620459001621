// ABOUTME: Gateway orchestrator that owns the store, provider, and HTTP server
// ABOUTME: Manages startup, background maintenance, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telemcp/telegram-mcp/internal/auth"
	"github.com/telemcp/telegram-mcp/internal/config"
	"github.com/telemcp/telegram-mcp/internal/mcp"
	"github.com/telemcp/telegram-mcp/internal/store"
	"github.com/telemcp/telegram-mcp/internal/telegram"
)

// serverIDKey is the config table key holding this instance's identity.
const serverIDKey = "server_id"

// Gateway orchestrates the telegram-mcp server components. It owns the store
// for the process lifetime: opened once in New, closed during Shutdown.
type Gateway struct {
	config     *config.Config
	store      store.Store
	provider   telegram.Provider
	toolset    *mcp.Toolset
	mcpServer  *mcp.Server
	mcpTokens  *mcp.TokenStore
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this gateway instance across restarts
	serverID string

	mu        sync.Mutex
	boundAddr string // actual listen address, set once Run has bound
}

// initStore opens the SQLite store using the configured path and log level.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path, store.Options{
		MinLogLevel: store.LogLevel(cfg.Logging.Level),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initProvider builds the mock Telegram provider, loading a TOML fixture when
// one is configured.
func initProvider(cfg *config.Config, logger *slog.Logger) (telegram.Provider, error) {
	var fixture *telegram.Fixture
	if cfg.Telegram.FixturePath != "" {
		f, err := telegram.LoadFixture(cfg.Telegram.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("loading telegram fixture: %w", err)
		}
		fixture = f
	}

	return telegram.NewMockProvider(telegram.MockOptions{
		Fixture: fixture,
		Latency: cfg.Telegram.Latency,
		Logger:  logger,
	}), nil
}

// loadServerID returns the persisted server identity, generating and storing
// one on first startup.
func loadServerID(ctx context.Context, s store.Store) (string, error) {
	id, err := s.GetConfigValue(ctx, serverIDKey)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("loading server ID: %w", err)
	}

	id = "telegram-mcp-" + uuid.New().String()[:8]
	if err := s.SetConfigValue(ctx, serverIDKey, id); err != nil {
		return "", fmt.Errorf("persisting server ID: %w", err)
	}
	return id, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	serverID, err := loadServerID(context.Background(), s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	provider, err := initProvider(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	toolset, err := mcp.NewToolset(mcp.ToolsetConfig{
		Provider: provider,
		Store:    s,
		Logger:   logger,
		CacheTTL: cfg.Cache.DefaultTTL,
		ServerID: serverID,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating toolset: %w", err)
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}

	mcpTokens := mcp.NewTokenStore()
	mcpServer, err := mcp.NewServer(mcp.Config{
		Toolset:       toolset,
		Logger:        logger,
		TokenVerifier: verifier,
		TokenStore:    mcpTokens,
		RequireAuth:   cfg.Auth.RequireAuth,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw := &Gateway{
		config:    cfg,
		store:     s,
		provider:  provider,
		toolset:   toolset,
		mcpServer: mcpServer,
		mcpTokens: mcpTokens,
		logger:    logger.With("component", "gateway"),
		serverID:  serverID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mcpServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// ServerID returns this instance's persisted identity.
func (g *Gateway) ServerID() string {
	return g.serverID
}

// Addr returns the bound HTTP address, or empty before Run has started
// listening. Useful when the configured address uses port 0.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.boundAddr
}

// TokenStore exposes the MCP token store for bootstrap tooling.
func (g *Gateway) TokenStore() *mcp.TokenStore {
	return g.mcpTokens
}

// Run starts the HTTP server and the maintenance loop, blocking until the
// context is canceled or the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	g.mu.Lock()
	g.boundAddr = ln.Addr().String()
	g.mu.Unlock()

	maintCtx, stopMaint := context.WithCancel(ctx)
	defer stopMaint()
	go g.maintenanceLoop(maintCtx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// maintenanceLoop periodically removes expired cache entries and trims the
// structured log to its configured cap.
func (g *Gateway) maintenanceLoop(ctx context.Context) {
	interval := g.config.Cache.MaintenanceInterval
	if interval <= 0 {
		interval = config.DefaultMaintenanceInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.runMaintenance(ctx)
		}
	}
}

func (g *Gateway) runMaintenance(ctx context.Context) {
	removed, err := g.store.Cleanup(ctx)
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Warn("cache cleanup failed", "error", err)
		}
		return
	}

	trimmed, err := g.store.Trim(ctx, g.config.Logging.MaxEntries)
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Warn("log trim failed", "error", err)
		}
		return
	}

	if removed > 0 || trimmed > 0 {
		g.logger.Debug("maintenance pass complete",
			"expired_cache_entries", removed,
			"trimmed_log_entries", trimmed,
		)
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	g.logger.Info("gateway stopped")
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
