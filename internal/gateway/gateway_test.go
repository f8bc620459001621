// ABOUTME: Tests for the Gateway orchestrator lifecycle and maintenance loop
// ABOUTME: Runs a real HTTP server and MCP handshake end to end

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/telemcp/telegram-mcp/internal/config"
	"github.com/telemcp/telegram-mcp/internal/store"
)

// testConfig creates a minimal config backed by a temp database.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr: "127.0.0.1:0",
		},
		Database: config.DatabaseConfig{
			Path: filepath.Join(t.TempDir(), "gateway.db"),
		},
		Cache: config.CacheConfig{
			DefaultTTL:          time.Minute,
			MaintenanceInterval: time.Minute,
		},
		Logging: config.LoggingConfig{
			Level:      "debug",
			MaxEntries: 100,
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	}()

	if !strings.HasPrefix(gw.ServerID(), "telegram-mcp-") {
		t.Errorf("unexpected server ID %q", gw.ServerID())
	}
	if gw.TokenStore() == nil {
		t.Error("expected a token store")
	}
}

func TestGatewayServerIDPersists(t *testing.T) {
	cfg := testConfig(t)

	gw1, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	id := gw1.ServerID()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := gw1.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	gw2, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to recreate gateway: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = gw2.Shutdown(ctx)
	}()

	if gw2.ServerID() != id {
		t.Errorf("server ID changed across restart: %q != %q", gw2.ServerID(), id)
	}
}

func TestGatewayCreatesNestedDatabaseDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing-parent", "sub", "gateway.db")

	// Nested parents are created on demand.
	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("expected nested path to work, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = gw.Shutdown(ctx)
}

func TestGatewayMaintenancePass(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.MaxEntries = 5

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	}()

	ctx := context.Background()

	// Seed an already-expired cache entry and more logs than the cap allows.
	if err := gw.store.Set(ctx, "stale", "v", time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 10; i++ {
		if err := gw.store.Info(ctx, "seed", map[string]any{"i": i}); err != nil {
			t.Fatalf("log write failed: %v", err)
		}
	}

	gw.runMaintenance(ctx)

	stats, err := gw.store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalEntries != 0 {
		t.Errorf("expected expired entry removed, got %d entries", stats.TotalEntries)
	}

	count, err := gw.store.Count(ctx, store.LogQuery{})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 5 {
		t.Errorf("expected log trimmed to 5 entries, got %d", count)
	}
}

func TestGatewayRunServesHealthAndMCP(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	// Wait for the listener to bind.
	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for addr == "" {
		if time.Now().After(deadline) {
			t.Fatal("gateway did not bind in time")
		}
		addr = gw.Addr()
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", resp.StatusCode)
	}

	// Full MCP handshake against the running server.
	initReq := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25"}}`
	resp, err = http.Post("http://"+addr+"/mcp", "application/json", strings.NewReader(initReq))
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Mcp-Session-Id") == "" {
		t.Error("expected a session ID from initialize")
	}
	var rpcResp struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("failed to decode initialize response: %v", err)
	}
	if rpcResp.Error != nil {
		t.Fatalf("initialize returned error: %s", rpcResp.Error.Message)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down in time")
	}
}
