// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides cache/log/account persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Options configures a SQLiteStore.
type Options struct {
	// MinLogLevel gates log writes; entries below it are dropped entirely.
	// Defaults to LevelInfo.
	MinLogLevel LogLevel

	// Logger receives operational messages and the non-persisted message
	// text of log writes. Defaults to slog.Default().
	Logger *slog.Logger
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	minLevel LogLevel

	// process-local cache counters, never derived from storage
	hits   atomic.Int64
	misses atomic.Int64
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	minLevel := opts.MinLogLevel
	if minLevel == "" {
		minLevel = LevelInfo
	}
	if levelPriority(minLevel) < 0 {
		return nil, fmt.Errorf("invalid log level %q", minLevel)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		logger:   logger,
		minLevel: minLevel,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "min_log_level", minLevel)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache(expires_at);

		CREATE TABLE IF NOT EXISTS logs (
			id         TEXT PRIMARY KEY,
			timestamp  INTEGER NOT NULL,
			level      TEXT NOT NULL,
			tool       TEXT,
			action     TEXT,
			arguments  TEXT,
			result     TEXT,
			error      TEXT,
			duration   INTEGER,
			session_id TEXT,
			project_id TEXT,
			server_id  TEXT,
			metadata   TEXT,

			CHECK (level IN ('debug', 'info', 'warn', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
		CREATE INDEX IF NOT EXISTS idx_logs_session ON logs(session_id);
		CREATE INDEX IF NOT EXISTS idx_logs_tool ON logs(tool);

		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			phone          TEXT NOT NULL UNIQUE,
			user_id        TEXT NOT NULL DEFAULT '',
			username       TEXT,
			created_at     INTEGER NOT NULL,
			last_active_at INTEGER NOT NULL,
			is_active      INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_phone ON sessions(phone);
		CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(is_active);

		CREATE TABLE IF NOT EXISTS config (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SetConfigValue upserts an opaque config key-value.
func (s *SQLiteStore) SetConfigValue(ctx context.Context, key, value string) error {
	query := `
		INSERT OR REPLACE INTO config (key, value, updated_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("setting config value: %w", err)
	}

	s.logger.Debug("set config value", "key", key)
	return nil
}

// GetConfigValue retrieves a config value by key.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStore) GetConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying config value: %w", err)
	}

	return value, nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
