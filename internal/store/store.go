// ABOUTME: Store interfaces and data types for telegram-mcp persistence
// ABOUTME: Defines cache, log, and account entities plus the combined Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// levelPriority orders levels for gating. Unknown levels rank below debug
// so they are never persisted.
func levelPriority(l LogLevel) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return -1
	}
}

// LogEntry is a single structured log record. Entries are append-only:
// they are never updated in place and only removed in bulk via Trim or
// ClearLogs.
type LogEntry struct {
	ID        string
	Timestamp time.Time
	Level     LogLevel
	Tool      string // empty when the entry is not tool-related
	Action    string
	Arguments map[string]any
	Result    map[string]any
	Error     string // failure message when the entry records a failure
	Duration  *time.Duration
	SessionID string
	ProjectID string
	ServerID  string
	Metadata  map[string]any
}

// LogContext carries the optional structured fields of a log write.
type LogContext struct {
	Tool      string
	Action    string
	Arguments map[string]any
	Result    map[string]any
	Error     string
	Duration  *time.Duration
	SessionID string
	ProjectID string
	ServerID  string
	Metadata  map[string]any
}

// LogQuery filters log reads. All set predicates are ANDed together.
type LogQuery struct {
	Level     *LogLevel
	Tool      *string
	SessionID *string
	Since     *time.Time // inclusive lower bound on timestamp
	Until     *time.Time // inclusive upper bound on timestamp
	Limit     int        // default 100
	Offset    int
}

// CacheStats is a snapshot of cache state. TotalEntries, ExpiredEntries, and
// SizeBytes are computed fresh from storage; HitCount and MissCount are
// process-local counters reset only by ResetStats.
type CacheStats struct {
	TotalEntries   int64
	ExpiredEntries int64
	HitCount       int64
	MissCount      int64
	SizeBytes      int64
}

// AccountStatus is the coarse authentication state of an account.
type AccountStatus string

const (
	StatusActive      AccountStatus = "active"
	StatusInactive    AccountStatus = "inactive"
	StatusPendingAuth AccountStatus = "pending_auth"
	StatusError       AccountStatus = "error"
)

// Account is one phone-number-identified account. Status is derived from
// IsActive on every read; only CreateAccount's in-memory return value ever
// carries StatusPendingAuth, and that value does not round-trip through a
// subsequent read.
type Account struct {
	ID           string
	Phone        string
	UserID       string // empty means not yet linked to a remote identity
	Username     string
	CreatedAt    time.Time
	LastActiveAt time.Time
	IsActive     bool
	Status       AccountStatus
	Session      *Session // present only when UserID is non-empty
}

// Session is the authentication projection of an account row.
type Session struct {
	UserID   string
	Username string
	IsActive bool
}

// CacheStore maps opaque string keys to JSON-serialized values with optional
// absolute expiry. Capacity is unbounded; the only eviction is TTL expiry,
// applied lazily on Get and proactively via Cleanup.
type CacheStore interface {
	// Set serializes value and upserts it under key. A positive ttl sets an
	// absolute expiry of now+ttl; ttl <= 0 means the entry never expires.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get loads the value under key into out (a pointer). Returns false on a
	// miss. A present-but-expired entry counts as a miss and is deleted as a
	// side effect.
	Get(ctx context.Context, key string, out any) (bool, error)

	// Delete removes key, reporting whether a row existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// ClearPrefix removes all entries whose key starts with prefix, treated
	// as a literal string (LIKE metacharacters in prefix are escaped).
	ClearPrefix(ctx context.Context, prefix string) error

	// Stats returns a fresh snapshot of cache state.
	Stats(ctx context.Context) (*CacheStats, error)

	// ResetStats zeroes the hit/miss counters.
	ResetStats()

	// Cleanup deletes every expired entry and returns how many were removed.
	// The store never schedules this itself.
	Cleanup(ctx context.Context) (int64, error)
}

// LogStore is the append-only structured log. Writes below the store's
// minimum level are dropped entirely. The message argument is mirrored to the
// process logger but not persisted; only the structured context fields reach
// storage.
type LogStore interface {
	Debug(ctx context.Context, message string, metadata map[string]any) error
	Info(ctx context.Context, message string, metadata map[string]any) error
	Warn(ctx context.Context, message string, metadata map[string]any) error
	Error(ctx context.Context, message string, metadata map[string]any) error

	// Log writes one entry at the given level with the given structured
	// context. It is a no-op when level ranks below the minimum level fixed
	// at store construction.
	Log(ctx context.Context, level LogLevel, message string, lc *LogContext) error

	// LogTool records a successful tool invocation at info level.
	LogTool(ctx context.Context, tool, action string, args, result map[string]any, duration time.Duration, lc *LogContext) error

	// LogToolError records a failed tool invocation at error level.
	LogToolError(ctx context.Context, tool, action string, args map[string]any, toolErr error, duration time.Duration, lc *LogContext) error

	// Query returns entries matching q, newest first.
	Query(ctx context.Context, q LogQuery) ([]*LogEntry, error)

	// Count returns the number of entries matching q's predicates,
	// ignoring Limit and Offset.
	Count(ctx context.Context, q LogQuery) (int64, error)

	// Trim retains the maxEntries newest entries by timestamp and deletes the
	// rest atomically, returning the number removed. maxEntries <= 0 deletes
	// everything.
	Trim(ctx context.Context, maxEntries int) (int64, error)

	// ClearLogs deletes all entries.
	ClearLogs(ctx context.Context) error
}

// AccountStore is the account/session registry.
type AccountStore interface {
	// CreateAccount inserts a fresh unlinked account for phone. The returned
	// value is stamped StatusPendingAuth; a subsequent read derives
	// StatusInactive from the stored is_active flag.
	CreateAccount(ctx context.Context, phone string) (*Account, error)

	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByPhone(ctx context.Context, phone string) (*Account, error)

	// ListAccounts returns all accounts, newest first by creation time.
	ListAccounts(ctx context.Context) ([]*Account, error)

	// ListActiveAccounts returns active accounts, most recently active first.
	ListActiveAccounts(ctx context.Context) ([]*Account, error)

	// ActivateSession links the account to a remote identity and marks it
	// active, refreshing last_active_at.
	ActivateSession(ctx context.Context, id, userID, username string) error

	// DeactivateSession clears the active flag only; last_active_at is
	// left untouched.
	DeactivateSession(ctx context.Context, id string) error

	// UpdateAccountStatus sets is_active from the coarse status. The errMsg
	// argument is accepted for interface parity but not persisted; the
	// schema has no error column.
	UpdateAccountStatus(ctx context.Context, id string, status AccountStatus, errMsg string) error

	// TouchSession refreshes last_active_at.
	TouchSession(ctx context.Context, id string) error

	// DeleteAccount removes the account, reporting whether a row existed.
	DeleteAccount(ctx context.Context, id string) (bool, error)

	GetSession(ctx context.Context, id string) (*Session, error)

	// GetActiveSession returns the session of the most recently active
	// account with is_active set.
	GetActiveSession(ctx context.Context) (*Session, error)

	CountAccounts(ctx context.Context) (int64, error)
}

// Store is the combined persistence interface held by the gateway for the
// process lifetime: opened once at startup, closed at shutdown. Callers must
// not operate on it after Close.
type Store interface {
	CacheStore
	LogStore
	AccountStore

	// Config key-values (server identity and similar process-level state)
	SetConfigValue(ctx context.Context, key, value string) error
	GetConfigValue(ctx context.Context, key string) (string, error)

	Close() error
}
