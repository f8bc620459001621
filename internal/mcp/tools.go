// ABOUTME: Telegram tool registry and dispatch for the MCP server
// ABOUTME: Wires tool calls through the cache, the structured log, and the account registry

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telemcp/telegram-mcp/internal/store"
	"github.com/telemcp/telegram-mcp/internal/telegram"
)

// ErrToolNotFound is returned when a tool name has no registered handler.
var ErrToolNotFound = errors.New("tool not found")

// cacheKeyChats holds the full chat list for the current user.
const cacheKeyChats = "chats:all"

// ToolHandler executes one tool call. The returned value is JSON-encoded
// into the MCP result content.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// ToolsetConfig holds dependencies for a Toolset.
type ToolsetConfig struct {
	Provider telegram.Provider
	Store    store.Store
	Logger   *slog.Logger
	CacheTTL time.Duration // TTL applied to cached chat and message lists
	ServerID string        // stamped onto every tool log entry
}

// Toolset is the fixed table of Telegram tools exposed over MCP. Every call
// is recorded in the structured log with its duration; read tools are served
// from the cache when possible.
type Toolset struct {
	provider telegram.Provider
	store    store.Store
	logger   *slog.Logger
	cacheTTL time.Duration
	serverID string

	mu              sync.Mutex
	activeAccountID string // account activated by the last tg_login in this process

	tools []*Tool
	index map[string]*Tool
}

// NewToolset creates the toolset and registers all tools.
func NewToolset(cfg ToolsetConfig) (*Toolset, error) {
	if cfg.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Toolset{
		provider: cfg.Provider,
		store:    cfg.Store,
		logger:   logger.With("component", "toolset"),
		cacheTTL: cfg.CacheTTL,
		serverID: cfg.ServerID,
		index:    make(map[string]*Tool),
	}
	t.registerAll()
	return t, nil
}

func (t *Toolset) register(tool *Tool) {
	t.tools = append(t.tools, tool)
	t.index[tool.Name] = tool
}

func (t *Toolset) registerAll() {
	t.register(&Tool{
		Name:        "tg_login",
		Description: "Log in to Telegram with a phone number and activate the account session",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"phone":{"type":"string","description":"Phone number in international format"}},"required":["phone"]}`),
		Handler:     t.handleLogin,
	})
	t.register(&Tool{
		Name:        "tg_logout",
		Description: "Log out of Telegram and deactivate the current session",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     t.handleLogout,
	})
	t.register(&Tool{
		Name:        "tg_status",
		Description: "Report authentication state and registered accounts",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     t.handleStatus,
	})
	t.register(&Tool{
		Name:        "tg_get_me",
		Description: "Return the currently authenticated Telegram user",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     t.handleGetMe,
	})
	t.register(&Tool{
		Name:        "tg_list_chats",
		Description: "List the current user's chats",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler:     t.handleListChats,
	})
	t.register(&Tool{
		Name:        "tg_get_messages",
		Description: "Get recent messages from a chat, newest first",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"chat_id":{"type":"string"},"limit":{"type":"integer","description":"Maximum messages to return (default 50)"}},"required":["chat_id"]}`),
		Handler:     t.handleGetMessages,
	})
	t.register(&Tool{
		Name:        "tg_send_message",
		Description: "Send a text message to a chat",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"chat_id":{"type":"string"},"text":{"type":"string"}},"required":["chat_id","text"]}`),
		Handler:     t.handleSendMessage,
	})
	t.register(&Tool{
		Name:        "cache_stats",
		Description: "Return cache hit/miss counters and entry counts",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"reset":{"type":"boolean","description":"Reset hit/miss counters after reading"}}}`),
		Handler:     t.handleCacheStats,
	})
	t.register(&Tool{
		Name:        "recent_logs",
		Description: "Query recent structured log entries, newest first",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer"},"level":{"type":"string","enum":["debug","info","warn","error"]},"tool":{"type":"string"}}}`),
		Handler:     t.handleRecentLogs,
	})
}

// Tools returns all registered tools in registration order.
func (t *Toolset) Tools() []*Tool {
	return t.tools
}

// Call dispatches a tool by name, records the call in the structured log, and
// refreshes the active account's last-activity timestamp.
func (t *Toolset) Call(ctx context.Context, name string, rawArgs json.RawMessage, sessionID string) (any, error) {
	tool, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	args := decodeArgs(rawArgs)
	lc := &store.LogContext{
		SessionID: sessionID,
		ServerID:  t.serverID,
	}

	start := time.Now()
	result, err := tool.Handler(ctx, args)
	elapsed := time.Since(start)

	t.touchActiveAccount(ctx)

	if err != nil {
		if logErr := t.store.LogToolError(ctx, name, "call", args, err, elapsed, lc); logErr != nil {
			t.logger.Warn("failed to record tool error", "tool", name, "error", logErr)
		}
		return nil, err
	}

	if logErr := t.store.LogTool(ctx, name, "call", args, resultFields(result), elapsed, lc); logErr != nil {
		t.logger.Warn("failed to record tool call", "tool", name, "error", logErr)
	}
	return result, nil
}

// decodeArgs parses raw JSON arguments into a map for dispatch and logging.
// Malformed or empty arguments yield an empty map; individual handlers
// validate the fields they need.
func decodeArgs(raw json.RawMessage) map[string]any {
	args := make(map[string]any)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return args
}

// resultFields produces a loggable summary of a tool result. Map results are
// logged as-is; anything else is wrapped to keep log arguments structured.
func resultFields(result any) map[string]any {
	if m, ok := result.(map[string]any); ok {
		return m
	}
	if result == nil {
		return nil
	}
	return map[string]any{"result": result}
}

func (t *Toolset) touchActiveAccount(ctx context.Context) {
	t.mu.Lock()
	id := t.activeAccountID
	t.mu.Unlock()
	if id == "" {
		return
	}
	if err := t.store.TouchSession(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		t.logger.Warn("failed to touch session", "account_id", id, "error", err)
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	// JSON numbers decode as float64
	if f, ok := args[key].(float64); ok {
		return int(f)
	}
	return 0
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func (t *Toolset) handleLogin(ctx context.Context, args map[string]any) (any, error) {
	phone := stringArg(args, "phone")
	if phone == "" {
		return nil, errors.New("phone is required")
	}

	user, err := t.provider.Login(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	account, err := t.store.GetAccountByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		account, err = t.store.CreateAccount(ctx, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	if err := t.store.ActivateSession(ctx, account.ID, user.ID, user.Username); err != nil {
		return nil, fmt.Errorf("failed to activate session: %w", err)
	}

	t.mu.Lock()
	t.activeAccountID = account.ID
	t.mu.Unlock()

	t.logger.Info("logged in", "phone", phone, "account_id", account.ID)

	return map[string]any{
		"account_id": account.ID,
		"phone":      phone,
		"user_id":    user.ID,
		"username":   user.Username,
		"status":     string(store.StatusActive),
	}, nil
}

func (t *Toolset) handleLogout(ctx context.Context, _ map[string]any) (any, error) {
	if err := t.provider.Logout(ctx); err != nil {
		return nil, fmt.Errorf("logout failed: %w", err)
	}

	t.mu.Lock()
	id := t.activeAccountID
	t.activeAccountID = ""
	t.mu.Unlock()

	if id != "" {
		if err := t.store.DeactivateSession(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to deactivate session: %w", err)
		}
	}

	// Cached chats and messages belong to the logged-out user.
	if err := t.store.Clear(ctx); err != nil {
		t.logger.Warn("failed to clear cache on logout", "error", err)
	}

	t.logger.Info("logged out", "account_id", id)
	return map[string]any{"logged_out": true}, nil
}

func (t *Toolset) handleStatus(ctx context.Context, _ map[string]any) (any, error) {
	total, err := t.store.CountAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	status := map[string]any{
		"authenticated":  t.provider.IsAuthenticated(),
		"total_accounts": total,
	}

	sess, err := t.store.GetActiveSession(ctx)
	switch {
	case err == nil:
		status["active_session"] = map[string]any{
			"user_id":  sess.UserID,
			"username": sess.Username,
		}
	case errors.Is(err, store.ErrNotFound):
		// no active session
	default:
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}

	return status, nil
}

func (t *Toolset) handleGetMe(ctx context.Context, _ map[string]any) (any, error) {
	user, err := t.provider.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (t *Toolset) handleListChats(ctx context.Context, _ map[string]any) (any, error) {
	var chats []telegram.Chat
	hit, err := t.store.Get(ctx, cacheKeyChats, &chats)
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %w", err)
	}
	if !hit {
		chats, err = t.provider.ListChats(ctx)
		if err != nil {
			return nil, err
		}
		if err := t.store.Set(ctx, cacheKeyChats, chats, t.cacheTTL); err != nil {
			t.logger.Warn("failed to cache chat list", "error", err)
		}
	}

	return map[string]any{
		"chats":  chats,
		"count":  len(chats),
		"cached": hit,
	}, nil
}

func messagesCacheKey(chatID string, limit int) string {
	return fmt.Sprintf("messages:%s:%d", chatID, limit)
}

func (t *Toolset) handleGetMessages(ctx context.Context, args map[string]any) (any, error) {
	chatID := stringArg(args, "chat_id")
	if chatID == "" {
		return nil, errors.New("chat_id is required")
	}
	limit := intArg(args, "limit")
	if limit <= 0 {
		limit = 50
	}

	key := messagesCacheKey(chatID, limit)

	var messages []telegram.Message
	hit, err := t.store.Get(ctx, key, &messages)
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %w", err)
	}
	if !hit {
		messages, err = t.provider.GetMessages(ctx, chatID, limit)
		if err != nil {
			return nil, err
		}
		if err := t.store.Set(ctx, key, messages, t.cacheTTL); err != nil {
			t.logger.Warn("failed to cache messages", "chat_id", chatID, "error", err)
		}
	}

	return map[string]any{
		"chat_id":  chatID,
		"messages": messages,
		"count":    len(messages),
		"cached":   hit,
	}, nil
}

func (t *Toolset) handleSendMessage(ctx context.Context, args map[string]any) (any, error) {
	chatID := stringArg(args, "chat_id")
	if chatID == "" {
		return nil, errors.New("chat_id is required")
	}
	text := stringArg(args, "text")
	if text == "" {
		return nil, errors.New("text is required")
	}

	msg, err := t.provider.SendMessage(ctx, chatID, text)
	if err != nil {
		return nil, err
	}

	// The new message invalidates every cached page of this chat, and the
	// chat list's unread/ordering state.
	if err := t.store.ClearPrefix(ctx, "messages:"+chatID+":"); err != nil {
		t.logger.Warn("failed to invalidate message cache", "chat_id", chatID, "error", err)
	}
	if _, err := t.store.Delete(ctx, cacheKeyChats); err != nil {
		t.logger.Warn("failed to invalidate chat list cache", "error", err)
	}

	return map[string]any{
		"message_id": msg.ID,
		"chat_id":    msg.ChatID,
		"text":       msg.Text,
		"date":       msg.Date,
	}, nil
}

func (t *Toolset) handleCacheStats(ctx context.Context, args map[string]any) (any, error) {
	stats, err := t.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}
	if boolArg(args, "reset") {
		t.store.ResetStats()
	}

	return map[string]any{
		"total_entries":   stats.TotalEntries,
		"expired_entries": stats.ExpiredEntries,
		"hit_count":       stats.HitCount,
		"miss_count":      stats.MissCount,
		"size_bytes":      stats.SizeBytes,
	}, nil
}

func (t *Toolset) handleRecentLogs(ctx context.Context, args map[string]any) (any, error) {
	q := store.LogQuery{
		Limit: intArg(args, "limit"),
	}
	if level := stringArg(args, "level"); level != "" {
		l := store.LogLevel(level)
		q.Level = &l
	}
	if tool := stringArg(args, "tool"); tool != "" {
		q.Tool = &tool
	}

	entries, err := t.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}

	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		item := map[string]any{
			"id":        e.ID,
			"timestamp": e.Timestamp,
			"level":     string(e.Level),
			"action":    e.Action,
		}
		if e.Tool != "" {
			item["tool"] = e.Tool
		}
		if e.Error != "" {
			item["error"] = e.Error
		}
		if e.Duration != nil {
			item["duration_ms"] = e.Duration.Milliseconds()
		}
		out[i] = item
	}

	return map[string]any{
		"entries": out,
		"count":   len(out),
	}, nil
}
