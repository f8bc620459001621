// ABOUTME: Provider interface and data types for Telegram messaging operations
// ABOUTME: Defines the contract the MCP toolset calls; Stage 1 ships only a mock implementation

package telegram

import (
	"context"
	"errors"
	"time"
)

// ErrNotAuthenticated is returned by operations that require a logged-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrChatNotFound is returned when a chat ID does not exist.
var ErrChatNotFound = errors.New("chat not found")

// User is a Telegram user identity.
type User struct {
	ID        string `json:"id" toml:"id"`
	Username  string `json:"username" toml:"username"`
	FirstName string `json:"first_name" toml:"first_name"`
	LastName  string `json:"last_name,omitempty" toml:"last_name"`
	Phone     string `json:"phone,omitempty" toml:"phone"`
}

// Chat is a conversation the current user participates in.
type Chat struct {
	ID          string `json:"id" toml:"id"`
	Title       string `json:"title" toml:"title"`
	Type        string `json:"type" toml:"type"` // "private", "group", or "channel"
	UnreadCount int    `json:"unread_count" toml:"unread_count"`
}

// Message is a single chat message.
type Message struct {
	ID     string    `json:"id" toml:"id"`
	ChatID string    `json:"chat_id" toml:"chat_id"`
	Sender string    `json:"sender" toml:"sender"`
	Text   string    `json:"text" toml:"text"`
	Date   time.Time `json:"date" toml:"date"`
	Out    bool      `json:"out" toml:"out"` // true when sent by the current user
}

// Provider is the messaging backend the toolset calls. Stage 1 provides only
// MockProvider; a real MTProto-backed implementation can be swapped in later
// without touching the toolset.
type Provider interface {
	// Login authenticates as the account identified by phone and returns the
	// resulting user identity.
	Login(ctx context.Context, phone string) (*User, error)

	// Logout clears the authenticated user.
	Logout(ctx context.Context) error

	// IsAuthenticated reports whether a user is currently logged in.
	IsAuthenticated() bool

	// ListChats returns the current user's chats.
	ListChats(ctx context.Context) ([]Chat, error)

	// GetMessages returns up to limit recent messages from a chat, newest
	// first.
	GetMessages(ctx context.Context, chatID string, limit int) ([]Message, error)

	// SendMessage sends text to a chat and returns the stored message.
	SendMessage(ctx context.Context, chatID, text string) (*Message, error)

	// CurrentUser returns the authenticated user.
	CurrentUser(ctx context.Context) (*User, error)
}
