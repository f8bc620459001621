// ABOUTME: In-memory mock Telegram provider backed by a static fixture
// ABOUTME: Simulates network latency and auth gating without any wire protocol

package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Fixture is the static data set a MockProvider serves. It can be loaded
// from a TOML file or built in code; DefaultFixture supplies a small
// built-in one.
type Fixture struct {
	User     User      `toml:"user"`
	Chats    []Chat    `toml:"chats"`
	Messages []Message `toml:"messages"`
}

// LoadFixture reads a fixture from a TOML file.
func LoadFixture(path string) (*Fixture, error) {
	var f Fixture
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decoding fixture file: %w", err)
	}
	return &f, nil
}

// DefaultFixture returns the built-in demo data set.
func DefaultFixture() *Fixture {
	now := time.Now()
	return &Fixture{
		User: User{
			ID:        "u-1000",
			Username:  "demo_user",
			FirstName: "Demo",
			Phone:     "+15550001000",
		},
		Chats: []Chat{
			{ID: "c-1", Title: "Saved Messages", Type: "private"},
			{ID: "c-2", Title: "Engineering", Type: "group", UnreadCount: 3},
			{ID: "c-3", Title: "Announcements", Type: "channel", UnreadCount: 1},
		},
		Messages: []Message{
			{ID: "m-1", ChatID: "c-2", Sender: "alice", Text: "standup in five", Date: now.Add(-45 * time.Minute)},
			{ID: "m-2", ChatID: "c-2", Sender: "bob", Text: "on my way", Date: now.Add(-44 * time.Minute)},
			{ID: "m-3", ChatID: "c-2", Sender: "alice", Text: "deploy went out clean", Date: now.Add(-10 * time.Minute)},
			{ID: "m-4", ChatID: "c-3", Sender: "Announcements", Text: "maintenance window saturday", Date: now.Add(-2 * time.Hour)},
		},
	}
}

// MockProvider implements Provider entirely in memory. Every operation sleeps
// for a configurable latency to approximate a remote call, and operations
// other than Login fail with ErrNotAuthenticated until Login succeeds.
type MockProvider struct {
	mu       sync.RWMutex
	fixture  *Fixture
	messages []Message // mutable copy; SendMessage appends here
	user     *User     // nil until Login
	latency  time.Duration
	logger   *slog.Logger
}

// MockOptions configures a MockProvider.
type MockOptions struct {
	// Fixture supplies the served data. Defaults to DefaultFixture().
	Fixture *Fixture

	// Latency is the artificial delay applied to every operation.
	Latency time.Duration

	Logger *slog.Logger
}

// NewMockProvider creates a mock provider.
func NewMockProvider(opts MockOptions) *MockProvider {
	fixture := opts.Fixture
	if fixture == nil {
		fixture = DefaultFixture()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	messages := make([]Message, len(fixture.Messages))
	copy(messages, fixture.Messages)

	return &MockProvider{
		fixture:  fixture,
		messages: messages,
		latency:  opts.Latency,
		logger:   logger.With("component", "telegram-mock"),
	}
}

// simulateCall sleeps for the configured latency, honoring ctx cancellation.
func (p *MockProvider) simulateCall(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login authenticates as the fixture user. The phone argument is recorded on
// the returned identity; any phone is accepted.
func (p *MockProvider) Login(ctx context.Context, phone string) (*User, error) {
	if err := p.simulateCall(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	user := p.fixture.User
	if phone != "" {
		user.Phone = phone
	}
	p.user = &user
	p.mu.Unlock()

	p.logger.Debug("mock login", "phone", phone, "user_id", user.ID)
	result := user
	return &result, nil
}

// Logout clears the authenticated user.
func (p *MockProvider) Logout(ctx context.Context) error {
	if err := p.simulateCall(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	p.user = nil
	p.mu.Unlock()

	p.logger.Debug("mock logout")
	return nil
}

// IsAuthenticated reports whether Login has succeeded since the last Logout.
func (p *MockProvider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user != nil
}

// requireAuth returns ErrNotAuthenticated when no user is logged in.
func (p *MockProvider) requireAuth() error {
	if !p.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// ListChats returns the fixture chats.
func (p *MockProvider) ListChats(ctx context.Context) ([]Chat, error) {
	if err := p.simulateCall(ctx); err != nil {
		return nil, err
	}
	if err := p.requireAuth(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	chats := make([]Chat, len(p.fixture.Chats))
	copy(chats, p.fixture.Chats)
	return chats, nil
}

// findChat reports whether a chat ID exists in the fixture. Must be called
// with mu held.
func (p *MockProvider) findChat(chatID string) bool {
	for _, c := range p.fixture.Chats {
		if c.ID == chatID {
			return true
		}
	}
	return false
}

// GetMessages returns up to limit messages from a chat, newest first.
// A limit of 0 or less defaults to 50.
func (p *MockProvider) GetMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if err := p.simulateCall(ctx); err != nil {
		return nil, err
	}
	if err := p.requireAuth(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.findChat(chatID) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}

	var result []Message
	for _, m := range p.messages {
		if m.ChatID == chatID {
			result = append(result, m)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SendMessage appends a new outgoing message to the in-memory history.
func (p *MockProvider) SendMessage(ctx context.Context, chatID, text string) (*Message, error) {
	if err := p.simulateCall(ctx); err != nil {
		return nil, err
	}
	if err := p.requireAuth(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.findChat(chatID) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}

	msg := Message{
		ID:     uuid.New().String(),
		ChatID: chatID,
		Sender: p.user.Username,
		Text:   text,
		Date:   time.Now(),
		Out:    true,
	}
	p.messages = append(p.messages, msg)

	p.logger.Debug("mock message sent", "chat_id", chatID, "message_id", msg.ID)
	result := msg
	return &result, nil
}

// CurrentUser returns the authenticated user.
func (p *MockProvider) CurrentUser(ctx context.Context) (*User, error) {
	if err := p.simulateCall(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.user == nil {
		return nil, ErrNotAuthenticated
	}
	user := *p.user
	return &user, nil
}

// Ensure MockProvider implements Provider
var _ Provider = (*MockProvider)(nil)
