// ABOUTME: MCP token store for mapping static access tokens to client names
// ABOUTME: Tokens are minted at bootstrap and validated on MCP requests

package mcp

import (
	"sync"

	"github.com/google/uuid"
)

// TokenStore manages static MCP access tokens. Each token maps to a client
// name used for log correlation.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string // token -> client name
}

// NewTokenStore creates a new token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]string),
	}
}

// CreateToken generates a new token for the given client name.
// Returns the token string that should be included in MCP URLs.
func (s *TokenStore) CreateToken(client string) string {
	token := uuid.New().String()

	s.mu.Lock()
	s.tokens[token] = client
	s.mu.Unlock()

	return token
}

// Lookup returns the client name for a token and whether it exists.
func (s *TokenStore) Lookup(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.tokens[token]
	return client, ok
}

// InvalidateToken removes a token from the store.
func (s *TokenStore) InvalidateToken(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// TokenCount returns the number of active tokens (for monitoring).
func (s *TokenStore) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
