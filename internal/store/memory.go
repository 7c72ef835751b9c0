package store

import (
	"context"
	"sync"
	"time"

	"authcore.dev/internal/authz"
)

// Memory is an in-process implementation of authz.Store. A single mutex
// serializes every operation, which trivially gives the compare-and-delete
// semantics rotation depends on. Used when no database is configured and
// throughout the test suite.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]authz.Session
	tokens   map[string]authz.RefreshToken
}

var _ authz.Store = (*Memory)(nil)

// NewMemory initialises an empty store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]authz.Session),
		tokens:   make(map[string]authz.RefreshToken),
	}
}

func (m *Memory) CreateSession(_ context.Context, s authz.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string, now time.Time) (authz.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return authz.Session{}, authz.ErrNotFound
	}
	if now.After(s.ExpiresAt) {
		return authz.Session{}, authz.ErrExpired
	}
	return s, nil
}

func (m *Memory) ListSessions(_ context.Context, now time.Time) ([]authz.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []authz.Session
	for _, s := range m.sessions {
		if s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) UpdateSessionGrants(_ context.Context, id string, scopes []string, risk authz.RiskLevel, entitlements map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return authz.ErrNotFound
	}
	s.Scopes = append([]string(nil), scopes...)
	s.Risk = risk
	ents := make(map[string]bool, len(entitlements))
	for k, v := range entitlements {
		ents[k] = v
	}
	s.Entitlements = ents
	m.sessions[id] = s
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *Memory) CreateRefreshToken(_ context.Context, t authz.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
	return nil
}

func (m *Memory) GetRefreshToken(_ context.Context, id string, now time.Time) (authz.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return authz.RefreshToken{}, authz.ErrNotFound
	}
	if now.After(t.ExpiresAt) {
		return authz.RefreshToken{}, authz.ErrExpired
	}
	return t, nil
}

func (m *Memory) ConsumeRefreshToken(_ context.Context, id string, now time.Time) (authz.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return authz.RefreshToken{}, authz.ErrNotFound
	}
	delete(m.tokens, id)
	if now.After(t.ExpiresAt) {
		return authz.RefreshToken{}, authz.ErrExpired
	}
	return t, nil
}

func (m *Memory) DeleteRefreshTokensForSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.SessionID == sessionID {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *Memory) CleanupExpired(_ context.Context, now time.Time) (authz.CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res authz.CleanupResult
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			res.SessionsDeleted++
		}
	}
	for id, t := range m.tokens {
		_, sessionAlive := m.sessions[t.SessionID]
		if !t.ExpiresAt.After(now) || !sessionAlive {
			delete(m.tokens, id)
			res.TokensDeleted++
		}
	}
	return res, nil
}
