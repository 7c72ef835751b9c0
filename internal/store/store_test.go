package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"authcore.dev/internal/authz"
)

func testSession(id string, expiresAt time.Time) authz.Session {
	return authz.Session{
		ID:        id,
		UserID:    "alice",
		ClientID:  "app1",
		Scopes:    []string{"read"},
		Risk:      authz.RiskOK,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
}

func testToken(id, sessionID string, expiresAt time.Time) authz.RefreshToken {
	return authz.RefreshToken{
		ID:        id,
		SessionID: sessionID,
		UserID:    "alice",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
}

func TestMemorySessionLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	if err := m.CreateSession(ctx, testSession("s1", future)); err != nil {
		t.Fatalf("create: %v", err)
	}

	sess, err := m.GetSession(ctx, "s1", time.Now())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.UserID != "alice" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if _, err := m.GetSession(ctx, "ghost", time.Now()); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := m.UpdateSessionGrants(ctx, "s1", []string{"read", "write"}, authz.RiskRestricted, map[string]bool{"beta": true}); err != nil {
		t.Fatalf("update grants: %v", err)
	}
	sess, err = m.GetSession(ctx, "s1", time.Now())
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if !reflect.DeepEqual(sess.Scopes, []string{"read", "write"}) || sess.Risk != authz.RiskRestricted {
		t.Fatalf("grants not applied: %+v", sess)
	}
	if err := m.UpdateSessionGrants(ctx, "ghost", nil, authz.RiskOK, nil); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	listed, err := m.ListSessions(ctx, time.Now())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one session, got %d", len(listed))
	}

	if err := m.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetSession(ctx, "s1", time.Now()); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetHonorsProvidedClock(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if err := m.CreateSession(ctx, testSession("s1", now.Add(time.Hour))); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := m.CreateRefreshToken(ctx, testToken("rt1", "s1", now.Add(time.Hour))); err != nil {
		t.Fatalf("create token: %v", err)
	}

	if _, err := m.GetSession(ctx, "s1", now); err != nil {
		t.Fatalf("session should be live at now: %v", err)
	}
	if _, err := m.GetSession(ctx, "s1", now.Add(2*time.Hour)); !errors.Is(err, authz.ErrExpired) {
		t.Fatalf("expected ErrExpired under the later clock, got %v", err)
	}
	if _, err := m.GetRefreshToken(ctx, "rt1", now); err != nil {
		t.Fatalf("token should be live at now: %v", err)
	}
	if _, err := m.GetRefreshToken(ctx, "rt1", now.Add(2*time.Hour)); !errors.Is(err, authz.ErrExpired) {
		t.Fatalf("expected ErrExpired under the later clock, got %v", err)
	}
}

func TestListSessionsSkipsExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if err := m.CreateSession(ctx, testSession("live", now.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateSession(ctx, testSession("stale", now.Add(-time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	listed, err := m.ListSessions(ctx, now)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "live" {
		t.Fatalf("expected only the live session, got %+v", listed)
	}
}

func TestConsumeRefreshTokenSingleWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if err := m.CreateRefreshToken(ctx, testToken("rt1", "s1", now.Add(time.Hour))); err != nil {
		t.Fatalf("create token: %v", err)
	}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ConsumeRefreshToken(ctx, "rt1", time.Now())
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, authz.ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one consumer to win, got %d", successes)
	}
}

func TestConsumeRefreshTokenExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if err := m.CreateRefreshToken(ctx, testToken("rt1", "s1", now.Add(-time.Minute))); err != nil {
		t.Fatalf("create token: %v", err)
	}

	if _, err := m.ConsumeRefreshToken(ctx, "rt1", now); !errors.Is(err, authz.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// Consumption removes the row even when it was already expired.
	if _, err := m.ConsumeRefreshToken(ctx, "rt1", now); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replay, got %v", err)
	}
}

func TestDeleteRefreshTokensForSession(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	for i := 0; i < 3; i++ {
		if err := m.CreateRefreshToken(ctx, testToken(fmt.Sprintf("rt%d", i), "s1", future)); err != nil {
			t.Fatalf("create token: %v", err)
		}
	}
	if err := m.CreateRefreshToken(ctx, testToken("other", "s2", future)); err != nil {
		t.Fatalf("create token: %v", err)
	}

	if err := m.DeleteRefreshTokensForSession(ctx, "s1"); err != nil {
		t.Fatalf("delete for session: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.GetRefreshToken(ctx, fmt.Sprintf("rt%d", i), time.Now()); !errors.Is(err, authz.ErrNotFound) {
			t.Fatalf("expected token rt%d to be gone, got %v", i, err)
		}
	}
	if _, err := m.GetRefreshToken(ctx, "other", time.Now()); err != nil {
		t.Fatalf("token of another session must survive, got %v", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if err := m.CreateSession(ctx, testSession("stale", now.Add(-time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateSession(ctx, testSession("live", now.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Token on the stale session, an expired token on the live session and
	// one fully live pair.
	if err := m.CreateRefreshToken(ctx, testToken("orphaned", "stale", now.Add(time.Hour))); err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := m.CreateRefreshToken(ctx, testToken("stale-token", "live", now.Add(-time.Minute))); err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := m.CreateRefreshToken(ctx, testToken("live-token", "live", now.Add(time.Hour))); err != nil {
		t.Fatalf("create token: %v", err)
	}

	res, err := m.CleanupExpired(ctx, now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if res.SessionsDeleted != 1 {
		t.Fatalf("expected 1 session deleted, got %d", res.SessionsDeleted)
	}
	if res.TokensDeleted != 2 {
		t.Fatalf("expected 2 tokens deleted, got %d", res.TokensDeleted)
	}

	if _, err := m.GetSession(ctx, "stale", time.Now()); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("stale session should be gone, got %v", err)
	}
	if _, err := m.GetRefreshToken(ctx, "live-token", time.Now()); err != nil {
		t.Fatalf("live token should survive, got %v", err)
	}
}
