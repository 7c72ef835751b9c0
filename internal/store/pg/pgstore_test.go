package pg

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"authcore.dev/internal/audit"
	"authcore.dev/internal/authz"
)

func auditEvent(id, eventType, userID, clientID string, at time.Time, metadata map[string]string) audit.Event {
	return audit.Event{
		ID:        id,
		EventType: eventType,
		UserID:    userID,
		ClientID:  clientID,
		CreatedAt: at,
		Metadata:  metadata,
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return New(db), mock
}

func TestCreateSession(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	sess := authz.Session{
		ID:           "s1",
		UserID:       "alice",
		ClientID:     "app1",
		Scopes:       []string{"read"},
		Risk:         authz.RiskOK,
		Entitlements: map[string]bool{"beta": true},
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}

	mock.ExpectExec("insert into sessions").
		WithArgs("s1", "alice", "app1", []byte(`["read"]`), "ok", []byte(`{"beta":true}`), now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
}

func TestGetSession(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := []string{"id", "user_id", "client_id", "scopes", "risk", "entitlements", "created_at", "expires_at"}

	mock.ExpectQuery("select (.+) from sessions where id=").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s1", "alice", "app1", []byte(`["read","write"]`), "restricted", []byte(`{"beta":true}`), now, now.Add(time.Hour)))

	sess, err := s.GetSession(context.Background(), "s1", time.Now())
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !reflect.DeepEqual(sess.Scopes, []string{"read", "write"}) {
		t.Fatalf("unexpected scopes %v", sess.Scopes)
	}
	if sess.Risk != authz.RiskRestricted || !sess.Entitlements["beta"] {
		t.Fatalf("unexpected session %+v", sess)
	}

	mock.ExpectQuery("select (.+) from sessions where id=").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	if _, err := s.GetSession(context.Background(), "ghost", time.Now()); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetSessionExpired(t *testing.T) {
	s, mock := newMockStore(t)
	past := time.Now().UTC().Add(-time.Hour)
	cols := []string{"id", "user_id", "client_id", "scopes", "risk", "entitlements", "created_at", "expires_at"}

	mock.ExpectQuery("select (.+) from sessions where id=").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s1", "alice", "app1", []byte(`["read"]`), "ok", []byte(`{}`), past.Add(-time.Hour), past))

	if _, err := s.GetSession(context.Background(), "s1", time.Now()); !errors.Is(err, authz.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestUpdateSessionGrants(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("update sessions set scopes=").
		WithArgs("s1", []byte(`["read"]`), "ok", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.UpdateSessionGrants(context.Background(), "s1", []string{"read"}, authz.RiskOK, map[string]bool{}); err != nil {
		t.Fatalf("update grants: %v", err)
	}

	mock.ExpectExec("update sessions set scopes=").
		WithArgs("ghost", []byte(`["read"]`), "ok", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.UpdateSessionGrants(context.Background(), "ghost", []string{"read"}, authz.RiskOK, map[string]bool{})
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeRefreshToken(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := []string{"id", "session_id", "user_id", "created_at", "expires_at"}

	mock.ExpectQuery("delete from refresh_tokens where id=(.+) returning").
		WithArgs("rt1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("rt1", "s1", "alice", now.Add(-time.Minute), now.Add(time.Hour)))

	rec, err := s.ConsumeRefreshToken(context.Background(), "rt1", now)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if rec.SessionID != "s1" || rec.UserID != "alice" {
		t.Fatalf("unexpected token %+v", rec)
	}
}

func TestConsumeRefreshTokenMissingAndExpired(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := []string{"id", "session_id", "user_id", "created_at", "expires_at"}

	mock.ExpectQuery("delete from refresh_tokens where id=(.+) returning").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	if _, err := s.ConsumeRefreshToken(context.Background(), "ghost", now); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery("delete from refresh_tokens where id=(.+) returning").
		WithArgs("rt1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("rt1", "s1", "alice", now.Add(-2*time.Hour), now.Add(-time.Hour)))
	if _, err := s.ConsumeRefreshToken(context.Background(), "rt1", now); !errors.Is(err, authz.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestDeleteRefreshTokensForSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("delete from refresh_tokens where session_id=").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	if err := s.DeleteRefreshTokensForSession(context.Background(), "s1"); err != nil {
		t.Fatalf("delete for session: %v", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("delete from refresh_tokens where expires_at <").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from sessions where expires_at <").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	res, err := s.CleanupExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if res.TokensDeleted != 2 || res.SessionsDeleted != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAuditAppendAndSummary(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("insert into audit_events").
		WithArgs("ev1", "LOGIN_SUCCEEDED", "alice", "app1", now, []byte(`{"session_id":"s1"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := s.Append(context.Background(), auditEvent("ev1", "LOGIN_SUCCEEDED", "alice", "app1", now, map[string]string{"session_id": "s1"}))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// Events without an actor store nulls, not empty strings.
	mock.ExpectExec("insert into audit_events").
		WithArgs("ev2", "AUTH_FAILED", nil, nil, now, []byte(`null`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.Append(context.Background(), auditEvent("ev2", "AUTH_FAILED", "", "", now, nil)); err != nil {
		t.Fatalf("append: %v", err)
	}

	mock.ExpectQuery("select event_type, count(.+) from audit_events group by").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("LOGIN_SUCCEEDED", int64(4)).
			AddRow("AUTH_FAILED", int64(2)))
	mock.ExpectQuery("select (.+) from audit_events order by created_at desc").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "user_id", "client_id", "created_at", "metadata"}).
			AddRow("ev1", "LOGIN_SUCCEEDED", "alice", "app1", now, []byte(`{"session_id":"s1"}`)).
			AddRow("ev2", "AUTH_FAILED", nil, nil, now, []byte(`null`)))

	summary, err := s.Summary(context.Background(), 5)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Counts["LOGIN_SUCCEEDED"] != 4 || summary.Counts["AUTH_FAILED"] != 2 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	if len(summary.Recent) != 2 {
		t.Fatalf("expected 2 recent events, got %d", len(summary.Recent))
	}
	if summary.Recent[0].Metadata["session_id"] != "s1" {
		t.Fatalf("unexpected metadata %+v", summary.Recent[0].Metadata)
	}
	if summary.Recent[1].UserID != "" || summary.Recent[1].ClientID != "" {
		t.Fatalf("null actors must map to empty strings, got %+v", summary.Recent[1])
	}
}
