package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"authcore.dev/internal/authz"
)

// Store implements authz.Store and audit.Store on PostgreSQL. Rotation
// atomicity comes from `delete ... returning`: of two concurrent consumers
// of the same refresh token exactly one receives the row.
type Store struct {
	db *sql.DB
}

var _ authz.Store = (*Store)(nil)

// Open connects with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle. Used by tests with sqlmock.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) CreateSession(ctx context.Context, sess authz.Session) error {
	scopes, err := json.Marshal(sess.Scopes)
	if err != nil {
		return err
	}
	ents, err := json.Marshal(sess.Entitlements)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, client_id, scopes, risk, entitlements, created_at, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		sess.ID, sess.UserID, sess.ClientID, scopes, string(sess.Risk), ents, sess.CreatedAt, sess.ExpiresAt,
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string, now time.Time) (authz.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, client_id, scopes, risk, entitlements, created_at, expires_at
		 from sessions where id=$1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.Session{}, authz.ErrNotFound
		}
		return authz.Session{}, err
	}
	if now.After(sess.ExpiresAt) {
		return authz.Session{}, authz.ErrExpired
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, now time.Time) ([]authz.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, client_id, scopes, risk, entitlements, created_at, expires_at
		 from sessions where expires_at > $1 order by created_at asc`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authz.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSessionGrants(ctx context.Context, id string, scopes []string, risk authz.RiskLevel, entitlements map[string]bool) error {
	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return err
	}
	entsJSON, err := json.Marshal(entitlements)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update sessions set scopes=$2, risk=$3, entitlements=$4 where id=$1`,
		id, scopesJSON, string(risk), entsJSON,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where id=$1`, id)
	return err
}

func (s *Store) CreateRefreshToken(ctx context.Context, t authz.RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, session_id, user_id, created_at, expires_at)
		 values($1,$2,$3,$4,$5)`,
		t.ID, t.SessionID, t.UserID, t.CreatedAt, t.ExpiresAt,
	)
	return err
}

func (s *Store) GetRefreshToken(ctx context.Context, id string, now time.Time) (authz.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, session_id, user_id, created_at, expires_at from refresh_tokens where id=$1`, id)
	var t authz.RefreshToken
	if err := row.Scan(&t.ID, &t.SessionID, &t.UserID, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.RefreshToken{}, authz.ErrNotFound
		}
		return authz.RefreshToken{}, err
	}
	if now.After(t.ExpiresAt) {
		return authz.RefreshToken{}, authz.ErrExpired
	}
	return t, nil
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, id string, now time.Time) (authz.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`delete from refresh_tokens where id=$1
		 returning id, session_id, user_id, created_at, expires_at`, id)
	var t authz.RefreshToken
	if err := row.Scan(&t.ID, &t.SessionID, &t.UserID, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.RefreshToken{}, authz.ErrNotFound
		}
		return authz.RefreshToken{}, err
	}
	if now.After(t.ExpiresAt) {
		return authz.RefreshToken{}, authz.ErrExpired
	}
	return t, nil
}

func (s *Store) DeleteRefreshTokensForSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where session_id=$1`, sessionID)
	return err
}

func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (authz.CleanupResult, error) {
	var res authz.CleanupResult
	tokens, err := s.db.ExecContext(ctx, `delete from refresh_tokens where expires_at < $1`, now)
	if err != nil {
		return res, err
	}
	res.TokensDeleted, _ = tokens.RowsAffected()

	// refresh_tokens references sessions with on delete cascade, so token
	// rows bound to a reaped session go with it.
	sessions, err := s.db.ExecContext(ctx, `delete from sessions where expires_at < $1`, now)
	if err != nil {
		return res, err
	}
	res.SessionsDeleted, _ = sessions.RowsAffected()
	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (authz.Session, error) {
	var (
		sess   authz.Session
		scopes []byte
		risk   string
		ents   []byte
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.ClientID, &scopes, &risk, &ents, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
		return authz.Session{}, err
	}
	if err := json.Unmarshal(scopes, &sess.Scopes); err != nil {
		return authz.Session{}, err
	}
	if len(ents) > 0 {
		if err := json.Unmarshal(ents, &sess.Entitlements); err != nil {
			return authz.Session{}, err
		}
	}
	sess.Risk = authz.RiskLevel(risk)
	return sess, nil
}
