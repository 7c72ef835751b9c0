package authz

import (
	"context"
	"time"
)

// CleanupResult reports what an expiry sweep removed.
type CleanupResult struct {
	SessionsDeleted int64
	TokensDeleted   int64
}

// Store describes the persistence operations required by the session and
// refresh-token lifecycle. Every method is atomic with respect to
// concurrent callers; ConsumeRefreshToken in particular must guarantee
// that of two concurrent calls for the same id exactly one succeeds.
type Store interface {
	// CreateSession persists a new session row.
	CreateSession(ctx context.Context, s Session) error

	// GetSession returns a session by id. Sessions expired as of now
	// yield ErrExpired, absent ones ErrNotFound.
	GetSession(ctx context.Context, id string, now time.Time) (Session, error)

	// ListSessions returns sessions that have not expired as of now.
	ListSessions(ctx context.Context, now time.Time) ([]Session, error)

	// UpdateSessionGrants rewrites the scope/risk/entitlement snapshot on
	// an existing session, as happens on every refresh.
	UpdateSessionGrants(ctx context.Context, id string, scopes []string, risk RiskLevel, entitlements map[string]bool) error

	// DeleteSession removes a session. Deleting an absent session is not
	// an error.
	DeleteSession(ctx context.Context, id string) error

	// CreateRefreshToken persists a new refresh token row.
	CreateRefreshToken(ctx context.Context, t RefreshToken) error

	// GetRefreshToken returns a refresh token by id without consuming it.
	// Tokens expired as of now yield ErrExpired, absent ones ErrNotFound.
	GetRefreshToken(ctx context.Context, id string, now time.Time) (RefreshToken, error)

	// ConsumeRefreshToken atomically deletes and returns the token. Under
	// concurrent calls on the same id exactly one caller receives the
	// record; the rest observe ErrNotFound. A token found past its expiry
	// is still deleted and reported as ErrExpired.
	ConsumeRefreshToken(ctx context.Context, id string, now time.Time) (RefreshToken, error)

	// DeleteRefreshTokensForSession removes every token bound to the
	// session. Issued together with DeleteSession on revocation.
	DeleteRefreshTokensForSession(ctx context.Context, sessionID string) error

	// CleanupExpired removes all rows whose expiry has passed.
	CleanupExpired(ctx context.Context, now time.Time) (CleanupResult, error)
}
