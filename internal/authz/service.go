package authz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"authcore.dev/internal/audit"
	"authcore.dev/internal/obs"
	"authcore.dev/internal/stream"
	"authcore.dev/internal/token"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	defaultRefreshTTL = 14 * 24 * time.Hour
)

// Service orchestrates login, refresh, revocation and permission updates
// across the directory, the session store, the token issuer and the
// broadcast channel.
type Service struct {
	dir       *Directory
	store     Store
	issuer    *token.Issuer
	authn     *Authenticator
	auditor   *audit.Recorder
	broadcast *stream.Broadcaster

	now        func() time.Time
	sessionTTL time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSessionTTL configures session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh-token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService wires the orchestrator.
func NewService(dir *Directory, store Store, issuer *token.Issuer, authn *Authenticator, auditor *audit.Recorder, broadcast *stream.Broadcaster, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		dir:        dir,
		store:      store,
		issuer:     issuer,
		authn:      authn,
		auditor:    auditor,
		broadcast:  broadcast,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// LoginInput is a password login request.
type LoginInput struct {
	Email           string
	Secret          string
	ClientID        string
	RequestedScopes []string
	MFACode         string
}

// RefreshInput is a refresh-token rotation request.
type RefreshInput struct {
	RefreshToken    string
	ClientID        string
	RequestedScopes []string
}

// TokenResult is the success shape shared by login and refresh.
type TokenResult struct {
	TokenType        string
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	RefreshExpiresIn int64
	Audience         string
	Scopes           []string
	SessionID        string
}

// Login authenticates the credentials, resolves scopes, creates a session
// with its refresh token and issues a signed access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (TokenResult, error) {
	client, ok := s.dir.Client(strings.TrimSpace(in.ClientID))
	if !ok {
		s.auditor.Record(ctx, audit.EventAuthFailed, "", in.ClientID, map[string]string{
			"reason": "unknown_client",
		})
		obs.LoginsTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, ErrUnknownClient
	}

	user, err := s.authn.Authenticate(ctx, Credentials{
		Email:    in.Email,
		Secret:   in.Secret,
		ClientID: client.ID,
		MFACode:  in.MFACode,
	})
	if err != nil {
		obs.LoginsTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, err
	}

	scopes, err := ResolveScopes(user, client, in.RequestedScopes)
	if err != nil {
		s.auditor.Record(ctx, audit.EventScopeDenied, user.ID, client.ID, map[string]string{
			"requested": strings.Join(in.RequestedScopes, " "),
		})
		obs.LoginsTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, err
	}

	now := s.now().UTC()
	session := Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		ClientID:     client.ID,
		Scopes:       scopes,
		Risk:         user.Risk,
		Entitlements: user.Entitlements,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return TokenResult{}, err
	}

	result, err := s.mint(ctx, user, session, now)
	if err != nil {
		return TokenResult{}, err
	}

	s.auditor.Record(ctx, audit.EventLoginSucceeded, user.ID, client.ID, map[string]string{
		"session_id": session.ID,
		"scopes":     strings.Join(scopes, " "),
	})
	obs.LoginsTotal.WithLabelValues("success").Inc()
	return result, nil
}

// Refresh consumes the presented refresh token, re-resolves scopes against
// the user's current grants and issues a replacement pair. Rotation is
// single-use: of two concurrent calls with the same token exactly one
// succeeds.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (TokenResult, error) {
	client, ok := s.dir.Client(strings.TrimSpace(in.ClientID))
	if !ok {
		obs.RefreshesTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, ErrUnknownClient
	}

	now := s.now().UTC()
	rec, err := s.store.ConsumeRefreshToken(ctx, strings.TrimSpace(in.RefreshToken), now)
	if err != nil {
		s.auditor.Record(ctx, audit.EventRefreshFailed, rec.UserID, client.ID, map[string]string{
			"reason": lookupReason(err),
		})
		obs.RefreshesTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, ErrInvalidRefreshToken
	}

	session, err := s.store.GetSession(ctx, rec.SessionID, now)
	if err != nil {
		s.auditor.Record(ctx, audit.EventRefreshFailed, rec.UserID, client.ID, map[string]string{
			"reason":     "session_" + lookupReason(err),
			"session_id": rec.SessionID,
		})
		obs.RefreshesTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, ErrInvalidSession
	}
	if session.ClientID != client.ID {
		s.auditor.Record(ctx, audit.EventRefreshFailed, rec.UserID, client.ID, map[string]string{
			"reason":     "client_mismatch",
			"session_id": session.ID,
		})
		obs.RefreshesTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, ErrInvalidRefreshToken
	}

	user, ok := s.dir.UserByID(session.UserID)
	if !ok {
		obs.RefreshesTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, ErrInvalidSession
	}

	// Re-resolve against the user's current grants so an administrative
	// scope reduction takes effect on the next refresh. When the request
	// names no scopes, the session's existing grant is the requested set.
	requested := in.RequestedScopes
	if len(requested) == 0 {
		requested = session.Scopes
	}
	scopes, err := ResolveScopes(user, client, requested)
	if err != nil {
		s.auditor.Record(ctx, audit.EventScopeDenied, user.ID, client.ID, map[string]string{
			"session_id": session.ID,
		})
		obs.RefreshesTotal.WithLabelValues("failure").Inc()
		return TokenResult{}, err
	}
	if err := s.store.UpdateSessionGrants(ctx, session.ID, scopes, user.Risk, user.Entitlements); err != nil {
		return TokenResult{}, err
	}
	session.Scopes = scopes
	session.Risk = user.Risk
	session.Entitlements = user.Entitlements

	result, err := s.mint(ctx, user, session, now)
	if err != nil {
		return TokenResult{}, err
	}

	s.auditor.Record(ctx, audit.EventTokenRefreshed, user.ID, client.ID, map[string]string{
		"session_id": session.ID,
		"scopes":     strings.Join(scopes, " "),
	})
	obs.RefreshesTotal.WithLabelValues("success").Inc()
	return result, nil
}

func (s *Service) mint(ctx context.Context, user User, session Session, now time.Time) (TokenResult, error) {
	refreshID, err := newRefreshTokenID()
	if err != nil {
		return TokenResult{}, err
	}
	refresh := RefreshToken{
		ID:        refreshID,
		SessionID: session.ID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.store.CreateRefreshToken(ctx, refresh); err != nil {
		return TokenResult{}, err
	}

	access, exp, err := s.issuer.Issue(token.IssueInput{
		Subject:      user.ID,
		Audience:     session.ClientID,
		Scopes:       session.Scopes,
		Risk:         string(session.Risk),
		Entitlements: session.Entitlements,
		SessionID:    session.ID,
	})
	if err != nil {
		return TokenResult{}, err
	}

	return TokenResult{
		TokenType:        "Bearer",
		AccessToken:      access,
		RefreshToken:     refresh.ID,
		ExpiresIn:        int64(exp.Sub(now).Seconds()),
		RefreshExpiresIn: int64(refresh.ExpiresAt.Sub(now).Seconds()),
		Audience:         session.ClientID,
		Scopes:           session.Scopes,
		SessionID:        session.ID,
	}, nil
}

// RevokeSession deletes the session and every refresh token bound to it.
// Either the session id or a refresh token may identify the session.
// Revoking an already-absent session is not an error.
func (s *Service) RevokeSession(ctx context.Context, actorID, sessionID, refreshToken string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" && strings.TrimSpace(refreshToken) != "" {
		rec, err := s.store.GetRefreshToken(ctx, strings.TrimSpace(refreshToken), s.now().UTC())
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) {
				return nil
			}
			return err
		}
		sessionID = rec.SessionID
	}
	if sessionID == "" {
		return ErrMissingSession
	}

	// Refresh tokens go first: a session row without tokens is inert,
	// while orphaned tokens would still rotate.
	if err := s.store.DeleteRefreshTokensForSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.auditor.Record(ctx, audit.EventSessionRevoked, "", "", map[string]string{
		"session_id": sessionID,
		"revoked_by": actorID,
	})
	obs.RevocationsTotal.Inc()
	return nil
}

// Sessions lists sessions that are active right now.
func (s *Service) Sessions(ctx context.Context) ([]Session, error) {
	return s.store.ListSessions(ctx, s.now().UTC())
}

// UpdatePermissions applies an administrative grant change, records it and
// broadcasts the new state to connected observers.
func (s *Service) UpdatePermissions(ctx context.Context, actorID, userID string, upd PermissionUpdate) (User, error) {
	user, err := s.dir.UpdatePermissions(userID, upd)
	if err != nil {
		return User{}, err
	}
	s.auditor.Record(ctx, audit.EventPermissionsUpdated, user.ID, "", map[string]string{
		"updated_by": actorID,
		"scopes":     strings.Join(user.Scopes, " "),
		"risk":       string(user.Risk),
	})
	if s.broadcast != nil {
		s.broadcast.Publish(stream.PermissionUpdate{
			UserID:       user.ID,
			Scopes:       user.Scopes,
			Risk:         string(user.Risk),
			Entitlements: user.Entitlements,
		})
	}
	return user, nil
}

func newRefreshTokenID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func lookupReason(err error) string {
	if errors.Is(err, ErrExpired) {
		return "expired"
	}
	return "not_found"
}
