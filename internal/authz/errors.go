package authz

import "errors"

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrMfaRequired         = errors.New("mfa code required")
	ErrInvalidMfaCode      = errors.New("invalid mfa code")
	ErrUnknownClient       = errors.New("unknown client")
	ErrNoScopesForClient   = errors.New("no scopes resolvable for client")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidSession      = errors.New("invalid session")
	ErrInsufficientScope   = errors.New("insufficient scope")
	ErrMissingSession      = errors.New("missing session")

	// ErrNotFound is returned by stores for absent rows.
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned by stores for rows found past their expiry.
	// Callers treat it as ErrNotFound for control flow; the distinction
	// exists only so audit metadata can name the reason.
	ErrExpired = errors.New("expired")
)
