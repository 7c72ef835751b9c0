package authz

import "time"

// RiskLevel classifies an account for downstream policy decisions. It is
// carried verbatim into sessions and access-token claims.
type RiskLevel string

const (
	RiskOK         RiskLevel = "ok"
	RiskRestricted RiskLevel = "restricted"
	RiskBanned     RiskLevel = "banned"
)

// MFA holds the second-factor configuration for a user. Code comparison is
// delegated to a CodeVerifier so the scheme stays opaque to this package.
type MFA struct {
	Enabled      bool   `json:"enabled"`
	ExpectedCode string `json:"expected_code"`
}

// User is a directory entry. Identity fields are immutable after startup;
// Scopes, Risk and Entitlements change only through the permission-update
// path and are the fields exposed to the live broadcast.
type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	SecretHash   string          `json:"secret_hash"`
	Scopes       []string        `json:"scopes"`
	Risk         RiskLevel       `json:"risk"`
	Entitlements map[string]bool `json:"entitlements"`
	MFA          *MFA            `json:"mfa,omitempty"`
}

// Client is static configuration for a registered API client.
type Client struct {
	ID            string   `json:"client_id"`
	AllowedScopes []string `json:"allowed_scopes"`
	DefaultScopes []string `json:"default_scopes"`
}

// Session is created per login event and re-validated on every refresh.
// Its scope set is always a subset of the owning client's allowed scopes
// intersected with the user's current scopes.
type Session struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	ClientID     string          `json:"client_id"`
	Scopes       []string        `json:"scopes"`
	Risk         RiskLevel       `json:"risk"`
	Entitlements map[string]bool `json:"entitlements"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// RefreshToken is a single-use opaque credential bound to one session.
// At most one live token references a given session at any instant.
type RefreshToken struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PermissionUpdate carries an administrative change to a user's grants.
// Nil fields are left untouched.
type PermissionUpdate struct {
	Scopes       []string        `json:"scopes,omitempty"`
	Risk         *RiskLevel      `json:"risk,omitempty"`
	Entitlements map[string]bool `json:"entitlements,omitempty"`
}
