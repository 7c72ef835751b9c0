package authz

import (
	"context"
	"strings"

	"authcore.dev/internal/audit"
)

// Credentials is the input to a password login.
type Credentials struct {
	Email    string
	Secret   string
	ClientID string
	MFACode  string
}

// Authenticator validates email/secret pairs and optional MFA codes against
// the directory. Every failure path emits an audit event before the error
// is returned.
type Authenticator struct {
	dir     *Directory
	secrets SecretVerifier
	codes   CodeVerifier
	auditor *audit.Recorder
}

// NewAuthenticator wires the authenticator. Nil verifiers default to the
// bcrypt and constant-time implementations.
func NewAuthenticator(dir *Directory, secrets SecretVerifier, codes CodeVerifier, auditor *audit.Recorder) *Authenticator {
	if secrets == nil {
		secrets = BcryptVerifier{}
	}
	if codes == nil {
		codes = ConstantTimeCodeVerifier{}
	}
	return &Authenticator{dir: dir, secrets: secrets, codes: codes, auditor: auditor}
}

// Authenticate returns the user record on success. It performs no scope
// resolution and issues no tokens.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	email := strings.TrimSpace(creds.Email)
	user, found := a.dir.UserByEmail(email)
	if !found {
		a.auditor.Record(ctx, audit.EventAuthFailed, "", creds.ClientID, map[string]string{
			"reason": "unknown_email",
		})
		return User{}, ErrInvalidCredentials
	}
	if err := a.secrets.Verify(user.SecretHash, creds.Secret); err != nil {
		a.auditor.Record(ctx, audit.EventAuthFailed, user.ID, creds.ClientID, map[string]string{
			"reason": "secret_mismatch",
		})
		return User{}, ErrInvalidCredentials
	}
	if user.MFA != nil && user.MFA.Enabled {
		if strings.TrimSpace(creds.MFACode) == "" {
			a.auditor.Record(ctx, audit.EventMfaRequired, user.ID, creds.ClientID, nil)
			return User{}, ErrMfaRequired
		}
		if err := a.codes.Verify(user.MFA.ExpectedCode, creds.MFACode); err != nil {
			a.auditor.Record(ctx, audit.EventMfaFailed, user.ID, creds.ClientID, nil)
			return User{}, ErrInvalidMfaCode
		}
	}
	return user, nil
}
