package httpapi

import (
	"net/http"
	"strings"

	"authcore.dev/internal/authz"
)

// handleOAuthToken serves the standards-compatible grant flow. It accepts
// form-encoded bodies with grant_type password or refresh_token and maps
// them onto the same login/refresh semantics as /token.
func (a *API) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.authLimit.Allow(clientIP(r)) {
		writeError(w, r, http.StatusTooManyRequests, "rate_limited")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed form body")
		return
	}

	scopes := strings.Fields(r.PostFormValue("scope"))
	switch r.PostFormValue("grant_type") {
	case "password":
		result, err := a.svc.Login(r.Context(), authz.LoginInput{
			Email:           r.PostFormValue("username"),
			Secret:          r.PostFormValue("password"),
			ClientID:        r.PostFormValue("client_id"),
			RequestedScopes: scopes,
			MFACode:         r.PostFormValue("mfa_code"),
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeOAuthToken(w, result)
	case "refresh_token":
		result, err := a.svc.Refresh(r.Context(), authz.RefreshInput{
			RefreshToken:    r.PostFormValue("refresh_token"),
			ClientID:        r.PostFormValue("client_id"),
			RequestedScopes: scopes,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeOAuthToken(w, result)
	default:
		writeError(w, r, http.StatusBadRequest, "unsupported_grant_type")
	}
}

func writeOAuthToken(w http.ResponseWriter, res authz.TokenResult) {
	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":         res.TokenType,
		"access_token":       res.AccessToken,
		"refresh_token":      res.RefreshToken,
		"expires_in":         res.ExpiresIn,
		"refresh_expires_in": res.RefreshExpiresIn,
		"scope":              strings.Join(res.Scopes, " "),
	})
}

func (a *API) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing_bearer_token")
		return
	}
	user, found := a.dir.UserByID(principal.UserID)
	if !found {
		writeError(w, r, http.StatusUnauthorized, "missing_session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":          user.ID,
		"email":        user.Email,
		"scopes":       principal.Scopes,
		"risk":         user.Risk,
		"entitlements": user.Entitlements,
	})
}

func (a *API) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, a.issuer.JWKS())
}
