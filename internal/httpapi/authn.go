package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authcore.dev/internal/authz"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// ScopeAdminRead gates read-only administrative endpoints; ScopeAdminUpdate
// gates mutating ones.
const (
	ScopeAdminRead   = "admin:read"
	ScopeAdminUpdate = "admin:update"
)

var publicPaths = []string{
	"/token",
	"/token/refresh",
	"/oauth/token",
	"/oauth/jwks",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		// Paths no route claims resolve to the catch-all NotFound handler;
		// a 404 must not be hidden behind the bearer check.
		if _, pattern := a.mux.Handler(r); pattern == "" || pattern == "/" {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "missing_bearer_token")
			return
		}

		claims, err := a.issuer.Verify(raw)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid_token")
			return
		}

		principal := authz.Principal{
			UserID:       claims.Subject,
			SessionID:    claims.SessionID,
			Scopes:       claims.Scopes,
			Risk:         authz.RiskLevel(claims.Risk),
			Entitlements: claims.Entitlements,
		}
		if len(claims.Audience) > 0 {
			principal.ClientID = claims.Audience[0]
		}
		ctx := authz.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireScope loads the request principal and checks the scope, writing
// the error response itself on failure.
func (a *API) requireScope(w http.ResponseWriter, r *http.Request, scope string) (authz.Principal, bool) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing_bearer_token")
		return authz.Principal{}, false
	}
	if !principal.HasScope(scope) {
		handleAuthError(w, r, authz.ErrInsufficientScope)
		return authz.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearer):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
