package authz

import "context"

// Principal is the verified identity attached to a request after bearer
// authentication.
type Principal struct {
	UserID       string
	ClientID     string
	SessionID    string
	Scopes       []string
	Risk         RiskLevel
	Entitlements map[string]bool
}

// HasScope reports whether the principal carries the given scope.
func (p Principal) HasScope(scope string) bool {
	return HasScope(p.Scopes, scope)
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
