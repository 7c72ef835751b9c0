package authz

import (
	"sort"
	"strings"
)

// ResolveScopes computes the scope set a token may carry: the intersection
// of the requested scopes with both the client's allowed scopes and the
// user's granted scopes. When no scopes are requested the client's default
// scopes are used, falling back to the user's own scopes for clients that
// declare no defaults. The result is deduplicated and sorted; an empty
// intersection yields ErrNoScopesForClient.
func ResolveScopes(user User, client Client, requested []string) ([]string, error) {
	requested = normalizeScopes(requested)
	if len(requested) == 0 {
		requested = normalizeScopes(client.DefaultScopes)
	}
	if len(requested) == 0 {
		requested = normalizeScopes(user.Scopes)
	}

	allowed := scopeSet(client.AllowedScopes)
	granted := scopeSet(user.Scopes)

	var resolved []string
	for _, scope := range requested {
		if _, ok := allowed[scope]; !ok {
			continue
		}
		if _, ok := granted[scope]; !ok {
			continue
		}
		resolved = append(resolved, scope)
	}
	if len(resolved) == 0 {
		return nil, ErrNoScopesForClient
	}
	sort.Strings(resolved)
	return resolved, nil
}

func scopeSet(scopes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		set[scope] = struct{}{}
	}
	return set
}

func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	var normalized []string
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		normalized = append(normalized, scope)
	}
	return normalized
}

// HasScope reports whether the scope list contains the given scope.
func HasScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
