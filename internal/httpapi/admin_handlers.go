package httpapi

import (
	"net/http"
	"strings"
	"time"

	"authcore.dev/internal/authz"
)

type revokeRequest struct {
	SessionID    string `json:"session_id,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type permissionUpdateRequest struct {
	UserID       string           `json:"user_id"`
	Scopes       []string         `json:"scopes,omitempty"`
	Risk         *authz.RiskLevel `json:"risk,omitempty"`
	Entitlements map[string]bool  `json:"entitlements,omitempty"`
}

func (a *API) handleSessionRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireScope(w, r, ScopeAdminUpdate)
	if !ok {
		return
	}

	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" && strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "session_id or refresh_token is required")
		return
	}

	if err := a.svc.RevokeSession(r.Context(), principal.UserID, req.SessionID, req.RefreshToken); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireScope(w, r, ScopeAdminRead); !ok {
		return
	}

	sessions, err := a.svc.Sessions(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []authz.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"as_of":    time.Now().UTC(),
	})
}

func (a *API) handlePermissionUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.requireScope(w, r, ScopeAdminUpdate)
	if !ok {
		return
	}

	var req permissionUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	user, err := a.svc.UpdatePermissions(r.Context(), principal.UserID, req.UserID, authz.PermissionUpdate{
		Scopes:       req.Scopes,
		Risk:         req.Risk,
		Entitlements: req.Entitlements,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           user.ID,
		"email":        user.Email,
		"scopes":       user.Scopes,
		"risk":         user.Risk,
		"entitlements": user.Entitlements,
	})
}

func (a *API) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireScope(w, r, ScopeAdminRead); !ok {
		return
	}

	summary, err := a.auditor.Summary(r.Context(), 20)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
