package httpapi

import (
	"net/http"

	"authcore.dev/internal/authz"
)

type tokenRequest struct {
	Email           string   `json:"email"`
	Secret          string   `json:"secret"`
	ClientID        string   `json:"client_id"`
	RequestedScopes []string `json:"requested_scopes,omitempty"`
	MFACode         string   `json:"mfa_code,omitempty"`
}

type refreshRequest struct {
	RefreshToken    string   `json:"refresh_token"`
	ClientID        string   `json:"client_id"`
	RequestedScopes []string `json:"requested_scopes,omitempty"`
}

type tokenResponse struct {
	TokenType        string   `json:"token_type"`
	AccessToken      string   `json:"access_token"`
	RefreshToken     string   `json:"refresh_token"`
	ExpiresIn        int64    `json:"expires_in"`
	RefreshExpiresIn int64    `json:"refresh_expires_in"`
	Audience         string   `json:"aud"`
	Scopes           []string `json:"scp"`
	SessionID        string   `json:"sid"`
}

func toTokenResponse(res authz.TokenResult) tokenResponse {
	return tokenResponse{
		TokenType:        res.TokenType,
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		ExpiresIn:        res.ExpiresIn,
		RefreshExpiresIn: res.RefreshExpiresIn,
		Audience:         res.Audience,
		Scopes:           res.Scopes,
		SessionID:        res.SessionID,
	}
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	// Credential endpoints carry a tighter budget than the general limiter,
	// applied before any directory or store work begins.
	if !a.authLimit.Allow(clientIP(r)) {
		writeError(w, r, http.StatusTooManyRequests, "rate_limited")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Secret == "" || req.ClientID == "" {
		writeError(w, r, http.StatusBadRequest, "email, secret and client_id are required")
		return
	}

	result, err := a.svc.Login(r.Context(), authz.LoginInput{
		Email:           req.Email,
		Secret:          req.Secret,
		ClientID:        req.ClientID,
		RequestedScopes: req.RequestedScopes,
		MFACode:         req.MFACode,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(result))
}

func (a *API) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.authLimit.Allow(clientIP(r)) {
		writeError(w, r, http.StatusTooManyRequests, "rate_limited")
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" || req.ClientID == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token and client_id are required")
		return
	}

	result, err := a.svc.Refresh(r.Context(), authz.RefreshInput{
		RefreshToken:    req.RefreshToken,
		ClientID:        req.ClientID,
		RequestedScopes: req.RequestedScopes,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(result))
}
