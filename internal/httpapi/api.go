package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"authcore.dev/internal/audit"
	"authcore.dev/internal/authz"
	"authcore.dev/internal/obs"
	"authcore.dev/internal/stream"
	"authcore.dev/internal/token"
)

// ReadyProbe is a simple readiness check (DB ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authorization core.
type API struct {
	mux        *http.ServeMux
	dir        *authz.Directory
	svc        *authz.Service
	issuer     *token.Issuer
	auditor    *audit.Recorder
	broadcast  *stream.Broadcaster
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int
	authLimit  *ipLimiter
}

// New wires the routes. The authLimit bucket covers /token and
// /token/refresh with a tighter budget than the surface-wide limiter.
func New(rp ReadyProbe, version string, dir *authz.Directory, svc *authz.Service, issuer *token.Issuer, auditor *audit.Recorder, broadcast *stream.Broadcaster) *API {
	a := &API{
		mux:        http.NewServeMux(),
		dir:        dir,
		svc:        svc,
		issuer:     issuer,
		auditor:    auditor,
		broadcast:  broadcast,
		readyProbe: rp,
		version:    version,
		rateBurst:  50,
		ratePerSec: 25,
		authLimit:  newIPLimiter(10, 5),
	}

	a.mux.HandleFunc("/token", a.handleToken)
	a.mux.HandleFunc("/token/refresh", a.handleTokenRefresh)
	a.mux.HandleFunc("/oauth/token", a.handleOAuthToken)
	a.mux.HandleFunc("/oauth/userinfo", a.handleUserinfo)
	a.mux.HandleFunc("/oauth/jwks", a.handleJWKS)
	a.mux.HandleFunc("/session/revoke", a.handleSessionRevoke)
	a.mux.HandleFunc("/sessions", a.handleSessions)
	a.mux.HandleFunc("/permissions/stream", a.handlePermissionStream)
	a.mux.HandleFunc("/permissions/update", a.handlePermissionUpdate)
	a.mux.HandleFunc("/audit/summary", a.handleAuditSummary)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(CORS(h))
	h = Logging(RequestID(h))
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authcore-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "authcore-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, authz.ErrMfaRequired):
		writeError(w, r, http.StatusUnauthorized, "mfa_required")
	case errors.Is(err, authz.ErrInvalidMfaCode):
		writeError(w, r, http.StatusUnauthorized, "invalid_mfa_code")
	case errors.Is(err, authz.ErrUnknownClient):
		writeError(w, r, http.StatusBadRequest, "unknown_client")
	case errors.Is(err, authz.ErrNoScopesForClient):
		writeError(w, r, http.StatusForbidden, "no_scopes_for_client")
	case errors.Is(err, authz.ErrInvalidRefreshToken):
		writeError(w, r, http.StatusUnauthorized, "invalid_refresh_token")
	case errors.Is(err, authz.ErrInvalidSession):
		writeError(w, r, http.StatusUnauthorized, "invalid_session")
	case errors.Is(err, authz.ErrInsufficientScope):
		writeError(w, r, http.StatusForbidden, "insufficient_scope")
	case errors.Is(err, authz.ErrMissingSession):
		writeError(w, r, http.StatusBadRequest, "missing_session")
	case errors.Is(err, token.ErrInvalidOrExpiredToken):
		writeError(w, r, http.StatusUnauthorized, "invalid_token")
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
