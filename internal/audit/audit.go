package audit

import (
	"context"
	"time"

	"authcore.dev/internal/ids"
	"authcore.dev/internal/obs"
)

// Event types recorded by the authorization core.
const (
	EventAuthFailed         = "AUTH_FAILED"
	EventMfaRequired        = "MFA_REQUIRED"
	EventMfaFailed          = "MFA_FAILED"
	EventLoginSucceeded     = "LOGIN_SUCCEEDED"
	EventScopeDenied        = "SCOPE_DENIED"
	EventTokenRefreshed     = "TOKEN_REFRESHED"
	EventRefreshFailed      = "REFRESH_FAILED"
	EventSessionRevoked     = "SESSION_REVOKED"
	EventPermissionsUpdated = "PERMISSIONS_UPDATED"
)

// Event is one append-only audit record. Events are never mutated or
// deleted by this core.
type Event struct {
	ID        string            `json:"id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Summary aggregates the trail for the admin endpoint.
type Summary struct {
	Counts map[string]int64 `json:"counts"`
	Recent []Event          `json:"recent"`
}

// Store is the durable audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	Summary(ctx context.Context, recent int) (Summary, error)
}

// Recorder writes audit events best-effort: a degraded sink is logged and
// swallowed so it never converts a successful security operation into a
// failure.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder wraps the sink. A nil time source defaults to time.Now.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// WithClock overrides the recorder's time source. Intended for tests.
func (r *Recorder) WithClock(fn func() time.Time) *Recorder {
	if fn != nil {
		r.now = fn
	}
	return r
}

// Record appends one event. Sink failures are reported through the shared
// logger only.
func (r *Recorder) Record(ctx context.Context, eventType, userID, clientID string, metadata map[string]string) {
	event := Event{
		ID:        ids.New(),
		EventType: eventType,
		UserID:    userID,
		ClientID:  clientID,
		CreatedAt: r.now().UTC(),
		Metadata:  metadata,
	}
	if err := r.store.Append(ctx, event); err != nil {
		obs.Log(map[string]any{
			"level": "error",
			"msg":   "audit append failed",
			"event": eventType,
			"error": err.Error(),
		})
	}
}

// Summary returns counts by event type plus the most recent entries.
func (r *Recorder) Summary(ctx context.Context, recent int) (Summary, error) {
	if recent <= 0 {
		recent = 20
	}
	return r.store.Summary(ctx, recent)
}
