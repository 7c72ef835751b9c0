package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
)

// handlePermissionStream pushes permission_update events to the caller.
// SSE is the default transport; ?transport=ws upgrades to a WebSocket for
// dashboards that prefer it. Delivery is at-most-once: a reconnecting
// observer must re-fetch current state.
func (a *API) handlePermissionStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireScope(w, r, ScopeAdminRead); !ok {
		return
	}
	if a.broadcast == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming_disabled")
		return
	}

	if r.URL.Query().Get("transport") == "ws" {
		a.streamWebSocket(w, r)
		return
	}
	a.streamSSE(w, r)
}

func (a *API) streamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.broadcast.Subscribe(ctx)

	// Send an initial comment to establish the stream.
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for upd := range ch {
		payload, err := json.Marshal(upd)
		if err != nil {
			continue
		}
		if _, err := w.Write([]byte("event: permission_update\ndata: ")); err != nil {
			return
		}
		_, _ = w.Write(payload)
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (a *API) streamWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.broadcast.Subscribe(ctx)
	for upd := range ch {
		payload, err := json.Marshal(upd)
		if err != nil {
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			// Cancelling prunes this subscription from the registry.
			return
		}
	}
}
