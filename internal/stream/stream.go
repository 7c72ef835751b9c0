package stream

import (
	"context"
	"sync"

	"authcore.dev/internal/obs"
)

// PermissionUpdate is the payload fanned out to observers when a user's
// grants change. Risk is the risk level's string form so this package
// stays free of domain imports.
type PermissionUpdate struct {
	UserID       string          `json:"user_id"`
	Scopes       []string        `json:"scopes"`
	Risk         string          `json:"risk"`
	Entitlements map[string]bool `json:"entitlements"`
}

// Broadcaster fan-outs permission updates to all active subscribers
// (SSE/WebSocket clients). Delivery is at-most-once and non-durable: a
// disconnected observer must re-fetch current state on reconnect.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[int]chan PermissionUpdate
	next int
}

// New initialises an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan PermissionUpdate)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// updates. The channel is closed when the provided context ends.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan PermissionUpdate {
	ch := make(chan PermissionUpdate, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()
	obs.StreamSubscribers.Inc()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
		obs.StreamSubscribers.Dec()
	}()

	return ch
}

// Publish fan-outs the update to all subscribers.
func (b *Broadcaster) Publish(upd PermissionUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- upd:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
