package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := b.Subscribe(ctx)
	second := b.Subscribe(ctx)
	if got := b.Subscribers(); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}

	b.Publish(PermissionUpdate{UserID: "alice", Scopes: []string{"read"}, Risk: "ok"})

	for _, ch := range []<-chan PermissionUpdate{first, second} {
		select {
		case upd := <-ch:
			if upd.UserID != "alice" || upd.Risk != "ok" {
				t.Fatalf("unexpected update %+v", upd)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the update")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the buffer without draining. Publish must never block.
		for i := 0; i < 64; i++ {
			b.Publish(PermissionUpdate{UserID: "alice"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received > 16 {
		t.Fatalf("expected buffered delivery with drops, got %d", received)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	deadline := time.After(2 * time.Second)
	for b.Subscribers() != 0 {
		select {
		case <-deadline:
			t.Fatal("subscription was not pruned after cancel")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected the channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
}
