package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error {
	return errors.New("sink down")
}

func (failingStore) Summary(context.Context, int) (Summary, error) {
	return Summary{}, errors.New("sink down")
}

func TestRecorderPopulatesEvent(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecorder(store).WithClock(func() time.Time { return at })

	rec.Record(context.Background(), EventLoginSucceeded, "alice", "app1", map[string]string{
		"session_id": "s1",
	})

	events := store.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.ID == "" {
		t.Fatal("expected a generated event id")
	}
	if ev.EventType != EventLoginSucceeded || ev.UserID != "alice" || ev.ClientID != "app1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.CreatedAt.Equal(at) {
		t.Fatalf("expected clock time, got %v", ev.CreatedAt)
	}
	if ev.Metadata["session_id"] != "s1" {
		t.Fatalf("unexpected metadata %+v", ev.Metadata)
	}
}

func TestRecorderSwallowsSinkFailures(t *testing.T) {
	rec := NewRecorder(failingStore{})
	// Must not panic or propagate: audit is best-effort.
	rec.Record(context.Background(), EventAuthFailed, "", "app1", nil)

	if _, err := rec.Summary(context.Background(), 10); err == nil {
		t.Fatal("summary errors must surface to the caller")
	}
}

func TestMemorySummary(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	ctx := context.Background()

	rec.Record(ctx, EventAuthFailed, "", "app1", nil)
	rec.Record(ctx, EventAuthFailed, "alice", "app1", nil)
	rec.Record(ctx, EventLoginSucceeded, "alice", "app1", nil)

	summary, err := rec.Summary(ctx, 2)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Counts[EventAuthFailed] != 2 || summary.Counts[EventLoginSucceeded] != 1 {
		t.Fatalf("unexpected counts %+v", summary.Counts)
	}
	if len(summary.Recent) != 2 {
		t.Fatalf("expected 2 recent events, got %d", len(summary.Recent))
	}
	// Most recent first.
	if summary.Recent[0].EventType != EventLoginSucceeded {
		t.Fatalf("unexpected ordering: %+v", summary.Recent)
	}

	// A non-positive limit falls back to the default window.
	summary, err = rec.Summary(ctx, 0)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Recent) != 3 {
		t.Fatalf("expected all 3 events, got %d", len(summary.Recent))
	}
}
