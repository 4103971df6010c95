package conversation

import (
	"testing"
	"time"

	"appforge/internal/types"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 15, 4, 0, 0, time.UTC)
}

func TestAppendStampsTimestampAndID(t *testing.T) {
	s := NewStore(fixedClock)
	got := s.Append(types.ChatMessage{Author: types.AuthorUser, Type: types.MessageText, Content: "hi"})
	if got.ID == "" {
		t.Fatalf("expected ID to be stamped")
	}
	if got.Timestamp != "3:04 PM" {
		t.Fatalf("unexpected timestamp: %q", got.Timestamp)
	}
}

func TestSnapshotPreservesAppendOrder(t *testing.T) {
	s := NewStore(nil)
	for _, c := range []string{"a", "b", "c"} {
		s.Append(types.ChatMessage{Author: types.AuthorUser, Type: types.MessageText, Content: c})
	}
	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	for i, want := range []string{"a", "b", "c"} {
		if snap[i].Content != want {
			t.Fatalf("entry %d: got %q want %q", i, snap[i].Content, want)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(nil)
	s.Append(types.ChatMessage{Author: types.AuthorAI, Type: types.MessageText, Content: "x"})
	snap := s.Snapshot()
	snap[0].Content = "mutated"
	if s.Snapshot()[0].Content != "x" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestSubscribeReceivesSubsequentAppends(t *testing.T) {
	s := NewStore(nil)
	s.Append(types.ChatMessage{Author: types.AuthorUser, Type: types.MessageText, Content: "before"})

	snapshot, ch, cancel := s.Subscribe()
	defer cancel()
	if len(snapshot) != 1 {
		t.Fatalf("expected snapshot of 1, got %d", len(snapshot))
	}

	s.Append(types.ChatMessage{Author: types.AuthorAI, Type: types.MessageText, Content: "after"})
	select {
	case got := <-ch:
		if got.Content != "after" {
			t.Fatalf("unexpected message: %q", got.Content)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for subscribed append")
	}
}

func TestCancelClosesSubscription(t *testing.T) {
	s := NewStore(nil)
	_, ch, cancel := s.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after cancel")
	}
	// A second cancel must be safe.
	cancel()
}
