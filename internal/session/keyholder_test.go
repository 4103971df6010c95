package session

import (
	"context"
	"path/filepath"
	"testing"

	"appforge/internal/llm"
)

func goodFactory(t *testing.T) llm.ClientFactory {
	t.Helper()
	return func(ctx context.Context, apiKey string) (llm.GenerationClient, error) {
		if apiKey == "" {
			return nil, &llm.InitError{Err: context.Canceled}
		}
		return llm.NewFakeClient(), nil
	}
}

func rejectingFactory(keys map[string]bool) llm.ClientFactory {
	return func(ctx context.Context, apiKey string) (llm.GenerationClient, error) {
		if !keys[apiKey] {
			return nil, &llm.InitError{Err: context.Canceled}
		}
		return llm.NewFakeClient(), nil
	}
}

func TestSetActivatesAndPersists(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "creds.json"))
	h := NewKeyHolder(goodFactory(t), store)
	if h.IsActive() {
		t.Fatalf("holder active before any key")
	}
	if err := h.Set(context.Background(), "key-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !h.IsActive() {
		t.Fatalf("holder not active after Set")
	}
	if v, ok := store.Get(KeyCredentialName); !ok || v != "key-1" {
		t.Fatalf("key not persisted: %q %v", v, ok)
	}
}

func TestBadKeyLeavesPriorStateUntouched(t *testing.T) {
	factory := rejectingFactory(map[string]bool{"good": true})
	h := NewKeyHolder(factory, nil)

	if err := h.Set(context.Background(), "bad"); err == nil {
		t.Fatalf("expected init error for bad key")
	}
	if h.IsActive() {
		t.Fatalf("holder active after rejected key")
	}

	if err := h.Set(context.Background(), "good"); err != nil {
		t.Fatalf("Set good: %v", err)
	}
	prev := h.Client()

	if err := h.Set(context.Background(), "bad"); err == nil {
		t.Fatalf("expected init error for bad key")
	}
	if !h.IsActive() || h.Client() != prev {
		t.Fatalf("rejected key disturbed active client")
	}
}

func TestRestoreActivatesPersistedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	store := New(path)
	if err := store.Set(KeyCredentialName, "key-2"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	h := NewKeyHolder(goodFactory(t), New(path))
	h.Restore(context.Background())
	if !h.IsActive() {
		t.Fatalf("Restore did not activate persisted key")
	}
}

func TestRestoreIgnoresMissingKey(t *testing.T) {
	h := NewKeyHolder(goodFactory(t), New(filepath.Join(t.TempDir(), "creds.json")))
	h.Restore(context.Background())
	if h.IsActive() {
		t.Fatalf("Restore activated without a persisted key")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := New(path).Set("name", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := New(path).Get("name"); !ok || v != "value" {
		t.Fatalf("reload got %q %v", v, ok)
	}
	if _, ok := New(path).Get("other"); ok {
		t.Fatalf("unexpected hit for absent credential")
	}
}
