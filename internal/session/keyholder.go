package session

import (
	"context"
	"log"
	"strings"
	"sync"

	"appforge/internal/llm"
)

// KeyHolder gates generation calls on a validated API key. Set initializes a
// client through the injected factory; a rejected key leaves any previously
// active client untouched.
type KeyHolder struct {
	factory llm.ClientFactory
	creds   CredentialStore

	mu     sync.RWMutex
	key    string
	client llm.GenerationClient
}

// NewKeyHolder wires the factory and durable store. creds may be nil, in which
// case keys live only for the process lifetime.
func NewKeyHolder(factory llm.ClientFactory, creds CredentialStore) *KeyHolder {
	return &KeyHolder{factory: factory, creds: creds}
}

// Restore attempts to activate a previously persisted key. Missing or stale keys
// are ignored.
func (h *KeyHolder) Restore(ctx context.Context) {
	if h == nil || h.creds == nil {
		return
	}
	key, ok := h.creds.Get(KeyCredentialName)
	if !ok {
		return
	}
	if err := h.Set(ctx, key); err != nil {
		log.Printf("session: persisted key rejected: %v", err)
	}
}

// Set validates the key by building a client. On success the key becomes active
// and is persisted; on failure prior state is untouched and the error (an
// *llm.InitError for rejected credentials) is returned.
func (h *KeyHolder) Set(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	client, err := h.factory(ctx, key)
	if err != nil {
		return err
	}

	h.mu.Lock()
	prev := h.client
	h.key = key
	h.client = client
	h.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	if h.creds != nil {
		if err := h.creds.Set(KeyCredentialName, key); err != nil {
			log.Printf("session: persisting key failed: %v", err)
		}
	}
	return nil
}

// IsActive reports whether a validated key is held.
func (h *KeyHolder) IsActive() bool {
	h.mu.RLock()
	active := h.client != nil
	h.mu.RUnlock()
	return active
}

// Client returns the active generation client, or nil when no key is held.
func (h *KeyHolder) Client() llm.GenerationClient {
	h.mu.RLock()
	c := h.client
	h.mu.RUnlock()
	return c
}

// Close releases the active client, if any.
func (h *KeyHolder) Close() error {
	h.mu.Lock()
	c := h.client
	h.client = nil
	h.key = ""
	h.mu.Unlock()
	if c != nil {
		return c.Close()
	}
	return nil
}
