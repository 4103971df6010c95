// Package conversation holds the ordered chat history behind a build session.
// The store is append-only: entries are never mutated, reordered, or removed.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"appforge/internal/types"
)

// timestampLayout is the display time stamped onto every entry at append.
const timestampLayout = "3:04 PM"

// Store is a thread-safe append-only sequence of chat messages. Observers
// subscribed at append time receive every new entry in order.
type Store struct {
	now func() time.Time

	mu       sync.RWMutex
	messages []types.ChatMessage
	subs     map[int]chan types.ChatMessage
	nextSub  int
}

// NewStore creates an empty store. now may be nil, in which case time.Now is used.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:  now,
		subs: make(map[int]chan types.ChatMessage),
	}
}

// Append stamps the message with an ID and the current display time, inserts it at
// the end, and fans it out to subscribers. The stamped message is returned.
func (s *Store) Append(msg types.ChatMessage) types.ChatMessage {
	s.mu.Lock()
	msg.ID = uuid.NewString()
	msg.Timestamp = s.now().Format(timestampLayout)
	s.messages = append(s.messages, msg)
	for _, ch := range s.subs {
		select {
		case ch <- msg:
		default:
			// slow subscriber; drop rather than block the pipeline
		}
	}
	s.mu.Unlock()
	return msg
}

// Snapshot returns a copy of all entries in append order.
func (s *Store) Snapshot() []types.ChatMessage {
	s.mu.RLock()
	out := make([]types.ChatMessage, len(s.messages))
	copy(out, s.messages)
	s.mu.RUnlock()
	return out
}

// Len reports the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	n := len(s.messages)
	s.mu.RUnlock()
	return n
}

// Subscribe returns the current snapshot, a channel receiving subsequent appends,
// and a cancel func. Cancel must be called to release the subscription.
func (s *Store) Subscribe() ([]types.ChatMessage, <-chan types.ChatMessage, func()) {
	s.mu.Lock()
	snapshot := make([]types.ChatMessage, len(s.messages))
	copy(snapshot, s.messages)
	id := s.nextSub
	s.nextSub++
	ch := make(chan types.ChatMessage, 64)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return snapshot, ch, cancel
}
