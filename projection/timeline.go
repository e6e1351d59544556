// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and projections.
// Does not emit events or interact with UI directly.
package projection

import (
	"context"
	"sort"
	"sync"

	"panel-lab/domain"
	"panel-lab/domain/event"

	"github.com/google/uuid"
)

// Timeline holds the chat log of the running session, in memory only.
type Timeline struct {
	mu       sync.RWMutex
	Owner    string
	messages []domain.Message
	seen     map[uuid.UUID]struct{}
}

func NewTimeline(owner string) *Timeline {
	return &Timeline{
		Owner: owner,
		seen:  make(map[uuid.UUID]struct{}),
	}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.ChatPosted:
		t.add(evt.Message)
	case event.SessionClosed:
		// Chat history dies with the session.
		t.mu.Lock()
		t.messages = nil
		t.seen = make(map[uuid.UUID]struct{})
		t.mu.Unlock()
	}
	return nil
}

func (t *Timeline) add(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if msg.ID != uuid.Nil {
		if _, dup := t.seen[msg.ID]; dup {
			return
		}
		t.seen[msg.ID] = struct{}{}
	}
	t.messages = append(t.messages, msg)
	// Relay order is kept for messages sent within the same instant.
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].CreatedAt.Before(t.messages[j].CreatedAt)
	})
}

// Messages returns a copy of the log, oldest first.
func (t *Timeline) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Mine returns the messages the owner wrote.
func (t *Timeline) Mine() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.Message
	for _, m := range t.messages {
		if m.Mine {
			out = append(out, m)
		}
	}
	return out
}
