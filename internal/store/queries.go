package store

import (
	"fmt"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// Get returns a copy of one conversation.
func (s *Store) Get(conversationID string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return model.Conversation{}, fmt.Errorf("get %s: %w", conversationID, ErrConversationNotFound)
	}
	return c.Clone(), nil
}

// List returns copies of every conversation in iteration order, most
// recently updated first.
func (s *Store) List() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.conversations[id].Clone())
	}
	return out
}

// Message returns a copy of one message.
func (s *Store) Message(messageID string) (model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, m, err := s.lookupMessage(messageID)
	if err != nil {
		return model.Message{}, err
	}
	return *m, nil
}

// Accounts returns the platform accounts in insertion order.
func (s *Store) Accounts() []model.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Account, 0, len(s.accountOrder))
	for _, id := range s.accountOrder {
		out = append(out, s.accounts[id])
	}
	return out
}

// Settings returns the current settings.
func (s *Store) Settings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Selected returns the conversation currently being viewed, if any.
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Customers returns the distinct customer profiles in iteration order.
func (s *Store) Customers() []model.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, len(s.order))
	out := make([]model.Customer, 0, len(s.order))
	for _, id := range s.order {
		cust := s.conversations[id].Customer
		key := cust.ID
		if key == "" {
			key = "conv:" + id
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cust.Clone())
	}
	return out
}

// SelectionGuard is a cancellation token bound to the selection at the time
// it was taken: it reports canceled once the agent moves off conversationID,
// and stays canceled even if the agent later comes back.
type SelectionGuard struct {
	store          *Store
	conversationID string
	gen            uint64
}

// Guard returns a SelectionGuard for conversationID.
func (s *Store) Guard(conversationID string) SelectionGuard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SelectionGuard{store: s, conversationID: conversationID, gen: s.selectionGen}
}

// Canceled reports whether the selection changed since the guard was taken
// or never pointed at the guarded conversation.
func (g SelectionGuard) Canceled() bool {
	g.store.mu.RLock()
	defer g.store.mu.RUnlock()
	return g.store.selectionGen != g.gen || g.store.selected != g.conversationID
}
