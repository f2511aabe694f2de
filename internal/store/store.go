// Package store is the single source of truth for conversations, messages,
// accounts and settings. Every mutation goes through a command method that
// runs to completion under the store lock; subscribers are notified after
// the lock is released.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

var (
	// ErrConversationNotFound is returned for unknown conversation IDs.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound is returned for unknown message IDs.
	ErrMessageNotFound = errors.New("message not found")
	// ErrInvalidTransition is returned when a message status would move backwards.
	ErrInvalidTransition = errors.New("invalid message status transition")
	// ErrDuplicateConversation is returned when adding an existing conversation ID.
	ErrDuplicateConversation = errors.New("conversation already exists")
)

// Store holds the canonical in-memory state for one session.
type Store struct {
	mu            sync.RWMutex
	order         []string // most recently updated first
	conversations map[string]*model.Conversation
	messageIndex  map[string]string // message ID -> conversation ID
	accounts      map[string]model.Account
	accountOrder  []string
	settings      model.Settings
	selected      string
	selectionGen  uint64 // bumped on every selection change

	subMu   sync.Mutex
	subs    map[int]func(model.Event)
	nextSub int

	now    func() time.Time
	logger *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSettings sets the initial settings.
func WithSettings(settings model.Settings) Option {
	return func(s *Store) { s.settings = settings }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*model.Conversation),
		messageIndex:  make(map[string]string),
		accounts:      make(map[string]model.Account),
		subs:          make(map[int]func(model.Event)),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrGlobal(s.logger).Named("store")
	return s
}

// Load replaces the store contents with a session snapshot. Conversations
// are ordered by UpdatedAt, newest first; ties keep input order.
func (s *Store) Load(conversations []model.Conversation, accounts []model.Account, settings model.Settings) error {
	convs := make([]*model.Conversation, 0, len(conversations))
	index := make(map[string]string)
	byID := make(map[string]*model.Conversation, len(conversations))

	for i := range conversations {
		c := conversations[i].Clone()
		if c.ID == "" {
			return fmt.Errorf("conversation %d: missing id", i)
		}
		if _, dup := byID[c.ID]; dup {
			return fmt.Errorf("conversation %s: %w", c.ID, ErrDuplicateConversation)
		}
		if err := s.prepare(&c, index); err != nil {
			return err
		}
		byID[c.ID] = &c
		convs = append(convs, &c)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	s.mu.Lock()
	s.conversations = byID
	s.messageIndex = index
	s.order = s.order[:0]
	for _, c := range convs {
		s.order = append(s.order, c.ID)
	}
	s.accounts = make(map[string]model.Account, len(accounts))
	s.accountOrder = s.accountOrder[:0]
	for _, a := range accounts {
		if _, ok := s.accounts[a.ID]; !ok {
			s.accountOrder = append(s.accountOrder, a.ID)
		}
		s.accounts[a.ID] = a
	}
	s.settings = settings
	s.selected = ""
	s.selectionGen++
	s.mu.Unlock()

	s.logger.Info("session loaded",
		zap.Int("conversations", len(convs)),
		zap.Int("accounts", len(accounts)),
	)
	return nil
}

// prepare normalizes a conversation before it enters the store.
func (s *Store) prepare(c *model.Conversation, index map[string]string) error {
	if c.Status == "" {
		c.Status = model.StatusActive
	}
	if c.Priority == "" {
		c.Priority = model.PriorityMedium
	}
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.ID == "" {
			m.ID = uuid.Must(uuid.NewV7()).String()
		}
		if owner, dup := index[m.ID]; dup {
			return fmt.Errorf("message %s already belongs to conversation %s", m.ID, owner)
		}
		m.ConversationID = c.ID
		if m.Status == "" {
			m.Status = defaultStatus(m.SenderType)
		}
		if m.SenderType == model.SenderAI {
			m.IsAIGenerated = true
		}
		index[m.ID] = c.ID
	}
	sort.SliceStable(c.Messages, func(i, j int) bool {
		return c.Messages[i].Timestamp.Before(c.Messages[j].Timestamp)
	})
	refresh(c)
	if c.UpdatedAt.IsZero() && c.LastMessage != nil {
		c.UpdatedAt = c.LastMessage.Timestamp
	}
	return nil
}

// refresh restores the denormalized fields of a conversation.
func refresh(c *model.Conversation) {
	c.LastMessage = nil
	if n := len(c.Messages); n > 0 {
		c.LastMessage = &c.Messages[n-1]
	}
	c.UnreadCount = c.UnreadCustomerMessages()
}

func defaultStatus(sender model.SenderType) model.MessageStatus {
	if sender == model.SenderCustomer {
		return model.MessageUnread
	}
	return model.MessageSent
}

// Subscribe registers fn for every committed mutation and returns a function
// that removes it. Delivery is synchronous on the goroutine that committed
// the mutation.
func (s *Store) Subscribe(fn func(model.Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(evt model.Event) {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now()
	}
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(model.Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

// touch moves a conversation to the front of the iteration order.
// Caller holds s.mu.
func (s *Store) touch(id string) {
	for i, cid := range s.order {
		if cid == id {
			copy(s.order[1:i+1], s.order[:i])
			s.order[0] = id
			return
		}
	}
}
