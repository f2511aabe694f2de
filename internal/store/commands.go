package store

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
)

// AddConversation inserts a new conversation at the front of the order.
func (s *Store) AddConversation(conv model.Conversation) (model.Conversation, error) {
	c := conv.Clone()
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}

	s.mu.Lock()
	if _, exists := s.conversations[c.ID]; exists {
		s.mu.Unlock()
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", c.ID, ErrDuplicateConversation)
	}
	local := make(map[string]string, len(c.Messages))
	if err := s.prepare(&c, local); err != nil {
		s.mu.Unlock()
		return model.Conversation{}, err
	}
	for id := range local {
		if owner, dup := s.messageIndex[id]; dup {
			s.mu.Unlock()
			return model.Conversation{}, fmt.Errorf("message %s already belongs to conversation %s", id, owner)
		}
	}
	for id, owner := range local {
		s.messageIndex[id] = owner
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now()
	}
	s.conversations[c.ID] = &c
	s.order = append([]string{c.ID}, s.order...)
	out := c.Clone()
	s.mu.Unlock()

	s.notify(model.Event{
		Type:           model.EventConversationAdded,
		ConversationID: c.ID,
		Platform:       c.Platform,
	})
	return out, nil
}

// AppendMessage adds a message to a conversation, keeping the message list
// in chronological order and LastMessage/UnreadCount consistent. The
// conversation moves to the front of the iteration order.
func (s *Store) AppendMessage(conversationID string, msg model.Message) (model.Message, error) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("append to %s: %w", conversationID, ErrConversationNotFound)
	}

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if owner, dup := s.messageIndex[msg.ID]; dup {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("message %s already belongs to conversation %s", msg.ID, owner)
	}
	msg.ConversationID = conversationID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if msg.Status == "" {
		msg.Status = defaultStatus(msg.SenderType)
	}
	if msg.SenderType == model.SenderAI {
		msg.IsAIGenerated = true
	}

	// Insert after every message with a timestamp <= msg's.
	pos := sort.Search(len(c.Messages), func(i int) bool {
		return c.Messages[i].Timestamp.After(msg.Timestamp)
	})
	c.Messages = append(c.Messages, model.Message{})
	copy(c.Messages[pos+1:], c.Messages[pos:])
	c.Messages[pos] = msg

	refresh(c)
	c.UpdatedAt = s.now()
	s.messageIndex[msg.ID] = conversationID
	s.touch(conversationID)
	platform := c.Platform
	s.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(string(platform), string(msg.SenderType)).Inc()
	s.logger.Debug("message appended",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", msg.ID),
		zap.String("sender", string(msg.SenderType)),
	)

	out := msg
	s.notify(model.Event{
		Type:           model.EventMessageAppended,
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Message:        &out,
		Platform:       platform,
	})
	return msg, nil
}

// MarkRead marks every unread customer message in the conversation as read.
func (s *Store) MarkRead(conversationID string) error {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("mark read %s: %w", conversationID, ErrConversationNotFound)
	}
	changed := false
	for i := range c.Messages {
		if c.Messages[i].SenderType == model.SenderCustomer && c.Messages[i].Status == model.MessageUnread {
			c.Messages[i].Status = model.MessageRead
			changed = true
		}
	}
	refresh(c)
	s.mu.Unlock()

	if changed {
		s.notify(model.Event{Type: model.EventConversationRead, ConversationID: conversationID})
	}
	return nil
}

// SetMessageStatus moves a single message forward in its status lifecycle.
func (s *Store) SetMessageStatus(messageID string, status model.MessageStatus) error {
	s.mu.Lock()
	c, m, err := s.lookupMessage(messageID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !m.Status.CanTransition(status) {
		s.mu.Unlock()
		return fmt.Errorf("message %s %s -> %s: %w", messageID, m.Status, status, ErrInvalidTransition)
	}
	changed := m.Status != status
	m.Status = status
	refresh(c)
	convID := c.ID
	s.mu.Unlock()

	if changed {
		s.notify(model.Event{
			Type:           model.EventMessageStatus,
			ConversationID: convID,
			MessageID:      messageID,
		})
	}
	return nil
}

// AttachTranslation records a translation on a message.
func (s *Store) AttachTranslation(messageID, text, language string) error {
	s.mu.Lock()
	c, m, err := s.lookupMessage(messageID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	m.TranslatedContent = text
	m.TranslatedLanguage = language
	convID := c.ID
	s.mu.Unlock()

	s.notify(model.Event{
		Type:           model.EventMessageTranslated,
		ConversationID: convID,
		MessageID:      messageID,
	})
	return nil
}

// lookupMessage returns the owning conversation and a pointer into its
// message slice. Caller holds s.mu.
func (s *Store) lookupMessage(messageID string) (*model.Conversation, *model.Message, error) {
	convID, ok := s.messageIndex[messageID]
	if !ok {
		return nil, nil, fmt.Errorf("message %s: %w", messageID, ErrMessageNotFound)
	}
	c := s.conversations[convID]
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return c, &c.Messages[i], nil
		}
	}
	return nil, nil, fmt.Errorf("message %s: %w", messageID, ErrMessageNotFound)
}

// Update applies a conversation-level change (status, priority, tags,
// assignee) through fn.
func (s *Store) Update(conversationID string, fn func(c *model.Conversation)) (model.Conversation, error) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return model.Conversation{}, fmt.Errorf("update %s: %w", conversationID, ErrConversationNotFound)
	}
	// Messages and identity are owned by the dedicated commands.
	id, platform, messages := c.ID, c.Platform, c.Messages
	fn(c)
	c.ID, c.Platform, c.Messages = id, platform, messages
	refresh(c)
	out := c.Clone()
	s.mu.Unlock()

	s.notify(model.Event{Type: model.EventConversationUpdated, ConversationID: conversationID})
	return out, nil
}

// SetStatus sets the workflow status of a conversation.
func (s *Store) SetStatus(conversationID string, status model.ConversationStatus) error {
	_, err := s.Update(conversationID, func(c *model.Conversation) { c.Status = status })
	return err
}

// SetPriority sets the priority of a conversation.
func (s *Store) SetPriority(conversationID string, priority model.Priority) error {
	_, err := s.Update(conversationID, func(c *model.Conversation) { c.Priority = priority })
	return err
}

// SetTags replaces the tags of a conversation.
func (s *Store) SetTags(conversationID string, tags []string) error {
	tags = append([]string(nil), tags...)
	_, err := s.Update(conversationID, func(c *model.Conversation) { c.Tags = tags })
	return err
}

// Assign sets the agent a conversation is assigned to. Empty unassigns.
func (s *Store) Assign(conversationID, agent string) error {
	_, err := s.Update(conversationID, func(c *model.Conversation) { c.AssignedTo = agent })
	return err
}

// SetAIAnalysisGenerated flags that a summary was produced for the
// conversation.
func (s *Store) SetAIAnalysisGenerated(conversationID string, generated bool) error {
	_, err := s.Update(conversationID, func(c *model.Conversation) { c.AIAnalysisGenerated = generated })
	return err
}

// UpdateSettings applies a partial settings update and returns the result.
func (s *Store) UpdateSettings(req model.UpdateSettingsRequest) model.Settings {
	s.mu.Lock()
	s.settings = req.Apply(s.settings)
	out := s.settings
	s.mu.Unlock()

	snapshot := out
	s.notify(model.Event{Type: model.EventSettingsUpdated, Settings: &snapshot})
	return out
}

// Select records which conversation the agent is viewing. Empty clears it.
func (s *Store) Select(conversationID string) error {
	s.mu.Lock()
	if conversationID != "" {
		if _, ok := s.conversations[conversationID]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("select %s: %w", conversationID, ErrConversationNotFound)
		}
	}
	changed := s.selected != conversationID
	s.selected = conversationID
	if changed {
		s.selectionGen++
	}
	s.mu.Unlock()

	if changed {
		s.notify(model.Event{Type: model.EventSelectionChanged, ConversationID: conversationID})
	}
	return nil
}

// UpsertAccount adds or replaces a platform account.
func (s *Store) UpsertAccount(a model.Account) {
	s.mu.Lock()
	if _, ok := s.accounts[a.ID]; !ok {
		s.accountOrder = append(s.accountOrder, a.ID)
	}
	s.accounts[a.ID] = a
	s.mu.Unlock()

	s.notify(model.Event{Type: model.EventAccountUpdated, Platform: a.Platform})
}
