package model

import (
	"time"
)

// EventType represents the type of store change event.
type EventType string

const (
	EventConversationAdded   EventType = "conversation.added"
	EventConversationUpdated EventType = "conversation.updated"
	EventConversationRead    EventType = "conversation.read"
	EventMessageAppended     EventType = "message.appended"
	EventMessageStatus       EventType = "message.status"
	EventMessageTranslated   EventType = "message.translated"
	EventSettingsUpdated     EventType = "settings.updated"
	EventSelectionChanged    EventType = "selection.changed"
	EventAccountUpdated      EventType = "account.updated"
)

// Event describes a committed store mutation.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	Settings       *Settings `json:"settings,omitempty"`
	Platform       Platform  `json:"platform,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
