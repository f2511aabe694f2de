package model

import (
	"time"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderAI       SenderType = "ai"
)

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	MessageUnread    MessageStatus = "unread"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// Message represents a conversation message.
type Message struct {
	// Identity
	ID             string `json:"id" yaml:"id"`
	ConversationID string `json:"conversation_id" yaml:"conversation_id"`

	// Content
	SenderType SenderType `json:"sender_type" yaml:"sender_type"`
	Content    string     `json:"content" yaml:"content"`
	Language   string     `json:"language,omitempty" yaml:"language"`

	// Translation, attached after the fact
	TranslatedContent  string `json:"translated_content,omitempty" yaml:"translated_content"`
	TranslatedLanguage string `json:"translated_language,omitempty" yaml:"translated_language"`

	Status        MessageStatus `json:"status" yaml:"status"`
	IsAIGenerated bool          `json:"is_ai_generated" yaml:"is_ai_generated"`
	Timestamp     time.Time     `json:"timestamp" yaml:"timestamp"`
}

// CanTransition reports whether a status change is allowed. Statuses only
// move forward: unread->read for inbound, sent->delivered->read for outbound.
func (s MessageStatus) CanTransition(to MessageStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case MessageUnread:
		return to == MessageRead
	case MessageSent:
		return to == MessageDelivered || to == MessageRead
	case MessageDelivered:
		return to == MessageRead
	default:
		return false
	}
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content       string `json:"content"`
	IsAIGenerated bool   `json:"is_ai_generated,omitempty"`
}

// SendMessageResponse is the response after sending a message.
type SendMessageResponse struct {
	Message *Message `json:"message,omitempty"`
}

// Translation is the result of translating one message.
type Translation struct {
	MessageID      string `json:"message_id"`
	TranslatedText string `json:"translated_text"`
	TargetLanguage string `json:"target_language"`
	Cached         bool   `json:"cached"`
}
