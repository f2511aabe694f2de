package model

import (
	"time"
)

// OutboundSource says what produced an outbound message.
type OutboundSource string

const (
	SourceAgent     OutboundSource = "agent"
	SourceAI        OutboundSource = "ai"
	SourceBroadcast OutboundSource = "broadcast"
)

// OutboundMessage is handed to platform connectors for delivery.
type OutboundMessage struct {
	OutboundID     string         `json:"outbound_id"`
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	Platform       Platform       `json:"platform"`
	AccountID      string         `json:"account_id,omitempty"`
	CustomerID     string         `json:"customer_id,omitempty"`
	Text           string         `json:"text"`
	Source         OutboundSource `json:"source"`
	JobID          string         `json:"job_id,omitempty"`
	Seq            int            `json:"seq,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// InboundMessage is a customer message delivered by a platform connector.
type InboundMessage struct {
	MessageID      string    `json:"message_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	Platform       Platform  `json:"platform,omitempty"`
	AccountID      string    `json:"account_id,omitempty"`
	Customer       Customer  `json:"customer"`
	IsGroup        bool      `json:"is_group,omitempty"`
	Content        string    `json:"content"`
	Language       string    `json:"language,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}
