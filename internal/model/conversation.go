// Package model defines data structures for the conversation engine.
package model

import (
	"time"
)

// Platform is the messaging platform a conversation lives on.
type Platform string

const (
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformTelegram  Platform = "telegram"
	PlatformMessenger Platform = "messenger"
	PlatformInstagram Platform = "instagram"
	PlatformLine      Platform = "line"
	PlatformWeChat    Platform = "wechat"
)

// Platforms lists every platform the engine knows about.
var Platforms = []Platform{
	PlatformWhatsApp,
	PlatformTelegram,
	PlatformMessenger,
	PlatformInstagram,
	PlatformLine,
	PlatformWeChat,
}

// ConversationStatus is the workflow status of a conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusPending  ConversationStatus = "pending"
	StatusResolved ConversationStatus = "resolved"
)

// Priority ranks a conversation for agents.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ChatType distinguishes group chats from one-to-one chats.
type ChatType string

const (
	ChatTypeGroup   ChatType = "group"
	ChatTypePrivate ChatType = "private"
)

// Conversation represents a thread between one customer (or group) and the
// organization on a given platform.
type Conversation struct {
	ID                  string             `json:"id" yaml:"id"`
	Platform            Platform           `json:"platform" yaml:"platform"`
	AccountID           string             `json:"account_id,omitempty" yaml:"account_id"`
	Customer            Customer           `json:"customer" yaml:"customer"`
	Messages            []Message          `json:"messages" yaml:"messages"`
	UnreadCount         int                `json:"unread_count" yaml:"unread_count"`
	Status              ConversationStatus `json:"status" yaml:"status"`
	Priority            Priority           `json:"priority" yaml:"priority"`
	Tags                []string           `json:"tags,omitempty" yaml:"tags"`
	IsGroup             bool               `json:"is_group" yaml:"is_group"`
	AssignedTo          string             `json:"assigned_to,omitempty" yaml:"assigned_to"`
	LastMessage         *Message           `json:"last_message,omitempty" yaml:"-"`
	AIAnalysisGenerated bool               `json:"ai_analysis_generated" yaml:"ai_analysis_generated"`
	UpdatedAt           time.Time          `json:"updated_at" yaml:"updated_at"`
}

// ChatType reports whether the conversation is a group or private chat.
func (c *Conversation) ChatType() ChatType {
	if c.IsGroup {
		return ChatTypeGroup
	}
	return ChatTypePrivate
}

// Clone returns a deep copy so callers never share message slices with the
// store.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Customer = c.Customer.Clone()
	out.Tags = append([]string(nil), c.Tags...)
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	out.LastMessage = nil
	if n := len(out.Messages); n > 0 {
		out.LastMessage = &out.Messages[n-1]
	}
	return out
}

// UnreadCustomerMessages counts customer-authored messages still unread.
func (c *Conversation) UnreadCustomerMessages() int {
	n := 0
	for i := range c.Messages {
		if c.Messages[i].SenderType == SenderCustomer && c.Messages[i].Status == MessageUnread {
			n++
		}
	}
	return n
}

// AwaitingReply reports whether the last message came from the customer.
func (c *Conversation) AwaitingReply() bool {
	return c.LastMessage != nil && c.LastMessage.SenderType == SenderCustomer
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	Counts        Counts         `json:"counts"`
}

// Counts summarizes a conversation set for sidebar badges.
type Counts struct {
	Total      int              `json:"total"`
	Unread     int              `json:"unread"`
	ByPlatform map[Platform]int `json:"by_platform"`
}

// UpdateConversationRequest is the request to update a conversation.
type UpdateConversationRequest struct {
	Status     ConversationStatus `json:"status,omitempty"`
	Priority   Priority           `json:"priority,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
	AssignedTo *string            `json:"assigned_to,omitempty"`
}
