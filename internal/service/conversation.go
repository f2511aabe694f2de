// Package service provides the command layer the HTTP handlers call into.
// It holds the policies that sit between requests and the engine packages.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/filter"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// ErrInvalidRequest is returned for requests rejected before reaching the
// store.
var ErrInvalidRequest = errors.New("invalid request")

// ConversationService handles conversation operations.
type ConversationService struct {
	store  *store.Store
	logger *logger.Logger

	// Active sidebar filter for the session.
	mu     sync.Mutex
	active model.FilterCriteria
}

// NewConversationService creates a new conversation service.
func NewConversationService(st *store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  st,
		logger: logger.OrGlobal(log).Named("conversations"),
	}
}

// Filter returns the active filter.
func (s *ConversationService) Filter() model.FilterCriteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetFilter replaces the active filter. UnreadOnly and UnrepliedOnly are
// mutually exclusive: when next sets both, the one that was not already on
// wins and the other is cleared.
func (s *ConversationService) SetFilter(next model.FilterCriteria) model.FilterCriteria {
	next, err := filter.Normalize(next)
	if err != nil {
		s.logger.Warn("filter values dropped", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if next.UnreadOnly && next.UnrepliedOnly {
		if s.active.UnreadOnly {
			next.UnreadOnly = false
		} else {
			next.UnrepliedOnly = false
		}
	}
	s.active = next
	return next
}

// List returns the conversations matching criteria and query, newest first.
// A nil criteria uses the active filter. Counts cover the whole session.
func (s *ConversationService) List(ctx context.Context, criteria *model.FilterCriteria, query string) (*model.ListConversationsResponse, error) {
	var c model.FilterCriteria
	if criteria == nil {
		c = s.Filter()
	} else {
		if criteria.UnreadOnly && criteria.UnrepliedOnly {
			return nil, fmt.Errorf("%w: unread_only and unreplied_only are mutually exclusive", ErrInvalidRequest)
		}
		normalized, err := filter.Normalize(*criteria)
		if err != nil {
			s.logger.Warn("filter values dropped", zap.Error(err))
		}
		c = normalized
	}

	all := s.store.List()
	matched := filter.Conversations(all, c, query)
	return &model.ListConversationsResponse{
		Conversations: matched,
		Total:         len(matched),
		Counts:        filter.Counts(all),
	}, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (model.Conversation, error) {
	return s.store.Get(conversationID)
}

// Select records the conversation the agent is viewing. Results of AI tasks
// requested for a conversation are discarded once it loses the selection.
func (s *ConversationService) Select(ctx context.Context, conversationID string) error {
	return s.store.Select(conversationID)
}

// MarkRead marks the conversation's unread customer messages as read.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID string) error {
	return s.store.MarkRead(conversationID)
}

// Update changes status, priority, tags or assignee.
func (s *ConversationService) Update(ctx context.Context, conversationID string, req *model.UpdateConversationRequest) (model.Conversation, error) {
	if err := validateUpdate(req); err != nil {
		return model.Conversation{}, err
	}

	conv, err := s.store.Update(conversationID, func(c *model.Conversation) {
		if req.Status != "" {
			c.Status = req.Status
		}
		if req.Priority != "" {
			c.Priority = req.Priority
		}
		if req.Tags != nil {
			c.Tags = append([]string(nil), req.Tags...)
		}
		if req.AssignedTo != nil {
			c.AssignedTo = *req.AssignedTo
		}
	})
	if err != nil {
		return model.Conversation{}, err
	}

	s.logger.Info("conversation updated",
		zap.String("conversation_id", conversationID),
		zap.String("status", string(conv.Status)),
		zap.String("priority", string(conv.Priority)),
	)
	return conv, nil
}

func validateUpdate(req *model.UpdateConversationRequest) error {
	switch req.Status {
	case "", model.StatusActive, model.StatusPending, model.StatusResolved:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, req.Status)
	}
	switch req.Priority {
	case "", model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, req.Priority)
	}
	return nil
}

// Settings returns the current settings.
func (s *ConversationService) Settings() model.Settings {
	return s.store.Settings()
}

// UpdateSettings applies a partial settings update.
func (s *ConversationService) UpdateSettings(ctx context.Context, req model.UpdateSettingsRequest) (model.Settings, error) {
	if req.ReceiveLanguage != nil && *req.ReceiveLanguage == "" {
		return model.Settings{}, fmt.Errorf("%w: receive_language cannot be empty", ErrInvalidRequest)
	}
	if req.SendLanguage != nil && *req.SendLanguage == "" {
		return model.Settings{}, fmt.Errorf("%w: send_language cannot be empty", ErrInvalidRequest)
	}
	out := s.store.UpdateSettings(req)
	s.logger.Info("settings updated",
		zap.Bool("auto_reply_enabled", out.AutoReplyEnabled),
		zap.String("receive_language", out.ReceiveLanguage),
	)
	return out, nil
}

// Customers searches customer profiles. Comma-separated terms are ORed.
func (s *ConversationService) Customers(ctx context.Context, query string) []model.Customer {
	return filter.Customers(s.store.Customers(), query)
}

// Accounts returns the connected platform accounts.
func (s *ConversationService) Accounts(ctx context.Context) []model.Account {
	return s.store.Accounts()
}
