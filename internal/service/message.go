package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// OutboundPublisher hands outbound messages to platform connectors.
type OutboundPublisher interface {
	PublishOutbound(ctx context.Context, msg model.OutboundMessage) error
}

// MessageService handles message operations.
type MessageService struct {
	store     *store.Store
	publisher OutboundPublisher
	now       func() time.Time
	logger    *logger.Logger
}

// NewMessageService creates a new message service. A nil publisher records
// sends in the store only.
func NewMessageService(st *store.Store, publisher OutboundPublisher, log *logger.Logger) *MessageService {
	return &MessageService{
		store:     st,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.OrGlobal(log).Named("messages"),
	}
}

// Send publishes an agent (or AI-suggested) message for delivery, then
// records it on the conversation.
func (s *MessageService) Send(ctx context.Context, conversationID string, req *model.SendMessageRequest) (model.Message, error) {
	conv, err := s.store.Get(conversationID)
	if err != nil {
		return model.Message{}, err
	}

	msg := model.Message{
		ID:         uuid.Must(uuid.NewV7()).String(),
		SenderType: model.SenderAgent,
		Content:    req.Content,
		Language:   s.store.Settings().SendLanguage,
	}
	source := model.SourceAgent
	if req.IsAIGenerated {
		msg.IsAIGenerated = true
		source = model.SourceAI
	}

	if s.publisher != nil {
		err := s.publisher.PublishOutbound(ctx, model.OutboundMessage{
			OutboundID:     msg.ID,
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			Platform:       conv.Platform,
			AccountID:      conv.AccountID,
			CustomerID:     conv.Customer.ID,
			Text:           msg.Content,
			Source:         source,
			CreatedAt:      s.now(),
		})
		if err != nil {
			return model.Message{}, fmt.Errorf("failed to publish message: %w", err)
		}
	}

	out, err := s.store.AppendMessage(conv.ID, msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to record message: %w", err)
	}
	return out, nil
}

// Receive records an inbound customer message. An unknown conversation is
// created from the message's platform and customer.
func (s *MessageService) Receive(ctx context.Context, in model.InboundMessage) (model.Message, error) {
	if in.ConversationID == "" {
		return model.Message{}, fmt.Errorf("%w: conversation_id is required", ErrInvalidRequest)
	}

	_, err := s.store.Get(in.ConversationID)
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		if in.Platform == "" {
			return model.Message{}, fmt.Errorf("%w: platform is required for a new conversation", ErrInvalidRequest)
		}
		_, err = s.store.AddConversation(model.Conversation{
			ID:        in.ConversationID,
			Platform:  in.Platform,
			AccountID: in.AccountID,
			Customer:  in.Customer,
			IsGroup:   in.IsGroup,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicateConversation) {
			return model.Message{}, err
		}
		s.logger.Info("conversation opened",
			zap.String("conversation_id", in.ConversationID),
			zap.String("platform", string(in.Platform)),
		)
	case err != nil:
		return model.Message{}, err
	}

	return s.store.AppendMessage(in.ConversationID, model.Message{
		ID:         in.MessageID,
		SenderType: model.SenderCustomer,
		Content:    in.Content,
		Language:   in.Language,
		Timestamp:  in.Timestamp,
	})
}

// SetStatus applies a delivery receipt to a message.
func (s *MessageService) SetStatus(ctx context.Context, messageID string, status model.MessageStatus) error {
	switch status {
	case model.MessageSent, model.MessageDelivered, model.MessageRead:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	return s.store.SetMessageStatus(messageID, status)
}
