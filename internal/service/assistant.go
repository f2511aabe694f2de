package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/internal/task"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// AssistantService fronts the task coordinator for request handlers.
type AssistantService struct {
	store       *store.Store
	coordinator *task.Coordinator
	logger      *logger.Logger
}

// NewAssistantService creates a new assistant service.
func NewAssistantService(st *store.Store, coordinator *task.Coordinator, log *logger.Logger) *AssistantService {
	return &AssistantService{
		store:       st,
		coordinator: coordinator,
		logger:      logger.OrGlobal(log).Named("assistant"),
	}
}

// token binds a request to the selection when the agent is viewing the
// conversation, so switching away discards the result.
func (s *AssistantService) token(conversationID string) task.Token {
	if s.store.Selected() == conversationID {
		return s.store.Guard(conversationID)
	}
	return task.Never
}

// Reply requests reply suggestions for a conversation.
func (s *AssistantService) Reply(ctx context.Context, conversationID string) ([]model.Suggestion, error) {
	return s.coordinator.RequestReply(ctx, conversationID, s.token(conversationID))
}

// Summary requests a conversation summary and flags the conversation as
// analyzed once it resolves.
func (s *AssistantService) Summary(ctx context.Context, conversationID string) (string, error) {
	summary, err := s.coordinator.RequestSummary(ctx, conversationID, s.token(conversationID))
	if err != nil {
		return "", err
	}
	if err := s.store.SetAIAnalysisGenerated(conversationID, true); err != nil {
		return "", fmt.Errorf("failed to flag analysis: %w", err)
	}
	s.logger.Debug("summary generated", zap.String("conversation_id", conversationID))
	return summary, nil
}

// Optimize rewrites a draft in the given tone. Empty tone uses the
// configured reply tone.
func (s *AssistantService) Optimize(ctx context.Context, conversationID, text, tone string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: text cannot be empty", ErrInvalidRequest)
	}
	return s.coordinator.RequestOptimize(ctx, conversationID, text, tone, s.token(conversationID))
}

// TranslateMessage translates one message. Empty target uses the receive
// language.
func (s *AssistantService) TranslateMessage(ctx context.Context, messageID, source, target string) (model.Translation, error) {
	msg, err := s.store.Message(messageID)
	if err != nil {
		return model.Translation{}, err
	}
	return s.coordinator.RequestTranslation(ctx, messageID, source, target, s.token(msg.ConversationID))
}

// TranslateConversation translates every customer message of a
// conversation into the receive language.
func (s *AssistantService) TranslateConversation(ctx context.Context, conversationID string) ([]model.Translation, error) {
	return s.coordinator.TranslateConversation(ctx, conversationID, s.token(conversationID))
}

// Busy reports which task kinds are in flight for a conversation.
func (s *AssistantService) Busy(conversationID string) map[model.TaskKind]bool {
	return s.coordinator.Busy(conversationID)
}
