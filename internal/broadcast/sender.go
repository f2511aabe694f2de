package broadcast

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// Sender delivers one planned step. seq is the step index within the job.
type Sender interface {
	Send(ctx context.Context, job model.BroadcastJob, seq int, step model.BroadcastStep) error
}

// ConversationStore is the part of the entity store a StoreSender writes to.
type ConversationStore interface {
	Get(conversationID string) (model.Conversation, error)
	AppendMessage(conversationID string, msg model.Message) (model.Message, error)
}

// Publisher hands outbound messages to platform connectors.
type Publisher interface {
	PublishOutbound(ctx context.Context, msg model.OutboundMessage) error
}

// StoreSender publishes each step for delivery and records it as an agent
// message on the recipient conversation. Recipients are conversation IDs.
type StoreSender struct {
	store     ConversationStore
	publisher Publisher
}

// NewStoreSender creates a StoreSender. A nil publisher only records
// messages in the store.
func NewStoreSender(store ConversationStore, publisher Publisher) *StoreSender {
	return &StoreSender{store: store, publisher: publisher}
}

// Send implements Sender. The outbound ID is derived from the job and step so
// a retried step can be deduplicated downstream.
func (s *StoreSender) Send(ctx context.Context, job model.BroadcastJob, seq int, step model.BroadcastStep) error {
	conv, err := s.store.Get(step.RecipientID)
	if err != nil {
		return fmt.Errorf("recipient %s: %w", step.RecipientID, err)
	}
	if step.Variant < 0 || step.Variant >= len(job.Variants) {
		return fmt.Errorf("%w: variant %d out of range", ErrInvalidJob, step.Variant)
	}
	msg := model.Message{
		ID:         uuid.Must(uuid.NewV7()).String(),
		SenderType: model.SenderAgent,
		Content:    job.Variants[step.Variant],
	}

	if s.publisher != nil {
		err := s.publisher.PublishOutbound(ctx, model.OutboundMessage{
			OutboundID:     fmt.Sprintf("%s:%d", job.ID, seq),
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			Platform:       conv.Platform,
			AccountID:      conv.AccountID,
			CustomerID:     conv.Customer.ID,
			Text:           msg.Content,
			Source:         model.SourceBroadcast,
			JobID:          job.ID,
			Seq:            seq,
		})
		if err != nil {
			return fmt.Errorf("publish outbound: %w", err)
		}
	}

	if _, err := s.store.AppendMessage(conv.ID, msg); err != nil {
		return fmt.Errorf("record broadcast message: %w", err)
	}
	return nil
}
