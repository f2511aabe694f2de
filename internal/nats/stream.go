package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

const (
	// StreamName is the name of the engine stream.
	StreamName = "ENGINE"

	// SubjectPrefix is the prefix for all engine subjects.
	SubjectPrefix = "engine"
)

// jsPublisher is the part of jetstream.JetStream used for publishing.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
	js     jsPublisher
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client, js: client.JetStream()}
}

// EnsureStream ensures the engine stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  10 * time.Minute,
		Description: "Conversation engine events, inbound messages and outbound sends",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for a store event.
func EventSubject(eventType model.EventType) string {
	return fmt.Sprintf("%s.event.%s", SubjectPrefix, eventType)
}

// OutboundSubject returns the subject platform connectors consume sends from.
func OutboundSubject(platform model.Platform) string {
	return fmt.Sprintf("%s.outbound.%s", SubjectPrefix, platform)
}

// PublishEvent publishes a store event to JetStream.
func (m *StreamManager) PublishEvent(ctx context.Context, event model.Event) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.js.Publish(ctx, EventSubject(event.Type), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// PublishOutbound publishes an outbound send. The outbound ID is used as the
// JetStream message ID so a retried send is deduplicated by the server.
func (m *StreamManager) PublishOutbound(ctx context.Context, msg model.OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	if _, err := m.js.Publish(ctx, OutboundSubject(msg.Platform), data, jetstream.WithMsgID(msg.OutboundID)); err != nil {
		return fmt.Errorf("failed to publish outbound message: %w", err)
	}
	return nil
}
