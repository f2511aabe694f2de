package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

const (
	inboundConsumerName = "engine-inbound"
	inboundTimeout      = 5 * time.Second
)

// InboundSubject returns the subject platform connectors publish customer
// messages on.
func InboundSubject(platform model.Platform) string {
	return fmt.Sprintf("%s.inbound.%s", SubjectPrefix, platform)
}

// Receiver records one inbound customer message.
type Receiver interface {
	Receive(ctx context.Context, in model.InboundMessage) (model.Message, error)
}

// InboundConsumer feeds connector messages from JetStream into the store
// through a durable consumer.
type InboundConsumer struct {
	client   *Client
	receiver Receiver
	logger   *logger.Logger

	mu sync.Mutex
	cc jetstream.ConsumeContext
}

// NewInboundConsumer creates an inbound consumer.
func NewInboundConsumer(client *Client, receiver Receiver, log *logger.Logger) *InboundConsumer {
	return &InboundConsumer{
		client:   client,
		receiver: receiver,
		logger:   logger.OrGlobal(log).Named("inbound"),
	}
}

// Start creates or updates the durable consumer and begins consuming.
func (c *InboundConsumer) Start(ctx context.Context) error {
	cons, err := c.client.JetStream().CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       inboundConsumerName,
		FilterSubject: fmt.Sprintf("%s.inbound.>", SubjectPrefix),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create inbound consumer: %w", err)
	}

	cc, err := cons.Consume(c.handle)
	if err != nil {
		return fmt.Errorf("failed to consume inbound messages: %w", err)
	}

	c.mu.Lock()
	c.cc = cc
	c.mu.Unlock()
	c.logger.Info("consuming inbound messages", zap.String("consumer", inboundConsumerName))
	return nil
}

// Stop stops consuming. Unacknowledged messages are redelivered later.
func (c *InboundConsumer) Stop() {
	c.mu.Lock()
	cc := c.cc
	c.cc = nil
	c.mu.Unlock()
	if cc != nil {
		cc.Stop()
	}
}

func (c *InboundConsumer) handle(msg jetstream.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	if err := c.process(ctx, msg.Subject(), msg.Data()); err != nil {
		// Nothing in the store changes on retry, so failures are final.
		c.logger.Warn("inbound message rejected",
			zap.String("subject", msg.Subject()),
			zap.Error(err),
		)
		if termErr := msg.Term(); termErr != nil {
			c.logger.Debug("failed to terminate message", zap.Error(termErr))
		}
		return
	}
	if err := msg.Ack(); err != nil {
		c.logger.Debug("failed to ack message", zap.Error(err))
	}
}

// process decodes one inbound payload. A missing platform is taken from the
// subject's last token.
func (c *InboundConsumer) process(ctx context.Context, subject string, data []byte) error {
	var in model.InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode inbound message: %w", err)
	}
	if in.Platform == "" {
		if i := strings.LastIndexByte(subject, '.'); i >= 0 && i < len(subject)-1 {
			in.Platform = model.Platform(subject[i+1:])
		}
	}

	msg, err := c.receiver.Receive(ctx, in)
	if err != nil {
		return err
	}
	c.logger.Debug("inbound message recorded",
		zap.String("conversation_id", in.ConversationID),
		zap.String("message_id", msg.ID),
	)
	return nil
}
