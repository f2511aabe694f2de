package nats

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
)

const (
	defaultBuffer         = 1024
	defaultPublishTimeout = 5 * time.Second
)

// EventPublisher publishes one store event.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event model.Event) (uint64, error)
}

// Subscriber is the store's change feed.
type Subscriber interface {
	Subscribe(fn func(model.Event)) func()
}

// Forwarder relays store events to NATS from a single goroutine, so store
// commands never wait on the network. Events are dropped when the buffer is
// full.
type Forwarder struct {
	publisher EventPublisher
	logger    *logger.Logger
	timeout   time.Duration

	mu          sync.Mutex
	events      chan model.Event
	closed      bool
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewForwarder creates a forwarder with the given buffer size.
func NewForwarder(publisher EventPublisher, buffer int, log *logger.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Forwarder{
		publisher: publisher,
		logger:    logger.OrGlobal(log).Named("events"),
		timeout:   defaultPublishTimeout,
		events:    make(chan model.Event, buffer),
	}
}

// Start subscribes to the store and begins publishing.
func (f *Forwarder) Start(sub Subscriber) {
	f.wg.Add(1)
	go f.run()
	unsubscribe := sub.Subscribe(f.enqueue)

	f.mu.Lock()
	f.unsubscribe = unsubscribe
	f.mu.Unlock()
}

// Stop unsubscribes, publishes what is buffered and waits for the worker.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unsubscribe := f.unsubscribe
	close(f.events)
	f.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	f.wg.Wait()
}

func (f *Forwarder) enqueue(evt model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- evt:
	default:
		metrics.EventsPublishedTotal.WithLabelValues("dropped").Inc()
		f.logger.Warn("event buffer full, dropping event", zap.String("type", string(evt.Type)))
	}
}

func (f *Forwarder) run() {
	defer f.wg.Done()
	for evt := range f.events {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		_, err := f.publisher.PublishEvent(ctx, evt)
		cancel()
		if err != nil {
			metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
			f.logger.Warn("failed to publish event",
				zap.String("type", string(evt.Type)),
				zap.String("conversation_id", evt.ConversationID),
				zap.Error(err),
			)
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues("ok").Inc()
	}
}
