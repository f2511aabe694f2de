// Package autoreply sends an AI reply when a customer message sits unread
// for the debounce window while auto-reply is enabled.
package autoreply

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/task"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
)

// DefaultDelay is the debounce window used when none is configured.
const DefaultDelay = 30 * time.Second

// Store is the part of the entity store the scheduler needs.
type Store interface {
	Get(conversationID string) (model.Conversation, error)
	List() []model.Conversation
	Settings() model.Settings
	AppendMessage(conversationID string, msg model.Message) (model.Message, error)
	Subscribe(fn func(model.Event)) func()
}

// Replier produces reply suggestions; task.Coordinator satisfies it.
type Replier interface {
	RequestReply(ctx context.Context, conversationID string, tok task.Token) ([]model.Suggestion, error)
}

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// armed is one pending or firing auto-reply. Entries are compared by
// pointer so a fired callback can tell whether it was superseded.
type armed struct {
	messageID string
	timer     Timer
	token     *task.CancelToken
	firing    bool
}

// Scheduler owns the per-conversation timer registry.
type Scheduler struct {
	store     Store
	replier   Replier
	delay     time.Duration
	afterFunc AfterFunc
	logger    *logger.Logger

	mu          sync.Mutex
	armed       map[string]*armed
	stopped     bool
	unsubscribe func()
	wg          sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.delay = d }
}

// WithAfterFunc replaces the timer source.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = fn }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler. Call Start to begin watching the store.
func New(store Store, replier Replier, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		replier:   replier,
		delay:     DefaultDelay,
		afterFunc: realAfterFunc,
		armed:     make(map[string]*armed),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.delay <= 0 {
		s.delay = DefaultDelay
	}
	s.logger = logger.OrGlobal(s.logger).Named("autoreply")
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start subscribes to store changes and evaluates every conversation.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.unsubscribe != nil || s.stopped {
		s.mu.Unlock()
		return
	}
	s.unsubscribe = s.store.Subscribe(s.handle)
	s.mu.Unlock()

	s.EvaluateAll()
}

// Stop unsubscribes, cancels every timer and waits for replies in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.CancelAll()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) handle(evt model.Event) {
	switch evt.Type {
	case model.EventMessageAppended,
		model.EventConversationAdded,
		model.EventConversationRead,
		model.EventMessageStatus:
		s.Evaluate(evt.ConversationID)
	case model.EventSettingsUpdated:
		if evt.Settings != nil && !evt.Settings.AutoReplyEnabled {
			s.CancelAll()
			return
		}
		s.EvaluateAll()
	}
}

// EvaluateAll evaluates every conversation in the store.
func (s *Scheduler) EvaluateAll() {
	for _, c := range s.store.List() {
		s.evaluate(c, s.store.Settings())
	}
}

// Evaluate arms, keeps or cancels the timer for one conversation according
// to the current store state.
func (s *Scheduler) Evaluate(conversationID string) {
	conv, err := s.store.Get(conversationID)
	if err != nil {
		s.Cancel(conversationID)
		return
	}
	s.evaluate(conv, s.store.Settings())
}

func (s *Scheduler) evaluate(conv model.Conversation, settings model.Settings) {
	if !eligible(conv, settings) {
		s.Cancel(conv.ID)
		return
	}
	s.arm(conv.ID, conv.LastMessage.ID)
}

// eligible reports whether conv should have an auto-reply pending.
func eligible(conv model.Conversation, settings model.Settings) bool {
	if !settings.AutoReplyEnabled || conv.LastMessage == nil {
		return false
	}
	last := conv.LastMessage
	return last.SenderType == model.SenderCustomer && last.Status == model.MessageUnread
}

// arm sets a timer for messageID, replacing any timer armed for an older
// message. A timer already armed for the same message is kept.
func (s *Scheduler) arm(conversationID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if prev, ok := s.armed[conversationID]; ok {
		if prev.messageID == messageID {
			return
		}
		prev.timer.Stop()
		prev.token.Cancel()
		metrics.AutoReplyTotal.WithLabelValues("rearmed").Inc()
		s.logger.Debug("auto-reply re-armed",
			zap.String("conversation_id", conversationID),
			zap.String("replaced_message_id", prev.messageID),
			zap.String("message_id", messageID),
		)
	} else {
		metrics.AutoReplyTotal.WithLabelValues("armed").Inc()
	}

	a := &armed{messageID: messageID, token: task.NewCancelToken()}
	a.timer = s.afterFunc(s.delay, func() { s.fire(conversationID, a) })
	s.armed[conversationID] = a
}

// Cancel disarms the timer for a conversation. A reply already being
// generated is dropped when it resolves.
func (s *Scheduler) Cancel(conversationID string) {
	s.mu.Lock()
	a, ok := s.armed[conversationID]
	if ok {
		delete(s.armed, conversationID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	a.timer.Stop()
	a.token.Cancel()
	metrics.AutoReplyTotal.WithLabelValues("aborted").Inc()
	s.logger.Debug("auto-reply canceled",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", a.messageID),
	)
}

// CancelAll disarms every timer.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.armed))
	for id := range s.armed {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Cancel(id)
	}
}

// Armed reports whether a timer is pending for the conversation.
func (s *Scheduler) Armed(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.armed[conversationID]
	return ok && !a.firing
}

// fire runs when a timer elapses. The arming condition is checked again
// before any provider call.
func (s *Scheduler) fire(conversationID string, a *armed) {
	s.mu.Lock()
	if s.stopped || s.armed[conversationID] != a || a.firing {
		s.mu.Unlock()
		return
	}
	a.firing = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.armed[conversationID] == a {
			delete(s.armed, conversationID)
		}
		s.mu.Unlock()
	}()

	log := s.logger.With(
		zap.String("conversation_id", conversationID),
		zap.String("message_id", a.messageID),
	)

	conv, err := s.store.Get(conversationID)
	if err != nil || !eligible(conv, s.store.Settings()) || conv.LastMessage.ID != a.messageID {
		metrics.AutoReplyTotal.WithLabelValues("aborted").Inc()
		log.Debug("auto-reply condition no longer holds")
		return
	}

	suggestions, err := s.replier.RequestReply(s.ctx, conversationID, a.token)
	switch {
	case errors.Is(err, task.ErrStaleResult), err == nil && a.token.Canceled():
		metrics.AutoReplyTotal.WithLabelValues("stale").Inc()
		log.Debug("auto-reply dropped, conversation changed while generating")
		return
	case err != nil:
		metrics.AutoReplyTotal.WithLabelValues("failed").Inc()
		log.Warn("auto-reply generation failed", zap.Error(err))
		return
	case len(suggestions) == 0:
		metrics.AutoReplyTotal.WithLabelValues("empty").Inc()
		log.Debug("auto-reply produced no suggestions")
		return
	}

	// Leave the registry before appending so the resulting store event
	// does not count as an abort.
	s.mu.Lock()
	current := s.armed[conversationID] == a
	if current {
		delete(s.armed, conversationID)
	}
	s.mu.Unlock()
	if !current {
		metrics.AutoReplyTotal.WithLabelValues("stale").Inc()
		return
	}

	msg, err := s.store.AppendMessage(conversationID, model.Message{
		SenderType:    model.SenderAI,
		Content:       suggestions[0].Content,
		IsAIGenerated: true,
	})
	if err != nil {
		metrics.AutoReplyTotal.WithLabelValues("failed").Inc()
		log.Warn("auto-reply append failed", zap.Error(err))
		return
	}
	metrics.AutoReplyTotal.WithLabelValues("replied").Inc()
	log.Info("auto-reply sent", zap.String("reply_id", msg.ID))
}
