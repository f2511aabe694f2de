// Package task runs AI and translation work for the engine. Each task key
// has at most one provider call outstanding; callers asking for the same key
// share its result. A caller whose token is raised before resolution gets
// ErrStaleResult and nothing is written on its behalf.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/capitalize-ai/conversation-engine/internal/llm"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
	"github.com/capitalize-ai/conversation-engine/pkg/tracing"
)

const (
	defaultProviderTimeout = 60 * time.Second
	defaultCacheSize       = 4096
)

// Store is the part of the entity store the coordinator reads and writes.
type Store interface {
	Get(conversationID string) (model.Conversation, error)
	Message(messageID string) (model.Message, error)
	Settings() model.Settings
	AttachTranslation(messageID, text, language string) error
}

// Coordinator owns the in-flight task map and the translation cache.
type Coordinator struct {
	store      Store
	assistant  llm.Assistant
	translator llm.Translator

	group   singleflight.Group
	mu      sync.Mutex
	states  map[model.TaskKey]model.TaskState
	flights map[model.TaskKey]int
	waiters map[string]int

	cache     *lru.Cache[string, model.Translation]
	cacheSize int
	timeout   time.Duration
	tracer    trace.Tracer
	logger    *logger.Logger

	// Translation states are per message, so they are bounded like cache.
	translateStates *lru.Cache[model.TaskKey, model.TaskState]
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithCacheSize sets the translation cache capacity in entries.
func WithCacheSize(n int) Option {
	return func(c *Coordinator) { c.cacheSize = n }
}

// WithLogger sets the coordinator logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithTracer overrides the tracer used for provider spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

// New creates a Coordinator.
func New(store Store, assistant llm.Assistant, translator llm.Translator, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		store:      store,
		assistant:  assistant,
		translator: translator,
		states:     make(map[model.TaskKey]model.TaskState),
		flights:    make(map[model.TaskKey]int),
		waiters:    make(map[string]int),
		cacheSize:  defaultCacheSize,
		timeout:    defaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize <= 0 {
		c.cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, model.Translation](c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("translation cache: %w", err)
	}
	c.cache = cache
	c.translateStates, err = lru.New[model.TaskKey, model.TaskState](c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("translation states: %w", err)
	}
	if c.tracer == nil {
		c.tracer = tracing.Tracer()
	}
	c.logger = logger.OrGlobal(c.logger).Named("task")
	return c, nil
}

// outcome is the shared result of one provider call. commit runs the
// write-back at most once, on behalf of the first caller still interested.
type outcome struct {
	value  any
	commit sync.Once
}

// RequestReply returns reply suggestions for a conversation. It never
// mutates the conversation.
func (c *Coordinator) RequestReply(ctx context.Context, conversationID string, tok Token) ([]model.Suggestion, error) {
	conv, err := c.store.Get(conversationID)
	if err != nil {
		return nil, err
	}
	tone := c.store.Settings().ReplyTone
	key := model.TaskKey{ConversationID: conversationID, Kind: model.TaskReply}

	out, err := c.run(ctx, key, key.String(), tok, func(ctx context.Context) (any, error) {
		return c.assistant.GenerateReply(ctx, conv.Messages, tone)
	})
	if err != nil {
		return nil, err
	}
	suggestions, _ := out.value.([]model.Suggestion)
	return append([]model.Suggestion(nil), suggestions...), nil
}

// RequestSummary returns a summary of a conversation. Persisting the
// AIAnalysisGenerated flag is left to the caller.
func (c *Coordinator) RequestSummary(ctx context.Context, conversationID string, tok Token) (string, error) {
	conv, err := c.store.Get(conversationID)
	if err != nil {
		return "", err
	}
	key := model.TaskKey{ConversationID: conversationID, Kind: model.TaskSummary}

	out, err := c.run(ctx, key, key.String(), tok, func(ctx context.Context) (any, error) {
		return c.assistant.GenerateSummary(ctx, conv.Messages)
	})
	if err != nil {
		return "", err
	}
	summary, _ := out.value.(string)
	return summary, nil
}

// RequestOptimize rewrites an agent draft for a conversation. Identical
// drafts share one call; an empty tone uses the workspace reply tone.
func (c *Coordinator) RequestOptimize(ctx context.Context, conversationID, text, tone string, tok Token) (string, error) {
	if _, err := c.store.Get(conversationID); err != nil {
		return "", err
	}
	if tone == "" {
		tone = c.store.Settings().ReplyTone
	}
	key := model.TaskKey{ConversationID: conversationID, Kind: model.TaskOptimize}

	out, err := c.run(ctx, key, key.String()+"\x00"+tone+"\x00"+text, tok, func(ctx context.Context) (any, error) {
		return c.assistant.OptimizeMessage(ctx, text, tone)
	})
	if err != nil {
		return "", err
	}
	rewritten, _ := out.value.(string)
	return rewritten, nil
}

// run executes call single-flight under flightKey and applies the caller's
// relevance check to the shared result.
func (c *Coordinator) run(ctx context.Context, key model.TaskKey, flightKey string, tok Token, call func(context.Context) (any, error)) (*outcome, error) {
	tok = orNever(tok)
	if tok.Canceled() {
		return nil, c.discard(key, nil)
	}

	// Registering as a waiter and joining the flight happen together so
	// waiters never counts a caller that has not joined yet.
	c.mu.Lock()
	joined := c.waiters[flightKey] > 0
	c.waiters[flightKey]++
	if c.flights[key] == 0 {
		c.setState(key, model.TaskQueued)
	}
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.fly(ctx, key, call)
	})
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.waiters[flightKey]--; c.waiters[flightKey] <= 0 {
			delete(c.waiters, flightKey)
		}
		c.mu.Unlock()
	}()
	if joined {
		metrics.TaskDedupTotal.WithLabelValues(string(key.Kind)).Inc()
	}

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if tok.Canceled() {
		return nil, c.discard(key, res.Err)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Val.(*outcome), nil
}

// fly performs one provider call on a context detached from the caller's
// cancellation, and always releases the in-flight slot.
func (c *Coordinator) fly(ctx context.Context, key model.TaskKey, call func(context.Context) (any, error)) (*outcome, error) {
	c.mu.Lock()
	c.flights[key]++
	c.setState(key, model.TaskRunning)
	c.mu.Unlock()
	metrics.TasksInFlight.WithLabelValues(string(key.Kind)).Inc()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	callCtx, span := c.tracer.Start(callCtx, "provider."+string(key.Kind),
		trace.WithAttributes(
			attribute.String("task.key", key.String()),
			attribute.String("conversation.id", key.ConversationID),
		),
	)
	defer span.End()

	start := time.Now()
	value, err := call(callCtx)
	elapsed := time.Since(start)

	state, status := model.TaskResolved, "ok"
	if err != nil {
		state, status = model.TaskFailed, "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.RecordProviderCall(string(key.Kind), status, elapsed.Seconds())
	metrics.TasksInFlight.WithLabelValues(string(key.Kind)).Dec()

	c.mu.Lock()
	if c.flights[key]--; c.flights[key] <= 0 {
		delete(c.flights, key)
		c.setState(key, state)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("provider call failed",
			zap.String("key", key.String()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, &ProviderError{Kind: key.Kind, Key: key.String(), Err: err}
	}
	c.logger.Debug("provider call resolved",
		zap.String("key", key.String()),
		zap.Duration("elapsed", elapsed),
	)
	return &outcome{value: value}, nil
}

// discard records a dropped result and returns ErrStaleResult.
func (c *Coordinator) discard(key model.TaskKey, cause error) error {
	c.mu.Lock()
	if c.flights[key] == 0 {
		c.setState(key, model.TaskCanceled)
	}
	c.mu.Unlock()

	metrics.StaleResultsTotal.WithLabelValues(string(key.Kind)).Inc()
	fields := []zap.Field{zap.String("key", key.String())}
	var perr *ProviderError
	if errors.As(cause, &perr) {
		fields = append(fields, zap.Error(cause))
	}
	c.logger.Debug("stale task result discarded", fields...)
	return ErrStaleResult
}

// InFlight reports whether any task of kind is running.
func (c *Coordinator) InFlight(kind model.TaskKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.flights {
		if key.Kind == kind {
			return true
		}
	}
	return false
}

// InFlightFor reports whether the task identified by key is running.
func (c *Coordinator) InFlightFor(key model.TaskKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flights[key] > 0
}

// State returns the last known lifecycle state of key. Keys never
// requested report ok=false.
func (c *Coordinator) State(key model.TaskKey) (model.TaskState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key.Kind == model.TaskTranslate {
		return c.translateStates.Peek(key)
	}
	state, ok := c.states[key]
	return state, ok
}

// setState records the lifecycle state of key. Callers hold c.mu.
func (c *Coordinator) setState(key model.TaskKey, state model.TaskState) {
	if key.Kind == model.TaskTranslate {
		c.translateStates.Add(key, state)
		return
	}
	c.states[key] = state
}

// Busy returns, per task kind, whether a task for conversationID is running.
func (c *Coordinator) Busy(conversationID string) map[model.TaskKind]bool {
	busy := map[model.TaskKind]bool{
		model.TaskReply:     false,
		model.TaskSummary:   false,
		model.TaskOptimize:  false,
		model.TaskTranslate: false,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.flights {
		if key.ConversationID == conversationID {
			busy[key.Kind] = true
		}
	}
	return busy
}
