package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type sent struct {
	seq       int
	recipient string
	variant   int
}

type recordingSender struct {
	mu     sync.Mutex
	sent   []sent
	failAt int
	failed bool
}

func (r *recordingSender) Send(_ context.Context, _ model.BroadcastJob, seq int, step model.BroadcastStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && seq == r.failAt && !r.failed {
		r.failed = true
		return errors.New("connector unavailable")
	}
	r.sent = append(r.sent, sent{seq: seq, recipient: step.RecipientID, variant: step.Variant})
	return nil
}

func (r *recordingSender) snapshot() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

// gatedWait records every delay. The blockAt-th call blocks until its
// context is canceled.
type gatedWait struct {
	mu      sync.Mutex
	delays  []time.Duration
	blockAt int
	blocked chan struct{}
}

func (w *gatedWait) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	block := len(w.delays) == w.blockAt
	w.mu.Unlock()

	if block {
		close(w.blocked)
		<-ctx.Done()
	}
	return ctx.Err()
}

func (w *gatedWait) recorded() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.delays...)
}

func newScheduler(t *testing.T, sender Sender, wait *gatedWait) *Scheduler {
	t.Helper()
	s := NewScheduler(sender,
		WithWait(wait.Wait),
		WithClock(func() time.Time { return now }),
		WithLogger(logger.NewNop()),
	)
	t.Cleanup(s.Stop)
	return s
}

func request(seed int64) model.CreateBroadcastRequest {
	return model.CreateBroadcastRequest{
		Name:            "May promo",
		Recipients:      []string{"r1", "r2", "r3", "r4"},
		Variants:        []string{"Hi!", "Our May catalog is out."},
		Mode:            model.SendAll,
		MsgInterval:     model.Interval{Min: 2, Max: 5},
		ContactInterval: model.Interval{Min: 10, Max: 20},
		Seed:            &seed,
	}
}

func TestScheduler_RunsToCompletion(t *testing.T) {
	sender := &recordingSender{}
	wait := &gatedWait{}
	s := newScheduler(t, sender, wait)

	job, err := s.Create(request(3))
	require.NoError(t, err)
	assert.Equal(t, model.JobDraft, job.Status)
	assert.Equal(t, int64(3), job.Seed)

	_, err = s.Start(context.Background(), job.ID)
	require.NoError(t, err)
	done, err := s.Wait(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, len(job.Steps), done.Sent)
	assert.Equal(t, len(job.Steps), done.Cursor)

	got := sender.snapshot()
	require.Len(t, got, len(job.Steps))
	for i, step := range job.Steps {
		assert.Equal(t, i, got[i].seq)
		assert.Equal(t, step.RecipientID, got[i].recipient)
	}

	var planned []time.Duration
	for _, step := range job.Steps {
		if step.Delay > 0 {
			planned = append(planned, step.Delay)
		}
	}
	assert.Equal(t, planned, wait.recorded())
}

func TestScheduler_ResumeDoesNotResend(t *testing.T) {
	sender := &recordingSender{}
	wait := &gatedWait{blockAt: 4, blocked: make(chan struct{})}
	s := newScheduler(t, sender, wait)

	job, err := s.Create(request(5))
	require.NoError(t, err)
	_, err = s.Start(context.Background(), job.ID)
	require.NoError(t, err)

	<-wait.blocked
	paused, err := s.Pause(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPaused, paused.Status)
	assert.Equal(t, 4, paused.Sent)
	assert.Equal(t, 4, paused.Cursor)

	_, err = s.Resume(context.Background(), job.ID)
	require.NoError(t, err)
	done, err := s.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)

	got := sender.snapshot()
	require.Len(t, got, len(job.Steps))
	seen := map[int]bool{}
	for _, snt := range got {
		require.False(t, seen[snt.seq], "step %d sent twice", snt.seq)
		seen[snt.seq] = true
	}
	assert.Equal(t, "r3", got[4].recipient)
}

func TestScheduler_SendFailurePausesAndRetries(t *testing.T) {
	sender := &recordingSender{failAt: 3}
	s := newScheduler(t, sender, &gatedWait{})

	job, err := s.Create(request(8))
	require.NoError(t, err)
	_, err = s.Start(context.Background(), job.ID)
	require.NoError(t, err)

	stalled, err := s.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPaused, stalled.Status)
	assert.Equal(t, 3, stalled.Cursor)
	assert.Contains(t, stalled.LastError, "connector unavailable")

	_, err = s.Resume(context.Background(), job.ID)
	require.NoError(t, err)
	done, err := s.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Empty(t, done.LastError)
	assert.Len(t, sender.snapshot(), len(job.Steps))
}

func TestScheduler_ScheduledStartWaits(t *testing.T) {
	wait := &gatedWait{}
	s := newScheduler(t, &recordingSender{}, wait)

	job, err := s.Create(request(1))
	require.NoError(t, err)
	scheduled, err := s.Schedule(job.ID, now.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, model.JobScheduled, scheduled.Status)
	assert.Equal(t, job.Steps, scheduled.Steps)

	started, err := s.Start(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobScheduled, started.Status)

	done, err := s.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, 90*time.Second, wait.recorded()[0])
}

func TestScheduler_StateErrors(t *testing.T) {
	s := newScheduler(t, &recordingSender{}, &gatedWait{})

	job, err := s.Create(request(2))
	require.NoError(t, err)

	_, err = s.Pause(job.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = s.Resume(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	canceled, err := s.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCanceled, canceled.Status)

	_, err = s.Start(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = s.Cancel(job.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = s.Create(model.CreateBroadcastRequest{Variants: []string{"x"}})
	assert.ErrorIs(t, err, ErrInvalidJob)
	assert.Len(t, s.List(), 1)
}

func TestScheduler_CancelRunning(t *testing.T) {
	sender := &recordingSender{}
	wait := &gatedWait{blockAt: 2, blocked: make(chan struct{})}
	s := newScheduler(t, sender, wait)

	job, err := s.Create(request(4))
	require.NoError(t, err)
	_, err = s.Start(context.Background(), job.ID)
	require.NoError(t, err)

	<-wait.blocked
	canceled, err := s.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCanceled, canceled.Status)
	assert.Len(t, sender.snapshot(), 2)

	_, err = s.Resume(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestScheduler_ApplySuggestion(t *testing.T) {
	s := newScheduler(t, &recordingSender{}, &gatedWait{})
	advisor, err := NewAdvisor(nil, WithAdvisorClock(func() time.Time { return now }))
	require.NoError(t, err)

	job, err := s.Create(request(6))
	require.NoError(t, err)
	suggestion, err := advisor.SuggestSendTime([]Signal{{RecipientID: "r1", PreferredHours: []int{14}}})
	require.NoError(t, err)

	applied, err := s.ApplySuggestion(job.ID, suggestion)
	require.NoError(t, err)
	require.NotNil(t, applied.ScheduledAt)
	assert.True(t, suggestion.At.Equal(*applied.ScheduledAt))
	assert.Equal(t, job.Steps, applied.Steps)
	assert.Equal(t, job.MsgInterval, applied.MsgInterval)
}

type fakePublisher struct {
	mu  sync.Mutex
	out []model.OutboundMessage
	err error
}

func (p *fakePublisher) PublishOutbound(_ context.Context, msg model.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.out = append(p.out, msg)
	return nil
}

func TestStoreSender(t *testing.T) {
	st := store.New(store.WithLogger(logger.NewNop()))
	require.NoError(t, st.Load([]model.Conversation{
		{ID: "r1", Platform: model.PlatformWhatsApp, Customer: model.Customer{ID: "cust-1"}},
	}, nil, model.Settings{}))
	pub := &fakePublisher{}
	sender := NewStoreSender(st, pub)

	job := model.BroadcastJob{ID: "job-1", Variants: []string{"Hi!", "Catalog"}}
	require.NoError(t, sender.Send(context.Background(), job, 0, model.BroadcastStep{RecipientID: "r1", Variant: 1}))

	conv, err := st.Get("r1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, model.SenderAgent, conv.Messages[0].SenderType)
	assert.Equal(t, "Catalog", conv.Messages[0].Content)

	require.Len(t, pub.out, 1)
	assert.Equal(t, model.PlatformWhatsApp, pub.out[0].Platform)
	assert.Equal(t, conv.Messages[0].ID, pub.out[0].MessageID)
	assert.Equal(t, model.SourceBroadcast, pub.out[0].Source)
	assert.Equal(t, "cust-1", pub.out[0].CustomerID)
	assert.Equal(t, "job-1:0", pub.out[0].OutboundID)

	pub.err = errors.New("nats down")
	err = sender.Send(context.Background(), job, 1, model.BroadcastStep{RecipientID: "r1", Variant: 0})
	require.Error(t, err)
	conv, _ = st.Get("r1")
	assert.Len(t, conv.Messages, 1)

	err = sender.Send(context.Background(), job, 2, model.BroadcastStep{RecipientID: "nobody"})
	assert.ErrorIs(t, err, store.ErrConversationNotFound)
}
