package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capitalize-ai/conversation-engine/internal/broadcast"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/internal/task"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(store.WithLogger(logger.NewNop()))
	require.NoError(t, st.Load([]model.Conversation{
		{
			ID:       "wa-1",
			Platform: model.PlatformWhatsApp,
			Customer: model.Customer{ID: "cust-1", Country: "MX", PreferredContactTimes: []int{14}},
			Messages: []model.Message{
				{ID: "m1", SenderType: model.SenderCustomer, Content: "hola", Language: "es", Timestamp: t0},
			},
		},
		{
			ID:       "tg-1",
			Platform: model.PlatformTelegram,
			Customer: model.Customer{ID: "cust-2", Country: "RU", PreferredContactTimes: []int{13}},
			Messages: []model.Message{
				{ID: "m2", SenderType: model.SenderCustomer, Content: "привет", Status: model.MessageRead, Timestamp: t0.Add(-time.Hour)},
				{ID: "m3", SenderType: model.SenderAgent, Content: "hello", Timestamp: t0.Add(-30 * time.Minute)},
			},
		},
	}, nil, model.Settings{ReceiveLanguage: "en", SendLanguage: "en", ReplyTone: "friendly"}))
	return st
}

func TestSetFilterTogglesAreExclusive(t *testing.T) {
	svc := NewConversationService(newStore(t), logger.NewNop())

	got := svc.SetFilter(model.FilterCriteria{UnreadOnly: true})
	assert.True(t, got.UnreadOnly)

	// Turning on unreplied while unread is on clears unread.
	got = svc.SetFilter(model.FilterCriteria{UnreadOnly: true, UnrepliedOnly: true})
	assert.False(t, got.UnreadOnly)
	assert.True(t, got.UnrepliedOnly)

	got = svc.SetFilter(model.FilterCriteria{UnreadOnly: true, UnrepliedOnly: true})
	assert.True(t, got.UnreadOnly)
	assert.False(t, got.UnrepliedOnly)
	assert.Equal(t, got, svc.Filter())
}

func TestListUsesActiveFilterAndRejectsBothToggles(t *testing.T) {
	svc := NewConversationService(newStore(t), logger.NewNop())

	svc.SetFilter(model.FilterCriteria{Platforms: []model.Platform{model.PlatformTelegram}})
	resp, err := svc.List(context.Background(), nil, "")
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "tg-1", resp.Conversations[0].ID)
	assert.Equal(t, 2, resp.Counts.Total)

	_, err = svc.List(context.Background(), &model.FilterCriteria{UnreadOnly: true, UnrepliedOnly: true}, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// Unknown platforms are dropped, leaving the dimension unconstrained.
	resp, err = svc.List(context.Background(), &model.FilterCriteria{Platforms: []model.Platform{"fax"}}, "")
	require.NoError(t, err)
	assert.Len(t, resp.Conversations, 2)
}

func TestUpdateValidates(t *testing.T) {
	svc := NewConversationService(newStore(t), logger.NewNop())

	agent := "agent-1"
	conv, err := svc.Update(context.Background(), "wa-1", &model.UpdateConversationRequest{
		Status:     model.StatusPending,
		Priority:   model.PriorityHigh,
		Tags:       []string{"lead"},
		AssignedTo: &agent,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, conv.Status)
	assert.Equal(t, "agent-1", conv.AssignedTo)

	_, err = svc.Update(context.Background(), "wa-1", &model.UpdateConversationRequest{Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Update(context.Background(), "nope", &model.UpdateConversationRequest{})
	assert.ErrorIs(t, err, store.ErrConversationNotFound)

	empty := ""
	_, err = svc.UpdateSettings(context.Background(), model.UpdateSettingsRequest{ReceiveLanguage: &empty})
	assert.ErrorIs(t, err, ErrInvalidRequest)
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

func TestSendPublishesThenRecords(t *testing.T) {
	st := newStore(t)
	pub := &fakePublisher{}
	svc := NewMessageService(st, pub, logger.NewNop())

	msg, err := svc.Send(context.Background(), "wa-1", &model.SendMessageRequest{Content: "¡Claro!", IsAIGenerated: true})
	require.NoError(t, err)
	assert.True(t, msg.IsAIGenerated)
	require.Len(t, pub.out, 1)
	assert.Equal(t, model.SourceAI, pub.out[0].Source)
	assert.Equal(t, msg.ID, pub.out[0].MessageID)
	assert.Equal(t, model.PlatformWhatsApp, pub.out[0].Platform)

	pub.err = errors.New("nats down")
	_, err = svc.Send(context.Background(), "wa-1", &model.SendMessageRequest{Content: "again"})
	require.Error(t, err)
	conv, _ := st.Get("wa-1")
	assert.Len(t, conv.Messages, 2)

	_, err = svc.Send(context.Background(), "nope", &model.SendMessageRequest{Content: "x"})
	assert.ErrorIs(t, err, store.ErrConversationNotFound)
}

func TestReceiveOpensConversation(t *testing.T) {
	st := newStore(t)
	svc := NewMessageService(st, nil, logger.NewNop())

	msg, err := svc.Receive(context.Background(), model.InboundMessage{
		ConversationID: "line-1",
		Platform:       model.PlatformLine,
		Customer:       model.Customer{ID: "cust-3"},
		Content:        "hi there",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageUnread, msg.Status)

	conv, err := st.Get("line-1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount)

	_, err = svc.Receive(context.Background(), model.InboundMessage{ConversationID: "line-1", Content: "again"})
	require.NoError(t, err)
	conv, _ = st.Get("line-1")
	assert.Equal(t, 2, conv.UnreadCount)

	_, err = svc.Receive(context.Background(), model.InboundMessage{ConversationID: "x", Content: "no platform"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	require.NoError(t, svc.SetStatus(context.Background(), "m3", model.MessageDelivered))
	assert.ErrorIs(t, svc.SetStatus(context.Background(), "m3", "lost"), ErrInvalidRequest)
}

type fakeAssistant struct {
	summaries int
}

func (f *fakeAssistant) GenerateReply(context.Context, []model.Message, string) ([]model.Suggestion, error) {
	return []model.Suggestion{{Content: "Sure!"}}, nil
}

func (f *fakeAssistant) GenerateSummary(context.Context, []model.Message) (string, error) {
	f.summaries++
	return "Customer asks for the catalog.", nil
}

func (f *fakeAssistant) OptimizeMessage(_ context.Context, text, tone string) (string, error) {
	return tone + ": " + text, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, _, target, _ string) (string, error) {
	return "[" + target + "] " + text, nil
}

func TestAssistantSummaryFlagsAnalysis(t *testing.T) {
	st := newStore(t)
	coord, err := task.New(st, &fakeAssistant{}, fakeTranslator{}, task.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	svc := NewAssistantService(st, coord, logger.NewNop())

	summary, err := svc.Summary(context.Background(), "wa-1")
	require.NoError(t, err)
	assert.NotEmpty(t, summary)
	conv, _ := st.Get("wa-1")
	assert.True(t, conv.AIAnalysisGenerated)

	out, err := svc.Optimize(context.Background(), "wa-1", "ok", "")
	require.NoError(t, err)
	assert.Equal(t, "friendly: ok", out)
	_, err = svc.Optimize(context.Background(), "wa-1", "", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	tr, err := svc.TranslateMessage(context.Background(), "m1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "[en] hola", tr.TranslatedText)

	suggestions, err := svc.Reply(context.Background(), "tg-1")
	require.NoError(t, err)
	assert.Len(t, suggestions, 1)
	assert.Empty(t, svc.Busy("tg-1")[model.TaskReply])
}

type nopSender struct{}

func (nopSender) Send(context.Context, model.BroadcastJob, int, model.BroadcastStep) error { return nil }

func TestBroadcastFromFilterAndSuggestTime(t *testing.T) {
	st := newStore(t)
	now := func() time.Time { return t0 }
	sched := broadcast.NewScheduler(nopSender{}, broadcast.WithClock(now), broadcast.WithLogger(logger.NewNop()))
	defer sched.Stop()
	advisor, err := broadcast.NewAdvisor(nil, broadcast.WithAdvisorClock(now))
	require.NoError(t, err)
	svc := NewBroadcastService(st, sched, advisor, logger.NewNop())

	job, err := svc.Create(context.Background(), model.CreateBroadcastRequest{
		Variants: []string{"Hi!"},
		Filter:   &model.FilterCriteria{Countries: []string{"MX", "RU"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"wa-1", "tg-1"}, job.Recipients)

	_, err = svc.Create(context.Background(), model.CreateBroadcastRequest{
		Variants:   []string{"Hi!"},
		Recipients: []string{"ghost"},
	})
	assert.ErrorIs(t, err, broadcast.ErrInvalidJob)

	preview, err := svc.SuggestTime(context.Background(), job.ID, false)
	require.NoError(t, err)
	assert.Nil(t, preview.Job)
	// 14:00 matches one customer exactly and the other by an hour.
	assert.Equal(t, "14:00", preview.Suggestion.Time)
	assert.InDelta(t, 0.75, preview.Suggestion.Score, 1e-9)

	applied, err := svc.SuggestTime(context.Background(), job.ID, true)
	require.NoError(t, err)
	require.NotNil(t, applied.Job)
	assert.Equal(t, model.JobScheduled, applied.Job.Status)
	assert.Equal(t, job.Steps, applied.Job.Steps)
}
