package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
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

type published struct {
	subject string
	data    []byte
	opts    int
}

type fakeJS struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeJS) Publish(_ context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data, opts: len(opts)})
	return &jetstream.PubAck{Stream: StreamName, Sequence: uint64(len(f.msgs))}, nil
}

func (f *fakeJS) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "engine.event.message.appended", EventSubject(model.EventMessageAppended))
	assert.Equal(t, "engine.outbound.telegram", OutboundSubject(model.PlatformTelegram))
}

func TestPublishOutbound(t *testing.T) {
	js := &fakeJS{}
	m := &StreamManager{js: js}

	err := m.PublishOutbound(context.Background(), model.OutboundMessage{
		OutboundID: "job-1:3",
		Platform:   model.PlatformWhatsApp,
		Text:       "Hi!",
		Source:     model.SourceBroadcast,
	})
	require.NoError(t, err)

	got := js.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "engine.outbound.whatsapp", got[0].subject)
	assert.Equal(t, 1, got[0].opts)

	var decoded model.OutboundMessage
	require.NoError(t, json.Unmarshal(got[0].data, &decoded))
	assert.Equal(t, "Hi!", decoded.Text)

	js.err = errors.New("no responders")
	assert.Error(t, m.PublishOutbound(context.Background(), model.OutboundMessage{Platform: model.PlatformLine}))
}

func TestPublishEvent(t *testing.T) {
	js := &fakeJS{}
	m := &StreamManager{js: js}

	seq, err := m.PublishEvent(context.Background(), model.Event{Type: model.EventSettingsUpdated})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, "engine.event.settings.updated", js.snapshot()[0].subject)
}

func TestForwarderRelaysStoreEvents(t *testing.T) {
	js := &fakeJS{}
	st := store.New(store.WithLogger(logger.NewNop()))
	require.NoError(t, st.Load([]model.Conversation{
		{ID: "c1", Platform: model.PlatformLine},
	}, nil, model.Settings{}))

	f := NewForwarder(&StreamManager{js: js}, 16, logger.NewNop())
	f.Start(st)

	_, err := st.AppendMessage("c1", model.Message{SenderType: model.SenderCustomer, Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, st.MarkRead("c1"))
	f.Stop()
	f.Stop()

	var subjects []string
	for _, p := range js.snapshot() {
		subjects = append(subjects, p.subject)
	}
	assert.Contains(t, subjects, "engine.event.message.appended")
	assert.Contains(t, subjects, "engine.event.conversation.read")

	// Events after Stop are ignored.
	n := len(js.snapshot())
	_, err = st.AppendMessage("c1", model.Message{SenderType: model.SenderCustomer, Content: "again"})
	require.NoError(t, err)
	assert.Len(t, js.snapshot(), n)
}

func TestForwarderSurvivesPublishErrors(t *testing.T) {
	js := &fakeJS{err: errors.New("timeout")}
	f := NewForwarder(&StreamManager{js: js}, 0, logger.NewNop())
	st := store.New(store.WithLogger(logger.NewNop()))
	f.Start(st)
	st.UpdateSettings(model.UpdateSettingsRequest{})
	f.Stop()
	assert.Empty(t, js.snapshot())
}

type fakeReceiver struct {
	got []model.InboundMessage
	err error
}

func (f *fakeReceiver) Receive(_ context.Context, in model.InboundMessage) (model.Message, error) {
	if f.err != nil {
		return model.Message{}, f.err
	}
	f.got = append(f.got, in)
	return model.Message{ID: "m-1", Content: in.Content}, nil
}

func TestInboundProcess(t *testing.T) {
	rcv := &fakeReceiver{}
	c := NewInboundConsumer(nil, rcv, logger.NewNop())
	ctx := context.Background()

	assert.Equal(t, "engine.inbound.wechat", InboundSubject(model.PlatformWeChat))

	require.NoError(t, c.process(ctx, InboundSubject(model.PlatformWeChat), []byte(`{"conversation_id":"wc-1","content":"ni hao"}`)))
	require.Len(t, rcv.got, 1)
	assert.Equal(t, model.PlatformWeChat, rcv.got[0].Platform)

	// An explicit platform wins over the subject.
	require.NoError(t, c.process(ctx, "engine.inbound.line", []byte(`{"conversation_id":"wa-1","platform":"whatsapp","content":"hi"}`)))
	assert.Equal(t, model.PlatformWhatsApp, rcv.got[1].Platform)

	assert.Error(t, c.process(ctx, "engine.inbound.line", []byte(`{not json`)))

	rcv.err = errors.New("invalid request")
	assert.Error(t, c.process(ctx, "engine.inbound.line", []byte(`{"conversation_id":"x"}`)))
}

func TestInboundStopWithoutStart(t *testing.T) {
	c := NewInboundConsumer(nil, &fakeReceiver{}, logger.NewNop())
	c.Stop()
}
