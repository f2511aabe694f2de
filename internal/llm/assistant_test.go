package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

type stubClient struct {
	content string
	err     error
	reqs    []*CompletionRequest
}

func (s *stubClient) Complete(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &CompletionResponse{Content: s.content}, nil
}

func (s *stubClient) Name() string { return "stub" }

func history() []model.Message {
	return []model.Message{
		{SenderType: model.SenderCustomer, Content: "How much for 500 units?"},
		{SenderType: model.SenderAgent, Content: "Let me check."},
		{SenderType: model.SenderCustomer, Content: "Any discount?"},
	}
}

func TestGenerateReply_ParsesSuggestions(t *testing.T) {
	client := &stubClient{content: "```json\n" + `{"suggestions":[
		{"content":"We can offer 5% off.","confidence":0.8},
		{"content":"  "},
		{"content":"Let me send a quote.","tone":"formal"}
	]}` + "\n```"}
	a := NewAssistant(client, logger.NewNop())

	got, err := a.GenerateReply(context.Background(), history(), "friendly")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "We can offer 5% off.", got[0].Content)
	assert.Equal(t, "friendly", got[0].Tone)
	assert.Equal(t, "formal", got[1].Tone)

	require.Len(t, client.reqs, 1)
	req := client.reqs[0]
	assert.True(t, req.JSON)
	assert.Equal(t, RoleUser, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Customer: Any discount?")
	assert.Contains(t, req.Messages[0].Content, "Agent: Let me check.")
}

func TestGenerateReply_BadJSON(t *testing.T) {
	a := NewAssistant(&stubClient{content: "sure, here you go"}, logger.NewNop())
	_, err := a.GenerateReply(context.Background(), history(), "")
	assert.Error(t, err)
}

func TestGenerateSummary_ProviderError(t *testing.T) {
	boom := errors.New("rate limited")
	a := NewAssistant(&stubClient{err: boom}, logger.NewNop())
	_, err := a.GenerateSummary(context.Background(), history())
	assert.ErrorIs(t, err, boom)
}

func TestOptimizeMessage(t *testing.T) {
	client := &stubClient{content: "  Thank you for your patience.  "}
	a := NewAssistant(client, logger.NewNop())

	got, err := a.OptimizeMessage(context.Background(), "thx for waiting", "")
	require.NoError(t, err)
	assert.Equal(t, "Thank you for your patience.", got)
	assert.Contains(t, client.reqs[0].Messages[0].Content, "Tone: professional")
}

func TestTranscriptKeepsTail(t *testing.T) {
	msgs := make([]model.Message, maxHistory+5)
	for i := range msgs {
		msgs[i] = model.Message{SenderType: model.SenderCustomer, Content: "m"}
	}
	msgs[0].Content = "oldest"
	out := transcript(msgs)
	require.Len(t, out, 1)
	assert.False(t, strings.Contains(out[0].Content, "oldest"))
	assert.Equal(t, maxHistory, strings.Count(out[0].Content, "Customer: "))
}

func TestTranslate(t *testing.T) {
	client := &stubClient{content: "Hola"}
	tr := NewTranslator(client)

	got, err := tr.Translate(context.Background(), "Hello", "", "es", "google")
	require.NoError(t, err)
	assert.Equal(t, "Hola", got)
	assert.Contains(t, client.reqs[0].Messages[0].Content, "Source language: auto-detect")

	got, err = tr.Translate(context.Background(), "   ", "en", "es", "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, client.reqs, 1)

	_, err = NewTranslator(&stubClient{content: " "}).Translate(context.Background(), "Hi", "en", "es", "")
	assert.ErrorIs(t, err, ErrEmptyTranslation)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("cohere", "key", "")
	assert.Error(t, err)

	_, err = NewClient(ProviderOpenAI, "", "")
	assert.Error(t, err)
}

func TestDisabledClient(t *testing.T) {
	_, err := NewAssistant(Disabled(), logger.NewNop()).GenerateSummary(context.Background(), history())
	assert.ErrorIs(t, err, ErrNoProvider)
}
