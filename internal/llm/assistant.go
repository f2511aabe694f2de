package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// Assistant produces reply suggestions, summaries and rewrites for agents.
type Assistant interface {
	GenerateReply(ctx context.Context, history []model.Message, tone string) ([]model.Suggestion, error)
	GenerateSummary(ctx context.Context, history []model.Message) (string, error)
	OptimizeMessage(ctx context.Context, text, tone string) (string, error)
}

// maxHistory bounds how many trailing messages are sent as context.
const maxHistory = 30

const replySystemPrompt = `You are a sales assistant helping an agent answer a customer chat.
Propose up to 3 short replies the agent could send next, in the tone requested.
Return the response as a JSON object with this structure:
{
    "suggestions": [
        {"content": "reply text", "tone": "tone used", "confidence": 0.0}
    ]
}`

const summarySystemPrompt = `Summarize the customer conversation for a sales agent in at most five sentences.
Cover what the customer wants, quantities or budget mentioned, and any open questions.
Answer with the summary text only.`

const optimizeSystemPrompt = `Rewrite the agent's draft message so it is clear, polite and persuasive, in the tone requested.
Keep the original language and meaning. Answer with the rewritten message only.`

// LLMAssistant implements Assistant on top of a completion Client.
type LLMAssistant struct {
	client Client
	logger *logger.Logger
}

// NewAssistant creates an Assistant backed by client.
func NewAssistant(client Client, l *logger.Logger) *LLMAssistant {
	return &LLMAssistant{client: client, logger: logger.OrGlobal(l).Named("assistant")}
}

type replyEnvelope struct {
	Suggestions []model.Suggestion `json:"suggestions"`
}

// GenerateReply asks for reply suggestions to the conversation history.
func (a *LLMAssistant) GenerateReply(ctx context.Context, history []model.Message, tone string) ([]model.Suggestion, error) {
	if tone == "" {
		tone = "friendly"
	}
	resp, err := a.client.Complete(ctx, &CompletionRequest{
		System:      replySystemPrompt,
		Messages:    append(transcript(history), ChatMessage{Role: RoleUser, Content: "Tone: " + tone}),
		Temperature: 0.7,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	var env replyEnvelope
	raw := stripFence(resp.Content)
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		a.logger.Warn("unparseable reply suggestions",
			zap.Error(err),
			zap.String("provider", a.client.Name()),
			zap.String("response", raw),
		)
		return nil, fmt.Errorf("parse reply suggestions: %w", err)
	}

	out := env.Suggestions[:0]
	for _, s := range env.Suggestions {
		s.Content = strings.TrimSpace(s.Content)
		if s.Content == "" {
			continue
		}
		if s.Tone == "" {
			s.Tone = tone
		}
		out = append(out, s)
	}
	return out, nil
}

// GenerateSummary summarizes the conversation history.
func (a *LLMAssistant) GenerateSummary(ctx context.Context, history []model.Message) (string, error) {
	resp, err := a.client.Complete(ctx, &CompletionRequest{
		System:   summarySystemPrompt,
		Messages: append(transcript(history), ChatMessage{Role: RoleUser, Content: "Summarize this conversation."}),
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// OptimizeMessage rewrites an agent draft.
func (a *LLMAssistant) OptimizeMessage(ctx context.Context, text, tone string) (string, error) {
	if tone == "" {
		tone = "professional"
	}
	resp, err := a.client.Complete(ctx, &CompletionRequest{
		System: optimizeSystemPrompt,
		Messages: []ChatMessage{
			{Role: RoleUser, Content: fmt.Sprintf("Tone: %s\n\nDraft:\n%s", tone, text)},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("optimize message: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// transcript renders the trailing history as a single user turn. Providers
// reject consecutive same-role turns, which customer chats produce all the
// time.
func transcript(history []model.Message) []ChatMessage {
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range history {
		who := "Customer"
		if m.SenderType != model.SenderCustomer {
			who = "Agent"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Content)
	}
	return []ChatMessage{{Role: RoleUser, Content: b.String()}}
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
