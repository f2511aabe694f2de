package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Translator translates message text between languages. engine names the
// backend the workspace prefers; implementations may ignore it.
type Translator interface {
	Translate(ctx context.Context, text, source, target, engine string) (string, error)
}

// ErrEmptyTranslation is returned when the provider answers with no text.
var ErrEmptyTranslation = errors.New("empty translation")

const translateSystemPrompt = `You are a translation engine for customer support chats.
Translate the user's text into the target language. Preserve names, numbers, emoji and line breaks.
Answer with the translated text only.`

// LLMTranslator implements Translator with a completion Client.
type LLMTranslator struct {
	client Client
}

// NewTranslator creates a Translator backed by client.
func NewTranslator(client Client) *LLMTranslator {
	return &LLMTranslator{client: client}
}

// Translate translates text from source (empty means detect) to target.
func (t *LLMTranslator) Translate(ctx context.Context, text, source, target, engine string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	from := source
	if from == "" {
		from = "auto-detect"
	}

	resp, err := t.client.Complete(ctx, &CompletionRequest{
		System: translateSystemPrompt,
		Messages: []ChatMessage{
			{Role: RoleUser, Content: fmt.Sprintf("Source language: %s\nTarget language: %s\n\n%s", from, target, text)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("translate via %s: %w", t.client.Name(), err)
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}
