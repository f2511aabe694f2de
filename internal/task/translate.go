package task

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
)

// maxTranslateAttempts bounds how often a request re-flies after joining a
// flight made for another target language.
const maxTranslateAttempts = 3

// translated is the shared result of one translation flight.
type translated struct {
	text   string
	target string
}

// RequestTranslation translates one message. An empty targetLang follows
// the configured receive language; an empty sourceLang falls back to the
// message's own language. A cached entry is served only when it was made
// for the same target language; otherwise the message is translated again
// and the entry replaced.
//
// At most one provider call per message is in flight. A caller that joins
// a flight for another language waits for it and then flies its own. A
// result made for a receive language that changed meanwhile is stale and
// is never written back.
func (c *Coordinator) RequestTranslation(ctx context.Context, messageID, sourceLang, targetLang string, tok Token) (model.Translation, error) {
	msg, err := c.store.Message(messageID)
	if err != nil {
		return model.Translation{}, err
	}
	if sourceLang == "" {
		sourceLang = msg.Language
	}
	follow := targetLang == ""
	key := model.TaskKey{ConversationID: msg.ConversationID, Kind: model.TaskTranslate, MessageID: messageID}

	for attempt := 0; attempt < maxTranslateAttempts; attempt++ {
		settings := c.store.Settings()
		target := targetLang
		if follow {
			target = settings.ReceiveLanguage
		}
		if entry, ok := c.cached(messageID, target); ok {
			return entry, nil
		}

		text, engine := msg.Content, settings.TranslationEngine
		out, err := c.run(ctx, key, key.String(), tok, func(ctx context.Context) (any, error) {
			res, err := c.translator.Translate(ctx, text, sourceLang, target, engine)
			return translated{text: res, target: target}, err
		})
		if err != nil {
			return model.Translation{}, err
		}

		res, _ := out.value.(translated)
		if res.target != target {
			continue
		}
		if follow && c.store.Settings().ReceiveLanguage != target {
			return model.Translation{}, c.discard(key, nil)
		}

		tr := model.Translation{
			MessageID:      messageID,
			TranslatedText: res.text,
			TargetLanguage: target,
		}
		out.commit.Do(func() {
			c.cache.Add(messageID, tr)
			if err := c.store.AttachTranslation(messageID, res.text, target); err != nil {
				c.logger.Warn("attach translation failed",
					zap.String("message_id", messageID),
					zap.Error(err),
				)
			}
		})
		return tr, nil
	}
	return model.Translation{}, c.discard(key, nil)
}

// cached returns the cache entry for messageID when it was made for target.
func (c *Coordinator) cached(messageID, target string) (model.Translation, bool) {
	entry, ok := c.cache.Get(messageID)
	switch {
	case !ok:
		metrics.TranslationCacheTotal.WithLabelValues("miss").Inc()
		return model.Translation{}, false
	case entry.TargetLanguage != target:
		metrics.TranslationCacheTotal.WithLabelValues("stale").Inc()
		return model.Translation{}, false
	}
	metrics.TranslationCacheTotal.WithLabelValues("hit").Inc()
	entry.Cached = true
	return entry, true
}

// TranslateConversation translates every customer message of a conversation
// into the receive language. Messages already carrying a translation in that
// language are returned as cached without a provider call. Messages are
// translated concurrently; the first error is returned.
func (c *Coordinator) TranslateConversation(ctx context.Context, conversationID string, tok Token) ([]model.Translation, error) {
	conv, err := c.store.Get(conversationID)
	if err != nil {
		return nil, err
	}
	target := c.store.Settings().ReceiveLanguage

	var pending []model.Message
	var results []model.Translation
	for _, m := range conv.Messages {
		if m.SenderType != model.SenderCustomer {
			continue
		}
		if m.TranslatedContent != "" && m.TranslatedLanguage == target {
			results = append(results, model.Translation{
				MessageID:      m.ID,
				TranslatedText: m.TranslatedContent,
				TargetLanguage: target,
				Cached:         true,
			})
			continue
		}
		pending = append(pending, m)
	}

	fresh := make([]model.Translation, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range pending {
		i, m := i, m
		g.Go(func() error {
			tr, err := c.RequestTranslation(gctx, m.ID, m.Language, target, tok)
			if err != nil {
				return err
			}
			fresh[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append(results, fresh...), nil
}
