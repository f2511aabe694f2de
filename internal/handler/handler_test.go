package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/conversation-engine/internal/broadcast"
	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/internal/task"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

const testSecret = "test-secret"

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type fakeAssistant struct {
	err error
}

func (f *fakeAssistant) GenerateReply(context.Context, []model.Message, string) ([]model.Suggestion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Suggestion{{Content: "Sure!"}}, nil
}

func (f *fakeAssistant) GenerateSummary(context.Context, []model.Message) (string, error) {
	return "Customer asks for prices.", f.err
}

func (f *fakeAssistant) OptimizeMessage(_ context.Context, text, _ string) (string, error) {
	return strings.ToUpper(text), f.err
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, _, target, _ string) (string, error) {
	return "[" + target + "] " + text, nil
}

type nopSender struct{}

func (nopSender) Send(context.Context, model.BroadcastJob, int, model.BroadcastStep) error { return nil }

type connectivity bool

func (c connectivity) IsConnected() bool { return bool(c) }

type env struct {
	store  *store.Store
	router http.Handler
}

func newEnv(t *testing.T, assistant *fakeAssistant) *env {
	t.Helper()
	log := logger.NewNop()

	st := store.New(store.WithLogger(log))
	require.NoError(t, st.Load([]model.Conversation{
		{
			ID:       "wa-1",
			Platform: model.PlatformWhatsApp,
			Customer: model.Customer{ID: "cust-1", Country: "MX"},
			Messages: []model.Message{
				{ID: "m1", SenderType: model.SenderCustomer, Content: "hola", Language: "es", Timestamp: t0},
			},
		},
		{
			ID:       "tg-1",
			Platform: model.PlatformTelegram,
			Customer: model.Customer{ID: "cust-2", Country: "RU"},
			Messages: []model.Message{
				{ID: "m2", SenderType: model.SenderAgent, Content: "hello", Timestamp: t0},
			},
		},
	}, nil, model.Settings{ReceiveLanguage: "en", SendLanguage: "en"}))

	if assistant == nil {
		assistant = &fakeAssistant{}
	}
	coord, err := task.New(st, assistant, fakeTranslator{}, task.WithLogger(log))
	require.NoError(t, err)

	sched := broadcast.NewScheduler(nopSender{}, broadcast.WithLogger(log))
	t.Cleanup(sched.Stop)
	advisor, err := broadcast.NewAdvisor(nil)
	require.NoError(t, err)

	convSvc := service.NewConversationService(st, log)
	router := NewRouter(RouterConfig{
		JWTSecret:         testSecret,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		CORSOrigins:       []string{"*"},
	}, Handlers{
		Health:        NewHealthHandler(connectivity(false)),
		Conversations: NewConversationHandler(convSvc, log),
		Messages:      NewMessageHandler(service.NewMessageService(st, nil, log), log),
		Assistant:     NewAssistantHandler(service.NewAssistantService(st, coord, log), log),
		Broadcasts:    NewBroadcastHandler(service.NewBroadcastService(st, sched, advisor, log), log),
		Stream:        NewStreamHandler(st, log),
	}, log)

	return &env{store: st, router: router}
}

func token(t *testing.T, scopes ...string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "agent-1"},
		Scopes:           scopes,
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *env) do(t *testing.T, method, path, body string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+token(t, scopes...))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealthAndReady(t *testing.T) {
	e := newEnv(t, nil)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	e := newEnv(t, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListConversations(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/v1/conversations?platforms=telegram", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.ListConversationsResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "tg-1", resp.Conversations[0].ID)
	assert.Equal(t, 2, resp.Counts.Total)

	rec = e.do(t, http.MethodGet, "/api/v1/conversations?unread_only=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/conversations?unread_only=true&unreplied_only=true", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	e := newEnv(t, nil)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/conversations/ghost", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/conversations/bad%20id", "").Code)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/api/v1/conversations/wa-1/select", "").Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/api/v1/conversations/wa-1/read", "").Code)

	conv, err := e.store.Get("wa-1")
	require.NoError(t, err)
	assert.Zero(t, conv.UnreadCount)

	rec := e.do(t, http.MethodPut, "/api/v1/conversations/wa-1", `{"status":"nonsense"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/v1/conversations/wa-1/messages", `{"content":"¡Hola!"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp model.SendMessageResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Message)
	assert.Equal(t, model.SenderAgent, resp.Message.SenderType)

	rec = e.do(t, http.MethodPost, "/api/v1/conversations/wa-1/messages", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/conversations/wa-1/messages", `{"content":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceiveAndStatus(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/v1/inbound",
		`{"conversation_id":"line-9","platform":"line","customer":{"id":"c9"},"content":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, err := e.store.Get("line-9")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent,
		e.do(t, http.MethodPost, "/api/v1/messages/m2/status", `{"status":"delivered"}`).Code)
	assert.Equal(t, http.StatusNotFound,
		e.do(t, http.MethodPost, "/api/v1/messages/ghost/status", `{"status":"delivered"}`).Code)
}

func TestAssistantEndpoints(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/v1/conversations/wa-1/ai/optimize", `{"text":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	decodeBody(t, rec, &out)
	assert.Equal(t, "OK", out["text"])

	rec = e.do(t, http.MethodPost, "/api/v1/messages/m1/translate", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var tr model.Translation
	decodeBody(t, rec, &tr)
	assert.Equal(t, "[en] hola", tr.TranslatedText)

	rec = e.do(t, http.MethodGet, "/api/v1/conversations/wa-1/ai/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProviderFailureIsRetryable(t *testing.T) {
	e := newEnv(t, &fakeAssistant{err: errors.New("upstream 503")})

	rec := e.do(t, http.MethodPost, "/api/v1/conversations/wa-1/ai/reply", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, true, body["retryable"])
}

func TestBroadcastsRequireScope(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/v1/broadcasts", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/broadcasts",
		`{"name":"promo","variants":["Hi!"],"recipients":["wa-1","tg-1"]}`, BroadcastScope)
	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.BroadcastJob
	decodeBody(t, rec, &job)
	assert.Equal(t, model.JobDraft, job.Status)

	rec = e.do(t, http.MethodPost, "/api/v1/broadcasts/"+job.ID+"/pause", "", BroadcastScope)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/broadcasts/ghost", "", BroadcastScope)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/broadcasts", `{"variants":["Hi!"],"recipients":["ghost"]}`, BroadcastScope)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{task.ErrStaleResult, http.StatusAccepted},
		{&task.ProviderError{Kind: model.TaskReply, Err: errors.New("boom")}, http.StatusBadGateway},
		{fmt.Errorf("get: %w", store.ErrConversationNotFound), http.StatusNotFound},
		{store.ErrMessageNotFound, http.StatusNotFound},
		{broadcast.ErrJobNotFound, http.StatusNotFound},
		{store.ErrInvalidTransition, http.StatusConflict},
		{broadcast.ErrInvalidState, http.StatusConflict},
		{service.ErrInvalidRequest, http.StatusBadRequest},
		{broadcast.ErrInvalidJob, http.StatusBadRequest},
		{broadcast.ErrNoWindow, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, logger.NewNop(), tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestStreamDeliversStoreEvents(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?conversation_id=wa-1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); strings.HasPrefix(l, "event: ") {
				return strings.TrimPrefix(l, "event: ")
			}
		}
		return ""
	}
	require.Equal(t, "connected", next())

	// Events for other conversations are filtered out.
	require.NoError(t, e.store.MarkRead("tg-1"))
	require.NoError(t, e.store.MarkRead("wa-1"))
	assert.Equal(t, string(model.EventConversationRead), next())
}
