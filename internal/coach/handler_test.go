package coach

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos/los-coach/internal/config"
	"github.com/lifeos/los-coach/internal/domain"
	"github.com/lifeos/los-coach/internal/fixtures"
	"github.com/lifeos/los-coach/internal/identity"
	"github.com/lifeos/los-coach/internal/store"
)

const testUser = "anon_0123456789abcdef0123456789abcdef"

type handlerFixture struct {
	router  http.Handler
	repo    store.Repository
	events  *recordingLogger
	handler *Handler
	lastReq *GenerationRequest
}

func testConfig() *config.Config {
	return &config.Config{
		Coach:     config.CoachConfig{MaxMessageBytes: 64},
		RateLimit: config.RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute},
	}
}

func newHandlerFixture(t *testing.T, repo store.Repository, cfg *config.Config, g Generator) *handlerFixture {
	t.Helper()
	seed, err := fixtures.Load()
	require.NoError(t, err)
	if repo == nil {
		repo = store.NewMemory()
	}

	f := &handlerFixture{repo: repo, events: &recordingLogger{}}
	if g == nil {
		g = GeneratorFunc(func(_ context.Context, req GenerationRequest) (string, error) {
			f.lastReq = &req
			return "Coach says: " + req.Content, nil
		})
	}

	svc := NewService(g, Composer{}, WithLogger(slog.New(slog.DiscardHandler)))
	f.handler = NewHandler(svc, repo, f.events, cfg)
	t.Cleanup(f.handler.Close)

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, seed, true))
	f.handler.RegisterRoutes(r)
	f.router = r
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testUser})
	req.Header.Set(identity.SessionHeaderName, "tab-1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHandleChat_UsesStoredProfile(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, nil, testConfig(), nil)

	w := f.do(t, http.MethodPost, "/api/coach/chat", `{"message":"  What should I focus on today?  "}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Coach says: What should I focus on today?", resp.Reply)
	assert.NotEmpty(t, resp.ExchangeID)

	require.NotNil(t, f.lastReq)
	assert.Contains(t, f.lastReq.SystemInstruction, "Author (NotMonetized)")
	assert.Contains(t, f.lastReq.SystemInstruction, "Publish First Book (40% done)")

	history, err := f.repo.ListExchanges(context.Background(), testUser, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, resp.ExchangeID, history[0].ID)
	assert.Equal(t, "tab-1", history[0].SessionID)
	assert.Equal(t, domain.OutcomeReplied, history[0].Outcome)

	types := []string{}
	for _, e := range f.events.Events() {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{"chat_user_message", "chat_assistant_message"}, types)
}

func TestHandleChat_InlineContext(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, nil, testConfig(), nil)

	body := `{"message":"hi","context":{"skills":[{"name":"Painter","status":"Side Hustle"}],"goals":[],"active_law":null}}`
	w := f.do(t, http.MethodPost, "/api/coach/chat", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NotNil(t, f.lastReq)
	assert.Contains(t, f.lastReq.SystemInstruction, "Painter (SideHustle)")
	assert.NotContains(t, f.lastReq.SystemInstruction, "Author")
	assert.Contains(t, f.lastReq.SystemInstruction, "General Growth")
}

func TestHandleChat_FallbackIsStillOK(t *testing.T) {
	t.Parallel()
	failing := GeneratorFunc(func(context.Context, GenerationRequest) (string, error) {
		return "", errors.New("provider down")
	})
	f := newHandlerFixture(t, nil, testConfig(), failing)

	w := f.do(t, http.MethodPost, "/api/coach/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, FallbackErrorReply, resp.Reply)
	assert.NotContains(t, w.Body.String(), "provider down")

	history, err := f.repo.ListExchanges(context.Background(), testUser, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.OutcomeErrorFallback, history[0].Outcome)
}

func TestHandleChat_Rejections(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		body string
		want int
	}{
		"blank message":   {`{"message":"   "}`, http.StatusBadRequest},
		"missing message": {`{}`, http.StatusBadRequest},
		"invalid json":    {`{"message":`, http.StatusBadRequest},
		"message too big": {`{"message":"` + strings.Repeat("x", 65) + `"}`, http.StatusRequestEntityTooLarge},
		"body too big":    {`{"message":"hi","pad":"` + strings.Repeat("x", maxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
		"context progress out of range": {
			`{"message":"hi","context":{"skills":[{"name":"Author","status":"Hobby"}],"goals":[{"title":"Book","progress":250}]}}`,
			http.StatusBadRequest,
		},
		"context negative progress": {
			`{"message":"hi","context":{"goals":[{"title":"Book","progress":-5}]}}`,
			http.StatusBadRequest,
		},
		"context skill without status": {
			`{"message":"hi","context":{"skills":[{"name":"Author"}]}}`,
			http.StatusBadRequest,
		},
		"context unknown status": {
			`{"message":"hi","context":{"skills":[{"name":"Author","status":"Retired"}]}}`,
			http.StatusBadRequest,
		},
		"context goal without title": {
			`{"message":"hi","context":{"goals":[{"progress":10}]}}`,
			http.StatusBadRequest,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newHandlerFixture(t, nil, testConfig(), nil)
			w := f.do(t, http.MethodPost, "/api/coach/chat", tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Nil(t, f.lastReq, "provider must not be called")
		})
	}
}

func TestHandleChat_RateLimited(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RateLimit.RequestsPerWindow = 2
	f := newHandlerFixture(t, nil, cfg, nil)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/coach/chat", `{"message":"hi"}`).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/coach/chat", `{"message":"hi"}`).Code)
}

func TestHandleChat_RateLimitedWithoutCookie(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RateLimit.RequestsPerWindow = 1
	f := newHandlerFixture(t, nil, cfg, nil)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/coach/chat", strings.NewReader(`{"message":"hi"}`))
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	for _, code := range codes[1:] {
		assert.Equal(t, http.StatusTooManyRequests, code)
	}
}

type failingAppendRepo struct {
	*store.MemoryStore
}

func (failingAppendRepo) AppendExchange(context.Context, *domain.Exchange) error {
	return errors.New("disk full")
}

func TestHandleChat_TranscriptFailureStillReplies(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, failingAppendRepo{store.NewMemory()}, testConfig(), nil)

	w := f.do(t, http.MethodPost, "/api/coach/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Coach says: hi")
}

func TestHistory_ListAndClear(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, nil, testConfig(), nil)

	for _, msg := range []string{"one", "two", "three"} {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/coach/chat", `{"message":"`+msg+`"}`).Code)
	}

	w := f.do(t, http.MethodGet, "/api/coach/history?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Exchanges []domain.Exchange `json:"exchanges"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Exchanges, 2)
	assert.Equal(t, "two", list.Exchanges[0].Message)
	assert.Equal(t, "three", list.Exchanges[1].Message)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/coach/history?limit=zero", "").Code)

	w = f.do(t, http.MethodDelete, "/api/coach/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":3}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/coach/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"exchanges":[]}`, w.Body.String())
}
