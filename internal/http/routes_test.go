package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/yuedu-lab/yuedu/internal/adapters/jobrunner"
	"github.com/yuedu-lab/yuedu/internal/core"
	"github.com/yuedu-lab/yuedu/internal/data"
	"github.com/yuedu-lab/yuedu/internal/domain/prompt"
	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
	"github.com/yuedu-lab/yuedu/internal/mocks"
	"github.com/yuedu-lab/yuedu/internal/ports"
	"github.com/yuedu-lab/yuedu/internal/service"
)

const okTranslation = `{"translated_text": "Hello", "explanations": []}`

type testEnv struct {
	handler http.Handler
	jobs    *service.JobService
	lang    *service.LanguageService
	catalog *mocks.MockBookCatalog
}

type envOptions struct {
	queueDepth int
	connected  bool
	reply      string
	batchLimit int
	maxBody    int64
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)

	client := mocks.NewMockModelClient(ctrl)
	client.EXPECT().ModelName().Return("qwen3:latest").AnyTimes()
	client.EXPECT().CheckConnection(gomock.Any()).Return(opts.connected).AnyTimes()
	client.EXPECT().ListModels(gomock.Any()).Return([]string{"qwen3:latest"}, nil).AnyTimes()
	client.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, ports.GenerateOptions) (string, bool) {
			return opts.reply, opts.reply != ""
		}).AnyTimes()

	catalog, err := prompt.Default()
	require.NoError(t, err)
	lang, err := service.NewLanguageService(service.LanguageServiceOptions{Model: client, Prompts: catalog})
	require.NoError(t, err)

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Store:      data.NewMemoryJobStore(),
		QueueDepth: opts.queueDepth,
	})

	bookCatalog := mocks.NewMockBookCatalog(ctrl)
	books, err := service.NewBookService(service.BookServiceOptions{
		Catalog:    bookCatalog,
		Cache:      core.NewJSONCache(core.JSONCacheOptions{Namespace: "books"}),
		Translator: lang,
	})
	require.NoError(t, err)

	h := NewRouter(RouterServices{
		Jobs:     jobs,
		Language: lang,
		Books:    books,
		Model:    client,
		Cache:    data.NewMemoryCacheRepo(time.Minute),

		BatchLimit:   opts.batchLimit,
		MaxBodyBytes: opts.maxBody,
	})
	return &testEnv{handler: h, jobs: jobs, lang: lang, catalog: bookCatalog}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_RootAndLiveness(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true})

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]any](t, rec)
	assert.Equal(t, Version, root["version"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestEnv(t, envOptions{connected: true})
		rec := env.do(t, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		h := decode[HealthResponse](t, rec)
		assert.Equal(t, "healthy", h.Status)
		assert.True(t, h.OllamaConnected)
		assert.True(t, h.CacheOK)
		assert.Equal(t, []string{"qwen3:latest"}, h.ModelsAvailable)
		require.NotNil(t, h.Queue)
		assert.Equal(t, 1000, h.Queue.QueueCapacity)
	})

	t.Run("degraded", func(t *testing.T) {
		env := newTestEnv(t, envOptions{connected: false})
		rec := env.do(t, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		h := decode[HealthResponse](t, rec)
		assert.Equal(t, "degraded", h.Status)
		assert.False(t, h.OllamaConnected)
	})
}

func TestRouter_Schemas(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true})
	rec := env.do(t, http.MethodGet, "/schemas", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]map[string]string](t, rec)
	assert.Contains(t, body["available_schemas"], "translate")
	assert.Contains(t, body["available_schemas"], "detailed")
}

func TestRouter_AsyncSubmitAndStatus(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true})

	rec := env.do(t, http.MethodPost, "/translate/async", `{"text": "你好"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	sub := decode[SubmitResponse](t, rec)
	require.NotEmpty(t, sub.JobID)
	assert.Equal(t, "queued", string(sub.Status))
	assert.Contains(t, sub.Message, "/translate/status/"+sub.JobID)

	rec = env.do(t, http.MethodGet, "/translate/status/"+sub.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.Equal(t, sub.JobID, status["job_id"])
	assert.Equal(t, "queued", status["state"])
	assert.Equal(t, "translation", status["kind"])
	assert.NotContains(t, status, "result")
	assert.NotContains(t, status, "error")

	rec = env.do(t, http.MethodGet, "/jobs/"+sub.JobID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/questions/status/"+sub.JobID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "a translation job is not a questions job")

	rec = env.do(t, http.MethodGet, "/jobs/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[map[string]string](t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/questions/async", `{"text": "你好", "question_count": 3}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, decode[SubmitResponse](t, rec).Message, "/questions/status/")

	rec = env.do(t, http.MethodPost, "/linguistic/async", `{"full_text": "我喜欢看书", "selected_text": "看书"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodGet, "/jobs/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[service.QueueStats](t, rec).QueueDepth)
}

func TestRouter_AsyncValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true})

	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{"empty text", "/translate/async", `{"text": "  "}`, "validation"},
		{"unknown field", "/translate/async", `{"text": "你好", "extra": 1}`, "invalid_json"},
		{"malformed", "/questions/async", `{"text":`, "invalid_json"},
		{"trailing data", "/questions/async", `{"text": "a"} {"text": "b"}`, "invalid_json"},
		{"missing selection", "/linguistic/async", `{"full_text": "我喜欢看书"}`, "validation"},
		{"empty batch", "/batch/translate/async", `[]`, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[map[string]string](t, rec)["error"])
		})
	}

	stats, err := env.jobs.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Jobs.Total(), "rejected submissions create no records")
}

func TestRouter_QueueFull(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true, queueDepth: 1})

	rec := env.do(t, http.MethodPost, "/translate/async", `{"text": "一"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodPost, "/translate/async", `{"text": "二"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "queue_full", decode[map[string]string](t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/batch/translate/async", `[{"text": "三"}]`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "queue_full", body["error"])
	assert.Empty(t, body["job_ids"])
}

func TestRouter_BatchAsync(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true})

	rec := env.do(t, http.MethodPost, "/batch/translate/async?schema_name=detailed",
		`[{"text": "第一个句子"}, {"text": "第二个句子", "schema_name": "translate"}]`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[BatchSubmitResponse](t, rec)
	assert.Equal(t, 2, resp.TotalSubmitted)
	require.Len(t, resp.JobIDs, 2)
	assert.NotEqual(t, resp.JobIDs[0], resp.JobIDs[1])

	for _, id := range resp.JobIDs {
		rec = env.do(t, http.MethodGet, "/translate/status/"+id, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRouter_Limits(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true, batchLimit: 2, maxBody: 64})

	rec := env.do(t, http.MethodPost, "/batch/translate/async", `[{"text": "一"}, {"text": "二"}, {"text": "三"}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode[map[string]string](t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/batch/translate", `["一", "二", "三"]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/translate/async", `{"text": "`+strings.Repeat("长", 40)+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decode[map[string]string](t, rec)["error"])

	stats, err := env.jobs.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Jobs.Total())
}

func TestRouter_AsyncEndToEnd(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true, reply: okTranslation})
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Jobs:        env.jobs,
		Executor:    env.lang,
		IdleTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-runner.Done()
	})
	require.True(t, runner.Start(ctx))

	rec := env.do(t, http.MethodPost, "/translate/async", `{"text": "你好", "schema_name": "detailed"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[SubmitResponse](t, rec).JobID

	var status map[string]any
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/translate/status/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		status = map[string]any{}
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status["state"] == "succeeded"
	}, 5*time.Second, 5*time.Millisecond)

	result, ok := status["result"].(map[string]any)
	require.True(t, ok, "succeeded job carries a result")
	assert.Equal(t, "Hello", result["translated_text"])
	assert.NotContains(t, status, "error")
}

func TestRouter_SyncTranslate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, envOptions{connected: true, reply: okTranslation})
		rec := env.do(t, http.MethodPost, "/translate", `{"text": "你好", "schema_name": "detailed"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decode[map[string]any](t, rec)
		assert.Equal(t, "Hello", body["translated_text"])
		assert.Equal(t, "detailed", body["schema_used"])
		assert.Equal(t, "qwen3:latest", body["model"])
	})

	t.Run("backend down", func(t *testing.T) {
		env := newTestEnv(t, envOptions{connected: false})
		rec := env.do(t, http.MethodPost, "/translate", `{"text": "你好"}`)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, string(apperrors.ErrCodeUnavailable), decode[map[string]string](t, rec)["error"])
	})

	t.Run("unparseable reply", func(t *testing.T) {
		env := newTestEnv(t, envOptions{connected: true, reply: "I cannot answer in JSON"})
		rec := env.do(t, http.MethodPost, "/translate", `{"text": "你好", "schema_name": "detailed"}`)
		require.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("batch keeps going", func(t *testing.T) {
		env := newTestEnv(t, envOptions{connected: true, reply: okTranslation})
		rec := env.do(t, http.MethodPost, "/batch/translate?schema_name=detailed", `["一", "  ", "三"]`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[BatchResponse](t, rec)
		assert.Equal(t, 3, resp.TotalProcessed)
		assert.Equal(t, "detailed", resp.SchemaUsed)
		require.Len(t, resp.Results, 3)
		assert.NotNil(t, resp.Results[0].Translation)
		assert.Equal(t, "validation", resp.Results[1].ErrorCode)
		assert.NotNil(t, resp.Results[2].Translation)
	})
}

func TestRouter_Books(t *testing.T) {
	env := newTestEnv(t, envOptions{connected: true})
	env.catalog.EXPECT().Search(gomock.Any(), gomock.Any()).
		Return(&ports.BookPage{NumFound: 1, Docs: []json.RawMessage{json.RawMessage(`{"title": "Call to Arms"}`)}}, nil).
		AnyTimes()
	env.catalog.EXPECT().Work(gomock.Any(), "OL1W").Return(nil, apperrors.NotFound("work not found"))
	env.catalog.EXPECT().Author(gomock.Any(), "OL23919A").Return(json.RawMessage(`{"name": "Lu Xun"}`), nil)

	rec := env.do(t, http.MethodPost, "/books/search", `{"query": "Lu Xun", "limit": 5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["num_found"])

	rec = env.do(t, http.MethodPost, "/books/search", `{"query": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/books/subject/history?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListResponse](t, rec)
	assert.Equal(t, "history", list.Subject)
	require.Len(t, list.Books, 1)
	assert.Equal(t, []string{"Unknown Author"}, list.Books[0].Authors)

	rec = env.do(t, http.MethodGet, "/books/author/Lu%20Xun", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lu Xun", decode[ListResponse](t, rec).Author)

	rec = env.do(t, http.MethodPost, "/books/recommend", `{"text": "ancient philosophy", "limit": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"ancient", "philosophy"}, decode[map[string]any](t, rec)["keywords"])

	rec = env.do(t, http.MethodGet, "/books/work/OL1W", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/books/author-info/OL23919A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name": "Lu Xun"}`, rec.Body.String())
}

func TestMiddleware_RecoverAndRequestID(t *testing.T) {
	h := RequestID(slogDiscard())(Recover(slogDiscard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil))
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "internal", decode[map[string]string](t, rec)["error"])
}
