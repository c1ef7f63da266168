package httpx

import (
	"log/slog"
	"net/http"

	"github.com/yuedu-lab/yuedu/internal/domain/model"
	"github.com/yuedu-lab/yuedu/internal/service"
)

// Version is reported by the root endpoint.
const Version = "2.1.0"

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs     *service.JobService
	Language *service.LanguageService
	Books    *service.BookService // Optional: book routes are omitted when nil
	Model    ModelProbe
	Cache    HealthChecker // Optional
	Worker   WorkerStatus  // Optional
	Metrics  http.Handler  // Optional: served at /metrics
	Logger   *slog.Logger  // Optional

	// MaxBodyBytes caps request bodies; zero keeps the 1 MiB decoder limit.
	MaxBodyBytes int64
	// BatchLimit caps items per batch request; zero means 100.
	BatchLimit int
}

// NewRouter creates and configures the HTTP router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs, BatchLimit: services.BatchLimit}
	langHandlers := &LanguageHandlers{
		Svc:        services.Language,
		Model:      services.Model.ModelName(),
		BatchLimit: services.BatchLimit,
	}
	healthHandlers := &HealthHandlers{
		Model:  services.Model,
		Cache:  services.Cache,
		Worker: services.Worker,
		Jobs:   services.Jobs,
	}

	mux.HandleFunc("GET /{$}", rootHandler(services.Books != nil))
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.HandleFunc("GET /health", healthHandlers.Health)
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	registerLanguageRoutes(mux, langHandlers)
	registerJobRoutes(mux, jobHandlers)
	if services.Books != nil {
		registerBookRoutes(mux, &BookHandlers{Svc: services.Books})
	}

	var handler http.Handler = mux
	if services.MaxBodyBytes > 0 {
		handler = BodyLimit(services.MaxBodyBytes)(handler)
	}
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	handler = RequestID(logger)(handler)
	return handler
}

func registerLanguageRoutes(mux *http.ServeMux, h *LanguageHandlers) {
	mux.HandleFunc("GET /schemas", h.Schemas)
	mux.HandleFunc("POST /translate", h.Translate)
	mux.HandleFunc("POST /batch/translate", h.TranslateBatch)
	mux.HandleFunc("POST /text/summarize", h.Summarize)
	mux.HandleFunc("POST /word/analyze", h.AnalyzeWord)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /translate/async", h.SubmitTranslation)
	mux.HandleFunc("POST /batch/translate/async", h.SubmitTranslationBatch)
	mux.HandleFunc("POST /questions/async", h.SubmitQuestions)
	mux.HandleFunc("POST /linguistic/async", h.SubmitLinguistic)

	mux.HandleFunc("GET /translate/status/{id}", h.Status(model.JobKindTranslation))
	mux.HandleFunc("GET /questions/status/{id}", h.Status(model.JobKindQuestions))
	mux.HandleFunc("GET /linguistic/status/{id}", h.Status(model.JobKindLinguistic))
	mux.HandleFunc("GET /jobs/stats", h.Stats)
	mux.HandleFunc("GET /jobs/{id}", h.Get)
}

func registerBookRoutes(mux *http.ServeMux, h *BookHandlers) {
	mux.HandleFunc("POST /books/search", h.Search)
	mux.HandleFunc("POST /books/recommend", h.Recommend)
	mux.HandleFunc("POST /books/research", h.Research)
	mux.HandleFunc("GET /books/subject/{subject}", h.BySubject)
	mux.HandleFunc("GET /books/author/{author}", h.ByAuthor)
	mux.HandleFunc("GET /books/work/{id}", h.Work)
	mux.HandleFunc("GET /books/author-info/{id}", h.AuthorInfo)
}

func rootHandler(books bool) http.HandlerFunc {
	endpoints := map[string]string{
		"health":                 "GET /health",
		"schemas":                "GET /schemas",
		"translate":              "POST /translate",
		"batch_translate":        "POST /batch/translate",
		"translate/async":        "POST /translate/async",
		"translate/status/{id}":  "GET /translate/status/{id}",
		"batch_translate/async":  "POST /batch/translate/async",
		"questions/async":        "POST /questions/async",
		"questions/status/{id}":  "GET /questions/status/{id}",
		"linguistic/async":       "POST /linguistic/async",
		"linguistic/status/{id}": "GET /linguistic/status/{id}",
		"jobs/{id}":              "GET /jobs/{id}",
		"text/summarize":         "POST /text/summarize",
		"word/analyze":           "POST /word/analyze",
	}
	features := []string{
		"Chinese-English Translation",
		"Question Generation",
		"Linguistic Analysis",
	}
	if books {
		features = append(features, "Book Search & Recommendations via OpenLibrary.org")
		endpoints["books/search"] = "POST /books/search"
		endpoints["books/recommend"] = "POST /books/recommend"
		endpoints["books/research"] = "POST /books/research"
	}
	body := map[string]any{
		"api":       "yuedu",
		"version":   Version,
		"features":  features,
		"endpoints": endpoints,
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, body)
	}
}
