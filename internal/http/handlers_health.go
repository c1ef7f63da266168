package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yuedu-lab/yuedu/internal/adapters/jobrunner"
	"github.com/yuedu-lab/yuedu/internal/service"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for readiness/liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// ModelProbe reports model backend reachability.
type ModelProbe interface {
	CheckConnection(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	ModelName() string
}

// HealthChecker reports the health of a dependency such as the cache.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// WorkerStatus reports the background worker state.
type WorkerStatus interface {
	Status() jobrunner.Status
}

// HealthHandlers serves the detailed GET /health report.
type HealthHandlers struct {
	Model   ModelProbe
	Cache   HealthChecker // Optional
	Worker  WorkerStatus  // Optional: nil when the worker runs in another process
	Jobs    *service.JobService
	Timeout time.Duration // Probe budget, defaults to 5s
}

// HealthResponse is the detailed health report.
type HealthResponse struct {
	Status          string              `json:"status"`
	Message         string              `json:"message"`
	Model           string              `json:"model"`
	OllamaConnected bool                `json:"ollama_connected"`
	ModelsAvailable []string            `json:"models_available"`
	CacheOK         bool                `json:"cache_ok"`
	Worker          *jobrunner.Status   `json:"worker,omitempty"`
	Queue           *service.QueueStats `json:"queue,omitempty"`
}

// Health probes the model backend, its model list, and the cache concurrently.
// The report is always 200; Status is "degraded" when a probe fails.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := HealthResponse{Model: h.Model.ModelName(), ModelsAvailable: []string{}, CacheOK: true}

	// Probes record their outcome in resp and never fail the group.
	var g errgroup.Group
	g.Go(func() error {
		resp.OllamaConnected = h.Model.CheckConnection(ctx)
		return nil
	})
	g.Go(func() error {
		models, err := h.Model.ListModels(ctx)
		if err != nil {
			loggerFrom(r.Context()).WarnContext(ctx, "list models failed", "error", err)
			return nil
		}
		resp.ModelsAvailable = models
		return nil
	})
	if h.Cache != nil {
		g.Go(func() error {
			if err := h.Cache.Health(ctx); err != nil {
				loggerFrom(r.Context()).WarnContext(ctx, "cache health check failed", "error", err)
				resp.CacheOK = false
			}
			return nil
		})
	}
	if h.Jobs != nil {
		g.Go(func() error {
			st, err := h.Jobs.Stats(ctx)
			if err == nil {
				resp.Queue = st
			}
			return nil
		})
	}
	_ = g.Wait()

	if h.Worker != nil {
		st := h.Worker.Status()
		resp.Worker = &st
	}

	resp.Status, resp.Message = "healthy", "API is running with model "+resp.Model
	if !resp.OllamaConnected || !resp.CacheOK {
		resp.Status = "degraded"
		switch {
		case !resp.OllamaConnected:
			resp.Message = "model backend is unreachable"
		default:
			resp.Message = "cache is unavailable"
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
