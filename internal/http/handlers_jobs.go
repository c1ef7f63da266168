// Package httpx provides the HTTP handlers and middleware of the yuedu API.
package httpx

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/yuedu-lab/yuedu/internal/domain/model"
	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
	"github.com/yuedu-lab/yuedu/internal/service"
)

// defaultBatchLimit bounds one batch request when no limit is configured.
const defaultBatchLimit = 100

// JobHandlers serves asynchronous job submission and polling.
type JobHandlers struct {
	Svc        *service.JobService
	BatchLimit int // Optional: defaults to 100
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID   string         `json:"job_id"`
	Status  model.JobState `json:"status"`
	Message string         `json:"message"`
}

// BatchSubmitResponse acknowledges a batch of accepted jobs.
type BatchSubmitResponse struct {
	TotalSubmitted int      `json:"total_submitted"`
	JobIDs         []string `json:"job_ids"`
	Message        string   `json:"message"`
}

type translationRequest struct {
	Text       string `json:"text"`
	SchemaName string `json:"schema_name,omitempty"`
}

type questionsRequest struct {
	Text          string `json:"text"`
	QuestionCount int    `json:"question_count,omitempty"`
}

type linguisticRequest struct {
	FullText     string `json:"full_text"`
	SelectedText string `json:"selected_text"`
}

// statusPath is where clients poll a job of kind.
func statusPath(kind model.JobKind) string {
	switch kind {
	case model.JobKindTranslation:
		return "/translate/status/"
	case model.JobKindQuestions:
		return "/questions/status/"
	case model.JobKindLinguistic:
		return "/linguistic/status/"
	default:
		return "/jobs/"
	}
}

func (h *JobHandlers) submit(w http.ResponseWriter, r *http.Request, payload model.JobPayload) {
	job, err := h.Svc.Submit(r.Context(), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, SubmitResponse{
		JobID:   job.ID,
		Status:  job.State,
		Message: fmt.Sprintf("Job %s submitted. Poll %s%s for results.", job.ID, statusPath(job.Kind), job.ID),
	})
}

// SubmitTranslation handles POST /translate/async.
func (h *JobHandlers) SubmitTranslation(w http.ResponseWriter, r *http.Request) {
	var req translationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	h.submit(w, r, model.TranslationPayload{Text: req.Text, SchemaName: schemaOrDefault(req.SchemaName)})
}

// SubmitQuestions handles POST /questions/async.
func (h *JobHandlers) SubmitQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	count := req.QuestionCount
	if count == 0 {
		count = model.DefaultQuestionCount
	}
	h.submit(w, r, model.QuestionsPayload{Text: req.Text, QuestionCount: count})
}

// SubmitLinguistic handles POST /linguistic/async.
func (h *JobHandlers) SubmitLinguistic(w http.ResponseWriter, r *http.Request) {
	var req linguisticRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	h.submit(w, r, model.LinguisticPayload{FullText: req.FullText, SelectedText: req.SelectedText})
}

// SubmitTranslationBatch handles POST /batch/translate/async. Items without a
// schema use the schema_name query parameter. Submission stops at the first
// rejected item; ids accepted before it are still reported.
func (h *JobHandlers) SubmitTranslationBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []translationRequest
	if !DecodeJSON(w, r, &reqs) {
		return
	}
	if err := checkBatchSize(len(reqs), h.BatchLimit); err != nil {
		writeServiceError(w, r, err)
		return
	}
	defSchema := schemaOrDefault(r.URL.Query().Get("schema_name"))

	ids := make([]string, 0, len(reqs))
	for i, req := range reqs {
		schema := req.SchemaName
		if strings.TrimSpace(schema) == "" {
			schema = defSchema
		}
		job, err := h.Svc.Submit(r.Context(), model.TranslationPayload{Text: req.Text, SchemaName: schema})
		if err != nil {
			status, code := errorStatus(err)
			WriteJSON(w, status, map[string]any{
				"error":   code,
				"message": fmt.Sprintf("item %d: %v", i, err),
				"job_ids": ids,
			})
			return
		}
		ids = append(ids, job.ID)
	}

	WriteJSON(w, http.StatusAccepted, BatchSubmitResponse{
		TotalSubmitted: len(ids),
		JobIDs:         ids,
		Message:        "All jobs submitted. Poll /translate/status/{job_id} for each job.",
	})
}

// Status handles the kind-specific status routes. A job of another kind is not found.
func (h *JobHandlers) Status(kind model.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.Svc.GetOfKind(r.Context(), r.PathValue("id"), kind)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

// Get handles GET /jobs/{id} for a job of any kind.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Stats handles GET /jobs/stats.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func schemaOrDefault(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return model.DefaultSchemaName
}

func checkBatchSize(n, limit int) error {
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	switch {
	case n == 0:
		return apperrors.Validation("batch must contain at least one item")
	case n > limit:
		return apperrors.Validationf("batch must contain at most %d items", limit)
	}
	return nil
}
