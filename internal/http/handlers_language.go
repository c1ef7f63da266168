package httpx

import (
	"net/http"

	"github.com/yuedu-lab/yuedu/internal/domain/model"
	"github.com/yuedu-lab/yuedu/internal/service"
)

// LanguageHandlers serves the synchronous model-backed endpoints.
type LanguageHandlers struct {
	Svc        *service.LanguageService
	Model      string
	BatchLimit int // Optional: defaults to 100
}

// BatchItem is one entry of a synchronous batch translation.
type BatchItem struct {
	InputText   string                   `json:"input_text"`
	Translation *model.TranslationResult `json:"translation,omitempty"`
	Error       string                   `json:"error,omitempty"`
	ErrorCode   string                   `json:"error_code,omitempty"`
}

// BatchResponse is the result of a synchronous batch translation.
type BatchResponse struct {
	TotalProcessed int         `json:"total_processed"`
	SchemaUsed     string      `json:"schema_used"`
	Model          string      `json:"model"`
	Results        []BatchItem `json:"results"`
}

// Schemas handles GET /schemas.
func (h *LanguageHandlers) Schemas(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"available_schemas": h.Svc.Schemas()})
}

// Translate handles POST /translate.
func (h *LanguageHandlers) Translate(w http.ResponseWriter, r *http.Request) {
	var req translationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.Translate(r.Context(), req.Text, schemaOrDefault(req.SchemaName))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// TranslateBatch handles POST /batch/translate. Items are translated in order
// and a failed item does not stop the batch.
func (h *LanguageHandlers) TranslateBatch(w http.ResponseWriter, r *http.Request) {
	var texts []string
	if !DecodeJSON(w, r, &texts) {
		return
	}
	if err := checkBatchSize(len(texts), h.BatchLimit); err != nil {
		writeServiceError(w, r, err)
		return
	}
	schema := schemaOrDefault(r.URL.Query().Get("schema_name"))

	out := BatchResponse{SchemaUsed: schema, Model: h.Model, Results: make([]BatchItem, 0, len(texts))}
	for _, text := range texts {
		if err := r.Context().Err(); err != nil {
			writeServiceError(w, r, err)
			return
		}
		item := BatchItem{InputText: text}
		res, err := h.Svc.Translate(r.Context(), text, schema)
		if err != nil {
			_, item.ErrorCode = errorStatus(err)
			item.Error = err.Error()
		} else {
			item.Translation = res
		}
		out.Results = append(out.Results, item)
	}
	out.TotalProcessed = len(out.Results)
	WriteJSON(w, http.StatusOK, out)
}

// Summarize handles POST /text/summarize.
func (h *LanguageHandlers) Summarize(w http.ResponseWriter, r *http.Request) {
	var req service.SummaryRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.Summarize(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// AnalyzeWord handles POST /word/analyze.
func (h *LanguageHandlers) AnalyzeWord(w http.ResponseWriter, r *http.Request) {
	var req service.WordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.AnalyzeWord(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
