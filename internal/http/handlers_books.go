package httpx

import (
	"net/http"
	"strconv"

	"github.com/yuedu-lab/yuedu/internal/domain/model"
	"github.com/yuedu-lab/yuedu/internal/service"
)

// BookHandlers serves the /books routes.
type BookHandlers struct {
	Svc *service.BookService
}

// ListResponse is the shape of the subject and author listings.
type ListResponse struct {
	Subject  string              `json:"subject,omitempty"`
	Author   string              `json:"author,omitempty"`
	NumFound int                 `json:"num_found"`
	Books    []model.BookSummary `json:"books"`
}

// Search handles POST /books/search.
func (h *BookHandlers) Search(w http.ResponseWriter, r *http.Request) {
	var req model.BookSearchParams
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.Search(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Recommend handles POST /books/recommend.
func (h *BookHandlers) Recommend(w http.ResponseWriter, r *http.Request) {
	var req service.RecommendRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.Recommend(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Research handles POST /books/research.
func (h *BookHandlers) Research(w http.ResponseWriter, r *http.Request) {
	var req service.ResearchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.Research(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// BySubject handles GET /books/subject/{subject}.
func (h *BookHandlers) BySubject(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.BySubject(r.Context(), r.PathValue("subject"), limitParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ListResponse{Subject: res.Query, NumFound: res.NumFound, Books: res.Results})
}

// ByAuthor handles GET /books/author/{author}.
func (h *BookHandlers) ByAuthor(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.ByAuthor(r.Context(), r.PathValue("author"), limitParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ListResponse{Author: res.Query, NumFound: res.NumFound, Books: res.Results})
}

// Work handles GET /books/work/{id}.
func (h *BookHandlers) Work(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Svc.Work(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// AuthorInfo handles GET /books/author-info/{id}.
func (h *BookHandlers) AuthorInfo(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Svc.Author(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// limitParam reads ?limit; a missing or malformed value means the default.
func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
