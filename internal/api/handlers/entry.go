package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/go-chi/chi/v5"
)

type EntryService interface {
	Create(ctx context.Context, input service.CreateEntryInput) (*domain.Entry, error)
	Get(ctx context.Context, id string) (*domain.Entry, error)
	Update(ctx context.Context, input service.UpdateEntryInput) (*domain.Entry, error)
	Delete(ctx context.Context, id string) error
	Reindex(ctx context.Context, id string) (*domain.Entry, error)
	List(ctx context.Context, input service.ListEntriesInput) (*service.ListEntriesOutput, error)
}

type EntryHandler struct {
	svc EntryService
}

func NewEntryHandler(svc EntryService) *EntryHandler {
	return &EntryHandler{svc: svc}
}

type EntryRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Category  string `json:"category"`
	SourceURL string `json:"source_url"`
}

type EntryResponse struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Body           string  `json:"body"`
	Category       string  `json:"category,omitempty"`
	SourceURL      string  `json:"source_url,omitempty"`
	IndexingStatus string  `json:"indexing_status"`
	IndexingError  string  `json:"indexing_error,omitempty"`
	ChunkCount     int     `json:"chunk_count"`
	LastIndexedAt  *string `json:"last_indexed_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func entryToResponse(e *domain.Entry) *EntryResponse {
	resp := &EntryResponse{
		ID:             e.ID,
		Title:          e.Title,
		Body:           e.Body,
		Category:       e.Category,
		SourceURL:      e.SourceURL,
		IndexingStatus: string(e.IndexingStatus),
		IndexingError:  e.IndexingError,
		ChunkCount:     e.ChunkCount,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      e.UpdatedAt.Format(time.RFC3339),
	}
	if e.LastIndexedAt != nil {
		ts := e.LastIndexedAt.Format(time.RFC3339)
		resp.LastIndexedAt = &ts
	}
	return resp
}

func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	entry, err := h.svc.Create(r.Context(), service.CreateEntryInput{
		Title:     req.Title,
		Body:      req.Body,
		Category:  req.Category,
		SourceURL: req.SourceURL,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, entryToResponse(entry))
}

func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	entry, err := h.svc.Update(r.Context(), service.UpdateEntryInput{
		ID:        chi.URLParam(r, "id"),
		Title:     req.Title,
		Body:      req.Body,
		Category:  req.Category,
		SourceURL: req.SourceURL,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reindex queues a run and acknowledges before any indexing work happens.
func (h *EntryHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Reindex(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, entryToResponse(entry))
}

type EntryListResponse struct {
	Items   []*EntryResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.svc.List(r.Context(), service.ListEntriesInput{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*EntryResponse, len(output.Items))
	for i, e := range output.Items {
		items[i] = entryToResponse(e)
	}

	api.Success(w, http.StatusOK, EntryListResponse{
		Items:   items,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}
