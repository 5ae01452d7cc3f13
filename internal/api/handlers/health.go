package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api"
	"github.com/cloo-solutions/groundwork/internal/service"
)

type HealthService interface {
	CheckEmbedding(ctx context.Context) service.EmbeddingHealth
	CheckVectorStore(ctx context.Context) service.VectorStoreHealth
	CheckSystem(ctx context.Context) service.SystemHealth
}

type HealthHandler struct {
	svc HealthService
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Live reports that the process is serving requests. It never calls a backend.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Embedding(w http.ResponseWriter, r *http.Request) {
	result := h.svc.CheckEmbedding(r.Context())
	api.Success(w, statusCode(result.Status == service.HealthConnected), result)
}

func (h *HealthHandler) VectorStore(w http.ResponseWriter, r *http.Request) {
	result := h.svc.CheckVectorStore(r.Context())
	api.Success(w, statusCode(result.Status == service.HealthConnected), result)
}

func (h *HealthHandler) System(w http.ResponseWriter, r *http.Request) {
	result := h.svc.CheckSystem(r.Context())
	api.Success(w, statusCode(result.Status == service.HealthHealthy), result)
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
