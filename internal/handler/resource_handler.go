package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/appkit/internal/model"
)

// ResourceServiceInterface はリソースハンドラーが必要とするサービスインターフェース。
type ResourceServiceInterface interface {
	Create(ctx context.Context, ownerID string, attrs map[string]json.RawMessage) (*model.ResourceA, error)
	List(ctx context.Context) ([]*model.ResourceA, error)
	Get(ctx context.Context, id string) (*model.ResourceA, error)
	Update(ctx context.Context, callerID, id string, attrs map[string]json.RawMessage) (*model.ResourceA, error)
	Delete(ctx context.Context, callerID, id string) error
}

// ResourceHandler はResourceAのHTTPハンドラー。
type ResourceHandler struct {
	service ResourceServiceInterface
}

// NewResourceHandler はResourceHandlerを生成する。
func NewResourceHandler(service ResourceServiceInterface) *ResourceHandler {
	return &ResourceHandler{service: service}
}

// resourceResponse はResourceAのAPIレスポンス。
type resourceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// resourceListResponse はResourceA一覧のAPIレスポンス。
type resourceListResponse struct {
	Items []resourceResponse `json:"items"`
}

func toResourceResponse(r *model.ResourceA) resourceResponse {
	return resourceResponse{
		ID:        r.ID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Create はリソースを作成する。
// POST /resource-a
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	attrs, err := decodeAttributes(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resource, err := h.service.Create(r.Context(), userID, attrs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResourceResponse(resource))
}

// List は全リソースを返す。
// GET /resource-a
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	resources, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := resourceListResponse{Items: make([]resourceResponse, len(resources))}
	for i, res := range resources {
		resp.Items[i] = toResourceResponse(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は指定IDのリソースを返す。
// GET /resource-a/{id}
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	resource, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResourceResponse(resource))
}

// Update はリソースの名前を更新する。
// PUT /resource-a/{id}（POSTも同じ扱い）
func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	attrs, err := decodeAttributes(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resource, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), attrs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResourceResponse(resource))
}

// Delete はリソースを削除する。
// DELETE /resource-a/{id}
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
