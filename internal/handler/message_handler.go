package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/msgbox/internal/backend"
	"github.com/hitoshi/msgbox/internal/middleware"
	"github.com/hitoshi/msgbox/internal/model"
)

// maxPatchBodyBytes はPATCHリクエストボディの上限。
const maxPatchBodyBytes = 4 << 10

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Message, error)
	UpdateFields(ctx context.Context, ownerID, id string, fields map[string]any) error
	Delete(ctx context.Context, ownerID, id string) error
}

// MessageHandler はメッセージドキュメントのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
	logger  *slog.Logger
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{service: service, logger: logger}
}

// ListResponse はメッセージ一覧のレスポンス。
type ListResponse struct {
	Records []backend.Record `json:"records"`
}

// ListMessages はオーナーのメッセージ一覧を返す。
// GET /api/messages?owner=xxx
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}

	messages, err := h.service.ListByOwner(r.Context(), owner)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Records: backend.RecordsFromMessages(messages)})
}

// UpdateMessage はメッセージのフィールドを部分更新する。
// PATCH /api/messages/:id  body: {"seen": true}
func (h *MessageHandler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBodyBytes)).Decode(&fields); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}

	if err := h.service.UpdateFields(r.Context(), userID, chi.URLParam(r, "id"), fields); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteMessage はメッセージを削除する。存在しない場合も204を返す。
// DELETE /api/messages/:id
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
