package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/msgbox/internal/model"
)

func TestWriteErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusNotFound, model.NewMessageNotFoundError("m1"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	body := decodeErrorBody(t, w.Body)
	if body.Code != model.ErrCodeMessageNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeMessageNotFound)
	}
	if body.Category != model.CategoryStore {
		t.Errorf("category = %q, want %q", body.Category, model.CategoryStore)
	}
	if body.Message == "" || body.Action == "" {
		t.Errorf("message and action must be set: %+v", body)
	}
}

func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w.Body)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Category != model.CategorySystem {
		t.Errorf("category = %q, want %q", body.Category, model.CategorySystem)
	}
}

func TestErrorResponseBody_APIError(t *testing.T) {
	body := ErrorResponseBody{
		Code:     model.ErrCodeInvalidCredentials,
		Message:  "msg",
		Category: model.CategoryAuth,
		Action:   "act",
	}

	apiErr := body.APIError()

	if !model.HasCode(apiErr, model.ErrCodeInvalidCredentials) {
		t.Errorf("code = %q", apiErr.Code)
	}
	if !model.IsCategory(apiErr, model.CategoryAuth) {
		t.Errorf("category = %q", apiErr.Category)
	}
	if model.UserMessage(apiErr) != "msg" {
		t.Errorf("UserMessage = %q, want msg", model.UserMessage(apiErr))
	}
}
