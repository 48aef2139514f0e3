package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := NewMessageNotFoundError("m1")
	want := fmt.Sprintf("[%s] %s", ErrCodeMessageNotFound, err.Message)
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUserMessage(t *testing.T) {
	apiErr := NewInvalidCredentialsError()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"api error", apiErr, apiErr.Message},
		{"wrapped api error", fmt.Errorf("sign in: %w", apiErr), apiErr.Message},
		{"plain error", errors.New("connection refused"), "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCategory(t *testing.T) {
	wrapped := fmt.Errorf("update: %w", NewNetworkError(CategoryStore, errors.New("eof")))

	if !IsCategory(wrapped, CategoryStore) {
		t.Error("expected store category")
	}
	if IsCategory(wrapped, CategoryAuth) {
		t.Error("unexpected auth category")
	}
	if IsCategory(errors.New("plain"), CategoryStore) {
		t.Error("plain error must not match any category")
	}
}

func TestHasCode(t *testing.T) {
	if !HasCode(NewUnauthorizedError(), ErrCodeUnauthorized) {
		t.Error("expected UNAUTHORIZED")
	}
	if HasCode(NewInternalError(), ErrCodeUnauthorized) {
		t.Error("INTERNAL_ERROR must not match UNAUTHORIZED")
	}
}

// 各コンストラクタが想定したカテゴリを返すことを検証
func TestConstructorsCategory(t *testing.T) {
	tests := []struct {
		err      *APIError
		category string
	}{
		{NewInvalidCredentialsError(), CategoryAuth},
		{NewUnauthorizedError(), CategoryAuth},
		{NewEmailTakenError("a@example.com"), CategoryValidation},
		{NewInvalidEmailError("bad"), CategoryValidation},
		{NewWeakPasswordError(6), CategoryValidation},
		{NewMessageNotFoundError("m1"), CategoryStore},
		{NewInvalidFieldsError("x"), CategoryValidation},
		{NewForbiddenOwnerError(), CategoryStore},
		{NewUnknownCollectionError("posts"), CategoryStore},
		{NewInvalidRequestError("x"), CategoryValidation},
		{NewRateLimitedError(30), CategorySystem},
		{NewInternalError(), CategorySystem},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if tt.err.Category != tt.category {
				t.Errorf("Category = %q, want %q", tt.err.Category, tt.category)
			}
			if tt.err.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}
