// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, store, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	// CategoryAuth はサインイン・サインアウト・セッションに関するエラー。
	CategoryAuth = "auth"
	// CategoryStore はドキュメントの更新・削除に関するエラー。
	CategoryStore = "store"
	// CategoryValidation はリクエスト内容の検証エラー。
	CategoryValidation = "validation"
	// CategorySystem は内部エラーやレート制限。
	CategorySystem = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeMessageNotFound    = "MESSAGE_NOT_FOUND"
	ErrCodeInvalidFields      = "INVALID_FIELDS"
	ErrCodeForbiddenOwner     = "FORBIDDEN_OWNER"
	ErrCodeUnknownCollection  = "UNKNOWN_COLLECTION"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeNetwork            = "NETWORK_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// ユーザーの存在有無を推測させないため、未登録と誤パスワードで同じメッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: CategoryAuth,
		Action:   "入力内容を確認して再度サインインしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "サインインしてください。",
	}
}

// NewEmailTakenError は登録済みメールアドレスのエラーを生成する。
func NewEmailTakenError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: CategoryValidation,
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスのエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: CategoryValidation,
		Action:   "正しい形式のメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError は短すぎるパスワードのエラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードは%d文字以上にしてください。", minLength),
		Category: CategoryValidation,
		Action:   "より長いパスワードを指定してください。",
	}
}

// NewMessageNotFoundError はメッセージ未検出エラーを生成する。
// 他ユーザーが所有するメッセージに対しても同じエラーを返す。
func NewMessageNotFoundError(messageID string) *APIError {
	return &APIError{
		Code:     ErrCodeMessageNotFound,
		Message:  fmt.Sprintf("指定されたメッセージが見つかりません: %s", messageID),
		Category: CategoryStore,
		Action:   "一覧を更新してから再度お試しください。",
	}
}

// NewInvalidFieldsError は更新不可能なフィールド指定のエラーを生成する。
func NewInvalidFieldsError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFields,
		Message:  fmt.Sprintf("更新できないフィールドが指定されました: %s", reason),
		Category: CategoryValidation,
		Action:   "更新できるのは seen フィールドのみです。",
	}
}

// NewForbiddenOwnerError は他ユーザーのメッセージを購読しようとした場合のエラーを生成する。
func NewForbiddenOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenOwner,
		Message:  "他のユーザーのメッセージにはアクセスできません。",
		Category: CategoryStore,
		Action:   "サインインし直してください。",
	}
}

// NewUnknownCollectionError は未対応のコレクション指定のエラーを生成する。
func NewUnknownCollectionError(collection string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCollection,
		Message:  fmt.Sprintf("未対応のコレクションです: %s", collection),
		Category: CategoryStore,
		Action:   "コレクション名を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディやパラメータが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: CategorySystem,
		Action:   fmt.Sprintf("%d秒ほど待ってから再度お試しください。", retryAfterSec),
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNetworkError はバックエンドとの通信失敗を表すエラーを生成する。
// categoryには呼び出し元の操作に応じてCategoryAuthまたはCategoryStoreを指定する。
func NewNetworkError(category string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  fmt.Sprintf("サーバーとの通信に失敗しました: %v", err),
		Category: category,
		Action:   "ネットワーク接続を確認してから再度お試しください。",
	}
}

// UserMessage はユーザーに表示するエラーメッセージを返す。
// APIErrorであればプロバイダーが返したMessageをそのまま返し、
// それ以外はerr.Error()を返す。
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// IsCategory はエラーが指定カテゴリのAPIErrorであるかを判定する。
func IsCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}

// HasCode はエラーが指定コードのAPIErrorであるかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
