// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"sort"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string   // エラーコード
	Message  string   // エラーメッセージ
	Category string   // カテゴリ: auth, validation, resource, provider, system
	Action   string   // ユーザー向け対処方法
	Keys     []string // INVALID_REQUEST_KEYS の場合のみ: 許可されていないキー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingParameters   = "MISSING_PARAMETERS"
	ErrCodeInvalidAccountType  = "INVALID_ACCOUNT_TYPE"
	ErrCodeActionForbidden     = "ACTION_FORBIDDEN"
	ErrCodeInvalidToken        = "INVALID_TOKEN"
	ErrCodeUserAlreadyExists   = "USER_ALREADY_EXISTS"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeResourceNotFound    = "RESOURCE_NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidRequestKeys  = "INVALID_REQUEST_KEYS"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderAuth        = "PROVIDER_AUTH_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewMissingParametersError は必須パラメータ不足エラーを生成する。
func NewMissingParametersError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingParameters,
		Message:  "必須パラメータが不足しています。",
		Category: "validation",
		Action:   "リクエストに必要なパラメータを指定してください。",
	}
}

// NewInvalidAccountTypeError は未知のアカウント種別エラーを生成する。
func NewInvalidAccountTypeError(tag string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAccountType,
		Message:  fmt.Sprintf("無効なアカウント種別です: %s", tag),
		Category: "validation",
		Action:   "登録可能なアカウント種別を指定してください。",
	}
}

// NewActionForbiddenError は許可されていない操作のエラーを生成する。
func NewActionForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeActionForbidden,
		Message:  "この操作は許可されていません。",
		Category: "auth",
		Action:   "管理者アカウントはソーシャルログインで作成できません。",
	}
}

// NewInvalidTokenError は無効なトークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効または期限切れです。",
		Category: "auth",
		Action:   "再度ログインしてトークンを取得し直してください。",
	}
}

// NewUserAlreadyExistsError はユーザー重複エラーを生成する。
func NewUserAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserAlreadyExists,
		Message:  "このメールアドレスのユーザーは既に存在します。",
		Category: "auth",
		Action:   "ログインをお試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "先にサインアップしてください。",
	}
}

// NewResourceNotFoundError はリソースが見つからない場合のエラーを生成する。
// resourceTypeにはリソースの型名（例: "ResourceA"）を指定する。
func NewResourceNotFoundError(resourceType string) *APIError {
	return &APIError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("%s が見つかりません。", resourceType),
		Category: "resource",
		Action:   "IDを確認してください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewNotOwnerError は所有者以外による変更操作のエラーを生成する。
// コードはUNAUTHORIZEDのまま、メッセージのみ区別する。
func NewNotOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "このリソースを変更する権限がありません。",
		Category: "auth",
		Action:   "リソースの所有者のみが変更・削除できます。",
	}
}

// NewInvalidRequestKeysError は許可されていないキーを含むリクエストのエラーを生成する。
// keysはソートされた状態でKeysに格納される。
func NewInvalidRequestKeysError(keys []string) *APIError {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return &APIError{
		Code:     ErrCodeInvalidRequestKeys,
		Message:  fmt.Sprintf("許可されていないキーが含まれています: %s", strings.Join(sorted, ", ")),
		Category: "validation",
		Action:   "変更可能な属性のみを指定してください。",
		Keys:     sorted,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewProviderUnavailableError は外部IdPに到達できない場合のエラーを生成する。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "認証プロバイダーに接続できませんでした。",
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewProviderAuthError は外部IdPがアプリ認証情報を拒否した場合のエラーを生成する。
func NewProviderAuthError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderAuth,
		Message:  "認証プロバイダーがアプリケーションの認証情報を拒否しました。",
		Category: "provider",
		Action:   "管理者に連絡してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
