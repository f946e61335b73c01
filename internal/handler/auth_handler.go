// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/appkit/internal/token"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignupFacebook(ctx context.Context, userToken, userType string) (*token.Pair, error)
	LoginFacebook(ctx context.Context, userToken string) (*token.Pair, error)
	Confirm(ctx context.Context, rawToken string) error
}

// AuthHandler はFacebook認証とメールアドレス確認のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// facebookAuthRequest はサインアップ・ログインリクエストのボディ。
type facebookAuthRequest struct {
	UserToken string `json:"user_token"`
	UserType  string `json:"user_type"`
}

// SignupFacebook はFacebookユーザートークンで新規登録する。
// POST /signup/facebook
func (h *AuthHandler) SignupFacebook(w http.ResponseWriter, r *http.Request) {
	var req facebookAuthRequest
	if _, err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	pair, err := h.service.SignupFacebook(r.Context(), req.UserToken, req.UserType)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

// LoginFacebook はFacebookユーザートークンで既存ユーザーをログインさせる。
// POST /login/facebook
func (h *AuthHandler) LoginFacebook(w http.ResponseWriter, r *http.Request) {
	var req facebookAuthRequest
	if _, err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	pair, err := h.service.LoginFacebook(r.Context(), req.UserToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Confirm は確認メールのリンクからメールアドレスを確認済みにする。
// GET /confirm/{token}
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Confirm(r.Context(), chi.URLParam(r, "token")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}
