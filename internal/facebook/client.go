// Package facebook はFacebook Graph APIを使ったソーシャルログイン連携を提供する。
// アプリアクセストークンの取得、ユーザートークンの検証（debug_token）、
// プロフィール取得、長期トークンへの交換を行う。
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultGraphURL はGraph APIのベースURL。
	DefaultGraphURL = "https://graph.facebook.com"
	// DefaultAPIVersion は呼び出すGraph APIのバージョン。
	DefaultAPIVersion = "v19.0"

	// maxResponseSize はGraph APIレスポンスの読み取り上限（1MB）。
	maxResponseSize = 1 << 20

	// oauthErrorInvalidToken はOAuthExceptionで期限切れ・無効トークンを示すコード。
	oauthErrorInvalidToken = 190
)

var (
	// ErrProviderUnavailable はGraph APIに到達できない、または5xxを返した場合のエラー。
	ErrProviderUnavailable = errors.New("facebook: provider unavailable")
	// ErrProviderAuth はGraph APIがアプリの認証情報を拒否した場合のエラー。
	ErrProviderAuth = errors.New("facebook: provider rejected app credentials")
)

// TokenInfo はdebug_tokenによるユーザートークンの検証結果。永続化しない。
type TokenInfo struct {
	IsValid   bool
	UserID    string
	ExpiresAt time.Time
}

// UserInfo はGraph APIから取得したプロフィール。
// ユーザーがスコープを許可していない項目は空文字列になる。
type UserInfo struct {
	Email     string
	FirstName string
	LastName  string
}

// Client はFacebook Graph APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	version    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURL、versionが空の場合は既定値を使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, version string) *Client {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	if version == "" {
		version = DefaultAPIVersion
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    version,
	}
}

// graphError はGraph APIのエラーオブジェクト。
type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// GetAppAccessToken はclient_credentialsでアプリアクセストークンを取得する。
func (c *Client) GetAppAccessToken(ctx context.Context, appID, appSecret string) (string, error) {
	q := url.Values{}
	q.Set("client_id", appID)
	q.Set("client_secret", appSecret)
	q.Set("grant_type", "client_credentials")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	status, err := c.get(ctx, "oauth/access_token", q, &out)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("app access token request returned status %d: %w", status, ErrProviderAuth)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("app access token missing in response: %w", ErrProviderUnavailable)
	}
	return out.AccessToken, nil
}

// DebugUserToken はアプリアクセストークンを使ってユーザートークンを検証する。
// 期限切れ・偽造トークンはエラーではなくIsValid=falseとして返す。
func (c *Client) DebugUserToken(ctx context.Context, userToken, appAccessToken string) (*TokenInfo, error) {
	q := url.Values{}
	q.Set("input_token", userToken)
	q.Set("access_token", appAccessToken)

	var out struct {
		Data struct {
			IsValid   bool        `json:"is_valid"`
			UserID    string      `json:"user_id"`
			ExpiresAt int64       `json:"expires_at"`
			Error     *graphError `json:"error"`
		} `json:"data"`
		Error *graphError `json:"error"`
	}
	status, err := c.get(ctx, "debug_token", q, &out)
	if err != nil {
		return nil, err
	}

	if status >= 400 {
		// 入力トークンが期限切れ・偽造の場合はOAuthException(190)が返る
		if out.Error != nil && out.Error.Code == oauthErrorInvalidToken {
			return &TokenInfo{IsValid: false}, nil
		}
		return nil, fmt.Errorf("debug_token returned status %d: %w", status, ErrProviderAuth)
	}

	if !out.Data.IsValid || out.Data.Error != nil {
		return &TokenInfo{IsValid: false, UserID: out.Data.UserID}, nil
	}

	info := &TokenInfo{IsValid: true, UserID: out.Data.UserID}
	if out.Data.ExpiresAt > 0 {
		info.ExpiresAt = time.Unix(out.Data.ExpiresAt, 0).UTC()
	}
	return info, nil
}

// GetUserInfo はユーザーのメールアドレスと氏名を取得する。
func (c *Client) GetUserInfo(ctx context.Context, externalUserID, userToken string) (*UserInfo, error) {
	q := url.Values{}
	q.Set("fields", "email,first_name,last_name")
	q.Set("access_token", userToken)

	var out struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	status, err := c.get(ctx, url.PathEscape(externalUserID), q, &out)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("user info request returned status %d: %w", status, ErrProviderUnavailable)
	}

	return &UserInfo{
		Email:     out.Email,
		FirstName: out.FirstName,
		LastName:  out.LastName,
	}, nil
}

// ExchangeLongLivedToken は短期ユーザートークンを長期トークンに交換する。
func (c *Client) ExchangeLongLivedToken(ctx context.Context, appID, appSecret, shortLivedToken string) (string, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", appID)
	q.Set("client_secret", appSecret)
	q.Set("fb_exchange_token", shortLivedToken)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	status, err := c.get(ctx, "oauth/access_token", q, &out)
	if err != nil {
		return "", err
	}
	if status >= 400 || out.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned status %d: %w", status, ErrProviderUnavailable)
	}
	return out.AccessToken, nil
}

// get はGraph APIにGETリクエストを送り、レスポンスをoutにデコードする。
// 4xxの場合はエラー本文もoutにデコードした上でステータスを返す。
// ネットワークエラー、5xx、不正なJSONはErrProviderUnavailableとして返す。
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (int, error) {
	reqURL := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.version, path, query.Encode())
	endpoint := strings.SplitN(path, "/", 2)[0]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Graph APIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("graph request failed: %v: %w", err, ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.logger.Error("Graph APIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return resp.StatusCode, fmt.Errorf("graph returned status %d: %w", resp.StatusCode, ErrProviderUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read graph response: %v: %w", err, ErrProviderUnavailable)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("Graph APIがリクエストを拒否しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		// エラー本文のデコード失敗はステータスのみで判定する
		_ = json.Unmarshal(body, out)
		return resp.StatusCode, nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("Graph APIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return resp.StatusCode, fmt.Errorf("failed to parse graph response: %v: %w", err, ErrProviderUnavailable)
	}

	return resp.StatusCode, nil
}
