// Package auth はFacebookによるサインアップ・ログインとメールアドレス確認を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/appkit/internal/facebook"
	"github.com/hitoshi/appkit/internal/mail"
	"github.com/hitoshi/appkit/internal/metrics"
	"github.com/hitoshi/appkit/internal/model"
	"github.com/hitoshi/appkit/internal/repository"
	"github.com/hitoshi/appkit/internal/token"
)

// confirmationTimeout はリクエスト終了後に行う確認メール配送の上限時間。
const confirmationTimeout = 30 * time.Second

// IdentityProvider は外部IdP（Facebook Graph API）のインターフェース。
type IdentityProvider interface {
	GetAppAccessToken(ctx context.Context, appID, appSecret string) (string, error)
	DebugUserToken(ctx context.Context, userToken, appAccessToken string) (*facebook.TokenInfo, error)
	GetUserInfo(ctx context.Context, externalUserID, userToken string) (*facebook.UserInfo, error)
	ExchangeLongLivedToken(ctx context.Context, appID, appSecret, shortLivedToken string) (string, error)
}

// TokenIssuer はトークンの発行と検証のインターフェース。
type TokenIssuer interface {
	IssuePair(userID string) (*token.Pair, error)
	IssueConfirmation(userID, email string) (string, error)
	ParseConfirmation(raw string) (*token.Claims, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	AppID           string
	AppSecret       string
	DefaultUserType string
	// BaseURL は確認リンクの組み立てに使用する公開URL。
	BaseURL    string
	ConfirmTTL time.Duration
	// Testing がtrueの場合、確認メールの配送を行わない。
	Testing bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider IdentityProvider
	userRepo repository.UserRepository
	tokens   TokenIssuer
	mailer   mail.ConfirmationSender
	metrics  metrics.MetricsCollector
	config   ServiceConfig

	// inflight は配送中の確認メール。シャットダウン時にWaitで待機する。
	inflight sync.WaitGroup
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	provider IdentityProvider,
	userRepo repository.UserRepository,
	tokens TokenIssuer,
	mailer mail.ConfirmationSender,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		provider: provider,
		userRepo: userRepo,
		tokens:   tokens,
		mailer:   mailer,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// SignupFacebook はFacebookユーザートークンでユーザーを新規登録し、トークンを発行する。
// userTypeが空の場合は設定の既定アカウント種別を使用する。
func (s *Service) SignupFacebook(ctx context.Context, userToken, userType string) (pair *token.Pair, err error) {
	defer func() { s.recordOutcome(metrics.FlowSignup, err) }()

	tag := userType
	if tag == "" {
		tag = s.config.DefaultUserType
	}
	if userToken == "" || tag == "" {
		return nil, model.NewMissingParametersError()
	}

	accountType, ok := model.LookupAccountType(tag)
	if !ok {
		return nil, model.NewInvalidAccountTypeError(tag)
	}
	if accountType.Privileged {
		return nil, model.NewActionForbiddenError()
	}

	info, err := s.introspect(ctx, userToken)
	if err != nil {
		return nil, err
	}
	// 不正なトークンのみを拒否する（is_valid=trueを拒否する逆転した判定は採用しない）
	if !info.IsValid {
		return nil, model.NewInvalidTokenError()
	}

	profile, err := s.userInfo(ctx, info.UserID, userToken)
	if err != nil {
		return nil, err
	}
	// emailスコープが許可されていない場合は登録できない
	if profile.Email == "" {
		return nil, model.NewMissingParametersError()
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, accountType.Tag, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return nil, model.NewUserAlreadyExistsError()
	}

	now := s.now().UTC()
	facebookUserID := info.UserID
	user := &model.User{
		ID:             uuid.New().String(),
		AccountType:    accountType.Tag,
		Email:          profile.Email,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		FacebookUserID: &facebookUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewUserAlreadyExistsError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("account_type", user.AccountType),
		slog.String("provider", "facebook"),
	)

	if !s.config.Testing {
		s.dispatchConfirmation(user)
	}

	pair, err = s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	return pair, nil
}

// LoginFacebook はFacebookユーザートークンで既存ユーザーをログインさせ、トークンを発行する。
// ユーザーの自動作成は行わない。保存済みの長期トークンが変わった場合のみ更新する。
func (s *Service) LoginFacebook(ctx context.Context, userToken string) (pair *token.Pair, err error) {
	defer func() { s.recordOutcome(metrics.FlowLogin, err) }()

	if userToken == "" {
		return nil, model.NewMissingParametersError()
	}

	info, err := s.introspect(ctx, userToken)
	if err != nil {
		return nil, err
	}
	if !info.IsValid {
		return nil, model.NewInvalidTokenError()
	}

	longLived, err := s.exchange(ctx, userToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByFacebookID(ctx, info.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if user.StoredFacebookToken() != longLived {
		if err := s.userRepo.UpdateFacebookToken(ctx, user.ID, longLived); err != nil {
			return nil, fmt.Errorf("failed to update facebook token: %w", err)
		}
		slog.Info("facebook token refreshed", slog.String("user_id", user.ID))
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", "facebook"),
	)

	pair, err = s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	return pair, nil
}

// Confirm は確認トークンを検証し、ユーザーのメールアドレスを確認済みにする。
// 既に確認済みの場合は何もせず成功を返す。
func (s *Service) Confirm(ctx context.Context, rawToken string) (err error) {
	defer func() { s.recordOutcome(metrics.FlowConfirm, err) }()

	if rawToken == "" {
		return model.NewMissingParametersError()
	}

	claims, err := s.tokens.ParseConfirmation(rawToken)
	if err != nil {
		return model.NewInvalidTokenError()
	}

	user, err := s.userRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	// メールアドレス変更前に発行されたトークンは無効
	if user.Email != claims.Email {
		return model.NewInvalidTokenError()
	}
	if user.ConfirmedAt != nil {
		return nil
	}

	if err := s.userRepo.MarkConfirmed(ctx, user.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to confirm user: %w", err)
	}

	slog.Info("user email confirmed", slog.String("user_id", user.ID))
	return nil
}

// Wait は配送中の確認メールがすべて完了するまで待機する。
func (s *Service) Wait() {
	s.inflight.Wait()
}

// dispatchConfirmation は確認メールをリクエストとは独立したgoroutineで配送する。
// 失敗はログとメトリクスにのみ記録し、サインアップ結果には影響させない。
func (s *Service) dispatchConfirmation(user *model.User) {
	raw, err := s.tokens.IssueConfirmation(user.ID, user.Email)
	if err != nil {
		slog.Error("failed to issue confirmation token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordConfirmationDispatch(false)
		return
	}

	c := mail.Confirmation{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		URL:       s.config.BaseURL + "/confirm/" + raw,
		ExpiresIn: s.config.ConfirmTTL,
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), confirmationTimeout)
		defer cancel()

		if err := s.mailer.SendConfirmation(ctx, c); err != nil {
			slog.Error("failed to send confirmation",
				slog.String("user_id", c.UserID),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordConfirmationDispatch(false)
			return
		}
		s.metrics.RecordConfirmationDispatch(true)
	}()
}

// introspect はアプリアクセストークンを取得し、ユーザートークンを検証する。
func (s *Service) introspect(ctx context.Context, userToken string) (*facebook.TokenInfo, error) {
	start := time.Now()
	appToken, err := s.provider.GetAppAccessToken(ctx, s.config.AppID, s.config.AppSecret)
	s.metrics.RecordProviderCall("app_access_token", err == nil, time.Since(start))
	if err != nil {
		return nil, mapProviderError(err)
	}

	start = time.Now()
	info, err := s.provider.DebugUserToken(ctx, userToken, appToken)
	s.metrics.RecordProviderCall("debug_token", err == nil, time.Since(start))
	if err != nil {
		return nil, mapProviderError(err)
	}
	return info, nil
}

func (s *Service) userInfo(ctx context.Context, externalUserID, userToken string) (*facebook.UserInfo, error) {
	start := time.Now()
	profile, err := s.provider.GetUserInfo(ctx, externalUserID, userToken)
	s.metrics.RecordProviderCall("user_info", err == nil, time.Since(start))
	if err != nil {
		return nil, mapProviderError(err)
	}
	return profile, nil
}

func (s *Service) exchange(ctx context.Context, userToken string) (string, error) {
	start := time.Now()
	longLived, err := s.provider.ExchangeLongLivedToken(ctx, s.config.AppID, s.config.AppSecret, userToken)
	s.metrics.RecordProviderCall("exchange_token", err == nil, time.Since(start))
	if err != nil {
		return "", mapProviderError(err)
	}
	return longLived, nil
}

// mapProviderError は外部IdPのエラーをAPIErrorに変換する。
func mapProviderError(err error) error {
	switch {
	case errors.Is(err, facebook.ErrProviderAuth):
		slog.Error("provider rejected app credentials", slog.String("error", err.Error()))
		return model.NewProviderAuthError()
	case errors.Is(err, facebook.ErrProviderUnavailable):
		return model.NewProviderUnavailableError()
	default:
		return fmt.Errorf("provider call failed: %w", err)
	}
}

// recordOutcome は認証フローの結果をメトリクスに記録する。
func (s *Service) recordOutcome(flow string, err error) {
	if err == nil {
		s.metrics.RecordAuthOutcome(flow, "success")
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.metrics.RecordAuthOutcome(flow, apiErr.Code)
		return
	}
	s.metrics.RecordAuthOutcome(flow, model.ErrCodeInternal)
}
