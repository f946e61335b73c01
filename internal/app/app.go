package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/appkit/internal/auth"
	"github.com/hitoshi/appkit/internal/config"
	"github.com/hitoshi/appkit/internal/database"
	"github.com/hitoshi/appkit/internal/facebook"
	"github.com/hitoshi/appkit/internal/handler"
	"github.com/hitoshi/appkit/internal/logger"
	"github.com/hitoshi/appkit/internal/mail"
	"github.com/hitoshi/appkit/internal/metrics"
	"github.com/hitoshi/appkit/internal/middleware"
	"github.com/hitoshi/appkit/internal/repository"
	"github.com/hitoshi/appkit/internal/resource"
	"github.com/hitoshi/appkit/internal/security"
	"github.com/hitoshi/appkit/internal/token"
)

// defaultHealthcheckPort はSERVER_PORT未設定時にhealthcheckが問い合わせるポート。
const defaultHealthcheckPort = "5000"

// shutdownTimeout はグレースフルシャットダウンの上限時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、プロファイルに応じたJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み前にもログを使えるようにする
	logger.SetupDefault(w, false)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. プロファイルに応じてログレベルを切り替える
	logger.SetupDefault(w, cfg.Debug())

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultHealthcheckPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("profile", string(cfg.Profile)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// server はワイヤリング済みのAPIサーバーと、停止時に解放すべき依存関係を保持する。
type server struct {
	httpServer  *http.Server
	db          *sqlx.DB
	authService *auth.Service
	mailer      mail.ConfirmationSender
	rateLimiter *middleware.RateLimiter
}

// newServer はDB接続を開き、全依存関係をワイヤリングしたserverを返す。
// SQLite（local/testing）の場合は起動時にマイグレーションを適用する。
func newServer(cfg *config.Config) (*server, error) {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	if dialect, _, _ := database.ParseURL(cfg.DatabaseURL); dialect == database.DialectSQLite {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// 2. リポジトリの初期化
	userRepo := repository.NewSQLUserRepo(db)
	resourceRepo := repository.NewSQLResourceARepo(db)

	// 3. 外部IdPクライアントの初期化
	guard := security.NewOutboundGuard()
	if err := guard.ValidateURL(cfg.FacebookGraphURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid FACEBOOK_GRAPH_URL: %w", err)
	}
	provider := facebook.NewClient(
		guard.NewProviderClient(cfg.ProviderTimeout),
		slog.Default(),
		cfg.FacebookGraphURL,
		cfg.FacebookAPIVersion,
	)

	// 4. 確認メールの送信経路
	mailer, err := newMailer(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	// 5. ドメインサービスの初期化
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	issuer := token.NewIssuer(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.ConfirmTokenTTL)

	authService := auth.NewService(provider, userRepo, issuer, mailer, collector, auth.ServiceConfig{
		AppID:           cfg.FacebookAppID,
		AppSecret:       cfg.FacebookAppSecret,
		DefaultUserType: cfg.DefaultUserType,
		BaseURL:         cfg.BaseURL,
		ConfirmTTL:      cfg.ConfirmTokenTTL,
		Testing:         cfg.Testing(),
	})
	resourceService := resource.NewService(resourceRepo, userRepo, security.NewTextSanitizer(), collector)

	// 6. ルーターの構築
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitAuth, cfg.RateLimitGeneral))
	router := handler.NewRouter(&handler.RouterDeps{
		TokenParser:       issuer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		AuthService:       authService,
		ResourceService:   resourceService,
		DB:                db,
		MetricsHandler:    metrics.Handler(reg),
	})

	return &server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		db:          db,
		authService: authService,
		mailer:      mailer,
		rateLimiter: rl,
	}, nil
}

// close は配送中の確認メールを待ってから依存関係を解放する。
// HTTPサーバーの停止後に呼び出すこと。
func (s *server) close() {
	s.authService.Wait()
	if err := s.mailer.Close(); err != nil {
		slog.Warn("failed to close mailer", slog.String("error", err.Error()))
	}
	s.rateLimiter.Stop()
	if err := s.db.Close(); err != nil {
		slog.Warn("failed to close database", slog.String("error", err.Error()))
	}
}

// newMailer は設定に応じた確認メールの送信経路を返す。
func newMailer(cfg *config.Config) (mail.ConfirmationSender, error) {
	switch cfg.Mail.Transport {
	case config.MailTransportSMTP:
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Server,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.DefaultSender,
			UseTLS:   cfg.Mail.UseTLS,
			UseSSL:   cfg.Mail.UseSSL,
		}), nil
	case config.MailTransportAMQP:
		p, err := mail.NewAMQPPublisher(cfg.Mail.AMQPURL, cfg.Mail.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to message broker: %w", err)
		}
		return p, nil
	default:
		return mail.NopSender{}, nil
	}
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", srv.httpServer.Addr))
		if err := srv.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	dialect, _, err := database.ParseURL(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("running database migrations", slog.String("dialect", string(dialect)))

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
