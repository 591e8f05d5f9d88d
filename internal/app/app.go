package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/encore/internal/auth"
	"github.com/hitoshi/encore/internal/catalog"
	"github.com/hitoshi/encore/internal/config"
	"github.com/hitoshi/encore/internal/database"
	"github.com/hitoshi/encore/internal/handler"
	"github.com/hitoshi/encore/internal/logger"
	"github.com/hitoshi/encore/internal/meetgreet"
	"github.com/hitoshi/encore/internal/metrics"
	"github.com/hitoshi/encore/internal/middleware"
	"github.com/hitoshi/encore/internal/payment"
	"github.com/hitoshi/encore/internal/repository"
	"github.com/hitoshi/encore/internal/reward"
	"github.com/hitoshi/encore/internal/sales"
	"github.com/hitoshi/encore/internal/security"
	"github.com/hitoshi/encore/internal/tier"
	"github.com/hitoshi/encore/internal/worker/livesync"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	progressRepo := repository.NewPostgresTierProgressRepo(db)
	saleRepo := repository.NewPostgresSaleRepo(db)
	regRepo := repository.NewPostgresRegistrationRepo(db)
	itemRepo := repository.NewPostgresStoreItemRepo(db)
	concertRepo := repository.NewPostgresConcertRepo(db)
	liveRepo := repository.NewPostgresLiveRepo(db)
	assetRepo := repository.NewPostgresNftAssetRepo(db)
	grantRepo := repository.NewPostgresNftGrantRepo(db)
	walletRepo := repository.NewPostgresWalletRepo(db)
	collectibleRepo := repository.NewPostgresCollectibleRepo(db)
	meetRepo := repository.NewPostgresMeetGreetRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	sanitizer := security.NewContentSanitizer()

	// 4. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	rewardService := reward.NewService(
		assetRepo, grantRepo, walletRepo, collectibleRepo, collector,
		reward.ServiceConfig{ChainID: cfg.ChainID},
	)

	progressService := tier.NewProgressService(
		progressRepo, liveRepo, assetRepo, rewardService,
		tier.ProgressConfig{},
	)

	catalogService := catalog.NewService(itemRepo, concertRepo, liveRepo, sanitizer)

	tokenIssuer := meetgreet.NewTokenIssuer(cfg.QRTokenSecret, cfg.QRTokenTTL)
	meetGreetService := meetgreet.NewService(
		meetRepo, rewardService, tokenIssuer, collector,
		meetgreet.ServiceConfig{},
	)

	reconciler := sales.NewReconciler(userRepo, saleRepo, concertRepo, progressService, collector)

	// 5. ハンドラーアダプタの構築
	profileAdapter := handler.NewProfileServiceAdapter(progressService, authService, userRepo, saleRepo)

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(registry),
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(middleware.RateLimiterConfigFromLimits(cfg.RateLimitGeneral, cfg.RateLimitRedeem)),
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService: profileAdapter,

		CatalogService: catalogService,
		Users:          userRepo,
		Registrations:  regRepo,

		RewardService: rewardService,

		MeetGreetService: meetGreetService,

		PaymentIngester: reconciler,
		WebhookSecret:   cfg.WebhookSecret,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ライブ同期ジョブと売上バックフィルジョブを起動する。
// LIVE_FEED_URLまたはSTRIPE_API_KEYが未設定の場合、対応するジョブはスキップされる。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	progressRepo := repository.NewPostgresTierProgressRepo(db)
	saleRepo := repository.NewPostgresSaleRepo(db)
	concertRepo := repository.NewPostgresConcertRepo(db)
	liveRepo := repository.NewPostgresLiveRepo(db)
	assetRepo := repository.NewPostgresNftAssetRepo(db)
	grantRepo := repository.NewPostgresNftGrantRepo(db)
	walletRepo := repository.NewPostgresWalletRepo(db)
	collectibleRepo := repository.NewPostgresCollectibleRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 4. ドメインサービスの初期化
	rewardService := reward.NewService(
		assetRepo, grantRepo, walletRepo, collectibleRepo, collector,
		reward.ServiceConfig{ChainID: cfg.ChainID},
	)
	progressService := tier.NewProgressService(
		progressRepo, liveRepo, assetRepo, rewardService,
		tier.ProgressConfig{},
	)
	reconciler := sales.NewReconciler(userRepo, saleRepo, concertRepo, progressService, collector)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("backfill_interval", cfg.BackfillInterval),
		slog.Duration("live_sync_interval", cfg.LiveSyncInterval),
	)

	// 5. 売上バックフィルジョブをバックグラウンドで起動
	started := 0
	if cfg.StripeAPIKey != "" {
		stripeClient := payment.NewStripeClient(
			&http.Client{Timeout: 30 * time.Second},
			cfg.StripeAPIKey,
			slog.Default(),
		)
		backfill := sales.NewBackfillJob(reconciler, stripeClient, collector, slog.Default(), sales.BackfillConfig{
			Interval: cfg.BackfillInterval,
			PageSize: cfg.BackfillPageSize,
		})
		go backfill.Start(ctx)
		started++
	} else {
		slog.Info("STRIPE_API_KEY not set, skipping sales backfill job")
	}

	// 6. ライブ同期ジョブをバックグラウンドで起動
	if cfg.LiveFeedURL != "" {
		syncer := livesync.NewSyncer(liveRepo, ssrfGuard, sanitizer, slog.Default(), livesync.SyncerConfig{
			FeedURL:      cfg.LiveFeedURL,
			Interval:     cfg.LiveSyncInterval,
			FetchTimeout: cfg.LiveFetchTimeout,
			FetchMaxSize: cfg.LiveFetchMaxSize,
		})
		go syncer.Start(ctx)
		started++
	} else {
		slog.Info("LIVE_FEED_URL not set, skipping live sync job")
	}

	if started == 0 {
		slog.Warn("no worker jobs configured")
	}

	<-ctx.Done()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
