package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/encore/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	Ping() error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	MetricsHandler    http.Handler
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール（ティア進捗・購入履歴）
	ProfileService ProfileServiceInterface

	// カタログ
	CatalogService CatalogServiceInterface
	Users          UserFetcher
	Registrations  RegistrationListerInterface

	// 特典
	RewardService RewardServiceInterface

	// ミート&グリート
	MeetGreetService MeetGreetServiceInterface

	// 決済イベント取り込み
	PaymentIngester PaymentEventIngester
	WebhookSecret   string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）と決済Webhook（/webhooks/*）はセッション・CSRFチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService)
	catalogHandler := NewCatalogHandler(deps.CatalogService, deps.Users, deps.Registrations)
	rewardHandler := NewRewardHandler(deps.RewardService)
	meetGreetHandler := NewMeetGreetHandler(deps.MeetGreetService, deps.Users)
	webhookHandler := NewPaymentWebhookHandler(deps.PaymentIngester, deps.WebhookSecret)

	// --- 認証不要のルート ---

	// ヘルスチェック（DockerヘルスチェックとLBのプローブ用）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Ping(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheusメトリクス
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// 決済イベント通知（共有シークレットで保護）
	r.Post("/webhooks/payment", webhookHandler.HandleEvent)

	// CSRFトークン取得（SPAが状態変更リクエストの前に取得する）
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 自分の情報
		r.Route("/api/me", func(r chi.Router) {
			r.Get("/tier", profileHandler.GetTierStatus)
			r.Patch("/onboarding", profileHandler.CompleteOnboarding)
			r.Get("/purchases", profileHandler.ListPurchases)
		})

		// グッズ
		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", catalogHandler.ListStoreItems)
			r.Post("/", catalogHandler.CreateStoreItem)
			r.Get("/{id}", catalogHandler.GetStoreItem)
			r.Put("/{id}", catalogHandler.UpdateStoreItem)
		})

		// コンサート
		r.Route("/api/concerts", func(r chi.Router) {
			r.Get("/", catalogHandler.ListConcerts)
			r.Post("/", catalogHandler.CreateConcert)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", catalogHandler.GetConcert)
				r.Put("/", catalogHandler.UpdateConcert)
				r.Get("/registrations", catalogHandler.ListRegistrations)
			})
		})

		// 配信ライブ
		r.Route("/api/lives", func(r chi.Router) {
			r.Get("/", catalogHandler.ListLives)
			r.Post("/", catalogHandler.CreateLive)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", catalogHandler.GetLive)
				r.Put("/", catalogHandler.UpdateLive)
				r.Post("/watch", profileHandler.WatchLive)
			})
		})

		// NFT特典
		r.Route("/api/rewards", func(r chi.Router) {
			r.Get("/assets", rewardHandler.ListAssets)
			r.Get("/grants", rewardHandler.ListGrants)
			r.Post("/grants/{id}/claim", rewardHandler.ClaimGrant)
			r.Get("/collectibles", rewardHandler.ListCollectibles)
		})

		// ミート&グリート
		r.Route("/api/meetgreet", func(r chi.Router) {
			r.Get("/pass", meetGreetHandler.GetPass)
			r.Post("/qr-token", meetGreetHandler.CreateQrToken)

			// 入場ゲートの照合は専用レート制限を追加
			r.With(deps.RateLimiter.RedeemMiddleware()).Post("/redeem", meetGreetHandler.Redeem)

			r.Post("/events", meetGreetHandler.CreateEvent)
		})
	})

	return r
}
