package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matiquelmec/tarjetas-server/internal/metrics"
	"github.com/matiquelmec/tarjetas-server/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DB がそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// メトリクス公開用（nilの場合 /metrics は公開しない）
	MetricsGatherer prometheus.Gatherer
	// リクエストのステータス・レイテンシ記録（nilの場合は記録しない）
	HTTPMetrics middleware.HTTPMetrics

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 名刺
	CardService CardServiceInterface
	LinkPreview LinkPreviewInterface

	// ユーザー
	UserEnsurer     UserEnsurer
	PlanService     PlanServiceInterface
	UserDataStore   UserDataStore
	WithdrawService WithdrawServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS →
//	  （認証ルート: /auth/*、/health、/metrics はここまで）
//	  Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）はセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	cardHandler := NewCardHandler(deps.CardService, deps.LinkPreview)
	userHandler := NewUserHandler(deps.UserEnsurer, deps.PlanService, deps.UserDataStore, deps.WithdrawService)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", NewHealthHandler(deps.HealthChecker))

	// Prometheusメトリクス
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// CSRFトークン取得
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/dev/login", authHandler.DevLogin)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 名刺管理
		r.Route("/api/cards", func(r chi.Router) {
			r.Get("/", cardHandler.ListCards)
			// POST /api/cards - 名刺作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.CardCreationMiddleware()).Post("/", cardHandler.CreateCard)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cardHandler.GetCard)
				r.Put("/", cardHandler.UpdateCard)
				r.Delete("/", cardHandler.DeleteCard)
			})
		})

		// リンクプレビュー
		r.Get("/api/link-preview", cardHandler.PreviewLink)

		// ユーザー管理
		r.Route("/api/user", func(r chi.Router) {
			r.Post("/ensure", userHandler.EnsureUser)
			r.Get("/plan-limits", userHandler.GetPlanLimits)
			r.Get("/data", userHandler.GetUserData)
		})
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}

// NewHealthHandler はヘルスチェックエンドポイントのハンドラーを返す。
// DBへの疎通確認が成功した場合のみ200を返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}
