package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/loyalty/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	CORSAllowedOrigin string
	AllowedOrigins    []string
	RateLimiter       *middleware.RateLimiter
	TrustProxy        bool

	// 顧客
	CustomerService CustomerServiceInterface

	// 管理者セッション
	Guard       AdminGuardInterface
	AdminConfig AdminHandlerConfig

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → (RealIP) → Logging → StatusMetrics → SecurityHeaders → CORS → OriginCheck → RateLimit(General)
//
// /health と /metrics はOriginチェックとレート制限の外に配置する。
// POST /api/admin/login は一般レート制限の外に置き、ログイン専用の制限だけを掛ける。
// 一般制限の429が見えるとログイン試行の抑止が外から判別できてしまうため。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	customerHandler := NewCustomerHandler(deps.CustomerService)
	adminHandler := NewAdminHandler(deps.Guard, deps.AdminConfig)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- ログイン ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOriginCheckMiddleware(deps.AllowedOrigins...))
		r.Use(deps.RateLimiter.LoginMiddleware())
		r.Post("/api/admin/login", adminHandler.Login)
	})

	// --- API ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOriginCheckMiddleware(deps.AllowedOrigins...))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 顧客（公開）
		r.Get("/api/customers/phone/{phone}", customerHandler.GetByPhone)
		r.Post("/api/customers", customerHandler.Resolve)
		r.Post("/api/customers/{id}/visits", customerHandler.CheckIn)

		// 管理者セッション（公開）
		r.Post("/api/admin/logout", adminHandler.Logout)
		r.Get("/api/admin/check", adminHandler.Check)

		// 管理者のみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.Guard))
			r.Get("/api/customers", customerHandler.List)
			r.Get("/api/admin/stats", customerHandler.Stats)
		})
	})

	return r
}
