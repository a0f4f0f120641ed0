package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moodshare/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	Metrics        middleware.HTTPStatusRecorder
	MetricsHandler http.Handler

	// セラピスト・データ共有
	SharingService    SharingServiceInterface
	AssignmentService AssignmentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → (Auth → RateLimit(General)) /api/*
//
// /healthと/metricsは認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	h := NewTherapistHandler(deps.AssignmentService, deps.SharingService)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Route("/api/therapist", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 割り当て
		r.Post("/assign", h.Assign)
		r.Delete("/remove", h.Remove)
		r.Get("/assigned", h.GetAssigned)

		// データ共有（pushは共有専用レート制限を追加）
		r.With(deps.RateLimiter.ShareMiddleware()).Post("/share-emotions", h.ShareEmotions)
		r.Post("/request-sharing", h.RequestSharing)
		r.Get("/sharing", h.ListSharing)
		r.Route("/sharing/{therapistId}", func(r chi.Router) {
			r.Put("/settings", h.UpdateSettings)
			r.Post("/renew", h.Renew)
		})
		r.Get("/clients", h.ListClients)

		// GET /api/therapist/{therapistId} - 固定パスが優先される
		r.Get("/{therapistId}", h.GetTherapistDetails)
	})

	return r
}
