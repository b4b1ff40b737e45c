package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/handler/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/handler/lesson"
	"github.com/zhouzirui/companion-academy/backend/internal/handler/session"
	"github.com/zhouzirui/companion-academy/backend/internal/identity"
	"github.com/zhouzirui/companion-academy/backend/internal/metrics"
	"github.com/zhouzirui/companion-academy/backend/internal/middleware"
	"github.com/zhouzirui/companion-academy/backend/internal/service/catalog"
	companionService "github.com/zhouzirui/companion-academy/backend/internal/service/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/history"
	"github.com/zhouzirui/companion-academy/backend/internal/service/quota"
	"github.com/zhouzirui/companion-academy/backend/internal/service/tutor"
	"github.com/zhouzirui/companion-academy/backend/pkg/utils"
)

// Services 汇总路由依赖的服务。Tutor、Identity、Metrics 可为空。
type Services struct {
	Catalog  *catalog.Engine
	History  *history.Aggregator
	Quota    *quota.Enforcer
	Writer   *companionService.Writer
	Tutor    *tutor.Service
	Identity identity.Provider
	Metrics  *metrics.Collector
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	}))
	if svc.Metrics != nil {
		r.Use(svc.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", svc.Metrics.Handler())
	}

	// 只有 svc.Tutor 非空时才传入接口，避免 typed nil
	var tutorSvc lesson.Tutor
	if svc.Tutor != nil {
		tutorSvc = svc.Tutor
	}
	var sessionObserver session.Observer
	if svc.Metrics != nil {
		sessionObserver = svc.Metrics
	}

	companionHandler := companion.New(svc.Catalog, svc.Writer, svc.Quota, logger)
	sessionHandler := session.New(svc.History, svc.Catalog, sessionObserver, logger)
	lessonHandler := lesson.New(tutorSvc, svc.Catalog, logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Authenticate(svc.Identity, logger))

		companionHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
		lessonHandler.RegisterRoutes(api)
	})

	return r
}
