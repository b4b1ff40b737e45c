package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/handler/respond"
	"github.com/zhouzirui/companion-academy/backend/internal/identity"
	"github.com/zhouzirui/companion-academy/backend/internal/middleware"
	"github.com/zhouzirui/companion-academy/backend/internal/service/catalog"
	"github.com/zhouzirui/companion-academy/backend/internal/service/history"
	"github.com/zhouzirui/companion-academy/backend/pkg/utils"
)

// Observer 记录会话启动次数。
type Observer interface {
	ObserveSessionLaunched()
}

// Handler 会话历史的HTTP处理器
type Handler struct {
	aggregator *history.Aggregator
	engine     *catalog.Engine
	observer   Observer
	logger     *zap.Logger
}

// New 创建会话处理器
func New(aggregator *history.Aggregator, engine *catalog.Engine, observer Observer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		aggregator: aggregator,
		engine:     engine,
		observer:   observer,
		logger:     logger,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/recent", h.handleRecentGlobal)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireCaller)
		r.Get("/me/sessions", h.handleRecentForUser)
		r.Post("/companions/{companionID}/sessions", h.handleLaunch)
	})
}

// handleRecentGlobal 列出所有用户最近启动的companion
func (h *Handler) handleRecentGlobal(w http.ResponseWriter, r *http.Request) {
	limit, err := respond.IntQuery(r, "limit", history.DefaultLimit)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	companions, err := h.aggregator.RecentGlobal(r.Context(), limit)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, companions)
}

// handleRecentForUser 列出调用方最近启动的companion
func (h *Handler) handleRecentForUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.FromContext(r.Context())

	limit, err := respond.IntQuery(r, "limit", history.DefaultLimit)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	companions, err := h.aggregator.RecentForUser(r.Context(), caller.UserID, limit)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, companions)
}

// handleLaunch 记录一次会话启动
func (h *Handler) handleLaunch(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.FromContext(r.Context())
	companionID := chi.URLParam(r, "companionID")

	if _, err := h.engine.Get(r.Context(), companionID); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	entry, err := h.aggregator.RecordLaunch(r.Context(), caller, companionID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if h.observer != nil {
		h.observer.ObserveSessionLaunched()
	}

	utils.RespondJSON(w, http.StatusCreated, entry)
}
