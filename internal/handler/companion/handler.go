package companion

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/handler/respond"
	"github.com/zhouzirui/companion-academy/backend/internal/identity"
	"github.com/zhouzirui/companion-academy/backend/internal/middleware"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/catalog"
	companionService "github.com/zhouzirui/companion-academy/backend/internal/service/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/quota"
	"github.com/zhouzirui/companion-academy/backend/pkg/utils"
)

// Handler companion 目录与创建的HTTP处理器
type Handler struct {
	engine   *catalog.Engine
	writer   *companionService.Writer
	enforcer *quota.Enforcer
	logger   *zap.Logger
}

// New 创建companion处理器
func New(engine *catalog.Engine, writer *companionService.Writer, enforcer *quota.Enforcer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:   engine,
		writer:   writer,
		enforcer: enforcer,
		logger:   logger,
	}
}

// RegisterRoutes 注册companion相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/companions", h.handleList)
	r.Get("/companions/{companionID}", h.handleGet)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireCaller)
		r.Post("/companions", h.handleCreate)
		r.Get("/me/companions", h.handleOwned)
		r.Get("/me/permissions", h.handlePermissions)
	})
}

// handleList 按学科、主题过滤并分页列出companion
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := respond.IntQuery(r, "limit", catalog.DefaultLimit)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := respond.IntQuery(r, "page", catalog.DefaultPage)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := catalog.Filter{
		Subject: r.URL.Query().Get("subject"),
		Topic:   r.URL.Query().Get("topic"),
	}
	companions, err := h.engine.List(r.Context(), filter, catalog.Page{Limit: limit, Number: page})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, companions)
}

// handleGet 按ID获取单个companion
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.engine.Get(r.Context(), chi.URLParam(r, "companionID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, record)
}

// handleCreate 在配额允许时创建companion
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.FromContext(r.Context())

	var fields companion.Fields
	if !respond.DecodeJSON(w, r, &fields) {
		return
	}

	decision, err := h.enforcer.Decide(r.Context(), caller)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if !decision.Allowed {
		utils.RespondJSON(w, http.StatusForbidden, map[string]any{
			"error": "companion limit reached",
			"limit": decision.Limit,
			"owned": decision.Owned,
		})
		return
	}

	created, err := h.writer.Create(r.Context(), fields, caller)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("companion created",
		zap.String("companionId", created.ID),
		zap.String("author", created.Author),
		zap.String("tier", decision.Tier),
	)
	utils.RespondJSON(w, http.StatusCreated, created)
}

// handleOwned 列出调用方创建的companion
func (h *Handler) handleOwned(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.FromContext(r.Context())

	companions, err := h.engine.OwnedBy(r.Context(), caller.UserID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, companions)
}

// handlePermissions 返回调用方是否还能创建companion
func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.FromContext(r.Context())

	decision, err := h.enforcer.Decide(r.Context(), caller)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, decision)
}
