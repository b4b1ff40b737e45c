package lesson

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/handler/respond"
	"github.com/zhouzirui/companion-academy/backend/internal/middleware"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/catalog"
	"github.com/zhouzirui/companion-academy/backend/internal/service/tutor"
	"github.com/zhouzirui/companion-academy/backend/pkg/utils"
)

// Tutor 生成companion口吻的回答。
type Tutor interface {
	StreamingEnabled() bool
	Reply(ctx context.Context, c companion.Companion, history []tutor.Turn, message string) (*schema.Message, error)
	Stream(ctx context.Context, c companion.Companion, history []tutor.Turn, message string) (*schema.StreamReader[*schema.Message], error)
}

// Handler 通过SSE输出课程回复
type Handler struct {
	tutor  Tutor
	engine *catalog.Engine
	logger *zap.Logger
}

// New 创建课程处理器，tutor 为 nil 时接口返回 503
func New(t Tutor, engine *catalog.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		tutor:  t,
		engine: engine,
		logger: logger,
	}
}

// StreamResponse SSE 数据块
type StreamResponse struct {
	Event       string `json:"event"`
	Content     string `json:"content,omitempty"`
	CompanionID string `json:"companionId,omitempty"`
	Finished    bool   `json:"finished,omitempty"`
	Error       string `json:"error,omitempty"`
}

type lessonRequest struct {
	Message string       `json:"message"`
	History []tutor.Turn `json:"history"`
}

// RegisterRoutes 注册课程路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireCaller).Post("/companions/{companionID}/lesson", h.handleLesson)
}

func (h *Handler) handleLesson(w http.ResponseWriter, r *http.Request) {
	if h.tutor == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "tutor unavailable")
		return
	}

	var payload lessonRequest
	if !respond.DecodeJSON(w, r, &payload) {
		return
	}
	payload.Message = strings.TrimSpace(payload.Message)
	if payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	record, err := h.engine.Get(r.Context(), chi.URLParam(r, "companionID"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:       "start",
		CompanionID: record.ID,
		Content:     record.Name,
	})

	response, err := h.dispatch(r.Context(), w, flusher, record, payload)
	if err != nil {
		h.logger.Warn("lesson reply failed", zap.String("companionId", record.ID), zap.Error(err))
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event: "error",
			Error: "tutor reply failed",
		})
		return
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:       "end",
		CompanionID: record.ID,
		Finished:    true,
	})
	h.logger.Debug("lesson reply completed",
		zap.String("companionId", record.ID),
		zap.Int("length", len(response.Content)),
	)
}

func (h *Handler) dispatch(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, record companion.Companion, payload lessonRequest) (*schema.Message, error) {
	if h.tutor.StreamingEnabled() {
		return h.stream(ctx, w, flusher, record, payload)
	}

	response, err := h.tutor.Reply(ctx, record, payload.History, payload.Message)
	if err != nil {
		return nil, err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:       "message",
		CompanionID: record.ID,
		Content:     response.Content,
	})
	return response, nil
}

func (h *Handler) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, record companion.Companion, payload lessonRequest) (*schema.Message, error) {
	stream, err := h.tutor.Stream(ctx, record, payload.History, payload.Message)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			utils.SendSSEChunk(w, flusher, StreamResponse{
				Event:       "delta",
				CompanionID: record.ID,
				Content:     chunk.Content,
			})
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:       "message",
		CompanionID: record.ID,
		Content:     response.Content,
	})
	return response, nil
}
