// Package respond maps service errors onto HTTP responses.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/catalog"
	companionService "github.com/zhouzirui/companion-academy/backend/internal/service/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/history"
	"github.com/zhouzirui/companion-academy/backend/internal/service/quota"
	"github.com/zhouzirui/companion-academy/backend/pkg/utils"
)

// Status 返回错误对应的状态码和对外消息。
// 存储与创建失败只返回通用消息，细节写入日志。
func Status(err error) (int, string) {
	var creationErr *companion.CreationError
	var storeErr *companion.StoreError

	switch {
	case errors.Is(err, companion.ErrNotFound):
		return http.StatusNotFound, "companion not found"
	case errors.Is(err, companion.ErrInvalidFields):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, catalog.ErrInvalidPage),
		errors.Is(err, history.ErrInvalidLimit),
		errors.Is(err, history.ErrCompanionRequired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, quota.ErrAnonymous),
		errors.Is(err, history.ErrUserRequired),
		errors.Is(err, companionService.ErrAuthorRequired):
		return http.StatusUnauthorized, "authentication required"
	case errors.As(err, &creationErr):
		return http.StatusInternalServerError, "failed to create companion"
	case errors.As(err, &storeErr):
		return http.StatusBadGateway, "record store unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// Error 写出错误响应，服务端错误同时记录日志。
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, message := Status(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	utils.RespondError(w, status, message)
}

// MaxBodyBytes 限制 JSON 请求体大小。
const MaxBodyBytes = 1 << 20

// DecodeJSON 解码请求体到 dst。体积超限返回 413，格式错误返回 400，
// 失败时已写出响应。
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// IntQuery 读取整数查询参数，缺省时返回 def。
func IntQuery(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}
