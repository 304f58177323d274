// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-forge/internal/middleware"
	"resume-forge/internal/repair"
	"resume-forge/internal/repository"
	"resume-forge/internal/service"
	"resume-forge/pkg/llm"
	"resume-forge/pkg/log"
)

// userIDFrom 从 Gin 上下文中获取认证后的用户 ID。
func userIDFrom(c *gin.Context) uint {
	return c.GetUint(middleware.ContextUserIDKey)
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// statusFor 把业务错误映射为 HTTP 状态码。
func statusFor(err error) int {
	var parseErr *llm.ParseError
	switch {
	case errors.Is(err, repository.ErrDocumentNotFound),
		errors.Is(err, repository.ErrProjectNotFound),
		errors.Is(err, service.ErrNoArtifact):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmptyFile),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidProjectKind):
		return http.StatusBadRequest
	case errors.Is(err, repair.ErrNotFailed):
		return http.StatusConflict
	case errors.Is(err, service.ErrExtractionFailed),
		errors.Is(err, service.ErrEmptyGeneration),
		errors.Is(err, llm.ErrFallbackUnavailable),
		errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError 记录错误并按统一格式返回。
func respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[%s] 请求处理失败: %v", op, err)
	} else {
		log.Warnf("[%s] 请求处理失败: %v", op, err)
	}
	fail(c, status, err.Error())
}
