package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-forge/internal/service"
	"resume-forge/pkg/log"
)

// ContextHandler 预览一次生成请求会使用的检索上下文。
type ContextHandler struct {
	retrieval service.RetrievalService
}

// NewContextHandler 创建一个新的 ContextHandler 实例。
func NewContextHandler(retrieval service.RetrievalService) *ContextHandler {
	return &ContextHandler{retrieval: retrieval}
}

// Preview 处理 GET /context?q= 请求。
func (h *ContextHandler) Preview(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		fail(c, http.StatusBadRequest, "无效的查询参数")
		return
	}
	userID := userIDFrom(c)
	log.Infof("[ContextHandler] 收到上下文预览请求, userID: %d, q: %s", userID, query)

	rc, err := h.retrieval.Retrieve(c.Request.Context(), userID, query)
	if err != nil {
		respondError(c, "ContextHandler", err)
		return
	}
	ok(c, "success", rc)
}
