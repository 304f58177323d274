package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-forge/internal/model"
	"resume-forge/internal/service"
)

// ProfileHandler 负责处理用户画像相关的请求。
type ProfileHandler struct {
	profiles service.ProfileService
}

// NewProfileHandler 创建一个新的 ProfileHandler 实例。
func NewProfileHandler(profiles service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Get 返回当前用户的画像，尚未生成时 data 为 null。
func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.profiles.Get(userIDFrom(c))
	if err != nil {
		respondError(c, "ProfileHandler", err)
		return
	}
	if p == nil {
		ok(c, "尚未生成用户画像", nil)
		return
	}
	ok(c, "success", p)
}

// Update 处理手动编辑画像的请求，只覆盖请求中出现的字段。
func (h *ProfileHandler) Update(c *gin.Context) {
	var patch model.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	p, err := h.profiles.Update(userIDFrom(c), patch)
	if err != nil {
		respondError(c, "ProfileHandler", err)
		return
	}
	ok(c, "用户画像已更新", p)
}

// Extract 从已上传的文档重新抽取画像。文档内容不足时 data 为 null。
func (h *ProfileHandler) Extract(c *gin.Context) {
	p, err := h.profiles.Refresh(c.Request.Context(), userIDFrom(c))
	if err != nil {
		respondError(c, "ProfileHandler", err)
		return
	}
	if p == nil {
		ok(c, "文档内容不足，未生成用户画像", nil)
		return
	}
	ok(c, "用户画像已更新", p)
}
