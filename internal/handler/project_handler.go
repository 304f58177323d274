package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-forge/internal/service"
	"resume-forge/pkg/log"
)

// ProjectHandler 负责处理项目、编译和修复相关的请求。
type ProjectHandler struct {
	projects service.ProjectService
}

// NewProjectHandler 创建一个新的 ProjectHandler 实例。
func NewProjectHandler(projects service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateProjectRequest 定义了创建项目的请求体结构。
type CreateProjectRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// UpdateMarkupRequest 定义了手动编辑 markup 的请求体结构。
type UpdateMarkupRequest struct {
	Markup string `json:"markup"`
}

// Create 处理创建项目的请求。
func (h *ProjectHandler) Create(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	p, err := h.projects.Create(userIDFrom(c), req.Name, req.Kind)
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": "项目创建成功", "data": p})
}

// List 返回当前用户的项目列表。
func (h *ProjectHandler) List(c *gin.Context) {
	list, err := h.projects.List(userIDFrom(c))
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	ok(c, "获取项目列表成功", list)
}

// Get 返回单个项目。
func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.projects.Get(userIDFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	ok(c, "success", p)
}

// UpdateMarkup 保存手动编辑的 markup，稍后自动编译。
func (h *ProjectHandler) UpdateMarkup(c *gin.Context) {
	var req UpdateMarkupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return
	}
	p, err := h.projects.UpdateMarkup(userIDFrom(c), c.Param("id"), req.Markup)
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	ok(c, "markup 已保存", p)
}

// Compile 立即编译项目并返回编译状态。
func (h *ProjectHandler) Compile(c *gin.Context) {
	snap, err := h.projects.Compile(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	log.Infof("[ProjectHandler] 编译完成, projectID: %s, state: %s", snap.ProjectID, snap.State)
	ok(c, "编译已完成", snap)
}

// Repair 手动触发修复。项目未处于失败状态时返回 409。
func (h *ProjectHandler) Repair(c *gin.Context) {
	snap, err := h.projects.Repair(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	ok(c, "修复已完成", snap)
}

// CompileState 返回编译循环的当前状态。
func (h *ProjectHandler) CompileState(c *gin.Context) {
	snap, err := h.projects.CompileState(userIDFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	ok(c, "success", snap)
}

// Artifact 下载最近一次编译成功的 PDF。
func (h *ProjectHandler) Artifact(c *gin.Context) {
	pdf, err := h.projects.Artifact(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+c.Param("id")+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Messages 返回项目的对话记录。
func (h *ProjectHandler) Messages(c *gin.Context) {
	msgs, err := h.projects.Messages(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, "ProjectHandler", err)
		return
	}
	ok(c, "success", msgs)
}
