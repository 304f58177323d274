package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-forge/internal/service"
	"resume-forge/pkg/log"
)

// 单个上传文件的大小上限
const maxUploadSize = 20 << 20

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Upload 处理文档上传请求，文件随后在后台入库。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "缺少上传文件")
		return
	}
	if fileHeader.Size > maxUploadSize {
		fail(c, http.StatusRequestEntityTooLarge, "文件过大")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		fail(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}

	userID := userIDFrom(c)
	log.Infof("[DocumentHandler] 收到上传请求, userID: %d, fileName: %s", userID, fileHeader.Filename)
	doc, err := h.docService.Upload(c.Request.Context(), userID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "文件已上传，正在处理", "data": doc.ToDTO()})
}

// List 处理获取用户文档列表的请求。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(userIDFrom(c))
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	ok(c, "获取文档列表成功", docs)
}

// Delete 处理删除文档的请求。
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.docService.Delete(c.Request.Context(), userIDFrom(c), c.Param("id")); err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	ok(c, "文档删除成功", nil)
}

// Reprocess 处理重新入库的请求。
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	if err := h.docService.Reprocess(c.Request.Context(), userIDFrom(c), c.Param("id")); err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	ok(c, "文档已重新提交处理", nil)
}

// Download 生成原始文件的下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	info, err := h.docService.GenerateDownloadURL(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	ok(c, "文件下载链接生成成功", info)
}

// Preview 返回文件的纯文本内容。
func (h *DocumentHandler) Preview(c *gin.Context) {
	info, err := h.docService.GetPreview(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	ok(c, "文件预览内容获取成功", info)
}
