package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"resume-forge/internal/service"
	"resume-forge/pkg/log"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// 心跳间隔
const pingInterval = 30 * time.Second

// ChatHandler 负责项目内的对话请求以及编译事件推送。
type ChatHandler struct {
	chatService service.ChatService
	projects    service.ProjectService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, projects service.ProjectService) *ChatHandler {
	return &ChatHandler{chatService: chatService, projects: projects}
}

// ChatMessageRequest 定义了 JSON 对话请求体结构。
type ChatMessageRequest struct {
	Message string `json:"message"`
}

// Send 处理一条对话消息。支持 JSON 请求，或带 attachment 文件的 multipart 表单。
func (h *ChatHandler) Send(c *gin.Context) {
	req := service.ChatRequest{UserID: userIDFrom(c), ProjectID: c.Param("id")}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req.Message = c.PostForm("message")
		if fh, err := c.FormFile("attachment"); err == nil {
			if fh.Size > maxUploadSize {
				fail(c, http.StatusRequestEntityTooLarge, "附件过大")
				return
			}
			f, err := fh.Open()
			if err != nil {
				fail(c, http.StatusBadRequest, "无法读取附件")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				fail(c, http.StatusBadRequest, "无法读取附件")
				return
			}
			req.Attachment = &service.Attachment{FileName: fh.Filename, MediaType: fh.Header.Get("Content-Type"), Data: data}
		}
	} else {
		var body ChatMessageRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			fail(c, http.StatusBadRequest, "无效的请求负载")
			return
		}
		req.Message = body.Message
	}

	reply, err := h.chatService.Send(c.Request.Context(), req)
	if err != nil {
		respondError(c, "ChatHandler", err)
		return
	}
	ok(c, "success", reply)
}

// Events 通过 WebSocket 推送项目的编译状态变化。
func (h *ChatHandler) Events(c *gin.Context) {
	projectID := c.Param("id")
	events, cancel, err := h.projects.Subscribe(userIDFrom(c), projectID)
	if err != nil {
		respondError(c, "ChatHandler", err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[ChatHandler] 事件连接已建立, projectID: %s", projectID)

	// 客户端不发送消息，读循环只用于感知断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if snap, err := h.projects.CompileState(userIDFrom(c), projectID); err == nil {
		_ = conn.WriteJSON(gin.H{"type": "state", "data": snap})
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(gin.H{"type": "event", "data": ev}); err != nil {
				log.Warnf("[ChatHandler] 推送事件失败: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			log.Infof("[ChatHandler] 事件连接已关闭, projectID: %s", projectID)
			return
		}
	}
}
