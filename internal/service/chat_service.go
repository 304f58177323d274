package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"resume-forge/internal/model"
	"resume-forge/internal/pipeline"
	"resume-forge/internal/repository"
	"resume-forge/pkg/log"
)

// ErrEmptyMessage 表示聊天消息为空。
var ErrEmptyMessage = errors.New("message is empty")

// Attachment 是随聊天消息上传的文件，例如职位描述。
type Attachment struct {
	FileName  string
	MediaType string
	Data      []byte
}

// ChatRequest 是项目内的一次对话请求。
type ChatRequest struct {
	UserID     uint
	ProjectID  string
	Message    string
	Attachment *Attachment
}

// ChatReply 是对话的结果。
type ChatReply struct {
	Project       *model.Project `json:"project"`
	ContextSource string         `json:"contextSource"`
	Reply         string         `json:"reply"`
}

// ChatService 定义了项目对话操作的接口。
type ChatService interface {
	Send(ctx context.Context, req ChatRequest) (*ChatReply, error)
}

type chatService struct {
	projectRepo    repository.ProjectRepository
	transcriptRepo repository.TranscriptRepository
	retrieval      RetrievalService
	profiles       ProfileService
	generation     GenerationService
	extractor      pipeline.TextExtractor
	loop           CompileLoop
	locks          sync.Map // projectID -> *sync.Mutex
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	projectRepo repository.ProjectRepository,
	transcriptRepo repository.TranscriptRepository,
	retrieval RetrievalService,
	profiles ProfileService,
	generation GenerationService,
	extractor pipeline.TextExtractor,
	loop CompileLoop,
) ChatService {
	return &chatService{
		projectRepo:    projectRepo,
		transcriptRepo: transcriptRepo,
		retrieval:      retrieval,
		profiles:       profiles,
		generation:     generation,
		extractor:      extractor,
		loop:           loop,
	}
}

func (s *chatService) lock(projectID string) func() {
	v, _ := s.locks.LoadOrStore(projectID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Send 协调检索、生成和保存：项目为空时新建文档，否则整体替换为编辑后的文档，
// 之后防抖触发编译。
func (s *chatService) Send(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" && req.Attachment == nil {
		return nil, ErrEmptyMessage
	}

	unlock := s.lock(req.ProjectID)
	defer unlock()

	project, err := findOwnedProject(s.projectRepo, req.UserID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	// 1. 附件经 Tika 提取后并入指令
	instruction := message
	if req.Attachment != nil {
		text := s.extractor.Extract(ctx, bytes.NewReader(req.Attachment.Data), req.Attachment.FileName, req.Attachment.MediaType)
		if text != "" {
			instruction = fmt.Sprintf("%s\n\nAttached document (%s):\n%s", message, req.Attachment.FileName, text)
		} else {
			log.Warnw("[ChatService] 附件没有可提取的文本", "file_name", req.Attachment.FileName)
		}
	}

	// 2. 检索上下文
	rc, err := s.retrieval.Retrieve(ctx, req.UserID, instruction)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	// 3. 读取画像，不存在时只用检索内容
	var profileData *model.ProfileData
	if p, err := s.profiles.Get(req.UserID); err != nil {
		log.Warnw("[ChatService] 读取用户画像失败", "user_id", req.UserID, "error", err)
	} else if p != nil {
		d := p.Data.Data()
		profileData = &d
	}

	// 4. 生成
	kind := GenerateCreate
	if strings.TrimSpace(project.Markup) != "" {
		kind = GenerateEdit
	}
	markup, err := s.generation.Generate(ctx, GenerateInput{
		Kind:          kind,
		DocKind:       project.Kind,
		Instruction:   instruction,
		Context:       rc.Text,
		Profile:       profileData,
		CurrentMarkup: project.Markup,
	})
	if err != nil {
		return nil, err
	}

	// 5. 保存并记录对话
	if err := s.projectRepo.UpdateMarkup(project.ID, markup); err != nil {
		return nil, fmt.Errorf("failed to save markup: %w", err)
	}
	project.Markup = markup

	reply := "Created the document."
	if kind == GenerateEdit {
		reply = "Updated the document."
	}
	now := time.Now()
	if err := s.transcriptRepo.Append(context.Background(), project.ID,
		model.ChatMessage{Role: "user", Content: message, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: reply, Timestamp: now},
	); err != nil {
		log.Errorf("[ChatService] 保存对话记录失败: %v", err)
	}

	// 6. 防抖后编译
	s.loop.NotifyEdit(project.ID)

	log.Infof("[ChatService] 对话处理完成, projectID: %s, kind: %s, context: %s", project.ID, kind, rc.Source)
	return &ChatReply{Project: project, ContextSource: rc.Source, Reply: reply}, nil
}
