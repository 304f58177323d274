package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"resume-forge/internal/model"
	"resume-forge/internal/pipeline"
	"resume-forge/internal/repository"
	"resume-forge/pkg/log"
	"resume-forge/pkg/storage"
	"resume-forge/pkg/tasks"
)

// ErrEmptyFile 表示上传了空文件。
var ErrEmptyFile = errors.New("uploaded file is empty")

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
}

// PreviewInfoDTO 封装了文件预览所需的信息。
type PreviewInfoDTO struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// TaskProducer 把入库任务投递到队列。
type TaskProducer func(ctx context.Context, task tasks.DocumentIngestTask) error

// TaskProcessor 在进程内执行入库任务。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIngestTask) error
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, userID uint, fileName, mediaType string, data []byte) (*model.Document, error)
	List(userID uint) ([]model.DocumentDTO, error)
	Delete(ctx context.Context, userID uint, documentID string) error
	Reprocess(ctx context.Context, userID uint, documentID string) error
	GenerateDownloadURL(ctx context.Context, userID uint, documentID string) (*DownloadInfoDTO, error)
	GetPreview(ctx context.Context, userID uint, documentID string) (*PreviewInfoDTO, error)
}

type documentService struct {
	docRepo   repository.DocumentRepository
	store     storage.ObjectStore
	index     pipeline.ChunkIndexer
	extractor pipeline.TextExtractor
	produce   TaskProducer
	processor TaskProcessor
	profiles  ProfileService
}

// NewDocumentService 创建一个新的 DocumentService 实例。
// 投递任务失败时会退回到进程内处理。
func NewDocumentService(
	docRepo repository.DocumentRepository,
	store storage.ObjectStore,
	index pipeline.ChunkIndexer,
	extractor pipeline.TextExtractor,
	produce TaskProducer,
	processor TaskProcessor,
	profiles ProfileService,
) DocumentService {
	return &documentService{
		docRepo:   docRepo,
		store:     store,
		index:     index,
		extractor: extractor,
		produce:   produce,
		processor: processor,
		profiles:  profiles,
	}
}

// Upload 保存原始文件和文档记录，然后异步入库。
func (s *documentService) Upload(ctx context.Context, userID uint, fileName, mediaType string, data []byte) (*model.Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	fileName = filepath.Base(fileName)
	doc := &model.Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  fileName,
		MediaType: mediaType,
		Status:    model.DocumentStatusProcessing,
	}
	doc.StorageKey = storage.DocumentKey(userID, doc.ID, fileName)

	log.Infof("[DocumentService] 保存上传文件, userID: %d, fileName: %s, size: %d", userID, fileName, len(data))
	if err := s.store.Put(ctx, doc.StorageKey, data, mediaType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	if err := s.docRepo.Create(doc); err != nil {
		_ = s.store.Remove(ctx, doc.StorageKey)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.enqueue(ctx, doc)
	return doc, nil
}

func (s *documentService) enqueue(ctx context.Context, doc *model.Document) {
	task := tasks.DocumentIngestTask{
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		FileName:   doc.FileName,
		MediaType:  doc.MediaType,
		StorageKey: doc.StorageKey,
	}
	if s.produce != nil {
		err := s.produce(ctx, task)
		if err == nil {
			log.Infof("[DocumentService] 入库任务已投递到 Kafka, DocumentID: %s", doc.ID)
			return
		}
		log.Warnw("[DocumentService] 投递入库任务失败，改为进程内处理", "document_id", doc.ID, "error", err)
	}
	go func() {
		if err := s.processor.Process(context.Background(), task); err != nil {
			log.Errorf("[DocumentService] 进程内入库失败, DocumentID: %s, Error: %v", doc.ID, err)
		}
	}()
}

func (s *documentService) List(userID uint) ([]model.DocumentDTO, error) {
	docs, err := s.docRepo.FindByUser(userID)
	if err != nil {
		return nil, err
	}
	dtos := make([]model.DocumentDTO, 0, len(docs))
	for _, d := range docs {
		dtos = append(dtos, d.ToDTO())
	}
	return dtos, nil
}

// findOwned 返回属于 userID 的文档，其他用户的文档按不存在处理。
func (s *documentService) findOwned(userID uint, documentID string) (*model.Document, error) {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, repository.ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除文档的记录、向量和原始文件，然后刷新用户画像。
func (s *documentService) Delete(ctx context.Context, userID uint, documentID string) error {
	doc, err := s.findOwned(userID, documentID)
	if err != nil {
		return err
	}
	if err := s.docRepo.Delete(doc.ID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := s.index.DeleteByDocument(ctx, doc.ID); err != nil {
		log.Warnw("[DocumentService] 删除切块向量失败", "document_id", doc.ID, "error", err)
	}
	if err := s.store.Remove(ctx, doc.StorageKey); err != nil {
		log.Warnw("[DocumentService] 删除原始文件失败", "key", doc.StorageKey, "error", err)
	}
	log.Infof("[DocumentService] 文档已删除, DocumentID: %s", doc.ID)

	if _, err := s.profiles.Refresh(ctx, userID); err != nil {
		log.Warnw("[DocumentService] 删除文档后刷新画像失败", "user_id", userID, "error", err)
	}
	return nil
}

// Reprocess 重新执行文档的入库流程。
func (s *documentService) Reprocess(ctx context.Context, userID uint, documentID string) error {
	doc, err := s.findOwned(userID, documentID)
	if err != nil {
		return err
	}
	if err := s.docRepo.UpdateStatus(doc.ID, model.DocumentStatusProcessing, doc.ChunkCount); err != nil {
		return err
	}
	s.enqueue(ctx, doc)
	return nil
}

// GenerateDownloadURL 生成原始文件的临时下载链接，有效期为1小时。
func (s *documentService) GenerateDownloadURL(ctx context.Context, userID uint, documentID string) (*DownloadInfoDTO, error) {
	doc, err := s.findOwned(userID, documentID)
	if err != nil {
		return nil, err
	}
	url, err := s.store.PresignedURL(ctx, doc.StorageKey, time.Hour)
	if err != nil {
		return nil, err
	}
	return &DownloadInfoDTO{FileName: doc.FileName, DownloadURL: url}, nil
}

// GetPreview 获取文件的纯文本预览内容。
func (s *documentService) GetPreview(ctx context.Context, userID uint, documentID string) (*PreviewInfoDTO, error) {
	doc, err := s.findOwned(userID, documentID)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, err
	}
	return &PreviewInfoDTO{
		FileName: doc.FileName,
		Content:  s.extractor.Extract(ctx, bytes.NewReader(data), doc.FileName, doc.MediaType),
	}, nil
}
