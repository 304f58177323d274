package repository

import (
	"errors"

	"gorm.io/gorm"

	"resume-forge/internal/model"
)

// ErrDocumentNotFound 表示文档不存在或不属于当前用户。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 定义了对 documents 和 document_chunks 表的数据操作接口。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id string) (*model.Document, error)
	// FindByUser 按创建时间倒序返回用户的全部文档。
	FindByUser(userID uint) ([]model.Document, error)
	// FindRecent 按创建时间倒序返回用户最近的 limit 个文档。
	FindRecent(userID uint, limit int) ([]model.Document, error)
	UpdateStatus(id string, status, chunkCount int) error
	// Delete 删除文档及其全部切块。
	Delete(id string) error

	// ReplaceChunks 在一个事务中删除文档已有的切块并写入新的切块。
	ReplaceChunks(documentID string, chunks []*model.DocumentChunk) error
	// FindChunks 返回指定文档的切块，按 documentIDs 的顺序排列，每个文档内按 chunk_index 升序。
	FindChunks(documentIDs []string) ([]model.DocumentChunk, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) FindByID(id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByUser(userID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) FindRecent(userID uint, limit int) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&docs).Error
	return docs, err
}

func (r *documentRepository) UpdateStatus(id string, status, chunkCount int) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "chunk_count": chunkCount}).Error
}

func (r *documentRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Document{}).Error
	})
}

func (r *documentRepository) ReplaceChunks(documentID string, chunks []*model.DocumentChunk) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 100).Error // 每100条记录一批
	})
}

func (r *documentRepository) FindChunks(documentIDs []string) ([]model.DocumentChunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var chunks []model.DocumentChunk
	if err := r.db.Where("document_id IN ?", documentIDs).Order("chunk_index ASC").Find(&chunks).Error; err != nil {
		return nil, err
	}
	return OrderChunks(documentIDs, chunks), nil
}

// OrderChunks 把切块按 documentIDs 的顺序分组，组内保持 chunk_index 升序。
func OrderChunks(documentIDs []string, chunks []model.DocumentChunk) []model.DocumentChunk {
	byDoc := make(map[string][]model.DocumentChunk, len(documentIDs))
	for _, c := range chunks {
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c)
	}
	ordered := make([]model.DocumentChunk, 0, len(chunks))
	for _, id := range documentIDs {
		ordered = append(ordered, byDoc[id]...)
	}
	return ordered
}
