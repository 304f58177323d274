// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// 文档处理状态
const (
	DocumentStatusProcessing = 0
	DocumentStatusIndexed    = 1
	DocumentStatusFailed     = 2
)

// Document 定义了 documents 表的 ORM 模型，记录用户上传的每一个源文件。
// 没有可提取文本的文档同样会保存，ChunkCount 为 0，状态为已索引。
type Document struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"userId"`
	FileName   string    `gorm:"type:varchar(255);not null" json:"fileName"`
	MediaType  string    `gorm:"type:varchar(128)" json:"mediaType"`
	StorageKey string    `gorm:"type:varchar(512);not null" json:"storageKey"`
	Status     int       `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: processing, 1: indexed, 2: failed
	ChunkCount int       `gorm:"not null;default:0" json:"chunkCount"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 对应于 document_chunks 表，保存切块后的文本及其向量。
// Embedding 在降级模式下为空数组，否则长度等于配置的向量维度。
type DocumentChunk struct {
	ID           uint                         `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID   string                       `gorm:"type:varchar(36);not null;index" json:"documentId"`
	UserID       uint                         `gorm:"not null;index" json:"userId"`
	ChunkIndex   int                          `gorm:"not null" json:"chunkIndex"`
	TextContent  string                       `gorm:"type:text" json:"textContent"`
	Embedding    datatypes.JSONSlice[float32] `gorm:"type:json" json:"-"`
	ModelVersion string                       `gorm:"type:varchar(64)" json:"modelVersion"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// HasEmbedding 判断该切块是否带有可用向量。
func (c DocumentChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// DocumentDTO 是返回给前端的文档列表项。
type DocumentDTO struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	MediaType  string    `json:"mediaType"`
	Status     int       `json:"status"`
	ChunkCount int       `json:"chunkCount"`
	CreatedAt  LocalTime `json:"createdAt"`
}

// ToDTO 转换为前端展示结构。
func (d Document) ToDTO() DocumentDTO {
	return DocumentDTO{
		ID:         d.ID,
		FileName:   d.FileName,
		MediaType:  d.MediaType,
		Status:     d.Status,
		ChunkCount: d.ChunkCount,
		CreatedAt:  LocalTime(d.CreatedAt),
	}
}
