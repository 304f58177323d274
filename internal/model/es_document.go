package model

// ChunkHit 是一次相似度检索命中的切块。
type ChunkHit struct {
	DocumentID  string  `json:"documentId"`
	ChunkIndex  int     `json:"chunkIndex"`
	TextContent string  `json:"textContent"`
	Score       float64 `json:"score"`
}

// EsChunk 定义了存储在 Elasticsearch 中的切块结构。
type EsChunk struct {
	VectorID     string    `json:"vector_id"` // documentId + "_" + chunkIndex
	DocumentID   string    `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector,omitempty"`
	ModelVersion string    `json:"model_version"`
	UserID       uint      `json:"user_id"`
}
