// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"resume-forge/internal/config"
	"resume-forge/internal/model"
	"resume-forge/internal/repository"
	"resume-forge/pkg/embedding"
	"resume-forge/pkg/log"
)

// 检索上下文的来源
const (
	SourceSimilarity = "similarity"
	SourceRecency    = "recency"
)

var (
	errEmptyQueryVector = errors.New("empty query vector")
	// 未向量化的切块不在索引里，零命中时由最近文档兜底
	errNoHits = errors.New("no similarity hits")
)

// Snippet 是一段检索到的文本。
type Snippet struct {
	DocumentID string  `json:"documentId"`
	ChunkIndex int     `json:"chunkIndex"`
	Text       string  `json:"text"`
	Score      float64 `json:"score,omitempty"`
}

// RetrievedContext 是为一次生成请求组装的上下文。Text 为各片段以换行拼接的结果。
type RetrievedContext struct {
	Source   string    `json:"source"`
	Snippets []Snippet `json:"snippets"`
	Text     string    `json:"text"`
}

// ChunkSearcher 在用户的切块中做向量检索。
type ChunkSearcher interface {
	SearchKNN(ctx context.Context, userID uint, vector []float32, k int) ([]model.ChunkHit, error)
}

// RetrievalService 接口定义了上下文检索操作。
type RetrievalService interface {
	Retrieve(ctx context.Context, userID uint, prompt string) (*RetrievedContext, error)
}

type retrievalService struct {
	embedder embedding.Client
	searcher ChunkSearcher
	docRepo  repository.DocumentRepository
	cfg      config.RetrievalConfig
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embedder embedding.Client, searcher ChunkSearcher, docRepo repository.DocumentRepository, cfg config.RetrievalConfig) RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.RecentDocs <= 0 {
		cfg.RecentDocs = 5
	}
	return &retrievalService{embedder: embedder, searcher: searcher, docRepo: docRepo, cfg: cfg}
}

// Retrieve 优先做相似度检索；向量化失败、向量为空、索引不可用或没有命中时，回退为最近上传的文档全文。
// 两条路径的结果不会混合。
func (s *retrievalService) Retrieve(ctx context.Context, userID uint, prompt string) (*RetrievedContext, error) {
	rc, err := s.similarity(ctx, userID, prompt)
	if err == nil {
		log.Infof("[RetrievalService] 相似度检索命中 %d 个片段, userID: %d", len(rc.Snippets), userID)
		return rc, nil
	}

	log.Warnw("[RetrievalService] 相似度检索不可用，回退到最近文档", "user_id", userID, "error", err)
	return s.recency(userID)
}

func (s *retrievalService) similarity(ctx context.Context, userID uint, prompt string) (*RetrievedContext, error) {
	vector, err := s.embedder.CreateEmbedding(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	if len(vector) == 0 {
		return nil, errEmptyQueryVector
	}
	hits, err := s.searcher.SearchKNN(ctx, userID, vector, s.cfg.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, errNoHits
	}

	snippets := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, Snippet{
			DocumentID: h.DocumentID,
			ChunkIndex: h.ChunkIndex,
			Text:       h.TextContent,
			Score:      h.Score,
		})
	}
	return newRetrievedContext(SourceSimilarity, snippets), nil
}

func (s *retrievalService) recency(userID uint) (*RetrievedContext, error) {
	docs, err := s.docRepo.FindRecent(userID, s.cfg.RecentDocs)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent documents: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	chunks, err := s.docRepo.FindChunks(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load document chunks: %w", err)
	}

	snippets := make([]Snippet, 0, len(chunks))
	for _, c := range chunks {
		snippets = append(snippets, Snippet{DocumentID: c.DocumentID, ChunkIndex: c.ChunkIndex, Text: c.TextContent})
	}
	return newRetrievedContext(SourceRecency, snippets), nil
}

func newRetrievedContext(source string, snippets []Snippet) *RetrievedContext {
	texts := make([]string, 0, len(snippets))
	for _, sn := range snippets {
		texts = append(texts, sn.Text)
	}
	return &RetrievedContext{Source: source, Snippets: snippets, Text: strings.Join(texts, "\n")}
}
