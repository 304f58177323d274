// Package pipeline 定义了文档入库的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"resume-forge/internal/model"
	"resume-forge/internal/repository"
	"resume-forge/pkg/embedding"
	"resume-forge/pkg/es"
	"resume-forge/pkg/log"
	"resume-forge/pkg/storage"
	"resume-forge/pkg/tasks"
)

// TextExtractor 从原始文件中提取纯文本，失败时返回空字符串。
type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader, fileName, mediaType string) string
}

// ChunkIndexer 是切块向量索引。
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, chunks []model.EsChunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Options 配置切块和向量化行为。
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Concurrency  int
	RateLimit    float64 // 每秒 embedding 请求数，0 表示不限速
	ModelVersion string
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	extractor TextExtractor
	embedder  embedding.Client
	store     storage.ObjectStore
	index     ChunkIndexer
	docRepo   repository.DocumentRepository
	opts      Options
	limiter   *rate.Limiter
	onIndexed func(ctx context.Context, userID uint)
}

// NewProcessor 创建一个新的 Processor 实例。切块参数不合法时返回 ErrInvalidChunkConfig。
func NewProcessor(
	extractor TextExtractor,
	embedder embedding.Client,
	store storage.ObjectStore,
	index ChunkIndexer,
	docRepo repository.DocumentRepository,
	opts Options,
) (*Processor, error) {
	if err := ValidateChunkConfig(opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	p := &Processor{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		index:     index,
		docRepo:   docRepo,
		opts:      opts,
	}
	if opts.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return p, nil
}

// OnIndexed 注册文档入库完成后的回调，用于刷新用户画像。
func (p *Processor) OnIndexed(fn func(ctx context.Context, userID uint)) {
	p.onIndexed = fn
}

// Process 是文档处理的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIngestTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, FileName: %s, UserID: %d", task.DocumentID, task.FileName, task.UserID)

	// 1. 从对象存储下载文件
	log.Infof("[Processor] 步骤1: 从对象存储下载文件, Key: %s", task.StorageKey)
	data, err := p.store.Get(ctx, task.StorageKey)
	if err != nil {
		log.Errorf("[Processor] 下载文件失败, Key: %s, Error: %v", task.StorageKey, err)
		p.markFailed(task.DocumentID)
		return fmt.Errorf("下载文件失败: %w", err)
	}

	// 2. 提取文本，失败时按空文本继续
	log.Info("[Processor] 步骤2: 提取文本内容")
	text := p.extractor.Extract(ctx, bytes.NewReader(data), task.FileName, task.MediaType)
	log.Infof("[Processor] 步骤2: 文本提取完成, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 3. 文本切块
	chunks, err := SplitText(text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	if err != nil {
		p.markFailed(task.DocumentID)
		return err
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 4. 逐块向量化，失败的块使用空向量
	vectors := p.embedChunks(ctx, chunks)

	// 处理期间文档可能已被删除，此时不再写入切块
	if p.documentGone(task.DocumentID) {
		log.Infof("[Processor] 文档已删除，放弃入库, DocumentID: %s", task.DocumentID)
		return nil
	}

	// 5. 写入数据库（全部切块）
	records := make([]*model.DocumentChunk, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, &model.DocumentChunk{
			DocumentID:   task.DocumentID,
			UserID:       task.UserID,
			ChunkIndex:   i,
			TextContent:  chunk,
			Embedding:    vectors[i],
			ModelVersion: p.opts.ModelVersion,
		})
	}
	if err := p.docRepo.ReplaceChunks(task.DocumentID, records); err != nil {
		log.Errorf("[Processor] 步骤5: 保存文本分块失败, Error: %v", err)
		p.markFailed(task.DocumentID)
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}
	log.Infof("[Processor] 步骤5: 成功将 %d 个分块存入数据库", len(records))

	// 6. 索引有向量的切块；索引失败不影响入库，检索时会回退到最近文档
	p.indexChunks(ctx, task, records)

	// 写入期间被删除时清理刚写入的切块和向量
	if p.documentGone(task.DocumentID) {
		log.Infof("[Processor] 文档在入库期间被删除，清理切块, DocumentID: %s", task.DocumentID)
		p.discard(ctx, task.DocumentID)
		return nil
	}

	if err := p.docRepo.UpdateStatus(task.DocumentID, model.DocumentStatusIndexed, len(records)); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	log.Infof("[Processor] 文档处理成功完成, DocumentID: %s", task.DocumentID)

	if p.onIndexed != nil {
		p.onIndexed(ctx, task.UserID)
	}
	return nil
}

// embedChunks 并发地为每个切块生成向量。任何错误或维度不符都只影响该切块，返回空向量。
func (p *Processor) embedChunks(ctx context.Context, chunks []string) [][]float32 {
	vectors := make([][]float32, len(chunks))
	dims := p.embedder.Dimensions()

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vectors[i] = []float32{}
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					log.Warnw("[Processor] 等待限速器失败，切块使用空向量", "chunk", i, "error", err)
					return nil
				}
			}
			vec, err := p.embedder.CreateEmbedding(ctx, chunk)
			if err != nil {
				log.Warnw("[Processor] 切块向量化失败，使用空向量", "chunk", i, "error", err)
				return nil
			}
			if dims > 0 && len(vec) != dims {
				log.Warnw("[Processor] 向量维度不符，使用空向量", "chunk", i, "want", dims, "got", len(vec))
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()
	return vectors
}

func (p *Processor) indexChunks(ctx context.Context, task tasks.DocumentIngestTask, records []*model.DocumentChunk) {
	if err := p.index.DeleteByDocument(ctx, task.DocumentID); err != nil {
		log.Warnw("[Processor] 清理旧的切块向量失败", "document_id", task.DocumentID, "error", err)
	}

	esChunks := make([]model.EsChunk, 0, len(records))
	for _, r := range records {
		if !r.HasEmbedding() {
			continue
		}
		esChunks = append(esChunks, model.EsChunk{
			VectorID:     es.VectorID(r.DocumentID, r.ChunkIndex),
			DocumentID:   r.DocumentID,
			ChunkIndex:   r.ChunkIndex,
			TextContent:  r.TextContent,
			Vector:       r.Embedding,
			ModelVersion: r.ModelVersion,
			UserID:       r.UserID,
		})
	}
	if len(esChunks) == 0 {
		log.Warnw("[Processor] 没有可索引的向量，文档仅保存到数据库", "document_id", task.DocumentID)
		return
	}
	if err := p.index.IndexChunks(ctx, esChunks); err != nil {
		log.Warnw("[Processor] 索引切块到 Elasticsearch 失败", "document_id", task.DocumentID, "error", err)
		return
	}
	log.Infof("[Processor] 步骤6: %d/%d 个分块已索引", len(esChunks), len(records))
}

// documentGone 报告文档记录是否已被删除。查询出错时按仍存在处理。
func (p *Processor) documentGone(documentID string) bool {
	_, err := p.docRepo.FindByID(documentID)
	if err == nil {
		return false
	}
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return true
	}
	log.Warnw("[Processor] 查询文档失败", "document_id", documentID, "error", err)
	return false
}

func (p *Processor) discard(ctx context.Context, documentID string) {
	if err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		log.Warnw("[Processor] 清理已删除文档的向量失败", "document_id", documentID, "error", err)
	}
	if err := p.docRepo.Delete(documentID); err != nil {
		log.Warnw("[Processor] 清理已删除文档的切块失败", "document_id", documentID, "error", err)
	}
}

func (p *Processor) markFailed(documentID string) {
	if err := p.docRepo.UpdateStatus(documentID, model.DocumentStatusFailed, 0); err != nil {
		log.Errorf("[Processor] 更新文档失败状态出错, DocumentID: %s, Error: %v", documentID, err)
	}
}
