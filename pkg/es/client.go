// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"resume-forge/internal/config"
	"resume-forge/internal/model"
	"resume-forge/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并按向量维度确保切块索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(client, esCfg.IndexName, dims)
}

// chunkMapping 返回切块索引的 mapping，向量维度来自 embedding 配置。
func chunkMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"user_id": { "type": "long" }
			}
		}
	}`, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(chunkMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功 (dims=%d)", indexName, dims)
	return nil
}

// ErrIndexUnavailable 表示 Elasticsearch 客户端没有初始化。
var ErrIndexUnavailable = errors.New("elasticsearch client not initialized")

// ChunkIndex 是切块向量索引。
type ChunkIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewChunkIndex 创建一个绑定到指定索引的 ChunkIndex。
func NewChunkIndex(client *elasticsearch.Client, indexName string) *ChunkIndex {
	return &ChunkIndex{client: client, indexName: indexName}
}

// VectorID 返回切块在索引中的文档 ID。
func VectorID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// IndexChunks 将切块逐个写入 Elasticsearch。没有向量的切块由调用方过滤。
func (c *ChunkIndex) IndexChunks(ctx context.Context, chunks []model.EsChunk) error {
	if c.client == nil {
		return ErrIndexUnavailable
	}
	for i, chunk := range chunks {
		docBytes, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		req := esapi.IndexRequest{
			Index:      c.indexName,
			DocumentID: chunk.VectorID,
			Body:       bytes.NewReader(docBytes),
		}
		if i == len(chunks)-1 {
			req.Refresh = "true"
		}

		res, err := req.Do(ctx, c.client)
		if err != nil {
			return err
		}
		if res.IsError() {
			log.Errorf("索引切块到 Elasticsearch 出错: %s", res.String())
			res.Body.Close()
			return fmt.Errorf("failed to index chunk %s", chunk.VectorID)
		}
		res.Body.Close()
	}
	return nil
}

// SearchKNN 在用户自己的切块中做 k 近邻检索，结果按相似度从高到低排列。
func (c *ChunkIndex) SearchKNN(ctx context.Context, userID uint, vector []float32, k int) ([]model.ChunkHit, error) {
	if c.client == nil {
		return nil, ErrIndexUnavailable
	}
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"user_id": userID},
			},
		},
		"size":    k,
		"_source": []string{"document_id", "chunk_index", "text_content"},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(c.indexName),
		c.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s %s", res.Status(), string(body))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunk `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.ChunkHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.ChunkHit{
			DocumentID:  h.Source.DocumentID,
			ChunkIndex:  h.Source.ChunkIndex,
			TextContent: h.Source.TextContent,
			Score:       h.Score,
		})
	}
	return hits, nil
}

// DeleteByDocument 删除某个文档的全部切块向量。
func (c *ChunkIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if c.client == nil {
		return ErrIndexUnavailable
	}
	body := fmt.Sprintf(`{"query":{"term":{"document_id":%q}}}`, documentID)
	res, err := c.client.DeleteByQuery(
		[]string{c.indexName},
		strings.NewReader(body),
		c.client.DeleteByQuery.WithContext(ctx),
		c.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete_by_query failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch delete_by_query returned an error: %s", res.String())
	}
	return nil
}
