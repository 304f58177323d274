// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"resume-forge/internal/config"
	"resume-forge/pkg/log"
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *openai.Client
}

// NewClient creates an embedding client against any OpenAI-compatible endpoint.
func NewClient(cfg config.EmbeddingConfig) Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
	}
}

func (c *openAICompatibleClient) Dimensions() int {
	return c.cfg.Dimensions
}

// CreateEmbedding returns the vector for a single text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, fmt.Errorf("received empty embedding from api")
	}

	vec := resp.Data[0].Embedding
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", c.cfg.Dimensions, len(vec))
	}

	log.Infof("[EmbeddingClient] 成功从 Embedding API 获取向量, 维度: %d", len(vec))
	return vec, nil
}
