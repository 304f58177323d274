// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"resume-forge/internal/model"
)

const (
	transcriptLimit = 50
	transcriptTTL   = 30 * 24 * time.Hour
)

// TranscriptRepository 保存每个项目的对话记录。
type TranscriptRepository interface {
	Get(ctx context.Context, projectID string) ([]model.ChatMessage, error)
	Append(ctx context.Context, projectID string, messages ...model.ChatMessage) error
}

type redisTranscriptRepository struct {
	redisClient *redis.Client
}

// NewTranscriptRepository 创建一个新的 TranscriptRepository 实例。
func NewTranscriptRepository(redisClient *redis.Client) TranscriptRepository {
	return &redisTranscriptRepository{redisClient: redisClient}
}

func transcriptKey(projectID string) string {
	return fmt.Sprintf("project:%s:transcript", projectID)
}

// Get 从 Redis 获取项目对话记录。
func (r *redisTranscriptRepository) Get(ctx context.Context, projectID string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, transcriptKey(projectID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return messages, nil
}

// Append 追加消息，只保留最近 50 条。
func (r *redisTranscriptRepository) Append(ctx context.Context, projectID string, messages ...model.ChatMessage) error {
	history, err := r.Get(ctx, projectID)
	if err != nil {
		return err
	}
	history = append(history, messages...)
	if len(history) > transcriptLimit {
		history = history[len(history)-transcriptLimit:]
	}
	jsonData, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	if err := r.redisClient.Set(ctx, transcriptKey(projectID), jsonData, transcriptTTL).Err(); err != nil {
		return fmt.Errorf("failed to set transcript: %w", err)
	}
	return nil
}
