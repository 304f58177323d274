// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"resume-forge/internal/config"
	"resume-forge/pkg/log"
	"resume-forge/pkg/tasks"
)

// 同一文档连续失败达到该次数后提交 offset，不再重试。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentIngestTask) error
}

// AttemptCounter 记录每个任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type redisAttemptCounter struct {
	rdb *redis.Client
}

// NewRedisAttemptCounter 使用 Redis 保存失败计数，计数 24 小时后过期。
func NewRedisAttemptCounter(rdb *redis.Client) AttemptCounter {
	return &redisAttemptCounter{rdb: rdb}
}

func (c *redisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (c *redisAttemptCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

var producer *kafka.Writer

// ErrProducerUnavailable 表示生产者未初始化。
var ErrProducerUnavailable = errors.New("kafka producer not initialized")

// InitProducer 初始化 Kafka 生产者。brokers 为空时不启用 Kafka。
func InitProducer(cfg config.KafkaConfig) {
	if cfg.Brokers == "" {
		log.Warnf("未配置 Kafka brokers，文档将在进程内处理")
		return
	}
	producer = &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceIngestTask 发送一个文档入库任务到 Kafka。
func ProduceIngestTask(ctx context.Context, task tasks.DocumentIngestTask) error {
	if producer == nil {
		return ErrProducerUnavailable
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

// CloseProducer 关闭生产者。
func CloseProducer() {
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
}

func attemptsKey(documentID string) string {
	return fmt.Sprintf("kafka:attempts:%s", documentID)
}

// handleMessage 处理一条消息并返回是否应该提交 offset。
func handleMessage(ctx context.Context, value []byte, processor TaskProcessor, counter AttemptCounter) bool {
	var task tasks.DocumentIngestTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infof("开始处理文档任务: DocumentID=%s, FileName=%s", task.DocumentID, task.FileName)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理文档任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)
		attempts, incErr := counter.Incr(ctx, attemptsKey(task.DocumentID))
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("文档任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%s", maxAttempts, task.DocumentID)
			return true
		}
		return false
	}

	log.Infof("文档任务处理成功: DocumentID=%s", task.DocumentID)
	_ = counter.Reset(ctx, attemptsKey(task.DocumentID))
	return true
}

// StartConsumer 启动一个 Kafka 消费者来处理文档任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, counter AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		if handleMessage(ctx, m.Value, processor, counter) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}
