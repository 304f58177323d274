// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"

	"resume-forge/internal/config"
	"resume-forge/pkg/log"
)

// Request 描述一次文本生成调用。
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// JSON 为 true 时要求模型只返回一个 JSON 对象。
	JSON bool
}

// Completer 是单个模型提供方的最小接口。
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client 是业务层依赖的 LLM 接口。
type Client interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// ErrFallbackUnavailable 表示主模型限流但未配置备用模型。
var ErrFallbackUnavailable = errors.New("llm: primary rate limited and no fallback configured")

// Invoker 先调用主模型，仅在主模型返回限流信号时改用备用模型，且只尝试一次。
type Invoker struct {
	primary  Completer
	fallback Completer
}

// NewInvoker 组装主/备模型。fallback 可以为 nil。
func NewInvoker(primary, fallback Completer) *Invoker {
	return &Invoker{primary: primary, fallback: fallback}
}

// NewFromConfig 按配置创建 OpenAI 兼容主模型和 Anthropic 备用模型。
func NewFromConfig(cfg config.LLMConfig, fb config.LLMFallbackConfig) *Invoker {
	var fallback Completer
	if fb.APIKey != "" {
		fallback = NewAnthropicCompleter(fb)
	}
	return NewInvoker(NewOpenAICompleter(cfg), fallback)
}

var (
	sharedOnce    sync.Once
	sharedInvoker *Invoker
)

// Shared 返回进程级共享的 Invoker，只有第一次调用时传入的配置生效。
func Shared(cfg config.LLMConfig, fb config.LLMFallbackConfig) *Invoker {
	sharedOnce.Do(func() {
		sharedInvoker = NewFromConfig(cfg, fb)
	})
	return sharedInvoker
}

// Invoke 执行一次生成。非限流错误直接返回；备用模型的错误是最终结果。
func (i *Invoker) Invoke(ctx context.Context, req Request) (string, error) {
	out, err := i.primary.Complete(ctx, req)
	if err == nil {
		return out, nil
	}
	if !IsRateLimit(err) {
		return "", err
	}
	if i.fallback == nil {
		log.Warnw("[LLM] 主模型被限流且未配置备用模型", "error", err)
		return "", fmt.Errorf("%w: %v", ErrFallbackUnavailable, err)
	}

	log.Warnw("[LLM] 主模型被限流，切换到备用模型", "error", err)
	fbReq := req
	fbReq.Temperature = clampUnit(req.Temperature)
	out, fbErr := i.fallback.Complete(ctx, fbReq)
	if fbErr != nil {
		log.Errorw("[LLM] 备用模型调用失败", "error", fbErr)
		return "", fmt.Errorf("llm fallback failed: %w", fbErr)
	}
	return out, nil
}

var rateLimitPattern = regexp.MustCompile(`(?i)rate[ _]limit|too many requests|quota|\b429\b`)

// IsRateLimit 判断错误是否代表限流：HTTP 429，或错误文本中带有限流关键词。
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) && antErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}

func clampUnit(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

type openAICompleter struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewOpenAICompleter 创建 OpenAI 兼容接口的 Completer。
func NewOpenAICompleter(cfg config.LLMConfig) Completer {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &openAICompleter{cfg: cfg, client: openai.NewClientWithConfig(oc)}
}

func (c *openAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   c.cfg.Generation.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicCompleter struct {
	cfg    config.LLMFallbackConfig
	client anthropic.Client
}

// NewAnthropicCompleter 创建 Anthropic Completer，额外的 option 主要用于测试时替换地址。
func NewAnthropicCompleter(cfg config.LLMFallbackConfig, opts ...option.RequestOption) Completer {
	all := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &anthropicCompleter{cfg: cfg, client: anthropic.NewClient(all...)}
}

func (c *anthropicCompleter) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\nRespond with a single JSON object only.")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}
	return sb.String(), nil
}
