// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"resume-forge/internal/config"
	"resume-forge/pkg/log"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Extract 提取文件中的纯文本，并把连续空白折叠为单个空格。
// 任何失败（网络、非 200、读取失败）都只记录日志并返回空字符串。
func (c *Client) Extract(ctx context.Context, r io.Reader, fileName, mediaType string) string {
	text, err := c.extractRaw(ctx, r, fileName, mediaType)
	if err != nil {
		log.Warnw("[Tika] 文本提取失败，按空文本处理", "file_name", fileName, "error", err)
		return ""
	}
	return CollapseWhitespace(text)
}

func (c *Client) extractRaw(ctx context.Context, r io.Reader, fileName, mediaType string) (string, error) {
	if c.serverURL == "" {
		return "", fmt.Errorf("未配置 Tika 服务地址")
	}
	contentType := mediaType
	if contentType == "" {
		contentType = detectMimeType(fileName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", r)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return string(body), nil
}

// CollapseWhitespace 把所有空白序列替换为单个空格并去掉首尾空白。
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
