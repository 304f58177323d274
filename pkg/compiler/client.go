// Package compiler 提供了调用远程 LaTeX 编译服务的客户端。
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"resume-forge/internal/config"
	"resume-forge/pkg/log"
)

// CompileError 表示一次编译失败。Transport 为 true 时说明服务不可达或响应异常，
// 这种情况下诊断信息不是来自 LaTeX，不应触发自动修复。
type CompileError struct {
	Diagnostic string
	Transport  bool
}

func (e *CompileError) Error() string {
	if e.Transport {
		return "compile service unavailable: " + e.Diagnostic
	}
	return "compile failed: " + e.Diagnostic
}

// Client 是编译服务的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的编译服务客户端。
func NewClient(cfg config.CompilerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type compileFailure struct {
	Error string `json:"error"`
	Log   string `json:"log"`
}

// Compile 把 markup 提交给编译服务，成功时返回 PDF 字节。
// 所有失败都以 *CompileError 返回。
func (c *Client) Compile(ctx context.Context, markup string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/compile", strings.NewReader(markup))
	if err != nil {
		return nil, &CompileError{Diagnostic: err.Error(), Transport: true}
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Errorf("[Compiler] 调用编译服务失败: %v", err)
		return nil, &CompileError{Diagnostic: err.Error(), Transport: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CompileError{Diagnostic: "读取编译服务响应失败: " + err.Error(), Transport: true}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if len(data) == 0 {
			return nil, &CompileError{Diagnostic: "编译服务返回了空的 PDF", Transport: true}
		}
		return data, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &CompileError{Diagnostic: diagnosticFrom(data)}
	default:
		return nil, &CompileError{
			Diagnostic: fmt.Sprintf("编译服务返回状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			Transport:  true,
		}
	}
}

// diagnosticFrom 优先使用 JSON 中的 log/error 字段，否则返回原始文本。
func diagnosticFrom(data []byte) string {
	var f compileFailure
	if err := json.Unmarshal(data, &f); err == nil {
		if strings.TrimSpace(f.Log) != "" {
			return strings.TrimSpace(f.Log)
		}
		if strings.TrimSpace(f.Error) != "" {
			return strings.TrimSpace(f.Error)
		}
	}
	return strings.TrimSpace(string(data))
}
