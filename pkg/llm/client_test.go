package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-forge/internal/config"
)

type fakeCompleter struct {
	out   string
	err   error
	calls int
	last  Request
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.calls++
	f.last = req
	return f.out, f.err
}

func TestInvoke_PrimarySuccess(t *testing.T) {
	primary := &fakeCompleter{out: "hello"}
	fallback := &fakeCompleter{out: "unused"}
	out, err := NewInvoker(primary, fallback).Invoke(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 0, fallback.calls)
}

func TestInvoke_RateLimitUsesFallbackOnce(t *testing.T) {
	primary := &fakeCompleter{err: errors.New("Rate limit reached for requests")}
	fallback := &fakeCompleter{out: "from fallback"}
	out, err := NewInvoker(primary, fallback).Invoke(context.Background(), Request{Prompt: "hi", Temperature: 1.4})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", out)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 1.0, fallback.last.Temperature)
}

func TestInvoke_NonRateLimitErrorPropagates(t *testing.T) {
	primary := &fakeCompleter{err: errors.New("invalid api key")}
	fallback := &fakeCompleter{out: "unused"}
	_, err := NewInvoker(primary, fallback).Invoke(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, 0, fallback.calls)
}

func TestInvoke_FallbackErrorIsTerminal(t *testing.T) {
	primary := &fakeCompleter{err: errors.New("429 Too Many Requests")}
	fallback := &fakeCompleter{err: errors.New("overloaded")}
	_, err := NewInvoker(primary, fallback).Invoke(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestInvoke_RateLimitWithoutFallback(t *testing.T) {
	primary := &fakeCompleter{err: errors.New("quota exceeded")}
	_, err := NewInvoker(primary, nil).Invoke(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrFallbackUnavailable)
}

func TestIsRateLimit(t *testing.T) {
	cases := map[string]bool{
		"rate_limit_exceeded":         true,
		"Too Many Requests":           true,
		"you exceeded your QUOTA":     true,
		"status code: 429":            true,
		"context deadline exceeded":   false,
		"status code: 4290 something": false,
	}
	for msg, want := range cases {
		assert.Equal(t, want, IsRateLimit(errors.New(msg)), msg)
	}
	assert.False(t, IsRateLimit(nil))
}

func TestOpenAICompleter_429FallsBackToAnthropic(t *testing.T) {
	var primaryHits int32
	primarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer primarySrv.Close()

	var fallbackBody map[string]any
	fallbackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		_ = json.NewDecoder(r.Body).Decode(&fallbackBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",` +
			`"content":[{"type":"text","text":"fallback text"}],"stop_reason":"end_turn",` +
			`"usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer fallbackSrv.Close()

	primary := NewOpenAICompleter(config.LLMConfig{APIKey: "k", BaseURL: primarySrv.URL, Model: "gpt-test"})
	fallback := NewAnthropicCompleter(config.LLMFallbackConfig{APIKey: "k", Model: "claude-test", MaxTokens: 64},
		option.WithBaseURL(fallbackSrv.URL+"/"))

	out, err := NewInvoker(primary, fallback).Invoke(context.Background(), Request{Prompt: "write", Temperature: 1.7})
	require.NoError(t, err)
	assert.Equal(t, "fallback text", out)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))
	assert.Equal(t, 1.0, fallbackBody["temperature"])
}

func TestOpenAICompleter_ServerErrorDoesNotFallBack(t *testing.T) {
	primarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad prompt","type":"invalid_request_error"}}`))
	}))
	defer primarySrv.Close()

	fallback := &fakeCompleter{out: "unused"}
	primary := NewOpenAICompleter(config.LLMConfig{APIKey: "k", BaseURL: primarySrv.URL, Model: "gpt-test"})
	_, err := NewInvoker(primary, fallback).Invoke(context.Background(), Request{Prompt: "write"})
	require.Error(t, err)
	assert.Equal(t, 0, fallback.calls)
}
