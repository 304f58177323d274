package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-forge/internal/config"
)

func TestExtract_CollapsesWhitespace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "raw-bytes", string(body))
		_, _ = w.Write([]byte("  Jane   Doe\n\n\tSenior\r\nEngineer  "))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL})
	got := c.Extract(context.Background(), strings.NewReader("raw-bytes"), "cv.pdf", "application/pdf")
	assert.Equal(t, "Jane Doe Senior Engineer", got)
}

func TestExtract_FailureYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL})
	assert.Equal(t, "", c.Extract(context.Background(), strings.NewReader("x"), "a.bin", ""))

	unreachable := NewClient(config.TikaConfig{ServerURL: "http://127.0.0.1:1"})
	assert.Equal(t, "", unreachable.Extract(context.Background(), strings.NewReader("x"), "a.txt", ""))
}

func TestDetectMimeType(t *testing.T) {
	require.Equal(t, "application/octet-stream", detectMimeType("noext"))
	require.Equal(t, "application/pdf", detectMimeType("resume.pdf"))
}
