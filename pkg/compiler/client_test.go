package compiler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-forge/internal/config"
)

func TestCompile_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compile", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `\documentclass{article}`, string(body))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.5"))
	}))
	defer srv.Close()

	pdf, err := NewClient(config.CompilerConfig{ServerURL: srv.URL}).Compile(context.Background(), `\documentclass{article}`)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5", string(pdf))
}

func TestCompile_LatexError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"compilation failed","log":"! Missing } inserted."}`))
	}))
	defer srv.Close()

	_, err := NewClient(config.CompilerConfig{ServerURL: srv.URL}).Compile(context.Background(), "x")
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.False(t, ce.Transport)
	assert.Equal(t, "! Missing } inserted.", ce.Diagnostic)
}

func TestCompile_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(config.CompilerConfig{ServerURL: srv.URL}).Compile(context.Background(), "x")
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Transport)

	_, err = NewClient(config.CompilerConfig{ServerURL: "http://127.0.0.1:1"}).Compile(context.Background(), "x")
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Transport)
}
