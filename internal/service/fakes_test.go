package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"resume-forge/internal/model"
	"resume-forge/internal/repository"
	"resume-forge/pkg/llm"
)

type memDocRepo struct {
	repository.DocumentRepository
	mu     sync.Mutex
	docs   []model.Document
	chunks map[string][]model.DocumentChunk
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{chunks: map[string][]model.DocumentChunk{}}
}

// addDocument 按 age 设置创建时间，age 越小越新。
func (r *memDocRepo) addDocument(userID uint, id, name string, age time.Duration, texts ...string) {
	r.docs = append(r.docs, model.Document{ID: id, UserID: userID, FileName: name, CreatedAt: time.Now().Add(-age), StorageKey: "documents/" + id})
	for i, t := range texts {
		r.chunks[id] = append(r.chunks[id], model.DocumentChunk{DocumentID: id, UserID: userID, ChunkIndex: i, TextContent: t})
	}
}

func (r *memDocRepo) Create(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, *doc)
	return nil
}

func (r *memDocRepo) FindByID(id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.ID == id {
			doc := d
			return &doc, nil
		}
	}
	return nil, repository.ErrDocumentNotFound
}

func (r *memDocRepo) FindByUser(userID uint) ([]model.Document, error) {
	return r.FindRecent(userID, 0)
}

func (r *memDocRepo) FindRecent(userID uint, limit int) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, d := range r.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDocRepo) FindChunks(ids []string) ([]model.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DocumentChunk
	for _, id := range ids {
		out = append(out, r.chunks[id]...)
	}
	return out, nil
}

func (r *memDocRepo) UpdateStatus(id string, status, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.docs {
		if r.docs[i].ID == id {
			r.docs[i].Status = status
			r.docs[i].ChunkCount = count
		}
	}
	return nil
}

func (r *memDocRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.docs {
		if d.ID == id {
			r.docs = append(r.docs[:i], r.docs[i+1:]...)
			break
		}
	}
	delete(r.chunks, id)
	return nil
}

type memProfileRepo struct {
	profiles map[uint]*model.Profile
	saves    int
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: map[uint]*model.Profile{}}
}

func (r *memProfileRepo) FindByUserID(userID uint) (*model.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memProfileRepo) Save(p *model.Profile) error {
	r.saves++
	cp := *p
	r.profiles[p.UserID] = &cp
	return nil
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (e stubEmbedder) Dimensions() int { return len(e.vec) }

func (e stubEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	return e.vec, e.err
}

type stubSearcher struct {
	hits  []model.ChunkHit
	err   error
	calls int
}

func (s *stubSearcher) SearchKNN(context.Context, uint, []float32, int) ([]model.ChunkHit, error) {
	s.calls++
	return s.hits, s.err
}

// scriptedLLM 按顺序返回预设的输出，并记录所有请求。
type scriptedLLM struct {
	mu       sync.Mutex
	outputs  []string
	err      error
	requests []llm.Request
}

func (l *scriptedLLM) Invoke(_ context.Context, req llm.Request) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	if l.err != nil {
		return "", l.err
	}
	if len(l.outputs) == 0 {
		return "", errors.New("no scripted output")
	}
	out := l.outputs[0]
	if len(l.outputs) > 1 {
		l.outputs = l.outputs[1:]
	}
	return out, nil
}

func (l *scriptedLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

type textExtractor struct{ text string }

func (e textExtractor) Extract(context.Context, io.Reader, string, string) string { return e.text }
