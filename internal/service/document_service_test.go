package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-forge/internal/model"
	"resume-forge/internal/repository"
	"resume-forge/pkg/tasks"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.local/" + key, nil
}

type memIndex struct {
	deleted []string
}

func (i *memIndex) IndexChunks(context.Context, []model.EsChunk) error { return nil }

func (i *memIndex) DeleteByDocument(_ context.Context, id string) error {
	i.deleted = append(i.deleted, id)
	return nil
}

type chanProcessor struct {
	done chan tasks.DocumentIngestTask
}

func (p *chanProcessor) Process(_ context.Context, task tasks.DocumentIngestTask) error {
	p.done <- task
	return nil
}

func newDocumentFixture(produce TaskProducer) (DocumentService, *memDocRepo, *memStore, *memIndex, *chanProcessor) {
	repo := newMemDocRepo()
	store := &memStore{objects: map[string][]byte{}}
	index := &memIndex{}
	proc := &chanProcessor{done: make(chan tasks.DocumentIngestTask, 1)}
	profiles := NewProfileService(repo, newMemProfileRepo(), &scriptedLLM{}, 50)
	svc := NewDocumentService(repo, store, index, textExtractor{text: "preview"}, produce, proc, profiles)
	return svc, repo, store, index, proc
}

func TestUpload_PublishesTask(t *testing.T) {
	var published []tasks.DocumentIngestTask
	svc, repo, store, _, _ := newDocumentFixture(func(_ context.Context, task tasks.DocumentIngestTask) error {
		published = append(published, task)
		return nil
	})

	doc, err := svc.Upload(context.Background(), 1, "../cv.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "cv.pdf", doc.FileName)
	assert.Equal(t, model.DocumentStatusProcessing, doc.Status)
	assert.Contains(t, store.objects, doc.StorageKey)
	require.Len(t, published, 1)
	assert.Equal(t, doc.ID, published[0].DocumentID)

	stored, err := repo.FindByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.UserID)
}

func TestUpload_FallsBackToInProcess(t *testing.T) {
	svc, _, _, _, proc := newDocumentFixture(func(context.Context, tasks.DocumentIngestTask) error {
		return errors.New("kafka down")
	})

	doc, err := svc.Upload(context.Background(), 1, "cv.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	select {
	case task := <-proc.done:
		assert.Equal(t, doc.ID, task.DocumentID)
	case <-time.After(time.Second):
		t.Fatal("document was not processed in-process")
	}
}

func TestUpload_EmptyFile(t *testing.T) {
	svc, _, _, _, _ := newDocumentFixture(nil)
	_, err := svc.Upload(context.Background(), 1, "cv.pdf", "", nil)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestDelete_RemovesEverything(t *testing.T) {
	svc, repo, store, index, _ := newDocumentFixture(nil)
	repo.addDocument(1, "d1", "cv.pdf", 0, "text")
	store.objects["documents/d1"] = []byte("raw")

	require.NoError(t, svc.Delete(context.Background(), 1, "d1"))
	_, err := repo.FindByID("d1")
	assert.ErrorIs(t, err, repository.ErrDocumentNotFound)
	assert.NotContains(t, store.objects, "documents/d1")
	assert.Equal(t, []string{"d1"}, index.deleted)
}

func TestDelete_OtherUsersDocument(t *testing.T) {
	svc, repo, _, _, _ := newDocumentFixture(nil)
	repo.addDocument(2, "d1", "cv.pdf", 0, "text")
	assert.ErrorIs(t, svc.Delete(context.Background(), 1, "d1"), repository.ErrDocumentNotFound)
}

func TestPreviewAndDownload(t *testing.T) {
	svc, repo, store, _, _ := newDocumentFixture(nil)
	repo.addDocument(1, "d1", "cv.pdf", 0, "text")
	store.objects["documents/d1"] = []byte("raw")

	preview, err := svc.GetPreview(context.Background(), 1, "d1")
	require.NoError(t, err)
	assert.Equal(t, "preview", preview.Content)

	dl, err := svc.GenerateDownloadURL(context.Background(), 1, "d1")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/documents/d1", dl.DownloadURL)
}
