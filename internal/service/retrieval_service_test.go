package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-forge/internal/config"
	"resume-forge/internal/model"
)

func seedSixDocuments(repo *memDocRepo) {
	// doc-0 最新，doc-5 最旧
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("doc-%d", i)
		repo.addDocument(1, id, id+".pdf", time.Duration(i)*time.Hour, id+" part A", id+" part B")
	}
	repo.addDocument(2, "other", "other.pdf", 0, "someone else")
}

func TestRetrieve_SimilarityPath(t *testing.T) {
	searcher := &stubSearcher{hits: []model.ChunkHit{
		{DocumentID: "doc-1", ChunkIndex: 0, TextContent: "Go engineer", Score: 0.9},
		{DocumentID: "doc-2", ChunkIndex: 3, TextContent: "Kafka pipelines", Score: 0.7},
	}}
	svc := NewRetrievalService(stubEmbedder{vec: []float32{1, 0, 0}}, searcher, newMemDocRepo(), config.RetrievalConfig{TopK: 5})

	rc, err := svc.Retrieve(context.Background(), 1, "backend experience")
	require.NoError(t, err)
	assert.Equal(t, SourceSimilarity, rc.Source)
	assert.Equal(t, "Go engineer\nKafka pipelines", rc.Text)
	assert.Len(t, rc.Snippets, 2)
}

func TestRetrieve_ZeroHitsFallsBackToRecency(t *testing.T) {
	// 入库时向量化失败的文档不在索引里，恢复后的查询也检索不到
	repo := newMemDocRepo()
	text := strings.Repeat("Senior Go engineer, ", 3) + "Berlin"
	repo.addDocument(1, "doc-plain", "cv.pdf", 0, text)
	svc := NewRetrievalService(stubEmbedder{vec: []float32{1}}, &stubSearcher{}, repo, config.RetrievalConfig{})

	rc, err := svc.Retrieve(context.Background(), 1, "anything")
	require.NoError(t, err)
	assert.Equal(t, SourceRecency, rc.Source)
	assert.Equal(t, text, rc.Text)
	require.Len(t, rc.Snippets, 1)
	assert.Equal(t, "doc-plain", rc.Snippets[0].DocumentID)
}

func TestRetrieve_FallbackUsesFiveMostRecentDocuments(t *testing.T) {
	cases := map[string]struct {
		embedder stubEmbedder
		searcher *stubSearcher
	}{
		"embedding error": {embedder: stubEmbedder{err: errors.New("provider down")}, searcher: &stubSearcher{}},
		"empty vector":    {embedder: stubEmbedder{vec: []float32{}}, searcher: &stubSearcher{}},
		"index error":     {embedder: stubEmbedder{vec: []float32{1}}, searcher: &stubSearcher{err: errors.New("es down")}},
		"no hits":         {embedder: stubEmbedder{vec: []float32{1}}, searcher: &stubSearcher{}},
	}

	var want []string
	for i := 0; i < 5; i++ {
		want = append(want, fmt.Sprintf("doc-%d part A", i), fmt.Sprintf("doc-%d part B", i))
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newMemDocRepo()
			seedSixDocuments(repo)
			svc := NewRetrievalService(tc.embedder, tc.searcher, repo, config.RetrievalConfig{TopK: 5, RecentDocs: 5})

			rc, err := svc.Retrieve(context.Background(), 1, "write my resume")
			require.NoError(t, err)
			assert.Equal(t, SourceRecency, rc.Source)
			assert.Equal(t, strings.Join(want, "\n"), rc.Text)
			assert.NotContains(t, rc.Text, "doc-5")
			assert.NotContains(t, rc.Text, "someone else")
		})
	}
}

func TestRetrieve_FallbackWithNoDocuments(t *testing.T) {
	svc := NewRetrievalService(stubEmbedder{err: errors.New("down")}, &stubSearcher{}, newMemDocRepo(), config.RetrievalConfig{})
	rc, err := svc.Retrieve(context.Background(), 1, "x")
	require.NoError(t, err)
	assert.Equal(t, SourceRecency, rc.Source)
	assert.Empty(t, rc.Text)
	assert.Empty(t, rc.Snippets)
}
