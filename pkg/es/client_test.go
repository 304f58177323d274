package es

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *ChunkIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewChunkIndex(client, "chunks")
}

func TestSearchKNN_FiltersByUser(t *testing.T) {
	var sent map[string]any
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chunks/_search"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_score":0.93,"_source":{"document_id":"d1","chunk_index":2,"text_content":"Go developer"}},
			{"_score":0.71,"_source":{"document_id":"d2","chunk_index":0,"text_content":"SQL"}}
		]}}`))
	})

	hits, err := idx.SearchKNN(context.Background(), 42, []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "d1", hits[0].DocumentID)
	assert.Equal(t, 2, hits[0].ChunkIndex)
	assert.Equal(t, "Go developer", hits[0].TextContent)

	knn := sent["knn"].(map[string]any)
	assert.Equal(t, float64(5), knn["k"])
	filter := knn["filter"].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, float64(42), filter["user_id"])
}

func TestSearchKNN_ErrorStatus(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	})
	_, err := idx.SearchKNN(context.Background(), 1, []float32{0.1}, 5)
	assert.Error(t, err)
}

func TestChunkMappingUsesDims(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(chunkMapping(768)), &m))
	props := m["mappings"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, float64(768), props["vector"].(map[string]any)["dims"])
}

func TestVectorID(t *testing.T) {
	assert.Equal(t, "doc-1_3", VectorID("doc-1", 3))
}

func TestChunkIndex_WithoutClient(t *testing.T) {
	idx := NewChunkIndex(nil, "chunks")
	_, err := idx.SearchKNN(context.Background(), 1, []float32{1}, 5)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.ErrorIs(t, idx.DeleteByDocument(context.Background(), "d1"), ErrIndexUnavailable)
}
