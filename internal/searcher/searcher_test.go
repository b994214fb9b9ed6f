package searcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// mockEmbedder implements the Embedder interface for testing
type mockEmbedder struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &embedder.Embedding{Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

// fakeStore returns canned candidates and counts every call
type fakeStore struct {
	mu sync.Mutex

	versionFound bool
	text         []storage.TextResult
	vector       []storage.VectorResult
	textErr      error

	lookupCalls int
	textCalls   int
	vectorCalls int
	textLimit   int
	vectorLimit int
	vectorWidth int
	ftsQuery    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{versionFound: true}
}

func (f *fakeStore) LookupVersion(ctx context.Context, library, version string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	return 1, f.versionFound, nil
}

func (f *fakeStore) SearchText(ctx context.Context, versionID int64, ftsQuery string, limit int) ([]storage.TextResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	f.textLimit = limit
	f.ftsQuery = ftsQuery
	if f.textErr != nil {
		return nil, f.textErr
	}
	if len(f.text) > limit {
		return f.text[:limit], nil
	}
	return f.text, nil
}

func (f *fakeStore) SearchVector(ctx context.Context, versionID int64, vector []float32, limit int) ([]storage.VectorResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectorCalls++
	f.vectorLimit = limit
	f.vectorWidth = len(vector)
	return f.vector, nil
}

func (f *fakeStore) FindChunksByIDs(ctx context.Context, versionID int64, ids []int64) ([]types.StoredChunk, error) {
	out := make([]types.StoredChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.StoredChunk{ID: id, Content: "chunk"})
	}
	return out, nil
}

func (f *fakeStore) calls() int {
	return f.lookupCalls + f.textCalls + f.vectorCalls
}

func hitIDs(hits []types.SearchHit) []int64 {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.Chunk.ID
	}
	return ids
}

func TestSearch_BlankQueryTouchesNothing(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n", "?!"} {
		store := newFakeStore()
		emb := &mockEmbedder{}
		s := New(store, Options{Embedder: emb, Config: DefaultConfig()})

		hits, err := s.FindByContent(context.Background(), "react", "18.0.0", q, 5)
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
		assert.Zero(t, store.calls(), "query %q", q)
		assert.Zero(t, emb.calls)
	}
}

func TestSearch_UnknownVersion(t *testing.T) {
	store := newFakeStore()
	store.versionFound = false
	s := New(store, Options{Embedder: &mockEmbedder{}})

	hits, err := s.FindByContent(context.Background(), "react", "99.0.0", "hooks", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 1, store.lookupCalls)
	assert.Zero(t, store.textCalls)
}

func TestSearch_HybridOverfetch(t *testing.T) {
	store := newFakeStore()
	s := New(store, Options{Embedder: &mockEmbedder{}, Config: DefaultConfig()})

	_, err := s.FindByContent(context.Background(), "react", "18.0.0", "react hooks", 5)
	require.NoError(t, err)

	assert.Equal(t, 10, store.textLimit, "limit * overfetch")
	assert.Equal(t, 100, store.vectorLimit, "limit * overfetch * multiplier")
	assert.Equal(t, storage.VectorDimension, store.vectorWidth, "query vector padded")
	assert.Equal(t, `"react hooks" OR ("react" OR "hooks")`, store.ftsQuery)
}

func TestSearch_HybridFusion(t *testing.T) {
	store := newFakeStore()
	// Text ranks: 10, 20, 30. Vector ranks: 30, 40, 10.
	store.text = []storage.TextResult{{ChunkID: 10, BM25Score: 9}, {ChunkID: 20, BM25Score: 5}, {ChunkID: 30, BM25Score: 1}}
	store.vector = []storage.VectorResult{{ChunkID: 30, Distance: 0.1}, {ChunkID: 40, Distance: 0.2}, {ChunkID: 10, Distance: 0.3}}

	s := New(store, Options{Embedder: &mockEmbedder{}, Config: DefaultConfig()})
	hits, err := s.FindByContent(context.Background(), "react", "18.0.0", "hooks", 10)
	require.NoError(t, err)

	// 10: 1/61 + 1/63, 30: 1/63 + 1/61, 40: 1/62, 20: 1/62
	require.Len(t, hits, 4)
	assert.Equal(t, []int64{10, 30, 20, 40}, hitIDs(hits), "ties break by id")

	top := hits[0]
	require.NotNil(t, top.FTSRank)
	require.NotNil(t, top.VecRank)
	assert.Equal(t, 1, *top.FTSRank)
	assert.Equal(t, 3, *top.VecRank)
	assert.InDelta(t, 1.0/61+1.0/63, top.Score, 1e-12)
	assert.InDelta(t, 0.3, top.VecDistance, 1e-12)

	textOnly := hits[2]
	assert.Nil(t, textOnly.VecRank)
	assert.Equal(t, 2, *textOnly.FTSRank)

	vecOnly := hits[3]
	assert.Nil(t, vecOnly.FTSRank)
	assert.Equal(t, 2, *vecOnly.VecRank)

	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestSearch_Weights(t *testing.T) {
	store := newFakeStore()
	store.text = []storage.TextResult{{ChunkID: 1, BM25Score: 9}}
	store.vector = []storage.VectorResult{{ChunkID: 2, Distance: 0.1}}

	cfg := DefaultConfig()
	cfg.WeightVector = 3
	s := New(store, Options{Embedder: &mockEmbedder{}, Config: cfg})

	hits, err := s.FindByContent(context.Background(), "react", "", "hooks", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, hitIDs(hits))
	assert.InDelta(t, 3.0/61, hits[0].Score, 1e-12)
}

func TestSearch_TruncatesToLimit(t *testing.T) {
	store := newFakeStore()
	for i := int64(1); i <= 8; i++ {
		store.text = append(store.text, storage.TextResult{ChunkID: i, BM25Score: float64(10 - i)})
	}
	s := New(store, Options{Embedder: &mockEmbedder{}})

	hits, err := s.FindByContent(context.Background(), "react", "", "hooks", 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, hitIDs(hits))
}

func TestSearch_FullTextMode(t *testing.T) {
	store := newFakeStore()
	store.text = []storage.TextResult{{ChunkID: 5, BM25Score: 2}, {ChunkID: 3, BM25Score: 7}, {ChunkID: 9, BM25Score: 2}}
	s := New(store, Options{Config: DefaultConfig()})
	assert.Equal(t, SearchModeFullText, s.Mode())

	resp, err := s.Search(context.Background(), SearchRequest{Library: "react", Query: "hooks", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, SearchModeFullText, resp.SearchMode)
	assert.Equal(t, 10, store.textLimit, "no overfetch without vectors")
	assert.Zero(t, store.vectorCalls)

	assert.Equal(t, []int64{3, 5, 9}, hitIDs(resp.Results))
	for i, h := range resp.Results {
		assert.Nil(t, h.VecRank)
		require.NotNil(t, h.FTSRank)
		assert.Equal(t, i+1, *h.FTSRank)
		assert.InDelta(t, 1.0/(60+float64(i+1)), h.Score, 1e-12)
	}
}

func TestSearch_VectorFailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.text = []storage.TextResult{{ChunkID: 1, BM25Score: 1}}
	s := New(store, Options{Embedder: &mockEmbedder{err: embedder.ErrProviderFailed}})

	hits, err := s.FindByContent(context.Background(), "react", "", "hooks", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Nil(t, hits[0].VecRank)
}

func TestSearch_TextFailureFails(t *testing.T) {
	store := newFakeStore()
	store.textErr = errors.New("fts5: syntax error")
	s := New(store, Options{Embedder: &mockEmbedder{}})

	_, err := s.FindByContent(context.Background(), "react", "", "hooks", 5)
	assert.ErrorContains(t, err, "text search failed")
}

func TestSearch_Cache(t *testing.T) {
	store := newFakeStore()
	store.text = []storage.TextResult{{ChunkID: 1, BM25Score: 1}}
	s := New(store, Options{Config: DefaultConfig()})
	ctx := context.Background()

	_, err := s.FindByContent(ctx, "react", "", "hooks", 5)
	require.NoError(t, err)
	resp, err := s.Search(ctx, SearchRequest{Library: "React", Query: " hooks ", Limit: 5, UseCache: true})
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
	assert.Equal(t, 1, store.textCalls)

	s.InvalidateCache()
	resp, err = s.Search(ctx, SearchRequest{Library: "react", Query: "hooks", Limit: 5, UseCache: true})
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, 2, store.textCalls)

	t.Run("cached results are copies", func(t *testing.T) {
		first, _ := s.FindByContent(ctx, "react", "", "hooks", 5)
		first[0].Score = -1
		again, _ := s.FindByContent(ctx, "react", "", "hooks", 5)
		assert.Greater(t, again[0].Score, 0.0)
	})
}

func TestFuse_DuplicateCandidatesKeepBestRank(t *testing.T) {
	results := fuse(nil, []storage.TextResult{{ChunkID: 1, BM25Score: 5}, {ChunkID: 1, BM25Score: 1}}, DefaultConfig())
	require.Len(t, results, 1)
	assert.Equal(t, 1, *results[0].ftsRank)
	assert.InDelta(t, 1.0/61, results[0].score, 1e-12)
}

func TestSearch_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	versionID, err := store.ResolveVersion(ctx, "react", "18.0.0")
	require.NoError(t, err)

	vec := func(axis int) []float32 {
		v := make([]float32, storage.VectorDimension)
		v[axis] = 1
		return v
	}
	err = store.ReplacePages(ctx, versionID, []storage.PageWrite{{
		URL:   "https://react.dev/hooks",
		Title: "Hooks",
		Chunks: []storage.ChunkWrite{
			{Content: "Hooks", Metadata: types.ChunkMetadata{Path: []string{"Hooks"}, Level: 1, Types: []string{types.ChunkTypeStructural}}, Embedding: vec(0)},
			{Content: "useState lets components remember state", Metadata: types.ChunkMetadata{Path: []string{"Hooks"}, Level: 1}, Embedding: vec(0)},
			{Content: "useEffect synchronizes with external systems", Metadata: types.ChunkMetadata{Path: []string{"Hooks"}, Level: 1}, Embedding: vec(1)},
		},
	}})
	require.NoError(t, err)

	s := New(store, Options{Embedder: &mockEmbedder{}, Config: DefaultConfig()})
	hits, err := s.FindByContent(ctx, "React", "18.0.0", "useState state", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Contains(t, hits[0].Chunk.Content, "useState")
	require.NotNil(t, hits[0].FTSRank)
	require.NotNil(t, hits[0].VecRank)
	for _, h := range hits {
		assert.False(t, h.Chunk.Metadata.IsStructural(), "structural chunks never ranked")
	}
}

// replacingStore commits a page replacement while the first search is
// fetching its chunks, the way a concurrent AddDocuments would
type replacingStore struct {
	*storage.SQLiteStorage
	versionID int64
	searcher  *Searcher
	once      sync.Once
	err       error
}

func (r *replacingStore) FindChunksByIDs(ctx context.Context, versionID int64, ids []int64) ([]types.StoredChunk, error) {
	chunks, err := r.SQLiteStorage.FindChunksByIDs(ctx, versionID, ids)
	r.once.Do(func() {
		r.err = r.ReplacePages(ctx, r.versionID, []storage.PageWrite{{
			URL:    "https://example.com/widgets",
			Title:  "Widgets",
			Chunks: []storage.ChunkWrite{{Content: "new widget text", Metadata: types.ChunkMetadata{Path: []string{"Widgets"}, Level: 1}}},
		}})
		r.searcher.InvalidateCache()
	})
	return chunks, err
}

func TestSearch_CacheSkipsResponsesOverlappingWrites(t *testing.T) {
	ctx := context.Background()
	sqlStore, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	versionID, err := sqlStore.ResolveVersion(ctx, "widgets", "")
	require.NoError(t, err)
	require.NoError(t, sqlStore.ReplacePages(ctx, versionID, []storage.PageWrite{{
		URL:    "https://example.com/widgets",
		Title:  "Widgets",
		Chunks: []storage.ChunkWrite{{Content: "old widget text", Metadata: types.ChunkMetadata{Path: []string{"Widgets"}, Level: 1}}},
	}}))

	store := &replacingStore{SQLiteStorage: sqlStore, versionID: versionID}
	s := New(store, Options{Config: DefaultConfig()})
	store.searcher = s

	first, err := s.FindByContent(ctx, "widgets", "", "widget", 5)
	require.NoError(t, err)
	require.NoError(t, store.err)
	require.Len(t, first, 1)
	assert.Equal(t, "old widget text", first[0].Chunk.Content)

	resp, err := s.Search(ctx, SearchRequest{Library: "widgets", Query: "widget", Limit: 5, UseCache: true})
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "new widget text", resp.Results[0].Chunk.Content)

	stored, err := sqlStore.GetByID(ctx, resp.Results[0].Chunk.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)

	again, err := s.Search(ctx, SearchRequest{Library: "widgets", Query: "widget", Limit: 5, UseCache: true})
	require.NoError(t, err)
	assert.True(t, again.CacheHit, "responses computed after the write are cached")
}
