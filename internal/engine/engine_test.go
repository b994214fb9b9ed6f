package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/internal/config"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// probeEmbedder reports a fixed dimension, or fails the probe with err
type probeEmbedder struct {
	dimension int
	err       error
	closed    bool
}

func (p *probeEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &embedder.Embedding{Vector: make([]float32, 8), Dimension: 8, Provider: "probe", Model: "probe-model"}, nil
}

func (p *probeEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := make([]*embedder.Embedding, len(req.Texts))
	for i := range req.Texts {
		e, err := p.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Texts[i]})
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: "probe", Model: "probe-model"}, nil
}

func (p *probeEmbedder) Dimension() int   { return p.dimension }
func (p *probeEmbedder) Provider() string { return "probe" }
func (p *probeEmbedder) Model() string    { return "probe-model" }
func (p *probeEmbedder) Close() error {
	p.closed = true
	return nil
}

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Path = config.MemoryPath
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func fullTextEngine(t *testing.T) *Engine {
	cfg := memoryConfig()
	cfg.Embedding.Disabled = true
	return newEngine(t, cfg)
}

func localEngine(t *testing.T) *Engine {
	cfg := memoryConfig()
	cfg.Embedding.Model = "local:local-hash"
	return newEngine(t, cfg)
}

const (
	pageA = "https://docs.example.com/a"
	pageB = "https://docs.example.com/b"
)

// scenarioChunks is three chunks for page A and two for page B
func scenarioChunks() []types.Chunk {
	chunk := func(url, content string, path ...string) types.Chunk {
		return types.Chunk{
			URL:         url,
			Title:       "Page " + filepath.Base(url),
			ContentType: "text/markdown",
			Content:     content,
			Metadata:    types.ChunkMetadata{Path: path, Level: len(path)},
		}
	}
	return []types.Chunk{
		chunk(pageA, "Introduction to the widget toolkit", "Intro"),
		chunk(pageA, "Setup requires configuring the proxy server", "Intro", "Setup"),
		chunk(pageA, "Usage covers rendering widgets", "Intro", "Usage"),
		chunk(pageB, "Reference for widget events", "Reference"),
		chunk(pageB, "Event ordering guarantees", "Reference", "Events"),
	}
}

func TestNew_FullTextWhenDisabled(t *testing.T) {
	e := fullTextEngine(t)

	assert.False(t, e.VectorEnabled())
	assert.Equal(t, "embeddings disabled by configuration", e.Capability().Reason)
}

func TestNew_DisabledWinsOverInjectedEmbedder(t *testing.T) {
	cfg := memoryConfig()
	cfg.Embedding.Disabled = true
	emb := &probeEmbedder{dimension: 8}

	e := newEngine(t, cfg, WithEmbedder(emb))
	assert.False(t, e.VectorEnabled())
	assert.True(t, emb.closed)
}

func TestNew_EmptyPathIsValidationError(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = ""

	_, err := New(context.Background(), cfg)
	require.Error(t, err)

	var storeErr *storage.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNew_MalformedModelSpec(t *testing.T) {
	cfg := memoryConfig()
	cfg.Embedding.Model = "bogus:thing"

	_, err := New(context.Background(), cfg)
	var cfgErr *embedder.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, embedder.ErrUnsupportedModel)
}

func TestNew_MissingCredentialsFallsBack(t *testing.T) {
	t.Setenv(embedder.EnvOpenAIAPIKey, "")
	cfg := memoryConfig()
	cfg.Embedding.Model = "openai:text-embedding-3-small"

	e := newEngine(t, cfg)
	assert.False(t, e.VectorEnabled())
	assert.Equal(t, "openai", e.Capability().Provider)
	assert.Contains(t, e.Capability().Reason, "no credentials")
}

func TestNew_DimensionTooLarge(t *testing.T) {
	emb := &probeEmbedder{dimension: storage.VectorDimension + 1}

	_, err := New(context.Background(), memoryConfig(), WithEmbedder(emb))
	var dimErr *embedder.DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, storage.VectorDimension, dimErr.Max)
	assert.True(t, emb.closed)
}

func TestNew_AuthFailureDuringProbe(t *testing.T) {
	emb := &probeEmbedder{err: fmt.Errorf("openai: %w", embedder.ErrAuthFailed)}

	_, err := New(context.Background(), memoryConfig(), WithEmbedder(emb))
	var cfgErr *embedder.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "credentials", cfgErr.Field)
	assert.ErrorIs(t, err, embedder.ErrAuthFailed)
}

func TestNew_UnreachableProviderFallsBack(t *testing.T) {
	emb := &probeEmbedder{err: errors.New("connection refused")}

	e := newEngine(t, memoryConfig(), WithEmbedder(emb))
	assert.False(t, e.VectorEnabled())
	assert.Contains(t, e.Capability().Reason, "connection refused")
}

func TestNew_ProbedDimension(t *testing.T) {
	e := newEngine(t, memoryConfig(), WithEmbedder(&probeEmbedder{}))
	assert.True(t, e.VectorEnabled())
	assert.Equal(t, 8, e.Capability().Dimension)
}

func TestNew_LocalProvider(t *testing.T) {
	e := localEngine(t)
	assert.True(t, e.VectorEnabled())
	assert.Equal(t, embedder.ProviderLocal, e.Capability().Provider)
	assert.Equal(t, embedder.LocalDimension, e.Capability().Dimension)
}

func TestNew_CreatesDatabaseDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Disabled = true
	cfg.Store.Path = filepath.Join(t.TempDir(), "nested", "dir", "docs.db")

	e := newEngine(t, cfg)
	ok, err := e.CheckExists(context.Background(), "lib", "1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearch_ExpandsToParentSection(t *testing.T) {
	ctx := context.Background()
	e := fullTextEngine(t)
	require.NoError(t, e.AddDocuments(ctx, "widgets", "1.0.0", scenarioChunks()))

	results, err := e.Search(ctx, "widgets", "1.0.0", `"configuring the proxy"`, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, pageA, results[0].URL)
	assert.Equal(t, "text/markdown", results[0].ContentType)
	assert.Equal(t, "Introduction to the widget toolkit\n\nSetup requires configuring the proxy server", results[0].Content)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestFindByContent_FullTextHasNoVectorRank(t *testing.T) {
	ctx := context.Background()
	e := fullTextEngine(t)
	require.NoError(t, e.AddDocuments(ctx, "widgets", "1.0.0", scenarioChunks()))

	hits, err := e.FindByContent(ctx, "widgets", "1.0.0", "widget", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for i, h := range hits {
		assert.Nil(t, h.VecRank)
		require.NotNil(t, h.FTSRank)
		assert.Equal(t, i+1, *h.FTSRank)
	}
}

func TestFindByContent_HybridWithLocalEmbedder(t *testing.T) {
	ctx := context.Background()
	e := localEngine(t)
	require.NoError(t, e.AddDocuments(ctx, "widgets", "1.0.0", scenarioChunks()))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Embeddings)

	hits, err := e.FindByContent(ctx, "widgets", "1.0.0", "proxy server", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 3)

	top := hits[0]
	require.NotNil(t, top.FTSRank, "the only text match carries both signals")
	require.NotNil(t, top.VecRank)
	assert.Contains(t, top.Chunk.Content, "proxy")
}

func TestSearch_QuerySyntaxIsInert(t *testing.T) {
	queries := []string{
		`"'; DROP TABLE`,
		`100% coverage`,
		`foo"bar`,
		`NEAR(widget proxy, 2)`,
		`setup*`,
		`content:x`,
		"widget \xff\xfe proxy",
		`AND OR NOT`,
		`-widget`,
	}
	engines := map[string]func(*testing.T) *Engine{
		"fulltext": fullTextEngine,
		"hybrid":   localEngine,
	}
	for mode, build := range engines {
		t.Run(mode, func(t *testing.T) {
			ctx := context.Background()
			e := build(t)
			require.NoError(t, e.AddDocuments(ctx, "widgets", "1.0.0", scenarioChunks()))

			for _, q := range queries {
				_, err := e.FindByContent(ctx, "widgets", "1.0.0", q, 5)
				assert.NoError(t, err, "FindByContent(%q)", q)
				_, err = e.Search(ctx, "widgets", "1.0.0", q, 5)
				assert.NoError(t, err, "Search(%q)", q)
			}

			hits, err := e.FindByContent(ctx, "widgets", "1.0.0", "proxy server", 5)
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			assert.Contains(t, hits[0].Chunk.Content, "proxy")

			stats, err := e.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 5, stats.Documents)
		})
	}
}

func TestAddDocuments_InvalidatesQueryCache(t *testing.T) {
	ctx := context.Background()
	e := fullTextEngine(t)

	hits, err := e.FindByContent(ctx, "widgets", "1.0.0", "proxy", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, e.AddDocuments(ctx, "widgets", "1.0.0", scenarioChunks()))

	hits, err = e.FindByContent(ctx, "widgets", "1.0.0", "proxy", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = e.RemoveVersion(ctx, "widgets", "1.0.0", true)
	require.NoError(t, err)

	hits, err = e.FindByContent(ctx, "widgets", "1.0.0", "proxy", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddDocuments_ReplacesPage(t *testing.T) {
	ctx := context.Background()
	e := fullTextEngine(t)

	page := func(n int) []types.Chunk {
		chunks := make([]types.Chunk, n)
		for i := range chunks {
			chunks[i] = types.Chunk{URL: pageA, Title: "A", Content: fmt.Sprintf("revision %d part %d", n, i)}
		}
		return chunks
	}
	require.NoError(t, e.AddDocuments(ctx, "widgets", "1.0.0", page(3)))
	require.NoError(t, e.AddDocuments(ctx, "widgets", "1.0.0", page(5)))

	chunks, err := e.FindChunksByURL(ctx, "widgets", "1.0.0", pageA)
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	for i, c := range chunks {
		assert.Equal(t, i, c.SortOrder)
		assert.Contains(t, c.Content, "revision 5")
	}
}

func TestAddDocuments_MissingURL(t *testing.T) {
	ctx := context.Background()
	e := fullTextEngine(t)

	err := e.AddDocuments(ctx, "widgets", "1.0.0", []types.Chunk{{Content: "no url"}})
	var storeErr *storage.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	libs, err := e.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Empty(t, libs, "validation runs before the version is resolved")
}

func TestRemoveVersion_Scenario(t *testing.T) {
	ctx := context.Background()
	e := fullTextEngine(t)
	require.NoError(t, e.AddDocuments(ctx, "widgets", "1.0.0", scenarioChunks()))

	result, err := e.RemoveVersion(ctx, "widgets", "1.0.0", true)
	require.NoError(t, err)
	assert.Equal(t, types.RemoveResult{DocumentsDeleted: 5, VersionDeleted: true, LibraryDeleted: true}, result)

	result, err = e.RemoveVersion(ctx, "widgets", "1.0.0", true)
	require.NoError(t, err)
	assert.Equal(t, types.RemoveResult{}, result)
}

func TestLookupsOnUnknownVersion(t *testing.T) {
	ctx := context.Background()
	e := fullTextEngine(t)

	chunks, err := e.FindChunksByIDs(ctx, "nope", "1.0.0", []int64{1, 2})
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = e.FindChunksByURL(ctx, "nope", "1.0.0", pageA)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	pages, err := e.ListPages(ctx, "nope", "1.0.0")
	require.NoError(t, err)
	assert.Empty(t, pages)

	chunk, err := e.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, chunk)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	e := fullTextEngine(t)

	id, err := e.ResolveVersion(ctx, "Widgets", "1.2.0")
	require.NoError(t, err)

	require.NoError(t, e.UpdateVersionStatus(ctx, id, types.StatusQueued, ""))
	require.NoError(t, e.UpdateVersionStatus(ctx, id, types.StatusRunning, ""))
	require.NoError(t, e.UpdateVersionProgress(ctx, id, 3, 10))

	running, err := e.GetVersionsByStatus(ctx, types.StatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "widgets", running[0].Library)
	assert.Equal(t, 3, running[0].ProgressPages)
	assert.NotNil(t, running[0].StartedAt)

	opts := types.ScraperOptions{URL: "https://docs.example.com/", MaxPages: 10}
	require.NoError(t, e.StoreScraperOptions(ctx, id, opts))

	stored, err := e.GetScraperOptions(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, opts, stored.Options)

	bySource, err := e.FindVersionsBySourceURL(ctx, "https://docs.example.com/")
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, id, bySource[0].ID)

	require.NoError(t, e.AddDocuments(ctx, "widgets", "1.2.0", scenarioChunks()))
	match, err := e.FindBestVersion(ctx, "widgets", "1.x")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", match.BestMatch)

	versions, err := e.ListVersions(ctx, "WIDGETS")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 5, versions[0].DocumentCount)
	assert.Equal(t, 2, versions[0].UniqueURLCount)

	pages, err := e.ListPages(ctx, "widgets", "1.2.0")
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}
