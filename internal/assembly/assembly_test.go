package assembly

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// stubSource returns canned hits and records the requested limit
type stubSource struct {
	hits     []types.SearchHit
	err      error
	gotLimit int
}

func (s *stubSource) FindByContent(ctx context.Context, library, version, query string, limit int) ([]types.SearchHit, error) {
	s.gotLimit = limit
	return s.hits, s.err
}

const guideURL = "https://docs.example.com/guide"

// setupGuide stores one page:
//
//	0 Guide
//	1 Guide / Setup
//	2 Guide / Setup / Install
//	3 Guide / Setup / Install
//	4 Guide / Setup / Configure
//	5 Guide / Usage
func setupGuide(t *testing.T, contentType string) (*storage.SQLiteStorage, []types.StoredChunk) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	versionID, err := store.ResolveVersion(ctx, "docsearch", "1.0.0")
	require.NoError(t, err)

	write := func(content string, path ...string) storage.ChunkWrite {
		return storage.ChunkWrite{Content: content, Metadata: types.ChunkMetadata{Path: path, Level: len(path)}}
	}
	err = store.ReplacePages(ctx, versionID, []storage.PageWrite{{
		URL:         guideURL,
		Title:       "Guide",
		ContentType: contentType,
		Chunks: []storage.ChunkWrite{
			write("Guide overview", "Guide"),
			write("Setup: prerequisites", "Guide", "Setup"),
			write("Install with npm install docsearch", "Guide", "Setup", "Install"),
			write("Verify the install", "Guide", "Setup", "Install"),
			write("Configure options", "Guide", "Setup", "Configure"),
			write("Usage intro", "Guide", "Usage"),
		},
	}})
	require.NoError(t, err)

	chunks, err := store.FindChunksByURL(ctx, versionID, guideURL)
	require.NoError(t, err)
	require.Len(t, chunks, 6)
	return store, chunks
}

func ids(chunks ...types.StoredChunk) []int64 {
	out := make([]int64, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}

func TestMarkdownStrategy_ExpandsToSetupParent(t *testing.T) {
	store, chunks := setupGuide(t, "text/markdown")

	out, err := NewMarkdownStrategy(DefaultOptions()).Assemble(context.Background(), store, chunks[2:3])
	require.NoError(t, err)

	assert.Equal(t, ids(chunks[1], chunks[2], chunks[3]), out.ChunkIDs)
	assert.Equal(t, "Setup: prerequisites\n\nInstall with npm install docsearch\n\nVerify the install", out.Content)
}

func TestMarkdownStrategy_ChildrenAndSiblings(t *testing.T) {
	store, chunks := setupGuide(t, "text/markdown")

	// Setup has no same-path siblings; its children are Install x2 and Configure
	out, err := NewMarkdownStrategy(DefaultOptions()).Assemble(context.Background(), store, chunks[1:2])
	require.NoError(t, err)
	assert.Equal(t, ids(chunks[0], chunks[1], chunks[2], chunks[3], chunks[4]), out.ChunkIDs)

	opts := DefaultOptions()
	opts.ChildLimit = 1
	opts.ExpandParent = false
	out, err = NewMarkdownStrategy(opts).Assemble(context.Background(), store, chunks[1:2])
	require.NoError(t, err)
	assert.Equal(t, ids(chunks[1], chunks[2]), out.ChunkIDs)
}

func TestMarkdownStrategy_RootChunkStandsAlone(t *testing.T) {
	store, _ := setupGuide(t, "text/markdown")
	root := types.StoredChunk{ID: 999, Content: "orphan", Metadata: types.ChunkMetadata{Path: []string{}}}

	out, err := NewMarkdownStrategy(DefaultOptions()).Assemble(context.Background(), store, []types.StoredChunk{root})
	require.NoError(t, err)
	assert.Equal(t, []int64{999}, out.ChunkIDs)
	assert.Equal(t, "orphan", out.Content)
}

func TestHierarchicalStrategy_AncestorChain(t *testing.T) {
	store, chunks := setupGuide(t, "text/x-go")

	out, err := NewHierarchicalStrategy(DefaultOptions()).Assemble(context.Background(), store, chunks[3:4])
	require.NoError(t, err)

	// Chunk 3's parent is Setup (1), whose parent is Guide (0); no siblings
	assert.Equal(t, ids(chunks[0], chunks[1], chunks[3]), out.ChunkIDs)
	assert.Equal(t, "Guide overview\nSetup: prerequisites\nVerify the install", out.Content)
}

func TestClassifyContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"", StrategyDefault},
		{"text/markdown", StrategyDefault},
		{"text/x-markdown", StrategyDefault},
		{"text/html; charset=utf-8", StrategyDefault},
		{"text/plain", StrategyDefault},
		{"application/pdf", StrategyDefault},
		{"application/json", StrategyStructured},
		{"application/vnd.api+json", StrategyStructured},
		{"text/x-go", StrategyStructured},
		{"text/x-python; charset=utf-8", StrategyStructured},
		{"TEXT/JAVASCRIPT", StrategyStructured},
		{"application/x-yaml", StrategyStructured},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyContentType(tt.contentType))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(DefaultOptions())

	s, err := r.ForContentType("text/markdown")
	require.NoError(t, err)
	assert.Equal(t, StrategyDefault, s.Name())

	s, err = r.ForContentType("application/json")
	require.NoError(t, err)
	assert.Equal(t, StrategyStructured, s.Name())

	empty := &Registry{strategies: map[string]Strategy{}}
	_, err = empty.ForContentType("text/markdown")
	assert.Error(t, err)
}

func hit(c types.StoredChunk, score float64) types.SearchHit {
	return types.SearchHit{Chunk: c, Score: score}
}

func TestAssembler_GroupsByURL(t *testing.T) {
	store, chunks := setupGuide(t, "text/markdown")

	other := types.StoredChunk{ID: 500, URL: "https://docs.example.com/other", Title: "Other", Content: "other page", Metadata: types.ChunkMetadata{Path: []string{}}}
	source := &stubSource{hits: []types.SearchHit{
		hit(chunks[2], 0.05),
		hit(other, 0.04),
		hit(chunks[5], 0.03),
	}}

	a := New(source, store, Config{Options: DefaultOptions()})
	results, err := a.Search(context.Background(), "docsearch", "1.0.0", "install", 5)
	require.NoError(t, err)
	assert.Equal(t, 10, source.gotLimit, "overfetches limit*2")

	require.Len(t, results, 2)
	assert.Equal(t, guideURL, results[0].URL)
	assert.Equal(t, "Guide", results[0].Title)
	assert.Equal(t, "text/markdown", results[0].ContentType)
	assert.Equal(t, 0.05, results[0].Score, "best hit of the page")
	assert.Contains(t, results[0].Content, "Usage intro", "every hit in the group is expanded")
	assert.Contains(t, results[0].Content, "Setup: prerequisites")

	assert.Equal(t, "https://docs.example.com/other", results[1].URL)
	assert.Equal(t, 0.04, results[1].Score)
}

func TestAssembler_ScoreIsMaxNotAverage(t *testing.T) {
	store, chunks := setupGuide(t, "text/markdown")
	source := &stubSource{hits: []types.SearchHit{hit(chunks[4], 0.02), hit(chunks[2], 0.09), hit(chunks[5], 0.01)}}

	results, err := New(source, store, Config{}).Search(context.Background(), "docsearch", "1.0.0", "q", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.09, results[0].Score)
}

func TestAssembler_TruncatesToLimit(t *testing.T) {
	store, _ := setupGuide(t, "text/markdown")
	var hits []types.SearchHit
	for i := 0; i < 6; i++ {
		url := "https://docs.example.com/p" + string(rune('a'+i))
		hits = append(hits, hit(types.StoredChunk{ID: int64(100 + i), URL: url, Content: url}, 1.0/float64(i+1)))
	}

	results, err := New(&stubSource{hits: hits}, store, Config{}).Search(context.Background(), "docsearch", "1.0.0", "q", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://docs.example.com/pa", results[0].URL)
	assert.Equal(t, "https://docs.example.com/pb", results[1].URL)
}

func TestAssembler_NoHits(t *testing.T) {
	store, _ := setupGuide(t, "text/markdown")
	results, err := New(&stubSource{}, store, Config{}).Search(context.Background(), "docsearch", "1.0.0", "", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestAssembler_SourceError(t *testing.T) {
	store, _ := setupGuide(t, "text/markdown")
	boom := errors.New("boom")
	_, err := New(&stubSource{err: boom}, store, Config{}).Search(context.Background(), "docsearch", "1.0.0", "q", 5)
	assert.ErrorIs(t, err, boom)
}

func TestJoin_DropsRepeatedHeadings(t *testing.T) {
	chunks := []types.StoredChunk{
		{ID: 1, Content: "## Setup\nPrerequisites first"},
		{ID: 2, Content: "## Setup\n### Install\nRun npm install"},
		{ID: 3, Content: "### Install\nVerify the install"},
		{ID: 4, Content: "## Setup"},
		{ID: 5, Content: "#hashtag is prose\nand stays"},
		{ID: 6, Content: "## Usage\nCall search"},
	}

	got := join(chunks, "\n\n")
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, got.ChunkIDs)
	assert.Equal(t, "## Setup\nPrerequisites first\n\n"+
		"### Install\nRun npm install\n\n"+
		"Verify the install\n\n"+
		"#hashtag is prose\nand stays\n\n"+
		"## Usage\nCall search", got.Content)
}

func TestHeadingLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{line: "# Title", want: true},
		{line: "  ### Nested  ", want: true},
		{line: "##", want: true},
		{line: "#hashtag", want: false},
		{line: "####### too deep", want: false},
		{line: "plain", want: false},
	}
	for _, tt := range tests {
		_, ok := headingLine(tt.line)
		assert.Equal(t, tt.want, ok, tt.line)
	}
}
