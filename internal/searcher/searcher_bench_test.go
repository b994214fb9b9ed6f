package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

var benchTopics = []string{"routing", "state management", "data fetching", "testing", "deployment"}

// setupSearchBenchmark indexes pages*10 generated chunks with the local embedder
func setupSearchBenchmark(b *testing.B, pages int, emb embedder.Embedder) (*storage.SQLiteStorage, *Searcher) {
	b.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatal(err)
	}

	var chunks []types.Chunk
	for p := 0; p < pages; p++ {
		topic := benchTopics[p%len(benchTopics)]
		for c := 0; c < 10; c++ {
			chunks = append(chunks, types.Chunk{
				URL:     fmt.Sprintf("https://docs.example.com/guide/%d", p),
				Title:   "Guide to " + topic,
				Content: fmt.Sprintf("Section %d explains %s with examples and configuration options.", c, topic),
				Metadata: types.ChunkMetadata{
					Path:  []string{"Guide", fmt.Sprintf("Part %d", c/3)},
					Level: 2,
				},
			})
		}
	}

	local, err := embedder.NewLocalProvider(nil)
	if err != nil {
		b.Fatal(err)
	}
	idx := indexer.New(store, indexer.Options{Embedder: local})
	if _, err := idx.AddDocuments(ctx, "bench", "1.0.0", chunks); err != nil {
		_ = store.Close()
		b.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.CacheSize = 0
	return store, New(store, Options{Embedder: emb, Config: cfg})
}

// BenchmarkHybridSearch benchmarks full hybrid search (vector + BM25 + RRF)
func BenchmarkHybridSearch(b *testing.B) {
	local, _ := embedder.NewLocalProvider(embedder.NewCache(100))
	store, srch := setupSearchBenchmark(b, 50, local)
	defer store.Close()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := srch.FindByContent(context.Background(), "bench", "1.0.0", "state management configuration", 10); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFullTextSearch benchmarks fallback mode
func BenchmarkFullTextSearch(b *testing.B) {
	store, srch := setupSearchBenchmark(b, 50, nil)
	defer store.Close()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := srch.FindByContent(context.Background(), "bench", "1.0.0", "data fetching", 10); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFuse(b *testing.B) {
	text := make([]storage.TextResult, 40)
	vector := make([]storage.VectorResult, 400)
	for i := range text {
		text[i] = storage.TextResult{ChunkID: int64(i * 3), BM25Score: float64(100 - i)}
	}
	for i := range vector {
		vector[i] = storage.VectorResult{ChunkID: int64(i), Distance: float64(i) / 100}
	}
	cfg := DefaultConfig()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = fuse(vector, text, cfg)
	}
}

func BenchmarkBuildFTSQuery(b *testing.B) {
	queries := []string{"hooks", "react server components streaming", `"exact phrase" with quotes`}
	for _, q := range queries {
		b.Run(q, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = BuildFTSQuery(q)
			}
		})
	}
}
