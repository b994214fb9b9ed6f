package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// Store is the part of storage the indexer writes through
type Store interface {
	ResolveVersion(ctx context.Context, library, version string) (int64, error)
	ReplacePages(ctx context.Context, versionID int64, pages []storage.PageWrite) error
}

// Indexer coordinates the ingestion pipeline: validate -> group -> embed -> store
type Indexer struct {
	store    Store
	embedder embedder.Embedder
	limits   embedder.BatchLimits
	logger   zerolog.Logger
}

// Options configures an Indexer. A nil Embedder stores chunks without
// vectors, which leaves search in full-text mode.
type Options struct {
	Embedder    embedder.Embedder
	BatchLimits embedder.BatchLimits
	Logger      zerolog.Logger
}

// Statistics describes one AddDocuments call
type Statistics struct {
	Pages    int
	Chunks   int
	Batches  int
	Embedded int
	Duration time.Duration
}

// New creates a new Indexer instance
func New(store Store, opts Options) *Indexer {
	limits := opts.BatchLimits
	if limits.MaxItems <= 0 || limits.MaxChars <= 0 {
		def := embedder.DefaultBatchLimits()
		if limits.MaxItems <= 0 {
			limits.MaxItems = def.MaxItems
		}
		if limits.MaxChars <= 0 {
			limits.MaxChars = def.MaxChars
		}
	}
	return &Indexer{
		store:    store,
		embedder: opts.Embedder,
		limits:   limits,
		logger:   opts.Logger,
	}
}

// VectorEnabled reports whether chunks are embedded on ingestion
func (idx *Indexer) VectorEnabled() bool {
	return idx.embedder != nil
}

// pageGroup is the chunks of one URL in input order
type pageGroup struct {
	url    string
	chunks []types.Chunk
}

// AddDocuments replaces the stored chunks of every URL present in chunks.
// Validation runs before any store access; the write itself is one
// transaction.
func (idx *Indexer) AddDocuments(ctx context.Context, library, version string, chunks []types.Chunk) (*Statistics, error) {
	start := time.Now()

	if err := validateChunks(chunks); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &Statistics{}, nil
	}

	groups := groupByURL(chunks)
	stats := &Statistics{Pages: len(groups), Chunks: len(chunks)}

	var vectors [][]float32
	if idx.embedder != nil {
		texts := make([]string, 0, len(chunks))
		for _, g := range groups {
			for _, c := range g.chunks {
				texts = append(texts, EmbeddingText(c))
			}
		}

		var err error
		vectors, err = embedder.EmbedAll(ctx, idx.embedder, texts, idx.limits)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		stats.Batches = len(embedder.PlanBatches(texts, idx.limits))
		stats.Embedded = len(vectors)
	}

	versionID, err := idx.store.ResolveVersion(ctx, library, version)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve version: %w", err)
	}

	pages := buildPageWrites(groups, vectors)
	if err := idx.store.ReplacePages(ctx, versionID, pages); err != nil {
		return nil, fmt.Errorf("failed to store pages: %w", err)
	}

	stats.Duration = time.Since(start)
	idx.logger.Debug().
		Str("library", library).
		Str("version", version).
		Int("urls", stats.Pages).
		Int("chunks", stats.Chunks).
		Int("batches", stats.Batches).
		Dur("duration", stats.Duration).
		Msg("documents added")

	return stats, nil
}

func validateChunks(chunks []types.Chunk) error {
	for i, c := range chunks {
		if strings.TrimSpace(c.URL) == "" {
			return &storage.StoreError{
				Op:  "add_documents",
				Err: fmt.Errorf("%w: chunk %d has no url", storage.ErrInvalidInput, i),
			}
		}
	}
	return nil
}

// groupByURL groups chunks by URL in first-appearance order, keeping input
// order within each group
func groupByURL(chunks []types.Chunk) []pageGroup {
	index := make(map[string]int)
	var groups []pageGroup
	for _, c := range chunks {
		i, ok := index[c.URL]
		if !ok {
			i = len(groups)
			index[c.URL] = i
			groups = append(groups, pageGroup{url: c.URL})
		}
		groups[i].chunks = append(groups[i].chunks, c)
	}
	return groups
}

// buildPageWrites maps groups to storage writes. vectors is empty or holds
// one embedding per chunk in group order.
func buildPageWrites(groups []pageGroup, vectors [][]float32) []storage.PageWrite {
	pages := make([]storage.PageWrite, 0, len(groups))
	next := 0
	for _, g := range groups {
		page := storage.PageWrite{URL: g.url, Chunks: make([]storage.ChunkWrite, 0, len(g.chunks))}
		for _, c := range g.chunks {
			page.Title = firstNonEmpty(page.Title, c.Title)
			page.ContentType = firstNonEmpty(page.ContentType, c.ContentType)
			page.ETag = firstNonEmpty(page.ETag, c.ETag)
			page.LastModified = firstNonEmpty(page.LastModified, c.LastModified)

			cw := storage.ChunkWrite{Content: c.Content, Metadata: c.Metadata}
			if next < len(vectors) {
				cw.Embedding = embedder.PadVector(vectors[next], storage.VectorDimension)
			}
			next++
			page.Chunks = append(page.Chunks, cw)
		}
		pages = append(pages, page)
	}
	return pages
}

// EmbeddingText prefixes chunk content with a header naming its page and
// position so the heading path influences the vector
func EmbeddingText(c types.Chunk) string {
	var b strings.Builder
	b.WriteString("<title>")
	b.WriteString(c.Title)
	b.WriteString("</title>\n<url>")
	b.WriteString(c.URL)
	b.WriteString("</url>\n<path>")
	b.WriteString(c.Metadata.PathString())
	b.WriteString("</path>\n")
	b.WriteString(c.Content)
	return b.String()
}

func firstNonEmpty(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}
