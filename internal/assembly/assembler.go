package assembly

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// Defaults for Config fields left at zero
const (
	DefaultLimit           = 10
	DefaultOverfetchFactor = 2
)

// HitSource produces ranked chunks for a query
type HitSource interface {
	FindByContent(ctx context.Context, library, version, query string, limit int) ([]types.SearchHit, error)
}

// Config configures an Assembler
type Config struct {
	OverfetchFactor int
	Options         Options
	Registry        *Registry // nil builds one from Options
	Logger          zerolog.Logger
}

// Assembler builds page-level answers from ranked chunks
type Assembler struct {
	source    HitSource
	reader    storage.ChunkReader
	registry  *Registry
	overfetch int
	logger    zerolog.Logger
}

// New creates an Assembler
func New(source HitSource, reader storage.ChunkReader, cfg Config) *Assembler {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(cfg.Options)
	}
	overfetch := cfg.OverfetchFactor
	if overfetch <= 0 {
		overfetch = DefaultOverfetchFactor
	}
	return &Assembler{
		source:    source,
		reader:    reader,
		registry:  registry,
		overfetch: overfetch,
		logger:    cfg.Logger,
	}
}

// urlGroup is the hits of one page in rank order
type urlGroup struct {
	url   string
	hits  []types.SearchHit
	score float64
}

// Search returns up to limit assembled results, one per page, ordered by
// each page's best hit
func (a *Assembler) Search(ctx context.Context, library, version, query string, limit int) ([]types.AssembledResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	hits, err := a.source.FindByContent(ctx, library, version, query, limit*a.overfetch)
	if err != nil {
		return nil, err
	}

	groups := groupHits(hits)
	if len(groups) > limit {
		groups = groups[:limit]
	}

	results := make([]types.AssembledResult, 0, len(groups))
	for _, g := range groups {
		result, err := a.assembleGroup(ctx, g)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	a.logger.Debug().
		Str("library", library).
		Str("version", version).
		Int("hits", len(hits)).
		Int("results", len(results)).
		Msg("results assembled")

	return results, nil
}

func (a *Assembler) assembleGroup(ctx context.Context, g urlGroup) (types.AssembledResult, error) {
	first := g.hits[0].Chunk
	strategy, err := a.registry.ForContentType(first.ContentType)
	if err != nil {
		return types.AssembledResult{}, err
	}

	chunks := make([]types.StoredChunk, len(g.hits))
	for i, h := range g.hits {
		chunks[i] = h.Chunk
	}

	assembled, err := strategy.Assemble(ctx, a.reader, chunks)
	if err != nil {
		return types.AssembledResult{}, fmt.Errorf("failed to assemble %s with %s strategy: %w", g.url, strategy.Name(), err)
	}

	return types.AssembledResult{
		URL:         g.url,
		Title:       first.Title,
		Content:     assembled.Content,
		Score:       g.score,
		ContentType: first.ContentType,
		ChunkIDs:    assembled.ChunkIDs,
	}, nil
}

// groupHits groups hits by URL in first-appearance order. A group's score
// is the best score among its hits.
func groupHits(hits []types.SearchHit) []urlGroup {
	index := make(map[string]int)
	var groups []urlGroup
	for _, h := range hits {
		i, ok := index[h.Chunk.URL]
		if !ok {
			i = len(groups)
			index[h.Chunk.URL] = i
			groups = append(groups, urlGroup{url: h.Chunk.URL, score: h.Score})
		}
		groups[i].hits = append(groups[i].hits, h)
		if h.Score > groups[i].score {
			groups[i].score = h.Score
		}
	}
	return groups
}
