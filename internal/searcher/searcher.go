package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid   SearchMode = "hybrid"   // Vector + BM25 with RRF
	SearchModeFullText SearchMode = "fulltext" // BM25 text search only
)

// Defaults for Config fields left at zero
const (
	DefaultLimit            = 10
	DefaultOverfetchFactor  = 2
	DefaultVectorMultiplier = 10
	DefaultRRFConstant      = 60.0
	DefaultWeight           = 1.0
	DefaultCacheSize        = 1000
	DefaultCacheTTL         = 5 * time.Minute
)

// Store is the part of storage hybrid search reads from
type Store interface {
	LookupVersion(ctx context.Context, library, version string) (int64, bool, error)
	storage.CandidateSearcher
}

// Config holds ranking parameters
type Config struct {
	OverfetchFactor  int
	VectorMultiplier int
	WeightVector     float64
	WeightFTS        float64
	RRFConstant      float64

	// CacheSize bounds the query cache, 0 disables it
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultConfig returns the standard ranking parameters
func DefaultConfig() Config {
	return Config{
		OverfetchFactor:  DefaultOverfetchFactor,
		VectorMultiplier: DefaultVectorMultiplier,
		WeightVector:     DefaultWeight,
		WeightFTS:        DefaultWeight,
		RRFConstant:      DefaultRRFConstant,
		CacheSize:        DefaultCacheSize,
		CacheTTL:         DefaultCacheTTL,
	}
}

func (c Config) normalized() Config {
	if c.OverfetchFactor <= 0 {
		c.OverfetchFactor = DefaultOverfetchFactor
	}
	if c.VectorMultiplier <= 0 {
		c.VectorMultiplier = DefaultVectorMultiplier
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.WeightVector == 0 && c.WeightFTS == 0 {
		c.WeightVector, c.WeightFTS = DefaultWeight, DefaultWeight
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// Options configures a Searcher. A nil Embedder selects full-text mode.
type Options struct {
	Embedder embedder.Embedder
	Config   Config
	Logger   zerolog.Logger
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Library  string
	Version  string
	Query    string
	Limit    int
	UseCache bool
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchHit
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher ranks chunks of one library version against a query
type Searcher struct {
	store    Store
	embedder embedder.Embedder
	cfg      Config
	logger   zerolog.Logger
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex

	// generation counts invalidations; guarded by cacheMu
	generation uint64
}

// New creates a new Searcher instance
func New(store Store, opts Options) *Searcher {
	s := &Searcher{
		store:    store,
		embedder: opts.Embedder,
		cfg:      opts.Config.normalized(),
		logger:   opts.Logger,
	}
	if s.cfg.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](s.cfg.CacheSize)
		if err != nil {
			// This should never happen with valid size parameter
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		s.cache = cache
	}
	return s
}

// Mode reports the search mode chosen at construction
func (s *Searcher) Mode() SearchMode {
	if s.embedder != nil {
		return SearchModeHybrid
	}
	return SearchModeFullText
}

// FindByContent returns the top chunks for query, best first
func (s *Searcher) FindByContent(ctx context.Context, library, version, query string, limit int) ([]types.SearchHit, error) {
	resp, err := s.Search(ctx, SearchRequest{
		Library:  library,
		Version:  version,
		Query:    query,
		Limit:    limit,
		UseCache: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Search performs a search based on the request parameters. Blank queries
// and unknown versions return no results without error.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()
	mode := s.Mode()

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}

	ftsQuery := BuildFTSQuery(req.Query)
	if ftsQuery == "" {
		return &SearchResponse{Results: []types.SearchHit{}, SearchMode: mode}, nil
	}

	generation := s.cacheGeneration()
	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	versionID, ok, err := s.store.LookupVersion(ctx, req.Library, req.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to look up version: %w", err)
	}
	if !ok {
		return &SearchResponse{Results: []types.SearchHit{}, SearchMode: mode}, nil
	}

	var response *SearchResponse
	if mode == SearchModeHybrid {
		response, err = s.hybridSearch(ctx, versionID, req, ftsQuery)
	} else {
		response, err = s.fullTextSearch(ctx, versionID, req, ftsQuery)
	}
	if err != nil {
		return nil, err
	}

	response.SearchMode = mode
	response.Duration = time.Since(startTime)

	s.logger.Debug().
		Str("mode", string(mode)).
		Str("library", req.Library).
		Str("version", req.Version).
		Int("vector_candidates", response.VectorResults).
		Int("text_candidates", response.TextResults).
		Int("results", len(response.Results)).
		Dur("duration", response.Duration).
		Msg("search completed")

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response, generation)
	}

	return response, nil
}

// hybridSearch combines vector and BM25 search using Reciprocal Rank Fusion
func (s *Searcher) hybridSearch(ctx context.Context, versionID int64, req SearchRequest, ftsQuery string) (*SearchResponse, error) {
	textLimit := req.Limit * s.cfg.OverfetchFactor
	vectorLimit := textLimit * s.cfg.VectorMultiplier

	var (
		vectorResults []storage.VectorResult
		textResults   []storage.TextResult
	)

	// A failing vector leg degrades to text-only ranking; a failing text
	// leg fails the search
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := s.vectorCandidates(gctx, versionID, req.Query, vectorLimit)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			s.logger.Warn().Err(err).Msg("vector search failed, ranking by text only")
			return nil
		}
		vectorResults = results
		return nil
	})
	g.Go(func() error {
		var err error
		textResults, err = s.store.SearchText(gctx, versionID, ftsQuery, textLimit)
		if err != nil {
			return fmt.Errorf("text search failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(vectorResults, textResults, s.cfg)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}

	results, err := s.fetchResults(ctx, versionID, fused)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		VectorResults: len(vectorResults),
		TextResults:   len(textResults),
	}, nil
}

func (s *Searcher) vectorCandidates(ctx context.Context, versionID int64, query string, limit int) ([]storage.VectorResult, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	vector := embedder.PadVector(emb.Vector, storage.VectorDimension)
	return s.store.SearchVector(ctx, versionID, vector, limit)
}

// fullTextSearch ranks by text relevance alone. Scores use the same RRF
// term so they stay positive and comparable in shape to hybrid scores.
func (s *Searcher) fullTextSearch(ctx context.Context, versionID int64, req SearchRequest, ftsQuery string) (*SearchResponse, error) {
	textResults, err := s.store.SearchText(ctx, versionID, ftsQuery, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	cfg := s.cfg
	if cfg.WeightFTS <= 0 {
		cfg.WeightFTS = DefaultWeight
	}
	fused := fuse(nil, textResults, cfg)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}

	results, err := s.fetchResults(ctx, versionID, fused)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:     results,
		TextResults: len(textResults),
	}, nil
}

// rankedResult represents a chunk with its fused score and per-signal ranks
type rankedResult struct {
	chunkID     int64
	score       float64
	vecRank     *int
	ftsRank     *int
	vecDistance float64
	ftsScore    float64
}

// fuse applies weighted Reciprocal Rank Fusion:
// score(d) = w_vec/(k + vec_rank(d)) + w_fts/(k + fts_rank(d)),
// where a missing rank contributes nothing
func fuse(vectorResults []storage.VectorResult, textResults []storage.TextResult, cfg Config) []rankedResult {
	k := cfg.RRFConstant
	byID := make(map[int64]*rankedResult, len(vectorResults)+len(textResults))
	get := func(id int64) *rankedResult {
		r, ok := byID[id]
		if !ok {
			r = &rankedResult{chunkID: id}
			byID[id] = r
		}
		return r
	}

	vectors := append([]storage.VectorResult(nil), vectorResults...)
	sort.SliceStable(vectors, func(i, j int) bool {
		a, b := vectors[i].Similarity(), vectors[j].Similarity()
		if a != b {
			return a > b
		}
		return vectors[i].ChunkID < vectors[j].ChunkID
	})
	for i, vr := range vectors {
		r := get(vr.ChunkID)
		if r.vecRank != nil {
			continue
		}
		rank := i + 1
		r.vecRank = &rank
		r.vecDistance = vr.Distance
		r.score += cfg.WeightVector / (k + float64(rank))
	}

	texts := append([]storage.TextResult(nil), textResults...)
	sort.SliceStable(texts, func(i, j int) bool {
		if texts[i].BM25Score != texts[j].BM25Score {
			return texts[i].BM25Score > texts[j].BM25Score
		}
		return texts[i].ChunkID < texts[j].ChunkID
	})
	for i, tr := range texts {
		r := get(tr.ChunkID)
		if r.ftsRank != nil {
			continue
		}
		rank := i + 1
		r.ftsRank = &rank
		r.ftsScore = tr.BM25Score
		r.score += cfg.WeightFTS / (k + float64(rank))
	}

	results := make([]rankedResult, 0, len(byID))
	for _, r := range byID {
		results = append(results, *r)
	}
	sortRankedResults(results)
	return results
}

// sortRankedResults sorts by score descending, then chunk id
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})
}

// fetchResults loads chunk rows for ranked results, keeping rank order.
// Chunks deleted since ranking are skipped.
func (s *Searcher) fetchResults(ctx context.Context, versionID int64, ranked []rankedResult) ([]types.SearchHit, error) {
	if len(ranked) == 0 {
		return []types.SearchHit{}, nil
	}

	ids := make([]int64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.chunkID
	}
	chunks, err := s.store.FindChunksByIDs(ctx, versionID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	byID := make(map[int64]types.StoredChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]types.SearchHit, 0, len(ranked))
	for _, r := range ranked {
		chunk, ok := byID[r.chunkID]
		if !ok {
			continue
		}
		results = append(results, types.SearchHit{
			Chunk:       chunk,
			Score:       r.score,
			VecRank:     r.vecRank,
			FTSRank:     r.ftsRank,
			VecDistance: r.vecDistance,
			FTSScore:    r.ftsScore,
		})
	}
	return results, nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	if s.cache == nil {
		return nil
	}
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// cacheGeneration returns the current invalidation count
func (s *Searcher) cacheGeneration() uint64 {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.generation
}

// storeInCache saves search results to cache. A response computed before
// the latest invalidation is dropped, since a write may have replaced the
// chunks it refers to.
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse, generation uint64) {
	if s.cache == nil {
		return
	}
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		return
	}
	s.cache.Add(computeQueryHash(req), entry)
}

// copySearchResponse copies the hit slice so callers can't mutate cached state
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = append([]types.SearchHit(nil), src.Results...)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(strings.ToLower(strings.TrimSpace(req.Library)))
	data.WriteString("|")
	data.WriteString(strings.ToLower(strings.TrimSpace(req.Version)))
	data.WriteString("|")
	data.WriteString(strings.TrimSpace(req.Query))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. Called after any write that
// changes the indexed content.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.cache != nil {
		s.cache.Purge()
	}
}
