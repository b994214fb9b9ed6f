package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dshills/docsearch-mcp/internal/assembly"
	"github.com/dshills/docsearch-mcp/internal/config"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// Engine is the documentation store and its retrieval pipeline. It is safe
// for concurrent use; writers are serialized by the database.
type Engine struct {
	cfg       config.Config
	store     *storage.SQLiteStorage
	embedder  embedder.Embedder // nil in full-text mode
	indexer   *indexer.Indexer
	searcher  *searcher.Searcher
	assembler *assembly.Assembler
	logger    zerolog.Logger

	// Capability describes why vector search is or is not available
	capability Capability
}

// Capability records the vector search decision made by New
type Capability struct {
	Enabled   bool
	Provider  string
	Model     string
	Dimension int
	Reason    string // why vector search is off, empty when enabled
}

type options struct {
	logger   zerolog.Logger
	embedder embedder.Embedder
}

// Option customizes New
type Option func(*options)

// WithLogger sets the logger passed to every component
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEmbedder bypasses provider selection and uses emb for vectors.
// The embedding disabled flag still wins.
func WithEmbedder(emb embedder.Embedder) Option {
	return func(o *options) { o.embedder = emb }
}

// New validates cfg, opens the store and decides the vector capability.
//
// Missing provider credentials, or an unreachable provider, leave the engine
// in full-text mode with a warning. A malformed model identifier, rejected
// credentials and a model wider than storage.VectorDimension are errors.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &storage.StoreError{Op: "open", Err: fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)}
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	emb, capability, err := selectEmbedder(ctx, cfg, o)
	if err != nil {
		return nil, err
	}

	path := cfg.DatabasePath()
	if path != config.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			closeEmbedder(emb)
			return nil, &storage.StoreError{Op: "open", Err: fmt.Errorf("failed to create database directory: %w", err)}
		}
	}

	store, err := storage.Open(ctx, path, storage.Options{
		BusyTimeout: cfg.Store.BusyTimeout(),
		Logger:      o.logger,
	})
	if err != nil {
		closeEmbedder(emb)
		return nil, err
	}

	srch := searcher.New(store, searcher.Options{
		Embedder: emb,
		Config: searcher.Config{
			OverfetchFactor:  cfg.Search.OverfetchFactor,
			VectorMultiplier: cfg.Search.VectorMultiplier,
			WeightVector:     cfg.Search.WeightVector,
			WeightFTS:        cfg.Search.WeightFTS,
			RRFConstant:      cfg.Search.RRFConstant,
			CacheSize:        cfg.Search.CacheSize,
			CacheTTL:         cfg.Search.CacheTTL(),
		},
		Logger: o.logger,
	})

	idx := indexer.New(store, indexer.Options{
		Embedder: emb,
		BatchLimits: embedder.BatchLimits{
			MaxItems: cfg.Embedding.BatchMaxItems,
			MaxChars: cfg.Embedding.BatchMaxChars,
		},
		Logger: o.logger,
	})

	asm := assembly.New(srch, store, assembly.Config{
		OverfetchFactor: cfg.Assembly.OverfetchFactor,
		Options: assembly.Options{
			PrecedingSiblings:  cfg.Assembly.PrecedingSiblings,
			SubsequentSiblings: cfg.Assembly.SubsequentSiblings,
			ChildLimit:         cfg.Assembly.ChildLimit,
			ExpandParent:       cfg.Assembly.ExpandParent,
		},
		Logger: o.logger,
	})

	e := &Engine{
		cfg:        *cfg,
		store:      store,
		embedder:   emb,
		indexer:    idx,
		searcher:   srch,
		assembler:  asm,
		logger:     o.logger,
		capability: capability,
	}

	event := o.logger.Info()
	if !capability.Enabled {
		event = o.logger.Warn().Str("reason", capability.Reason)
	}
	event.
		Bool("vector_enabled", capability.Enabled).
		Str("provider", capability.Provider).
		Str("model", capability.Model).
		Int("dimension", capability.Dimension).
		Str("search_mode", string(srch.Mode())).
		Msg("engine ready")

	return e, nil
}

// selectEmbedder decides the vector capability for cfg
func selectEmbedder(ctx context.Context, cfg *config.Config, o options) (embedder.Embedder, Capability, error) {
	if cfg.Embedding.Disabled {
		closeEmbedder(o.embedder)
		return nil, Capability{Reason: "embeddings disabled by configuration"}, nil
	}

	emb := o.embedder
	if emb == nil {
		spec, err := embedder.ParseModelSpec(cfg.Embedding.Model)
		if err != nil {
			return nil, Capability{}, err
		}
		capability := Capability{Provider: spec.Provider, Model: spec.Model}

		if !embedder.CredentialsAvailable(spec.Provider, cfg.Embedding.APIKey) {
			capability.Reason = fmt.Sprintf("no credentials for provider %s", spec.Provider)
			return nil, capability, nil
		}

		emb, err = embedder.New(embedder.Config{
			Spec:              spec,
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			CacheSize:         cfg.Embedding.CacheSize,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Timeout:           cfg.Embedding.Timeout(),
		})
		if err != nil {
			if errors.Is(err, embedder.ErrNoProviderEnabled) {
				capability.Reason = err.Error()
				return nil, capability, nil
			}
			return nil, capability, &embedder.ConfigError{Field: "model", Value: spec.String(), Err: err}
		}
	}

	capability := Capability{Provider: emb.Provider(), Model: emb.Model()}
	dimension, err := embedder.ProbeDimension(ctx, emb)
	if err != nil {
		var cfgErr *embedder.ConfigError
		if errors.As(err, &cfgErr) {
			closeEmbedder(emb)
			return nil, capability, err
		}
		closeEmbedder(emb)
		capability.Reason = err.Error()
		return nil, capability, nil
	}
	capability.Dimension = dimension

	if dimension > storage.VectorDimension {
		closeEmbedder(emb)
		return nil, capability, &embedder.DimensionError{
			Model:     emb.Provider() + ":" + emb.Model(),
			Dimension: dimension,
			Max:       storage.VectorDimension,
		}
	}

	capability.Enabled = true
	return emb, capability, nil
}

func closeEmbedder(emb embedder.Embedder) {
	if emb != nil {
		_ = emb.Close()
	}
}

// Close releases the store and the embedder
func (e *Engine) Close() error {
	closeEmbedder(e.embedder)
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	e.logger.Debug().Msg("engine closed")
	return nil
}

// VectorEnabled reports whether ingestion embeds chunks and search is hybrid
func (e *Engine) VectorEnabled() bool {
	return e.capability.Enabled
}

// Capability returns the vector search decision
func (e *Engine) Capability() Capability {
	return e.capability
}

// Config returns the configuration the engine was built from
func (e *Engine) Config() config.Config {
	return e.cfg
}

// ResolveVersion returns the id for (library, version), creating rows on first use
func (e *Engine) ResolveVersion(ctx context.Context, library, version string) (int64, error) {
	return e.store.ResolveVersion(ctx, library, version)
}

// AddDocuments replaces the stored chunks of every URL present in chunks
func (e *Engine) AddDocuments(ctx context.Context, library, version string, chunks []types.Chunk) error {
	_, err := e.indexer.AddDocuments(ctx, library, version, chunks)
	if err != nil {
		return err
	}
	e.searcher.InvalidateCache()
	return nil
}

// FindByContent returns up to limit ranked chunks
func (e *Engine) FindByContent(ctx context.Context, library, version, query string, limit int) ([]types.SearchHit, error) {
	return e.searcher.FindByContent(ctx, library, version, query, limit)
}

// Search returns up to limit assembled page-level answers
func (e *Engine) Search(ctx context.Context, library, version, query string, limit int) ([]types.AssembledResult, error) {
	return e.assembler.Search(ctx, library, version, query, limit)
}

// RemoveVersion deletes a version with its pages and chunks. A missing
// version yields a zero result.
func (e *Engine) RemoveVersion(ctx context.Context, library, version string, removeLibraryIfEmpty bool) (types.RemoveResult, error) {
	result, err := e.store.RemoveVersion(ctx, library, version, removeLibraryIfEmpty)
	if err != nil {
		return result, err
	}
	if result.VersionDeleted {
		e.searcher.InvalidateCache()
	}
	return result, nil
}

func (e *Engine) ListVersions(ctx context.Context, library string) ([]types.VersionSummary, error) {
	return e.store.ListVersions(ctx, library)
}

func (e *Engine) ListLibraries(ctx context.Context) ([]types.LibrarySummary, error) {
	return e.store.ListLibraries(ctx)
}

// CheckExists reports whether the version holds any documents
func (e *Engine) CheckExists(ctx context.Context, library, version string) (bool, error) {
	return e.store.CheckExists(ctx, library, version)
}

// GetByID returns nil, nil for an unknown id
func (e *Engine) GetByID(ctx context.Context, id int64) (*types.StoredChunk, error) {
	return e.store.GetByID(ctx, id)
}

func (e *Engine) FindChunksByIDs(ctx context.Context, library, version string, ids []int64) ([]types.StoredChunk, error) {
	versionID, ok, err := e.store.LookupVersion(ctx, library, version)
	if err != nil || !ok {
		return []types.StoredChunk{}, err
	}
	return e.store.FindChunksByIDs(ctx, versionID, ids)
}

func (e *Engine) FindChunksByURL(ctx context.Context, library, version, url string) ([]types.StoredChunk, error) {
	versionID, ok, err := e.store.LookupVersion(ctx, library, version)
	if err != nil || !ok {
		return []types.StoredChunk{}, err
	}
	return e.store.FindChunksByURL(ctx, versionID, url)
}

func (e *Engine) ListPages(ctx context.Context, library, version string) ([]types.PageInfo, error) {
	versionID, ok, err := e.store.LookupVersion(ctx, library, version)
	if err != nil || !ok {
		return []types.PageInfo{}, err
	}
	return e.store.ListPages(ctx, versionID)
}

func (e *Engine) StoreScraperOptions(ctx context.Context, versionID int64, opts types.ScraperOptions) error {
	return e.store.StoreScraperOptions(ctx, versionID, opts)
}

func (e *Engine) GetScraperOptions(ctx context.Context, versionID int64) (*types.StoredScraperOptions, error) {
	return e.store.GetScraperOptions(ctx, versionID)
}

func (e *Engine) FindVersionsBySourceURL(ctx context.Context, url string) ([]types.VersionSummary, error) {
	return e.store.FindVersionsBySourceURL(ctx, url)
}

func (e *Engine) UpdateVersionStatus(ctx context.Context, versionID int64, status types.VersionStatus, errMsg string) error {
	return e.store.UpdateVersionStatus(ctx, versionID, status, errMsg)
}

func (e *Engine) UpdateVersionProgress(ctx context.Context, versionID int64, pages, maxPages int) error {
	return e.store.UpdateVersionProgress(ctx, versionID, pages, maxPages)
}

func (e *Engine) GetVersionsByStatus(ctx context.Context, statuses ...types.VersionStatus) ([]types.VersionSummary, error) {
	return e.store.GetVersionsByStatus(ctx, statuses...)
}

// FindBestVersion picks the indexed version that best matches target
func (e *Engine) FindBestVersion(ctx context.Context, library, target string) (types.VersionMatch, error) {
	return e.store.FindBestVersion(ctx, library, target)
}

// Stats returns row counts for the whole database
func (e *Engine) Stats(ctx context.Context) (*storage.Stats, error) {
	return e.store.Stats(ctx)
}
