package storage

import (
	"context"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// VectorDimension is the fixed width of every stored embedding
const VectorDimension = 1536

// Storage defines the interface for persisting and querying versioned documentation
type Storage interface {
	// Identity operations
	ResolveVersion(ctx context.Context, library, version string) (int64, error)
	LookupVersion(ctx context.Context, library, version string) (int64, bool, error)

	// Ingestion
	ReplacePages(ctx context.Context, versionID int64, pages []PageWrite) error

	// Candidate retrieval
	CandidateSearcher

	// Chunk reads
	ChunkReader
	FindChunksByURL(ctx context.Context, versionID int64, url string) ([]types.StoredChunk, error)
	ListPages(ctx context.Context, versionID int64) ([]types.PageInfo, error)

	// Lifecycle operations
	RemoveVersion(ctx context.Context, library, version string, removeLibraryIfEmpty bool) (types.RemoveResult, error)
	ListVersions(ctx context.Context, library string) ([]types.VersionSummary, error)
	ListLibraries(ctx context.Context) ([]types.LibrarySummary, error)
	CheckExists(ctx context.Context, library, version string) (bool, error)
	FindBestVersion(ctx context.Context, library, target string) (types.VersionMatch, error)

	// Status operations
	UpdateVersionStatus(ctx context.Context, versionID int64, status types.VersionStatus, errMsg string) error
	UpdateVersionProgress(ctx context.Context, versionID int64, pages, maxPages int) error
	GetVersionsByStatus(ctx context.Context, statuses ...types.VersionStatus) ([]types.VersionSummary, error)

	// Scraper options
	StoreScraperOptions(ctx context.Context, versionID int64, opts types.ScraperOptions) error
	GetScraperOptions(ctx context.Context, versionID int64) (*types.StoredScraperOptions, error)
	FindVersionsBySourceURL(ctx context.Context, url string) ([]types.VersionSummary, error)

	// Database operations
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// CandidateSearcher produces the raw candidate lists fused by hybrid search
type CandidateSearcher interface {
	SearchText(ctx context.Context, versionID int64, ftsQuery string, limit int) ([]TextResult, error)
	SearchVector(ctx context.Context, versionID int64, vector []float32, limit int) ([]VectorResult, error)
	FindChunksByIDs(ctx context.Context, versionID int64, ids []int64) ([]types.StoredChunk, error)
}

// ChunkReader gives assembly strategies access to a chunk's neighbourhood
type ChunkReader interface {
	GetByID(ctx context.Context, id int64) (*types.StoredChunk, error)
	FindParentChunk(ctx context.Context, chunk types.StoredChunk) (*types.StoredChunk, error)
	FindPrecedingSiblings(ctx context.Context, chunk types.StoredChunk, limit int) ([]types.StoredChunk, error)
	FindSubsequentSiblings(ctx context.Context, chunk types.StoredChunk, limit int) ([]types.StoredChunk, error)
	FindChildChunks(ctx context.Context, chunk types.StoredChunk, limit int) ([]types.StoredChunk, error)
}

// PageWrite is one page and its complete, ordered chunk set
type PageWrite struct {
	URL          string
	Title        string
	ContentType  string
	ETag         string
	LastModified string
	Chunks       []ChunkWrite
}

// ChunkWrite is a chunk to insert. Embedding is nil in full-text-only mode
// and otherwise exactly VectorDimension wide.
type ChunkWrite struct {
	Content   string
	Metadata  types.ChunkMetadata
	Embedding []float32
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID  int64
	Distance float64
}

// Similarity converts the L2 distance into a score in (0, 1]
func (r VectorResult) Similarity() float64 {
	return 1.0 / (1.0 + r.Distance)
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID int64
	// BM25Score is the negated bm25 value, higher is better
	BM25Score float64
}

// Stats contains row counts for the whole database
type Stats struct {
	Libraries  int
	Versions   int
	Pages      int
	Documents  int
	Embeddings int
	BuildMode  string
	VectorSQL  bool
}
