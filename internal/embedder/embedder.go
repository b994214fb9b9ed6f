package embedder

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrAuthFailed        = errors.New("embedding provider rejected credentials")
)

// DimensionError reports a model whose vectors don't fit the store
type DimensionError struct {
	Model     string
	Dimension int
	Max       int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("model %s produces %d-dimension vectors, store supports at most %d",
		e.Model, e.Dimension, e.Max)
}

// ConfigError reports a malformed or rejected embedding configuration
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid embedding %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid embedding %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
}

// EmbeddingRequest represents a request to generate embeddings
type EmbeddingRequest struct {
	Text  string
	Model string // Optional: override default model
}

// BatchEmbeddingRequest represents a batch request
type BatchEmbeddingRequest struct {
	Texts []string
	Model string // Optional: override default model
}

// BatchEmbeddingResponse represents a batch response
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder interface defines methods for generating embeddings
type Embedder interface {
	// GenerateEmbedding generates a single embedding for the given text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch generates embeddings for multiple texts, preserving input order
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the native embedding dimension, 0 if unknown until probed
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache holds vectors already produced for a model and text, shared by
// ingestion and query embedding. A nil *Cache is a valid, empty cache.
type Cache struct {
	vectors *lru.Cache[[sha256.Size]byte, []float32]
}

// NewCache creates a cache holding at most maxLen vectors
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = defaultCacheSize
	}
	vectors, err := lru.New[[sha256.Size]byte, []float32](maxLen)
	if err != nil {
		vectors, _ = lru.New[[sha256.Size]byte, []float32](defaultCacheSize)
	}
	return &Cache{vectors: vectors}
}

const defaultCacheSize = 10000

// Lookup returns a copy of the cached vector for text under model
func (c *Cache) Lookup(model, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.vectors.Get(cacheKey(model, text))
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// Store records the vector for text under model
func (c *Cache) Store(model, text string, vector []float32) {
	if c == nil {
		return
	}
	c.vectors.Add(cacheKey(model, text), append([]float32(nil), vector...))
}

func (c *Cache) entries() int {
	if c == nil {
		return 0
	}
	return c.vectors.Len()
}

// cacheKey separates model and text with a NUL so "ab"+"c" != "a"+"bc"
func cacheKey(model, text string) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	var key [sha256.Size]byte
	copy(key[:], h.Sum(nil))
	return key
}

// validateTexts rejects an empty request or any empty text
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}

// newEmbedding wraps a vector produced by provider and model
func newEmbedding(vector []float32, provider, model string) *Embedding {
	return &Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Provider:  provider,
		Model:     model,
	}
}
