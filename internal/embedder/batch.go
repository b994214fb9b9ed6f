package embedder

import (
	"context"
	"fmt"
)

// Default batch budgets for EmbedAll
const (
	DefaultBatchMaxItems = MaxBatchSize
	DefaultBatchMaxChars = 50000
)

// BatchLimits bounds a single provider request. Whichever limit is reached
// first closes the batch.
type BatchLimits struct {
	MaxItems int
	MaxChars int
}

// DefaultBatchLimits returns the provider-safe defaults
func DefaultBatchLimits() BatchLimits {
	return BatchLimits{MaxItems: DefaultBatchMaxItems, MaxChars: DefaultBatchMaxChars}
}

func (l BatchLimits) normalized() BatchLimits {
	if l.MaxItems <= 0 {
		l.MaxItems = DefaultBatchMaxItems
	}
	if l.MaxChars <= 0 {
		l.MaxChars = DefaultBatchMaxChars
	}
	return l
}

// Batch is a half-open range [Start, End) into the planned texts
type Batch struct {
	Start int
	End   int
}

// Len returns the number of texts in the batch
func (b Batch) Len() int {
	return b.End - b.Start
}

// PlanBatches splits texts into consecutive batches. A single text longer
// than MaxChars still gets a batch of its own.
func PlanBatches(texts []string, limits BatchLimits) []Batch {
	limits = limits.normalized()

	var batches []Batch
	start, chars := 0, 0
	for i, text := range texts {
		n := len(text)
		if i > start && (i-start >= limits.MaxItems || chars+n > limits.MaxChars) {
			batches = append(batches, Batch{Start: start, End: i})
			start, chars = i, 0
		}
		chars += n
	}
	if start < len(texts) {
		batches = append(batches, Batch{Start: start, End: len(texts)})
	}
	return batches
}

// EmbedAll embeds texts batch by batch, in order, and returns one vector
// per text in input order
func EmbedAll(ctx context.Context, emb Embedder, texts []string, limits BatchLimits) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for _, b := range PlanBatches(texts, limits) {
		resp, err := emb.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts[b.Start:b.End]})
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch [%d:%d]: %w", b.Start, b.End, err)
		}
		if len(resp.Embeddings) != b.Len() {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), b.Len())
		}
		for _, e := range resp.Embeddings {
			vectors = append(vectors, e.Vector)
		}
	}
	return vectors, nil
}

// PadVector returns v zero-padded or truncated to dim
func PadVector(v []float32, dim int) []float32 {
	out := make([]float32, dim)
	copy(out, v)
	return out
}
