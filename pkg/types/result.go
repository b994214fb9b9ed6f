package types

// SearchHit is one ranked chunk returned by hybrid search
type SearchHit struct {
	Chunk StoredChunk

	// Score is the fused relevance score, always positive
	Score float64

	// VecRank and FTSRank are 1-based ranks within each signal.
	// A nil rank means the chunk was not a candidate for that signal.
	VecRank *int
	FTSRank *int

	// Raw signal values, zero when the matching rank is nil
	VecDistance float64
	FTSScore    float64
}

// Signals names the rankings that contributed to the hit: "hybrid",
// "vector" or "text"
func (h SearchHit) Signals() string {
	switch {
	case h.VecRank != nil && h.FTSRank != nil:
		return "hybrid"
	case h.VecRank != nil:
		return "vector"
	default:
		return "text"
	}
}

// AssembledResult is one page-level answer built from the top hits of a page
type AssembledResult struct {
	URL         string
	Title       string
	Content     string
	Score       float64
	ContentType string
	// ChunkIDs lists the chunks joined into Content, in reading order.
	ChunkIDs []int64
}
