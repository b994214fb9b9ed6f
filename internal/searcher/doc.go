// Package searcher ranks documentation chunks for a library version by
// combining full-text relevance with vector similarity.
//
// # Basic Usage
//
//	s := searcher.New(store, searcher.Options{
//	    Embedder: emb, // nil selects full-text mode
//	    Config:   searcher.DefaultConfig(),
//	    Logger:   logger,
//	})
//
//	hits, err := s.FindByContent(ctx, "react", "18.2.0", "use effect cleanup", 10)
//	for _, hit := range hits {
//	    fmt.Printf("%d %.4f %s\n", hit.Chunk.ID, hit.Score, hit.Chunk.URL)
//	}
//
// # Search Modes
//
// The mode is fixed when the Searcher is built.
//
// Hybrid (an embedder is configured):
//
//   - BM25 candidates are fetched with limit*OverfetchFactor
//   - vector candidates with limit*OverfetchFactor*VectorMultiplier
//   - both legs run concurrently
//   - each list is ranked on its own, 1 being best
//   - Reciprocal Rank Fusion merges them:
//     score = WeightVector/(k+vec_rank) + WeightFTS/(k+fts_rank)
//
// A chunk found by only one leg keeps the single term. If the query
// embedding fails the search falls back to text ranks for that call.
//
// Full-text (no embedder): only BM25 runs, fetched with the plain limit, and
// each hit scores WeightFTS/(k+fts_rank). VecRank is nil on every hit.
//
// # Query Compilation
//
// BuildFTSQuery turns free text into an FTS5 expression that ORs the exact
// phrase with each quoted term. Every token is quoted, so FTS5 operators
// and SQL fragments in user input are matched literally. Blank or
// punctuation-only queries return no results without touching the store.
//
// # Caching
//
// Responses are cached in an LRU keyed by library, version, query and
// limit. InvalidateCache must be called after writes.
package searcher
