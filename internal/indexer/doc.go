// Package indexer ingests scraped documentation chunks into the store.
//
// # Basic Usage
//
//	idx := indexer.New(store, indexer.Options{Embedder: emb, Logger: logger})
//
//	stats, err := idx.AddDocuments(ctx, "react", "18.2.0", chunks)
//	fmt.Printf("Stored %d chunks across %d pages\n", stats.Chunks, stats.Pages)
//
// # Pipeline
//
//  1. Validate: every chunk needs a URL, checked before any store access
//  2. Group: chunks are grouped by URL, input order becomes sort order
//  3. Embed: each chunk is embedded with a title/url/path header, in
//     sequential batches bounded by item count and character budget
//  4. Store: the version is resolved and every page in the call is replaced
//     in a single transaction
//
// Re-ingesting a URL always replaces its chunks wholesale, so repeating a
// call is safe. Without an embedder, chunks are stored without vectors.
package indexer
