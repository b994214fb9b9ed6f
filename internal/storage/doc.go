// Package storage provides SQLite-based persistence for versioned documentation.
//
// The storage layer manages:
//   - Libraries and their versions, including indexing status
//   - Pages, unique per version and url
//   - Document chunks with JSON metadata and a stable sort order
//   - A full-text index (FTS5) kept in sync by triggers
//   - A fixed-width vector index
//
// # Database Schema
//
// Tables:
//   - libraries: lowercase library names
//   - versions: one row per (library, version); '' is the unversioned entry
//   - pages: url, title and conditional-fetch fields (etag, last_modified)
//   - documents: chunk content, metadata and sort_order
//   - documents_fts: FTS5 index over content, title, url and heading path
//   - documents_vec: float32 little-endian embeddings, VectorDimension wide
//
// # Basic Usage
//
//	store, err := storage.Open(ctx, "~/.docsearch/docsearch.db", storage.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	versionID, err := store.ResolveVersion(ctx, "React", "18.2.0")
//	err = store.ReplacePages(ctx, versionID, []storage.PageWrite{{
//	    URL:    "https://react.dev/learn",
//	    Title:  "Quick Start",
//	    Chunks: chunks,
//	}})
//
// # Transactions
//
// Transactions are not exposed. Every mutating operation (ReplacePages,
// RemoveVersion, UpdateVersionStatus) runs as one atomic unit, so the text
// and vector indexes never diverge from the documents table for readers.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and computes vector distances
// in Go. Building with the sqlite_vec tag switches to mattn/go-sqlite3 with
// the sqlite-vec extension and computes distances in SQL.
package storage
