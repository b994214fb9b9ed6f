// Package types provides shared type definitions for the docsearch store.
//
// This package defines domain types used across the storage, indexing,
// search and assembly components: the chunks handed over by the external
// splitter, the rows the store persists, the hits produced by hybrid ranking
// and the assembled answers returned to callers.
//
// # Core Types
//
// Chunk is the ingestion input. It carries the page-level fields of the page
// it was cut from together with its structural metadata:
//
//	chunk := types.Chunk{
//	    URL:     "https://example.com/docs/intro",
//	    Title:   "Introduction",
//	    Content: "## Setup\n\nRun the installer.",
//	    Metadata: types.ChunkMetadata{
//	        Path:  []string{"Intro", "Setup"},
//	        Level: 2,
//	    },
//	}
//
// StoredChunk is a persisted chunk as read back from the store, with its
// identifier and stable sort order within the page.
//
// # Metadata
//
// ChunkMetadata has explicit fields for the attributes that ranking and
// assembly depend on (Path, Level, Types) and an open Extra map for
// everything else. It serializes to a flat JSON object so the database can
// query individual keys.
//
// # Versions
//
// VersionStatus models the indexing lifecycle of a library version:
//
//	not_indexed -> queued -> running -> completed
//	                  \          \
//	                   +-> failed <+
//
// A completed or failed version only moves again through a fresh enqueue.
package types
