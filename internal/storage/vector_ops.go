package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// structuralFilter excludes chunks tagged as purely structural
const structuralFilter = `
	NOT EXISTS (
		SELECT 1 FROM json_each(d.metadata, '$.types')
		WHERE json_each.value = 'structural'
	)
`

// SearchText runs a BM25 query over the version's full-text index. ftsQuery
// must already be a valid FTS5 expression. Scores are negated bm25 values,
// with url matches weighted above path and body text above both.
func (s *SQLiteStorage) SearchText(ctx context.Context, versionID int64, ftsQuery string, limit int) ([]TextResult, error) {
	if ftsQuery == "" || limit <= 0 {
		return []TextResult{}, nil
	}

	query := `
		SELECT d.id AS chunk_id,
		       -bm25(documents_fts, 10.0, 1.0, 5.0, 1.0) AS score
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		JOIN pages p ON p.id = d.page_id
		WHERE documents_fts MATCH ?
		AND p.version_id = ?
		AND ` + structuralFilter + `
		ORDER BY score DESC, d.id ASC
		LIMIT ?
	`
	rows, err := s.querier().QueryContext(ctx, query, ftsQuery, versionID, limit)
	if err != nil {
		return nil, storeErr("search text", fmt.Errorf("failed to execute FTS search: %w", err))
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.ChunkID, &r.BM25Score); err != nil {
			return nil, storeErr("search text", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("search text", err)
	}
	return results, nil
}

// SearchVector returns the limit nearest chunks of a version by L2 distance
func (s *SQLiteStorage) SearchVector(ctx context.Context, versionID int64, vector []float32, limit int) ([]VectorResult, error) {
	if limit <= 0 || len(vector) == 0 {
		return []VectorResult{}, nil
	}
	if len(vector) != VectorDimension {
		return nil, storeErr("search vector", fmt.Errorf("%w: query width %d, want %d",
			ErrInvalidInput, len(vector), VectorDimension))
	}

	var results []VectorResult
	var err error
	// Use SQL-side distance when sqlite-vec is available
	if VectorExtensionAvailable {
		results, err = searchVectorOptimized(ctx, s.querier(), versionID, vector, limit)
	} else {
		results, err = searchVectorFallback(ctx, s.querier(), versionID, vector, limit)
	}
	if err != nil {
		return nil, storeErr("search vector", err)
	}
	return results, nil
}

// searchVectorOptimized uses sqlite-vec's vec_distance_l2 at the database layer
func searchVectorOptimized(ctx context.Context, q querier, versionID int64, vector []float32, limit int) ([]VectorResult, error) {
	query := `
		SELECT v.document_id, vec_distance_l2(v.embedding, ?) AS distance
		FROM documents_vec v
		JOIN documents d ON d.id = v.document_id
		WHERE v.version_id = ?
		AND ` + structuralFilter + `
		ORDER BY distance ASC, v.document_id ASC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, serializeVector(vector), versionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.ChunkID, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// searchVectorFallback computes distances in Go for purego builds
func searchVectorFallback(ctx context.Context, q querier, versionID int64, vector []float32, limit int) ([]VectorResult, error) {
	query := `
		SELECT v.document_id, v.embedding
		FROM documents_vec v
		JOIN documents d ON d.id = v.document_id
		WHERE v.version_id = ?
		AND ` + structuralFilter
	rows, err := q.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeDistances(rows, vector)
	if err != nil {
		return nil, err
	}
	sortCandidates(candidates)

	if limit > len(candidates) {
		limit = len(candidates)
	}
	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{ChunkID: candidates[i].chunkID, Distance: candidates[i].distance}
	}
	return results, nil
}

// computeDistances scans embedding rows and measures each against the query
func computeDistances(rows *sql.Rows, vector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)
	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, err
		}
		stored := deserializeVector(blob)
		if len(stored) != len(vector) {
			continue // Dimension mismatch, skip
		}
		candidates = append(candidates, candidate{chunkID: chunkID, distance: l2Distance(vector, stored)})
	}
	return candidates, rows.Err()
}

// candidate represents a chunk with its distance to the query
type candidate struct {
	chunkID  int64
	distance float64
}

// sortCandidates orders by distance ascending, ties by id
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// l2Distance computes the euclidean distance between two vectors
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// L2Distance is an exported helper for testing
func L2Distance(a, b []float32) float64 {
	return l2Distance(a, b)
}
