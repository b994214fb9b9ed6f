package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// Options configures a SQLiteStorage
type Options struct {
	// BusyTimeout bounds how long a writer waits on a locked database
	BusyTimeout time.Duration
	Logger      zerolog.Logger
}

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if busyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds())); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance with default options
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return Open(context.Background(), dbPath, Options{Logger: zerolog.Nop()})
}

// Open creates a SQLite storage instance and applies pending migrations
func Open(ctx context.Context, dbPath string, opts Options) (*SQLiteStorage, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, storeErr("open", fmt.Errorf("%w: database path is required", ErrInvalidInput))
	}

	db, err := openDatabase(dbPath, opts.BusyTimeout)
	if err != nil {
		return nil, storeErr("open", fmt.Errorf("failed to open database: %w", err))
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, storeErr("migrate", fmt.Errorf("failed to apply migrations: %w", err))
	}

	opts.Logger.Info().
		Str("path", dbPath).
		Str("build_mode", BuildMode).
		Str("schema_version", CurrentSchemaVersion).
		Msg("storage opened")

	return &SQLiteStorage{db: db, logger: opts.Logger}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Identity operations

// ResolveVersion returns the id of (library, version), creating both rows if needed.
// Concurrent callers converge on the same id because both inserts are no-ops on conflict.
func (s *SQLiteStorage) ResolveVersion(ctx context.Context, library, version string) (int64, error) {
	lib := normalizeName(library)
	ver := normalizeName(version)
	if lib == "" {
		return 0, storeErr("resolve version", fmt.Errorf("%w: library name is required", ErrInvalidInput))
	}

	q := s.querier()
	ts := nowString()
	if _, err := q.ExecContext(ctx,
		`INSERT INTO libraries (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		lib, ts); err != nil {
		return 0, storeErr("resolve version", fmt.Errorf("failed to insert library: %w", err))
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO versions (library_id, name, created_at, updated_at)
		SELECT id, ?, ?, ? FROM libraries WHERE name = ?
		ON CONFLICT(library_id, name) DO NOTHING
	`, ver, ts, ts, lib); err != nil {
		return 0, storeErr("resolve version", fmt.Errorf("failed to insert version: %w", err))
	}

	id, found, err := lookupVersionWithQuerier(ctx, q, lib, ver)
	if err != nil {
		return 0, storeErr("resolve version", err)
	}
	if !found {
		return 0, storeErr("resolve version", fmt.Errorf("version %s@%s vanished after insert", lib, ver))
	}
	return id, nil
}

// LookupVersion returns the id of (library, version) without creating anything
func (s *SQLiteStorage) LookupVersion(ctx context.Context, library, version string) (int64, bool, error) {
	id, found, err := lookupVersionWithQuerier(ctx, s.querier(), normalizeName(library), normalizeName(version))
	if err != nil {
		return 0, false, storeErr("lookup version", err)
	}
	return id, found, nil
}

func lookupVersionWithQuerier(ctx context.Context, q querier, library, version string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT v.id FROM versions v
		JOIN libraries l ON l.id = v.library_id
		WHERE l.name = ? AND v.name = ?
	`, library, version).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up version: %w", err)
	}
	return id, true, nil
}

// Ingestion

// ingestStmts holds the statements prepared once per ingestion transaction
type ingestStmts struct {
	deletePageDocs *sql.Stmt
	upsertPage     *sql.Stmt
	insertDocument *sql.Stmt
	insertVector   *sql.Stmt
}

func prepareIngestStmts(ctx context.Context, tx *sql.Tx) (*ingestStmts, error) {
	var st ingestStmts
	var err error
	prepare := func(dst **sql.Stmt, query string) {
		if err != nil {
			return
		}
		*dst, err = tx.PrepareContext(ctx, query)
	}

	prepare(&st.deletePageDocs, `
		DELETE FROM documents
		WHERE page_id IN (SELECT id FROM pages WHERE version_id = ? AND url = ?)
	`)
	prepare(&st.upsertPage, `
		INSERT INTO pages (version_id, url, title, etag, last_modified, content_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, url) DO UPDATE SET
			title = excluded.title,
			content_type = excluded.content_type,
			updated_at = excluded.updated_at
		RETURNING id
	`)
	prepare(&st.insertDocument, `
		INSERT INTO documents (page_id, content, metadata, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	prepare(&st.insertVector, `
		INSERT INTO documents_vec (document_id, version_id, embedding)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("failed to prepare ingest statements: %w", err)
	}
	return &st, nil
}

func (st *ingestStmts) close() {
	for _, stmt := range []*sql.Stmt{st.deletePageDocs, st.upsertPage, st.insertDocument, st.insertVector} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// validatePages rejects a batch before any statement runs
func validatePages(pages []PageWrite) error {
	for i, page := range pages {
		if strings.TrimSpace(page.URL) == "" {
			return fmt.Errorf("%w: page %d has no url", ErrInvalidInput, i)
		}
		for j, chunk := range page.Chunks {
			if chunk.Embedding != nil && len(chunk.Embedding) != VectorDimension {
				return fmt.Errorf("%w: chunk %d of %s has embedding width %d, want %d",
					ErrInvalidInput, j, page.URL, len(chunk.Embedding), VectorDimension)
			}
		}
	}
	return nil
}

// ReplacePages atomically replaces every listed page's chunk set. Old chunks
// for each URL are removed and the new ones inserted in one transaction, so
// readers observe either the previous or the new set.
func (s *SQLiteStorage) ReplacePages(ctx context.Context, versionID int64, pages []PageWrite) error {
	if err := validatePages(pages); err != nil {
		return storeErr("add documents", err)
	}
	if len(pages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("add documents", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	st, err := prepareIngestStmts(ctx, tx)
	if err != nil {
		return storeErr("add documents", err)
	}
	defer st.close()

	ts := nowString()
	var chunkCount, vectorCount int
	for _, page := range pages {
		if _, err := st.deletePageDocs.ExecContext(ctx, versionID, page.URL); err != nil {
			return storeErr("add documents", fmt.Errorf("failed to delete old chunks for %s: %w", page.URL, err))
		}

		var pageID int64
		if err := st.upsertPage.QueryRowContext(ctx,
			versionID, page.URL, page.Title,
			nullString(page.ETag), nullString(page.LastModified), nullString(page.ContentType),
			ts, ts,
		).Scan(&pageID); err != nil {
			return storeErr("add documents", fmt.Errorf("failed to upsert page %s: %w", page.URL, err))
		}

		for i, chunk := range page.Chunks {
			metadata, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return storeErr("add documents", fmt.Errorf("failed to encode metadata: %w", err))
			}

			var docID int64
			if err := st.insertDocument.QueryRowContext(ctx,
				pageID, chunk.Content, string(metadata), i, ts,
			).Scan(&docID); err != nil {
				return storeErr("add documents", fmt.Errorf("failed to insert chunk %d of %s: %w", i, page.URL, err))
			}
			chunkCount++

			if chunk.Embedding == nil {
				continue
			}
			if _, err := st.insertVector.ExecContext(ctx, docID, versionID, serializeVector(chunk.Embedding)); err != nil {
				return storeErr("add documents", fmt.Errorf("failed to insert embedding: %w", err))
			}
			vectorCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("add documents", fmt.Errorf("failed to commit: %w", err))
	}

	s.logger.Debug().
		Int64("version_id", versionID).
		Int("pages", len(pages)).
		Int("chunks", chunkCount).
		Int("embeddings", vectorCount).
		Msg("pages replaced")
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// Chunk reads

const chunkColumns = `
	SELECT d.id, d.page_id, p.url, COALESCE(p.title, ''), COALESCE(p.content_type, ''),
	       d.content, d.metadata, d.sort_order, d.created_at
	FROM documents d
	JOIN pages p ON p.id = d.page_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (types.StoredChunk, error) {
	var c types.StoredChunk
	var metadata string
	var createdAt nullTime
	if err := row.Scan(&c.ID, &c.PageID, &c.URL, &c.Title, &c.ContentType,
		&c.Content, &metadata, &c.SortOrder, &createdAt); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
		return c, fmt.Errorf("failed to decode metadata of chunk %d: %w", c.ID, err)
	}
	c.CreatedAt = createdAt.Time
	return c, nil
}

// queryChunksWithQuerier runs a chunk query and fully drains the rows before
// returning, so callers may issue the next query on the single connection.
func queryChunksWithQuerier(ctx context.Context, q querier, query string, args ...any) ([]types.StoredChunk, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]types.StoredChunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetByID returns the chunk with the given id, or nil when it doesn't exist
func (s *SQLiteStorage) GetByID(ctx context.Context, id int64) (*types.StoredChunk, error) {
	c, err := scanChunk(s.querier().QueryRowContext(ctx, chunkColumns+` WHERE d.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get chunk", err)
	}
	return &c, nil
}

// FindChunksByIDs returns the chunks of a version among ids, ordered by page then sort order
func (s *SQLiteStorage) FindChunksByIDs(ctx context.Context, versionID int64, ids []int64) ([]types.StoredChunk, error) {
	if len(ids) == 0 {
		return []types.StoredChunk{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, versionID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := chunkColumns + ` WHERE p.version_id = ? AND d.id IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY d.page_id, d.sort_order`

	chunks, err := queryChunksWithQuerier(ctx, s.querier(), query, args...)
	if err != nil {
		return nil, storeErr("find chunks by ids", err)
	}
	return chunks, nil
}

// FindChunksByURL returns every chunk of one page in reading order
func (s *SQLiteStorage) FindChunksByURL(ctx context.Context, versionID int64, url string) ([]types.StoredChunk, error) {
	chunks, err := queryChunksWithQuerier(ctx, s.querier(),
		chunkColumns+` WHERE p.version_id = ? AND p.url = ? ORDER BY d.sort_order`,
		versionID, url)
	if err != nil {
		return nil, storeErr("find chunks by url", err)
	}
	return chunks, nil
}

// Relation lookups scan the chunk's own page in sort order; path comparison
// happens on decoded metadata.

func (s *SQLiteStorage) chunksBefore(ctx context.Context, chunk types.StoredChunk) ([]types.StoredChunk, error) {
	return queryChunksWithQuerier(ctx, s.querier(),
		chunkColumns+` WHERE d.page_id = ? AND d.sort_order < ? ORDER BY d.sort_order DESC`,
		chunk.PageID, chunk.SortOrder)
}

func (s *SQLiteStorage) chunksAfter(ctx context.Context, chunk types.StoredChunk) ([]types.StoredChunk, error) {
	return queryChunksWithQuerier(ctx, s.querier(),
		chunkColumns+` WHERE d.page_id = ? AND d.sort_order > ? ORDER BY d.sort_order ASC`,
		chunk.PageID, chunk.SortOrder)
}

// FindParentChunk returns the nearest earlier chunk one level up, or nil
func (s *SQLiteStorage) FindParentChunk(ctx context.Context, chunk types.StoredChunk) (*types.StoredChunk, error) {
	if len(chunk.Metadata.Path) == 0 {
		return nil, nil
	}
	before, err := s.chunksBefore(ctx, chunk)
	if err != nil {
		return nil, storeErr("find parent chunk", err)
	}
	for i := range before {
		if chunk.Metadata.IsChildOf(before[i].Metadata) {
			return &before[i], nil
		}
	}
	return nil, nil
}

// FindPrecedingSiblings returns up to limit earlier chunks sharing the path, in reading order
func (s *SQLiteStorage) FindPrecedingSiblings(ctx context.Context, chunk types.StoredChunk, limit int) ([]types.StoredChunk, error) {
	if limit <= 0 {
		return []types.StoredChunk{}, nil
	}
	before, err := s.chunksBefore(ctx, chunk)
	if err != nil {
		return nil, storeErr("find preceding siblings", err)
	}
	siblings := make([]types.StoredChunk, 0, limit)
	for _, c := range before {
		if len(siblings) == limit {
			break
		}
		if c.Metadata.SamePath(chunk.Metadata) {
			siblings = append(siblings, c)
		}
	}
	// Collected nearest first
	for i, j := 0, len(siblings)-1; i < j; i, j = i+1, j-1 {
		siblings[i], siblings[j] = siblings[j], siblings[i]
	}
	return siblings, nil
}

// FindSubsequentSiblings returns up to limit later chunks sharing the path
func (s *SQLiteStorage) FindSubsequentSiblings(ctx context.Context, chunk types.StoredChunk, limit int) ([]types.StoredChunk, error) {
	if limit <= 0 {
		return []types.StoredChunk{}, nil
	}
	after, err := s.chunksAfter(ctx, chunk)
	if err != nil {
		return nil, storeErr("find subsequent siblings", err)
	}
	siblings := make([]types.StoredChunk, 0, limit)
	for _, c := range after {
		if len(siblings) == limit {
			break
		}
		if c.Metadata.SamePath(chunk.Metadata) {
			siblings = append(siblings, c)
		}
	}
	return siblings, nil
}

// FindChildChunks returns up to limit later chunks exactly one level deeper
func (s *SQLiteStorage) FindChildChunks(ctx context.Context, chunk types.StoredChunk, limit int) ([]types.StoredChunk, error) {
	if limit <= 0 {
		return []types.StoredChunk{}, nil
	}
	after, err := s.chunksAfter(ctx, chunk)
	if err != nil {
		return nil, storeErr("find child chunks", err)
	}
	children := make([]types.StoredChunk, 0, limit)
	for _, c := range after {
		if len(children) == limit {
			break
		}
		if c.Metadata.IsChildOf(chunk.Metadata) {
			children = append(children, c)
		}
	}
	return children, nil
}

// ListPages returns the pages of a version ordered by url
func (s *SQLiteStorage) ListPages(ctx context.Context, versionID int64) ([]types.PageInfo, error) {
	rows, err := s.querier().QueryContext(ctx, `
		SELECT id, version_id, url, COALESCE(title, ''), COALESCE(etag, ''),
		       COALESCE(last_modified, ''), COALESCE(content_type, ''), created_at, updated_at
		FROM pages
		WHERE version_id = ?
		ORDER BY url
	`, versionID)
	if err != nil {
		return nil, storeErr("list pages", err)
	}
	defer func() { _ = rows.Close() }()

	pages := make([]types.PageInfo, 0)
	for rows.Next() {
		var p types.PageInfo
		var createdAt, updatedAt nullTime
		if err := rows.Scan(&p.ID, &p.VersionID, &p.URL, &p.Title, &p.ETag,
			&p.LastModified, &p.ContentType, &createdAt, &updatedAt); err != nil {
			return nil, storeErr("list pages", err)
		}
		p.CreatedAt = createdAt.Time
		p.UpdatedAt = updatedAt.Time
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list pages", err)
	}
	return pages, nil
}

// Stats returns row counts across the database
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{BuildMode: BuildMode, VectorSQL: VectorExtensionAvailable}
	err := s.querier().QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM libraries),
			(SELECT COUNT(*) FROM versions),
			(SELECT COUNT(*) FROM pages),
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM documents_vec)
	`).Scan(&st.Libraries, &st.Versions, &st.Pages, &st.Documents, &st.Embeddings)
	if err != nil {
		return nil, storeErr("stats", err)
	}
	return st, nil
}
