package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

const versionColumns = `
	SELECT v.id, l.name, v.name, v.status, v.progress_pages, v.progress_max_pages,
	       COALESCE(v.error_message, ''), COALESCE(v.source_url, ''),
	       v.started_at, v.created_at, v.updated_at,
	       (SELECT COUNT(*) FROM documents d JOIN pages p ON p.id = d.page_id WHERE p.version_id = v.id),
	       (SELECT COUNT(DISTINCT p.url) FROM documents d JOIN pages p ON p.id = d.page_id WHERE p.version_id = v.id),
	       (SELECT MAX(d.created_at) FROM documents d JOIN pages p ON p.id = d.page_id WHERE p.version_id = v.id)
	FROM versions v
	JOIN libraries l ON l.id = v.library_id
`

func scanVersionSummary(row rowScanner) (types.VersionSummary, error) {
	var v types.VersionSummary
	var status string
	var startedAt, createdAt, updatedAt, indexedAt nullTime
	if err := row.Scan(&v.ID, &v.Library, &v.Name, &status, &v.ProgressPages, &v.ProgressMaxPages,
		&v.ErrorMessage, &v.SourceURL, &startedAt, &createdAt, &updatedAt,
		&v.DocumentCount, &v.UniqueURLCount, &indexedAt); err != nil {
		return v, err
	}
	v.Status = types.VersionStatus(status)
	v.StartedAt = startedAt.ptr()
	v.IndexedAt = indexedAt.ptr()
	v.CreatedAt = createdAt.Time
	v.UpdatedAt = updatedAt.Time
	return v, nil
}

func queryVersionsWithQuerier(ctx context.Context, q querier, query string, args ...any) ([]types.VersionSummary, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	versions := make([]types.VersionSummary, 0)
	for rows.Next() {
		v, err := scanVersionSummary(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// sortVersionSummaries orders semver names newest first, then other names
// alphabetically, with the unversioned entry last
func sortVersionSummaries(versions []types.VersionSummary) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versionLess(versions[j].Name, versions[i].Name)
	})
}

// versionLess reports whether a ranks below b
func versionLess(a, b string) bool {
	if a == b {
		return false
	}
	if a == "" {
		return true
	}
	if b == "" {
		return false
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		if va.Equal(vb) {
			return a > b
		}
		return va.LessThan(vb)
	case errA == nil:
		return false
	case errB == nil:
		return true
	default:
		return a > b
	}
}

// ListVersions returns the versions of a library, newest first
func (s *SQLiteStorage) ListVersions(ctx context.Context, library string) ([]types.VersionSummary, error) {
	versions, err := queryVersionsWithQuerier(ctx, s.querier(),
		versionColumns+` WHERE l.name = ?`, normalizeName(library))
	if err != nil {
		return nil, storeErr("list versions", err)
	}
	sortVersionSummaries(versions)
	return versions, nil
}

// ListLibraries returns every library with its versions, ordered by name
func (s *SQLiteStorage) ListLibraries(ctx context.Context) ([]types.LibrarySummary, error) {
	versions, err := queryVersionsWithQuerier(ctx, s.querier(), versionColumns+` ORDER BY l.name`)
	if err != nil {
		return nil, storeErr("list libraries", err)
	}

	libraries := make([]types.LibrarySummary, 0)
	index := make(map[string]int)
	for _, v := range versions {
		i, ok := index[v.Library]
		if !ok {
			i = len(libraries)
			index[v.Library] = i
			libraries = append(libraries, types.LibrarySummary{Name: v.Library})
		}
		libraries[i].Versions = append(libraries[i].Versions, v)
	}
	for i := range libraries {
		sortVersionSummaries(libraries[i].Versions)
	}
	return libraries, nil
}

// CheckExists reports whether (library, version) holds at least one chunk
func (s *SQLiteStorage) CheckExists(ctx context.Context, library, version string) (bool, error) {
	var exists bool
	err := s.querier().QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM documents d
			JOIN pages p ON p.id = d.page_id
			JOIN versions v ON v.id = p.version_id
			JOIN libraries l ON l.id = v.library_id
			WHERE l.name = ? AND v.name = ?
		)
	`, normalizeName(library), normalizeName(version)).Scan(&exists)
	if err != nil {
		return false, storeErr("check exists", err)
	}
	return exists, nil
}

// FindBestVersion picks the best indexed version of a library for target.
// Empty or "latest" selects the newest semver version, an exact version
// selects the newest version not above it, and anything else is treated
// as a semver range.
func (s *SQLiteStorage) FindBestVersion(ctx context.Context, library, target string) (types.VersionMatch, error) {
	lib := normalizeName(library)
	target = normalizeName(target)

	summaries, err := queryVersionsWithQuerier(ctx, s.querier(), versionColumns+` WHERE l.name = ?`, lib)
	if err != nil {
		return types.VersionMatch{}, storeErr("find best version", err)
	}

	var match types.VersionMatch
	var candidates []*semver.Version
	names := make(map[*semver.Version]string)
	for _, v := range summaries {
		if v.DocumentCount == 0 {
			continue
		}
		if v.Name == "" {
			match.HasUnversioned = true
			continue
		}
		match.Available = append(match.Available, v.Name)
		if sv, err := semver.NewVersion(v.Name); err == nil {
			candidates = append(candidates, sv)
			names[sv] = v.Name
		}
	}
	sort.Sort(sort.Reverse(semver.Collection(candidates)))
	sort.Slice(match.Available, func(i, j int) bool {
		return versionLess(match.Available[j], match.Available[i])
	})

	constraint, err := versionConstraint(target)
	if err == nil {
		for _, sv := range candidates {
			if constraint == nil || constraint.Check(sv) {
				match.BestMatch = names[sv]
				match.MatchedSemver = true
				return match, nil
			}
		}
	}

	if match.HasUnversioned {
		return match, nil
	}
	return types.VersionMatch{}, &VersionNotFoundError{
		Library:   lib,
		Version:   target,
		Available: match.Available,
	}
}

// versionConstraint returns nil for "any version"
func versionConstraint(target string) (*semver.Constraints, error) {
	if target == "" || target == "latest" {
		return nil, nil
	}
	if v, err := semver.StrictNewVersion(strings.TrimPrefix(target, "v")); err == nil {
		return semver.NewConstraint("<= " + v.String())
	}
	return semver.NewConstraint(target)
}

// RemoveVersion deletes a version's chunks, pages and row in one transaction.
// A missing version is not an error and yields a zero result.
func (s *SQLiteStorage) RemoveVersion(ctx context.Context, library, version string, removeLibraryIfEmpty bool) (types.RemoveResult, error) {
	var result types.RemoveResult
	lib := normalizeName(library)
	ver := normalizeName(version)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, storeErr("remove version", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var versionID, libraryID int64
	err = tx.QueryRowContext(ctx, `
		SELECT v.id, l.id FROM versions v
		JOIN libraries l ON l.id = v.library_id
		WHERE l.name = ? AND v.name = ?
	`, lib, ver).Scan(&versionID, &libraryID)
	if err == sql.ErrNoRows {
		return result, nil
	}
	if err != nil {
		return result, storeErr("remove version", fmt.Errorf("failed to look up version: %w", err))
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM documents
		WHERE page_id IN (SELECT id FROM pages WHERE version_id = ?)
	`, versionID)
	if err != nil {
		return result, storeErr("remove version", fmt.Errorf("failed to delete chunks: %w", err))
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return result, storeErr("remove version", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE version_id = ?`, versionID); err != nil {
		return result, storeErr("remove version", fmt.Errorf("failed to delete pages: %w", err))
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM versions WHERE id = ?`, versionID)
	if err != nil {
		return result, storeErr("remove version", fmt.Errorf("failed to delete version: %w", err))
	}
	versionRows, err := res.RowsAffected()
	if err != nil {
		return result, storeErr("remove version", err)
	}

	libraryDeleted := false
	if removeLibraryIfEmpty {
		var remaining int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM versions WHERE library_id = ?`, libraryID).Scan(&remaining); err != nil {
			return result, storeErr("remove version", fmt.Errorf("failed to count versions: %w", err))
		}
		if remaining == 0 {
			res, err := tx.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, libraryID)
			if err != nil {
				return result, storeErr("remove version", fmt.Errorf("failed to delete library: %w", err))
			}
			n, err := res.RowsAffected()
			if err != nil {
				return result, storeErr("remove version", err)
			}
			libraryDeleted = n > 0
		}
	}

	if err := tx.Commit(); err != nil {
		return result, storeErr("remove version", fmt.Errorf("failed to commit: %w", err))
	}

	result = types.RemoveResult{
		DocumentsDeleted: int(deleted),
		VersionDeleted:   versionRows > 0,
		LibraryDeleted:   libraryDeleted,
	}
	s.logger.Info().
		Str("library", lib).
		Str("version", ver).
		Int("documents_deleted", result.DocumentsDeleted).
		Bool("library_deleted", result.LibraryDeleted).
		Msg("version removed")
	return result, nil
}

// Status operations

// UpdateVersionStatus moves a version to status. Entering running stamps
// started_at; entering queued clears progress and the previous error.
func (s *SQLiteStorage) UpdateVersionStatus(ctx context.Context, versionID int64, status types.VersionStatus, errMsg string) error {
	if !status.Valid() {
		return storeErr("update status", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("update status", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM versions WHERE id = ?`, versionID).Scan(&current)
	if err == sql.ErrNoRows {
		return storeErr("update status", fmt.Errorf("%w: version %d", ErrNotFound, versionID))
	}
	if err != nil {
		return storeErr("update status", err)
	}

	from := types.VersionStatus(current)
	if !from.CanTransitionTo(status) {
		return storeErr("update status", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status))
	}

	ts := nowString()
	switch status {
	case types.StatusQueued:
		_, err = tx.ExecContext(ctx, `
			UPDATE versions
			SET status = ?, error_message = NULL, progress_pages = 0, progress_max_pages = 0, updated_at = ?
			WHERE id = ?
		`, string(status), ts, versionID)
	case types.StatusRunning:
		_, err = tx.ExecContext(ctx, `
			UPDATE versions
			SET status = ?, error_message = NULL, started_at = COALESCE(
				CASE WHEN status = 'running' THEN started_at END, ?), updated_at = ?
			WHERE id = ?
		`, string(status), ts, ts, versionID)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE versions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
		`, string(status), nullString(errMsg), ts, versionID)
	}
	if err != nil {
		return storeErr("update status", fmt.Errorf("failed to update status: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return storeErr("update status", fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// UpdateVersionProgress records advisory page counters
func (s *SQLiteStorage) UpdateVersionProgress(ctx context.Context, versionID int64, pages, maxPages int) error {
	if pages < 0 || maxPages < 0 {
		return storeErr("update progress", fmt.Errorf("%w: negative progress", ErrInvalidInput))
	}
	res, err := s.querier().ExecContext(ctx, `
		UPDATE versions SET progress_pages = ?, progress_max_pages = ?, updated_at = ? WHERE id = ?
	`, pages, maxPages, nowString(), versionID)
	if err != nil {
		return storeErr("update progress", err)
	}
	return requireRow(res, "update progress", versionID)
}

func requireRow(res sql.Result, op string, versionID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if n == 0 {
		return storeErr(op, fmt.Errorf("%w: version %d", ErrNotFound, versionID))
	}
	return nil
}

// GetVersionsByStatus returns versions in any of the given statuses, oldest first
func (s *SQLiteStorage) GetVersionsByStatus(ctx context.Context, statuses ...types.VersionStatus) ([]types.VersionSummary, error) {
	if len(statuses) == 0 {
		return []types.VersionSummary{}, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	versions, err := queryVersionsWithQuerier(ctx, s.querier(),
		versionColumns+` WHERE v.status IN (`+strings.Join(placeholders, ",")+`) ORDER BY v.created_at, v.id`,
		args...)
	if err != nil {
		return nil, storeErr("get versions by status", err)
	}
	return versions, nil
}

// Scraper options

// StoreScraperOptions persists the source url and scrape settings of a version
func (s *SQLiteStorage) StoreScraperOptions(ctx context.Context, versionID int64, opts types.ScraperOptions) error {
	if strings.TrimSpace(opts.URL) == "" {
		return storeErr("store scraper options", fmt.Errorf("%w: source url is required", ErrInvalidInput))
	}
	encoded, err := json.Marshal(opts)
	if err != nil {
		return storeErr("store scraper options", fmt.Errorf("failed to encode options: %w", err))
	}
	res, err := s.querier().ExecContext(ctx, `
		UPDATE versions SET source_url = ?, scraper_options = ?, updated_at = ? WHERE id = ?
	`, opts.URL, string(encoded), nowString(), versionID)
	if err != nil {
		return storeErr("store scraper options", err)
	}
	return requireRow(res, "store scraper options", versionID)
}

// GetScraperOptions returns the stored settings, or nil when the version is
// missing or was not produced by a reproducible scrape
func (s *SQLiteStorage) GetScraperOptions(ctx context.Context, versionID int64) (*types.StoredScraperOptions, error) {
	var sourceURL, raw sql.NullString
	var updatedAt nullTime
	err := s.querier().QueryRowContext(ctx, `
		SELECT source_url, scraper_options, updated_at FROM versions WHERE id = ?
	`, versionID).Scan(&sourceURL, &raw, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get scraper options", err)
	}
	if !sourceURL.Valid || sourceURL.String == "" {
		return nil, nil
	}

	stored := &types.StoredScraperOptions{
		VersionID: versionID,
		SourceURL: sourceURL.String,
		UpdatedAt: updatedAt.Time,
	}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &stored.Options); err != nil {
			return nil, storeErr("get scraper options", fmt.Errorf("failed to decode options: %w", err))
		}
	}
	if stored.Options.URL == "" {
		stored.Options.URL = sourceURL.String
	}
	return stored, nil
}

// FindVersionsBySourceURL returns every version scraped from url
func (s *SQLiteStorage) FindVersionsBySourceURL(ctx context.Context, url string) ([]types.VersionSummary, error) {
	versions, err := queryVersionsWithQuerier(ctx, s.querier(),
		versionColumns+` WHERE v.source_url = ? ORDER BY l.name`, url)
	if err != nil {
		return nil, storeErr("find versions by source url", err)
	}
	return versions, nil
}
