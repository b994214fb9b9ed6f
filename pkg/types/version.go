package types

import (
	"fmt"
	"time"
)

// VersionStatus is the indexing lifecycle state of a version
type VersionStatus string

const (
	StatusNotIndexed VersionStatus = "not_indexed"
	StatusQueued     VersionStatus = "queued"
	StatusRunning    VersionStatus = "running"
	StatusCompleted  VersionStatus = "completed"
	StatusFailed     VersionStatus = "failed"
)

var statusTransitions = map[VersionStatus][]VersionStatus{
	StatusNotIndexed: {StatusQueued},
	StatusQueued:     {StatusRunning, StatusFailed},
	StatusRunning:    {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusQueued},
	StatusFailed:     {StatusQueued},
}

// Valid reports whether s is a known status
func (s VersionStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// IsTerminal reports whether the status ends a run
func (s VersionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether a version in status s may move to next.
// Re-applying the current status is always allowed.
func (s VersionStatus) CanTransitionTo(next VersionStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseVersionStatus converts a string to a VersionStatus
func ParseVersionStatus(v string) (VersionStatus, error) {
	s := VersionStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown version status %q", v)
	}
	return s, nil
}

// VersionSummary describes one version of a library
type VersionSummary struct {
	ID               int64
	Library          string
	Name             string // empty for unversioned
	Status           VersionStatus
	ProgressPages    int
	ProgressMaxPages int
	ErrorMessage     string
	SourceURL        string
	DocumentCount    int
	UniqueURLCount   int
	IndexedAt        *time.Time // newest document, nil before any ingestion
	StartedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LibrarySummary groups the versions of one library
type LibrarySummary struct {
	Name     string
	Versions []VersionSummary
}

// VersionMatch is the outcome of a best-version lookup
type VersionMatch struct {
	// BestMatch is the chosen version name, empty when only the
	// unversioned entry qualifies.
	BestMatch      string
	HasUnversioned bool
	MatchedSemver  bool
	Available      []string
}

// RemoveResult reports exactly what a version removal deleted
type RemoveResult struct {
	DocumentsDeleted int
	VersionDeleted   bool
	LibraryDeleted   bool
}
