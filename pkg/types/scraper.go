package types

import "time"

// ScrapeMode selects how the external scraper fetches pages
type ScrapeMode string

const (
	ScrapeModeFetch      ScrapeMode = "fetch"
	ScrapeModePlaywright ScrapeMode = "playwright"
	ScrapeModeAuto       ScrapeMode = "auto"
)

// ScraperOptions is the reproducible configuration that produced a version.
// Runtime-only values such as cancellation handles are never part of it.
type ScraperOptions struct {
	URL             string            `json:"url"`
	MaxPages        int               `json:"maxPages,omitempty"`
	MaxDepth        int               `json:"maxDepth,omitempty"`
	Scope           string            `json:"scope,omitempty"`
	FollowRedirects *bool             `json:"followRedirects,omitempty"`
	MaxConcurrency  int               `json:"maxConcurrency,omitempty"`
	IgnoreErrors    *bool             `json:"ignoreErrors,omitempty"`
	ScrapeMode      ScrapeMode        `json:"scrapeMode,omitempty"`
	IncludePatterns []string          `json:"includePatterns,omitempty"`
	ExcludePatterns []string          `json:"excludePatterns,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
}

// StoredScraperOptions is what GetScraperOptions returns for a version
type StoredScraperOptions struct {
	VersionID int64
	SourceURL string
	Options   ScraperOptions
	UpdatedAt time.Time
}
