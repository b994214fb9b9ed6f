package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChunkTypeStructural marks chunks that only carry document structure (for
// example a bare heading). They are excluded from ranked results but remain
// available to assembly.
const ChunkTypeStructural = "structural"

// Reserved metadata keys
const (
	metaKeyPath  = "path"
	metaKeyLevel = "level"
	metaKeyTypes = "types"
)

// ChunkMetadata holds the semi-structured attributes of a chunk
type ChunkMetadata struct {
	// Path is the ordered list of section headings leading to the chunk.
	Path []string
	// Level is the heading depth of the chunk.
	Level int
	// Types is a tag set, e.g. ChunkTypeStructural.
	Types []string
	// Extra holds any attributes not listed above.
	Extra map[string]any
}

// HasType reports whether the metadata is tagged with t
func (m ChunkMetadata) HasType(t string) bool {
	for _, v := range m.Types {
		if v == t {
			return true
		}
	}
	return false
}

// IsStructural reports whether the chunk exists for document structure only
func (m ChunkMetadata) IsStructural() bool {
	return m.HasType(ChunkTypeStructural)
}

// IsChildOf reports whether m sits exactly one level below parent
func (m ChunkMetadata) IsChildOf(parent ChunkMetadata) bool {
	if len(m.Path) != len(parent.Path)+1 {
		return false
	}
	return hasPrefix(m.Path, parent.Path)
}

// SamePath reports whether both metadata values share the same heading path
func (m ChunkMetadata) SamePath(other ChunkMetadata) bool {
	return len(m.Path) == len(other.Path) && hasPrefix(m.Path, other.Path)
}

// ParentPath returns the path one level up, or nil for a root chunk
func (m ChunkMetadata) ParentPath() []string {
	if len(m.Path) == 0 {
		return nil
	}
	return m.Path[:len(m.Path)-1]
}

// PathString joins the heading path for display and embedding headers
func (m ChunkMetadata) PathString() string {
	return strings.Join(m.Path, " / ")
}

// MarshalJSON encodes the metadata as one flat object
func (m ChunkMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	path := m.Path
	if path == nil {
		path = []string{}
	}
	out[metaKeyPath] = path
	out[metaKeyLevel] = m.Level
	if len(m.Types) > 0 {
		out[metaKeyTypes] = m.Types
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a flat object, splitting reserved keys from Extra
func (m *ChunkMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = ChunkMetadata{}
	if v, ok := raw[metaKeyPath]; ok {
		if err := json.Unmarshal(v, &m.Path); err != nil {
			return fmt.Errorf("metadata path: %w", err)
		}
		delete(raw, metaKeyPath)
	}
	if v, ok := raw[metaKeyLevel]; ok {
		if err := json.Unmarshal(v, &m.Level); err != nil {
			return fmt.Errorf("metadata level: %w", err)
		}
		delete(raw, metaKeyLevel)
	}
	if v, ok := raw[metaKeyTypes]; ok {
		if err := json.Unmarshal(v, &m.Types); err != nil {
			return fmt.Errorf("metadata types: %w", err)
		}
		delete(raw, metaKeyTypes)
	}
	if m.Path == nil {
		m.Path = []string{}
	}

	if len(raw) > 0 {
		m.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("metadata %s: %w", k, err)
			}
			m.Extra[k] = val
		}
	}
	return nil
}

// Chunk is a slice of a page handed to the store for ingestion
type Chunk struct {
	// Page-level fields
	URL          string
	Title        string
	ETag         string // Optional, owned by the scraper
	LastModified string // Optional, owned by the scraper
	ContentType  string // Optional MIME type of the source page

	// Content
	Content  string
	Metadata ChunkMetadata
}

// StoredChunk is a persisted chunk with its page context
type StoredChunk struct {
	ID          int64
	PageID      int64
	URL         string
	Title       string
	ContentType string
	Content     string
	Metadata    ChunkMetadata
	SortOrder   int
	CreatedAt   time.Time
}

// PageInfo describes a stored page
type PageInfo struct {
	ID           int64
	VersionID    int64
	URL          string
	Title        string
	ETag         string
	LastModified string
	ContentType  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func hasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}
