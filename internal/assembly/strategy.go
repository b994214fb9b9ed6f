package assembly

import (
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// Strategy names
const (
	StrategyDefault    = "default"
	StrategyStructured = "structured"
)

// Defaults for Options fields left at zero
const (
	DefaultPrecedingSiblings  = 1
	DefaultSubsequentSiblings = 2
	DefaultChildLimit         = 3
)

// Strategy turns the initial hits of one page into a single answer. It may
// fetch neighbouring chunks through the reader.
type Strategy interface {
	Name() string
	Assemble(ctx context.Context, reader storage.ChunkReader, hits []types.StoredChunk) (Assembled, error)
}

// Assembled is the output of a Strategy
type Assembled struct {
	Content  string
	ChunkIDs []int64
}

// Options bounds how much context a strategy pulls in around each hit
type Options struct {
	PrecedingSiblings  int
	SubsequentSiblings int
	ChildLimit         int
	ExpandParent       bool
}

// DefaultOptions returns the standard context window
func DefaultOptions() Options {
	return Options{
		PrecedingSiblings:  DefaultPrecedingSiblings,
		SubsequentSiblings: DefaultSubsequentSiblings,
		ChildLimit:         DefaultChildLimit,
		ExpandParent:       true,
	}
}

// Registry maps strategy names to implementations
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns a registry holding the default and structured strategies
func NewRegistry(opts Options) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(NewMarkdownStrategy(opts))
	r.Register(NewHierarchicalStrategy(opts))
	return r
}

// Register adds or replaces a strategy under its name
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// ForContentType picks the strategy for a MIME type, falling back to default
func (r *Registry) ForContentType(contentType string) (Strategy, error) {
	if s, ok := r.Get(ClassifyContentType(contentType)); ok {
		return s, nil
	}
	if s, ok := r.Get(StrategyDefault); ok {
		return s, nil
	}
	return nil, fmt.Errorf("no assembly strategy for content type %q", contentType)
}

// structuredTypes are MIME types whose chunks follow a code or data outline
var structuredTypes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/yaml":       true,
	"application/x-yaml":     true,
	"application/toml":       true,
	"application/javascript": true,
	"application/typescript": true,
	"text/javascript":        true,
	"text/typescript":        true,
	"text/xml":               true,
	"text/yaml":              true,
	"text/x-yaml":            true,
}

// ClassifyContentType maps a MIME type to a strategy name. Prose (markdown,
// HTML, plain text, unknown) uses the default strategy; source code and
// structured data use the structured one.
func ClassifyContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mediaType == "":
		return StrategyDefault
	case structuredTypes[mediaType]:
		return StrategyStructured
	case strings.HasPrefix(mediaType, "text/x-") && mediaType != "text/x-markdown":
		// text/x-go, text/x-python, text/x-java-source, ...
		return StrategyStructured
	case strings.HasSuffix(mediaType, "+json"), strings.HasSuffix(mediaType, "+xml"):
		return StrategyStructured
	default:
		return StrategyDefault
	}
}

// chunkSet collects chunks by id and yields them in reading order
type chunkSet map[int64]types.StoredChunk

func (s chunkSet) add(chunks ...types.StoredChunk) {
	for _, c := range chunks {
		s[c.ID] = c
	}
}

func (s chunkSet) addPtr(c *types.StoredChunk) {
	if c != nil {
		s[c.ID] = *c
	}
}

func (s chunkSet) ordered() []types.StoredChunk {
	out := make([]types.StoredChunk, 0, len(s))
	for _, c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// join concatenates chunk contents in order. A chunk that opens with a
// heading line already emitted by an earlier chunk has that line dropped,
// so a section header repeated by the splitter appears once.
func join(chunks []types.StoredChunk, sep string) Assembled {
	parts := make([]string, 0, len(chunks))
	ids := make([]int64, 0, len(chunks))
	seen := map[string]bool{}
	for _, c := range chunks {
		ids = append(ids, c.ID)
		text := stripSeenHeadings(strings.TrimSpace(c.Content), seen)
		if text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			if heading, ok := headingLine(line); ok {
				seen[heading] = true
			}
		}
		parts = append(parts, text)
	}
	return Assembled{Content: strings.Join(parts, sep), ChunkIDs: ids}
}

// stripSeenHeadings removes leading heading lines present in seen
func stripSeenHeadings(text string, seen map[string]bool) string {
	for text != "" {
		first, rest, _ := strings.Cut(text, "\n")
		heading, ok := headingLine(first)
		if !ok || !seen[heading] {
			break
		}
		text = strings.TrimSpace(rest)
	}
	return text
}

// headingLine reports whether line is an ATX markdown heading
func headingLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	level := len(line) - len(strings.TrimLeft(line, "#"))
	if level == 0 || level > 6 {
		return "", false
	}
	if len(line) > level && line[level] != ' ' && line[level] != '\t' {
		return "", false
	}
	return line, true
}

// MarkdownStrategy assembles prose pages. Each hit with a heading path is
// widened to its parent section, its nearest siblings and its first
// children; the result reads in page order.
type MarkdownStrategy struct {
	opts Options
}

// NewMarkdownStrategy creates the default strategy
func NewMarkdownStrategy(opts Options) *MarkdownStrategy {
	return &MarkdownStrategy{opts: opts}
}

func (m *MarkdownStrategy) Name() string {
	return StrategyDefault
}

func (m *MarkdownStrategy) Assemble(ctx context.Context, reader storage.ChunkReader, hits []types.StoredChunk) (Assembled, error) {
	set := chunkSet{}
	for _, hit := range hits {
		set.add(hit)
		if len(hit.Metadata.Path) == 0 {
			continue
		}

		if m.opts.ExpandParent {
			parent, err := reader.FindParentChunk(ctx, hit)
			if err != nil {
				return Assembled{}, fmt.Errorf("failed to find parent of chunk %d: %w", hit.ID, err)
			}
			set.addPtr(parent)
		}

		if m.opts.PrecedingSiblings > 0 {
			before, err := reader.FindPrecedingSiblings(ctx, hit, m.opts.PrecedingSiblings)
			if err != nil {
				return Assembled{}, fmt.Errorf("failed to find siblings of chunk %d: %w", hit.ID, err)
			}
			set.add(before...)
		}

		if m.opts.SubsequentSiblings > 0 {
			after, err := reader.FindSubsequentSiblings(ctx, hit, m.opts.SubsequentSiblings)
			if err != nil {
				return Assembled{}, fmt.Errorf("failed to find siblings of chunk %d: %w", hit.ID, err)
			}
			set.add(after...)
		}

		if m.opts.ChildLimit > 0 {
			children, err := reader.FindChildChunks(ctx, hit, m.opts.ChildLimit)
			if err != nil {
				return Assembled{}, fmt.Errorf("failed to find children of chunk %d: %w", hit.ID, err)
			}
			set.add(children...)
		}
	}
	return join(set.ordered(), "\n\n"), nil
}

// HierarchicalStrategy assembles code and structured data. Each hit is
// shown under its full ancestor chain followed by its direct children,
// without sibling context.
type HierarchicalStrategy struct {
	opts Options
}

// NewHierarchicalStrategy creates the structured strategy
func NewHierarchicalStrategy(opts Options) *HierarchicalStrategy {
	return &HierarchicalStrategy{opts: opts}
}

func (h *HierarchicalStrategy) Name() string {
	return StrategyStructured
}

func (h *HierarchicalStrategy) Assemble(ctx context.Context, reader storage.ChunkReader, hits []types.StoredChunk) (Assembled, error) {
	set := chunkSet{}
	for _, hit := range hits {
		set.add(hit)

		// The path shrinks by one per step, so the walk ends at the root
		current := hit
		for len(current.Metadata.Path) > 0 {
			parent, err := reader.FindParentChunk(ctx, current)
			if err != nil {
				return Assembled{}, fmt.Errorf("failed to find parent of chunk %d: %w", current.ID, err)
			}
			if parent == nil {
				break
			}
			if _, seen := set[parent.ID]; seen {
				// ancestors above it were walked by an earlier hit
				break
			}
			set.add(*parent)
			current = *parent
		}

		if h.opts.ChildLimit > 0 {
			children, err := reader.FindChildChunks(ctx, hit, h.opts.ChildLimit)
			if err != nil {
				return Assembled{}, fmt.Errorf("failed to find children of chunk %d: %w", hit.ID, err)
			}
			set.add(children...)
		}
	}
	return join(set.ordered(), "\n"), nil
}
