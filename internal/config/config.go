package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment overrides applied by Load
const (
	EnvDBPath             = "DOCSEARCH_DB_PATH"
	EnvEmbeddingModel     = "DOCSEARCH_EMBEDDING_MODEL"
	EnvEmbeddingsDisabled = "DOCSEARCH_EMBEDDINGS_DISABLED"
	EnvLogLevel           = "DOCSEARCH_LOG_LEVEL"
	EnvLogFormat          = "DOCSEARCH_LOG_FORMAT"
	EnvSearchWeightVec    = "DOCSEARCH_SEARCH_WEIGHT_VEC"
	EnvSearchWeightFTS    = "DOCSEARCH_SEARCH_WEIGHT_FTS"
)

// MemoryPath opens an in-memory database
const MemoryPath = ":memory:"

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// lookupEnv is swapped in tests
var lookupEnv = os.LookupEnv

// Config is the full process configuration
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Search    SearchConfig    `toml:"search"`
	Assembly  AssemblyConfig  `toml:"assembly"`
	Log       LogConfig       `toml:"log"`
}

// StoreConfig locates the database
type StoreConfig struct {
	Path          string `toml:"path"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// BusyTimeout returns the lock wait as a duration
func (s StoreConfig) BusyTimeout() time.Duration {
	return time.Duration(s.BusyTimeoutMS) * time.Millisecond
}

// EmbeddingConfig selects the embedding provider. Model is "provider:model"
// or a bare OpenAI model name.
type EmbeddingConfig struct {
	Model             string  `toml:"model"`
	Disabled          bool    `toml:"disabled"`
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	BatchMaxItems     int     `toml:"batch_max_items"`
	BatchMaxChars     int     `toml:"batch_max_chars"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	CacheSize         int     `toml:"cache_size"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// Timeout returns the per-request HTTP timeout
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// SearchConfig holds hybrid ranking parameters
type SearchConfig struct {
	OverfetchFactor  int     `toml:"overfetch_factor"`
	VectorMultiplier int     `toml:"vector_multiplier"`
	WeightVector     float64 `toml:"weight_vector"`
	WeightFTS        float64 `toml:"weight_fts"`
	RRFConstant      float64 `toml:"rrf_k"`
	CacheSize        int     `toml:"cache_size"`
	CacheTTLSeconds  int     `toml:"cache_ttl_seconds"`
}

// CacheTTL returns the query cache lifetime
func (s SearchConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// AssemblyConfig bounds the context pulled in around each hit
type AssemblyConfig struct {
	OverfetchFactor    int  `toml:"overfetch_factor"`
	PrecedingSiblings  int  `toml:"preceding_siblings"`
	SubsequentSiblings int  `toml:"subsequent_siblings"`
	ChildLimit         int  `toml:"child_limit"`
	ExpandParent       bool `toml:"expand_parent"`
}

// LogConfig controls the process logger
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultPath returns ~/.docsearch/docsearch.db
func DefaultPath() string {
	return filepath.Join("~", ".docsearch", "docsearch.db")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:          DefaultPath(),
			BusyTimeoutMS: 5000,
		},
		Embedding: EmbeddingConfig{
			Model:             "openai:text-embedding-3-small",
			BatchMaxItems:     100,
			BatchMaxChars:     50000,
			RequestsPerSecond: 5,
			CacheSize:         10000,
			TimeoutSeconds:    30,
		},
		Search: SearchConfig{
			OverfetchFactor:  2,
			VectorMultiplier: 10,
			WeightVector:     1.0,
			WeightFTS:        1.0,
			RRFConstant:      60,
			CacheSize:        1000,
			CacheTTLSeconds:  300,
		},
		Assembly: AssemblyConfig{
			OverfetchFactor:    2,
			PrecedingSiblings:  1,
			SubsequentSiblings: 2,
			ChildLimit:         3,
			ExpandParent:       true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatConsole,
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. A missing file, or an empty path, yields defaults.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(expandHome(path))
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// defaults
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookupEnv(EnvDBPath); ok && v != "" {
		c.Store.Path = v
	}
	if v, ok := lookupEnv(EnvEmbeddingModel); ok && v != "" {
		c.Embedding.Model = v
	}
	if v, ok := lookupEnv(EnvEmbeddingsDisabled); ok && v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, EnvEmbeddingsDisabled, v)
		}
		c.Embedding.Disabled = disabled
	}
	if v, ok := lookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookupEnv(EnvLogFormat); ok && v != "" {
		c.Log.Format = v
	}
	if err := envFloat(EnvSearchWeightVec, &c.Search.WeightVector); err != nil {
		return err
	}
	return envFloat(EnvSearchWeightFTS, &c.Search.WeightFTS)
}

func envFloat(key string, dst *float64) error {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
	}
	*dst = f
	return nil
}

// Validate checks the configuration before any I/O happens
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("%w: store path is required", ErrInvalid)
	}
	if c.Store.BusyTimeoutMS < 0 {
		return fmt.Errorf("%w: busy timeout must not be negative", ErrInvalid)
	}

	if c.Embedding.BatchMaxItems <= 0 {
		return fmt.Errorf("%w: embedding batch_max_items must be positive, got %d", ErrInvalid, c.Embedding.BatchMaxItems)
	}
	if c.Embedding.BatchMaxChars <= 0 {
		return fmt.Errorf("%w: embedding batch_max_chars must be positive, got %d", ErrInvalid, c.Embedding.BatchMaxChars)
	}

	if c.Search.OverfetchFactor <= 0 {
		return fmt.Errorf("%w: search overfetch_factor must be positive, got %d", ErrInvalid, c.Search.OverfetchFactor)
	}
	if c.Search.VectorMultiplier <= 0 {
		return fmt.Errorf("%w: search vector_multiplier must be positive, got %d", ErrInvalid, c.Search.VectorMultiplier)
	}
	if c.Search.WeightVector < 0 || c.Search.WeightFTS < 0 {
		return fmt.Errorf("%w: search weights must not be negative", ErrInvalid)
	}
	if c.Search.WeightVector == 0 && c.Search.WeightFTS == 0 {
		return fmt.Errorf("%w: at least one search weight must be positive", ErrInvalid)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("%w: search rrf_k must be positive", ErrInvalid)
	}

	if c.Assembly.OverfetchFactor <= 0 {
		return fmt.Errorf("%w: assembly overfetch_factor must be positive, got %d", ErrInvalid, c.Assembly.OverfetchFactor)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// DatabasePath returns the store path with ~ expanded. The in-memory path
// is returned unchanged.
func (c *Config) DatabasePath() string {
	if c.Store.Path == MemoryPath {
		return MemoryPath
	}
	return expandHome(c.Store.Path)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
