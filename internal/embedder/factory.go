package embedder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// lookupEnv is swapped in tests
var lookupEnv = os.Getenv

// ModelSpec identifies a provider and model, written "provider:model"
type ModelSpec struct {
	Provider string
	Model    string
}

func (m ModelSpec) String() string {
	return m.Provider + ":" + m.Model
}

// ParseModelSpec parses "provider:model". A bare model name selects OpenAI
// and an empty spec selects the default OpenAI model.
func ParseModelSpec(spec string) (ModelSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ModelSpec{Provider: ProviderOpenAI, Model: DefaultOpenAIModel}, nil
	}

	provider, model, found := strings.Cut(spec, ":")
	if !found {
		return ModelSpec{Provider: ProviderOpenAI, Model: spec}, nil
	}

	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if provider == "" || model == "" {
		return ModelSpec{}, &ConfigError{
			Field: "model",
			Value: spec,
			Err:   fmt.Errorf("%w: expected provider:model", ErrUnsupportedModel),
		}
	}

	switch provider {
	case ProviderOpenAI, ProviderJina, ProviderOllama, ProviderLocal:
	default:
		return ModelSpec{}, &ConfigError{
			Field: "model",
			Value: spec,
			Err:   fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider),
		}
	}
	return ModelSpec{Provider: provider, Model: model}, nil
}

// knownDimensions lists native widths so models don't need probing
var knownDimensions = map[string]int{
	"openai:text-embedding-3-small": 1536,
	"openai:text-embedding-3-large": 3072,
	"openai:text-embedding-ada-002": 1536,
	"jina:jina-embeddings-v3":       1024,
	"ollama:nomic-embed-text":       768,
	"ollama:mxbai-embed-large":      1024,
	"ollama:all-minilm":             384,
	"local:local-hash":              LocalDimension,
}

// KnownDimension returns the native width of a model, if listed
func KnownDimension(spec ModelSpec) (int, bool) {
	d, ok := knownDimensions[spec.String()]
	return d, ok
}

// CredentialsAvailable reports whether provider can be used without
// failing every call. apiKey overrides the environment.
func CredentialsAvailable(provider, apiKey string) bool {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return apiKey != "" || lookupEnv(EnvOpenAIAPIKey) != ""
	case ProviderJina:
		return apiKey != "" || lookupEnv(EnvJinaAPIKey) != ""
	case ProviderOllama, ProviderLocal:
		return true
	default:
		return false
	}
}

// Config holds embedder configuration
type Config struct {
	Spec              ModelSpec
	APIKey            string
	BaseURL           string
	CacheSize         int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	dimension, _ := KnownDimension(cfg.Spec)
	opts := ProviderOptions{
		APIKey:            cfg.APIKey,
		Model:             cfg.Spec.Model,
		BaseURL:           cfg.BaseURL,
		Dimension:         dimension,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Cache:             cache,
	}

	switch strings.ToLower(cfg.Spec.Provider) {
	case ProviderJina:
		return NewJinaProvider(opts)
	case ProviderOpenAI:
		return NewOpenAIProvider(opts)
	case ProviderOllama:
		return NewOllamaProvider(opts)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Spec.Provider)
	}
}

// ProbeDimension returns the embedder's width, embedding a sample text when
// the model isn't listed. Credential rejections become a ConfigError.
func ProbeDimension(ctx context.Context, emb Embedder) (int, error) {
	if d := emb.Dimension(); d > 0 {
		return d, nil
	}
	result, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "dimension probe"})
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			return 0, &ConfigError{Field: "credentials", Value: emb.Provider(), Err: err}
		}
		return 0, fmt.Errorf("failed to probe %s:%s: %w", emb.Provider(), emb.Model(), err)
	}
	return len(result.Vector), nil
}
