package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// OllamaProvider generates embeddings with a local Ollama server
type OllamaProvider struct {
	model      string
	baseURL    string
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *Cache
	retry      RetryConfig
}

// ollamaRequest is the Ollama API request format
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaResponse is the Ollama API response format
type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaProvider creates an Ollama embedder. No credentials are needed.
func NewOllamaProvider(opts ProviderOptions) (*OllamaProvider, error) {
	model := opts.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = lookupEnv(EnvOllamaHost)
	}
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return &OllamaProvider{
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimension:  opts.Dimension,
		httpClient: opts.client(),
		limiter:    newLimiter(opts.RequestsPerSecond),
		cache:      opts.Cache,
		retry:      opts.retry(),
	}, nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := validateTexts([]string{req.Text}); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	if vector, ok := o.cache.Lookup(model, req.Text); ok {
		return newEmbedding(vector, ProviderOllama, model), nil
	}

	vector, err := retryWithBackoff(ctx, o.retry, func() ([]float32, error) {
		return o.callAPI(ctx, req.Text, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	o.cache.Store(model, req.Text, vector)
	return newEmbedding(vector, ProviderOllama, model), nil
}

// GenerateBatch embeds texts one request at a time; Ollama's embeddings
// endpoint takes a single prompt
func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := validateTexts(req.Texts); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := o.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	model := req.Model
	if model == "" {
		model = o.model
	}
	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOllama,
		Model:      model,
	}, nil
}

func (o *OllamaProvider) callAPI(ctx context.Context, text, model string) ([]float32, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	jsonBody, err := json.Marshal(ollamaRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Provider: ProviderOllama, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var embedResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for model %s", model)
	}

	// Convert float64 to float32
	embedding := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

func (o *OllamaProvider) Dimension() int {
	return o.dimension
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
