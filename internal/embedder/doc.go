// Package embedder turns document text into vector embeddings.
//
// Providers are selected with a "provider:model" spec. OpenAI and Jina AI
// share one HTTP client for the OpenAI-compatible /embeddings endpoint,
// Ollama talks to a local server and the local provider hashes word
// features so tests and offline runs need no network.
//
//	spec, err := embedder.ParseModelSpec("openai:text-embedding-3-small")
//	if err != nil {
//	    return err
//	}
//	emb, err := embedder.New(embedder.Config{Spec: spec, CacheSize: 10000})
//
// # Batching
//
// EmbedAll plans batches that respect both an item count and a character
// budget, sends them one after another and returns vectors in input order.
// PadVector fits a vector to the store's fixed width.
//
// # Errors
//
// Every HTTP provider retries 429 and 5xx responses with exponential
// backoff. A 401 or 403 unwraps to ErrAuthFailed and is never retried.
// CredentialsAvailable lets callers decide up front whether a provider is
// usable at all.
package embedder
