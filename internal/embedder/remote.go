package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Jina and OpenAI both speak the OpenAI embeddings wire format, so a single
// client covers them.
const (
	jinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	openaiEndpoint = "https://api.openai.com/v1/embeddings"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	JinaDimension   = 1024
	OpenAIDimension = 1536
)

// remoteEmbedder calls an OpenAI-compatible embeddings endpoint with retry
// and backoff, caching results by content hash.
type remoteEmbedder struct {
	name      string
	endpoint  string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	cache     *Cache
}

func newJinaEmbedder(apiKey string, cache *Cache) (*remoteEmbedder, error) {
	return newRemoteEmbedder(ProviderJina, jinaEndpoint, apiKey, DefaultJinaModel, JinaDimension, cache)
}

func newOpenAIEmbedder(apiKey string, cache *Cache) (*remoteEmbedder, error) {
	return newRemoteEmbedder(ProviderOpenAI, openaiEndpoint, apiKey, DefaultOpenAIModel, OpenAIDimension, cache)
}

func newRemoteEmbedder(name, endpoint, apiKey, model string, dimension int, cache *Cache) (*remoteEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s requires an API key", ErrProviderUnavailable, name)
	}
	return &remoteEmbedder{
		name:      name,
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
		cache:     cache,
	}, nil
}

func (r *remoteEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := checkText(req.Text); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if emb, ok := r.cache.Get(contentHash(req.Text)); ok {
			return emb, nil
		}
	}

	resp, err := r.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: %s returned no embeddings", ErrEmbeddingFailed, r.name)
	}
	return resp.Embeddings[0], nil
}

func (r *remoteEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkBatch(req); err != nil {
		return nil, err
	}

	embeddings, err := withRetries(ctx, func() ([]*Embedding, error) {
		return r.post(ctx, req.Texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEmbeddingFailed, r.name, err)
	}

	if r.cache != nil {
		for i, emb := range embeddings {
			emb.Hash = contentHash(req.Texts[i])
			r.cache.Set(emb.Hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   r.name,
		Model:      r.model,
	}, nil
}

func (r *remoteEmbedder) post(ctx context.Context, texts []string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", r.name, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("%s responded %d: %s", r.name, httpResp.StatusCode, detail)
	}

	var payload struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", r.name, err)
	}

	// The API may return data out of order; the index field restores the
	// pairing with the input texts
	embeddings := make([]*Embedding, len(texts))
	for _, item := range payload.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, fmt.Errorf("%s returned out-of-range index %d", r.name, item.Index)
		}
		embeddings[item.Index] = &Embedding{
			Vector:    item.Embedding,
			Dimension: len(item.Embedding),
			Provider:  r.name,
			Model:     payload.Model,
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%s returned no embedding for text %d", r.name, i)
		}
	}
	return embeddings, nil
}

func (r *remoteEmbedder) Dimension() int   { return r.dimension }
func (r *remoteEmbedder) Provider() string { return r.name }
func (r *remoteEmbedder) Model() string    { return r.model }

func (r *remoteEmbedder) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
