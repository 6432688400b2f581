package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// LocalDimension is the vector width of the offline embedder.
const LocalDimension = 384

const localModelName = "local-hash-v1"

// localEmbedder derives deterministic vectors from the text's SHA-256
// digest. No credentials and no network, so the vector pipeline stays
// exercisable offline; similarity is structural, not semantic.
type localEmbedder struct {
	cache *Cache
}

func newLocalEmbedder(cache *Cache) *localEmbedder {
	return &localEmbedder{cache: cache}
}

func (l *localEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := checkText(req.Text); err != nil {
		return nil, err
	}

	hash := contentHash(req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	vector := make([]float32, LocalDimension)
	digest := sha256.Sum256([]byte(req.Text))
	for i := range digest {
		vector[i] = float32(digest[i]) / 255.0
	}

	emb := &Embedding{
		Vector:    vector,
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     localModelName,
		Hash:      hash,
	}
	if l.cache != nil {
		l.cache.Set(hash, emb)
	}
	return emb, nil
}

func (l *localEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkBatch(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      localModelName,
	}, nil
}

func (l *localEmbedder) Dimension() int   { return LocalDimension }
func (l *localEmbedder) Provider() string { return ProviderLocal }
func (l *localEmbedder) Model() string    { return localModelName }
func (l *localEmbedder) Close() error     { return nil }
