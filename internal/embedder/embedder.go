package embedder

import (
	"context"
	"errors"
	"fmt"
)

// Provider names accepted by the factory and reported by Embedder.Provider.
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Batch sizing. Callers chunk their work at DefaultBatchSize; MaxBatchSize
// is the hard cap a single GenerateBatch call accepts.
const (
	DefaultBatchSize = 50
	MaxBatchSize     = 100
)

var (
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrBatchTooLarge       = errors.New("batch size exceeds limit")
	ErrEmbeddingFailed     = errors.New("embedding generation failed")
	ErrProviderUnavailable = errors.New("no embedding provider configured")
	ErrUnknownProvider     = errors.New("unknown embedding provider")
)

// Embedding is one generated vector plus the provenance needed to detect
// provider or dimension drift against vectors already stored.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // content hash of the source text
}

// EmbeddingRequest asks for a vector for one text.
type EmbeddingRequest struct {
	Text string
}

// BatchEmbeddingRequest asks for vectors for several texts in one call.
type BatchEmbeddingRequest struct {
	Texts []string
}

// BatchEmbeddingResponse carries generated vectors in request order.
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns text into fixed-dimension vectors. Implementations must be
// safe for concurrent use.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension is the vector width every embedding from this provider has.
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

func checkText(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	return nil
}

func checkBatch(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: batch has no texts", ErrEmptyText)
	}
	if len(req.Texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(req.Texts), MaxBatchSize)
	}
	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text %d of %d", ErrEmptyText, i+1, len(req.Texts))
		}
	}
	return nil
}
