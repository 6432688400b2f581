package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables read by NewFromEnv.
const (
	EnvEmbeddingProvider = "MEMOGRAPH_EMBEDDING_PROVIDER"
	EnvJinaAPIKey        = "JINA_API_KEY"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
)

// Config selects and sizes a provider explicitly, bypassing the environment.
type Config struct {
	Provider  string
	APIKey    string
	CacheSize int
}

// New builds the configured provider. Provider names match
// case-insensitively.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)
	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		return newJinaEmbedder(cfg.APIKey, cache)
	case ProviderOpenAI:
		return newOpenAIEmbedder(cfg.APIKey, cache)
	case ProviderLocal:
		return newLocalEmbedder(cache), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NewFromEnv picks a provider from the environment. An explicit
// MEMOGRAPH_EMBEDDING_PROVIDER wins; otherwise the first API key found
// selects its service, Jina before OpenAI. With no keys at all the offline
// local embedder is used.
func NewFromEnv() (Embedder, error) {
	cache := NewCache(0)
	jinaKey := os.Getenv(EnvJinaAPIKey)
	openaiKey := os.Getenv(EnvOpenAIAPIKey)

	switch name := strings.ToLower(os.Getenv(EnvEmbeddingProvider)); name {
	case ProviderJina:
		return newJinaEmbedder(jinaKey, cache)
	case ProviderOpenAI:
		return newOpenAIEmbedder(openaiKey, cache)
	case ProviderLocal:
		return newLocalEmbedder(cache), nil
	case "":
		// no explicit choice, detect from keys below
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	if jinaKey != "" {
		return newJinaEmbedder(jinaKey, cache)
	}
	if openaiKey != "" {
		return newOpenAIEmbedder(openaiKey, cache)
	}
	return newLocalEmbedder(cache), nil
}
