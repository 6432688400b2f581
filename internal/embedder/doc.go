// Package embedder generates vector embeddings for indexed text.
//
// Jina and OpenAI both speak the OpenAI embeddings wire format and share one
// HTTP client with retry and backoff. The local provider derives
// deterministic vectors from a content digest so the vector pipeline works
// without credentials. All providers memoize results by content hash.
package embedder
