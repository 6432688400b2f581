// Package searcher is the read side of the index: ranked retrieval over the
// search row projection.
//
// Three modes: text (FTS5 BM25), vector (cosine similarity over chunk
// embeddings), and hybrid, which runs both legs concurrently and fuses them
// with reciprocal rank fusion at k=60. Free-form input is compiled into an
// FTS5 MATCH expression with per-term prefix wildcards; explicit boolean
// queries pass through. Without an embedder, vector and hybrid requests
// degrade to text-only instead of failing. No relevance floor is applied;
// a weak query still returns its nearest candidates.
package searcher
