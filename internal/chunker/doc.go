// Package chunker splits long-form text into overlapping spans for
// embedding.
//
// Splitting rules: a markdown header always starts a new chunk, list bullets
// each form their own chunk so facts stay individually retrievable, and
// prose paragraphs merge until the character budget is reached. Spans over
// the budget are split with a fixed overlap so boundary context survives.
//
// Each chunk carries the SHA-256 hash of its content. The hash is the key
// for incremental re-embedding: a chunk whose hash matches a stored
// embedding is reused as-is.
package chunker
