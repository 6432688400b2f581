package types

import (
	"crypto/sha256"
	"errors"
)

// Chunking budgets. Headers always start a new chunk and list bullets are
// kept atomic; prose is merged up to MaxChunkChars, and oversized spans are
// split with ChunkOverlapChars of carried-over context.
const (
	MaxChunkChars     = 1500
	ChunkOverlapChars = 200
)

// Chunk is a span of a search row's long-form text destined for embedding.
// The content hash is the incremental-sync key: a chunk whose hash matches a
// previously stored embedding is never re-embedded.
type Chunk struct {
	RowID       int64 // owning search row, 0 until the row is written
	Index       int   // position within the row's chunk sequence
	Content     string
	ContentHash [32]byte
}

// ComputeContentHash fills in the SHA-256 hash of the chunk content.
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// Validate checks structural chunk invariants.
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.Index < 0 {
		return errors.New("chunk index must be non-negative")
	}
	var zero [32]byte
	if c.ContentHash == zero {
		return errors.New("content hash must be computed")
	}
	return nil
}
