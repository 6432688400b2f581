package embedder

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 10000

// Cache memoizes embeddings by content hash so re-syncs of unchanged text
// never hit the provider twice. Bounded with LRU eviction.
type Cache struct {
	entries *lru.Cache[string, *Embedding]
}

// NewCache returns a cache holding up to size embeddings. A non-positive
// size gets the default capacity.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	entries, _ := lru.New[string, *Embedding](size)
	return &Cache{entries: entries}
}

// Get returns a copy of the cached embedding. Callers may mutate the vector
// without poisoning the cached entry.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	cached, ok := c.entries.Get(hash)
	if !ok {
		return nil, false
	}
	vec := make([]float32, len(cached.Vector))
	copy(vec, cached.Vector)
	out := *cached
	out.Vector = vec
	return &out, true
}

// Set stores an embedding, evicting the least recently used entry when full.
func (c *Cache) Set(hash string, emb *Embedding) {
	c.entries.Add(hash, emb)
}

// Len reports how many embeddings are currently cached.
func (c *Cache) Len() int { return c.entries.Len() }

// Purge empties the cache.
func (c *Cache) Purge() { c.entries.Purge() }

// contentHash keys the cache and the stored embedding by the exact text that
// produced the vector.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
