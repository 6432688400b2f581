// Package scanner detects filesystem changes against indexed entity state.
//
// A pass takes one directory walk (path, size, mtime from cached stat data)
// and compares it to the stats persisted per entity. Paths matching on both
// size and mtime are skipped without reading any content. Mismatches are
// confirmed with a streaming SHA-256 digest, so an mtime-only touch does not
// trigger a re-index. Disappeared paths are paired with new paths by content
// hash and reported as moves; what remains is deletions and creations.
//
// Hashing runs under a bounded worker pool and files are digested with
// chunked reads, keeping peak memory independent of file size.
package scanner
